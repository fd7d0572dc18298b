package gcs

import (
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = New(&gcstorage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s, err := New(&gcstorage.Client{}, Config{Bucket: "b", Prefix: "/youread/"})
	require.NoError(t, err)

	name, err := s.objectName("/library/tracked_manga.json")
	require.NoError(t, err)
	require.Equal(t, "youread/library/tracked_manga.json", name)

	_, err = s.objectName("  ")
	require.Error(t, err)

	bare, err := New(&gcstorage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	name, err = bare.objectName("images/ab.jpg")
	require.NoError(t, err)
	require.Equal(t, "images/ab.jpg", name)
}
