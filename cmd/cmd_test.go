package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionNeedsNoConfig(t *testing.T) {
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"version", "--config", "/does/not/exist.yaml"}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	require.Contains(t, stdout.String(), "youread dev")
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	err := run(context.Background(), []string{"import", "--config", "/does/not/exist.yaml"}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "load config")
}

func TestImportRejectsNonListingURL(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")
	err := run(context.Background(), []string{
		"import", "--config", path, "--url", "https://www.manganato.gg/manga/solo-leveling",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorIs(t, err, crawler.ErrInvalidTabState)
}

func TestResolveConfigMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveConfig(context.Background())
	require.ErrorContains(t, err, "configuration not loaded")
}

func TestWriteImportOutputStdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeImportOutput(&buf, "", importOutput{PagesVisited: 1, StopReason: crawler.StopNoNextPage}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, []any{}, got["records"])
	require.EqualValues(t, 1, got["pages_visited"])
	require.NotContains(t, got, "summary")
}

func TestWriteImportOutputFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	out := importOutput{
		Records: []manga.Record{{ID: "a", Title: "A"}},
		Summary: &library.ImportSummary{Added: 1},
	}
	require.NoError(t, writeImportOutput(&bytes.Buffer{}, path, out))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got importOutput
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got.Records, 1)
	require.Equal(t, 1, got.Summary.Added)
}
