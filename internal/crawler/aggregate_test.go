package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/youread/internal/manga"
)

func TestAggregateMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	p1 := []manga.Record{rec("a"), rec("b"), rec("c")}
	p2 := []manga.Record{rec("c"), rec("d"), rec("a"), rec("e")}

	agg := NewAggregate()
	require.Equal(t, 3, agg.Merge(p1))
	require.Equal(t, 2, agg.Merge(p2))
	require.Zero(t, agg.Merge(p2))
	require.Zero(t, agg.Merge(p1))

	require.Equal(t, 5, agg.Len())
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(agg.Records()))
}

func TestAggregateKeepsFirstDiscovery(t *testing.T) {
	t.Parallel()

	agg := NewAggregate()
	first := manga.Record{ID: "a", Title: "First", LastReadChapter: manga.IntPtr(3)}
	later := manga.Record{ID: "a", Title: "Later", LastReadChapter: manga.IntPtr(9)}
	agg.Merge([]manga.Record{first, later})

	got := agg.Records()
	require.Len(t, got, 1)
	require.Equal(t, "First", got[0].Title)
}

func TestAggregateSkipsInvalidRecords(t *testing.T) {
	t.Parallel()

	agg := NewAggregate()
	added := agg.Merge([]manga.Record{{ID: "", Title: "No id"}, {ID: "x"}, rec("ok")})
	require.Equal(t, 1, added)
	require.Equal(t, []string{"ok"}, ids(agg.Records()))
}

func TestAggregateRecordsIsACopy(t *testing.T) {
	t.Parallel()

	agg := NewAggregate()
	agg.Merge([]manga.Record{rec("a")})
	out := agg.Records()
	out[0].Title = "changed"
	require.Equal(t, "A", agg.Records()[0].Title)
}
