package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trust-ai-analyzer/internal/analysis"
	"github.com/trust-ai-analyzer/internal/kvstore"
)

func newTestCache(t *testing.T, store kvstore.Store, capacity int) *Cache {
	t.Helper()
	return New(context.Background(), store, Options{Capacity: capacity}, zaptest.NewLogger(t))
}

func result(summary string) *analysis.Result {
	score := 42.0
	return &analysis.Result{
		RiskLevel:        analysis.RiskMedium,
		Summary:          summary,
		Insights:         []analysis.Insight{analysis.TextInsight("plain"), analysis.StructuredInsight("Check", "the source")},
		CredibilityScore: &score,
		Metadata:         analysis.Metadata{"author": "Jane Doe", "pages": 3.0},
		GraphData: &analysis.GraphData{
			Nodes: []analysis.GraphNode{{ID: "n1", Label: "WHO", Type: "organization"}},
			Edges: []analysis.GraphEdge{{Source: "n1", Target: "n1", Label: "cites"}},
		},
		Sources:         []analysis.Source{{URI: "https://a.example", Title: "A"}},
		OriginalContent: "content for " + summary,
		OriginalType:    analysis.KindText,
		TransparencyReport: &analysis.TransparencyReport{
			Process:     []string{"step"},
			Limitations: []string{"limit"},
			Disclaimer:  "verify",
		},
	}
}

func TestRoundTripSetsFromCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemoryStore(), MaxSize)

	want := result("r1")
	require.NoError(t, c.Put(ctx, "k1", want))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.True(t, got.FromCache)

	got.FromCache = false
	assert.Equal(t, want, got)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemoryStore(), MaxSize)
	require.NoError(t, c.Put(ctx, "k1", result("r1")))

	first, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	first.Summary = "mutated"
	first.Insights[0] = analysis.TextInsight("mutated")

	second, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "r1", second.Summary)
	assert.Equal(t, "plain", second.Insights[0].String())
}

func TestMissDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := newTestCache(t, store, MaxSize)

	_, ok := c.Get(ctx, "absent")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCapacityBound(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemoryStore(), MaxSize)

	extra := 3
	for i := 0; i < MaxSize+extra; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("k%d", i), result(fmt.Sprintf("r%d", i))))
	}

	assert.Equal(t, MaxSize, c.Len())
	for i := 0; i < extra; i++ {
		assert.False(t, c.Contains(fmt.Sprintf("k%d", i)), "k%d should be evicted", i)
	}
	for i := extra; i < MaxSize+extra; i++ {
		assert.True(t, c.Contains(fmt.Sprintf("k%d", i)), "k%d should remain", i)
	}
	assert.Equal(t, int64(extra), c.Stats().Evictions)
}

func TestReadRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemoryStore(), 2)

	require.NoError(t, c.Put(ctx, "A", result("A")))
	require.NoError(t, c.Put(ctx, "B", result("B")))
	require.NoError(t, c.Put(ctx, "C", result("C")))
	assert.Equal(t, []string{"C", "B"}, c.Keys())

	_, ok := c.Get(ctx, "B")
	require.True(t, ok)
	assert.Equal(t, []string{"B", "C"}, c.Keys())

	require.NoError(t, c.Put(ctx, "D", result("D")))
	assert.True(t, c.Contains("B"))
	assert.False(t, c.Contains("C"))
	assert.Equal(t, []string{"D", "B"}, c.Keys())
}

func TestPutExistingKeyOverwritesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, kvstore.NewMemoryStore(), 2)

	require.NoError(t, c.Put(ctx, "A", result("old")))
	require.NoError(t, c.Put(ctx, "B", result("B")))
	require.NoError(t, c.Put(ctx, "A", result("new")))

	assert.Equal(t, []string{"A", "B"}, c.Keys())
	got, ok := c.Get(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, "new", got.Summary)
	assert.Equal(t, int64(0), c.Stats().Evictions)
}

func TestPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	c := newTestCache(t, store, 3)
	require.NoError(t, c.Put(ctx, "A", result("A")))
	require.NoError(t, c.Put(ctx, "B", result("B")))
	require.NoError(t, c.Put(ctx, "C", result("C")))
	_, _ = c.Get(ctx, "A")

	restored := newTestCache(t, store, 3)
	assert.Equal(t, []string{"A", "C", "B"}, restored.Keys())

	got, ok := restored.Get(ctx, "B")
	require.True(t, ok)
	assert.Equal(t, "B", got.Summary)
	assert.True(t, got.FromCache)
}

func TestFromCacheNeverPersisted(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := newTestCache(t, store, MaxSize)

	r := result("r")
	r.FromCache = true
	require.NoError(t, c.Put(ctx, "k", r))
	_, _ = c.Get(ctx, "k")

	data, ok, err := store.GetString(ctx, DefaultKeyPrefix+"cache_data")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, strings.Contains(data, "isFromCache"))
}

func TestRecencyListPersistedMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := newTestCache(t, store, MaxSize)

	require.NoError(t, c.Put(ctx, "A", result("A")))
	require.NoError(t, c.Put(ctx, "B", result("B")))

	list, ok, err := store.GetString(ctx, DefaultKeyPrefix+"cache_lru")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["B","A"]`, list)
}

func TestCorruptStoreFailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt data", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_data", "{not json"))
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_lru", `["x"]`))

		c := newTestCache(t, store, MaxSize)
		assert.Equal(t, 0, c.Len())
		_, ok := c.Get(ctx, "x")
		assert.False(t, ok)

		require.NoError(t, c.Put(ctx, "y", result("y")))
		_, ok = c.Get(ctx, "y")
		assert.True(t, ok)
	})

	t.Run("corrupt recency list", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_data", `{"x":{"riskLevel":"LOW"}}`))
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_lru", `42`))

		c := newTestCache(t, store, MaxSize)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("undecodable entry", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_data", `{"x":{"summary":17}}`))
		require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_lru", `["x"]`))

		c := newTestCache(t, store, MaxSize)
		_, ok := c.Get(ctx, "x")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})
}

func TestReconcileMismatchedRecords(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_data",
		`{"a":{"summary":"a"},"b":{"summary":"b"},"c":{"summary":"c"}}`))
	require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_lru", `["c","ghost","a","c"]`))

	c := newTestCache(t, store, MaxSize)
	assert.Equal(t, []string{"c", "a", "b"}, c.Keys())
}

func TestRestoreTruncatesToCapacity(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_data",
		`{"a":{"summary":"a"},"b":{"summary":"b"},"c":{"summary":"c"}}`))
	require.NoError(t, store.SetString(ctx, DefaultKeyPrefix+"cache_lru", `["b","c","a"]`))

	c := newTestCache(t, store, 2)
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := newTestCache(t, store, MaxSize)
	require.NoError(t, c.Put(ctx, "k", result("k")))

	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, store.Len())
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
