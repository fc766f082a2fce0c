package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/metrics"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seeded(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(NewMemory("docs"), opts...)
	ctx := context.Background()
	_, err := s.Put(ctx, "strategies/b.json", map[string]any{"name": "B", "version": 2}, "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "strategies/a.json", json.RawMessage(`{"payload":{"name":"A","version":1}}`), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "exclusions/x.json", []byte(`{"exclusion_id":"x"}`), "")
	require.NoError(t, err)
	return s
}

func TestStore_ListPayloads(t *testing.T) {
	s := seeded(t)

	entries, err := s.List(context.Background(), "strategies/", false)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "strategies/a.json", entries[0].Key)
	assert.JSONEq(t, `{"name":"A","version":1}`, string(entries[0].Payload))
	assert.Nil(t, entries[0].Summary)
	assert.NotEmpty(t, entries[0].ETag)
	assert.Equal(t, "strategies/b.json", entries[1].Key)
}

func TestStore_ListSummaries(t *testing.T) {
	s := seeded(t)

	entries, err := s.List(context.Background(), "strategies/", true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[1].Summary)
	assert.Equal(t, "B", entries[1].Summary.Name)
	assert.Nil(t, entries[1].Payload)
}

func TestStore_ListEmptyPrefix(t *testing.T) {
	s := seeded(t)
	entries, err := s.List(context.Background(), "nothing/", true)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestStore_GetUnwraps(t *testing.T) {
	s := seeded(t)

	obj, err := s.Get(context.Background(), "strategies/a.json")
	require.NoError(t, err)
	assert.Equal(t, "docs", obj.Bucket)
	assert.JSONEq(t, `{"name":"A","version":1}`, string(obj.Payload))
	assert.Equal(t, ETag([]byte(`{"payload":{"name":"A","version":1}}`)), obj.ETag)
}

func TestStore_GetMissing(t *testing.T) {
	s := seeded(t)

	_, err := s.Get(context.Background(), "strategies/zzz.json")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())
}

func TestStore_PutLastWriterWins(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	loc, err := s.Put(ctx, "strategies/a.json", map[string]any{"name": "A2"}, `"stale"`)
	require.NoError(t, err)
	assert.Equal(t, "docs", loc.Bucket)

	obj, err := s.Get(ctx, "strategies/a.json")
	require.NoError(t, err)
	assert.Equal(t, loc.ETag, obj.ETag)
}

func TestStore_ConditionalPut(t *testing.T) {
	m := metrics.New()
	s := seeded(t, WithConditionalPut(true), WithMetrics(m))
	ctx := context.Background()

	obj, err := s.Get(ctx, "strategies/b.json")
	require.NoError(t, err)

	_, err = s.Put(ctx, "strategies/b.json", map[string]any{"name": "B", "version": 3}, obj.ETag)
	require.NoError(t, err)

	_, err = s.Put(ctx, "strategies/b.json", map[string]any{"name": "B", "version": 3}, obj.ETag)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "strategies/b.json", ce.Key)

	// no previous etag means create
	_, err = s.Put(ctx, "strategies/c.json", map[string]any{"name": "C"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocStoreOps.WithLabelValues("memory", "put", "error")))
}

func TestStore_PutRejects(t *testing.T) {
	s := New(NewMemory("docs"))
	ctx := context.Background()

	_, err := s.Put(ctx, "", map[string]any{}, "")
	assert.ErrorIs(t, err, ErrNoObjectKey)

	_, err = s.Put(ctx, "../etc/passwd", map[string]any{}, "")
	assert.Error(t, err)

	_, err = s.Put(ctx, "strategies/x.json", []byte(`{not json`), "")
	assert.Error(t, err)

	_, err = s.Put(ctx, "strategies/x.json", func() {}, "")
	assert.Error(t, err)
}

type failingBackend struct {
	*Memory
	failKey string
}

func (f failingBackend) Get(ctx context.Context, key string) (*RawObject, error) {
	if key == f.failKey {
		return nil, &StorageError{Op: "get", Key: key, Status: 503, Err: errors.New("unavailable")}
	}
	return f.Memory.Get(ctx, key)
}

func TestStore_ListHydrationFailure(t *testing.T) {
	mem := NewMemory("docs")
	for _, k := range []string{"s/a.json", "s/b.json", "s/c.json"} {
		_, err := mem.Put(context.Background(), k, []byte(`{}`), "")
		require.NoError(t, err)
	}
	s := New(failingBackend{Memory: mem, failKey: "s/b.json"}, WithConcurrency(2))

	_, err := s.List(context.Background(), "s/", false)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Status)
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "strategies/abc.json", DocumentKey("strategies/", "abc"))
	assert.Equal(t, "strategies/abc.json", DocumentKey("strategies", "abc"))
	assert.Equal(t, "abc.json", DocumentKey("", "abc"))
}

func TestETag(t *testing.T) {
	assert.Equal(t, `"d41d8cd98f00b204e9800998ecf8427e"`, ETag(nil))
}

func TestStorageErrorMessage(t *testing.T) {
	err := &StorageError{Op: "get", Key: "k", Status: 403, Err: errors.New("denied")}
	assert.Equal(t, "docstore: get k: status 403: denied", err.Error())
}
