// Package docstore persists strategy and exclusion documents as JSON objects
// under string keys. Backends (S3, Postgres, SQLite, memory) implement
// ObjectStore; Store adds envelope handling, summaries and concurrent list
// hydration on top.
package docstore

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ultradar/internal/metrics"
)

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key          string
	ETag         string
	LastModified time.Time
	Size         int64
}

// RawObject is a stored object with its body.
type RawObject struct {
	ObjectInfo
	Body []byte
}

// ObjectStore is the minimal key/value surface every backend provides.
type ObjectStore interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Bucket is the bucket or database the objects live in.
	Bucket() string
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (*RawObject, error)
	// Put stores body under key. A non-empty ifMatch makes the write
	// conditional on the current ETag, failing with *ConflictError.
	Put(ctx context.Context, key string, body []byte, ifMatch string) (etag string, err error)
}

// Entry is one listed document.
type Entry struct {
	Key          string          `json:"key"`
	Summary      *Summary        `json:"summary,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	LastModified time.Time       `json:"last_modified"`
	ETag         string          `json:"etag"`
	Size         int64           `json:"size"`
}

// Object is one fetched document.
type Object struct {
	Bucket       string          `json:"bucket"`
	Key          string          `json:"key"`
	ETag         string          `json:"etag"`
	LastModified time.Time       `json:"last_modified"`
	Payload      json.RawMessage `json:"payload"`
}

// Locator is where a put landed.
type Locator struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	ETag   string `json:"etag"`
}

// Store wraps an ObjectStore with document semantics.
type Store struct {
	backend     ObjectStore
	conditional bool
	concurrency int
	metrics     *metrics.Registry
}

// Option configures a Store.
type Option func(*Store)

// WithConditionalPut makes Put reject stale previous ETags.
func WithConditionalPut(on bool) Option { return func(s *Store) { s.conditional = on } }

// WithConcurrency bounds parallel fetches during List.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Registry) Option { return func(s *Store) { s.metrics = m } }

// New wraps backend.
func New(backend ObjectStore, opts ...Option) *Store {
	s := &Store{backend: backend, concurrency: 8}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend returns the wrapped ObjectStore.
func (s *Store) Backend() ObjectStore { return s.backend }

// List returns every document under prefix, sorted by key. With summary set
// each entry carries a Summary, otherwise the unwrapped payload. Either way
// bodies are fetched, at most Concurrency at a time.
func (s *Store) List(ctx context.Context, prefix string, summary bool) ([]Entry, error) {
	infos, err := s.backend.List(ctx, prefix)
	s.metrics.DocStoreOp(s.backend.Name(), "list", err)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: list %s", prefix)
	}

	infos = documents(infos)
	entries := make([]Entry, len(infos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, info := range infos {
		g.Go(func() error {
			obj, err := s.backend.Get(gctx, info.Key)
			s.metrics.DocStoreOp(s.backend.Name(), "get", err)
			if err != nil {
				return eris.Wrapf(err, "docstore: hydrate %s", info.Key)
			}
			e := Entry{Key: info.Key, LastModified: info.LastModified, ETag: info.ETag, Size: info.Size}
			payload, err := UnwrapEnvelope(obj.Body)
			if err != nil {
				zap.L().Warn("docstore: skipping unreadable payload",
					zap.String("key", info.Key), zap.Error(err))
				payload = nil
			}
			if summary {
				sum := Summarize(info.Key, payload, info.Size)
				e.Summary = &sum
			} else {
				e.Payload = payload
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get fetches one document and unwraps its envelope.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	raw, err := s.backend.Get(ctx, key)
	s.metrics.DocStoreOp(s.backend.Name(), "get", err)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: get %s", key)
	}
	payload, err := UnwrapEnvelope(raw.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: get %s", key)
	}
	return &Object{
		Bucket:       s.backend.Bucket(),
		Key:          key,
		ETag:         raw.ETag,
		LastModified: raw.LastModified,
		Payload:      payload,
	}, nil
}

// Put stores doc under key. doc may be raw JSON bytes or any value that
// marshals to a JSON object. previousETag is only enforced when the store
// was built WithConditionalPut; otherwise the last writer wins.
func (s *Store) Put(ctx context.Context, key string, doc any, previousETag string) (*Locator, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	var body []byte
	switch v := doc.(type) {
	case json.RawMessage:
		body = v
	case []byte:
		body = v
	default:
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "docstore: marshal document")
		}
		body = b
	}
	if !json.Valid(body) {
		return nil, eris.New("docstore: document is not valid JSON")
	}

	ifMatch := ""
	if s.conditional {
		ifMatch = previousETag
	}
	etag, err := s.backend.Put(ctx, key, body, ifMatch)
	s.metrics.DocStoreOp(s.backend.Name(), "put", err)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: put %s", key)
	}
	zap.L().Info("docstore: stored document",
		zap.String("backend", s.backend.Name()),
		zap.String("key", key),
		zap.String("etag", etag),
		zap.Int("bytes", len(body)),
	)
	return &Locator{Bucket: s.backend.Bucket(), Key: key, ETag: etag}, nil
}

// DocumentKey joins prefix and id into "<prefix><id>.json".
func DocumentKey(prefix, id string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + id + ".json"
}

// CheckKey rejects keys that are empty or escape their prefix.
func CheckKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrNoObjectKey
	}
	if strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.Contains(key, "..") {
		return eris.Errorf("docstore: invalid key %q", key)
	}
	return nil
}

// documents drops folder markers and sorts by key.
func documents(infos []ObjectInfo) []ObjectInfo {
	out := make([]ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if info.Key == "" || strings.HasSuffix(info.Key, "/") {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
