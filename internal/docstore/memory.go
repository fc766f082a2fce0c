package docstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process ObjectStore.
type Memory struct {
	bucket string
	now    func() time.Time

	mu      sync.RWMutex
	objects map[string]RawObject
}

// NewMemory returns an empty in-memory store named bucket.
func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, now: time.Now, objects: make(map[string]RawObject)}
}

func (m *Memory) Name() string   { return "memory" }
func (m *Memory) Bucket() string { return m.bucket }

func (m *Memory) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o.ObjectInfo)
		}
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, key string) (*RawObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[key]
	if !ok {
		return nil, notFound("get", key)
	}
	o.Body = append([]byte(nil), o.Body...)
	return &o, nil
}

func (m *Memory) Put(_ context.Context, key string, body []byte, ifMatch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ifMatch != "" {
		cur, ok := m.objects[key]
		if !ok || cur.ETag != ifMatch {
			return "", &ConflictError{Key: key, Expected: ifMatch}
		}
	}
	etag := ETag(body)
	m.objects[key] = RawObject{
		ObjectInfo: ObjectInfo{Key: key, ETag: etag, LastModified: m.now().UTC(), Size: int64(len(body))},
		Body:       append([]byte(nil), body...),
	}
	return etag, nil
}
