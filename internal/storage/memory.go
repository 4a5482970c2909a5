package storage

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in process and serves them over HTTP. It backs
// single-node deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, key BlobKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.blobs[key.Path("")] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Fetch(ctx context.Context, key BlobKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := key.Path("")
	m.mu.RLock()
	data, ok := m.blobs[p]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: p}
	}
	return data, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// ServeHTTP serves GET requests whose path, with any mount prefix already
// stripped, is a blob path.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	m.mu.RLock()
	data, ok := m.blobs[strings.Trim(r.URL.Path, "/")]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}
