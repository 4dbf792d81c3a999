package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nounverb/nvdb/pkg/nverrors"
)

// MemoryAdapter is an in-process map-backed Adapter. Writes are immediate;
// nothing survives process exit.
type MemoryAdapter struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{data: make(map[string][]byte)}
}

func (m *MemoryAdapter) Kind() Kind { return KindMemory }

func (m *MemoryAdapter) Init(ctx context.Context) error { return nil }

func (m *MemoryAdapter) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, nverrors.New("get", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nverrors.New("get", nverrors.KindNotFound, nverrors.ErrNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryAdapter) Put(ctx context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nverrors.New("put", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.data[key] = cp
	return nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nverrors.New("delete", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryAdapter) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ListResult{}, nverrors.New("list", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		idx := sort.SearchStrings(keys, cursor)
		if idx < len(keys) && keys[idx] == cursor {
			idx++
		}
		start = idx
	}
	if start > len(keys) {
		start = len(keys)
	}

	end := len(keys)
	nextCursor := ""
	if limit > 0 && start+limit < len(keys) {
		end = start + limit
		nextCursor = keys[end-1]
	}

	return ListResult{Keys: append([]string{}, keys[start:end]...), Cursor: nextCursor}, nil
}

func (m *MemoryAdapter) GetVerbs(ctx context.Context, filter VerbFilter) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, nverrors.New("getVerbs", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, "verb:") {
			out[k] = v
		}
	}
	return out, nil
}
