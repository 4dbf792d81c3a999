package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nounverb/nvdb/pkg/lsm"
	"github.com/nounverb/nvdb/pkg/nverrors"
)

// LSMAdapter is the filesystem/object-store-backed Adapter implementation:
// it owns an *lsm.Tree instead of writing one flat file per key, giving the
// filesystem and cloud backends the MemTable/SSTable write path spec §4.B
// calls for rather than FileAdapter's simpler atomic-rename-per-key scheme.
// FileAdapter is kept for the simplest local embedding (no compaction, no
// LSM machinery); LSMAdapter is what a production deployment should pick.
type LSMAdapter struct {
	kind Kind
	tree *lsm.Tree

	mu     sync.Mutex
	closed bool
}

// NewLSMAdapter wraps an already-open lsm.Tree as a storage.Adapter of the
// given kind (KindFilesystem or a cloud kind backed by local staging).
func NewLSMAdapter(kind Kind, tree *lsm.Tree) *LSMAdapter {
	return &LSMAdapter{kind: kind, tree: tree}
}

func (l *LSMAdapter) Kind() Kind { return l.kind }

func (l *LSMAdapter) Init(ctx context.Context) error { return nil }

func (l *LSMAdapter) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.tree.Close()
}

func (l *LSMAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok, err := l.tree.Get(key)
	if err != nil {
		return nil, nverrors.New("get", nverrors.KindFatalStorage, err)
	}
	if !ok {
		return nil, nverrors.New("get", nverrors.KindNotFound, nverrors.ErrNotFound)
	}
	return val, nil
}

func (l *LSMAdapter) Put(ctx context.Context, key string, val []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nverrors.New("put", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	if err := l.tree.Put(key, val); err != nil {
		return nverrors.New("put", nverrors.KindTransientStorage, err)
	}
	return nil
}

func (l *LSMAdapter) Delete(ctx context.Context, key string) error {
	if err := l.tree.Delete(key); err != nil {
		return nverrors.New("delete", nverrors.KindTransientStorage, err)
	}
	return nil
}

func (l *LSMAdapter) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	keys, err := l.tree.List(prefix)
	if err != nil {
		return ListResult{}, nverrors.New("list", nverrors.KindFatalStorage, err)
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

func (l *LSMAdapter) GetVerbs(ctx context.Context, filter VerbFilter) (map[string][]byte, error) {
	res, err := l.List(ctx, "verb:", "", 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(res.Keys))
	for _, k := range res.Keys {
		v, err := l.Get(ctx, k)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(k, "verb:") {
			continue
		}
		out[k] = v
	}
	return out, nil
}
