package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/nounverb/nvdb/pkg/nverrors"
)

// FileAdapter persists each key as a file under root, using atomic
// temp-file+rename writes (spec §4.A) verified by an 8-byte xxhash64
// checksum trailer appended to the same file, so a torn write is detectable on the next Get rather than served
// as silently-corrupt data.
type FileAdapter struct {
	root   string
	mu     sync.RWMutex
	closed bool
}

// NewFileAdapter opens (creating if necessary) a filesystem-backed adapter
// rooted at dir.
func NewFileAdapter(dir string) *FileAdapter {
	return &FileAdapter{root: dir}
}

func (f *FileAdapter) Kind() Kind { return KindFilesystem }

// Root returns the backing directory, so callers that need filesystem-level
// capabilities unavailable through the Adapter interface (e.g. vfs.Watch's
// fsnotify wiring) can reach it without a type assertion on internals.
func (f *FileAdapter) Root() string { return f.root }

func (f *FileAdapter) Init(ctx context.Context) error {
	return os.MkdirAll(f.root, 0o755)
}

func (f *FileAdapter) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileAdapter) pathFor(key string) string {
	safe := strings.ReplaceAll(key, "/", "_")
	return filepath.Join(f.root, safe+".blob")
}

func (f *FileAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, nverrors.New("get", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	data, err := os.ReadFile(f.pathFor(key))
	if os.IsNotExist(err) {
		return nil, nverrors.New("get", nverrors.KindNotFound, nverrors.ErrNotFound)
	}
	if err != nil {
		return nil, nverrors.New("get", nverrors.KindTransientStorage, err)
	}
	if len(data) < 8 {
		return nil, nverrors.New("get", nverrors.KindFatalStorage, errCorrupt(key))
	}
	payload, sum := data[:len(data)-8], data[len(data)-8:]
	if !checksumMatches(payload, sum) {
		return nil, nverrors.New("get", nverrors.KindFatalStorage, errCorrupt(key))
	}
	return payload, nil
}

func (f *FileAdapter) Put(ctx context.Context, key string, val []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nverrors.New("put", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	path := f.pathFor(key)
	tmp := path + ".tmp"

	sum := xxhash.Sum64(val)
	buf := make([]byte, 0, len(val)+8)
	buf = append(buf, val...)
	buf = appendUint64(buf, sum)

	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return nverrors.New("put", nverrors.KindTransientStorage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nverrors.New("put", nverrors.KindTransientStorage, err)
	}
	return nil
}

func (f *FileAdapter) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nverrors.New("delete", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	err := os.Remove(f.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return nverrors.New("delete", nverrors.KindTransientStorage, err)
	}
	return nil
}

func (f *FileAdapter) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ListResult{}, nverrors.New("list", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return ListResult{}, nverrors.New("list", nverrors.KindTransientStorage, err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".blob") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".blob")
		if strings.HasPrefix(key, strings.ReplaceAll(prefix, "/", "_")) {
			keys = append(keys, key)
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

func (f *FileAdapter) GetVerbs(ctx context.Context, filter VerbFilter) (map[string][]byte, error) {
	res, err := f.List(ctx, "verb:", "", 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(res.Keys))
	for _, k := range res.Keys {
		v, err := f.Get(ctx, strings.ReplaceAll(k, "_", "/"))
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func checksumMatches(payload, sum []byte) bool {
	want := xxhash.Sum64(payload)
	got := readUint64(sum)
	return want == got
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func readUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

type corruptErr string

func (e corruptErr) Error() string { return "corrupt record: " + string(e) }

func errCorrupt(key string) error { return corruptErr(key) }
