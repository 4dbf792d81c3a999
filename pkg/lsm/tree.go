package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nounverb/nvdb/pkg/logging"
)

// compactionFanout is the size-tiered compaction trigger: once more than this
// many on-disk SSTables exist, the oldest fanout are merged into one (SPEC_FULL.md
// §10's open-question decision).
const compactionFanout = 4

// Tree is the MemTable/SSTable persistence engine described in spec §4.B.
// Get reads newest-first: active MemTable -> frozen MemTables -> on-disk
// SSTables (newest seq first). Close MUST flush every MemTable before
// returning; skipping that step is the "VFS restart" data-loss regression
// the spec calls out by name.
type Tree struct {
	dir string
	log logging.Logger

	mu       sync.RWMutex
	active   *MemTable
	frozen   []*MemTable
	tables   []*SSTable // newest seq first
	nextSeq  int64
	closed   bool
	memSize  int
}

// Open creates or reopens a Tree rooted at dir, scanning for existing
// segment-<seq>.sst files (spec §6 persisted state layout).
func Open(dir string, memtableBytes int, log logging.Logger) (*Tree, error) {
	if log == nil {
		log = logging.NoOp()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: mkdir %s: %w", dir, err)
	}
	t := &Tree{dir: dir, log: logging.Named(log, "lsm"), active: NewMemTable(memtableBytes), memSize: memtableBytes}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lsm: readdir %s: %w", dir, err)
	}
	var seqs []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var seq int64
		if _, err := fmt.Sscanf(e.Name(), "segment-%d.sst", &seq); err == nil {
			seqs = append(seqs, seq)
		}
	}
	sort.Sort(sort.Reverse(int64Slice(seqs)))
	for _, seq := range seqs {
		t.tables = append(t.tables, NewSSTable(filepath.Join(dir, fmt.Sprintf("segment-%d.sst", seq)), seq))
		if seq >= t.nextSeq {
			t.nextSeq = seq + 1
		}
	}
	return t, nil
}

type int64Slice []int64

func (s int64Slice) Len() int           { return len(s) }
func (s int64Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s int64Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Put writes key/val to the active MemTable, freezing and flushing it if it
// has grown past its size threshold.
func (t *Tree) Put(key string, val []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("lsm: put on closed tree")
	}
	t.active.Put(key, val)
	full := t.active.Full()
	t.mu.Unlock()
	if full {
		return t.rotate()
	}
	return nil
}

func (t *Tree) Delete(key string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("lsm: delete on closed tree")
	}
	t.active.Delete(key)
	t.mu.Unlock()
	return nil
}

// Get reads newest-first across the active MemTable, frozen MemTables, then
// on-disk SSTables. A tombstone hit short-circuits to "not found" even if
// an older SSTable still has a live value for the key.
func (t *Tree) Get(key string) ([]byte, bool, error) {
	t.mu.RLock()
	active := t.active
	frozen := append([]*MemTable{}, t.frozen...)
	tables := append([]*SSTable{}, t.tables...)
	t.mu.RUnlock()

	if val, tomb, found := active.Get(key); found {
		return val, !tomb, nil
	}
	for i := len(frozen) - 1; i >= 0; i-- {
		if val, tomb, found := frozen[i].Get(key); found {
			return val, !tomb, nil
		}
	}
	for _, sst := range tables {
		val, tomb, found, err := sst.Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			return val, !tomb, nil
		}
	}
	return nil, false, nil
}

// List merges keys with the given prefix across all levels, newest value
// winning and tombstones suppressing older matches.
func (t *Tree) List(prefix string) ([]string, error) {
	t.mu.RLock()
	active := t.active
	frozen := append([]*MemTable{}, t.frozen...)
	tables := append([]*SSTable{}, t.tables...)
	t.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range active.List(prefix) {
		add(k)
	}
	for i := len(frozen) - 1; i >= 0; i-- {
		for _, k := range frozen[i].List(prefix) {
			add(k)
		}
	}
	for _, sst := range tables {
		keys, err := sst.List(prefix)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			add(k)
		}
	}
	// Drop keys whose newest record (checked via Get, which already applies
	// newest-first/tombstone precedence) turns out deleted.
	filtered := out[:0]
	for _, k := range out {
		if _, ok, err := t.Get(k); err == nil && ok {
			filtered = append(filtered, k)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}

// rotate freezes the active MemTable and flushes it to a new SSTable,
// triggering compaction if the table count has grown past the fanout.
func (t *Tree) rotate() error {
	t.mu.Lock()
	toFreeze := t.active
	t.active = NewMemTable(t.memSize)
	t.frozen = append(t.frozen, toFreeze)
	seq := t.nextSeq
	t.nextSeq++
	t.mu.Unlock()

	return t.flushOne(toFreeze, seq)
}

func (t *Tree) flushOne(mt *MemTable, seq int64) error {
	if mt.Len() == 0 {
		t.mu.Lock()
		t.removeFrozen(mt)
		t.mu.Unlock()
		return nil
	}
	path := filepath.Join(t.dir, fmt.Sprintf("segment-%d.sst", seq))
	sst, err := Flush(path, seq, mt.Snapshot())
	if err != nil {
		return fmt.Errorf("lsm: flush: %w", err)
	}
	t.mu.Lock()
	t.tables = append([]*SSTable{sst}, t.tables...) // newest first
	t.removeFrozen(mt)
	tableCount := len(t.tables)
	t.mu.Unlock()
	t.log.Debugw("flushed memtable", "seq", seq, "entries", mt.Len())

	if tableCount > compactionFanout {
		return t.Compact()
	}
	return nil
}

func (t *Tree) removeFrozen(mt *MemTable) {
	for i, f := range t.frozen {
		if f == mt {
			t.frozen = append(t.frozen[:i], t.frozen[i+1:]...)
			return
		}
	}
}

// Compact merges the oldest compactionFanout SSTables into a single new
// one, dropping tombstones only when merging into the very oldest
// (bottom-level) generation, per spec §4.B ("tombstones propagate until a
// bottom-level merge").
func (t *Tree) Compact() error {
	t.mu.Lock()
	if len(t.tables) <= compactionFanout {
		t.mu.Unlock()
		return nil
	}
	// tables is newest-first; the oldest fanout are at the tail.
	victims := append([]*SSTable{}, t.tables[len(t.tables)-compactionFanout:]...)
	// The victims are the tail of tables, so they always include the oldest.
	isBottom := victims[len(victims)-1] == t.tables[len(t.tables)-1]
	t.mu.Unlock()

	merged := make(map[string]entry)
	var order []string
	// Victims are newest-first among themselves too, so iterate oldest to
	// newest so later writes overwrite earlier ones in the merge map.
	for i := len(victims) - 1; i >= 0; i-- {
		entries, err := victims[i].Entries()
		if err != nil {
			return fmt.Errorf("lsm: compact read: %w", err)
		}
		for _, e := range entries {
			if _, exists := merged[e.key]; !exists {
				order = append(order, e.key)
			}
			merged[e.key] = e
		}
	}
	sort.Strings(order)

	out := make([]entry, 0, len(order))
	for _, k := range order {
		e := merged[k]
		if e.tombstone && isBottom {
			continue
		}
		out = append(out, e)
	}

	// The merged table reuses the newest victim's seq so it still sorts
	// behind every kept (newer) table; Flush replaces that file in place.
	seq := victims[0].Seq()

	path := filepath.Join(t.dir, fmt.Sprintf("segment-%d.sst", seq))
	newSST, err := Flush(path, seq, out)
	if err != nil {
		return fmt.Errorf("lsm: compact flush: %w", err)
	}

	t.mu.Lock()
	kept := t.tables[:len(t.tables)-len(victims)]
	t.tables = append(append([]*SSTable{}, kept...), newSST)
	sort.Slice(t.tables, func(i, j int) bool { return t.tables[i].Seq() > t.tables[j].Seq() })
	t.mu.Unlock()

	for _, v := range victims[1:] {
		_ = v.Remove()
	}
	t.log.Debugw("compacted sstables", "merged", len(victims), "into_seq", seq, "bottom", isBottom)
	return nil
}

// Flush is an idempotent, concurrency-safe forced flush of the current
// active MemTable (and any already-frozen ones) to disk, without closing
// the tree.
func (t *Tree) Flush() error {
	t.mu.Lock()
	if t.active.Len() == 0 && len(t.frozen) == 0 {
		t.mu.Unlock()
		return nil
	}
	toFreeze := t.active
	t.active = NewMemTable(t.memSize)
	t.frozen = append(t.frozen, toFreeze)
	seq := t.nextSeq
	t.nextSeq++
	pending := append([]*MemTable{}, t.frozen...)
	t.mu.Unlock()

	for _, mt := range pending {
		s := seq
		if mt != toFreeze {
			t.mu.Lock()
			s = t.nextSeq
			t.nextSeq++
			t.mu.Unlock()
		}
		if err := t.flushOne(mt, s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes every MemTable to an SSTable and marks the tree closed.
// This is the critical contract from spec §4.B: failing to flush here is
// the data-loss bug a restart test must catch.
func (t *Tree) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Stats reports table counts for diagnostics/tests.
func (t *Tree) Stats() (activeEntries, frozenTables, sstables int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active.Len(), len(t.frozen), len(t.tables)
}
