package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
)

// sstableMagic tags the file format so a foreign file fails fast instead of
// silently misparsing.
const sstableMagic = uint32(0x6e76_7373) // "nvss"

// SSTable is an immutable, sorted, on-disk run produced by flushing a
// MemTable. The whole body is snappy-compressed and xxhash64-checksummed;
// entries are loaded into memory lazily on first access and cached, which
// is adequate for the embeddable scale this module targets (spec §4.B
// leaves the exact on-disk layout implementation-defined).
type SSTable struct {
	path string
	seq  int64

	loaded  bool
	entries []entry
	index   map[string]int
}

// NewSSTable wraps an existing file path without loading it.
func NewSSTable(path string, seq int64) *SSTable {
	return &SSTable{path: path, seq: seq}
}

// Flush writes entries (already sorted by key) to path as a new SSTable.
func Flush(path string, seq int64, entries []entry) (*SSTable, error) {
	body := encodeEntries(entries)
	compressed := snappy.Encode(nil, body)
	checksum := xxhash.Sum64(compressed)

	header := make([]byte, 24)
	binary.LittleEndian.PutUint32(header[0:4], sstableMagic)
	binary.LittleEndian.PutUint64(header[4:12], checksum)
	binary.LittleEndian.PutUint64(header[12:20], uint64(len(body)))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(compressed)))

	out := make([]byte, 0, len(header)+len(compressed))
	out = append(out, header...)
	out = append(out, compressed...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return nil, fmt.Errorf("flush sstable: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("flush sstable rename: %w", err)
	}

	sst := &SSTable{path: path, seq: seq, loaded: true}
	sst.index = make(map[string]int, len(entries))
	sst.entries = entries
	for i, e := range entries {
		sst.index[e.key] = i
	}
	return sst, nil
}

func (s *SSTable) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read sstable %s: %w", s.path, err)
	}
	if len(data) < 24 {
		return fmt.Errorf("sstable %s: truncated header", s.path)
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != sstableMagic {
		return fmt.Errorf("sstable %s: bad magic", s.path)
	}
	checksum := binary.LittleEndian.Uint64(data[4:12])
	uncompressedLen := binary.LittleEndian.Uint64(data[12:20])
	compressedLen := binary.LittleEndian.Uint32(data[20:24])
	compressed := data[24 : 24+int(compressedLen)]
	if xxhash.Sum64(compressed) != checksum {
		return fmt.Errorf("sstable %s: checksum mismatch (corrupt)", s.path)
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return fmt.Errorf("sstable %s: decompress: %w", s.path, err)
	}
	if uint64(len(body)) != uncompressedLen {
		return fmt.Errorf("sstable %s: size mismatch after decompress", s.path)
	}
	entries, err := decodeEntries(body)
	if err != nil {
		return fmt.Errorf("sstable %s: decode: %w", s.path, err)
	}
	s.entries = entries
	s.index = make(map[string]int, len(entries))
	for i, e := range entries {
		s.index[e.key] = i
	}
	s.loaded = true
	return nil
}

// Get returns (value, tombstone, found, error).
func (s *SSTable) Get(key string) ([]byte, bool, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, false, false, err
	}
	i, ok := s.index[key]
	if !ok {
		return nil, false, false, nil
	}
	e := s.entries[i]
	return e.val, e.tombstone, true, nil
}

// List returns non-tombstoned keys with the given prefix, sorted.
func (s *SSTable) List(prefix string) ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	lo := sort.SearchStrings(sortedKeys(s.entries), prefix)
	_ = lo
	var out []string
	for _, e := range s.entries {
		if e.tombstone {
			continue
		}
		if len(e.key) >= len(prefix) && e.key[:len(prefix)] == prefix {
			out = append(out, e.key)
		}
	}
	return out, nil
}

func sortedKeys(entries []entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Entries exposes the sorted record set for compaction merges.
func (s *SSTable) Entries() ([]entry, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.entries, nil
}

func (s *SSTable) Seq() int64    { return s.seq }
func (s *SSTable) Path() string  { return s.path }
func (s *SSTable) Remove() error { return os.Remove(s.path) }

// encodeEntries serializes sorted entries as:
// [uint32 keyLen][key][uint8 tombstone][uint32 valLen][val]...
func encodeEntries(entries []entry) []byte {
	buf := make([]byte, 0, 64*len(entries))
	var tmp [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(e.key)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, e.key...)
		if e.tombstone {
			buf = append(buf, 1)
			binary.LittleEndian.PutUint32(tmp[:], 0)
			buf = append(buf, tmp[:]...)
		} else {
			buf = append(buf, 0)
			binary.LittleEndian.PutUint32(tmp[:], uint32(len(e.val)))
			buf = append(buf, tmp[:]...)
			buf = append(buf, e.val...)
		}
	}
	return buf
}

func decodeEntries(body []byte) ([]entry, error) {
	var out []entry
	pos := 0
	for pos < len(body) {
		if pos+4 > len(body) {
			return nil, fmt.Errorf("truncated key length at offset %d", pos)
		}
		keyLen := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if pos+keyLen > len(body) {
			return nil, fmt.Errorf("truncated key at offset %d", pos)
		}
		key := string(body[pos : pos+keyLen])
		pos += keyLen
		if pos+1 > len(body) {
			return nil, fmt.Errorf("truncated tombstone flag at offset %d", pos)
		}
		tomb := body[pos] == 1
		pos++
		if pos+4 > len(body) {
			return nil, fmt.Errorf("truncated value length at offset %d", pos)
		}
		valLen := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4
		var val []byte
		if !tomb {
			if pos+valLen > len(body) {
				return nil, fmt.Errorf("truncated value at offset %d", pos)
			}
			val = make([]byte, valLen)
			copy(val, body[pos:pos+valLen])
			pos += valLen
		}
		out = append(out, entry{key: key, val: val, tombstone: tomb})
	}
	return out, nil
}
