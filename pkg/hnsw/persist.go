package hnsw

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/nounverb/nvdb/pkg/lsm"
)

const (
	nodeKeyPrefix = "hnsw:node:"
	metaKey       = "hnsw:meta"
)

// SaveTo persists every node plus index parameters into tree, one LSM key
// per node (hnsw:node:<id>) and a single meta record. Generalizes the
// teacher's single-blob gob Save into incremental keys so a snapshot can
// reuse the LSM's own block persistence instead of a bespoke file format.
func (idx *Index) SaveTo(tree *lsm.Tree) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	meta := encodeMeta(idx.M, idx.EfConstruction, idx.EntryPoint)
	if err := tree.Put(metaKey, meta); err != nil {
		return fmt.Errorf("hnsw: save meta: %w", err)
	}
	for id, node := range idx.Nodes {
		if err := tree.Put(nodeKeyPrefix+id, encodeNode(node)); err != nil {
			return fmt.Errorf("hnsw: save node %s: %w", id, err)
		}
	}
	return nil
}

// LoadFrom rebuilds an Index from a tree previously populated by SaveTo.
// distFunc must match what was used at save time since it is not itself
// persisted (it isn't data, it's policy — spec's plugin registry supplies
// it at construction).
func LoadFrom(tree *lsm.Tree, distFunc DistanceFunc) (*Index, error) {
	meta, ok, err := tree.Get(metaKey)
	if err != nil {
		return nil, fmt.Errorf("hnsw: load meta: %w", err)
	}
	idx := New(16, 200, distFunc)
	if ok {
		m, ef, entry, decErr := decodeMeta(meta)
		if decErr != nil {
			return nil, fmt.Errorf("hnsw: decode meta: %w", decErr)
		}
		idx.M, idx.MaxM, idx.EfConstruction, idx.EntryPoint = m, m*2, ef, entry
	}

	keys, err := tree.List(nodeKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("hnsw: list nodes: %w", err)
	}
	for _, key := range keys {
		raw, ok, err := tree.Get(key)
		if err != nil {
			return nil, fmt.Errorf("hnsw: get node %s: %w", key, err)
		}
		if !ok {
			continue
		}
		node, err := decodeNode(raw)
		if err != nil {
			return nil, fmt.Errorf("hnsw: decode node %s: %w", key, err)
		}
		idx.Nodes[node.ID] = node
	}
	return idx, nil
}

func encodeMeta(m, ef int, entryPoint string) []byte {
	buf := make([]byte, 0, 16+len(entryPoint))
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(m))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(ef))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(entryPoint)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, entryPoint...)
	return buf
}

func decodeMeta(buf []byte) (m, ef int, entryPoint string, err error) {
	if len(buf) < 12 {
		return 0, 0, "", fmt.Errorf("truncated meta record")
	}
	m = int(binary.LittleEndian.Uint32(buf[0:4]))
	ef = int(binary.LittleEndian.Uint32(buf[4:8]))
	n := int(binary.LittleEndian.Uint32(buf[8:12]))
	if len(buf) < 12+n {
		return 0, 0, "", fmt.Errorf("truncated meta entry point")
	}
	entryPoint = string(buf[12 : 12+n])
	return m, ef, entryPoint, nil
}

// encodeNode serializes a Node as:
// [u32 idLen][id][u8 deleted][u32 vecLen][f32...][u32 quantLen][bytes]
// [u32 levelsCount]{[u32 neighborCount]{[u32 idLen][id]}...}...
func encodeNode(n *Node) []byte {
	var tmp [4]byte
	buf := make([]byte, 0, 128)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(n.ID)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, n.ID...)

	if n.Deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(n.Vector)))
	buf = append(buf, tmp[:]...)
	for _, f := range n.Vector {
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(f))
		buf = append(buf, tmp[:]...)
	}

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(n.Quantized)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, n.Quantized...)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(n.Neighbors)))
	buf = append(buf, tmp[:]...)
	for _, level := range n.Neighbors {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(level)))
		buf = append(buf, tmp[:]...)
		for _, id := range level {
			binary.LittleEndian.PutUint32(tmp[:], uint32(len(id)))
			buf = append(buf, tmp[:]...)
			buf = append(buf, id...)
		}
	}
	return buf
}

func decodeNode(buf []byte) (*Node, error) {
	r := &reader{buf: buf}

	idLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	id, err := r.bytes(int(idLen))
	if err != nil {
		return nil, err
	}
	deletedByte, err := r.u8()
	if err != nil {
		return nil, err
	}

	vecLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	var vector []float32
	if vecLen > 0 {
		vector = make([]float32, vecLen)
		for i := range vector {
			bits, err := r.u32()
			if err != nil {
				return nil, err
			}
			vector[i] = math.Float32frombits(bits)
		}
	}

	quantLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	var quantized []byte
	if quantLen > 0 {
		quantized, err = r.bytes(int(quantLen))
		if err != nil {
			return nil, err
		}
	}

	levelCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	neighbors := make([][]string, levelCount)
	for i := range neighbors {
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		level := make([]string, count)
		for j := range level {
			nLen, err := r.u32()
			if err != nil {
				return nil, err
			}
			idBytes, err := r.bytes(int(nLen))
			if err != nil {
				return nil, err
			}
			level[j] = string(idBytes)
		}
		neighbors[i] = level
	}

	return &Node{
		ID:        string(id),
		Vector:    vector,
		Quantized: quantized,
		Level:     len(neighbors) - 1,
		Neighbors: neighbors,
		Deleted:   deletedByte == 1,
	}, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("truncated uint32 at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) u8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("truncated uint8 at offset %d", r.pos)
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("truncated %d bytes at offset %d", n, r.pos)
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// IDFromNodeKey strips the LSM key prefix, for callers iterating raw
// tree.List results directly.
func IDFromNodeKey(key string) string {
	return strings.TrimPrefix(key, nodeKeyPrefix)
}
