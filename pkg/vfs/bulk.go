package vfs

import (
	"context"
	"strings"

	"github.com/sourcegraph/conc/pool"
)

// OpKind enumerates BulkWrite's operation types.
type OpKind string

const (
	OpWrite  OpKind = "write"
	OpMkdir  OpKind = "mkdir"
	OpUnlink OpKind = "unlink"
	OpRmdir  OpKind = "rmdir"
	OpRename OpKind = "rename"
	OpCopy   OpKind = "copy"
)

// Op is one BulkWrite operation.
type Op struct {
	Kind      OpKind
	Path      string
	Dest      string // Rename/Copy destination
	Data      []byte // Write payload
	Recursive bool   // Mkdir
}

// OpResult is BulkWrite's per-operation outcome.
type OpResult struct {
	Index int
	Err   error
}

// bulkMaxGoroutines bounds the non-mkdir phase's concurrency, mirroring
// Store's AddMany/UpdateMany batch pools.
const bulkMaxGoroutines = 8

// BulkWrite applies ops in two phases: mkdirs first, sorted shallowest-
// depth-first and run sequentially (closing the mkdir race window spec §9
// names), then every remaining op concurrently through a bounded pool.
// Mkdirs are idempotent under Recursive, so replaying the same bulk twice
// produces the same tree (spec §8's round-trip property).
func (v *VFS) BulkWrite(ctx context.Context, ops []Op) []OpResult {
	results := make([]OpResult, len(ops))

	var mkdirIdx, restIdx []int
	for i, op := range ops {
		if op.Kind == OpMkdir {
			mkdirIdx = append(mkdirIdx, i)
		} else {
			restIdx = append(restIdx, i)
		}
	}

	sortByDepthAscending(mkdirIdx, ops)
	for _, i := range mkdirIdx {
		results[i] = OpResult{Index: i, Err: v.applyOp(ctx, ops[i])}
	}

	if len(restIdx) > 0 {
		p := pool.New().WithMaxGoroutines(bulkMaxGoroutines)
		for _, i := range restIdx {
			i := i
			p.Go(func() {
				results[i] = OpResult{Index: i, Err: v.applyOp(ctx, ops[i])}
			})
		}
		p.Wait()
	}
	return results
}

func sortByDepthAscending(idx []int, ops []Op) {
	depth := func(i int) int { return strings.Count(cleanPath(ops[i].Path), "/") }
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && depth(idx[j]) < depth(idx[j-1]); j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
}

func (v *VFS) applyOp(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpMkdir:
		return v.Mkdir(ctx, op.Path, MkdirOpts{Recursive: op.Recursive})
	case OpWrite:
		return v.WriteFile(ctx, op.Path, op.Data, WriteOpts{})
	case OpUnlink:
		return v.Unlink(ctx, op.Path)
	case OpRmdir:
		return v.Rmdir(ctx, op.Path)
	case OpRename:
		return v.Rename(ctx, op.Path, op.Dest)
	case OpCopy:
		return v.Copy(ctx, op.Path, op.Dest)
	default:
		return nil
	}
}
