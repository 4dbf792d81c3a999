// Package storage implements the polymorphic key/blob Storage Adapter
// (spec §4.A): a small capability set that the LSM tree, blob store, and
// verb store all persist through, with adapter-kind-driven batching instead
// of the class-name sniffing the spec calls out as a past regression.
package storage

import "context"

// Kind tags which concrete adapter an instance is, driving write-batching
// policy explicitly rather than via type assertions or class-name strings
// (design note §9).
type Kind string

const (
	KindMemory     Kind = "memory"
	KindFilesystem Kind = "filesystem"
	KindGCS        Kind = "gcs"
	KindS3         Kind = "s3"
	KindR2         Kind = "r2"
	KindAzure      Kind = "azure"
)

// BatchPolicy describes how an adapter wants writes scheduled.
type BatchPolicy int

const (
	// Immediate writes synchronously, one Put per call (memory).
	Immediate BatchPolicy = iota
	// Batched coalesces writes and flushes asynchronously on a timer or
	// size threshold (filesystem, cloud object stores).
	Batched
)

// Policy returns the batching policy an adapter Kind should use. This is
// the single place that maps adapter identity to behavior, replacing the
// teacher corpus's class-name detection.
func (k Kind) Policy() BatchPolicy {
	switch k {
	case KindMemory:
		return Immediate
	default:
		return Batched
	}
}

func (k Kind) IsCloud() bool {
	switch k {
	case KindGCS, KindS3, KindR2, KindAzure:
		return true
	}
	return false
}

// ListResult is a single page of a prefix scan.
type ListResult struct {
	Keys   []string
	Cursor string // opaque; empty means no more pages
}

// VerbFilter narrows GetVerbs; all fields optional.
type VerbFilter struct {
	SourceID string
	TargetID string
	Type     string
	Limit    int
	Offset   int
}

// Adapter is the capability set every storage backend implements (spec
// §4.A): get/put/delete/list plus a verb-filter query used by the graph
// rebuild path, and an explicit lifecycle.
type Adapter interface {
	Kind() Kind
	Init(ctx context.Context) error
	Close(ctx context.Context) error

	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, cursor string, limit int) (ListResult, error)

	// GetVerbs scans all raw verb records; the adapters do not apply filter,
	// so callers filter the decoded verbs themselves. Entity/verb encoding
	// is owned by pkg/store; the adapter only deals in key/value bytes, so
	// this returns raw values keyed by their storage key.
	GetVerbs(ctx context.Context, filter VerbFilter) (map[string][]byte, error)
}
