package model

import "github.com/nounverb/nvdb/pkg/value"

// Entity is a stored record with a type, metadata tree, and embedding
// vector (spec §3, "noun").
type Entity struct {
	ID        string                 `json:"id"`
	Type      NounType               `json:"type"`
	Vector    []float32              `json:"vector,omitempty"`
	Metadata  map[string]value.Value `json:"metadata,omitempty"`
	Service   string                 `json:"service,omitempty"`
	CreatedAt int64                  `json:"createdAt"`
	UpdatedAt int64                  `json:"updatedAt"`
	Deleted   bool                   `json:"-"`
}

// Verb is a directed typed relationship between two entities (spec §3).
type Verb struct {
	ID            string                 `json:"id"`
	SourceID      string                 `json:"sourceId"`
	TargetID      string                 `json:"targetId"`
	Type          VerbType               `json:"type"`
	Metadata      map[string]value.Value `json:"metadata,omitempty"`
	Bidirectional bool                   `json:"bidirectional,omitempty"`
	CreatedAt     int64                  `json:"createdAt"`
}

// MetadataValue returns the metadata tree as a single value.Value map,
// convenient for dot-path Get/Merge operations.
func (e *Entity) MetadataValue() value.Value {
	return value.Map(e.Metadata)
}

// EdgeKey uniquely identifies a verb by its (source, target, type) triple,
// the invariant spec §3 keys idempotent relate() on.
type EdgeKey struct {
	SourceID string
	TargetID string
	Type     VerbType
}

func (v *Verb) Key() EdgeKey {
	return EdgeKey{SourceID: v.SourceID, TargetID: v.TargetID, Type: v.Type}
}
