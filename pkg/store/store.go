// Package store implements the Entity & Verb Store (spec §4.D): durable
// typed records with metadata and vectors, wired straight into the HNSW
// index, graph adjacency, and type/field counters on every write, the way
// the teacher's sqvect.DB wires its core.SQLiteStore and graph.GraphStore
// together behind one facade (_examples/liliang-cn-sqvect/pkg/sqvect/sqvect.go).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/nounverb/nvdb/pkg/embedding"
	"github.com/nounverb/nvdb/pkg/graph"
	"github.com/nounverb/nvdb/pkg/hnsw"
	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/metaindex"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/nverrors"
	"github.com/nounverb/nvdb/pkg/storage"
	"github.com/nounverb/nvdb/pkg/value"
)

const (
	entityKeyPrefix = "entity:"
	verbKeyPrefix   = "verb:"

	// maxBatchGoroutines bounds per-item concurrency in AddMany/UpdateMany/
	// DeleteMany/RelateMany, the way a bounded conc.Pool would in the
	// teacher's batch-import paths.
	maxBatchGoroutines = 8
)

func entityKey(id string) string { return entityKeyPrefix + id }
func verbKey(id string) string   { return verbKeyPrefix + id }

// Config wires a Store's collaborators. Adapter and Embedder are required;
// everything else defaults to a sane built-in.
type Config struct {
	Adapter        storage.Adapter
	Embedder       embedding.Embedder
	Log            logging.Logger
	HNSWM          int
	HNSWEf         int
	DistFunc       hnsw.DistanceFunc
	AllowedReserve func(ctx context.Context) bool // returns true for writers permitted to set reserved metadata (pkg/vfs)
}

// Store is the entity/verb store: persistence plus the E/F/G indexes kept
// consistent on every write, per the data-flow note in spec §2.
type Store struct {
	mu sync.RWMutex

	adapter  storage.Adapter
	embedder embedding.Embedder
	log      logging.Logger

	hnswIdx  *hnsw.Index
	graphIdx *graph.Index
	counters *metaindex.TypeCounters
	fields   *metaindex.FieldIndex

	allowReserved func(ctx context.Context) bool

	dim    int
	closed bool
}

// New constructs a Store from cfg. Adapter and Embedder must be non-nil;
// Init() has already been called on Adapter by the caller (matching the
// lifecycle split spec §6 describes at the top-level instance, not here).
func New(cfg Config) (*Store, error) {
	if cfg.Adapter == nil {
		return nil, nverrors.Wrap("store.New", nverrors.KindInvalidInput, "adapter is required")
	}
	if cfg.Embedder == nil {
		return nil, nverrors.Wrap("store.New", nverrors.KindInvalidInput, "embedder is required")
	}
	log := cfg.Log
	if log == nil {
		log = logging.NoOp()
	}
	distFunc := cfg.DistFunc
	if distFunc == nil {
		distFunc = hnsw.CosineDistance
	}
	m := cfg.HNSWM
	if m <= 0 {
		m = 16
	}
	ef := cfg.HNSWEf
	if ef <= 0 {
		ef = 200
	}
	allow := cfg.AllowedReserve
	if allow == nil {
		allow = func(context.Context) bool { return false }
	}
	return &Store{
		adapter:       cfg.Adapter,
		embedder:      cfg.Embedder,
		log:           logging.Named(log, "store"),
		hnswIdx:       hnsw.New(m, ef, distFunc),
		graphIdx:      graph.New(),
		counters:      metaindex.NewTypeCounters(),
		fields:        metaindex.NewFieldIndex(),
		allowReserved: allow,
	}, nil
}

// AddParams mirrors spec §4.D's add() input row.
type AddParams struct {
	ID       string
	Data     interface{}
	Type     model.NounType
	Metadata map[string]value.Value
	Vector   []float32
	Service  string
}

// Add validates params, embeds canonicalText(Data) when Vector is absent,
// persists the entity, and updates HNSW/graph/counters/field-index before
// returning — the write is not visible to readers until all of that has
// happened, per spec §5's ordering guarantee.
func (s *Store) Add(ctx context.Context, params AddParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nverrors.New("add", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}

	if err := validateData(params.Data); err != nil {
		return "", err
	}
	if !model.IsValidNounType(params.Type) {
		return "", nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrInvalidType)
	}
	if err := s.checkReservedKeys(ctx, params.Metadata); err != nil {
		return "", err
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	} else if _, err := uuid.Parse(id); err != nil {
		return "", nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrInvalidID)
	}

	vector, err := s.resolveWriteVector(ctx, params.Data, params.Vector)
	if err != nil {
		return "", err
	}

	// add with a custom id that already exists is an overwrite, not a
	// duplicate-key error (spec §4.D) — tear down the prior entity's
	// HNSW/counter/field-index state first so the write lands exactly
	// like a fresh insert.
	existing, err := s.loadEntity(ctx, id)
	if err != nil && !nverrors.Is(err, nverrors.KindNotFound) {
		return "", err
	}
	overwriting := existing != nil

	now := nowMillis()
	createdAt := now
	if overwriting {
		createdAt = existing.CreatedAt
	}
	entity := &model.Entity{
		ID:        id,
		Type:      params.Type,
		Vector:    vector,
		Metadata:  params.Metadata,
		Service:   params.Service,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if err := s.persistEntity(ctx, entity); err != nil {
		return "", err
	}

	if overwriting {
		_ = s.hnswIdx.Delete(id)
		s.counters.Decrement(existing.Type)
		s.unindexFields(id, existing.Metadata)
	}
	if len(vector) > 0 {
		if err := s.hnswIdx.Insert(id, vector); err != nil {
			return "", nverrors.New("add", nverrors.KindFatalStorage, err)
		}
	}
	s.counters.Increment(params.Type)
	s.indexFields(id, entity.Metadata)

	return id, nil
}

// resolveWriteVector applies the "vector absent -> embed canonicalText(data)"
// and dimension-uniformity rules from spec §3/§4.D.
func (s *Store) resolveWriteVector(ctx context.Context, data interface{}, vector []float32) ([]float32, error) {
	if vector != nil && len(vector) == 0 {
		return nil, nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrEmptyVector)
	}
	if vector == nil {
		text := embedding.CanonicalText(data)
		embedded, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, nverrors.New("add", nverrors.KindInvalidInput, err)
		}
		vector = embedded
	}
	if s.dim == 0 {
		s.dim = len(vector)
	} else if len(vector) != s.dim {
		return nil, nverrors.New("add", nverrors.KindDimensionMismatch, nverrors.ErrDimensionMismatch)
	}
	return vector, nil
}

func validateData(data interface{}) error {
	if data == nil {
		return nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrMissingData)
	}
	if s, ok := data.(string); ok && s == "" {
		return nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrMissingData)
	}
	return nil
}

func (s *Store) checkReservedKeys(ctx context.Context, metadata map[string]value.Value) error {
	if s.allowReserved(ctx) {
		return nil
	}
	for k := range metadata {
		if model.ReservedMetadataKeys[k] {
			return nverrors.New("add", nverrors.KindInvalidInput, nverrors.ErrReservedMetadata)
		}
	}
	return nil
}

func (s *Store) persistEntity(ctx context.Context, e *model.Entity) error {
	buf, err := json.Marshal(e)
	if err != nil {
		return nverrors.New("add", nverrors.KindFatalStorage, err)
	}
	if err := s.adapter.Put(ctx, entityKey(e.ID), buf); err != nil {
		return err
	}
	return nil
}

func (s *Store) indexFields(entityID string, metadata map[string]value.Value) {
	for field, v := range metadata {
		s.fields.Index(entityID, field, v)
	}
}

func (s *Store) unindexFields(entityID string, metadata map[string]value.Value) {
	for field, v := range metadata {
		s.fields.Unindex(entityID, field, v)
	}
}

// Get returns the entity, or (nil, nil) if missing — matching spec §4.D's
// "returns entity or null" contract rather than surfacing NotFound.
func (s *Store) Get(ctx context.Context, id string, includeVectors bool) (*model.Entity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nverrors.New("get", nverrors.KindInvalidInput, nverrors.ErrInvalidID)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, nverrors.New("get", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}

	e, err := s.loadEntity(ctx, id)
	if err != nil {
		if nverrors.Is(err, nverrors.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !includeVectors {
		clone := *e
		clone.Vector = nil
		return &clone, nil
	}
	return e, nil
}

func (s *Store) loadEntity(ctx context.Context, id string) (*model.Entity, error) {
	buf, err := s.adapter.Get(ctx, entityKey(id))
	if err != nil {
		return nil, err
	}
	var e model.Entity
	if err := json.Unmarshal(buf, &e); err != nil {
		return nil, nverrors.New("get", nverrors.KindFatalStorage, err)
	}
	return &e, nil
}

// UpdateParams mirrors spec §4.D's update() input row. HasX fields
// distinguish "field not supplied" from "field explicitly cleared",
// since e.g. Vector == nil, len 0 is itself a meaningful write.
type UpdateParams struct {
	ID          string
	HasData     bool
	Data        interface{}
	HasMetadata bool
	Metadata    map[string]value.Value
	Merge       bool
	HasVector   bool
	Vector      []float32
}

// Update re-embeds when Data or Vector changes, deep-merges or replaces
// metadata per Merge, and keeps HNSW/field-index in sync.
func (s *Store) Update(ctx context.Context, params UpdateParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nverrors.New("update", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	existing, err := s.loadEntity(ctx, params.ID)
	if err != nil {
		if nverrors.Is(err, nverrors.KindNotFound) {
			return nverrors.New("update", nverrors.KindNotFound, nverrors.ErrNotFound)
		}
		return err
	}

	if params.HasMetadata {
		if err := s.checkReservedKeys(ctx, params.Metadata); err != nil {
			return err
		}
		s.unindexFields(existing.ID, existing.Metadata)
		if params.Merge {
			merged := value.Merge(value.Map(existing.Metadata), value.Map(params.Metadata))
			m, _ := merged.Map()
			existing.Metadata = m
		} else {
			existing.Metadata = params.Metadata
		}
		s.indexFields(existing.ID, existing.Metadata)
	}

	vectorChanged := false
	if params.HasVector {
		if err := s.validateVectorDim(params.Vector); err != nil {
			return err
		}
		existing.Vector = params.Vector
		vectorChanged = true
	} else if params.HasData {
		text := embedding.CanonicalText(params.Data)
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nverrors.New("update", nverrors.KindInvalidInput, err)
		}
		if err := s.validateVectorDim(vec); err != nil {
			return err
		}
		existing.Vector = vec
		vectorChanged = true
	}
	existing.UpdatedAt = nowMillis()

	if err := s.persistEntity(ctx, existing); err != nil {
		return err
	}
	if vectorChanged && len(existing.Vector) > 0 {
		_ = s.hnswIdx.Delete(existing.ID)
		if err := s.hnswIdx.Insert(existing.ID, existing.Vector); err != nil {
			return nverrors.New("update", nverrors.KindFatalStorage, err)
		}
	}
	return nil
}

func (s *Store) validateVectorDim(vector []float32) error {
	if len(vector) == 0 {
		return nverrors.New("update", nverrors.KindInvalidInput, nverrors.ErrEmptyVector)
	}
	if s.dim != 0 && len(vector) != s.dim {
		return nverrors.New("update", nverrors.KindDimensionMismatch, nverrors.ErrDimensionMismatch)
	}
	if s.dim == 0 {
		s.dim = len(vector)
	}
	return nil
}

// Delete cascades to HNSW, incident verbs, and counters; missing/already
// deleted IDs are a no-op, per spec §3's lifecycle note.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nverrors.New("delete", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	existing, err := s.loadEntity(ctx, id)
	if err != nil {
		if nverrors.Is(err, nverrors.KindNotFound) {
			return nil
		}
		return err
	}

	for _, verbID := range s.graphIdx.VerbIDsBySource(id, -1, 0) {
		s.removeVerbByID(ctx, verbID)
	}
	for _, verbID := range s.graphIdx.VerbIDsByTarget(id, -1, 0) {
		s.removeVerbByID(ctx, verbID)
	}

	if err := s.adapter.Delete(ctx, entityKey(id)); err != nil {
		return err
	}
	_ = s.hnswIdx.Delete(id)
	s.counters.Decrement(existing.Type)
	s.unindexFields(id, existing.Metadata)
	return nil
}

func (s *Store) removeVerbByID(ctx context.Context, verbID string) {
	v, err := s.loadVerb(ctx, verbID)
	if err != nil {
		return
	}
	s.graphIdx.RemoveVerb(v)
	_ = s.adapter.Delete(ctx, verbKey(verbID))
}

func (s *Store) loadVerb(ctx context.Context, id string) (*model.Verb, error) {
	buf, err := s.adapter.Get(ctx, verbKey(id))
	if err != nil {
		return nil, err
	}
	var v model.Verb
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, nverrors.New("loadVerb", nverrors.KindFatalStorage, err)
	}
	return &v, nil
}

// BatchResult is AddMany/UpdateMany/DeleteMany/RelateMany's per-item
// outcome vector: Successful preserves input order, Failed carries the
// offending input's index alongside its error.
type BatchResult struct {
	Successful []string
	Failed     []BatchFailure
}

type BatchFailure struct {
	Index int
	Err   error
}

// AddMany runs Add over items via a bounded conc pool, preserving input
// order in Successful regardless of completion order (spec §4.D: "ordering
// preserved").
func (s *Store) AddMany(ctx context.Context, items []AddParams) BatchResult {
	results := runOrdered(len(items), func(i int) (string, error) {
		return s.Add(ctx, items[i])
	})
	return collectBatch(results)
}

func (s *Store) UpdateMany(ctx context.Context, items []UpdateParams) BatchResult {
	results := runOrdered(len(items), func(i int) (string, error) {
		return items[i].ID, s.Update(ctx, items[i])
	})
	return collectBatch(results)
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) BatchResult {
	results := runOrdered(len(ids), func(i int) (string, error) {
		return ids[i], s.Delete(ctx, ids[i])
	})
	return collectBatch(results)
}

type orderedResult struct {
	idx   int
	value string
	err   error
}

// runOrdered fans fn out across a bounded conc.ResultPool (capped at
// maxBatchGoroutines, mirroring a bounded worker pool over a batch import)
// and returns results indexed by input position — conc's ResultPool
// preserves submission order in Wait(), so no post-hoc sort is needed.
func runOrdered(n int, fn func(i int) (string, error)) []orderedResult {
	if n == 0 {
		return nil
	}
	p := pool.NewWithResults[orderedResult]().WithMaxGoroutines(maxBatchGoroutines)
	for i := 0; i < n; i++ {
		i := i
		p.Go(func() orderedResult {
			val, err := fn(i)
			return orderedResult{idx: i, value: val, err: err}
		})
	}
	return p.Wait()
}

func collectBatch(results []orderedResult) BatchResult {
	var out BatchResult
	out.Successful = make([]string, len(results))
	for _, r := range results {
		out.Successful[r.idx] = r.value
		if r.err != nil {
			out.Failed = append(out.Failed, BatchFailure{Index: r.idx, Err: r.err})
		}
	}
	return out
}

// RelateParams mirrors spec §4.D's relate() input row.
type RelateParams struct {
	ID            string
	From          string
	To            string
	Type          model.VerbType
	Metadata      map[string]value.Value
	Bidirectional bool
}

// Relate is idempotent on (from,to,type): a second call with the same
// triple returns the existing verb's ID via graph's O(log n) dup index
// rather than rescanning storage.
func (s *Store) Relate(ctx context.Context, params RelateParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nverrors.New("relate", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	if !model.IsValidVerbType(params.Type) {
		return "", nverrors.New("relate", nverrors.KindInvalidInput, nverrors.ErrInvalidType)
	}
	if _, err := s.loadEntity(ctx, params.From); err != nil {
		return "", nverrors.New("relate", nverrors.KindNotFound, fmt.Errorf("source %s: %w", params.From, nverrors.ErrNotFound))
	}
	if _, err := s.loadEntity(ctx, params.To); err != nil {
		return "", nverrors.New("relate", nverrors.KindNotFound, fmt.Errorf("target %s: %w", params.To, nverrors.ErrNotFound))
	}

	if existingID, ok := s.graphIdx.FindDuplicate(params.From, params.To, params.Type); ok {
		return existingID, nil
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}
	v := &model.Verb{
		ID:            id,
		SourceID:      params.From,
		TargetID:      params.To,
		Type:          params.Type,
		Metadata:      params.Metadata,
		Bidirectional: params.Bidirectional,
		CreatedAt:     nowMillis(),
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return "", nverrors.New("relate", nverrors.KindFatalStorage, err)
	}
	if err := s.adapter.Put(ctx, verbKey(id), buf); err != nil {
		return "", err
	}
	s.graphIdx.AddVerb(v)
	return id, nil
}

func (s *Store) RelateMany(ctx context.Context, items []RelateParams) BatchResult {
	results := runOrdered(len(items), func(i int) (string, error) {
		return s.Relate(ctx, items[i])
	})
	return collectBatch(results)
}

// Unrelate removes a verb by ID; a missing verb is a no-op.
func (s *Store) Unrelate(ctx context.Context, verbID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nverrors.New("unrelate", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	s.removeVerbByID(ctx, verbID)
	return nil
}

// GetRelationsParams mirrors spec §4.D's getRelations() input row.
type GetRelationsParams struct {
	From   string
	To     string
	Type   model.VerbType
	Limit  int
	Offset int
}

// GetRelations returns paginated verbs; From+To together is an exact edge
// lookup, and a Limit of 0 means no limit. With neither From nor To set it
// scans every verb, filtered by Type but not paginated.
func (s *Store) GetRelations(ctx context.Context, params GetRelationsParams) ([]*model.Verb, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nverrors.New("getRelations", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	limit := params.Limit
	if limit == 0 {
		limit = -1
	}

	if params.From != "" && params.To != "" && params.Type != "" {
		id, ok := s.graphIdx.FindDuplicate(params.From, params.To, params.Type)
		if !ok {
			return []*model.Verb{}, nil
		}
		v, err := s.loadVerb(ctx, id)
		if err != nil {
			return []*model.Verb{}, nil
		}
		return []*model.Verb{v}, nil
	}

	var verbIDs []string
	switch {
	case params.From != "":
		verbIDs = s.graphIdx.VerbIDsBySource(params.From, limit, params.Offset)
	case params.To != "":
		verbIDs = s.graphIdx.VerbIDsByTarget(params.To, limit, params.Offset)
	default:
		return s.scanAllVerbs(ctx, params)
	}

	out := make([]*model.Verb, 0, len(verbIDs))
	for _, id := range verbIDs {
		v, err := s.loadVerb(ctx, id)
		if err != nil {
			continue
		}
		if params.Type != "" && v.Type != params.Type {
			continue
		}
		if params.To != "" && v.TargetID != params.To {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) scanAllVerbs(ctx context.Context, params GetRelationsParams) ([]*model.Verb, error) {
	raw, err := s.adapter.GetVerbs(ctx, storage.VerbFilter{
		SourceID: params.From, TargetID: params.To, Type: string(params.Type),
		Limit: params.Limit, Offset: params.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Verb, 0, len(raw))
	for _, buf := range raw {
		var v model.Verb
		if err := json.Unmarshal(buf, &v); err != nil {
			continue
		}
		if params.Type != "" && v.Type != params.Type {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// AllVerbs scans every persisted verb — the shape pkg/graph's VerbSource
// interface needs to support Rebuild on cold start or after corruption.
func (s *Store) AllVerbs() ([]*model.Verb, error) {
	ctx := context.Background()
	res, err := s.adapter.List(ctx, verbKeyPrefix, "", 0)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Verb, 0, len(res.Keys))
	for _, key := range res.Keys {
		buf, err := s.adapter.Get(ctx, key)
		if err != nil {
			continue
		}
		var v model.Verb
		if err := json.Unmarshal(buf, &v); err != nil {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// AllEntities scans every persisted entity — used by the query engine's
// full-scan fallback (metadata-only `where` filters with no selective
// index hit).
func (s *Store) AllEntities(ctx context.Context) ([]*model.Entity, error) {
	res, err := s.adapter.List(ctx, entityKeyPrefix, "", 0)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Entity, 0, len(res.Keys))
	for _, key := range res.Keys {
		buf, err := s.adapter.Get(ctx, key)
		if err != nil {
			continue
		}
		var e model.Entity
		if err := json.Unmarshal(buf, &e); err != nil {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// RebuildGraph reconstructs the adjacency index from persisted verbs,
// exposed so the top-level DB can call it on boot or after detecting
// corruption (spec §4.F's rebuild()).
func (s *Store) RebuildGraph() error {
	return s.graphIdx.Rebuild(s)
}

// HNSW exposes the vector index for the query engine (component H) to
// search directly; pkg/store owns the index but doesn't itself rank
// fused queries.
func (s *Store) HNSW() *hnsw.Index { return s.hnswIdx }

// Graph exposes the adjacency index for traversal-driven queries.
func (s *Store) Graph() *graph.Index { return s.graphIdx }

// Counters exposes the type counters backing counts.byType()/entities().
func (s *Store) Counters() *metaindex.TypeCounters { return s.counters }

// Fields exposes the field-value index backing where-filter equality/$in.
func (s *Store) Fields() *metaindex.FieldIndex { return s.fields }

// Embedder exposes the configured embedder so the query engine can embed
// query text the same way writes do.
func (s *Store) Embedder() embedding.Embedder { return s.embedder }

// Dimension reports the vector dimension established by the first write,
// or 0 if nothing has been written yet.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Close marks the store closed; subsequent writes fail with Closed.
// Flushing the underlying adapter (e.g. an LSM-backed one) is the caller's
// responsibility, matching spec §5's "close waits for writes, then flushes,
// then releases" split across the top-level DB and this store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }
