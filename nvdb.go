// Package nvdb wires the storage/index/query/vfs subsystems into the single
// instance surface spec §6 describes, following the teacher's
// Config/New/NewWithConfig construction shape (sqvect.NewWithConfig).
package nvdb

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nounverb/nvdb/pkg/blobstore"
	"github.com/nounverb/nvdb/pkg/cache"
	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/lsm"
	"github.com/nounverb/nvdb/pkg/metaindex"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/nverrors"
	"github.com/nounverb/nvdb/pkg/plugin"
	"github.com/nounverb/nvdb/pkg/query"
	"github.com/nounverb/nvdb/pkg/storage"
	"github.com/nounverb/nvdb/pkg/store"
	"github.com/nounverb/nvdb/pkg/vfs"
)

// DB is the top-level handle spec §6 describes: lifecycle, data ops, graph
// ops, query ops, counts, and the full vfs.* surface (exposed through FS).
type DB struct {
	cfg Config
	log logging.Logger

	adapter storage.Adapter
	store   *store.Store
	engine  *query.Engine
	plugins *plugin.Registry
	metrics *Metrics
	blobs   *blobstore.Store

	// FS is the virtual filesystem layered over this instance's entity
	// store (spec §4.K).
	FS *vfs.VFS

	fsWatcher *vfs.FSWatcher
	closed    bool
}

// Open builds and initializes a DB from opts, applied on top of
// DefaultConfig. The returned DB is ready to use; there is no separate
// Init step, matching sqvect.NewWithConfig's all-at-once construction
// rather than the teacher's split two-phase New/Init on SQLiteStore.
func Open(ctx context.Context, opts ...Option) (*DB, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.Log
	if log == nil {
		switch {
		case cfg.Augmentations.Monitoring:
			log = logging.NewProduction()
		case cfg.Augmentations.Display:
			log = logging.NewDevelopment()
		default:
			log = logging.NoOp()
		}
	}

	adapter := cfg.Adapter
	if adapter == nil {
		if cfg.Path != "" {
			tree, lErr := lsm.Open(cfg.Path, cfg.LSMMemtableBytes, log)
			if lErr != nil {
				return nil, lErr
			}
			adapter = storage.NewLSMAdapter(storage.KindFilesystem, tree)
		} else {
			adapter = storage.NewMemoryAdapter()
		}
	}
	if err := adapter.Init(ctx); err != nil {
		return nil, err
	}

	var blobs *blobstore.Store
	if cfg.Path != "" {
		b, bErr := blobstore.Open(filepath.Join(cfg.Path, "blobs.index"), adapter, log)
		if bErr != nil {
			return nil, bErr
		}
		blobs = b
	}

	if cfg.Augmentations.Cache {
		cache.SetGlobal(cache.NewMapCache())
	}

	s, err := store.New(store.Config{
		Adapter:        adapter,
		Embedder:       cfg.Embedder,
		Log:            log,
		HNSWM:          cfg.HNSWM,
		HNSWEf:         cfg.HNSWEf,
		AllowedReserve: vfs.IsWriteContext,
	})
	if err != nil {
		return nil, err
	}

	engine := query.New(s, log)

	fsys, err := vfs.New(vfs.Config{Store: s, Engine: engine, Log: log, Blobs: blobs})
	if err != nil {
		return nil, err
	}

	fsWatcher, err := vfs.NewFSWatcher(fsys, adapter)
	if err != nil {
		log.Warnw("filesystem watch unavailable", "error", err)
		fsWatcher = nil
	}

	var m *Metrics
	if cfg.Augmentations.Metrics {
		m = newMetrics()
	}

	db := &DB{
		cfg:       cfg,
		log:       logging.Named(log, "nvdb"),
		adapter:   adapter,
		store:     s,
		engine:    engine,
		plugins:   plugin.New(log),
		metrics:   m,
		blobs:     blobs,
		FS:        fsys,
		fsWatcher: fsWatcher,
	}
	return db, nil
}

func (db *DB) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if db.metrics != nil {
		db.metrics.observe(op, time.Since(start).Seconds(), err)
	}
	return err
}

// Close drains outstanding writes (the store's write mutex already
// serializes them), closes the VFS filesystem watcher if one was started,
// clears the global cache when the cache augmentation is active, and
// releases the storage adapter. Every call after the first returns
// nverrors.Closed.
func (db *DB) Close(ctx context.Context) error {
	if db.closed {
		return nverrors.New("close", nverrors.KindClosed, nverrors.ErrStoreClosed)
	}
	db.closed = true
	if db.fsWatcher != nil {
		_ = db.fsWatcher.Close()
	}
	if db.blobs != nil {
		_ = db.blobs.Close()
	}
	if err := db.store.Close(); err != nil {
		return err
	}
	if db.cfg.Augmentations.Cache {
		cache.Teardown()
	}
	return db.adapter.Close(ctx)
}

// Use is a lifecycle no-op retained for parity with spec §6's instance
// surface; Open already performs every step Use would otherwise trigger.
func (db *DB) Use(ctx context.Context) error { return nil }

// GetActivePlugins reports which plugin kinds currently have a live
// activated instance.
func (db *DB) GetActivePlugins() []plugin.Kind { return db.plugins.GetActivePlugins() }

// Plugins exposes the underlying registry so callers can Register/Activate
// custom distance functions, codecs, or storage backends.
func (db *DB) Plugins() *plugin.Registry { return db.plugins }

// Store exposes the underlying entity/verb store for callers that need
// direct access beyond this surface (e.g. RebuildGraph after a restore).
func (db *DB) Store() *store.Store { return db.store }

// --- Data ops -------------------------------------------------------------

func (db *DB) Add(ctx context.Context, params store.AddParams) (id string, err error) {
	err = db.timed("add", func() error {
		var e error
		id, e = db.store.Add(ctx, params)
		return e
	})
	return id, err
}

func (db *DB) AddMany(ctx context.Context, items []store.AddParams) store.BatchResult {
	var res store.BatchResult
	_ = db.timed("addMany", func() error {
		res = db.store.AddMany(ctx, items)
		return nil
	})
	return res
}

func (db *DB) Get(ctx context.Context, id string, includeVectors bool) (*model.Entity, error) {
	return db.store.Get(ctx, id, includeVectors)
}

func (db *DB) Update(ctx context.Context, params store.UpdateParams) error {
	return db.timed("update", func() error { return db.store.Update(ctx, params) })
}

func (db *DB) UpdateMany(ctx context.Context, items []store.UpdateParams) store.BatchResult {
	var res store.BatchResult
	_ = db.timed("updateMany", func() error {
		res = db.store.UpdateMany(ctx, items)
		return nil
	})
	return res
}

func (db *DB) Delete(ctx context.Context, id string) error {
	return db.timed("delete", func() error { return db.store.Delete(ctx, id) })
}

func (db *DB) DeleteMany(ctx context.Context, ids []string) store.BatchResult {
	var res store.BatchResult
	_ = db.timed("deleteMany", func() error {
		res = db.store.DeleteMany(ctx, ids)
		return nil
	})
	return res
}

// Clear removes every entity, a supplemented convenience spec §6 names but
// Store itself deliberately doesn't implement (it would bypass the
// per-entity HNSW/graph/field-index bookkeeping Delete already does).
func (db *DB) Clear(ctx context.Context) error {
	return db.timed("clear", func() error {
		entities, err := db.store.AllEntities(ctx)
		if err != nil {
			return err
		}
		ids := make([]string, len(entities))
		for i, e := range entities {
			ids[i] = e.ID
		}
		res := db.store.DeleteMany(ctx, ids)
		if len(res.Failed) > 0 {
			return fmt.Errorf("clear: %d of %d deletes failed", len(res.Failed), len(ids))
		}
		return nil
	})
}

// --- Graph ops --------------------------------------------------------------

func (db *DB) Relate(ctx context.Context, params store.RelateParams) (string, error) {
	return db.store.Relate(ctx, params)
}

func (db *DB) RelateMany(ctx context.Context, items []store.RelateParams) store.BatchResult {
	return db.store.RelateMany(ctx, items)
}

func (db *DB) Unrelate(ctx context.Context, verbID string) error {
	return db.store.Unrelate(ctx, verbID)
}

func (db *DB) GetRelations(ctx context.Context, params store.GetRelationsParams) ([]*model.Verb, error) {
	return db.store.GetRelations(ctx, params)
}

// --- Query ops --------------------------------------------------------------

func (db *DB) Find(ctx context.Context, params query.Params) (results []query.Result, err error) {
	err = db.timed("find", func() error {
		var e error
		results, e = db.engine.Find(ctx, params)
		return e
	})
	return results, err
}

func (db *DB) Similar(ctx context.Context, id string, limit int) ([]query.Result, error) {
	return db.engine.Similar(ctx, id, limit)
}

func (db *DB) Highlight(queryText, text string, granularity query.Granularity, threshold float64, contentType string) []query.Span {
	return query.Highlight(queryText, text, granularity, threshold, contentType)
}

func (db *DB) Embed(ctx context.Context, text string) ([]float32, error) {
	return db.cfg.Embedder.Embed(ctx, text)
}

func (db *DB) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return db.cfg.Embedder.EmbedBatch(ctx, texts)
}

// --- Counts -----------------------------------------------------------------

// Counts groups the entity-count surface spec §6 names under `counts.*`.
type Counts struct{ db *DB }

func (db *DB) Counts() Counts { return Counts{db: db} }

func (c Counts) Entities() int64 { return c.db.store.Counters().Total() }

func (c Counts) ByType() map[model.NounType]int64 { return c.db.store.Counters().ByType() }

func (c Counts) ByTypeExcludingVFS() map[model.NounType]int64 {
	return c.db.store.Counters().ByTypeExcludingVFS()
}

// Facets returns per-value cardinalities for an indexed metadata field, the
// faceted-aggregation feature spec §8 supplements.
func (db *DB) Facets(field string) []metaindex.FacetCount {
	return db.store.Fields().Facets(field)
}
