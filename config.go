package nvdb

import (
	"github.com/nounverb/nvdb/pkg/embedding"
	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/storage"
)

// Augmentations mirrors spec §6's `augmentations: {cache, metrics, display,
// monitoring}` Config block: each toggle wires in an existing subsystem
// rather than introducing new machinery. `display`/`monitoring` control log
// verbosity only — a terminal UI is outside this module's scope.
type Augmentations struct {
	Cache      bool
	Metrics    bool
	Display    bool
	Monitoring bool
}

// Config configures a DB instance, following the teacher's
// Config/DefaultConfig/functional-option shape (sqvect.Config).
type Config struct {
	Adapter  storage.Adapter
	Path     string // used to build an LSM-backed Adapter when Adapter is nil and Path != ""
	Embedder embedding.Embedder
	Log      logging.Logger

	HNSWM  int
	HNSWEf int

	// LSMMemtableBytes sizes the in-memory MemTable the default
	// Path-based adapter flushes to SSTables (pkg/lsm), spec §4.B.
	LSMMemtableBytes int

	Augmentations Augmentations
}

// Option mutates a Config being built by Open.
type Option func(*Config)

// DefaultConfig returns a deterministic-embedder configuration with no
// storage backend chosen yet: Open defaults to an in-memory adapter unless
// WithAdapter or WithPath picks one explicitly.
func DefaultConfig() Config {
	return Config{
		Embedder:         embedding.NewDeterministic(384),
		HNSWM:            16,
		HNSWEf:           200,
		LSMMemtableBytes: 4 << 20,
	}
}

// WithAdapter overrides the storage backend.
func WithAdapter(a storage.Adapter) Option {
	return func(c *Config) { c.Adapter = a }
}

// WithPath configures a filesystem-backed adapter rooted at dir, used when
// no explicit Adapter is supplied.
func WithPath(dir string) Option {
	return func(c *Config) { c.Path = dir }
}

// WithEmbedder overrides the embedding model.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *Config) { c.Embedder = e }
}

// WithLogger overrides the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) { c.Log = l }
}

// WithAugmentations sets the cache/metrics/display/monitoring toggles.
func WithAugmentations(a Augmentations) Option {
	return func(c *Config) { c.Augmentations = a }
}

// WithHNSWParams overrides the HNSW graph's M/efConstruction construction
// parameters.
func WithHNSWParams(m, ef int) Option {
	return func(c *Config) { c.HNSWM, c.HNSWEf = m, ef }
}

// WithLSMMemtableBytes overrides the default Path-based adapter's MemTable
// flush threshold.
func WithLSMMemtableBytes(n int) Option {
	return func(c *Config) { c.LSMMemtableBytes = n }
}
