// Package plugin implements the swap-in provider registry from spec §4.L:
// factories registered per kind (distance function, codec, bitmap index,
// HNSW, metadata index, named storage backend), activated by name with a
// non-fatal fallback to the built-in default on activation failure.
package plugin

import (
	"fmt"
	"sync"

	"github.com/nounverb/nvdb/pkg/logging"
)

// Kind tags which concern a plugin factory provides.
type Kind string

const (
	KindDistance      Kind = "distance"
	KindCodec         Kind = "msgpack"
	KindBitmap        Kind = "roaring"
	KindHNSW          Kind = "hnsw"
	KindMetadataIndex Kind = "metadataIndex"
)

// StorageKind builds the Kind for a named storage backend factory
// (spec's "storage:<name>").
func StorageKind(name string) Kind { return Kind("storage:" + name) }

// Factory constructs a plugin instance; the shape is opaque to the
// registry (interface{}) since each Kind expects a different concrete
// interface (DistanceFunc, Quantizer, storage.Adapter, ...).
type Factory func() (interface{}, error)

// Registry holds registered factories and the set currently active.
type Registry struct {
	mu         sync.RWMutex
	factories  map[Kind]map[string]Factory // kind -> name -> factory
	active     map[Kind]interface{}        // kind -> last successfully activated instance
	activeName map[Kind]string             // kind -> name of the active instance
	log        logging.Logger
}

// New creates an empty registry.
func New(log logging.Logger) *Registry {
	if log == nil {
		log = logging.NoOp()
	}
	return &Registry{
		factories:  make(map[Kind]map[string]Factory),
		active:     make(map[Kind]interface{}),
		activeName: make(map[Kind]string),
		log:        logging.Named(log, "plugin"),
	}
}

// Register adds a named factory under kind. Registering the same
// (kind, name) twice overwrites the earlier registration.
func (r *Registry) Register(kind Kind, name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.factories[kind]
	if !ok {
		byName = make(map[string]Factory)
		r.factories[kind] = byName
	}
	byName[name] = factory
}

// Activate builds and records the instance for (kind, name). On failure
// the previous active instance for kind, if any, is left in place and the
// error is returned — callers decide whether that's fatal; ActivateAll
// treats it as non-fatal. Activating the same (kind, name) pair that is
// already active is a no-op that returns the existing instance — spec
// §4.L's "same plugin is never activated twice" guard.
func (r *Registry) Activate(kind Kind, name string) (interface{}, error) {
	r.mu.Lock()
	if r.activeName[kind] == name {
		instance := r.active[kind]
		r.mu.Unlock()
		return instance, nil
	}
	byName, ok := r.factories[kind]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("plugin: no factories registered for kind %q", kind)
	}
	factory, ok := byName[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("plugin: no factory %q registered for kind %q", name, kind)
	}

	instance, err := func() (inst interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return factory()
	}()
	if err != nil {
		return nil, fmt.Errorf("plugin: activate %s/%s: %w", kind, name, err)
	}

	r.mu.Lock()
	r.active[kind] = instance
	r.activeName[kind] = name
	r.mu.Unlock()
	return instance, nil
}

// ActivateAll attempts to activate every (kind, name) pair, logging and
// skipping any that fail rather than aborting the whole batch — matching
// spec's "non-fatal fallback" requirement.
func (r *Registry) ActivateAll(requests map[Kind]string) {
	for kind, name := range requests {
		if _, err := r.Activate(kind, name); err != nil {
			r.log.Warnw("plugin activation failed, falling back to built-in default", "kind", kind, "name", name, "error", err)
		}
	}
}

// Active returns the currently active instance for kind, if any.
func (r *Registry) Active(kind Kind) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.active[kind]
	return v, ok
}

// GetActivePlugins lists the kind/name... shape spec's instance surface
// exposes; it reports only the kinds with a live instance, not the active
// names.
func (r *Registry) GetActivePlugins() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.active))
	for k := range r.active {
		out = append(out, k)
	}
	return out
}

// Deactivate clears the active instance for kind, reverting callers to
// whatever built-in default they fall back to when Active reports false.
func (r *Registry) Deactivate(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, kind)
	delete(r.activeName, kind)
}
