// Package logging provides the zap-backed structured logger shared by every
// nvdb subsystem. It defaults to a no-op logger so the library stays silent
// unless a caller opts in (matching the `silent` constructor flag).
package logging

import "go.uber.org/zap"

// Logger is the shared sugared-zap handle nvdb subsystems log through.
type Logger = *zap.SugaredLogger

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return zap.NewNop().Sugar()
}

// NewDevelopment returns a human-readable logger for local debugging.
func NewDevelopment() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NoOp()
	}
	return l.Sugar()
}

// NewProduction returns a JSON structured logger suitable for production
// deployments (augmentations.monitoring=true in Config).
func NewProduction() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return NoOp()
	}
	return l.Sugar()
}

// Named scopes a logger under a subsystem name ("lsm", "hnsw", "graph", ...).
func Named(l Logger, name string) Logger {
	if l == nil {
		return NoOp()
	}
	return l.Named(name)
}
