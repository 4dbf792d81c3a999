package vfs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nounverb/nvdb/pkg/graph"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/nverrors"
	"github.com/nounverb/nvdb/pkg/query"
)

// semanticDimension identifies one of the non-literal path prefixes spec
// §4.K names; these are parsed by ParseSemanticPath and translated into
// query.Find calls against the entity/graph/metadata indexes instead of a
// concrete Contains-edge walk.
type semanticDimension string

const (
	dimConcept   semanticDimension = "by-concept"
	dimAuthor    semanticDimension = "by-author"
	dimAsOf      semanticDimension = "as-of"
	dimRelated   semanticDimension = "related-to"
	dimSimilarTo semanticDimension = "similar-to"
	dimTag       semanticDimension = "by-tag"
)

// SemanticQuery is a parsed semantic path.
type SemanticQuery struct {
	Dimension semanticDimension
	Arg       string // concept/author/tag value, or the referenced path for related-to/similar-to
	Depth     int    // related-to
	Threshold float64
	AsOf      time.Time
}

// ParseSemanticPath recognizes one of spec §4.K's semantic path dimensions
// at the start of p and reports the parsed query, or ok=false for an
// ordinary concrete path.
func ParseSemanticPath(p string) (SemanticQuery, bool) {
	segs := strings.Split(strings.Trim(cleanPath(p), "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return SemanticQuery{}, false
	}
	switch semanticDimension(segs[0]) {
	case dimConcept:
		if len(segs) < 2 {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimConcept, Arg: strings.Join(segs[1:], "/")}, true
	case dimAuthor:
		if len(segs) < 2 {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimAuthor, Arg: strings.Join(segs[1:], "/")}, true
	case dimTag:
		if len(segs) < 2 {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimTag, Arg: strings.Join(segs[1:], "/")}, true
	case dimAsOf:
		if len(segs) < 2 {
			return SemanticQuery{}, false
		}
		t, err := time.Parse("2006-01-02", segs[1])
		if err != nil {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimAsOf, AsOf: t}, true
	case dimRelated:
		last := segs[len(segs)-1]
		if len(segs) < 3 || !strings.HasPrefix(last, "depth-") {
			return SemanticQuery{}, false
		}
		depth, err := strconv.Atoi(strings.TrimPrefix(last, "depth-"))
		if err != nil {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimRelated, Arg: "/" + strings.Join(segs[1:len(segs)-1], "/"), Depth: depth}, true
	case dimSimilarTo:
		last := segs[len(segs)-1]
		if len(segs) < 3 || !strings.HasPrefix(last, "threshold-") {
			return SemanticQuery{}, false
		}
		t, err := strconv.ParseFloat(strings.TrimPrefix(last, "threshold-"), 64)
		if err != nil {
			return SemanticQuery{}, false
		}
		return SemanticQuery{Dimension: dimSimilarTo, Arg: "/" + strings.Join(segs[1:len(segs)-1], "/"), Threshold: t}, true
	default:
		return SemanticQuery{}, false
	}
}

// ResolveSemanticPath evaluates a parsed semantic path against the query
// engine/graph/metadata index and returns matching entities.
func (v *VFS) ResolveSemanticPath(ctx context.Context, sq SemanticQuery) ([]*model.Entity, error) {
	switch sq.Dimension {
	case dimConcept:
		if v.engine == nil {
			return nil, nverrors.Wrap("resolveSemanticPath", nverrors.KindInvalidInput, "query engine not configured")
		}
		results, err := v.engine.Find(ctx, query.Params{Query: sq.Arg, Limit: 100})
		if err != nil {
			return nil, err
		}
		return entitiesFromResults(results), nil
	case dimAuthor:
		return v.scanWhere(ctx, "author", sq.Arg)
	case dimTag:
		return v.scanWhereContains(ctx, "tags", sq.Arg)
	case dimAsOf:
		return v.scanAsOf(ctx, sq.AsOf)
	case dimRelated:
		if v.engine == nil {
			return nil, nverrors.Wrap("resolveSemanticPath", nverrors.KindInvalidInput, "query engine not configured")
		}
		fromID, err := v.ResolvePathToId(ctx, sq.Arg)
		if err != nil {
			return nil, err
		}
		results, err := v.engine.Find(ctx, query.Params{Connected: &query.ConnectedParams{From: fromID, Depth: sq.Depth, Direction: graph.DirectionBoth}, Limit: 200})
		if err != nil {
			return nil, err
		}
		return entitiesFromResults(results), nil
	case dimSimilarTo:
		if v.engine == nil {
			return nil, nverrors.Wrap("resolveSemanticPath", nverrors.KindInvalidInput, "query engine not configured")
		}
		fromID, err := v.ResolvePathToId(ctx, sq.Arg)
		if err != nil {
			return nil, err
		}
		results, err := v.engine.Find(ctx, query.Params{Near: &query.NearParams{ID: fromID, Radius: sq.Threshold}, Limit: 200})
		if err != nil {
			return nil, err
		}
		return entitiesFromResults(results), nil
	default:
		return nil, nverrors.Wrap("resolveSemanticPath", nverrors.KindInvalidInput, "unrecognized semantic dimension %q", sq.Dimension)
	}
}

func entitiesFromResults(results []query.Result) []*model.Entity {
	out := make([]*model.Entity, 0, len(results))
	for _, r := range results {
		if r.Entity != nil {
			out = append(out, r.Entity)
		}
	}
	return out
}

func (v *VFS) scanWhere(ctx context.Context, field, val string) ([]*model.Entity, error) {
	entities, err := v.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Entity
	for _, ent := range entities {
		if fv, ok := ent.Metadata[field]; ok {
			if s, ok := fv.String(); ok && s == val {
				out = append(out, ent)
			}
		}
	}
	return out, nil
}

func (v *VFS) scanWhereContains(ctx context.Context, field, val string) ([]*model.Entity, error) {
	entities, err := v.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Entity
	for _, ent := range entities {
		fv, ok := ent.Metadata[field]
		if !ok {
			continue
		}
		if arr, ok := fv.Array(); ok {
			for _, item := range arr {
				if s, ok := item.String(); ok && s == val {
					out = append(out, ent)
					break
				}
			}
		}
	}
	return out, nil
}

func (v *VFS) scanAsOf(ctx context.Context, asOf time.Time) ([]*model.Entity, error) {
	entities, err := v.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := asOf.UnixMilli()
	var out []*model.Entity
	for _, ent := range entities {
		if ent.CreatedAt <= cutoff {
			out = append(out, ent)
		}
	}
	return out, nil
}

// Search runs a hybrid find() through the query engine, spec §6's
// vfs.search.
func (v *VFS) Search(ctx context.Context, q string, limit int) ([]query.Result, error) {
	if v.engine == nil {
		return nil, nverrors.Wrap("search", nverrors.KindInvalidInput, "query engine not configured")
	}
	return v.engine.Find(ctx, query.Params{Query: q, Limit: limit})
}

// FindSimilar returns entities near p's vector, spec §6's vfs.findSimilar.
func (v *VFS) FindSimilar(ctx context.Context, p string, limit int) ([]query.Result, error) {
	if v.engine == nil {
		return nil, nverrors.Wrap("findSimilar", nverrors.KindInvalidInput, "query engine not configured")
	}
	id, err := v.ResolvePathToId(ctx, p)
	if err != nil {
		return nil, err
	}
	return v.engine.Similar(ctx, id, limit)
}
