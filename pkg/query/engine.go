// Package query's Engine implements the planner from spec §4.H: it gathers
// vector/metadata/graph/text signals (in parallel via errgroup, mirroring
// the teacher's advanced_search.go candidate-gathering shape generalized
// away from SQL) and fuses them by RRF, linear weighting, or adaptively.
package query

import (
	"context"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nounverb/nvdb/pkg/graph"
	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/store"
)

// rrfK is RRF's default rank-smoothing constant (spec §4.H).
const rrfK = 60

// adaptiveThreshold is the candidate-count cutoff above which "adaptive"
// fusion switches from linear to RRF (spec §4.H).
const adaptiveThreshold = 200

// shortQueryWordLimit is the word-count cutoff at or below which hybridAlpha's
// auto mode favors text match over semantic similarity (spec §4.H).
const shortQueryWordLimit = 3

// semanticDeadlineFraction is the fraction of the operation deadline
// reserved for the vector/semantic phase before it's abandoned in favor of
// a text-only result (spec §5).
const semanticDeadlineFraction = 0.3

// ConnectedParams drives graph-traversal candidate gathering.
type ConnectedParams struct {
	From      string
	To        string
	Type      []model.VerbType
	Depth     int
	Direction graph.Direction
}

// NearParams restricts results to entities within Radius cosine distance
// of a reference entity's vector.
type NearParams struct {
	ID     string
	Radius float64
}

// FusionParams selects a fusion strategy and optional per-signal weights.
type FusionParams struct {
	Strategy string // "linear" | "reciprocal_rank" | "adaptive" | "" (defaults to adaptive)
	Weights  map[string]float64
}

// Params is spec §4.H's unified find() input.
type Params struct {
	Query       string
	Vector      []float32
	Where       Where
	Type        []model.NounType
	Service     string
	Connected   *ConnectedParams
	Near        *NearParams
	Fusion      FusionParams
	SearchMode  string // "auto"|"text"|"semantic"|"hybrid"|"vector"
	HybridAlpha float64
	Threshold   float64
	Limit       int
	Offset      int
	// Cursor, when set, resumes pagination from an opaque token previously
	// returned on a Result's Cursor field (spec §4.H) instead of Offset.
	Cursor  string
	Explain bool
}

// Result is spec §4.H's per-entity result shape.
type Result struct {
	ID            string
	Score         float64
	Entity        *model.Entity
	TextScore     *float64
	SemanticScore *float64
	MatchSource   string // "text"|"semantic"|"both"|"graph"|"metadata"
	TextMatches   []string
	Explanation   string
	// Cursor is an opaque token for fetching the page starting after this
	// result; pass it back as the next call's Params.Cursor.
	Cursor string
}

// Engine executes Find/Similar/Highlight against a store.Store.
type Engine struct {
	store *store.Store
	log   logging.Logger
}

// New constructs a query Engine over s.
func New(s *store.Store, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NoOp()
	}
	return &Engine{store: s, log: logging.Named(log, "query")}
}

type candidate struct {
	vectorScore   float64
	hasVector     bool
	metadataScore float64
	hasMetadata   bool
	graphScore    float64
	hasGraph      bool
	textScore     float64
	textMatches   []string
	hasText       bool
}

// Find runs the planner: gather active signals, fuse, filter, paginate.
func (e *Engine) Find(ctx context.Context, params Params) ([]Result, error) {
	if params.Limit == 0 && params.Offset == 0 && isEmptyQuery(params) {
		return []Result{}, nil
	}

	wantVector := params.Vector != nil || (params.Query != "" && params.SearchMode != "text")
	wantText := params.Query != "" && params.SearchMode != "vector" && params.SearchMode != "semantic"
	wantMetadata := len(params.Where) > 0
	wantGraph := params.Connected != nil
	wantNear := params.Near != nil

	candidates := make(map[string]*candidate)

	var textTokens []string
	if wantText {
		textTokens = Tokenize(params.Query)
	}

	g, gctx := errgroup.WithContext(ctx)
	var (
		vectorResults   map[string]float64
		metadataResults map[string]bool
		graphResults    map[string]float64
		textResults     map[string]TextMatchResult
	)

	if wantMetadata {
		g.Go(func() error {
			res, err := e.gatherMetadata(gctx, params)
			if err != nil {
				return err
			}
			metadataResults = res
			return nil
		})
	}
	if wantGraph {
		g.Go(func() error {
			graphResults = e.gatherGraph(*params.Connected)
			return nil
		})
	}
	if wantText {
		g.Go(func() error {
			textResults = e.gatherText(gctx, textTokens)
			return nil
		})
	}
	if wantVector {
		g.Go(func() error {
			subCtx, cancel := subDeadline(gctx, semanticDeadlineFraction)
			defer cancel()
			res, err := e.gatherVector(subCtx, params)
			if err != nil {
				// Timeout protection: semantic phase failing is not fatal —
				// fall back to whatever text/metadata/graph signals produced.
				e.log.Warnw("semantic phase degraded", "error", err)
				return nil
			}
			vectorResults = res
			return nil
		})
	}
	if wantNear {
		g.Go(func() error {
			res, err := e.gatherNear(gctx, *params.Near)
			if err != nil {
				return err
			}
			if vectorResults == nil {
				vectorResults = res
			} else {
				for id, s := range res {
					vectorResults[id] = s
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for id, score := range vectorResults {
		c := candidates[id]
		if c == nil {
			c = &candidate{}
			candidates[id] = c
		}
		c.vectorScore, c.hasVector = score, true
	}
	for id := range metadataResults {
		c := candidates[id]
		if c == nil {
			c = &candidate{}
			candidates[id] = c
		}
		c.metadataScore, c.hasMetadata = 1.0, true
	}
	for id, score := range graphResults {
		c := candidates[id]
		if c == nil {
			c = &candidate{}
			candidates[id] = c
		}
		c.graphScore, c.hasGraph = score, true
	}
	for id, res := range textResults {
		c := candidates[id]
		if c == nil {
			c = &candidate{}
			candidates[id] = c
		}
		c.textScore, c.textMatches, c.hasText = res.Score, res.Matches, true
	}

	// where/type/service with no positive signal still intersects: a
	// metadata-only query (no vector/text/graph) should only keep entities
	// matching the metadata signal.
	activeSignals := 0
	for _, want := range []bool{wantVector, wantText, wantGraph} {
		if want {
			activeSignals++
		}
	}
	if activeSignals == 0 && wantMetadata {
		for id := range candidates {
			if !candidates[id].hasMetadata {
				delete(candidates, id)
			}
		}
	}

	results := e.fuse(candidates, params, activeSignals)
	results = e.enrich(ctx, results, params)
	results = applyThresholdAndPage(results, params)
	return results, nil
}

func isEmptyQuery(p Params) bool {
	return p.Query == "" && p.Vector == nil && len(p.Where) == 0 && p.Connected == nil && p.Near == nil
}

func subDeadline(ctx context.Context, fraction float64) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithTimeout(ctx, 5*time.Second)
	}
	budget := time.Until(deadline)
	return context.WithTimeout(ctx, time.Duration(float64(budget)*fraction))
}

func (e *Engine) gatherVector(ctx context.Context, params Params) (map[string]float64, error) {
	vector := params.Vector
	if vector == nil {
		embedded, err := e.store.Embedder().Embed(ctx, params.Query)
		if err != nil {
			return nil, err
		}
		vector = embedded
	}
	k := params.Limit
	if k <= 0 {
		k = 50
	}
	ef := k * 4
	ids, distances := e.store.HNSW().Search(vector, k, ef)
	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		out[id] = 1.0 - float64(distances[i])
	}
	return out, nil
}

func (e *Engine) gatherNear(ctx context.Context, near NearParams) (map[string]float64, error) {
	entity, err := e.store.Get(ctx, near.ID, true)
	if err != nil || entity == nil || len(entity.Vector) == 0 {
		return map[string]float64{}, nil
	}
	k := 200
	ids, distances := e.store.HNSW().Search(entity.Vector, k, k*2)
	out := make(map[string]float64)
	for i, id := range ids {
		if id == near.ID {
			continue
		}
		if float64(distances[i]) <= near.Radius {
			out[id] = 1.0 - float64(distances[i])
		}
	}
	return out, nil
}

func (e *Engine) gatherMetadata(ctx context.Context, params Params) (map[string]bool, error) {
	entities, err := e.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, ent := range entities {
		if !matchesTypeAndService(ent, params) {
			continue
		}
		doc := FlattenMetadata(ent.Metadata)
		if MatchesWhere(params.Where, doc) {
			out[ent.ID] = true
		}
	}
	return out, nil
}

func matchesTypeAndService(ent *model.Entity, params Params) bool {
	if params.Service != "" && ent.Service != params.Service {
		return false
	}
	if len(params.Type) == 0 {
		return true
	}
	for _, t := range params.Type {
		if ent.Type == t {
			return true
		}
	}
	return false
}

func (e *Engine) gatherGraph(conn ConnectedParams) map[string]float64 {
	depth := conn.Depth
	if depth <= 0 {
		depth = 1
	}
	dir := conn.Direction
	start := conn.From
	if start == "" {
		start = conn.To
		if dir == graph.DirectionOut {
			dir = graph.DirectionIn
		} else if dir == graph.DirectionIn {
			dir = graph.DirectionOut
		}
	}
	if start == "" {
		return map[string]float64{}
	}

	visited := map[string]float64{}
	frontier := []string{start}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			for _, peer := range e.neighborsOf(node, dir, conn.Type) {
				if peer == start {
					continue
				}
				if _, seen := visited[peer]; !seen {
					visited[peer] = 1.0 / float64(d)
					next = append(next, peer)
				}
			}
		}
		frontier = next
	}
	return visited
}

// neighborsOf returns node's adjacent peers in direction dir, optionally
// restricted to one of verbTypes — when types are given it goes through
// the verb store (which carries type) instead of the untyped adjacency
// index, since Connected.Type is a per-edge-type traversal filter.
func (e *Engine) neighborsOf(node string, dir graph.Direction, verbTypes []model.VerbType) []string {
	if len(verbTypes) == 0 {
		return e.store.Graph().Neighbors(node, graph.NeighborOptions{Direction: dir, Limit: -1})
	}
	ctx := context.Background()
	seen := map[string]bool{}
	var out []string
	for _, vt := range verbTypes {
		var verbs []*model.Verb
		if dir != graph.DirectionIn {
			vs, _ := e.store.GetRelations(ctx, store.GetRelationsParams{From: node, Type: vt, Limit: -1})
			verbs = append(verbs, vs...)
		}
		if dir != graph.DirectionOut {
			vs, _ := e.store.GetRelations(ctx, store.GetRelationsParams{To: node, Type: vt, Limit: -1})
			verbs = append(verbs, vs...)
		}
		for _, v := range verbs {
			peer := v.TargetID
			if peer == node {
				peer = v.SourceID
			}
			if !seen[peer] {
				seen[peer] = true
				out = append(out, peer)
			}
		}
	}
	return out
}

func (e *Engine) gatherText(_ context.Context, tokens []string) map[string]TextMatchResult {
	entities, err := e.store.AllEntities(context.Background())
	if err != nil {
		return nil
	}
	out := make(map[string]TextMatchResult)
	for _, ent := range entities {
		text := metadataText(ent)
		res := ScoreText(tokens, text)
		if res.Score > 0 {
			out[ent.ID] = res
		}
	}
	return out
}

func metadataText(ent *model.Entity) string {
	if v, ok := ent.Metadata["data"]; ok {
		if s, ok := v.String(); ok {
			return s
		}
	}
	return ""
}

func (e *Engine) fuse(candidates map[string]*candidate, params Params, activeSignals int) []Result {
	if activeSignals <= 1 {
		return e.fuseSingleSignal(candidates, activeSignals)
	}

	strategy := params.Fusion.Strategy
	if strategy == "" {
		strategy = "adaptive"
	}
	if strategy == "adaptive" {
		if len(candidates) > adaptiveThreshold {
			strategy = "reciprocal_rank"
		} else {
			strategy = "linear"
		}
	}

	alpha := hybridAlpha(params)
	if strategy == "reciprocal_rank" {
		return e.fuseRRF(candidates, alpha)
	}
	return e.fuseLinear(candidates, params.Fusion.Weights, alpha)
}

// hybridAlpha resolves the semantic-vs-text weighting for hybrid fusion
// (spec §4.H): an explicit Params.HybridAlpha wins, otherwise short queries
// favor text match and long queries favor semantic similarity.
func hybridAlpha(params Params) float64 {
	if params.HybridAlpha > 0 {
		return params.HybridAlpha
	}
	if len(strings.Fields(params.Query)) <= shortQueryWordLimit {
		return 0.3
	}
	return 0.7
}

func (e *Engine) fuseSingleSignal(candidates map[string]*candidate, activeSignals int) []Result {
	out := make([]Result, 0, len(candidates))
	for id, c := range candidates {
		score := 0.0
		switch {
		case c.hasVector:
			score = c.vectorScore
		case c.hasText:
			score = c.textScore
		case c.hasGraph:
			score = c.graphScore
		case c.hasMetadata:
			score = c.metadataScore
		}
		out = append(out, withScores(Result{ID: id, Score: score, MatchSource: matchSourceOf(c), TextMatches: c.textMatches}, c))
	}
	_ = activeSignals
	sortResults(out)
	return out
}

func (e *Engine) fuseLinear(candidates map[string]*candidate, weights map[string]float64, alpha float64) []Result {
	w := defaultWeights(weights, alpha)
	out := make([]Result, 0, len(candidates))
	for id, c := range candidates {
		var sum, weightSum float64
		if c.hasVector {
			sum += w["vector"] * c.vectorScore
			weightSum += w["vector"]
		}
		if c.hasText {
			sum += w["text"] * c.textScore
			weightSum += w["text"]
		}
		if c.hasGraph {
			sum += w["graph"] * c.graphScore
			weightSum += w["graph"]
		}
		if c.hasMetadata {
			sum += w["metadata"] * c.metadataScore
			weightSum += w["metadata"]
		}
		score := 0.0
		if weightSum > 0 {
			score = sum / weightSum
		}
		out = append(out, withScores(Result{ID: id, Score: score, MatchSource: matchSourceOf(c), TextMatches: c.textMatches}, c))
	}
	sortResults(out)
	return out
}

// defaultWeights seeds vector/text from hybridAlpha (spec §4.H) and graph/
// metadata from fixed defaults, then lets an explicit per-signal override
// win.
func defaultWeights(override map[string]float64, alpha float64) map[string]float64 {
	w := map[string]float64{"vector": alpha, "text": 1 - alpha, "graph": 0.5, "metadata": 0.5}
	for k, v := range override {
		w[k] = v
	}
	return w
}

func (e *Engine) fuseRRF(candidates map[string]*candidate, alpha float64) []Result {
	ranks := map[string]map[string]int{}
	assignRanks(ranks, candidates, "vector", func(c *candidate) (float64, bool) { return c.vectorScore, c.hasVector })
	assignRanks(ranks, candidates, "text", func(c *candidate) (float64, bool) { return c.textScore, c.hasText })
	assignRanks(ranks, candidates, "graph", func(c *candidate) (float64, bool) { return c.graphScore, c.hasGraph })
	assignRanks(ranks, candidates, "metadata", func(c *candidate) (float64, bool) { return c.metadataScore, c.hasMetadata })

	weights := map[string]float64{"vector": alpha, "text": 1 - alpha, "graph": 1, "metadata": 1}
	out := make([]Result, 0, len(candidates))
	for id, c := range candidates {
		var score float64
		for _, signal := range []string{"vector", "text", "graph", "metadata"} {
			if rank, ok := ranks[signal][id]; ok {
				score += weights[signal] / float64(rrfK+rank)
			}
		}
		out = append(out, withScores(Result{ID: id, Score: score, MatchSource: matchSourceOf(c), TextMatches: c.textMatches}, c))
	}
	sortResults(out)
	return out
}

func assignRanks(ranks map[string]map[string]int, candidates map[string]*candidate, signal string, extract func(*candidate) (float64, bool)) {
	type scored struct {
		id    string
		score float64
	}
	var list []scored
	for id, c := range candidates {
		if score, ok := extract(c); ok {
			list = append(list, scored{id, score})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].score > list[j].score })
	m := make(map[string]int, len(list))
	for i, s := range list {
		m[s.id] = i + 1
	}
	ranks[signal] = m
}

// withScores copies c's per-signal scores onto r's optional TextScore and
// SemanticScore fields, spec §4.H's Result shape.
func withScores(r Result, c *candidate) Result {
	if c.hasText {
		ts := c.textScore
		r.TextScore = &ts
	}
	if c.hasVector {
		ss := c.vectorScore
		r.SemanticScore = &ss
	}
	return r
}

func matchSourceOf(c *candidate) string {
	switch {
	case c.hasText && c.hasVector:
		return "both"
	case c.hasText:
		return "text"
	case c.hasVector:
		return "semantic"
	case c.hasGraph:
		return "graph"
	default:
		return "metadata"
	}
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func (e *Engine) enrich(ctx context.Context, results []Result, params Params) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		ent, err := e.store.Get(ctx, r.ID, false)
		if err != nil || ent == nil {
			continue
		}
		if !matchesTypeAndService(ent, params) {
			continue
		}
		r.Entity = ent
		if params.Explain {
			r.Explanation = explainResult(r, params)
		}
		out = append(out, r)
	}
	return out
}

func explainResult(r Result, params Params) string {
	return "matchSource=" + r.MatchSource
}

func applyThresholdAndPage(results []Result, params Params) []Result {
	if params.Threshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= params.Threshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	start := params.Offset
	if params.Cursor != "" {
		if decoded, ok := decodeCursor(params.Cursor); ok {
			start = decoded
		}
	}
	if start < 0 {
		start = 0
	}
	if start >= len(results) {
		return []Result{}
	}
	end := len(results)
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}
	page := results[start:end]
	for i := range page {
		page[i].Cursor = encodeCursor(start + i + 1)
	}
	return page
}

// encodeCursor/decodeCursor turn a result-set position into the opaque
// pagination token spec §4.H's `cursor` field names.
func encodeCursor(pos int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(pos)))
}

func decodeCursor(cursor string) (int, bool) {
	buf, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, false
	}
	pos, err := strconv.Atoi(string(buf))
	if err != nil {
		return 0, false
	}
	return pos, true
}

// Similar returns the nearest neighbours of an existing entity's vector,
// excluding itself.
func (e *Engine) Similar(ctx context.Context, id string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.Find(ctx, Params{Near: &NearParams{ID: id, Radius: 1.0}, Limit: limit})
}
