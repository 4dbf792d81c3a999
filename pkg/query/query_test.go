package query

import (
	"context"
	"testing"

	"github.com/nounverb/nvdb/pkg/embedding"
	"github.com/nounverb/nvdb/pkg/storage"
	"github.com/nounverb/nvdb/pkg/store"
	"github.com/nounverb/nvdb/pkg/value"
)

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The Quick, Brown fox! is a Dog")
	want := map[string]bool{"quick": true, "brown": true, "fox": true, "dog": true}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("unexpected token %q", tok)
		}
	}
}

func TestScoreTextFractionOfQueryTokensPresent(t *testing.T) {
	res := ScoreText([]string{"david", "smith", "engineer"}, "David Smith is a software engineer at Google")
	if res.Score != 1.0 {
		t.Fatalf("expected score 1.0, got %v", res.Score)
	}
	if len(res.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %v", res.Matches)
	}
}

func TestScoreTextPartialMatch(t *testing.T) {
	res := ScoreText([]string{"alpha", "beta"}, "alpha only")
	if res.Score != 0.5 {
		t.Fatalf("expected 0.5, got %v", res.Score)
	}
}

func TestMatchesWhereEquality(t *testing.T) {
	doc := FlattenMetadata(map[string]value.Value{"status": value.String("active")})
	if !MatchesWhere(Where{"status": "active"}, doc) {
		t.Fatalf("expected equality match")
	}
	if MatchesWhere(Where{"status": "inactive"}, doc) {
		t.Fatalf("expected equality mismatch")
	}
}

func TestMatchesWhereOperators(t *testing.T) {
	doc := FlattenMetadata(map[string]value.Value{"age": value.Int(30), "tags": value.Array([]value.Value{value.String("ai")})})
	if !MatchesWhere(Where{"age": map[string]interface{}{"$gte": float64(18)}}, doc) {
		t.Fatalf("expected $gte match")
	}
	if MatchesWhere(Where{"age": map[string]interface{}{"$lt": float64(18)}}, doc) {
		t.Fatalf("expected $lt mismatch")
	}
	if !MatchesWhere(Where{"tags": map[string]interface{}{"$contains": "ai"}}, doc) {
		t.Fatalf("expected $contains match")
	}
	if !MatchesWhere(Where{"missing": map[string]interface{}{"$exists": false}}, doc) {
		t.Fatalf("expected $exists=false match on missing field")
	}
}

func TestDetectContentType(t *testing.T) {
	cases := map[string]string{
		"# Heading\ntext":                   "markdown",
		"<p>hello</p>":                      "html",
		`{"type":"doc","content":[]}`:        "tiptap",
		`{"ops":[{"insert":"hi"}]}`:          "quill-delta",
		"plain text with nothing special":   "plain",
	}
	for input, want := range cases {
		if got := DetectContentType(input); got != want {
			t.Fatalf("DetectContentType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestHighlightFindsExactTokenSpans(t *testing.T) {
	spans := Highlight("fox", "The quick brown fox jumps", GranularityWord, 0.1, "plain")
	found := false
	for _, s := range spans {
		if s.Text == "fox" && s.MatchType == MatchText && s.Score == 1.0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an exact span for 'fox', got %+v", spans)
	}
}

func TestHighlightIsDeterministic(t *testing.T) {
	a := Highlight("fox dog", "The quick brown fox jumps over the lazy dog", GranularityWord, 0.1, "")
	b := Highlight("fox dog", "The quick brown fox jumps over the lazy dog", GranularityWord, 0.1, "")
	if len(a) != len(b) {
		t.Fatalf("expected identical span counts across repeated calls")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical spans at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.New(store.Config{
		Adapter:  storage.NewMemoryAdapter(),
		Embedder: embedding.NewDeterministic(8),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return New(s, nil)
}

func TestFindEmptyStoreReturnsEmpty(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Find(context.Background(), Params{Query: "anything"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results on empty store, got %d", len(results))
	}
}

func TestFindMatchesBothTextAndSemantic(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id, err := e.store.Add(ctx, store.AddParams{
		Data: "David Smith is a software engineer at Google", Type: "Person",
		Metadata: map[string]value.Value{"data": value.String("David Smith is a software engineer at Google")},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := e.Find(ctx, Params{Query: "David Smith", Limit: 10})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].ID != id {
		t.Fatalf("expected top result to be %q, got %q", id, results[0].ID)
	}
	if results[0].MatchSource != "both" {
		t.Fatalf("expected matchSource both, got %q", results[0].MatchSource)
	}
}

func TestFindWhereFilterRestrictsResults(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, _ = e.store.Add(ctx, store.AddParams{Data: "a", Type: "Concept", Metadata: map[string]value.Value{"status": value.String("active")}})
	_, _ = e.store.Add(ctx, store.AddParams{Data: "b", Type: "Concept", Metadata: map[string]value.Value{"status": value.String("archived")}})

	results, err := e.Find(ctx, Params{Where: Where{"status": "active"}, Limit: 10})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
}
