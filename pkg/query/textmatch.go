// Package query implements the hybrid query engine (spec §4.H): a planner
// that gathers vector/metadata/graph/text signals and fuses their rankings.
package query

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// minTokenLength matches spec §4.H: tokens shorter than this are dropped.
const minTokenLength = 2

// stopwords is the minimal English stopword set spec §4.H calls for
// ("stopwords removed"); kept small and explicit rather than pulling in a
// locale-aware stopword library no example repo uses.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true,
}

// Tokenize lower-cases, strips punctuation, and splits text into words,
// dropping stopwords and anything shorter than minTokenLength. The full
// document is tokenized regardless of size — spec §4.H explicitly forbids
// the 50-word cap a prior implementation had.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLength || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TextMatchResult is the outcome of scoring one document's text against a
// tokenized query.
type TextMatchResult struct {
	Score   float64
	Matches []string // query tokens found verbatim, plus the closest document token for each fuzzy near-miss
}

// maxFuzzyDistance bounds the levenshtein near-miss augmentation: a
// document token within this edit distance of a query token counts as a
// soft match, contributing half weight of an exact hit.
const maxFuzzyDistance = 2

// ScoreText computes spec §4.H's keyword overlap score: the fraction of
// query tokens present in text, capped at 1.0, augmented with fuzzy
// near-misses (agnivade/levenshtein) so close misspellings still
// contribute partial credit instead of zero.
func ScoreText(queryTokens []string, text string) TextMatchResult {
	if len(queryTokens) == 0 {
		return TextMatchResult{}
	}
	docTokens := Tokenize(text)
	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}

	var hits float64
	matched := make([]string, 0, len(queryTokens))
	for _, qt := range queryTokens {
		if docSet[qt] {
			hits += 1.0
			matched = append(matched, qt)
			continue
		}
		if best, ok := closestFuzzyMatch(qt, docTokens); ok {
			hits += 0.5
			matched = append(matched, best)
		}
	}

	score := hits / float64(len(queryTokens))
	if score > 1.0 {
		score = 1.0
	}
	sort.Strings(matched)
	return TextMatchResult{Score: score, Matches: dedupe(matched)}
}

func closestFuzzyMatch(query string, docTokens []string) (string, bool) {
	best := ""
	bestDist := maxFuzzyDistance + 1
	for _, t := range docTokens {
		d := levenshtein.ComputeDistance(query, t)
		if d < bestDist {
			bestDist = d
			best = t
		}
	}
	if bestDist <= maxFuzzyDistance {
		return best, true
	}
	return "", false
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
