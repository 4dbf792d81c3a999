package query

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ContentCategory classifies a highlighted span for display purposes.
type ContentCategory string

const (
	CategoryHeading ContentCategory = "heading"
	CategoryCode    ContentCategory = "code"
	CategoryProse   ContentCategory = "prose"
)

// MatchType distinguishes an exact token hit from a semantic/fuzzy one.
type MatchType string

const (
	MatchText     MatchType = "text"
	MatchSemantic MatchType = "semantic"
)

// Span is one highlighted region of text, spec §4.H's highlight() result
// shape.
type Span struct {
	Text            string
	Position        [2]int
	Score           float64
	MatchType       MatchType
	ContentCategory ContentCategory
}

// Granularity selects whether Highlight splits candidate spans by word or
// sentence.
type Granularity string

const (
	GranularityWord     Granularity = "word"
	GranularitySentence Granularity = "sentence"
)

var (
	markdownHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s`)
	markdownCodeRe    = regexp.MustCompile("(?s)```.*?```")
	htmlTagRe         = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
)

// DetectContentType inspects raw text and reports which of the corpus's
// supported rich-text encodings it is, matching spec §4.H's detector list.
// JSON-shaped inputs (TipTap/ProseMirror, Slate.js, Quill Delta, generic
// JSON) are distinguished by their characteristic top-level keys.
func DetectContentType(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "plain"
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var probe interface{}
		if err := json.Unmarshal([]byte(trimmed), &probe); err == nil {
			switch v := probe.(type) {
			case map[string]interface{}:
				if _, ok := v["type"]; ok {
					if _, hasContent := v["content"]; hasContent {
						return "tiptap"
					}
				}
				if _, ok := v["ops"]; ok {
					return "quill-delta"
				}
				return "json"
			case []interface{}:
				if looksLikeSlate(v) {
					return "slate"
				}
				return "json"
			}
		}
	}
	if htmlTagRe.MatchString(trimmed) {
		return "html"
	}
	if markdownHeadingRe.MatchString(trimmed) || markdownCodeRe.MatchString(trimmed) || strings.Contains(trimmed, "](") {
		return "markdown"
	}
	return "plain"
}

func looksLikeSlate(nodes []interface{}) bool {
	for _, n := range nodes {
		m, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		if _, hasChildren := m["children"]; hasChildren {
			return true
		}
	}
	return false
}

// ExtractPlainText strips markup from a detected content type down to
// plain prose, so tokenization/highlighting operates on readable text
// rather than markup syntax.
func ExtractPlainText(raw, contentType string) string {
	switch contentType {
	case "html":
		return htmlTagRe.ReplaceAllString(raw, " ")
	case "markdown":
		stripped := markdownCodeRe.ReplaceAllString(raw, " ")
		stripped = markdownHeadingRe.ReplaceAllString(stripped, "")
		return stripped
	case "json", "tiptap", "quill-delta", "slate":
		var probe interface{}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			return raw
		}
		var sb strings.Builder
		collectJSONText(probe, &sb)
		return sb.String()
	default:
		return raw
	}
}

func collectJSONText(node interface{}, sb *strings.Builder) {
	switch v := node.(type) {
	case string:
		sb.WriteString(v)
		sb.WriteString(" ")
	case map[string]interface{}:
		if text, ok := v["text"].(string); ok {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		for _, key := range []string{"content", "children", "ops"} {
			if child, ok := v[key]; ok {
				collectJSONText(child, sb)
			}
		}
		if insert, ok := v["insert"].(string); ok {
			sb.WriteString(insert)
			sb.WriteString(" ")
		}
	case []interface{}:
		for _, item := range v {
			collectJSONText(item, sb)
		}
	}
}

// classify assigns a ContentCategory to a span of source text using cheap
// structural cues (code fences, braces with semicolons, markdown heading
// markers).
func classify(text string) ContentCategory {
	trimmed := strings.TrimSpace(text)
	if markdownHeadingRe.MatchString(trimmed) {
		return CategoryHeading
	}
	if strings.HasPrefix(trimmed, "```") || strings.Count(trimmed, "{") > 2 && strings.Count(trimmed, ";") > 0 {
		return CategoryCode
	}
	return CategoryProse
}

// Highlight finds spans of text matching query tokens (exact) or semantic
// near-misses, per spec §4.H. Exact token matches always score 1.0 and
// take priority over an overlapping semantic span at the same position.
func Highlight(queryText, text string, granularity Granularity, threshold float64, contentType string) []Span {
	if contentType == "" {
		contentType = DetectContentType(text)
	}
	plain := ExtractPlainText(text, contentType)

	units := splitUnits(plain, granularity)
	queryTokens := Tokenize(queryText)

	var spans []Span
	for _, u := range units {
		res := ScoreText(queryTokens, u.text)
		if res.Score <= 0 {
			continue
		}
		matchType := MatchSemantic
		if containsExactToken(queryTokens, u.text) {
			matchType = MatchText
			res.Score = 1.0
		}
		if res.Score < threshold {
			continue
		}
		spans = append(spans, Span{
			Text:            u.text,
			Position:        [2]int{u.start, u.end},
			Score:           res.Score,
			MatchType:       matchType,
			ContentCategory: classify(u.text),
		})
	}
	return spans
}

func containsExactToken(queryTokens []string, text string) bool {
	docTokens := Tokenize(text)
	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}
	for _, qt := range queryTokens {
		if docSet[qt] {
			return true
		}
	}
	return false
}

type unit struct {
	text       string
	start, end int
}

var sentenceSplitRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

func splitUnits(text string, granularity Granularity) []unit {
	var out []unit
	if granularity == GranularitySentence {
		locs := sentenceSplitRe.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			segment := strings.TrimSpace(text[loc[0]:loc[1]])
			if segment == "" {
				continue
			}
			out = append(out, unit{text: segment, start: loc[0], end: loc[1]})
		}
		return out
	}

	pos := 0
	for _, word := range strings.Fields(text) {
		idx := strings.Index(text[pos:], word)
		if idx < 0 {
			continue
		}
		start := pos + idx
		end := start + len(word)
		out = append(out, unit{text: word, start: start, end: end})
		pos = end
	}
	return out
}
