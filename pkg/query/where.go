package query

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nounverb/nvdb/pkg/value"
)

// Where is spec §4.H's `where` filter: field -> either a bare value
// (shorthand for $equals) or an operator map ({"$gt": 5}).
type Where map[string]interface{}

const (
	OpEquals     = "$equals"
	OpGT         = "$gt"
	OpGTE        = "$gte"
	OpLT         = "$lt"
	OpLTE        = "$lte"
	OpIn         = "$in"
	OpContains   = "$contains"
	OpExists     = "$exists"
	OpStartsWith = "$startsWith"
)

// MatchesWhere evaluates every field clause in where against metadata's
// flattened JSON form and ANDs the results — all named fields must match.
// The caller flattens each entity's metadata tree to JSON once (see
// Engine.Find) rather than once per field, per SPEC_FULL.md's grounding
// note on gjson's path-query idiom.
func MatchesWhere(where Where, doc []byte) bool {
	for field, cond := range where {
		result := gjson.GetBytes(doc, field)
		if !matchesCondition(result, cond) {
			return false
		}
	}
	return true
}

func matchesCondition(result gjson.Result, cond interface{}) bool {
	ops, isOps := cond.(map[string]interface{})
	if !isOps {
		return equalsRaw(result, cond)
	}
	for op, opVal := range ops {
		if !evalOp(result, op, opVal) {
			return false
		}
	}
	return true
}

func evalOp(result gjson.Result, op string, opVal interface{}) bool {
	switch op {
	case OpEquals:
		return equalsRaw(result, opVal)
	case OpGT:
		return numericCompare(result, opVal, func(a, b float64) bool { return a > b })
	case OpGTE:
		return numericCompare(result, opVal, func(a, b float64) bool { return a >= b })
	case OpLT:
		return numericCompare(result, opVal, func(a, b float64) bool { return a < b })
	case OpLTE:
		return numericCompare(result, opVal, func(a, b float64) bool { return a <= b })
	case OpIn:
		list, ok := opVal.([]interface{})
		if !ok {
			return false
		}
		for _, v := range list {
			if equalsRaw(result, v) {
				return true
			}
		}
		return false
	case OpContains:
		return containsValue(result, opVal)
	case OpExists:
		want, _ := opVal.(bool)
		return result.Exists() == want
	case OpStartsWith:
		prefix, ok := opVal.(string)
		return ok && strings.HasPrefix(result.String(), prefix)
	default:
		return false
	}
}

func equalsRaw(result gjson.Result, want interface{}) bool {
	if !result.Exists() {
		return want == nil
	}
	switch w := want.(type) {
	case string:
		return result.Type == gjson.String && result.Str == w
	case bool:
		return (w && result.Type == gjson.True) || (!w && result.Type == gjson.False)
	case float64:
		return result.Num == w
	case int:
		return result.Num == float64(w)
	case int64:
		return result.Num == float64(w)
	default:
		return false
	}
}

func numericCompare(result gjson.Result, want interface{}, cmp func(a, b float64) bool) bool {
	if result.Type != gjson.Number {
		return false
	}
	w, ok := toFloat64(want)
	if !ok {
		return false
	}
	return cmp(result.Num, w)
}

func toFloat64(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func containsValue(result gjson.Result, want interface{}) bool {
	if result.IsArray() {
		found := false
		result.ForEach(func(_, item gjson.Result) bool {
			if equalsRaw(item, want) {
				found = true
				return false
			}
			return true
		})
		return found
	}
	if result.Type == gjson.String {
		sub, ok := want.(string)
		return ok && strings.Contains(result.Str, sub)
	}
	return false
}

// FlattenMetadata renders a metadata tree as JSON bytes for gjson-driven
// where-evaluation, computed once per entity rather than once per (entity,
// field) pair.
func FlattenMetadata(metadata map[string]value.Value) []byte {
	buf, err := value.Map(metadata).MarshalJSON()
	if err != nil {
		return []byte("{}")
	}
	return buf
}
