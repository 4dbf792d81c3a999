package metaindex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nounverb/nvdb/pkg/value"
)

// FieldType is one of the inferred categories spec §4.G enumerates.
type FieldType string

const (
	TypeBoolean         FieldType = "boolean"
	TypeInteger         FieldType = "integer"
	TypeFloat           FieldType = "float"
	TypeTimestampMillis FieldType = "timestamp_ms"
	TypeTimestampSecs   FieldType = "timestamp_s"
	TypeDateISO8601     FieldType = "date_iso8601"
	TypeDateTimeISO8601 FieldType = "datetime_iso8601"
	TypeUUID            FieldType = "uuid"
	TypeArray           FieldType = "array"
	TypeObject          FieldType = "object"
	TypeString          FieldType = "string"
)

// Inference is the result of sampling a field's values: its category, a
// confidence score, and — for temporal categories — the bucket width keys
// must be rounded to before indexing.
type Inference struct {
	Type       FieldType
	Confidence float64
	BucketMs   int64 // 0 if not temporal
}

const (
	bucketMinute = 60_000
	bucketDay    = 86_400_000
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
	uuidRe     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	boolValues = map[string]bool{
		"true": true, "false": true, "0": true, "1": true, "yes": true, "no": true,
	}
)

// Infer samples 10-100 values of a field and infers its FieldType per
// spec §4.G's rule table.
func Infer(samples []value.Value) Inference {
	if len(samples) == 0 {
		return Inference{Type: TypeString, Confidence: 0.5}
	}

	allBoolean, allInt, allFloatable := true, true, true
	allTimestampMs, allTimestampS := true, true
	allDate, allDateTime, allUUID := true, true, true
	anyNonInt := false
	anyEmpty := false

	for _, s := range samples {
		str, isStr := s.String()
		n, isNum := s.AsFloat64()
		b, isBool := s.Bool()

		if isBool {
			_ = b
		} else if isStr && boolValues[strings.ToLower(str)] {
			// string-encoded booleans still count
		} else {
			allBoolean = false
		}

		var numeric float64
		haveNumeric := false
		if isNum {
			numeric = n
			haveNumeric = true
		} else if isStr {
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				numeric = f
				haveNumeric = true
			}
		}
		if !haveNumeric {
			allInt, allFloatable = false, false
			allTimestampMs, allTimestampS = false, false
		} else {
			if numeric != float64(int64(numeric)) {
				allInt = false
				anyNonInt = true
			}
			i := int64(numeric)
			if i < 1_000_000_000_000 || i > 20_000_000_000_000 {
				allTimestampMs = false
			}
			if i < 1_000_000_000 || i > 20_000_000_000 {
				allTimestampS = false
			}
		}

		if isStr {
			if !datetimeRe.MatchString(str) {
				allDateTime = false
			}
			if !dateRe.MatchString(str) {
				allDate = false
			}
			if !uuidRe.MatchString(str) {
				allUUID = false
			}
			if str == "" {
				anyEmpty = true
			}
		} else {
			allDateTime, allDate, allUUID = false, false, false
		}

		if s.IsNull() {
			anyEmpty = true
		}
		if _, isArr := s.Array(); isArr {
			return Inference{Type: TypeArray, Confidence: 1.0}
		}
		if _, isMap := s.Map(); isMap {
			return Inference{Type: TypeObject, Confidence: 1.0}
		}
	}

	switch {
	case allBoolean:
		return Inference{Type: TypeBoolean, Confidence: 1.0}
	case allUUID:
		return Inference{Type: TypeUUID, Confidence: 1.0}
	case allDateTime:
		return Inference{Type: TypeDateTimeISO8601, Confidence: 1.0, BucketMs: bucketMinute}
	case allDate:
		return Inference{Type: TypeDateISO8601, Confidence: 1.0, BucketMs: bucketDay}
	case allTimestampMs:
		return Inference{Type: TypeTimestampMillis, Confidence: 0.95, BucketMs: bucketMinute}
	case allTimestampS:
		return Inference{Type: TypeTimestampSecs, Confidence: 0.95, BucketMs: bucketMinute}
	case allInt && !anyNonInt:
		return Inference{Type: TypeInteger, Confidence: 1.0}
	case allFloatable:
		return Inference{Type: TypeFloat, Confidence: 1.0}
	case anyEmpty && len(samples) == 1:
		return Inference{Type: TypeString, Confidence: 0.5}
	default:
		return Inference{Type: TypeString, Confidence: 0.8}
	}
}

// BucketValue renders val into the string key used as a FieldIndex bitmap
// label, rounding numeric temporal values (Unix seconds or milliseconds) down
// to their inferred bucket width so a high-cardinality `extractedAt`-style
// field doesn't explode the key space. Date and datetime strings are keyed
// verbatim, without bucketing.
func BucketValue(val value.Value) string {
	inf := Infer([]value.Value{val})
	if inf.BucketMs > 0 {
		if n, ok := val.AsFloat64(); ok {
			width := inf.BucketMs
			if inf.Type == TypeTimestampSecs {
				width /= 1000
			}
			bucketed := (int64(n) / width) * width
			return fmt.Sprintf("%s:%d", inf.Type, bucketed)
		}
	}
	return fmt.Sprintf("%v", val.Raw())
}
