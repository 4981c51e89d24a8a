// Package normalize turns heterogeneous JSON record streams into flat,
// typed, relationally-linked tables: it splits polymorphic streams by type
// tag, infers column schemas over a tagged-union value model, and
// recursively decomposes compound columns into child tables.
package normalize

import (
	"regexp"
	"strconv"
)

// Kind tags a Value with its inferred primitive or compound type
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindDate
	KindTimestamp
	KindArray
	KindObject
)

// String returns the kind name used in logs and schema descriptors
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Compound reports whether the kind needs decomposition before export
func (k Kind) Compound() bool {
	return k == KindArray || k == KindObject
}

// Value is one element of the tagged-union value model. Scalar string-backed
// kinds (string, date, timestamp, decimal) keep their source text so export
// never reformats data.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Arr   []Value
	Obj   map[string]Value
}

// Null is the null value
var Null = Value{Kind: KindNull}

// Classification patterns for string payloads. Dates and timestamps follow
// the ISO forms the Admin API emits; decimals match money-style strings.
// Bare digit strings stay strings: identifiers and postal codes are not
// numbers.
var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	decimalPattern   = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// FromJSON converts a decoded JSON value into the tagged union
func FromJSON(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case float64:
		if x == float64(int64(x)) {
			return Value{Kind: KindInt, Int: int64(x)}
		}
		return Value{Kind: KindFloat, Float: x}
	case int:
		return Value{Kind: KindInt, Int: int64(x)}
	case int64:
		return Value{Kind: KindInt, Int: x}
	case string:
		return classifyString(x)
	case []interface{}:
		arr := make([]Value, len(x))
		for i, elem := range x {
			arr[i] = FromJSON(elem)
		}
		return Value{Kind: KindArray, Arr: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(x))
		for key, elem := range x {
			obj[key] = FromJSON(elem)
		}
		return Value{Kind: KindObject, Obj: obj}
	default:
		return Value{Kind: KindString, Str: ""}
	}
}

// classifyString picks the narrowest string-backed kind for a payload
func classifyString(s string) Value {
	switch {
	case datePattern.MatchString(s):
		return Value{Kind: KindDate, Str: s}
	case timestampPattern.MatchString(s):
		return Value{Kind: KindTimestamp, Str: s}
	case decimalPattern.MatchString(s):
		return Value{Kind: KindDecimal, Str: s}
	default:
		return Value{Kind: KindString, Str: s}
	}
}

// IsNull reports whether the value is null
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Render returns the CSV cell representation of the value
func (v Value) Render() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString, KindDate, KindTimestamp, KindDecimal:
		return v.Str
	default:
		// Compound values never reach export; render defensively anyway
		return ""
	}
}

// Widen returns the most general kind covering both operands.
// Integer widens to float or decimal; date widens to timestamp; any other
// disagreement collapses to string. Compound kinds dominate scalars so a
// partially-structured column is still decomposed.
func Widen(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == KindNull {
		return b
	}
	if b == KindNull {
		return a
	}

	// Compound kinds win: one structured value makes the column compound
	if a == KindArray || b == KindArray {
		return KindArray
	}
	if a == KindObject || b == KindObject {
		return KindObject
	}

	switch {
	case numericPair(a, b, KindInt, KindFloat):
		return KindFloat
	case numericPair(a, b, KindInt, KindDecimal):
		return KindDecimal
	case numericPair(a, b, KindDecimal, KindFloat):
		return KindFloat
	case numericPair(a, b, KindDate, KindTimestamp):
		return KindTimestamp
	default:
		return KindString
	}
}

func numericPair(a, b, x, y Kind) bool {
	return (a == x && b == y) || (a == y && b == x)
}
