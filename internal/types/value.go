// Package types provides the table model and the structured records shared across the
// augmentation pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Kind identifies the dynamic type of a cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single typed cell. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Null returns a null cell.
func Null() Value { return Value{} }

// Number returns a numeric cell.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the dynamic type of the cell.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMissing reports whether the cell is null or a blank string.
// Missing cells count towards a column's null rate.
func (v Value) IsMissing() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	default:
		return false
	}
}

// Float returns the numeric value of the cell. Strings are parsed; bools and
// non-finite numbers are not numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(s)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Raw returns the underlying Go value: nil, float64, string or bool.
func (v Value) Raw() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text returns the canonical string form of the cell. Null cells render as "".
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return cast.ToString(v.num)
	case KindString:
		return v.str
	case KindBool:
		return cast.ToString(v.b)
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same kind and value.
func (v Value) Equal(o Value) bool {
	return v == o
}

// Equivalent reports whether two cells hold the same value regardless of how
// a file format typed them. Missing cells match each other, numeric cells
// compare by value and the rest by their text form. A numeric string read
// from CSV is equivalent to the double a Parquet file stores for it.
func (v Value) Equivalent(o Value) bool {
	if v.IsMissing() || o.IsMissing() {
		return v.IsMissing() && o.IsMissing()
	}
	if a, ok := v.Float(); ok {
		if b, ok := o.Float(); ok {
			return a == b
		}
	}
	return v.Text() == o.Text()
}

// ValueOf converts a decoded Go value into a cell.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Number(cast.ToFloat64(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return String(cast.ToString(t))
		}
		return String(string(b))
	}
}

// MarshalJSON encodes the cell as a JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw())
}

// UnmarshalJSON decodes a JSON scalar into the cell.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	*v = ValueOf(x)
	return nil
}
