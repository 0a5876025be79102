package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

// Value variants.
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindArray
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	default:
		return unknownDescription
	}
}

const unknownDescription = "unknown"

// Value is a typed index field value: a string, number, boolean, date,
// an array of those, or null. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	t    time.Time
	arr  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Number(float64(i)) }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value. Dates are kept at millisecond precision in UTC,
// which is the precision every index backend persists.
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: time.UnixMilli(t.UnixMilli()).UTC()}
}

// DateMillis returns a date value from epoch milliseconds.
func DateMillis(ms int64) Value {
	return Value{kind: KindDate, t: time.UnixMilli(ms).UTC()}
}

// Array returns an array value.
func Array(values ...Value) Value {
	arr := make([]Value, len(values))
	copy(arr, values)
	return Value{kind: KindArray, arr: arr}
}

// Strings returns an array of string values.
func Strings(values ...string) Value {
	arr := make([]Value, len(values))
	for i, s := range values {
		arr[i] = String(s)
	}
	return Value{kind: KindArray, arr: arr}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether v is null or an empty string.
func (v Value) IsEmpty() bool {
	return v.kind == KindNull || (v.kind == KindString && v.str == "")
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number held by v.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the boolean held by v.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindDate }

// Items returns the elements of an array, a single-element slice for a
// scalar and nil for null.
func (v Value) Items() []Value {
	switch v.kind {
	case KindArray:
		return v.arr
	case KindNull:
		return nil
	default:
		return []Value{v}
	}
}

// Interface returns the JSON-friendly native form of v. Dates become epoch
// milliseconds.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.t.UnixMilli()
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Text returns a display form of v.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.Text()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Compare orders two scalar values. Numbers and dates compare with each
// other through epoch milliseconds. The boolean result is false when the
// values are not comparable.
func Compare(a, b Value) (int, bool) {
	if an, ok := a.ordinal(); ok {
		if bn, ok := b.ordinal(); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch {
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.str, b.str), true
	case a.kind == KindBool && b.kind == KindBool:
		switch {
		case a.b == b.b:
			return 0, true
		case !a.b:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func (v Value) ordinal() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindDate:
		return float64(v.t.UnixMilli()), true
	default:
		return 0, false
	}
}

// ValueOf converts a native Go value into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("%w: non-finite number", ErrInvalidArgument)
		}
		return Number(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrInvalidArgument, t, err)
		}
		return Number(f), nil
	case time.Time:
		return Date(t), nil
	case *time.Time:
		if t == nil {
			return Null(), nil
		}
		return Date(*t), nil
	case []string:
		return Strings(t...), nil
	case []Value:
		return Array(t...), nil
	case []any:
		arr := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, v)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case []int:
		arr := make([]Value, len(t))
		for i, n := range t {
			arr[i] = Int(int64(n))
		}
		return Value{kind: KindArray, arr: arr}, nil
	case []float64:
		arr := make([]Value, len(t))
		for i, n := range t {
			arr[i] = Number(n)
		}
		return Value{kind: KindArray, arr: arr}, nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported field value type %T", ErrInvalidArgument, x)
	}
}

// MarshalJSON encodes the native form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON scalar or array. Dates cannot be told
// apart from numbers in JSON and decode as numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Fields maps index field names to values.
type Fields map[string]Value

// FieldsOf converts a native map into Fields.
func FieldsOf(m map[string]any) (Fields, error) {
	if m == nil {
		return nil, nil
	}
	fields := make(Fields, len(m))
	for name, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = v
	}
	return fields, nil
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Native returns the JSON-friendly form of every field.
func (f Fields) Native() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Interface()
	}
	return out
}

// Equal reports whether both maps hold equal values under the same names.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Validate rejects empty names and names colliding with reserved fields.
func (f Fields) Validate() error {
	for name := range f {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidArgument)
		}
		if IsReserved(name) {
			return fmt.Errorf("%w: field %q is reserved", ErrInvalidArgument, name)
		}
	}
	return nil
}
