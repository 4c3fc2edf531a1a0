package wire

import "math"

// Document is a decoded message. Accessors never panic; a missing key or a
// value of the wrong type yields ok == false.
type Document map[string]any

// Has reports whether key is present, even with a nil value.
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the string value at key.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Bool returns the boolean value at key.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Float returns the numeric value at key as float64. Integers are accepted.
func (d Document) Float(key string) (float64, bool) {
	return ToFloat(d[key])
}

// Int returns the numeric value at key as int64. Floats are accepted only when
// they hold an integral value.
func (d Document) Int(key string) (int64, bool) {
	return ToInt(d[key])
}

// Map returns the nested document at key.
func (d Document) Map(key string) (Document, bool) {
	return AsDocument(d[key])
}

// List returns the array at key.
func (d Document) List(key string) ([]any, bool) {
	l, ok := d[key].([]any)
	return l, ok
}

// AsDocument converts a decoded map value to a Document.
func AsDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, m != nil
	case map[string]any:
		return Document(m), m != nil
	default:
		return nil, false
	}
}

// ToFloat converts any decoded CBOR number to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToInt converts any decoded CBOR number to int64.
func ToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
