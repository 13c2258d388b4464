package thumb

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Args wraps an operation's argument list with typed, defaulting accessors.
// A missing or nil argument takes the supplied default.
type Args struct {
	op   string
	list []any
}

// NewArgs wraps list for operation op.
func NewArgs(op string, list []any) Args {
	return Args{op: op, list: list}
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.list)
}

// Raw returns argument i, or nil when absent.
func (a Args) Raw(i int) any {
	if i < 0 || i >= len(a.list) {
		return nil
	}
	return a.list[i]
}

// Rest returns the arguments from index i on.
func (a Args) Rest(i int) []any {
	if i >= len(a.list) {
		return nil
	}
	return a.list[i:]
}

// Arity fails with ErrInvalidArgument unless lo <= Len() <= hi.
// A negative hi means no upper bound.
func (a Args) Arity(lo, hi int) error {
	n := len(a.list)
	if n < lo || (hi >= 0 && n > hi) {
		return fmt.Errorf("%w: %s: got %d arguments", ErrInvalidArgument, a.op, n)
	}
	return nil
}

// Int returns argument i as an int.
func (a Args) Int(i, def int) (int, error) {
	v := a.Raw(i)
	if v == nil {
		return def, nil
	}

	n, ok := toInt(v)
	if !ok {
		return 0, a.bad(i, v, "integer")
	}

	return n, nil
}

// Ints decodes len(defs) consecutive integers starting at from.
func (a Args) Ints(from int, defs ...int) ([]int, error) {
	out := make([]int, len(defs))
	for i, def := range defs {
		n, err := a.Int(from+i, def)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}

	return out, nil
}

// Float returns argument i as a float64.
func (a Args) Float(i int, def float64) (float64, error) {
	v := a.Raw(i)
	if v == nil {
		return def, nil
	}

	f, ok := toFloat(v)
	if !ok {
		return 0, a.bad(i, v, "number")
	}

	return f, nil
}

// Bool returns argument i as a bool. Numbers are accepted as truthy when
// non-zero.
func (a Args) Bool(i int, def bool) (bool, error) {
	v := a.Raw(i)
	if v == nil {
		return def, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	if f, ok := toFloat(v); ok {
		return f != 0, nil
	}

	return false, a.bad(i, v, "bool")
}

// String returns argument i as a string.
func (a Args) String(i int, def string) (string, error) {
	v := a.Raw(i)
	if v == nil {
		return def, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", a.bad(i, v, "string")
	}

	return rv.String(), nil
}

func (a Args) bad(i int, v any, want string) error {
	return fmt.Errorf("%w: %s argument %d: %v (%T) is not a %s", ErrInvalidArgument, a.op, i, v, v, want)
}

func toInt(v any) (int, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	default:
		return 0, false
	}
}

// floatToInt accepts integral values that fit in an int.
func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
