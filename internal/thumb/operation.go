package thumb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Operation is a single queued transform: a handler name plus the
// arguments it will be called with.
type Operation struct {
	Name string
	Args []any
}

// Queue is an ordered list of operations. Order is significant: it is the
// order of execution and it is part of the cache key.
type Queue []Operation

// Keyer is implemented by argument values that cannot be serialized
// directly (callbacks, handles) but have a stable identity.
type Keyer interface {
	CacheKey() string
}

// Clone returns a copy of q that shares no argument slices with it.
func (q Queue) Clone() Queue {
	if q == nil {
		return nil
	}

	out := make(Queue, len(q))
	for i, op := range q {
		out[i] = Operation{Name: op.Name, Args: append([]any(nil), op.Args...)}
	}

	return out
}

// MarshalCanonical encodes the queue as a JSON-like array of arrays,
// [["name",arg1,arg2],...].
//
// The encoding depends only on values, not on Go types: every integer kind
// and every integral float encodes as a plain decimal integer, so 200,
// int64(200) and 200.0 produce the same bytes.
func (q Queue) MarshalCanonical() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('[')
	for i, op := range q {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteByte('[')
		writeString(&buf, op.Name)
		for j, arg := range op.Args {
			buf.WriteByte(',')
			if err := writeValue(&buf, arg); err != nil {
				return nil, fmt.Errorf("%s argument %d: %w", op.Name, j, err)
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')

	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}

	switch t := v.(type) {
	case Keyer:
		writeString(buf, t.CacheKey())
		return nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("%w: number %q", ErrUnserializable, t)
		}
		writeFloat(buf, f)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		writeFloat(buf, rv.Float())
	case reflect.String:
		writeString(buf, rv.String())
	case reflect.Slice, reflect.Array:
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case reflect.Pointer:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return writeValue(buf, rv.Elem().Interface())
	default:
		return fmt.Errorf("%w: %T", ErrUnserializable, v)
	}

	return nil
}

// maxExactFloat is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactFloat = 1 << 53

func writeFloat(buf *bytes.Buffer, f float64) {
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloat {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}

	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeString(buf *bytes.Buffer, s string) {
	// Marshalling a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
