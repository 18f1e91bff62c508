package pgwire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// encodeParam converts a bind parameter to its text representation. A
// nil result with ok=false means "null": the caller writes length -1
// and no body.
func encodeParam(v any) (text []byte, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return []byte(x), true, nil
	case []byte:
		return x, true, nil
	case bool:
		if x {
			return []byte("t"), true, nil
		}
		return []byte("f"), true, nil
	case int:
		return []byte(strconv.FormatInt(int64(x), 10)), true, nil
	case int16:
		return []byte(strconv.FormatInt(int64(x), 10)), true, nil
	case int32:
		return []byte(strconv.FormatInt(int64(x), 10)), true, nil
	case int64:
		return []byte(strconv.FormatInt(x, 10)), true, nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(x), 10)), true, nil
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32)), true, nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64)), true, nil
	case time.Time:
		return []byte(x.Format("2006-01-02 15:04:05.999999999Z07:00")), true, nil
	case fmt.Stringer:
		return []byte(x.String()), true, nil
	default:
		lit, encErr := encodeArrayParam(x)
		if encErr != nil {
			return nil, false, encErr
		}
		return lit, true, nil
	}
}

// encodeArrayParam renders a slice of scalars as a Postgres array
// literal ("{elem1,elem2,...}"). Anything not a recognised scalar or
// slice fails with an *InterfaceError rather than silently stringifying
// via fmt.Sprint, since a caller's type mistake here would otherwise
// surface as a confusing server-side syntax error instead of a
// client-side one.
func encodeArrayParam(v any) ([]byte, error) {
	switch x := v.(type) {
	case []string:
		elems := make([]string, len(x))
		for i, s := range x {
			elems[i] = quoteArrayElement(s)
		}
		return []byte(joinArrayLiteral(elems)), nil
	case []int:
		return encodeScalarSlice(x, func(e int) string { return strconv.Itoa(e) })
	case []int32:
		return encodeScalarSlice(x, func(e int32) string { return strconv.FormatInt(int64(e), 10) })
	case []int64:
		return encodeScalarSlice(x, func(e int64) string { return strconv.FormatInt(e, 10) })
	case []float64:
		return encodeScalarSlice(x, func(e float64) string { return strconv.FormatFloat(e, 'g', -1, 64) })
	case []bool:
		return encodeScalarSlice(x, func(e bool) string {
			if e {
				return "t"
			}
			return "f"
		})
	default:
		return nil, &InterfaceError{Detail: fmt.Sprintf("cannot encode parameter of type %T", v)}
	}
}

func encodeScalarSlice[T any](xs []T, format func(T) string) ([]byte, error) {
	elems := make([]string, len(xs))
	for i, e := range xs {
		elems[i] = format(e)
	}
	return []byte(joinArrayLiteral(elems)), nil
}

func joinArrayLiteral(elems []string) string {
	return "{" + strings.Join(elems, ",") + "}"
}

// quoteArrayElement double-quotes a string array element, escaping `"`
// and `\` with a leading backslash. NULL is represented by
// the literal unquoted token NULL, which this never produces since a Go
// nil can't appear inside a []string; per-element nulls in string arrays
// are therefore outside this encoder's contract.
func quoteArrayElement(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
