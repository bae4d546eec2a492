package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Hash computes a deterministic SHA-256 fingerprint over a kind label and a
// kwargs mapping.
//
// Canonicalization rules:
//   - Map keys are sorted, so two maps with equal contents hash equally no
//     matter how they were built.
//   - Missing or nil values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - Common scalar types are converted without fmt.Sprint.
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Slices keep their order; nested maps are canonicalized recursively.
//
// The output is a lowercase hex string (length 64).
func Hash(kind string, kwargs map[string]any) string {
	var b strings.Builder
	b.Grow(32 + len(kwargs)*24)

	b.WriteString(kind)
	b.WriteByte('\x1f')
	appendCanonicalValue(&b, kwargs)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// appendCanonicalValue appends a stable, canonical representation of v.
// It avoids fmt.Sprint for common types to reduce allocations.
func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		b.WriteByte('s')
		b.WriteString(strconv.Quote(t))

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte('=')
			appendCanonicalValue(b, t[k])
		}
		b.WriteByte('}')

	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			appendCanonicalValue(b, e)
		}
		b.WriteByte(']')

	case []string:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			appendCanonicalValue(b, e)
		}
		b.WriteByte(']')

	default:
		appendReflectValue(b, v)
	}
}

// appendReflectValue handles the remaining kinds (typed maps and slices,
// small integer types) through reflection. Everything else falls back to
// fmt.Sprint.
func appendReflectValue(b *strings.Builder, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		appendCanonicalValue(b, m)
		return

	case reflect.Slice, reflect.Array:
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = rv.Index(i).Interface()
		}
		appendCanonicalValue(b, s)
		return

	case reflect.Int8, reflect.Int16:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return
	}
	b.WriteString(fmt.Sprint(v))
}
