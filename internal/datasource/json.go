package datasource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ReadJSON reads JSON records into a table.
//
// Accepted inputs:
//   - a top-level array of objects,
//   - an envelope object whose first array-of-objects field holds the records,
//   - NDJSON (one object per line, or several concatenated objects).
//
// Nested objects are flattened with dotted keys ("address.city"). Columns
// are the sorted union of all keys; records missing a key get nil. Integral
// numbers decode as int64, others as float64.
func ReadJSON(r io.Reader, opt LoadOptions) ([]string, [][]any, error) {
	recs, err := readJSONRecords(r)
	if err != nil {
		return nil, nil, err
	}

	flat := make([]map[string]any, len(recs))
	set := make(map[string]struct{})
	for i, rec := range recs {
		out := make(map[string]any, len(rec))
		flattenJSONRecord("", rec, out)
		for k := range out {
			set[k] = struct{}{}
		}
		flat[i] = out
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]any, len(flat))
	for i, rec := range flat {
		row := make([]any, len(keys))
		for j, k := range keys {
			row[j] = rec[k]
		}
		rows[i] = row
	}

	columns := keys
	if opt.NormalizeHeaders {
		columns = normalizeHeaders(keys)
	}
	return columns, rows, nil
}

func readJSONRecords(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var out []map[string]any
	switch v := root.(type) {
	case []any:
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		if slice := findObjectSliceJSON(v); slice != nil {
			out = append(out, slice...)
		} else {
			out = append(out, v)
		}
	default:
		return nil, fmt.Errorf("decode json: unsupported top-level %T", root)
	}

	// NDJSON / multiple top-level objects.
	for {
		var obj map[string]any
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode json record %d: %w", len(out)+1, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// findObjectSliceJSON returns the first array-of-objects field, trying keys
// in sorted order so the choice is deterministic.
func findObjectSliceJSON(root map[string]any) []map[string]any {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rawSlice, ok := root[k].([]any)
		if !ok || len(rawSlice) == 0 {
			continue
		}
		objects := make([]map[string]any, 0, len(rawSlice))
		valid := true
		for _, elem := range rawSlice {
			if elem == nil {
				continue
			}
			m, ok := elem.(map[string]any)
			if !ok {
				valid = false
				break
			}
			objects = append(objects, m)
		}
		if valid && len(objects) > 0 {
			return objects
		}
	}
	return nil
}

func flattenJSONRecord(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flattenJSONRecord(key, t, out)
		default:
			out[key] = jsonScalar(v)
		}
	}
}

func jsonScalar(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return s
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonScalar(e)
		}
		return out
	default:
		return v
	}
}
