package probe

import (
	"fmt"
	"sort"
	"strings"

	"profiler/internal/datasource"
)

// distinctCapPerColumn bounds distinct tracking per column.
const distinctCapPerColumn = 10000

// Column summarizes one sampled column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	NonNull  int    `json:"non_null"`
	Distinct int    `json:"distinct"`
	// Capped is set when Distinct stopped counting at the cap.
	Capped bool `json:"capped,omitempty"`
}

// UniqueRatio is Distinct over NonNull; 0 for an all-null column.
func (c Column) UniqueRatio() float64 {
	if c.NonNull == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.NonNull)
}

// Report describes a probed sample.
type Report struct {
	Format    string   `json:"format"`
	Rows      int      `json:"rows"`
	Truncated bool     `json:"truncated"`
	Columns   []Column `json:"columns"`
}

// Summarize counts non-null and distinct values per column and infers each
// column's type from its values.
//
// Edge cases:
//   - Rows shorter than cols count as null for the missing cells.
//   - A column mixing value kinds is text; integers mixed with floats are
//     float.
func Summarize(cols []string, rows [][]any) Report {
	rep := Report{Rows: len(rows), Columns: make([]Column, len(cols))}
	for i, name := range cols {
		c := Column{Name: name}
		seen := make(map[string]struct{})
		var values []any
		for _, r := range rows {
			if i >= len(r) || r[i] == nil {
				continue
			}
			c.NonNull++
			values = append(values, r[i])
			if c.Capped {
				continue
			}
			seen[fmt.Sprintf("%T:%v", r[i], r[i])] = struct{}{}
			if len(seen) >= distinctCapPerColumn {
				c.Capped = true
			}
		}
		c.Distinct = len(seen)
		c.Type = valueType(values)
		rep.Columns[i] = c
	}
	return rep
}

func valueType(values []any) string {
	if len(values) == 0 {
		return datasource.TypeText
	}
	var ints, floats, bools, strs int
	for _, v := range values {
		switch v.(type) {
		case int64, int:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case string:
			strs++
		}
	}
	switch n := len(values); {
	case ints == n:
		return datasource.TypeInteger
	case ints+floats == n:
		return datasource.TypeFloat
	case bools == n:
		return datasource.TypeBoolean
	case strs == n:
		cells := make([][]string, n)
		for i, v := range values {
			cells[i] = []string{v.(string)}
		}
		return datasource.InferTypes([]string{"v"}, cells)[0]
	default:
		return datasource.TypeText
	}
}

// String renders the uniqueness report, most repetitive columns first.
// All-null columns are omitted.
func (r Report) String() string {
	if r.Rows == 0 {
		return "uniqueness: no rows sampled"
	}

	cols := make([]Column, 0, len(r.Columns))
	for _, c := range r.Columns {
		if c.NonNull > 0 {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].UniqueRatio() == cols[j].UniqueRatio() {
			return cols[i].Name < cols[j].Name
		}
		return cols[i].UniqueRatio() < cols[j].UniqueRatio()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tformat=%s\tsampled_rows=%d\ttruncated=%t\n", r.Format, r.Rows, r.Truncated)
	fmt.Fprintf(&b, "%-15s\t%-9s\t%-7s\t%-7s\tratio\tcapped\n", "col", "type", "unique", "rows")
	for _, c := range cols {
		fmt.Fprintf(&b, "%-15s\t%-9s\t%-7d\t%-7d\t%.1f%%\t%t\n", c.Name, c.Type, c.Distinct, c.NonNull, c.UniqueRatio()*100, c.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}
