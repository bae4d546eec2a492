package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV parses a CSV table with a header row into typed rows.
//
// Edge cases:
//   - Records with a field count different from the header are skipped.
//   - A UTF-8 BOM on the first header cell is removed.
//   - Cells are trimmed; empty cells become nil.
//
// Column types are inferred over the whole table and applied with Coerce.
func ReadCSV(r io.Reader, opt LoadOptions) ([]string, [][]any, error) {
	headers, rows, err := readCSVRecords(r, opt.delimiter())
	if err != nil {
		return nil, nil, err
	}
	if opt.NormalizeHeaders {
		headers = normalizeHeaders(headers)
	}
	return headers, Coerce(InferTypes(headers, rows), rows), nil
}

func readCSVRecords(src io.Reader, delimiter rune) ([]string, [][]string, error) {
	r := csv.NewReader(src)
	r.Comma = delimiter
	r.FieldsPerRecord = -1 // we validate manually
	r.LazyQuotes = true

	headers, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i := range headers {
		h := strings.TrimSpace(headers[i])
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = h
	}

	rows := make([][]string, 0, 1024)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv read: %w", err)
		}
		if len(rec) != len(headers) {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}
