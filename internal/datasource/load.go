package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatHTML = "html"
)

// LoadOptions controls how one file is turned into a batch.
type LoadOptions struct {
	// Format is csv, json or html; empty means "by file extension".
	Format string
	// Delimiter for CSV; defaults to ','.
	Delimiter string
	// Selector picks the HTML table; defaults to "table".
	Selector string
	// NormalizeHeaders rewrites column names to lowercase identifiers.
	NormalizeHeaders bool
}

func (o LoadOptions) delimiter() rune {
	if o.Delimiter == "" {
		return ','
	}
	if o.Delimiter == `\t` {
		return '\t'
	}
	return []rune(o.Delimiter)[0]
}

// DetectFormat maps a file extension to a format.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json", ".ndjson", ".jsonl":
		return FormatJSON, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("datasource: cannot detect format of %q", path)
	}
}

// LoadFile reads one file into columns and rows.
func LoadFile(path string, opt LoadOptions) ([]string, [][]any, error) {
	format := strings.ToLower(opt.Format)
	if format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, nil, err
		}
		format = f
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	var cols []string
	var rows [][]any
	switch format {
	case FormatCSV:
		cols, rows, err = ReadCSV(fh, opt)
	case FormatJSON:
		cols, rows, err = ReadJSON(fh, opt)
	case FormatHTML:
		cols, rows, err = ReadHTMLTable(fh, opt)
	default:
		return nil, nil, fmt.Errorf("datasource: unsupported format %q", opt.Format)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cols, rows, nil
}

// LoadAsset loads every path as one batch of datasource/asset, in order.
func (c *Catalog) LoadAsset(ctx context.Context, datasource, asset string, paths []string, opt LoadOptions) ([]*Batch, error) {
	out := make([]*Batch, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, rows, err := LoadFile(p, opt)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Add(datasource, asset, cols, rows))
	}
	return out, nil
}
