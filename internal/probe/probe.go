// Package probe samples the head of a dataset and drafts a profiler
// configuration for it.
//
// The sample is bounded (default 20KB), so probing a large remote file is
// cheap. Rows cut off by the byte limit are dropped before parsing.
package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"profiler/internal/config"
	"profiler/internal/datasource"
	"profiler/internal/logging"
)

const defaultMaxBytes = 20000

// Options controls one probe run.
type Options struct {
	// URL is an http(s) URL, a file:// URL or a bare local path.
	URL string
	// MaxBytes to sample from the start of the input.
	MaxBytes int
	// Name of the generated profiler, datasource and asset (normalized).
	Name string
	// Format forces csv, json or html; empty sniffs the sample.
	Format string
	// Delimiter for CSV; defaults to ','.
	Delimiter string
	// SaveSample writes the sampled bytes to [name].{csv,json,html} in the
	// working directory and points the drafted datasource at that file.
	SaveSample bool
	// AllowInsecureTLS skips certificate verification for HTTPS sources.
	AllowInsecureTLS bool
}

// HTTPPeekFn fetches the first n bytes of url.
type HTTPPeekFn func(ctx context.Context, url string, n int, insecure bool) ([]byte, error)

// httpPeekFn is the overridable fetch seam. Local paths and file:// URLs are
// read from disk; everything else goes through net/http with a Range header.
var httpPeekFn HTTPPeekFn = func(ctx context.Context, url string, n int, insecure bool) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("peek: n must be > 0")
	}
	if !isRemote(url) {
		f, err := os.Open(localPath(url))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, int64(n)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	client := &http.Client{Timeout: 30 * time.Second}
	if insecure {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("peek %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func localPath(url string) string { return strings.TrimPrefix(url, "file://") }

// Probe samples opt.URL, summarizes its columns and drafts a profiler
// configuration for it.
//
// Errors:
//   - Returns an error if the sample cannot be fetched or parsed, or holds no
//     columns.
func Probe(ctx context.Context, opt Options) (config.Profiler, Report, error) {
	if strings.TrimSpace(opt.URL) == "" {
		return config.Profiler{}, Report{}, errors.New("probe: url is required")
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = defaultMaxBytes
	}
	name := datasource.NormalizeFieldName(opt.Name)
	if name == "" {
		name = "dataset"
	}

	sample, err := httpPeekFn(ctx, opt.URL, opt.MaxBytes, opt.AllowInsecureTLS)
	if err != nil {
		return config.Profiler{}, Report{}, fmt.Errorf("probe: fetch %s: %w", opt.URL, err)
	}
	format := strings.ToLower(opt.Format)
	if format == "" {
		if format = sniffFormat(sample); format == "" {
			return config.Profiler{}, Report{}, fmt.Errorf("probe: %s: empty sample", opt.URL)
		}
	}
	truncated := len(sample) >= opt.MaxBytes
	if truncated {
		sample = trimSample(sample, format)
	}

	cols, rows, err := readSample(sample, format, datasource.LoadOptions{Delimiter: opt.Delimiter, NormalizeHeaders: true})
	if err != nil {
		return config.Profiler{}, Report{}, fmt.Errorf("probe: parse %s sample: %w", format, err)
	}
	if len(cols) == 0 {
		return config.Profiler{}, Report{}, fmt.Errorf("probe: %s: no columns in sample", opt.URL)
	}
	rep := Summarize(cols, rows)
	rep.Format = format
	rep.Truncated = truncated

	path := opt.URL
	if !isRemote(path) {
		path = localPath(path)
	}
	if opt.SaveSample {
		path = name + "." + format
		if err := os.WriteFile(path, sample, 0o644); err != nil {
			return config.Profiler{}, Report{}, fmt.Errorf("probe: save sample: %w", err)
		}
	}

	logging.New("probe").Debug("sample probed", "url", opt.URL, "format", format, "bytes", len(sample), "rows", rep.Rows, "columns", len(cols))
	return Draft(name, format, path, rep), rep, nil
}

// sniffFormat guesses the format from the first non-space byte.
func sniffFormat(sample []byte) string {
	trim := bytes.TrimSpace(sample)
	if len(trim) == 0 {
		return ""
	}
	switch trim[0] {
	case '<':
		return datasource.FormatHTML
	case '{', '[':
		return datasource.FormatJSON
	default:
		return datasource.FormatCSV
	}
}

// trimSample drops the record cut off by the byte limit: the partial last
// line of CSV or NDJSON, or the partial last element of a JSON array.
func trimSample(sample []byte, format string) []byte {
	switch format {
	case datasource.FormatCSV:
		if i := bytes.LastIndexByte(sample, '\n'); i >= 0 {
			return sample[:i+1]
		}
	case datasource.FormatJSON:
		if trim := bytes.TrimSpace(sample); len(trim) > 0 && trim[0] == '[' {
			return completeElements(trim)
		}
		if i := bytes.LastIndexByte(sample, '\n'); i >= 0 {
			return sample[:i+1]
		}
	}
	return sample
}

// completeElements re-encodes the complete elements of a truncated JSON
// array.
func completeElements(b []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return b
	}
	elems := []json.RawMessage{}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			break
		}
		elems = append(elems, raw)
	}
	out, err := json.Marshal(elems)
	if err != nil {
		return b
	}
	return out
}

func readSample(sample []byte, format string, opt datasource.LoadOptions) ([]string, [][]any, error) {
	r := bytes.NewReader(sample)
	switch format {
	case datasource.FormatCSV:
		return datasource.ReadCSV(r, opt)
	case datasource.FormatJSON:
		return datasource.ReadJSON(r, opt)
	case datasource.FormatHTML:
		return datasource.ReadHTMLTable(r, opt)
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", format)
	}
}
