// Package datasource loads tabular batches and serves them to the profiler.
//
// A batch is one loaded slice of an asset (one file, one page, one day of
// data). Batches of an asset keep the order they were added in; that order is
// the row order of every metric vector the builders see.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"profiler/internal/domain"
)

var (
	// ErrAssetNotFound is returned for unknown datasource/asset pairs.
	ErrAssetNotFound = errors.New("data asset not found")
	// ErrBatchNotFound is returned for unknown batch IDs or indices.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrColumnNotFound is returned when a batch has no such column.
	ErrColumnNotFound = errors.New("column not found")
)

// Batch is one loaded table. Rows are aligned with Columns; a nil cell is a
// missing value.
type Batch struct {
	ID         string
	Datasource string
	Asset      string
	Index      int
	Columns    []string
	Rows       [][]any
}

// NewBatch builds a batch and derives its ID from datasource, asset and index.
func NewBatch(datasource, asset string, index int, columns []string, rows [][]any) *Batch {
	id := domain.Hash("batch", map[string]any{
		"datasource": datasource,
		"asset":      asset,
		"index":      index,
	})
	return &Batch{
		ID:         id[:32],
		Datasource: datasource,
		Asset:      asset,
		Index:      index,
		Columns:    columns,
		Rows:       rows,
	}
}

// ColumnIndex returns the position of name in Columns.
func (b *Batch) ColumnIndex(name string) (int, bool) {
	for i, c := range b.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// ColumnValues returns the values of one column, missing cells included as
// nil.
func (b *Batch) ColumnValues(name string) ([]any, error) {
	ix, ok := b.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in batch %s", ErrColumnNotFound, name, b.ID)
	}
	out := make([]any, len(b.Rows))
	for i, r := range b.Rows {
		if ix < len(r) {
			out[i] = r[ix]
		}
	}
	return out, nil
}

// Request selects batches of one asset.
//
// Edge cases:
//   - Indices select batches by position; negative indices count from the
//     end (-1 is the latest batch). Duplicates are kept once, in request order.
//   - Limit, when > 0, keeps the first Limit selected batches.
//   - An empty Indices selects every batch of the asset.
type Request struct {
	Datasource string `json:"datasource_name" yaml:"datasource_name"`
	Asset      string `json:"data_asset_name" yaml:"data_asset_name"`
	Indices    []int  `json:"indices,omitempty" yaml:"indices,omitempty"`
	Limit      int    `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Provider resolves batch requests.
type Provider interface {
	GetBatchList(ctx context.Context, req Request) ([]*Batch, error)
}

// Catalog is an in-memory Provider over named datasources and assets.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	assets map[string][]*Batch // datasource + "/" + asset
	byID   map[string]*Batch
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		assets: make(map[string][]*Batch),
		byID:   make(map[string]*Batch),
	}
}

func assetKey(datasource, asset string) string { return datasource + "/" + asset }

// Add appends a batch built from columns and rows to an asset and returns it.
func (c *Catalog) Add(datasource, asset string, columns []string, rows [][]any) *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := assetKey(datasource, asset)
	b := NewBatch(datasource, asset, len(c.assets[key]), columns, rows)
	c.assets[key] = append(c.assets[key], b)
	c.byID[b.ID] = b
	return b
}

// Batch returns a batch by ID.
func (c *Catalog) Batch(id string) (*Batch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b, nil
}

// Assets lists "datasource/asset" keys, sorted.
func (c *Catalog) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.assets))
	for k := range c.assets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetBatchList implements Provider.
func (c *Catalog) GetBatchList(ctx context.Context, req Request) ([]*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	all, ok := c.assets[assetKey(req.Datasource, req.Asset)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrAssetNotFound, req.Datasource, req.Asset)
	}

	var out []*Batch
	if len(req.Indices) == 0 {
		out = append(out, all...)
	} else {
		seen := make(map[int]bool, len(req.Indices))
		for _, i := range req.Indices {
			ix := i
			if ix < 0 {
				ix += len(all)
			}
			if ix < 0 || ix >= len(all) {
				return nil, fmt.Errorf("%w: index %d of %s/%s (have %d)", ErrBatchNotFound, i, req.Datasource, req.Asset, len(all))
			}
			if seen[ix] {
				continue
			}
			seen[ix] = true
			out = append(out, all[ix])
		}
	}

	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}
