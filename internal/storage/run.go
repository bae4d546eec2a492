package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by LoadParameters for an unknown run ID.
var ErrRunNotFound = errors.New("profiler run not found")

// Table names shared by all backends.
const (
	RunsTable       = "profiler_runs"
	ParametersTable = "profiler_parameters"
)

// Run is one profiler execution.
type Run struct {
	ID        string    `json:"run_id"`
	Profiler  string    `json:"profiler"`
	StartedAt time.Time `json:"started_at"`
	Records   []Record  `json:"records"`
}

// Record is one built parameter of one domain.
type Record struct {
	Rule         string         `json:"rule"`
	DomainID     string         `json:"domain_id"`
	DomainType   string         `json:"domain_type"`
	DomainKwargs map[string]any `json:"domain_kwargs"`
	Name         string         `json:"name"`
	Value        any            `json:"value"`
	Details      map[string]any `json:"details,omitempty"`
}

// Row is a Record in its stored form, with JSON payloads.
type Row struct {
	RunID        string
	Rule         string
	DomainID     string
	DomainType   string
	DomainKwargs string
	Name         string
	Value        string
	Details      string
}

// RowColumns is the column order of ParametersTable; Row.Args follows it.
var RowColumns = []string{
	"run_id", "rule_name", "domain_id", "domain_type", "domain_kwargs",
	"parameter_name", "value", "details",
}

// Args returns the row values in RowColumns order.
func (r Row) Args() []any {
	return []any{r.RunID, r.Rule, r.DomainID, r.DomainType, r.DomainKwargs, r.Name, r.Value, r.Details}
}

// Chunks splits rows into groups whose placeholders fit in maxParams bind
// parameters per statement. At least one row goes into each group.
func Chunks(rows []Row, maxParams int) [][]Row {
	per := max(maxParams/len(RowColumns), 1)
	out := make([][]Row, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		out = append(out, rows[start:min(start+per, len(rows))])
	}
	return out
}

// Rows encodes the run's records. When the same (rule, domain, name) key
// appears more than once, the first occurrence is kept.
func (r Run) Rows() ([]Row, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("storage: run without ID")
	}
	seen := make(map[[3]string]bool, len(r.Records))
	out := make([]Row, 0, len(r.Records))
	for _, rec := range r.Records {
		key := [3]string{rec.Rule, rec.DomainID, rec.Name}
		if seen[key] {
			continue
		}
		seen[key] = true

		row, err := encodeRecord(r.ID, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func encodeRecord(runID string, rec Record) (Row, error) {
	kwargs := rec.DomainKwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	k, err := json.Marshal(kwargs)
	if err != nil {
		return Row{}, fmt.Errorf("encode domain kwargs of %s: %w", rec.Name, err)
	}
	v, err := json.Marshal(rec.Value)
	if err != nil {
		return Row{}, fmt.Errorf("encode value of %s: %w", rec.Name, err)
	}
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	d, err := json.Marshal(details)
	if err != nil {
		return Row{}, fmt.Errorf("encode details of %s: %w", rec.Name, err)
	}
	return Row{
		RunID:        runID,
		Rule:         rec.Rule,
		DomainID:     rec.DomainID,
		DomainType:   rec.DomainType,
		DomainKwargs: string(k),
		Name:         rec.Name,
		Value:        string(v),
		Details:      string(d),
	}, nil
}

// Record decodes a stored row. JSON numbers come back as float64 and sets
// as arrays.
func (r Row) Record() (Record, error) {
	rec := Record{Rule: r.Rule, DomainID: r.DomainID, DomainType: r.DomainType, Name: r.Name}
	if err := json.Unmarshal([]byte(r.DomainKwargs), &rec.DomainKwargs); err != nil {
		return Record{}, fmt.Errorf("decode domain kwargs of %s: %w", r.Name, err)
	}
	if err := json.Unmarshal([]byte(r.Value), &rec.Value); err != nil {
		return Record{}, fmt.Errorf("decode value of %s: %w", r.Name, err)
	}
	if r.Details != "" {
		if err := json.Unmarshal([]byte(r.Details), &rec.Details); err != nil {
			return Record{}, fmt.Errorf("decode details of %s: %w", r.Name, err)
		}
	}
	return rec, nil
}

// Records decodes rows in order.
func Records(rows []Row) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
