package postgres

import (
	"strings"
	"testing"

	"profiler/internal/storage"
)

func TestBuildCreateSQL_UsesJSONB(t *testing.T) {
	t.Parallel()

	ddl := buildCreateSQL()
	if len(ddl) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(ddl))
	}
	if !strings.Contains(ddl[0], "CREATE TABLE IF NOT EXISTS profiler_runs") || !strings.Contains(ddl[0], "TIMESTAMPTZ") {
		t.Fatalf("runs DDL: %q", ddl[0])
	}
	if !strings.Contains(ddl[1], "domain_kwargs JSONB NOT NULL") {
		t.Fatalf("parameters DDL missing JSONB kwargs: %q", ddl[1])
	}
	if !strings.Contains(ddl[1], "PRIMARY KEY (run_id, rule_name, domain_id, parameter_name)") {
		t.Fatalf("parameters DDL missing primary key: %q", ddl[1])
	}
}

func TestBuildInsertSQL_NumbersPlaceholders(t *testing.T) {
	t.Parallel()

	rows := []storage.Row{
		{RunID: "r", Rule: "a", DomainKwargs: "{}", Value: "1", Details: "{}"},
		{RunID: "r", Rule: "b", DomainKwargs: "{}", Value: "2", Details: "{}"},
	}
	sql, args := buildInsertSQL(rows)

	if !strings.HasPrefix(sql, `INSERT INTO profiler_parameters ("run_id", "rule_name", "domain_id"`) {
		t.Fatalf("unexpected prefix: %q", sql)
	}
	if !strings.Contains(sql, "($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb, $8::jsonb)") {
		t.Fatalf("first tuple wrong: %q", sql)
	}
	if !strings.Contains(sql, "($9, $10, $11, $12, $13::jsonb, $14, $15::jsonb, $16::jsonb);") {
		t.Fatalf("second tuple wrong: %q", sql)
	}
	if len(args) != 16 {
		t.Fatalf("args=%d want 16", len(args))
	}
	if args[9] != "b" {
		t.Fatalf("args[9]=%v want b", args[9])
	}
}

func TestPgIdent_EscapesQuotes(t *testing.T) {
	t.Parallel()
	if got := pgIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("pgIdent=%s", got)
	}
}

func TestBuildInsertSQL_ChunksStayUnderParameterLimit(t *testing.T) {
	t.Parallel()

	rows := make([]storage.Row, 9000)
	for i := range rows {
		rows[i] = storage.Row{RunID: "r", DomainKwargs: "{}", Value: "1", Details: "{}"}
	}
	chunks := storage.Chunks(rows, maxParams)
	if len(chunks) != 2 {
		t.Fatalf("chunks=%d want 2", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		sql, args := buildInsertSQL(c)
		if len(args) > 65535 {
			t.Fatalf("args=%d exceed the protocol limit", len(args))
		}
		if strings.Contains(sql, "$65536") {
			t.Fatalf("placeholder beyond limit in %d-row chunk", len(c))
		}
		total += len(c)
	}
	if total != len(rows) {
		t.Fatalf("rows=%d want %d", total, len(rows))
	}
}
