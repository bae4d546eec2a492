package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"profiler/internal/config"
)

// TestHelperProcess is a subprocess entrypoint used by tests.
//
// This pattern allows tests to execute main() and observe:
//   - process exit codes (including os.Exit),
//   - stdout/stderr output,
//
// without terminating the parent "go test" process.
//
// The parent test runs the current test binary with:
//
//	-test.run=TestHelperProcess
//
// and sets GO_WANT_HELPER_PROCESS=1.
//
// Any arguments after a literal "--" are treated as CLI args for the command.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	// Rebuild os.Args to contain only the command arguments passed after "--".
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		// No args were provided; keep argv0 only.
		os.Args = []string{args[0]}
	}

	main()
	os.Exit(0)
}

// runCmd executes the command's main() in a subprocess and returns the captured
// stdout, stderr, and the process exit code.
//
// The subprocess is the current test binary, re-invoked with
// -test.run=TestHelperProcess, so it runs on all platforms supported by Go tests.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := []string{"-test.run=TestHelperProcess", "--"}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	// Exit code handling: nil means exit 0.
	if err == nil {
		return stdout, stderr, 0
	}

	// For non-zero exits, Go returns *exec.ExitError.
	if ee, ok := err.(*exec.ExitError); ok {
		return stdout, stderr, ee.ExitCode()
	}

	// Unexpected error type (e.g., binary not runnable). Fail loudly.
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

func writeCSV(t *testing.T) string {
	t.Helper()
	csvPath := filepath.Join(t.TempDir(), "sample.csv")
	csv := strings.Join([]string{
		"id,category,value",
		"1,a,10",
		"2,a,11",
		"3,b,12",
		"4,b,13",
		"5,a,14",
		"",
	}, "\n")
	if err := os.WriteFile(csvPath, []byte(csv), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return csvPath
}

func TestMain_ReportMode_SuppressesConfigAndPrintsReportToStdout(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "-url", writeCSV(t), "-report=true")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stdout, "uniqueness report:") {
		t.Fatalf("expected report header in stdout, got:\n%s", stdout)
	}
	if strings.Contains(stdout, "rules:") || strings.Contains(stdout, "{") {
		t.Fatalf("expected report-only output, got stdout:\n%s", stdout)
	}
}

func TestMain_DefaultMode_EmitsLoadableYAML(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "-url", writeCSV(t), "-name", "Sample Data")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	cfg, err := config.Decode([]byte(stdout), "yaml")
	if err != nil {
		t.Fatalf("stdout is not a profiler config: %v\nstdout:\n%s", err, stdout)
	}
	if cfg.Name != "sample_data" {
		t.Fatalf("name=%q, want sample_data", cfg.Name)
	}
	if _, ok := cfg.Rules["categorical_columns"]; !ok {
		t.Fatalf("want a categorical_columns rule, got:\n%s", stdout)
	}
}

func TestMain_JSONOutput(t *testing.T) {
	t.Parallel()

	jsonPath := filepath.Join(t.TempDir(), "sample.json")
	sample := `[{"a":"x","b":1},{"a":"y","b":2},{"a":"z","b":3}]`
	if err := os.WriteFile(jsonPath, []byte(sample), 0o600); err != nil {
		t.Fatalf("write json: %v", err)
	}

	stdout, stderr, code := runCmd(t, "-url", jsonPath, "-output", "json")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(stdout), &v); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\nstdout:\n%s\nstderr:\n%s", err, stdout, stderr)
	}
	if v["name"] != "dataset" {
		t.Fatalf("name=%v, want dataset", v["name"])
	}
}

func TestMain_MissingURL_ExitsWith2AndPrintsMessage(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t /* no args */)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "missing -url") {
		t.Fatalf("expected missing -url message on stderr, got:\n%s", stderr)
	}
}

func TestMain_BadOutput_ExitsWith2(t *testing.T) {
	t.Parallel()

	_, stderr, code := runCmd(t, "-url", "x.csv", "-output", "xml")
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d\nstderr:\n%s", code, stderr)
	}
}
