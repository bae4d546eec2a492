// Command probe drafts a profiler configuration by sampling an input dataset.
//
// It reads a bounded prefix of the input (default 20KB), infers column types
// and cardinality, and emits a starter configuration for cmd/profile: a row
// count rule plus numeric, categorical, date and text column rules for the
// columns that fit them.
//
// Supported input formats are detected from the sample bytes: CSV, JSON
// (array, envelope or NDJSON) and HTML tables.
//
// Output modes
//
//   - Default mode: prints the configuration to stdout as YAML (-output json
//     for JSON).
//   - Report mode (-report): prints a uniqueness report to stdout and
//     suppresses config output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"profiler/internal/probe"
)

func main() {
	var (
		// flagURL is an http(s) URL, a file:// URL or a bare local path.
		flagURL = flag.String("url", "", "URL or path of the source file (CSV, JSON or HTML)")

		// flagBytes controls how many bytes are sampled from the start of the input.
		flagBytes = flag.Int("bytes", 20000, "Number of bytes to sample from the start of the file")

		// flagName names the profiler, datasource and asset (normalized).
		flagName = flag.String("name", "dataset", "Dataset name used for the profiler, datasource and asset")

		flagFormat    = flag.String("format", "", "Force the input format: csv|json|html (default: sniff)")
		flagDelimiter = flag.String("delimiter", "", "CSV delimiter (default ',')")

		// flagSave writes the sampled bytes next to the cwd and points the
		// drafted datasource at that file.
		flagSave = flag.Bool("save", false, "Write sampled bytes to [name].{csv,json,html} next to cwd")

		flagAllowInsecure = flag.Bool("allow-insecure", false, "Allow insecure TLS")

		flagOutput = flag.String("output", "yaml", "Config output format: yaml|json")
		flagPretty = flag.Bool("pretty", true, "Pretty-print JSON output")

		// flagReport prints the uniqueness report instead of the config.
		flagReport = flag.Bool("report", false, "Print uniqueness report (suppresses config output)")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}
	output := strings.ToLower(strings.TrimSpace(*flagOutput))
	if output != "yaml" && output != "json" {
		fmt.Fprintf(os.Stderr, "unsupported -output %q (want yaml|json)\n", *flagOutput)
		os.Exit(2)
	}

	// Probing should be fast; fail rather than hang on a slow source.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg, rep, err := probe.Probe(ctx, probe.Options{
		URL:              *flagURL,
		MaxBytes:         *flagBytes,
		Name:             *flagName,
		Format:           *flagFormat,
		Delimiter:        *flagDelimiter,
		SaveSample:       *flagSave,
		AllowInsecureTLS: *flagAllowInsecure,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if *flagReport {
		fmt.Fprintln(os.Stdout, rep.String())
		return
	}

	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		if *flagPretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(cfg); err != nil {
			log.Fatalf("encode config: %v", err)
		}
	default:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			log.Fatalf("encode config: %v", err)
		}
		if err := enc.Close(); err != nil {
			log.Fatalf("encode config: %v", err)
		}
	}
}
