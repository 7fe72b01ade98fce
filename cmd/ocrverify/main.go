// Command ocrverify fuses recorded OCR outputs and verifies form values
// against them locally, or submits page images to the worker queue.
//
//	ocrverify -results pages.json -fields form.json [-language hi] [-json]
//	ocrverify -images p1.png,p2.png -fields form.json -redis redis://localhost:6379
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/adverant/nexus/ocrverify-worker/internal/config"
	"github.com/adverant/nexus/ocrverify-worker/internal/fusion"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/processor"
	"github.com/adverant/nexus/ocrverify-worker/internal/verification"
)

type options struct {
	resultsFile    string
	fieldsFile     string
	tuningFile     string
	vocabularyFile string
	language       string
	jsonOutput     bool
	noColor        bool
	verbose        bool

	images    string
	redisURL  string
	queueName string
}

// output is the -json document
type output struct {
	Pages  []processor.PageResult `json:"pages"`
	Fused  ocr.FusedResult        `json:"fused_result"`
	Report *ocr.Report            `json:"verification_report,omitempty"`
}

func main() {
	var opts options
	flag.StringVar(&opts.resultsFile, "results", "", "JSON file of per-page recognizer results")
	flag.StringVar(&opts.fieldsFile, "fields", "", "JSON file of form fields: an object of name/value pairs or a list of {field_name, user_value}")
	flag.StringVar(&opts.tuningFile, "tuning", "", "Tuning YAML (default: built-in)")
	flag.StringVar(&opts.vocabularyFile, "vocabulary", "", "Vocabulary YAML (default: built-in)")
	flag.StringVar(&opts.language, "language", "", "Language code for dictionary correction (default: tuning fusion.language)")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Print JSON instead of text")
	flag.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&opts.verbose, "verbose", false, "Log engine decisions to stderr")
	flag.StringVar(&opts.images, "images", "", "Comma-separated page images or URLs to submit to the worker queue instead of fusing locally")
	flag.StringVar(&opts.redisURL, "redis", "redis://localhost:6379", "Redis URL of the worker queue (with --images)")
	flag.StringVar(&opts.queueName, "queue", "ocrverify", "Worker queue name (with --images)")
	flag.Parse()

	if opts.resultsFile == "" && opts.images == "" {
		fmt.Fprintln(os.Stderr, "Error: --results or --images is required")
		fmt.Fprintln(os.Stderr, "Usage: ocrverify --results <pages.json> [--fields <form.json>] [options]")
		fmt.Fprintln(os.Stderr, "       ocrverify --images <p1.png,...> [--fields <form.json>] [--redis <url>] [--queue <name>]")
		os.Exit(1)
	}
	if opts.noColor {
		color.NoColor = true
	}

	var err error
	if opts.images != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = submit(ctx, opts, os.Stdout)
		cancel()
	} else {
		err = run(opts, os.Stdout, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, stdout, stderr io.Writer) error {
	logger := logging.Discard()
	if opts.verbose {
		logger = logging.NewLoggerWithLevel("ocrverify", logging.LevelDebug, stderr)
	}

	tuning, err := config.LoadTuning(opts.tuningFile)
	if err != nil {
		return err
	}
	vocabularies, err := config.LoadVocabularies(opts.vocabularyFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.resultsFile)
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}
	pages, err := parsePages(data)
	if err != nil {
		return err
	}

	var fields []ocr.FieldRecord
	if opts.fieldsFile != "" {
		data, err := os.ReadFile(opts.fieldsFile)
		if err != nil {
			return fmt.Errorf("failed to read fields: %w", err)
		}
		if fields, err = parseFields(data); err != nil {
			return err
		}
	}

	correction := tuning.Correction
	correction.Logger = logger
	engine := fusion.NewEngine(tuning.Fusion, vocabularies, correction, logger)
	if opts.language != "" {
		engine = engine.ForLanguage(opts.language)
	}

	out := output{Pages: fusePages(engine, pages)}
	out.Fused = processor.AggregatePages(out.Pages)

	if opts.fieldsFile != "" {
		verifier, err := verification.NewVerifier(tuning.Verification, logger)
		if err != nil {
			return err
		}
		report := verifier.VerifyForm(fields, out.Fused)
		out.Report = &report
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	newFormatter().write(stdout, out)
	return nil
}

// fusePages fuses each page's sources, numbering pages from 1
func fusePages(engine *fusion.Engine, pages [][]ocr.SourceResult) []processor.PageResult {
	results := make([]processor.PageResult, len(pages))
	for i, sources := range pages {
		number := i + 1
		stamped := make([]ocr.SourceResult, len(sources))
		for j, s := range sources {
			stamped[j] = s.WithPage(number)
		}
		results[i] = processor.PageResult{
			PageNumber: number,
			Sources:    stamped,
			Fused:      engine.Fuse(stamped),
		}
	}
	return results
}
