/**
 * Document Processor for the OCR Verify Worker
 *
 * Orchestrates document extraction and verification:
 * - Page loading (inline images or URLs, raster formats only)
 * - Per-page recognition ensemble with fusion and language re-runs
 * - Multi-page aggregation into one document-level fused result
 * - Field verification against the aggregate fused text
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/verification"
)

// DocumentProcessorInterface defines the operations exposed to job handlers
type DocumentProcessorInterface interface {
	Extract(ctx context.Context, doc *Document) (*DocumentResult, error)
	Verify(ctx context.Context, doc *Document, fields []ocr.FieldRecord) (*VerifyResult, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Ensemble *Ensemble
	Verifier *verification.Verifier
	Loader   *PageLoader
}

// Document is an ordered set of page images to process
type Document struct {
	ID       string       `json:"document_id"`
	Pages    []PageSource `json:"pages"`
	Language string       `json:"language,omitempty"`
}

// DocumentResult is the extraction output for one document
type DocumentResult struct {
	DocumentID       string            `json:"document_id"`
	PageCount        int               `json:"page_count"`
	Pages            []PageResult      `json:"pages"`
	Sources          []SourceAggregate `json:"aggregated_ocr_outputs"`
	Fused            ocr.FusedResult   `json:"fused_result"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}

// VerifyResult is the verification report plus the extraction it ran on
type VerifyResult struct {
	Report     ocr.Report      `json:"report"`
	Extraction *DocumentResult `json:"extraction"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	ensemble *Ensemble
	verifier *verification.Verifier
	loader   *PageLoader
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg.Ensemble == nil {
		return nil, errors.NewInvalidConfigError("ensemble", fmt.Errorf("recognition ensemble is required"))
	}
	if cfg.Verifier == nil {
		return nil, errors.NewInvalidConfigError("verifier", fmt.Errorf("verifier is required"))
	}
	loader := cfg.Loader
	if loader == nil {
		loader = NewPageLoader(DefaultLoaderConfig())
	}

	log.Printf("Document processor initialized with recognizers: %s", strings.Join(cfg.Ensemble.SourceIDs(), ", "))
	return &DocumentProcessor{
		ensemble: cfg.Ensemble,
		verifier: cfg.Verifier,
		loader:   loader,
	}, nil
}

// Extract recognizes and fuses every page and aggregates the document.
// Pages are processed in order; recognizers within a page run concurrently.
func (p *DocumentProcessor) Extract(ctx context.Context, doc *Document) (*DocumentResult, error) {
	startTime := time.Now()
	log.Printf("[Job %s] Starting extraction (pages=%d, language=%q)", doc.ID, len(doc.Pages), doc.Language)

	pages, err := p.loader.Load(ctx, doc.ID, doc.Pages)
	if err != nil {
		return nil, err
	}

	results := make([]PageResult, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				return nil, errors.NewProcessingTimeoutError(doc.ID, time.Since(startTime), err)
			}
			return nil, fmt.Errorf("extraction cancelled at page %d: %w", page.Number, err)
		}

		pr := p.ensemble.ProcessPage(ctx, page, doc.Language)
		if len(pr.Fused.ContributingSources) == 0 {
			log.Printf("[Job %s] WARNING: %v", doc.ID,
				errors.NewAllSourcesFailedError(doc.ID, page.Number, pr.Fused.AttemptedSources))
		}
		results = append(results, pr)
	}

	result := &DocumentResult{
		DocumentID:       doc.ID,
		PageCount:        len(results),
		Pages:            results,
		Sources:          AggregateSources(results),
		Fused:            AggregatePages(results),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	log.Printf("[Job %s] Extraction complete: pages=%d, text_length=%d, confidence=%.2f, sources=%s, time=%dms",
		doc.ID, result.PageCount, len([]rune(result.Fused.Text)), result.Fused.Confidence,
		strings.Join(result.Fused.ContributingSources, ","), result.ProcessingTimeMs)
	return result, nil
}

// Verify extracts the document and verifies every field against the
// document-level fused result. Field names must be non-empty; values may be.
func (p *DocumentProcessor) Verify(ctx context.Context, doc *Document, fields []ocr.FieldRecord) (*VerifyResult, error) {
	for i, f := range fields {
		if strings.TrimSpace(f.FieldName) == "" {
			return nil, errors.NewInvalidFieldInputError(doc.ID, i, "field name is empty")
		}
	}

	extraction, err := p.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	report := p.verifier.VerifyForm(fields, extraction.Fused)
	log.Printf("[Job %s] Verification complete: fields=%d, matches=%d, partial=%d, mismatches=%d, confidence=%.2f",
		doc.ID, report.Summary.Total, report.Summary.Matches, report.Summary.PartialMatches,
		report.Summary.Mismatches, report.Summary.OverallConfidence)

	return &VerifyResult{Report: report, Extraction: extraction}, nil
}
