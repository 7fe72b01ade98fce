/**
 * Recognition Ensemble
 *
 * Runs every recognizer on the same page image concurrently, one goroutine
 * per recognizer under its own timeout, and fuses once all of them have
 * resolved. A recognizer that errors, times out or panics becomes a failed
 * SourceResult; it never cancels the others.
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/fusion"
	"github.com/adverant/nexus/ocrverify-worker/internal/langdetect"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/recognizer"
)

// EnsembleConfig holds ensemble tuning
type EnsembleConfig struct {
	SourceTimeout      time.Duration `yaml:"source_timeout"`
	RerunLanguages     []string      `yaml:"rerun_languages"`
	RerunMinConfidence float64       `yaml:"rerun_min_confidence"`
	RerunMaxTextLength int           `yaml:"rerun_max_text_length"`
}

// DefaultEnsembleConfig returns the production defaults
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		SourceTimeout:      5 * time.Minute,
		RerunLanguages:     []string{"hi"},
		RerunMinConfidence: 0.5,
		RerunMaxTextLength: 50,
	}
}

// Page is one rendered page image; Number starts at 1
type Page struct {
	Number int    `json:"page_number"`
	Image  []byte `json:"-"`
}

// PageResult is the per-source breakdown and fused result for one page
type PageResult struct {
	PageNumber         int                `json:"page_number"`
	Sources            []ocr.SourceResult `json:"ocr_outputs"`
	Fused              ocr.FusedResult    `json:"fused_result"`
	DetectedLanguage   string             `json:"detected_language"`
	LanguageConfidence float64            `json:"language_confidence"`
	LanguageRerun      bool               `json:"language_rerun"`
}

// Ensemble coordinates recognizers, fusion and language detection
type Ensemble struct {
	recognizers []recognizer.Recognizer
	engine      *fusion.Engine
	detector    *langdetect.Detector
	cfg         EnsembleConfig
	logger      *logging.Logger
}

// NewEnsemble creates an ensemble. The detector may be nil, which disables
// language re-runs.
func NewEnsemble(recognizers []recognizer.Recognizer, engine *fusion.Engine, detector *langdetect.Detector, cfg EnsembleConfig, logger *logging.Logger) (*Ensemble, error) {
	if len(recognizers) == 0 {
		return nil, errors.NewInvalidConfigError("recognizers", fmt.Errorf("at least one recognizer is required"))
	}
	if engine == nil {
		return nil, errors.NewInvalidConfigError("fusion_engine", fmt.Errorf("fusion engine is required"))
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultEnsembleConfig().SourceTimeout
	}
	return &Ensemble{
		recognizers: recognizers,
		engine:      engine,
		detector:    detector,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// SourceIDs lists the recognizers in registration order
func (e *Ensemble) SourceIDs() []string {
	ids := make([]string, len(e.recognizers))
	for i, r := range e.recognizers {
		ids[i] = r.ID()
	}
	return ids
}

// RunAll invokes every recognizer concurrently and returns one result per
// recognizer in registration order. It returns only after every recognizer
// has finished, failed or timed out.
func (e *Ensemble) RunAll(ctx context.Context, image []byte, language string) []ocr.SourceResult {
	results := make([]ocr.SourceResult, len(e.recognizers))

	var wg sync.WaitGroup
	for i, rec := range e.recognizers {
		wg.Add(1)
		go func(i int, rec recognizer.Recognizer) {
			defer wg.Done()
			results[i] = e.runSource(ctx, rec, image, language)
		}(i, rec)
	}
	wg.Wait()

	return results
}

type outcome struct {
	result ocr.SourceResult
	err    error
}

// runSource runs one recognizer under the source timeout. The recognizer
// call itself runs in a further goroutine so that engines ignoring ctx
// cannot hold the join past the deadline.
func (e *Ensemble) runSource(ctx context.Context, rec recognizer.Recognizer, image []byte, language string) ocr.SourceResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SourceTimeout)
	defer cancel()

	id := rec.ID()
	startTime := time.Now()
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("recognizer panic: %v", p)}
			}
		}()
		result, err := rec.Recognize(ctx, image, language)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			e.logger.Warn("Recognizer failed", "source", id, "error", o.err)
			return ocr.FailedSourceResult(id, errors.NewSourceFailureError("", id, o.err))
		}
		result := sanitizeSourceResult(id, o.result)
		e.logger.Info("Recognizer completed",
			"source", id,
			"status", result.Status,
			"confidence", fmt.Sprintf("%.2f", result.Confidence),
			"text_length", len([]rune(result.Text)),
			"duration", time.Since(startTime))
		return result

	case <-ctx.Done():
		var err error = errors.NewSourceFailureError("", id, ctx.Err())
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.NewProcessingTimeoutError("", e.cfg.SourceTimeout, ctx.Err())
		}
		e.logger.Warn("Recognizer abandoned", "source", id, "error", err)
		return ocr.FailedSourceResult(id, err)
	}
}

// sanitizeSourceResult pins the source id and re-derives status, so a
// recognizer cannot report failure with text or success without it
func sanitizeSourceResult(id string, r ocr.SourceResult) ocr.SourceResult {
	if r.Status == ocr.StatusFailed {
		msg := r.Error
		if msg == "" {
			msg = "recognizer reported failure"
		}
		return ocr.FailedSourceResult(id, stderrors.New(msg))
	}
	boxes := make([]ocr.TextBox, len(r.Boxes))
	for i, b := range r.Boxes {
		b.SourceID = id
		boxes[i] = b
	}
	return ocr.NewSourceResult(id, r.Text, r.Confidence, boxes)
}

// ProcessPage recognizes and fuses one page. When the detected language is
// configured for re-runs, detection is confident and the fused text is
// short, recognition is repeated with that language hint and the re-fused
// result is adopted if it yields more text.
func (e *Ensemble) ProcessPage(ctx context.Context, page Page, language string) PageResult {
	results := e.stampPage(e.RunAll(ctx, page.Image, language), page.Number)
	engine := e.engine.ForLanguage(language)
	fused := engine.Fuse(results)

	pr := PageResult{PageNumber: page.Number, Sources: results, Fused: fused}
	pr.DetectedLanguage, pr.LanguageConfidence = e.detectLanguage(results)
	e.logger.Info("Page fused",
		"page", page.Number,
		"language", pr.DetectedLanguage,
		"language_confidence", fmt.Sprintf("%.2f", pr.LanguageConfidence),
		"text_length", len([]rune(fused.Text)),
		"confidence", fmt.Sprintf("%.2f", fused.Confidence))

	if e.shouldRerun(pr.DetectedLanguage, pr.LanguageConfidence, fused) {
		e.rerun(ctx, page, &pr)
	}
	return pr
}

func (e *Ensemble) stampPage(results []ocr.SourceResult, page int) []ocr.SourceResult {
	for i := range results {
		results[i] = results[i].WithPage(page)
	}
	return results
}

func (e *Ensemble) detectLanguage(results []ocr.SourceResult) (string, float64) {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	sample := langdetect.Sample(texts)
	if e.detector == nil || sample == "" {
		return "en", 0.5
	}
	return e.detector.Detect(sample)
}

func (e *Ensemble) shouldRerun(lang string, confidence float64, fused ocr.FusedResult) bool {
	if e.detector == nil || confidence <= e.cfg.RerunMinConfidence {
		return false
	}
	if len([]rune(fused.Text)) >= e.cfg.RerunMaxTextLength {
		return false
	}
	for _, l := range e.cfg.RerunLanguages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

func (e *Ensemble) rerun(ctx context.Context, page Page, pr *PageResult) {
	e.logger.Info("Re-running recognition with language hint", "page", page.Number, "language", pr.DetectedLanguage)

	rerun := e.stampPage(e.RunAll(ctx, page.Image, pr.DetectedLanguage), page.Number)
	usable := make([]ocr.SourceResult, 0, len(rerun))
	for _, r := range rerun {
		if r.Usable() {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return
	}

	refused := e.engine.ForLanguage(pr.DetectedLanguage).Fuse(usable)
	before, after := len([]rune(pr.Fused.Text)), len([]rune(refused.Text))
	if after <= before {
		return
	}

	e.logger.Info("Using language-specific results", "page", page.Number, "from_chars", before, "to_chars", after)
	pr.Fused = refused
	pr.LanguageRerun = true
	for _, r := range usable {
		for i := range pr.Sources {
			if pr.Sources[i].SourceID == r.SourceID {
				pr.Sources[i] = r
			}
		}
	}
}
