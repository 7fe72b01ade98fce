/**
 * Tesseract recognizer - local, offline word-level OCR
 *
 * Words come from gosseract's word-level bounding boxes so every word
 * carries its own rectangle and confidence.
 */

package recognizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	ID        string
	Languages string // default Tesseract languages, e.g. "eng" or "eng+hin"
	PSM       int    // page segmentation mode, 0 keeps Tesseract's default
	Logger    *logging.Logger
}

// Tesseract runs gosseract. A client is created per call because gosseract
// clients are not safe for concurrent use.
type Tesseract struct {
	id        string
	languages string
	psm       int
	logger    *logging.Logger
}

// NewTesseract creates a Tesseract recognizer
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.ID == "" {
		cfg.ID = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "eng"
	}
	return &Tesseract{
		id:        cfg.ID,
		languages: cfg.Languages,
		psm:       cfg.PSM,
		logger:    cfg.Logger,
	}
}

func (t *Tesseract) ID() string { return t.id }

// Recognize extracts words with confidence above zero and joins them with
// single spaces; result confidence is the mean word confidence
func (t *Tesseract) Recognize(ctx context.Context, image []byte, language string) (ocr.SourceResult, error) {
	if err := ctx.Err(); err != nil {
		return ocr.SourceResult{}, err
	}
	startTime := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	lang := TesseractLanguage(language, t.languages)
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return ocr.SourceResult{}, fmt.Errorf("failed to set language %q: %w", lang, err)
	}
	if t.psm > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(t.psm)); err != nil {
			return ocr.SourceResult{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return ocr.SourceResult{}, fmt.Errorf("failed to set image: %w", err)
	}

	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.SourceResult{}, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	result := buildTesseractResult(t.id, words)
	t.logger.Debug("Tesseract recognition complete",
		"language", lang,
		"words", len(result.Boxes),
		"confidence", result.Confidence,
		"duration", time.Since(startTime))
	return result, nil
}

// buildTesseractResult converts word boxes (confidence 0-100) to a result
func buildTesseractResult(sourceID string, words []gosseract.BoundingBox) ocr.SourceResult {
	texts := make([]string, 0, len(words))
	boxes := make([]ocr.TextBox, 0, len(words))
	total := 0.0

	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" || w.Confidence <= 0 {
			continue
		}
		texts = append(texts, text)
		total += w.Confidence
		boxes = append(boxes, ocr.TextBox{
			Text: text,
			BBox: ocr.BBox{
				X1: float64(w.Box.Min.X),
				Y1: float64(w.Box.Min.Y),
				X2: float64(w.Box.Max.X),
				Y2: float64(w.Box.Max.Y),
			},
			Confidence: w.Confidence / 100,
		})
	}

	confidence := 0.0
	if len(texts) > 0 {
		confidence = total / float64(len(texts)) / 100
	}
	return ocr.NewSourceResult(sourceID, strings.Join(texts, " "), confidence, boxes)
}
