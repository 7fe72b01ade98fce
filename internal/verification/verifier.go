/**
 * Field Verifier
 *
 * Scores user-submitted form values against fused recognizer text:
 * - Normalization (case folding, whitespace collapsing)
 * - Best-of similarity across edit, fuzzy, partial and token-sort metrics
 * - Containment floor for partial matches
 * - Weighted confidence of source quality, similarity and completeness
 *
 * Empty or missing values never fail; they normalize to "" and score 0.
 */

package verification

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/similarity"
	"github.com/adverant/nexus/ocrverify-worker/internal/textnorm"
)

// Config holds verification tuning
type Config struct {
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	PartialFloor           float64 `yaml:"partial_floor"`
	PartialThreshold       float64 `yaml:"partial_threshold"`
	UseFuzzyMatching       bool    `yaml:"use_fuzzy_matching"`
	CaseSensitive          bool    `yaml:"case_sensitive"`
	IgnoreWhitespace       bool    `yaml:"ignore_whitespace"`
	SourceConfidenceWeight float64 `yaml:"ocr_confidence_weight"`
	SimilarityWeight       float64 `yaml:"similarity_weight"`
	CompletenessWeight     float64 `yaml:"field_completeness_weight"`
	BoxMatchThreshold      float64 `yaml:"box_match_threshold"`
	ContextWindow          int     `yaml:"context_window"`
	FallbackLength         int     `yaml:"fallback_length"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:    0.85,
		PartialFloor:           0.7,
		PartialThreshold:       0.6,
		UseFuzzyMatching:       true,
		CaseSensitive:          false,
		IgnoreWhitespace:       true,
		SourceConfidenceWeight: 0.4,
		SimilarityWeight:       0.4,
		CompletenessWeight:     0.2,
		BoxMatchThreshold:      0.5,
		ContextWindow:          100,
		FallbackLength:         200,
	}
}

// Normalizer returns the text normalizer these settings describe
func (c Config) Normalizer() textnorm.Normalizer {
	return textnorm.Normalizer{CaseSensitive: c.CaseSensitive, IgnoreWhitespace: c.IgnoreWhitespace}
}

// Validate checks thresholds lie in [0,1], windows are positive and the
// confidence weights sum to 1
func (c Config) Validate() error {
	unit := map[string]float64{
		"similarity_threshold":      c.SimilarityThreshold,
		"partial_floor":             c.PartialFloor,
		"partial_threshold":         c.PartialThreshold,
		"ocr_confidence_weight":     c.SourceConfidenceWeight,
		"similarity_weight":         c.SimilarityWeight,
		"field_completeness_weight": c.CompletenessWeight,
		"box_match_threshold":       c.BoxMatchThreshold,
	}
	for field, v := range unit {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return errors.NewInvalidConfigError(field, fmt.Errorf("%v is outside [0,1]", v))
		}
	}
	if c.ContextWindow <= 0 {
		return errors.NewInvalidConfigError("context_window", fmt.Errorf("must be positive, got %d", c.ContextWindow))
	}
	if c.FallbackLength <= 0 {
		return errors.NewInvalidConfigError("fallback_length", fmt.Errorf("must be positive, got %d", c.FallbackLength))
	}
	sum := c.SourceConfidenceWeight + c.SimilarityWeight + c.CompletenessWeight
	if math.Abs(sum-1) > 1e-6 {
		return errors.NewInvalidConfigError("confidence_weights", fmt.Errorf("weights sum to %.6f, want 1.0", sum))
	}
	return nil
}

// Verifier classifies form values against extracted text. Stateless after
// construction.
type Verifier struct {
	cfg        Config
	normalizer textnorm.Normalizer
	extractor  *Extractor
	logger     *logging.Logger
}

// NewVerifier validates cfg and builds a verifier
func NewVerifier(cfg Config, logger *logging.Logger) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		cfg:        cfg,
		normalizer: cfg.Normalizer(),
		extractor:  NewExtractor(cfg),
		logger:     logger,
	}, nil
}

// Extractor returns the field extractor the verifier uses in VerifyForm
func (v *Verifier) Extractor() *Extractor {
	return v.extractor
}

// Verify scores one field value against the text attributed to it
func (v *Verifier) Verify(record ocr.FieldRecord, extracted string, sourceConfidence float64) ocr.VerificationResult {
	user := v.normalizer.Normalize(record.UserValue)
	text := v.normalizer.Normalize(extracted)
	sourceConfidence = ocr.ClampConfidence(sourceConfidence)

	exact := user == text
	scores := v.scores(user, text)

	best := 0.0
	for _, s := range scores {
		best = max(best, s)
	}

	partial := user != "" && text != "" && (strings.Contains(text, user) || strings.Contains(user, text))
	if partial {
		best = max(best, v.cfg.PartialFloor)
	}

	status := ocr.Mismatch
	switch {
	case exact || best >= v.cfg.SimilarityThreshold:
		status = ocr.Match
	case partial && best >= v.cfg.PartialThreshold:
		status = ocr.PartialMatch
	}

	return ocr.VerificationResult{
		FieldName:        record.FieldName,
		UserValue:        record.UserValue,
		ExtractedText:    extracted,
		MatchStatus:      status,
		Similarity:       best,
		SimilarityScores: scores,
		Confidence:       v.confidence(sourceConfidence, best, exact),
		SourceConfidence: sourceConfidence,
		ExactMatch:       exact,
		PartialMatch:     partial,
	}
}

func (v *Verifier) scores(user, text string) map[string]float64 {
	if user == "" || text == "" {
		return map[string]float64{
			similarity.MetricEditRatio: 0,
			similarity.MetricFuzzy:     0,
			similarity.MetricPartial:   0,
			similarity.MetricTokenSort: 0,
		}
	}
	if v.cfg.UseFuzzyMatching {
		return similarity.Scores(user, text)
	}
	edit := similarity.EditRatio(user, text)
	return map[string]float64{
		similarity.MetricEditRatio: edit,
		similarity.MetricFuzzy:     edit,
		similarity.MetricPartial:   edit,
		similarity.MetricTokenSort: edit,
	}
}

func (v *Verifier) confidence(sourceConfidence, best float64, exact bool) float64 {
	effective, completeness := best, 0.5
	if exact {
		effective, completeness = 1, 1
	}
	return ocr.ClampConfidence(v.cfg.SourceConfidenceWeight*sourceConfidence +
		v.cfg.SimilarityWeight*effective +
		v.cfg.CompletenessWeight*completeness)
}

// VerifyForm extracts and verifies every field against one fused result,
// keeping the input order
func (v *Verifier) VerifyForm(fields []ocr.FieldRecord, fused ocr.FusedResult) ocr.Report {
	report := ocr.Report{
		Results: make([]ocr.VerificationResult, 0, len(fields)),
		OCRMetadata: ocr.OCRMetadata{
			OCRConfidence: fused.Confidence,
			TextLength:    len([]rune(fused.Text)),
			BoxCount:      len(fused.Boxes),
		},
	}

	totalConfidence := 0.0
	for _, field := range fields {
		extracted := v.extractor.Extract(field.FieldName, field.UserValue, fused.Boxes, fused.Text)
		result := v.Verify(field, extracted, fused.Confidence)
		report.Results = append(report.Results, result)

		switch result.MatchStatus {
		case ocr.Match:
			report.Summary.Matches++
		case ocr.PartialMatch:
			report.Summary.PartialMatches++
		default:
			report.Summary.Mismatches++
		}
		totalConfidence += result.Confidence

		v.logger.Debug("Verified field",
			"field", field.FieldName,
			"status", result.MatchStatus,
			"similarity", fmt.Sprintf("%.3f", result.Similarity))
	}

	report.Summary.Total = len(fields)
	if len(fields) > 0 {
		report.Summary.MatchRate = float64(report.Summary.Matches) / float64(len(fields))
		report.Summary.OverallConfidence = totalConfidence / float64(len(fields))
	}
	return report
}
