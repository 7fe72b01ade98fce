/**
 * Fusion Engine
 *
 * Reconciles the outputs of several recognizers for one region into a single
 * FusedResult:
 * - Confidence filtering with an all-results fallback
 * - Position-aligned token consensus by mean edit ratio
 * - Dictionary correction of the consensus words
 * - Agreement check against the strongest single source
 * - Box merging and weighted confidence
 *
 * Fuse never fails. When no usable text exists anywhere it returns the zero
 * result with the attempted sources recorded.
 */

package fusion

import (
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/dictionary"
	"github.com/adverant/nexus/ocrverify-worker/internal/layout"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/similarity"
)

// Config holds fusion tuning
type Config struct {
	Method                ocr.FusionMethod `yaml:"method"`
	MinConfidence         float64          `yaml:"min_confidence"`
	ConsensusAgreement    float64          `yaml:"consensus_agreement"`
	EditDistanceThreshold float64          `yaml:"edit_distance_threshold"`
	IoUThreshold          float64          `yaml:"iou_threshold"`
	Language              string           `yaml:"language"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Method:                ocr.MethodConfidenceWeighted,
		MinConfidence:         0.5,
		ConsensusAgreement:    0.8,
		EditDistanceThreshold: 0.8,
		IoUThreshold:          layout.DefaultIoUThreshold,
		Language:              dictionary.DefaultLanguage,
	}
}

// Engine fuses SourceResults. It is immutable after construction and safe
// for concurrent use.
type Engine struct {
	cfg          Config
	merger       *layout.Merger
	vocabularies dictionary.Vocabularies
	correction   dictionary.CorrectorConfig
	corrector    *dictionary.Corrector
	logger       *logging.Logger
}

// NewEngine builds an engine correcting against the vocabulary of
// cfg.Language
func NewEngine(cfg Config, vocabularies dictionary.Vocabularies, correction dictionary.CorrectorConfig, logger *logging.Logger) *Engine {
	if cfg.Method == "" {
		cfg.Method = ocr.MethodConfidenceWeighted
	}
	if cfg.Language == "" {
		cfg.Language = dictionary.DefaultLanguage
	}
	if correction.Logger == nil {
		correction.Logger = logger
	}
	correction.Language = cfg.Language
	return &Engine{
		cfg:          cfg,
		merger:       layout.NewMerger(cfg.IoUThreshold, logger),
		vocabularies: vocabularies,
		correction:   correction,
		corrector:    dictionary.NewCorrector(vocabularies.For(cfg.Language), correction),
		logger:       logger,
	}
}

// ForLanguage returns an engine with the same tuning that corrects against
// the vocabulary of lang
func (e *Engine) ForLanguage(lang string) *Engine {
	if lang == "" || lang == e.cfg.Language {
		return e
	}
	clone := *e
	clone.cfg.Language = lang
	clone.correction.Language = lang
	clone.corrector = dictionary.NewCorrector(e.vocabularies.For(lang), clone.correction)
	return &clone
}

// Config returns the engine's tuning
func (e *Engine) Config() Config {
	return e.cfg
}

// Fuse combines per-source results into one FusedResult
func (e *Engine) Fuse(results []ocr.SourceResult) ocr.FusedResult {
	if len(results) == 0 {
		return ocr.ZeroFusedResult(e.cfg.Method, nil)
	}
	attempted := sourceIDs(results)

	qualifying := make([]ocr.SourceResult, 0, len(results))
	for _, r := range results {
		if r.Confidence >= e.cfg.MinConfidence {
			qualifying = append(qualifying, r)
		}
	}
	if len(qualifying) == 0 {
		qualifying = results
	}

	if len(qualifying) == 1 {
		return passThrough(qualifying[0], attempted)
	}

	usable := usableResults(qualifying)
	if len(usable) == 0 {
		e.logger.Warn("No usable text from any source", "attempted", strings.Join(attempted, ","))
		return ocr.ZeroFusedResult(e.cfg.Method, attempted)
	}

	var fused ocr.FusedResult
	switch e.cfg.Method {
	case ocr.MethodVoting:
		fused = e.voting(usable)
	case ocr.MethodEditDistance:
		fused = e.editDistance(usable)
	default:
		fused = e.confidenceWeighted(usable)
	}
	fused.AttemptedSources = attempted
	fused.ContributingSources = sourceIDs(usable)
	fused.Boxes = e.merger.Merge(collectBoxes(usable))
	fused.Confidence = ocr.ClampConfidence(fused.Confidence)

	e.logger.Debug("Fused sources",
		"method", fused.Method,
		"contributing", len(fused.ContributingSources),
		"attempted", len(attempted),
		"confidence", fused.Confidence)
	return fused
}

// passThrough returns a lone qualifying result unchanged
func passThrough(r ocr.SourceResult, attempted []string) ocr.FusedResult {
	boxes := make([]ocr.TextBox, len(r.Boxes))
	copy(boxes, r.Boxes)

	contributing := []string{}
	if r.Text != "" {
		contributing = append(contributing, r.SourceID)
	}
	return ocr.FusedResult{
		Text:                r.Text,
		Confidence:          ocr.ClampConfidence(r.Confidence),
		Boxes:               boxes,
		ContributingSources: contributing,
		AttemptedSources:    attempted,
		Method:              ocr.MethodPassThrough,
	}
}

// usableResults keeps successful sources with text, falling back to any
// source with text
func usableResults(results []ocr.SourceResult) []ocr.SourceResult {
	var usable []ocr.SourceResult
	for _, r := range results {
		if r.Usable() {
			usable = append(usable, r)
		}
	}
	if len(usable) > 0 {
		return usable
	}
	for _, r := range results {
		if r.Text != "" {
			usable = append(usable, r)
		}
	}
	return usable
}

// confidenceWeighted is the default strategy
func (e *Engine) confidenceWeighted(usable []ocr.SourceResult) ocr.FusedResult {
	texts := make([]string, len(usable))
	confidences := make([]float64, len(usable))
	for i, r := range usable {
		texts[i] = r.Text
		confidences[i] = ocr.ClampConfidence(r.Confidence)
	}

	consensus := TokenConsensus(texts)
	validated := e.corrector.CorrectText(consensus)

	base := texts[argmax(confidences)]
	final := base
	if similarity.EditRatio(base, validated) > e.cfg.ConsensusAgreement {
		final = validated
	}

	confidence := 0.0
	for i, w := range Weights(confidences) {
		confidence += w * confidences[i]
	}

	return ocr.FusedResult{
		Text:       final,
		Confidence: confidence,
		Method:     ocr.MethodConfidenceWeighted,
	}
}

// Weights normalizes confidences to sum to one; uniform when they sum to zero
func Weights(confidences []float64) []float64 {
	weights := make([]float64, len(confidences))
	if len(confidences) == 0 {
		return weights
	}
	total := 0.0
	for _, c := range confidences {
		total += c
	}
	for i, c := range confidences {
		if total > 0 {
			weights[i] = c / total
		} else {
			weights[i] = 1 / float64(len(confidences))
		}
	}
	return weights
}

// TokenConsensus aligns whitespace tokens by position. At each position the
// candidate with the highest mean edit ratio against the other sources'
// candidates wins, the first seen on ties; a lone candidate is kept as-is.
func TokenConsensus(texts []string) string {
	tokenized := make([][]string, len(texts))
	longest := 0
	for i, t := range texts {
		tokenized[i] = strings.Fields(t)
		longest = max(longest, len(tokenized[i]))
	}

	chosen := make([]string, 0, longest)
	for pos := 0; pos < longest; pos++ {
		var candidates []string
		for _, tokens := range tokenized {
			if pos < len(tokens) {
				candidates = append(candidates, tokens[pos])
			}
		}
		if len(candidates) == 1 {
			chosen = append(chosen, candidates[0])
			continue
		}
		chosen = append(chosen, consensusToken(candidates))
	}
	return strings.Join(chosen, " ")
}

func consensusToken(candidates []string) string {
	best, bestScore := candidates[0], -1.0
	seen := make(map[string]bool, len(candidates))
	for i, token := range candidates {
		if seen[token] {
			continue
		}
		seen[token] = true

		sum := 0.0
		for j, other := range candidates {
			if j != i {
				sum += similarity.EditRatio(token, other)
			}
		}
		score := sum / float64(len(candidates)-1)
		if score > bestScore {
			best, bestScore = token, score
		}
	}
	return best
}

func collectBoxes(results []ocr.SourceResult) []ocr.TextBox {
	var boxes []ocr.TextBox
	for _, r := range results {
		boxes = append(boxes, r.Boxes...)
	}
	return boxes
}

// sourceIDs lists distinct source ids in input order
func sourceIDs(results []ocr.SourceResult) []string {
	ids := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if seen[r.SourceID] {
			continue
		}
		seen[r.SourceID] = true
		ids = append(ids, r.SourceID)
	}
	return ids
}

// argmax returns the index of the largest value, the first on ties
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
