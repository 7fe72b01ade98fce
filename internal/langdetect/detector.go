// Package langdetect guesses the language of recognized text so the
// ensemble can re-run recognition with a language hint.
package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
)

// SampleLength is how many runes of each source text are sampled
const SampleLength = 500

// Config tunes the detector
type Config struct {
	Enabled          bool    `yaml:"enabled"`
	FallbackLanguage string  `yaml:"fallback_language"`
	MinConfidence    float64 `yaml:"min_confidence"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{Enabled: true, FallbackLanguage: "en", MinConfidence: 0.3}
}

// Detector wraps whatlanggo trigram detection
type Detector struct {
	cfg    Config
	logger *logging.Logger
}

// New creates a detector
func New(cfg Config, logger *logging.Logger) *Detector {
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = "en"
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Detect returns an ISO 639-1 code and a confidence in [0,1]. Short or
// unrecognizable text yields the fallback language: with 0.5 when there is
// nothing to detect, 0.3 when detection fails and the detector's own score
// when it is below MinConfidence.
func (d *Detector) Detect(text string) (string, float64) {
	if !d.cfg.Enabled || len([]rune(strings.TrimSpace(text))) < 3 {
		return d.cfg.FallbackLanguage, 0.5
	}

	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		d.logger.Warn("Language detection failed", "sample_length", len(text))
		return d.cfg.FallbackLanguage, 0.3
	}
	if info.Confidence < d.cfg.MinConfidence {
		d.logger.Warn("Low confidence language detection", "language", code, "confidence", info.Confidence)
		return d.cfg.FallbackLanguage, info.Confidence
	}
	return code, info.Confidence
}

// Sample joins the first SampleLength runes of every non-empty text
func Sample(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		r := []rune(t)
		if len(r) > SampleLength {
			r = r[:SampleLength]
		}
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}
