package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/ocrverify-worker/internal/dictionary"
	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/fusion"
	"github.com/adverant/nexus/ocrverify-worker/internal/langdetect"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/processor"
	"github.com/adverant/nexus/ocrverify-worker/internal/verification"
)

//go:embed tuning.yaml
var defaultTuning []byte

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Tuning groups the engine settings read from YAML
type Tuning struct {
	Fusion            fusion.Config              `yaml:"fusion"`
	Correction        dictionary.CorrectorConfig `yaml:"correction"`
	Verification      verification.Config        `yaml:"verification"`
	Ensemble          processor.EnsembleConfig   `yaml:"ensemble"`
	LanguageDetection langdetect.Config          `yaml:"language_detection"`
}

// DefaultTuning returns the built-in defaults of every engine
func DefaultTuning() Tuning {
	return Tuning{
		Fusion:            fusion.DefaultConfig(),
		Correction: dictionary.CorrectorConfig{
			Threshold:      dictionary.DefaultThreshold,
			CandidateLimit: dictionary.DefaultCandidateLimit,
			LookupTimeout:  dictionary.DefaultLookupTimeout,
		},
		Verification:      verification.DefaultConfig(),
		Ensemble:          processor.DefaultEnsembleConfig(),
		LanguageDetection: langdetect.DefaultConfig(),
	}
}

// LoadTuning reads tuning from path, or the embedded defaults when path is
// empty. Keys missing from the file keep their defaults.
func LoadTuning(path string) (Tuning, error) {
	data := defaultTuning
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Tuning{}, fmt.Errorf("failed to read tuning file %s: %w", path, err)
		}
		data = b
	}
	return ParseTuning(data)
}

// ParseTuning decodes YAML over the defaults and validates the result
func ParseTuning(data []byte) (Tuning, error) {
	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("failed to parse tuning: %w", err)
	}
	t.Fusion.Method = ocr.ParseFusionMethod(string(t.Fusion.Method))
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// Validate checks every threshold lies in [0,1] and every duration is
// positive. Verification weights are checked by the verifier's own Validate.
func (t Tuning) Validate() error {
	unit := []struct {
		field string
		value float64
	}{
		{"fusion.min_confidence", t.Fusion.MinConfidence},
		{"fusion.consensus_agreement", t.Fusion.ConsensusAgreement},
		{"fusion.edit_distance_threshold", t.Fusion.EditDistanceThreshold},
		{"fusion.iou_threshold", t.Fusion.IoUThreshold},
		{"correction.threshold", t.Correction.Threshold},
		{"ensemble.rerun_min_confidence", t.Ensemble.RerunMinConfidence},
		{"language_detection.min_confidence", t.LanguageDetection.MinConfidence},
	}
	for _, u := range unit {
		if math.IsNaN(u.value) || u.value < 0 || u.value > 1 {
			return errors.NewInvalidConfigError(u.field, fmt.Errorf("%v is outside [0,1]", u.value))
		}
	}

	if t.Ensemble.SourceTimeout <= 0 {
		return errors.NewInvalidConfigError("ensemble.source_timeout", fmt.Errorf("must be positive, got %v", t.Ensemble.SourceTimeout))
	}
	if t.Correction.LookupTimeout < 0 {
		return errors.NewInvalidConfigError("correction.lookup_timeout", fmt.Errorf("must not be negative, got %v", t.Correction.LookupTimeout))
	}
	if t.Ensemble.RerunMaxTextLength < 0 {
		return errors.NewInvalidConfigError("ensemble.rerun_max_text_length", fmt.Errorf("must not be negative, got %d", t.Ensemble.RerunMaxTextLength))
	}

	return t.Verification.Validate()
}

type vocabularyFile struct {
	Languages map[string][]string `yaml:"languages"`
}

// LoadVocabularies reads language word lists from path, or the embedded
// English list when path is empty
func LoadVocabularies(path string) (dictionary.Vocabularies, error) {
	data := defaultVocabulary
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
		}
		data = b
	}
	return ParseVocabularies(data)
}

// ParseVocabularies decodes a vocabulary document
func ParseVocabularies(data []byte) (dictionary.Vocabularies, error) {
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if len(f.Languages) == 0 {
		return nil, errors.NewInvalidConfigError("languages", fmt.Errorf("vocabulary defines no languages"))
	}

	vocabs := make(dictionary.Vocabularies, len(f.Languages))
	for lang, words := range f.Languages {
		vocabs[strings.ToLower(strings.TrimSpace(lang))] = dictionary.NewVocabulary(words)
	}
	return vocabs, nil
}
