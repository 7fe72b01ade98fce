/**
 * Dictionary Corrector
 *
 * Per-word keep-or-replace decision against a reference vocabulary. No
 * sentence-level model is involved; a word is only replaced when a known
 * word is clearly closer than the noise floor.
 */

package dictionary

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/similarity"
)

const (
	// DefaultThreshold is the edit ratio a vocabulary entry must exceed
	DefaultThreshold = 0.7
	// DefaultCandidateLimit bounds index lookups
	DefaultCandidateLimit = 25
	DefaultLookupTimeout  = 2 * time.Second
	// Cleaned tokens this short are never corrected
	maxUncorrectableLength = 2
	// Vocabulary entries shorter than this are never substitution targets
	minEntryLength = 3
)

// CandidateIndex narrows the vocabulary scan to the nearest neighbours of a
// word within one language. Implementations may be remote; errors make the
// corrector fall back to scanning the whole vocabulary.
type CandidateIndex interface {
	Nearest(ctx context.Context, language, word string, limit int) ([]string, error)
}

// CorrectorConfig tunes a Corrector
type CorrectorConfig struct {
	Threshold      float64         `yaml:"threshold"`
	Language       string          `yaml:"-"`
	Index          CandidateIndex  `yaml:"-"`
	CandidateLimit int             `yaml:"candidate_limit"`
	LookupTimeout  time.Duration   `yaml:"lookup_timeout"`
	Logger         *logging.Logger `yaml:"-"`
}

// Corrector validates and repairs words against one vocabulary. It holds no
// mutable state and is safe for concurrent use.
type Corrector struct {
	vocab         *Vocabulary
	language      string
	threshold     float64
	index         CandidateIndex
	limit         int
	lookupTimeout time.Duration
	logger        *logging.Logger
}

// NewCorrector builds a corrector; zero config values take defaults
func NewCorrector(vocab *Vocabulary, cfg CorrectorConfig) *Corrector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &Corrector{
		vocab:         vocab,
		language:      cfg.Language,
		threshold:     cfg.Threshold,
		index:         cfg.Index,
		limit:         cfg.CandidateLimit,
		lookupTimeout: cfg.LookupTimeout,
		logger:        cfg.Logger,
	}
}

// Vocabulary returns the vocabulary this corrector validates against
func (c *Corrector) Vocabulary() *Vocabulary {
	return c.vocab
}

// Clean strips every rune that is not a letter, digit, mark or underscore
// and lowercases the rest
func Clean(word string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(word) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether a word needs no correction: its cleaned form is a
// known word or too short to correct reliably
func (c *Corrector) Valid(word string) bool {
	if word == "" {
		return false
	}
	cleaned := Clean(word)
	return c.vocab.Contains(cleaned) || len([]rune(cleaned)) <= maxUncorrectableLength
}

// CorrectWord returns the word unchanged when it is valid or no vocabulary
// entry scores above the threshold; otherwise the best entry
func (c *Corrector) CorrectWord(word string) string {
	if c == nil || c.vocab.Len() == 0 || c.Valid(word) {
		return word
	}
	lowered := strings.ToLower(word)

	best, bestScore := word, 0.0
	for _, entry := range c.candidates(word) {
		score := similarity.EditRatio(lowered, entry)
		if score > bestScore && score > c.threshold {
			best, bestScore = entry, score
		}
	}
	return best
}

// CorrectText applies CorrectWord to every whitespace token and rejoins
// them with single spaces
func (c *Corrector) CorrectText(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = c.CorrectWord(w)
	}
	return strings.Join(words, " ")
}

// candidates yields the entries to score, from the index when one is set
func (c *Corrector) candidates(word string) []string {
	if c.index == nil {
		return c.vocab.entries
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	defer cancel()

	found, err := c.index.Nearest(ctx, c.language, Clean(word), c.limit)
	if err != nil {
		c.logger.Warn("Candidate lookup failed, scanning full vocabulary", "word", word, "error", err)
		return c.vocab.entries
	}

	out := make([]string, 0, len(found))
	for _, w := range found {
		if c.vocab.Contains(w) && len([]rune(w)) >= minEntryLength {
			out = append(out, w)
		}
	}
	return out
}
