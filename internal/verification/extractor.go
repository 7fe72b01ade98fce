package verification

import (
	"strings"
	"unicode"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/similarity"
	"github.com/adverant/nexus/ocrverify-worker/internal/textnorm"
)

// Extractor attributes a substring of the fused text to a form field. It is
// value-driven: boxes are ranked against what the user typed, the field
// name only anchors the text fallback.
type Extractor struct {
	normalizer     textnorm.Normalizer
	boxThreshold   float64
	contextWindow  int
	fallbackLength int
}

// NewExtractor builds an extractor from the verification config
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{
		normalizer:     cfg.Normalizer(),
		boxThreshold:   cfg.BoxMatchThreshold,
		contextWindow:  cfg.ContextWindow,
		fallbackLength: cfg.FallbackLength,
	}
}

// Extract returns, in order of preference: the text of the box most similar
// to the user value (edit ratio above the box threshold), the value after
// the first occurrence of the field name, or the head of the full text.
func (x *Extractor) Extract(fieldName, userValue string, boxes []ocr.TextBox, fullText string) string {
	if text, ok := x.bestBox(userValue, boxes); ok {
		return text
	}
	if text, ok := x.afterFieldName(fieldName, fullText); ok {
		return text
	}
	return headRunes(fullText, x.fallbackLength)
}

func (x *Extractor) bestBox(userValue string, boxes []ocr.TextBox) (string, bool) {
	user := x.normalizer.Normalize(userValue)
	if user == "" {
		return "", false
	}

	best, bestScore, found := "", 0.0, false
	for _, b := range boxes {
		boxText := x.normalizer.Normalize(b.Text)
		if boxText == "" {
			continue
		}
		score := similarity.EditRatio(user, boxText)
		if score > bestScore && score > x.boxThreshold {
			best, bestScore, found = b.Text, score, true
		}
	}
	return best, found
}

// afterFieldName finds the field name case-insensitively and returns the
// first line of the following window, cut at the first ';' then ','
func (x *Extractor) afterFieldName(fieldName, fullText string) (string, bool) {
	text := []rune(fullText)
	idx := indexFold(text, []rune(fieldName))
	if idx < 0 {
		return "", false
	}

	start := idx + len([]rune(fieldName))
	end := min(start+x.contextWindow, len(text))
	window := strings.TrimSpace(string(text[start:end]))

	line, _, _ := strings.Cut(window, "\n")
	line, _, _ = strings.Cut(line, ";")
	line, _, _ = strings.Cut(line, ",")
	return strings.TrimSpace(line), true
}

// indexFold is a rune-offset, case-insensitive search. Runes are lowered one
// at a time so offsets in the lowered text match the original.
func indexFold(text, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(text); i++ {
		matched := true
		for j, r := range needle {
			if unicode.ToLower(text[i+j]) != unicode.ToLower(r) {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
