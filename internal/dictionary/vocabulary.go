/**
 * Reference vocabularies for dictionary correction
 *
 * Vocabularies are injected per language code; nothing here is hard-coded.
 */

package dictionary

import (
	"sort"
	"strings"
)

// DefaultLanguage is used when no vocabulary exists for a requested language
const DefaultLanguage = "en"

// Vocabulary is an immutable set of known-good lowercase tokens
type Vocabulary struct {
	words   map[string]struct{}
	entries []string // sorted, every word with at least minEntryLength runes
}

// NewVocabulary lowercases and trims the given words; blanks are dropped
func NewVocabulary(words []string) *Vocabulary {
	v := &Vocabulary{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, seen := v.words[w]; seen {
			continue
		}
		v.words[w] = struct{}{}
		if len([]rune(w)) >= minEntryLength {
			v.entries = append(v.entries, w)
		}
	}
	sort.Strings(v.entries)
	return v
}

// Contains reports whether the lowercase token is a known word
func (v *Vocabulary) Contains(word string) bool {
	if v == nil {
		return false
	}
	_, ok := v.words[word]
	return ok
}

// Len returns the number of distinct words
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.words)
}

// Words returns every word in sorted order
func (v *Vocabulary) Words() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.words))
	for w := range v.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Vocabularies maps a language code to its vocabulary
type Vocabularies map[string]*Vocabulary

// For resolves a language code: exact match, then the base language of a
// regional tag ("en-US" -> "en"), then DefaultLanguage. Returns nil when none
// of those exist.
func (vs Vocabularies) For(lang string) *Vocabulary {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if v, ok := vs[lang]; ok {
		return v
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if v, ok := vs[lang[:i]]; ok {
			return v
		}
	}
	return vs[DefaultLanguage]
}

// Languages lists the configured language codes in sorted order
func (vs Vocabularies) Languages() []string {
	out := make([]string, 0, len(vs))
	for lang := range vs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
