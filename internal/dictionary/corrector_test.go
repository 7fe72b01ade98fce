package dictionary

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocabulary() *Vocabulary {
	return NewVocabulary([]string{"the", "name", "date", "birth", "address", "certificate", "Phone", " ", "id"})
}

func TestVocabularyNormalizes(t *testing.T) {
	v := testVocabulary()
	assert.Equal(t, 8, v.Len())
	assert.True(t, v.Contains("phone"))
	assert.False(t, v.Contains("Phone"))
	assert.NotContains(t, v.entries, "id")
	assert.Equal(t, []string{"address", "birth", "certificate", "date", "id", "name", "phone", "the"}, v.Words())
}

func TestVocabulariesFor(t *testing.T) {
	en := NewVocabulary([]string{"name"})
	hi := NewVocabulary([]string{"नाम"})
	vs := Vocabularies{"en": en, "hi": hi}

	assert.Same(t, hi, vs.For("hi"))
	assert.Same(t, en, vs.For("en-US"))
	assert.Same(t, en, vs.For("fr"))
	assert.Nil(t, Vocabularies{"hi": hi}.For("fr"))
	assert.Equal(t, []string{"en", "hi"}, vs.Languages())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "name", Clean("Name:"))
	assert.Equal(t, "date_of", Clean("(Date_of)"))
	assert.Equal(t, "नाम", Clean("नाम,"))
}

func TestCorrectWord(t *testing.T) {
	c := NewCorrector(testVocabulary(), CorrectorConfig{})
	cases := []struct {
		name, in, want string
	}{
		{"known word kept verbatim", "Name:", "Name:"},
		{"short token kept", "0f", "0f"},
		{"substitution to nearest entry", "Certiflcate", "certificate"},
		{"single swap", "Adress", "address"},
		{"no close entry", "Zanzibar", "Zanzibar"},
		{"proper noun kept", "John", "John"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.CorrectWord(tc.in))
		})
	}
}

func TestCorrectWordThresholdIsStrict(t *testing.T) {
	// "datx" vs "date" scores exactly 0.75
	strict := NewCorrector(testVocabulary(), CorrectorConfig{Threshold: 0.75})
	assert.Equal(t, "datx", strict.CorrectWord("datx"))

	loose := NewCorrector(testVocabulary(), CorrectorConfig{Threshold: 0.7})
	assert.Equal(t, "date", loose.CorrectWord("datx"))
}

func TestCorrectWithoutVocabulary(t *testing.T) {
	c := NewCorrector(nil, CorrectorConfig{})
	assert.Equal(t, "Certiflcate", c.CorrectWord("Certiflcate"))

	var nilCorrector *Corrector
	assert.Equal(t, "x", nilCorrector.CorrectWord("x"))
}

func TestCorrectText(t *testing.T) {
	c := NewCorrector(testVocabulary(), CorrectorConfig{})
	assert.Equal(t, "Birth certificate of John", c.CorrectText("  Birth   Certiflcate of\nJohn "))
	assert.Equal(t, "", c.CorrectText("   "))
}

type stubIndex struct {
	words    []string
	err      error
	calls    int
	language string
}

func (s *stubIndex) Nearest(_ context.Context, language, _ string, _ int) ([]string, error) {
	s.calls++
	s.language = language
	return s.words, s.err
}

func TestCorrectorUsesIndexCandidates(t *testing.T) {
	// candidates outside the vocabulary are ignored
	idx := &stubIndex{words: []string{"adress", "address"}}
	c := NewCorrector(testVocabulary(), CorrectorConfig{Index: idx, Language: "en"})
	assert.Equal(t, "address", c.CorrectWord("Addres"))
	assert.Equal(t, 1, idx.calls)
	assert.Equal(t, "en", idx.language)

	empty := &stubIndex{}
	c = NewCorrector(testVocabulary(), CorrectorConfig{Index: empty})
	assert.Equal(t, "Addres", c.CorrectWord("Addres"))
}

func TestCorrectorFallsBackOnIndexError(t *testing.T) {
	idx := &stubIndex{err: errors.New("unavailable")}
	c := NewCorrector(testVocabulary(), CorrectorConfig{Index: idx})
	require.Equal(t, "address", c.CorrectWord("Addres"))
	assert.Equal(t, 1, idx.calls)
}
