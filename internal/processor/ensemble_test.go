package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocrverify-worker/internal/dictionary"
	"github.com/adverant/nexus/ocrverify-worker/internal/fusion"
	"github.com/adverant/nexus/ocrverify-worker/internal/langdetect"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/recognizer"
)

type stubRecognizer struct {
	id string
	fn func(ctx context.Context, image []byte, language string) (ocr.SourceResult, error)

	mu    sync.Mutex
	hints []string
}

func (s *stubRecognizer) ID() string { return s.id }

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte, language string) (ocr.SourceResult, error) {
	s.mu.Lock()
	s.hints = append(s.hints, language)
	s.mu.Unlock()
	return s.fn(ctx, image, language)
}

func (s *stubRecognizer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hints...)
}

func textRecognizer(id, text string, conf float64) *stubRecognizer {
	return &stubRecognizer{id: id, fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		box := ocr.TextBox{Text: text, BBox: ocr.BBox{X1: 0, Y1: 0, X2: 100, Y2: 20}, Confidence: conf}
		return ocr.NewSourceResult(id, text, conf, []ocr.TextBox{box}), nil
	}}
}

func testEngine() *fusion.Engine {
	return fusion.NewEngine(fusion.DefaultConfig(), dictionary.Vocabularies{}, dictionary.CorrectorConfig{}, nil)
}

func newTestEnsemble(t *testing.T, detector *langdetect.Detector, cfg EnsembleConfig, recs ...recognizer.Recognizer) *Ensemble {
	t.Helper()
	e, err := NewEnsemble(recs, testEngine(), detector, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestNewEnsembleRequiresRecognizers(t *testing.T) {
	_, err := NewEnsemble(nil, testEngine(), nil, DefaultEnsembleConfig(), nil)
	assert.Error(t, err)

	_, err = NewEnsemble([]recognizer.Recognizer{textRecognizer("a", "x", 1)}, nil, nil, DefaultEnsembleConfig(), nil)
	assert.Error(t, err)
}

func TestRunAllKeepsRegistrationOrder(t *testing.T) {
	slow := &stubRecognizer{id: "slow", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		time.Sleep(30 * time.Millisecond)
		return ocr.NewSourceResult("slow", "slow text", 0.9, nil), nil
	}}
	fast := textRecognizer("fast", "fast text", 0.8)

	e := newTestEnsemble(t, nil, DefaultEnsembleConfig(), slow, fast)
	results := e.RunAll(context.Background(), []byte("img"), "")

	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].SourceID)
	assert.Equal(t, "fast", results[1].SourceID)
	assert.Equal(t, []string{"slow", "fast"}, e.SourceIDs())
}

func TestRunAllIsolatesFailures(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	failing := &stubRecognizer{id: "failing", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		return ocr.SourceResult{}, errors.New("engine crashed")
	}}
	panicking := &stubRecognizer{id: "panicking", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		panic("boom")
	}}
	hanging := &stubRecognizer{id: "hanging", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		<-release
		return ocr.NewSourceResult("hanging", "late", 1, nil), nil
	}}
	good := textRecognizer("good", "Jane Roe", 0.9)

	cfg := DefaultEnsembleConfig()
	cfg.SourceTimeout = 50 * time.Millisecond
	e := newTestEnsemble(t, nil, cfg, failing, panicking, hanging, good)

	start := time.Now()
	results := e.RunAll(context.Background(), []byte("img"), "")
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, 4)
	assert.Equal(t, ocr.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "SOURCE_FAILURE")
	assert.Contains(t, results[0].Error, "engine crashed")

	assert.Equal(t, ocr.StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "recognizer panic: boom")

	assert.Equal(t, ocr.StatusFailed, results[2].Status)
	assert.Contains(t, results[2].Error, "PROCESSING_TIMEOUT")

	assert.Equal(t, ocr.StatusSuccess, results[3].Status)
	assert.Equal(t, "Jane Roe", results[3].Text)

	for _, r := range results[:3] {
		assert.Empty(t, r.Text)
		assert.Zero(t, r.Confidence)
	}
}

func TestRunAllSanitizesResults(t *testing.T) {
	liar := &stubRecognizer{id: "liar", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		return ocr.SourceResult{
			SourceID:   "someone-else",
			Text:       "text",
			Confidence: 7,
			Status:     ocr.StatusFailed,
		}, nil
	}}
	boxed := &stubRecognizer{id: "boxed", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		return ocr.SourceResult{
			SourceID:   "other",
			Text:       "   ",
			Confidence: 1.5,
			Boxes:      []ocr.TextBox{{Text: "x", SourceID: "other"}},
			Status:     ocr.StatusSuccess,
		}, nil
	}}

	e := newTestEnsemble(t, nil, DefaultEnsembleConfig(), liar, boxed)
	results := e.RunAll(context.Background(), nil, "")

	assert.Equal(t, "liar", results[0].SourceID)
	assert.Equal(t, ocr.StatusFailed, results[0].Status)
	assert.Empty(t, results[0].Text)

	assert.Equal(t, "boxed", results[1].SourceID)
	assert.Equal(t, ocr.StatusEmptyOutput, results[1].Status)
	assert.Equal(t, 1.0, results[1].Confidence)
	assert.Equal(t, "boxed", results[1].Boxes[0].SourceID)
}

func TestProcessPageStampsPageAndFuses(t *testing.T) {
	e := newTestEnsemble(t, nil, DefaultEnsembleConfig(),
		textRecognizer("tesseract", "John Doe", 0.9),
		textRecognizer("easyocr", "John Doe", 0.8))

	pr := e.ProcessPage(context.Background(), Page{Number: 3, Image: []byte("img")}, "")

	assert.Equal(t, 3, pr.PageNumber)
	require.Len(t, pr.Sources, 2)
	for _, s := range pr.Sources {
		for _, b := range s.Boxes {
			assert.Equal(t, 3, b.PageNumber)
		}
	}
	assert.Equal(t, "John Doe", pr.Fused.Text)
	assert.Equal(t, []string{"tesseract", "easyocr"}, pr.Fused.ContributingSources)
	require.Len(t, pr.Fused.Boxes, 1)
	assert.Equal(t, 3, pr.Fused.Boxes[0].PageNumber)

	assert.Equal(t, "en", pr.DetectedLanguage)
	assert.Equal(t, 0.5, pr.LanguageConfidence)
	assert.False(t, pr.LanguageRerun)
}

func TestProcessPageRerunsWithDetectedLanguage(t *testing.T) {
	const short = "This certificate confirms that the person named below was born on the date written in this document."
	const long = short + " Registered at the municipal office."

	mk := func(id string) *stubRecognizer {
		return &stubRecognizer{id: id, fn: func(_ context.Context, _ []byte, lang string) (ocr.SourceResult, error) {
			if lang == "en" {
				return ocr.NewSourceResult(id, long, 0.9, nil), nil
			}
			return ocr.NewSourceResult(id, short, 0.9, nil), nil
		}}
	}
	a, b := mk("a"), mk("b")

	cfg := DefaultEnsembleConfig()
	cfg.RerunLanguages = []string{"en"}
	cfg.RerunMinConfidence = 0
	cfg.RerunMaxTextLength = 1000
	e := newTestEnsemble(t, langdetect.New(langdetect.DefaultConfig(), nil), cfg, a, b)

	pr := e.ProcessPage(context.Background(), Page{Number: 1}, "")

	assert.Equal(t, "en", pr.DetectedLanguage)
	assert.True(t, pr.LanguageRerun)
	assert.Equal(t, long, pr.Fused.Text)
	for _, s := range pr.Sources {
		assert.Equal(t, long, s.Text)
	}
	assert.Equal(t, []string{"", "en"}, a.calls())
	assert.Equal(t, []string{"", "en"}, b.calls())
}

func TestProcessPageKeepsOriginalWhenRerunIsNotLonger(t *testing.T) {
	const text = "This certificate confirms that the person named below was born on the date written in this document."
	rec := textRecognizer("a", text, 0.9)

	cfg := DefaultEnsembleConfig()
	cfg.RerunLanguages = []string{"en"}
	cfg.RerunMinConfidence = 0
	cfg.RerunMaxTextLength = 1000
	e := newTestEnsemble(t, langdetect.New(langdetect.DefaultConfig(), nil), cfg, rec, textRecognizer("b", text, 0.8))

	pr := e.ProcessPage(context.Background(), Page{Number: 1}, "")
	assert.False(t, pr.LanguageRerun)
	assert.Equal(t, text, pr.Fused.Text)
}

func TestShouldRerun(t *testing.T) {
	e := newTestEnsemble(t, langdetect.New(langdetect.DefaultConfig(), nil), DefaultEnsembleConfig(), textRecognizer("a", "x", 1))
	short := ocr.FusedResult{Text: "नाम"}

	assert.True(t, e.shouldRerun("hi", 0.9, short))
	assert.False(t, e.shouldRerun("hi", 0.5, short))
	assert.False(t, e.shouldRerun("en", 0.9, short))
	assert.False(t, e.shouldRerun("hi", 0.9, ocr.FusedResult{Text: string(make([]rune, 50))}))

	noDetector := newTestEnsemble(t, nil, DefaultEnsembleConfig(), textRecognizer("a", "x", 1))
	assert.False(t, noDetector.shouldRerun("hi", 0.9, short))
}
