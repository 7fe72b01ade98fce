package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocrverify-worker/internal/dictionary"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

func newTestEngine(method ocr.FusionMethod) *Engine {
	cfg := DefaultConfig()
	cfg.Method = method
	vocabs := dictionary.Vocabularies{
		"en": dictionary.NewVocabulary([]string{"the", "name", "date", "birth", "certificate"}),
		"hi": dictionary.NewVocabulary(nil),
	}
	return NewEngine(cfg, vocabs, dictionary.CorrectorConfig{}, nil)
}

func wordBox(text string, x1, x2, conf float64) ocr.TextBox {
	return ocr.TextBox{Text: text, BBox: ocr.BBox{X1: x1, Y1: 0, X2: x2, Y2: 10}, Confidence: conf}
}

func TestFuseEmpty(t *testing.T) {
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(nil)
	assert.Empty(t, fused.Text)
	assert.Zero(t, fused.Confidence)
	assert.Empty(t, fused.ContributingSources)
	assert.Empty(t, fused.Boxes)
}

func TestFuseTieBreakExample(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("tesseract", "Jon Doe", 0.9, nil),
		ocr.NewSourceResult("easyocr", "John Doe", 0.85, nil),
		ocr.NewSourceResult("paddleocr", "John D0e", 0.6, nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)

	assert.Equal(t, "John Doe", fused.Text)
	assert.InDelta(t, (0.81+0.7225+0.36)/2.35, fused.Confidence, 1e-9)
	assert.GreaterOrEqual(t, fused.Confidence, 0.79)
	assert.LessOrEqual(t, fused.Confidence, 0.82)
	assert.Equal(t, []string{"tesseract", "easyocr", "paddleocr"}, fused.ContributingSources)
	assert.Equal(t, ocr.MethodConfidenceWeighted, fused.Method)
}

func TestFuseSingleSourcePassThrough(t *testing.T) {
	boxes := []ocr.TextBox{wordBox("John", 0, 40, 0.9), wordBox("Jhn", 1, 40, 0.2)}
	r := ocr.NewSourceResult("tesseract", "Jhon  Doe", 0.77, boxes)

	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse([]ocr.SourceResult{r})
	assert.Equal(t, r.Text, fused.Text)
	assert.Equal(t, r.Confidence, fused.Confidence)
	assert.Equal(t, r.Boxes, fused.Boxes)
	assert.Equal(t, ocr.MethodPassThrough, fused.Method)
	assert.Equal(t, []string{"tesseract"}, fused.ContributingSources)
}

func TestFuseFilterLeavesOneSource(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("weak", "J0hn", 0.3, nil),
		ocr.NewSourceResult("strong", "John", 0.8, nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	assert.Equal(t, "John", fused.Text)
	assert.Equal(t, ocr.MethodPassThrough, fused.Method)
	assert.Equal(t, []string{"weak", "strong"}, fused.AttemptedSources)
}

func TestFuseFilterFallsBackToAllResults(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("a", "hello", 0.2, nil),
		ocr.NewSourceResult("b", "hello", 0.4, nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	assert.Equal(t, "hello", fused.Text)
	assert.Equal(t, ocr.MethodConfidenceWeighted, fused.Method)
	assert.Len(t, fused.ContributingSources, 2)
}

func TestFuseAllSourcesFailed(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.FailedSourceResult("tesseract", errors.New("crash")),
		ocr.FailedSourceResult("easyocr", errors.New("timeout")),
		ocr.FailedSourceResult("paddleocr", nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	assert.Equal(t, "", fused.Text)
	assert.Equal(t, 0.0, fused.Confidence)
	assert.Empty(t, fused.ContributingSources)
	assert.Equal(t, []string{"tesseract", "easyocr", "paddleocr"}, fused.AttemptedSources)
	assert.Equal(t, ocr.MethodConfidenceWeighted, fused.Method)
}

func TestFuseContributingExcludesFailedSources(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("a", "invoice", 0.9, nil),
		ocr.FailedSourceResult("b", errors.New("boom")),
		ocr.NewSourceResult("c", "invoice", 0.7, nil),
		ocr.NewSourceResult("d", " ", 0.8, nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	assert.Equal(t, []string{"a", "c"}, fused.ContributingSources)
	assert.Equal(t, []string{"a", "b", "c", "d"}, fused.AttemptedSources)
	assert.Equal(t, "invoice", fused.Text)
}

func TestFuseConfidenceBounds(t *testing.T) {
	cases := [][]ocr.SourceResult{
		{
			{SourceID: "a", Text: "x", Confidence: math.NaN(), Status: ocr.StatusSuccess},
			{SourceID: "b", Text: "x", Confidence: math.NaN(), Status: ocr.StatusSuccess},
		},
		{
			{SourceID: "a", Text: "x", Confidence: 7, Status: ocr.StatusSuccess},
			{SourceID: "b", Text: "y", Confidence: 3, Status: ocr.StatusSuccess},
		},
		{
			{SourceID: "a", Text: "x", Confidence: 0, Status: ocr.StatusSuccess},
			{SourceID: "b", Text: "y", Confidence: 0, Status: ocr.StatusSuccess},
		},
		{
			{SourceID: "a", Text: "x", Confidence: math.Inf(1), Status: ocr.StatusSuccess},
		},
	}
	for _, method := range []ocr.FusionMethod{ocr.MethodConfidenceWeighted, ocr.MethodVoting, ocr.MethodEditDistance} {
		engine := newTestEngine(method)
		for i, results := range cases {
			fused := engine.Fuse(results)
			assert.False(t, math.IsNaN(fused.Confidence), "case %d method %s", i, method)
			assert.GreaterOrEqual(t, fused.Confidence, 0.0)
			assert.LessOrEqual(t, fused.Confidence, 1.0)
		}
	}
}

func TestFuseMergesBoxes(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("a", "John", 0.9, []ocr.TextBox{wordBox("John", 0, 40, 0.6)}),
		ocr.NewSourceResult("b", "John", 0.8, []ocr.TextBox{wordBox("Jon", 2, 40, 0.95)}),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	require.Len(t, fused.Boxes, 1)
	assert.Equal(t, "Jon", fused.Boxes[0].Text)
	assert.Equal(t, "b", fused.Boxes[0].SourceID)
}

func TestFuseAppliesDictionaryPerLanguage(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("a", "Certiflcate", 0.9, nil),
		ocr.NewSourceResult("b", "Certiflcate", 0.8, nil),
	}
	engine := newTestEngine(ocr.MethodConfidenceWeighted)
	assert.Equal(t, "certificate", engine.Fuse(results).Text)
	assert.Equal(t, "Certiflcate", engine.ForLanguage("hi").Fuse(results).Text)
	assert.Same(t, engine, engine.ForLanguage("en"))
}

func TestFuseKeepsBaseTextWhenConsensusDiverges(t *testing.T) {
	results := []ocr.SourceResult{
		ocr.NewSourceResult("a", "alpha beta", 0.9, nil),
		ocr.NewSourceResult("b", "gamma delta epsilon zeta", 0.8, nil),
	}
	fused := newTestEngine(ocr.MethodConfidenceWeighted).Fuse(results)
	assert.Equal(t, "alpha beta", fused.Text)
}

func TestTokenConsensus(t *testing.T) {
	assert.Equal(t, "John Doe", TokenConsensus([]string{"Jon Doe", "John Doe", "John D0e"}))
	assert.Equal(t, "a b c", TokenConsensus([]string{"a b c", "a b"}))
	assert.Equal(t, "x", TokenConsensus([]string{"x", "y"}))
	assert.Equal(t, "", TokenConsensus([]string{"", " "}))
}

func TestWeights(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0.5}, Weights([]float64{0, 0}))
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, Weights([]float64{0.6, 0.2}), 1e-9)
	assert.Empty(t, Weights(nil))
}

func TestVotingFusion(t *testing.T) {
	engine := newTestEngine(ocr.MethodVoting)
	fused := engine.Fuse([]ocr.SourceResult{
		ocr.NewSourceResult("a", "A B", 0.6, nil),
		ocr.NewSourceResult("b", "A BC", 0.9, nil),
		ocr.NewSourceResult("c", "A B", 0.7, nil),
	})
	assert.Equal(t, "A B", fused.Text)
	assert.InDelta(t, 2.2/3, fused.Confidence, 1e-9)
	assert.Equal(t, ocr.MethodVoting, fused.Method)

	tie := engine.Fuse([]ocr.SourceResult{
		ocr.NewSourceResult("a", "abc", 0.6, nil),
		ocr.NewSourceResult("b", "abcd", 0.6, nil),
	})
	assert.Equal(t, "abcd", tie.Text)
}

func TestEditDistanceFusion(t *testing.T) {
	engine := newTestEngine(ocr.MethodEditDistance)
	fused := engine.Fuse([]ocr.SourceResult{
		ocr.NewSourceResult("a", "hello world", 0.6, nil),
		ocr.NewSourceResult("b", "hello worle", 0.9, nil),
		ocr.NewSourceResult("c", "xyz", 0.95, nil),
	})
	assert.Equal(t, "hello worle", fused.Text)
	assert.Equal(t, 0.9, fused.Confidence)
	assert.Equal(t, ocr.MethodEditDistance, fused.Method)

	apart := engine.Fuse([]ocr.SourceResult{
		ocr.NewSourceResult("a", "abc", 0.6, nil),
		ocr.NewSourceResult("b", "xyz", 0.7, nil),
	})
	assert.Equal(t, "xyz", apart.Text)
}
