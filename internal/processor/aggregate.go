package processor

import (
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// PageBreak separates page texts in document-level text
const PageBreak = "\n\n--- Page Break ---\n\n"

// SourcePage is one recognizer's output on one page
type SourcePage struct {
	PageNumber int              `json:"page_number"`
	Text       string           `json:"text"`
	Confidence float64          `json:"confidence"`
	Status     ocr.SourceStatus `json:"status"`
}

// SourceAggregate is one recognizer's output across the document
type SourceAggregate struct {
	SourceID   string        `json:"source_id"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Boxes      []ocr.TextBox `json:"boxes"`
	Pages      []SourcePage  `json:"pages"`
}

// AggregatePages combines per-page fused results into the document result.
// A single page is returned as-is. Otherwise texts are joined with
// PageBreak, confidence is the mean of the positive page confidences and
// boxes are concatenated in page order.
func AggregatePages(pages []PageResult) ocr.FusedResult {
	if len(pages) == 0 {
		return ocr.ZeroFusedResult(ocr.MethodConfidenceWeighted, nil)
	}
	if len(pages) == 1 {
		return pages[0].Fused
	}

	texts := make([]string, len(pages))
	boxes := []ocr.TextBox{}
	var confidences []float64
	contributing := newOrderedSet()
	attempted := newOrderedSet()

	for i, p := range pages {
		texts[i] = p.Fused.Text
		boxes = append(boxes, p.Fused.Boxes...)
		if p.Fused.Confidence > 0 {
			confidences = append(confidences, p.Fused.Confidence)
		}
		contributing.add(p.Fused.ContributingSources...)
		attempted.add(p.Fused.AttemptedSources...)
	}

	return ocr.FusedResult{
		Text:                strings.Join(texts, PageBreak),
		Confidence:          ocr.ClampConfidence(positiveMean(confidences)),
		Boxes:               boxes,
		ContributingSources: contributing.items,
		AttemptedSources:    attempted.items,
		Method:              pages[0].Fused.Method,
	}
}

// AggregateSources groups every page's source results by source id, in
// order of first appearance. Source text joins non-empty page texts with
// PageBreak; confidence is the mean of positive page confidences.
func AggregateSources(pages []PageResult) []SourceAggregate {
	index := make(map[string]int)
	var out []SourceAggregate

	for _, p := range pages {
		for _, s := range p.Sources {
			i, ok := index[s.SourceID]
			if !ok {
				i = len(out)
				index[s.SourceID] = i
				out = append(out, SourceAggregate{SourceID: s.SourceID, Boxes: []ocr.TextBox{}})
			}
			out[i].Pages = append(out[i].Pages, SourcePage{
				PageNumber: p.PageNumber,
				Text:       s.Text,
				Confidence: s.Confidence,
				Status:     s.Status,
			})
			out[i].Boxes = append(out[i].Boxes, s.Boxes...)
		}
	}

	for i := range out {
		var texts []string
		var confidences []float64
		for _, page := range out[i].Pages {
			if page.Text != "" {
				texts = append(texts, page.Text)
			}
			if page.Confidence > 0 {
				confidences = append(confidences, page.Confidence)
			}
		}
		out[i].Text = strings.Join(texts, PageBreak)
		out[i].Confidence = positiveMean(confidences)
	}
	return out
}

func positiveMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool), items: []string{}}
}

func (s *orderedSet) add(items ...string) {
	for _, item := range items {
		if !s.seen[item] {
			s.seen[item] = true
			s.items = append(s.items, item)
		}
	}
}
