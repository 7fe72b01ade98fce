package fusion

import (
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/similarity"
)

// voting picks the most common full text, the longest among equally common
// texts, at the mean source confidence
func (e *Engine) voting(usable []ocr.SourceResult) ocr.FusedResult {
	counts := make(map[string]int, len(usable))
	total := 0.0
	for _, r := range usable {
		counts[r.Text]++
		total += ocr.ClampConfidence(r.Confidence)
	}

	selected, selectedCount := "", 0
	for _, r := range usable {
		n := counts[r.Text]
		longer := len([]rune(r.Text)) > len([]rune(selected))
		if n > selectedCount || (n == selectedCount && longer) {
			selected, selectedCount = r.Text, n
		}
	}

	return ocr.FusedResult{
		Text:       selected,
		Confidence: total / float64(len(usable)),
		Method:     ocr.MethodVoting,
	}
}

// editDistance finds the most similar pair of texts. When the pair clears
// EditDistanceThreshold its higher-confidence member wins; otherwise the
// most confident source overall.
func (e *Engine) editDistance(usable []ocr.SourceResult) ocr.FusedResult {
	confidences := make([]float64, len(usable))
	for i, r := range usable {
		confidences[i] = ocr.ClampConfidence(r.Confidence)
	}

	selected := argmax(confidences)
	bestI, bestJ, bestSim := -1, -1, -1.0
	for i := range usable {
		for j := i + 1; j < len(usable); j++ {
			sim := similarity.EditRatio(usable[i].Text, usable[j].Text)
			if sim > bestSim {
				bestI, bestJ, bestSim = i, j, sim
			}
		}
	}
	if bestI >= 0 && bestSim >= e.cfg.EditDistanceThreshold {
		selected = bestI
		if confidences[bestJ] > confidences[bestI] {
			selected = bestJ
		}
	}

	return ocr.FusedResult{
		Text:       usable[selected].Text,
		Confidence: confidences[selected],
		Method:     ocr.MethodEditDistance,
	}
}
