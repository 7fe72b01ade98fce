// Package similarity scores how alike two strings are, every metric in [0,1]
// with 1 meaning identical. All metrics operate on runes, not bytes.
package similarity

import (
	"sort"
	"strings"
)

// Metric names as reported in verification results
const (
	MetricEditRatio = "levenshtein"
	MetricFuzzy     = "fuzzy_ratio"
	MetricPartial   = "fuzzy_partial"
	MetricTokenSort = "fuzzy_token"
)

// Distance is the Levenshtein distance (single-rune insert, delete, substitute)
func Distance(a, b string) int {
	return distance([]rune(a), []rune(b))
}

func distance(ra, rb []rune) int {
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// EditRatio is 1 - Distance/max(len). Two empty strings score 1, one empty 0.
func EditRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(distance(ra, rb))/float64(longest)
}

// FuzzyRatio is the indel similarity 2*LCS/(len(a)+len(b))
func FuzzyRatio(a, b string) float64 {
	return fuzzy([]rune(a), []rune(b))
}

func fuzzy(ra, rb []rune) float64 {
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return 2 * float64(lcs(ra, rb)) / float64(len(ra)+len(rb))
}

// lcs is the length of the longest common subsequence
func lcs(ra, rb []rune) int {
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(rb)]
}

// PartialRatio measures containment of the shorter string in the longer one:
// the best FuzzyRatio of the shorter string against every equal-length window
// of the longer, scaled by (1 + short/long)/2. A value found verbatim inside
// a much longer text therefore scores well but stays below a full match.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	best := 0.0
	for start := 0; start+len(short) <= len(long); start++ {
		score := fuzzy(short, long[start:start+len(short)])
		if score > best {
			best = score
			if best == 1 {
				break
			}
		}
	}
	scale := (1 + float64(len(short))/float64(len(long))) / 2
	return best * scale
}

// TokenSortRatio is FuzzyRatio after sorting whitespace tokens, tolerant of
// word reordering
func TokenSortRatio(a, b string) float64 {
	return FuzzyRatio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Scores computes every metric, keyed by metric name
func Scores(a, b string) map[string]float64 {
	return map[string]float64{
		MetricEditRatio: EditRatio(a, b),
		MetricFuzzy:     FuzzyRatio(a, b),
		MetricPartial:   PartialRatio(a, b),
		MetricTokenSort: TokenSortRatio(a, b),
	}
}

// Best is the maximum across all metrics
func Best(a, b string) float64 {
	best := 0.0
	for _, v := range Scores(a, b) {
		best = max(best, v)
	}
	return best
}
