// Package matcher maps a free-text answer onto one of the options shown on screen.
package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

const (
	// FuzzyThreshold is the similarity an option must exceed to be a fuzzy match.
	FuzzyThreshold = 0.7
	// AcceptThreshold is the confidence a match must exceed before anyone acts on it.
	AcceptThreshold = 0.3

	exactConfidence    = 1.0
	containsConfidence = 0.9
	includedConfidence = 0.85
	fallbackConfidence = 0.25
)

// FindBestMatch picks the option that best matches candidate. Rules are tried in order:
// exact, candidate contains option, option contains candidate, Levenshtein similarity,
// and finally the first option as a low-confidence fallback.
func FindBestMatch(candidate string, options []string) models.MatchResult {
	if len(options) == 0 {
		return models.MatchResult{Method: models.MethodNone}
	}

	want := normalize.Answer(candidate)
	normalized := make([]string, len(options))
	for i, opt := range options {
		normalized[i] = normalize.Answer(opt)
	}

	for i, opt := range normalized {
		if opt == want {
			return models.MatchResult{Match: options[i], Confidence: exactConfidence, Method: models.MethodExact}
		}
	}

	for i, opt := range normalized {
		if strings.Contains(want, opt) {
			return models.MatchResult{Match: options[i], Confidence: containsConfidence, Method: models.MethodContains}
		}
	}

	for i, opt := range normalized {
		if strings.Contains(opt, want) {
			return models.MatchResult{Match: options[i], Confidence: includedConfidence, Method: models.MethodIncluded}
		}
	}

	best := -1
	bestDistance := 0
	bestSimilarity := 0.0
	for i, opt := range normalized {
		distance, similarity := Similarity(want, opt)
		if similarity > FuzzyThreshold && (best < 0 || distance < bestDistance) {
			best, bestDistance, bestSimilarity = i, distance, similarity
		}
	}
	if best >= 0 {
		return models.MatchResult{Match: options[best], Confidence: bestSimilarity, Method: models.MethodFuzzy}
	}

	return models.MatchResult{Match: options[0], Confidence: fallbackConfidence, Method: models.MethodFallback}
}

// Similarity returns the edit distance of a and b and 1 - distance/maxLen.
func Similarity(a, b string) (int, float64) {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0, 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return distance, 1 - float64(distance)/float64(maxLen)
}

// Accepted reports whether a match is good enough to submit.
func Accepted(m models.MatchResult, threshold float64) bool {
	return m.Match != "" && m.Confidence > threshold
}
