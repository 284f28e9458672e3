package retrieve

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Score weights
const (
	distanceWeight = 0.6
	patternWeight  = 0.4
	lowScore       = 0.2
	verbatimBoost  = 0.15
)

// Similarity maps an L2 distance onto (0, 1]
func Similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// PatternScore is the share of terms found in text. Single words must
// match whole words; phrases match as substrings.
func PatternScore(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsFunc(term, unicode.IsSpace) {
			if strings.Contains(lower, term) {
				matched++
			}
			continue
		}
		if containsWord(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// Score combines vector distance and term matches into a relevance in
// [0, 1]. Weak scores get a boost when a claim word appears verbatim.
func Score(claim, text string, distance float64, terms []string) float64 {
	score := distanceWeight*Similarity(distance) + patternWeight*PatternScore(text, terms)
	if score < lowScore && sharesWord(claim, text, 3) {
		score += verbatimBoost
	}
	return clamp(score)
}

// sharesWord reports whether any claim word of at least minLen runes
// appears as a whole word in text
func sharesWord(claim, text string, minLen int) bool {
	lower := strings.ToLower(text)
	for _, w := range Words(claim) {
		if len([]rune(w)) >= minLen && containsWord(lower, w) {
			return true
		}
	}
	return false
}

// Words splits s into lower-case words
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWord finds word in text bounded by non-alphanumeric runes
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
