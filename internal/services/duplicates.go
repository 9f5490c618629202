package services

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// similarityThreshold is the minimum normalized similarity for two names to be
// flagged as the same commitment.
const similarityThreshold = 0.8

// SimilarName returns the first existing name that looks like candidate.
// It is advisory; callers only use it to warn the user.
func SimilarName(existing []string, candidate string) (string, bool) {
	c := normalizeName(candidate)
	if c == "" {
		return "", false
	}
	for _, name := range existing {
		n := normalizeName(name)
		if n == "" {
			continue
		}
		if n == c || strings.Contains(n, c) || strings.Contains(c, n) {
			return name, true
		}
		if similarity(n, c) >= similarityThreshold {
			return name, true
		}
	}
	return "", false
}

func similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
