// Package fuzzy scores how closely free-text service names match the lines of
// a quotation.
package fuzzy

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the minimum similarity for a name to count as a match.
const DefaultThreshold = 0.6

// Match is the winning candidate of FindBestMatch.
type Match struct {
	Candidate string
	Score     float64
}

// Similarity returns the case-insensitive longest-matching-block ratio of a and b
// in [0,1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(runes(strings.ToLower(a)), runes(strings.ToLower(b)))
	return m.Ratio()
}

// FindBestMatch returns the candidate with the strictly highest score at or
// above threshold. Ties keep the first candidate seen.
func FindBestMatch(query string, candidates []string, threshold float64) (Match, bool) {
	if query == "" || len(candidates) == 0 {
		return Match{}, false
	}
	var best Match
	found := false
	for _, candidate := range candidates {
		score := Similarity(query, candidate)
		if score > best.Score && score >= threshold {
			best = Match{Candidate: candidate, Score: score}
			found = true
		}
	}
	return best, found
}

// FindByName fuzzy-matches query against the names of items and returns the
// index of the first item whose name equals the winner case-insensitively.
func FindByName[T any](query string, items []T, name func(T) string, threshold float64) (int, bool) {
	if len(items) == 0 {
		return -1, false
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = name(item)
	}
	match, ok := FindBestMatch(query, names, threshold)
	if !ok {
		return -1, false
	}
	for i, n := range names {
		if strings.EqualFold(n, match.Candidate) {
			return i, true
		}
	}
	return -1, false
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
