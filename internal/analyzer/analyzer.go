// Package analyzer extracts high-signal keywords from item free text
// and measures a 0..3 distance between named areas. Both operations
// are pure and deterministic.
package analyzer

import (
	"strings"
	"unicode"
)

// minTokenLen is the retention threshold for ordinary tokens. Color
// and brand tokens survive regardless of length.
const minTokenLen = 3

// Keywords tokenizes free text into a deduplicated set of lowercase
// keywords, preserving first-occurrence order. Punctuation is stripped,
// stopwords and short tokens are dropped, and color/brand tokens are
// always retained.
func Keywords(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var (
		keywords []string
		seen     = make(map[string]bool)
	)
	for _, token := range strings.Fields(cleaned) {
		if seen[token] {
			continue
		}
		if !retain(token) {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
	}
	return keywords
}

func retain(token string) bool {
	if colors[token] || brands[token] {
		return true
	}
	if stopwords[token] {
		return false
	}
	return len(token) >= minTokenLen
}

// SharedKeywords counts tokens present in both sets.
func SharedKeywords(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, token := range a {
		set[token] = true
	}
	shared := 0
	for _, token := range b {
		if set[token] {
			shared++
			set[token] = false
		}
	}
	return shared
}

// Area distances.
const (
	DistanceSame         = 0
	DistanceAdjacent     = 1
	DistanceSameDistrict = 2
	DistanceFar          = 3
)

// Distance computes the 0..3 distance between two named areas. Names
// are compared case-insensitively after trimming. Unknown areas only
// ever match on exact equality.
func Distance(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b && a != "" {
		return DistanceSame
	}
	if adjacent(a, b) || adjacent(b, a) {
		return DistanceAdjacent
	}
	da, aok := areaDistrict[a]
	db, bok := areaDistrict[b]
	if aok && bok && da == db {
		return DistanceSameDistrict
	}
	return DistanceFar
}

// adjacent checks the one-directional adjacency rows from a to b.
func adjacent(a, b string) bool {
	for _, neighbor := range adjacency[a] {
		if neighbor == b {
			return true
		}
	}
	return false
}
