package world

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// NameMatches reports whether a player- or model-typed query refers to a thing
// with the given name and aliases. Matching is case-insensitive and proceeds
// from strict to loose: exact match, substring (query at least two characters),
// then Levenshtein distance on single tokens to absorb typos — distance 1 for
// short tokens, 2 from five characters up.
func NameMatches(query, name string, aliases []string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}

	candidates := make([]string, 0, 1+len(aliases))
	candidates = append(candidates, name)
	candidates = append(candidates, aliases...)

	for _, cand := range candidates {
		c := strings.ToLower(strings.TrimSpace(cand))
		if c == "" {
			continue
		}
		if c == q {
			return true
		}
		if len(q) >= 2 && strings.Contains(c, q) {
			return true
		}
	}

	if strings.ContainsRune(q, ' ') {
		return false
	}
	for _, cand := range candidates {
		for _, token := range strings.Fields(strings.ToLower(cand)) {
			if matchr.Levenshtein(q, token) <= levTolerance(q) {
				return true
			}
		}
	}
	return false
}

func levTolerance(q string) int {
	if len(q) <= 4 {
		return 1
	}
	return 2
}
