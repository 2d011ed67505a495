package engine

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

var (
	corpSuffixRe   = regexp.MustCompile(`(?i)\b(inc|llc|ltd|limited|corporation|corp|company|co|gmbh)\b\.?`)
	nonAlphaNumRe  = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpacesRe  = regexp.MustCompile(`\s+`)
)

// NormalizeAccountName strips corporate suffixes, punctuation and casing so
// "Acme Corp." and "ACME, Inc" both reduce to "acme".
func NormalizeAccountName(name string) string {
	n := strings.ToLower(name)
	n = corpSuffixRe.ReplaceAllString(n, "")
	n = nonAlphaNumRe.ReplaceAllString(n, "")
	n = multiSpacesRe.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// AccountMatcher resolves partner-reported account names against known
// target account names. Matches below the threshold are rejected, not
// silently accepted.
type AccountMatcher struct {
	threshold float64
}

// NewAccountMatcher builds a matcher with the given similarity threshold in
// (0,1].
func NewAccountMatcher(threshold float64) *AccountMatcher {
	return &AccountMatcher{threshold: threshold}
}

// Match returns the best candidate index and its similarity score, or
// (-1, score) when the best score is below the threshold. Candidates are
// compared in order, so equal scores resolve to the earliest candidate and
// repeated runs pick the same winner.
func (m *AccountMatcher) Match(input string, candidates []string) (int, float64) {
	normalized := NormalizeAccountName(input)
	if normalized == "" {
		return -1, 0
	}

	bestIdx, bestScore := -1, 0.0
	for i, c := range candidates {
		cand := NormalizeAccountName(c)
		if cand == "" {
			continue
		}

		score := similarity(normalized, cand)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
		if bestScore == 1.0 {
			break
		}
	}

	if bestScore < m.threshold {
		return -1, bestScore
	}
	return bestIdx, bestScore
}

// similarity blends exact, containment and edit-distance signals into [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	lev := levenshtein.Similarity(a, b, nil)
	if strings.Contains(a, b) || strings.Contains(b, a) {
		// Containment is strong evidence ("acme" vs "acme europe") that
		// raw edit distance undersells.
		if lev < 0.8 {
			return 0.8
		}
	}
	return lev
}
