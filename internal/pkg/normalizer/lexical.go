package normalizer

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/sbsbridge/claimbridge/app/models"
)

// codePrefixBonus is added when the facility code and the canonical code
// share an alphabetic segment such as "LAB".
const codePrefixBonus = 0.1

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "for": {}, "with": {}, "to": {}, "in": {}, "on": {},
}

// lexicalMatch is a scored catalog candidate.
type lexicalMatch struct {
	Entry models.CatalogEntry
	Score float64
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

// codeSegments returns the purely alphabetic segments of a code, ignoring
// the catalog namespace.
func codeSegments(code string) map[string]struct{} {
	out := make(map[string]struct{})
	for tok := range tokenize(code) {
		if tok == "sbs" {
			continue
		}
		alpha := true
		for _, r := range tok {
			if !unicode.IsLetter(r) {
				alpha = false
				break
			}
		}
		if alpha {
			out[tok] = struct{}{}
		}
	}
	return out
}

// dice is the Sørensen–Dice coefficient of two token sets.
func dice(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

func overlaps(a, b map[string]struct{}) bool {
	for t := range a {
		if _, ok := b[t]; ok {
			return true
		}
	}
	return false
}

// lexicalScore rates how well entry matches the facility code and description.
func lexicalScore(internalCode, description string, entry models.CatalogEntry) float64 {
	score := dice(tokenize(description), tokenize(entry.Description))
	if score > 0 && overlaps(codeSegments(internalCode), codeSegments(entry.CanonicalCode)) {
		score += codePrefixBonus
	}
	if score > 1 {
		score = 1
	}
	return roundConfidence(score)
}

// rankLexical scores every entry and returns the best n, highest score first.
// Ties go to the lexicographically smaller code so the ranking is stable.
func rankLexical(internalCode, description string, catalog []models.CatalogEntry, n int) []lexicalMatch {
	matches := make([]lexicalMatch, 0, len(catalog))
	for _, e := range catalog {
		if s := lexicalScore(internalCode, description, e); s > 0 {
			matches = append(matches, lexicalMatch{Entry: e, Score: s})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entry.CanonicalCode < matches[j].Entry.CanonicalCode
	})
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

func roundConfidence(v float64) float64 {
	return math.Round(v*10000) / 10000
}
