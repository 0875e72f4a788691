package theme

import (
	"sort"
	"strings"
	"unicode"

	"github.com/planora/roadmap/internal/types"
)

// stopwords excluded from title tokenization. Short tokens are dropped
// separately.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "new": true, "add": true, "support": true, "improve": true,
	"update": true, "enable": true, "implement": true, "build": true,
}

// LexicalScorer groups items that share a significant title token, then
// buckets the remainder by item type. It carries no external state, so the
// same items always score to the same groups.
type LexicalScorer struct{}

// Score implements Scorer.
func (LexicalScorer) Score(items []*types.RoadmapItem) []CandidateGroup {
	byToken := make(map[string][]string)
	for _, it := range items {
		if it.IsExcluded {
			continue
		}
		seen := make(map[string]bool)
		for _, tok := range tokenize(it.Title) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			byToken[tok] = append(byToken[tok], it.ID)
		}
	}

	tokens := make([]string, 0, len(byToken))
	for tok, ids := range byToken {
		if len(ids) >= 2 {
			tokens = append(tokens, tok)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(byToken[tokens[i]]) != len(byToken[tokens[j]]) {
			return len(byToken[tokens[i]]) > len(byToken[tokens[j]])
		}
		return tokens[i] < tokens[j]
	})

	var groups []CandidateGroup
	for _, tok := range tokens {
		ids := byToken[tok]
		conf := 0.5 + 0.05*float64(len(ids))
		if conf > 0.9 {
			conf = 0.9
		}
		groups = append(groups, CandidateGroup{
			Name:              titleCase(tok),
			BusinessObjective: "Deliver the " + tok + " workstream",
			Confidence:        conf,
			ItemIDs:           ids,
		})
	}

	// Remainder buckets: same item type, at least two members.
	byType := make(map[types.ItemType][]string)
	for _, it := range items {
		if it.IsExcluded {
			continue
		}
		byType[it.ItemType] = append(byType[it.ItemType], it.ID)
	}
	kinds := make([]types.ItemType, 0, len(byType))
	for k := range byType {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		if len(byType[k]) < 2 {
			continue
		}
		groups = append(groups, CandidateGroup{
			Name:       titleCase(string(k)) + " track",
			Confidence: 0.3,
			ItemIDs:    byType[k],
		})
	}
	return groups
}

func tokenize(title string) []string {
	var toks []string
	for _, f := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 4 || stopwords[f] {
			continue
		}
		toks = append(toks, f)
	}
	return toks
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
