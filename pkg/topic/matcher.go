package topic

import (
	"context"
	"strings"
	"unicode"

	"github.com/aretw0/tendril/pkg/domain"
)

// KeywordMatcher picks the topic whose name or keywords occur most often in
// the input. Ties go to the topic registered first.
type KeywordMatcher struct{}

// Match implements ports.IntentMatcher.
func (KeywordMatcher) Match(_ context.Context, input string, topics []domain.TopicInfo) (string, bool) {
	text := " " + normalize(input) + " "
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	best, bestScore := "", 0
	for _, info := range topics {
		score := 0
		if contains(text, info.Name) {
			score += 2
		}
		for _, kw := range info.Keywords {
			if contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = info.Name, score
		}
	}
	return best, bestScore > 0
}

func contains(text, phrase string) bool {
	p := normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(text, " "+p+" ")
}

// normalize lowercases s and collapses punctuation, underscores and dashes to single spaces.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
