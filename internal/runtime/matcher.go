package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/topic"
)

// noTopic is the answer the model gives when nothing fits.
const noTopic = "none"

// LLMMatcher asks a completion service to classify the input, and falls back
// to keyword matching when the service errors or names an unknown topic.
type LLMMatcher struct {
	svc      ports.CompletionService
	fallback ports.IntentMatcher
	logger   *slog.Logger
}

// NewLLMMatcher creates a matcher over svc.
func NewLLMMatcher(svc ports.CompletionService, logger *slog.Logger) *LLMMatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMMatcher{svc: svc, fallback: topic.KeywordMatcher{}, logger: logger}
}

// Match implements ports.IntentMatcher.
func (m *LLMMatcher) Match(ctx context.Context, input string, topics []domain.TopicInfo) (string, bool) {
	if strings.TrimSpace(input) == "" || len(topics) == 0 {
		return "", false
	}
	if m.svc == nil {
		return m.fallback.Match(ctx, input, topics)
	}

	answer, err := m.svc.Complete(ctx, classifyPrompt(topics), input)
	if err != nil {
		m.logger.Warn("intent classification failed", "error", err)
		return m.fallback.Match(ctx, input, topics)
	}
	name := strings.Trim(strings.ToLower(strings.TrimSpace(answer)), `"'.`)
	if name == noTopic {
		return "", false
	}
	for _, t := range topics {
		if strings.ToLower(t.Name) == name {
			return t.Name, true
		}
	}
	m.logger.Debug("model named unknown topic", "answer", answer)
	return m.fallback.Match(ctx, input, topics)
}

func classifyPrompt(topics []domain.TopicInfo) string {
	var b strings.Builder
	b.WriteString("Classify the user's message into exactly one of these topics. ")
	fmt.Fprintf(&b, "Answer with the topic name only, or %q when none applies.\n\n", noTopic)
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", t.Description)
		}
		if len(t.Keywords) > 0 {
			fmt.Fprintf(&b, " (keywords: %s)", strings.Join(t.Keywords, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
