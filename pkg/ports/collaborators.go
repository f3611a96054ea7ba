package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// CompletionService is the LLM boundary.
// Implementations return the raw model text; callers decide whether it is JSON.
type CompletionService interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompletionFunc adapts a function to CompletionService.
type CompletionFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f CompletionFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// ModelSaver receives collected models by value. The engine does not know the storage format.
type ModelSaver interface {
	SaveModel(ctx context.Context, kind string, model any) error
}

// ModelSaverFunc adapts a function to ModelSaver.
type ModelSaverFunc func(ctx context.Context, kind string, model any) error

// SaveModel calls f.
func (f ModelSaverFunc) SaveModel(ctx context.Context, kind string, model any) error {
	return f(ctx, kind, model)
}

// IntentMatcher maps free user input to one of the candidate topics.
type IntentMatcher interface {
	Match(ctx context.Context, input string, topics []domain.TopicInfo) (string, bool)
}
