package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routable = []domain.TopicInfo{
	{Name: "quote", Description: "Prices a policy", Keywords: []string{"price"}},
	{Name: "agent", Keywords: []string{"human"}},
}

func TestLLMMatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("model answer wins", func(t *testing.T) {
		var system string
		m := runtime.NewLLMMatcher(ports.CompletionFunc(func(_ context.Context, s, _ string) (string, error) {
			system = s
			return " \"Agent\".", nil
		}), nil)
		name, ok := m.Match(ctx, "what does it cost", routable)
		require.True(t, ok)
		assert.Equal(t, "agent", name)
		assert.Contains(t, system, "- quote: Prices a policy (keywords: price)")
	})

	t.Run("none means no match", func(t *testing.T) {
		m := runtime.NewLLMMatcher(ports.CompletionFunc(func(context.Context, string, string) (string, error) {
			return "none", nil
		}), nil)
		_, ok := m.Match(ctx, "price please", routable)
		assert.False(t, ok)
	})

	t.Run("errors fall back to keywords", func(t *testing.T) {
		m := runtime.NewLLMMatcher(ports.CompletionFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("offline")
		}), nil)
		name, ok := m.Match(ctx, "I want a human", routable)
		require.True(t, ok)
		assert.Equal(t, "agent", name)
	})

	t.Run("unknown topic falls back to keywords", func(t *testing.T) {
		m := runtime.NewLLMMatcher(ports.CompletionFunc(func(context.Context, string, string) (string, error) {
			return "weather", nil
		}), nil)
		name, ok := m.Match(ctx, "what is the price", routable)
		require.True(t, ok)
		assert.Equal(t, "quote", name)
	})

	t.Run("blank input", func(t *testing.T) {
		m := runtime.NewLLMMatcher(nil, nil)
		_, ok := m.Match(ctx, "   ", routable)
		assert.False(t, ok)
	})
}
