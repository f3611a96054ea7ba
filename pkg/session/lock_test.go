package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/aretw0/tendril/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	build := func(conv *workflow.Conversation) (*runtime.Orchestrator, error) {
		return runtime.New(conv, topic.NewRegistry())
	}
	mgr, err := NewManager(memory.NewStore(), build)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("conv-%d", i)
		_, err := mgr.Send(ctx, id, "hi")
		require.NoError(t, err)
		require.NoError(t, mgr.Delete(ctx, id))
	}

	assert.Empty(t, mgr.locks, "locks must be released once no turn holds them")
	assert.Empty(t, mgr.Live())
}
