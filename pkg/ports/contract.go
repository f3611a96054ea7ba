package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore implementation
// adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	convID := "contract-test-conv-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewConversationSnapshot(convID)
		snap.ActiveTopic = "quote"
		snap.Globals["lang"] = "pt"
		snap.Globals["count"] = 42
		snap.CallStack = []domain.CallFrame{{Caller: "main", Callee: "quote"}}
		snap.Topics = []domain.TopicSnapshot{{Name: "quote", State: domain.TopicWaitingForSubActivity, Cursor: 1}}

		err := store.Save(ctx, convID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "quote", loaded.ActiveTopic)
		assert.Equal(t, "pt", loaded.Globals["lang"])
		// JSON persistence turns ints into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.Globals["count"])
		require.Len(t, loaded.CallStack, 1)
		assert.Equal(t, "quote", loaded.CallStack[0].Callee)
		require.Len(t, loaded.Topics, 1)
		assert.Equal(t, 1, loaded.Topics[0].Cursor)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+convID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, convID, domain.NewConversationSnapshot(convID))
		require.NoError(t, err)

		err = store.Delete(ctx, convID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := convID + "-1"
		id2 := convID + "-2"
		_ = store.Save(ctx, id1, domain.NewConversationSnapshot(id1))
		_ = store.Save(ctx, id2, domain.NewConversationSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
