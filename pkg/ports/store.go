package ports

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
)

// SnapshotStore defines the interface for persisting conversation snapshots.
type SnapshotStore interface {
	// Save persists the snapshot for a given conversation ID.
	Save(ctx context.Context, conversationID string, snap *domain.ConversationSnapshot) error

	// Load retrieves the snapshot for a given conversation ID.
	// Returns domain.ErrSessionNotFound if the conversation does not exist.
	Load(ctx context.Context, conversationID string) (*domain.ConversationSnapshot, error)

	// Delete removes the snapshot for a given conversation ID.
	Delete(ctx context.Context, conversationID string) error

	// List returns all active conversation IDs.
	List(ctx context.Context) ([]string, error)
}
