package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is a registered requester. Password is opaque; at rest it is
// whatever the configured crypto service produced.
type Account struct {
	ID         uuid.UUID `db:"id"`
	Email      string    `db:"email"`
	Password   string    `db:"password"`
	ExternalID string    `db:"external_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Connection is the other party of a conversation, keyed by their external id.
type Connection struct {
	ID        uuid.UUID `db:"id"`
	PeerID    string    `db:"peer_id"`
	CreatedAt time.Time `db:"created_at"`
}

// AccountRepository abstracts account persistence.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, email, password, externalID string) (*Account, error)
}

// ConnectionRepository abstracts connection persistence.
type ConnectionRepository interface {
	GetByPeerID(ctx context.Context, peerID string) (*Connection, error)
	// GetOrCreate returns the existing connection for peerID or creates one.
	GetOrCreate(ctx context.Context, peerID string) (*Connection, error)
}
