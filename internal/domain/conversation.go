package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxRecords is the most impact records a conversation retains.
const MaxRecords = 20

// ContentID is the lowercase hex SHA-1 of a message text.
type ContentID string

// Message is one raw chat line. Order within a batch is conversation order.
type Message struct {
	Author string
	Text   string
}

// ImpactRecord is the marginal sentiment contributed by one message.
type ImpactRecord struct {
	ContentID      ContentID `json:"content_id"`
	SentimentDelta float64   `json:"sentiment_delta"`
	Author         string    `json:"author"`
}

// ConversationState is the capped, ordered (oldest first) record history.
type ConversationState struct {
	Records []ImpactRecord
}

// Conversation links an account to a connection and carries its state.
type Conversation struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	ConnectionID uuid.UUID
	State        ConversationState
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Get(ctx context.Context, accountID, connectionID uuid.UUID) (*Conversation, error)
	// GetOrCreate returns the existing conversation or creates an empty one.
	GetOrCreate(ctx context.Context, accountID, connectionID uuid.UUID) (*Conversation, error)
	// SaveState replaces the stored records if the stored version still equals
	// expectedVersion, returning the new version. A mismatch yields
	// ErrConversationConflict.
	SaveState(ctx context.Context, conversationID uuid.UUID, state ConversationState, expectedVersion int) (int, error)
}

// ConversationLocker serializes read-modify-write cycles on one conversation.
type ConversationLocker interface {
	Lock(ctx context.Context, conversationID uuid.UUID) (unlock func(), err error)
}

// ChangeConversationRequest is a batch of new messages for one account/peer pair.
type ChangeConversationRequest struct {
	Email    string
	PeerID   string
	Messages []Message
}

// AppService is the application layer contract; handlers route all operations through here.
type AppService interface {
	RegisterAccount(ctx context.Context, email, password, externalID string) (bool, error)
	ValidateAccount(ctx context.Context, email, password string) (bool, error)
	ChangeConversation(ctx context.Context, req ChangeConversationRequest) (ConversationState, error)
	GetConversation(ctx context.Context, email, peerID string) (ConversationState, error)
}
