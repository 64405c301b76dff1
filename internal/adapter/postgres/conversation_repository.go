package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darthbatman/TypeSense/internal/domain"
)

// conversationColumns must match the Scan order in scanConversation.
const conversationColumns = `id, account_id, connection_id, records, version, created_at, updated_at`

// ConversationRepo keeps each conversation's capped history as one JSONB array,
// so a merge result is persisted by a single UPDATE.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Get(ctx context.Context, accountID, connectionID uuid.UUID) (*domain.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE account_id = $1 AND connection_id = $2`,
		accountID, connectionID)

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepo) GetOrCreate(ctx context.Context, accountID, connectionID uuid.UUID) (*domain.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (account_id, connection_id)
		VALUES ($1, $2)
		ON CONFLICT (account_id, connection_id) DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING `+conversationColumns,
		accountID, connectionID)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepo) SaveState(ctx context.Context, conversationID uuid.UUID, state domain.ConversationState, expectedVersion int) (int, error) {
	if len(state.Records) > domain.MaxRecords {
		return 0, fmt.Errorf("refusing to store %d records, cap is %d", len(state.Records), domain.MaxRecords)
	}

	encoded, err := encodeRecords(state.Records)
	if err != nil {
		return 0, err
	}

	var newVersion int
	err = r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET records = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3
		RETURNING version`,
		conversationID, encoded, expectedVersion,
	).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrConversationConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save conversation: %w", err)
	}
	return newVersion, nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var (
		c   domain.Conversation
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.AccountID, &c.ConnectionID, &raw, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	c.State = domain.ConversationState{Records: records}
	return &c, nil
}

// storedImpact is the value half of a persisted {content_id: impact} entry.
type storedImpact struct {
	SentimentDelta float64 `json:"sentiment_delta"`
	Author         string  `json:"author"`
}

// encodeRecords stores records oldest first as single-key objects keyed by
// content id.
func encodeRecords(records []domain.ImpactRecord) ([]byte, error) {
	entries := make([]map[domain.ContentID]storedImpact, 0, len(records))
	for _, r := range records {
		entries = append(entries, map[domain.ContentID]storedImpact{
			r.ContentID: {SentimentDelta: r.SentimentDelta, Author: r.Author},
		})
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return encoded, nil
}

func decodeRecords(raw []byte) ([]domain.ImpactRecord, error) {
	records := []domain.ImpactRecord{}
	if len(raw) == 0 {
		return records, nil
	}

	var entries []map[domain.ContentID]storedImpact
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	for i, entry := range entries {
		if len(entry) != 1 {
			return nil, fmt.Errorf("failed to decode records: entry %d has %d keys", i, len(entry))
		}
		for id, impact := range entry {
			records = append(records, domain.ImpactRecord{ContentID: id, SentimentDelta: impact.SentimentDelta, Author: impact.Author})
		}
	}
	return records, nil
}
