package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darthbatman/TypeSense/internal/domain"
)

type ConnectionRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ConnectionRepository = (*ConnectionRepo)(nil)

func NewConnectionRepo(pool *pgxpool.Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

func (r *ConnectionRepo) GetByPeerID(ctx context.Context, peerID string) (*domain.Connection, error) {
	var c domain.Connection
	err := r.pool.QueryRow(ctx,
		`SELECT id, peer_id, created_at FROM connections WHERE peer_id = $1`, peerID,
	).Scan(&c.ID, &c.PeerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &c, nil
}

// GetOrCreate is a single upsert so concurrent first contacts agree on one row.
func (r *ConnectionRepo) GetOrCreate(ctx context.Context, peerID string) (*domain.Connection, error) {
	var c domain.Connection
	err := r.pool.QueryRow(ctx, `
		INSERT INTO connections (peer_id)
		VALUES ($1)
		ON CONFLICT (peer_id) DO UPDATE SET peer_id = EXCLUDED.peer_id
		RETURNING id, peer_id, created_at`, peerID,
	).Scan(&c.ID, &c.PeerID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert connection: %w", err)
	}
	return &c, nil
}
