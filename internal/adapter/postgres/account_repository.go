package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darthbatman/TypeSense/internal/domain"
	"github.com/darthbatman/TypeSense/internal/platform/crypto"
)

// accountColumns must match the Scan order in scanAccount.
const accountColumns = `id, email, password, external_id, created_at`

// AccountRepo stores accounts with passwords encrypted by the crypto service.
// Callers always see plaintext.
type AccountRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

var _ domain.AccountRepository = (*AccountRepo)(nil)

func NewAccountRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *AccountRepo {
	return &AccountRepo{pool: pool, crypto: cryptoSvc}
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// Create inserts a new account. An existing email yields domain.ErrAccountExists.
func (r *AccountRepo) Create(ctx context.Context, email, password, externalID string) (*domain.Account, error) {
	encrypted, err := r.crypto.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+accountColumns,
		email, encrypted, externalID)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (r *AccountRepo) scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Password, &a.ExternalID, &a.CreatedAt); err != nil {
		return nil, err
	}

	plain, err := r.crypto.Decrypt(a.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}
	a.Password = plain
	return &a, nil
}
