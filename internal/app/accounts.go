package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/darthbatman/TypeSense/internal/domain"
	apperrors "github.com/darthbatman/TypeSense/internal/platform/errors"
)

// RegisterAccount stores a new account. A taken email is reported as false,
// not as an error.
func (s *Service) RegisterAccount(ctx context.Context, email, password, externalID string) (bool, error) {
	if email == "" {
		return false, apperrors.ValidationError("email is required").WithField("field", "email")
	}

	account, err := s.accounts.Create(ctx, email, password, externalID)
	if errors.Is(err, domain.ErrAccountExists) {
		slog.InfoContext(ctx, "Registration rejected, email already used")
		return false, nil
	}
	if err != nil {
		return false, apperrors.PersistenceError("failed to create account", err)
	}

	slog.InfoContext(ctx, "Account registered", "account_id", account.ID)
	return true, nil
}

// ValidateAccount reports whether email and password match a stored account.
// Credentials are compared as opaque strings.
func (s *Service) ValidateAccount(ctx context.Context, email, password string) (bool, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.PersistenceError("failed to load account", err)
	}

	return subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) == 1, nil
}
