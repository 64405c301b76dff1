package domain

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationConflict = errors.New("conversation was modified concurrently")
	ErrLockNotAcquired      = errors.New("conversation lock not acquired")
	ErrScoringFailed        = errors.New("sentiment scoring failed")
)
