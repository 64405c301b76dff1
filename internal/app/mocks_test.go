package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/darthbatman/TypeSense/internal/domain"
)

type mockAccountRepo struct {
	getByEmailFn func(ctx context.Context, email string) (*domain.Account, error)
	createFn     func(ctx context.Context, email, password, externalID string) (*domain.Account, error)
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAccountRepo) Create(ctx context.Context, email, password, externalID string) (*domain.Account, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email, password, externalID)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockConnectionRepo struct {
	getByPeerIDFn func(ctx context.Context, peerID string) (*domain.Connection, error)
	getOrCreateFn func(ctx context.Context, peerID string) (*domain.Connection, error)
}

func (m *mockConnectionRepo) GetByPeerID(ctx context.Context, peerID string) (*domain.Connection, error) {
	if m.getByPeerIDFn != nil {
		return m.getByPeerIDFn(ctx, peerID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConnectionRepo) GetOrCreate(ctx context.Context, peerID string) (*domain.Connection, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, peerID)
	}
	return nil, fmt.Errorf("not implemented")
}

// memConversationRepo keeps a single conversation in memory with version checks.
type memConversationRepo struct {
	mu      sync.Mutex
	conv    *domain.Conversation
	saves   int
	saveErr error
	getErr  error
}

func newMemConversationRepo(records ...domain.ImpactRecord) *memConversationRepo {
	return &memConversationRepo{conv: &domain.Conversation{
		ID:    uuid.New(),
		State: domain.ConversationState{Records: records},
	}}
}

func (m *memConversationRepo) snapshot() *domain.Conversation {
	c := *m.conv
	c.State.Records = append([]domain.ImpactRecord(nil), m.conv.State.Records...)
	return &c
}

func (m *memConversationRepo) Get(_ context.Context, accountID, connectionID uuid.UUID) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.conv.AccountID, m.conv.ConnectionID = accountID, connectionID
	return m.snapshot(), nil
}

func (m *memConversationRepo) GetOrCreate(ctx context.Context, accountID, connectionID uuid.UUID) (*domain.Conversation, error) {
	return m.Get(ctx, accountID, connectionID)
}

func (m *memConversationRepo) SaveState(_ context.Context, _ uuid.UUID, state domain.ConversationState, expectedVersion int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	if m.conv.Version != expectedVersion {
		return 0, domain.ErrConversationConflict
	}
	m.saves++
	m.conv.Version++
	m.conv.State = state
	return m.conv.Version, nil
}

type mockLocker struct {
	mu       sync.Mutex
	lockErr  error
	locked   int
	unlocked int
}

func (m *mockLocker) Lock(_ context.Context, _ uuid.UUID) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locked++
	return func() {
		m.mu.Lock()
		m.unlocked++
		m.mu.Unlock()
	}, nil
}

type mockScorer struct {
	mu      sync.Mutex
	calls   int
	scoreFn func(text string) (float64, error)
}

func (m *mockScorer) Score(_ context.Context, text string) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.scoreFn != nil {
		return m.scoreFn(text)
	}
	return 0, nil
}
