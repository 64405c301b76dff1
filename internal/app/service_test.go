package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
	"github.com/darthbatman/TypeSense/internal/domain"
	apperrors "github.com/darthbatman/TypeSense/internal/platform/errors"
	"github.com/darthbatman/TypeSense/internal/sentiment"
)

var testAccount = &domain.Account{ID: uuid.New(), Email: "a@example.com", Password: "hunter2"}

type fixture struct {
	svc           *Service
	accounts      *mockAccountRepo
	connections   *mockConnectionRepo
	conversations *memConversationRepo
	locker        *mockLocker
	scorer        *mockScorer
	metrics       *metrics.ConversationMetrics
}

func newFixture(t *testing.T, existing ...domain.ImpactRecord) *fixture {
	t.Helper()
	f := &fixture{
		accounts: &mockAccountRepo{
			getByEmailFn: func(_ context.Context, email string) (*domain.Account, error) {
				if email == testAccount.Email {
					return testAccount, nil
				}
				return nil, domain.ErrAccountNotFound
			},
		},
		connections: &mockConnectionRepo{
			getOrCreateFn: func(_ context.Context, peerID string) (*domain.Connection, error) {
				return &domain.Connection{ID: uuid.New(), PeerID: peerID}, nil
			},
			getByPeerIDFn: func(_ context.Context, peerID string) (*domain.Connection, error) {
				if peerID == "peer-1" {
					return &domain.Connection{ID: uuid.New(), PeerID: peerID}, nil
				}
				return nil, domain.ErrConnectionNotFound
			},
		},
		conversations: newMemConversationRepo(existing...),
		locker:        &mockLocker{},
		scorer:        &mockScorer{},
		metrics:       metrics.NewConversationMetrics(prometheus.NewRegistry()),
	}
	f.svc = NewService(Deps{
		Accounts:      f.accounts,
		Connections:   f.connections,
		Conversations: f.conversations,
		Locker:        f.locker,
		Calculator:    sentiment.NewCalculator(f.scorer),
		Clock:         clockwork.NewFakeClock(),
		Metrics:       f.metrics,
	})
	return f
}

func changeReq(texts ...string) domain.ChangeConversationRequest {
	msgs := make([]domain.Message, 0, len(texts))
	for i, text := range texts {
		msgs = append(msgs, domain.Message{Author: fmt.Sprintf("author-%d", i%2), Text: text})
	}
	return domain.ChangeConversationRequest{Email: testAccount.Email, PeerID: "peer-1", Messages: msgs}
}

// --- RegisterAccount ---

func TestRegisterAccount_Success(t *testing.T) {
	f := newFixture(t)
	f.accounts.createFn = func(_ context.Context, email, password, externalID string) (*domain.Account, error) {
		assert.Equal(t, "new@example.com", email)
		assert.Equal(t, "pw", password)
		assert.Equal(t, "fb-1", externalID)
		return &domain.Account{ID: uuid.New(), Email: email}, nil
	}

	ok, err := f.svc.RegisterAccount(context.Background(), "new@example.com", "pw", "fb-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterAccount_EmailTaken(t *testing.T) {
	f := newFixture(t)
	f.accounts.createFn = func(context.Context, string, string, string) (*domain.Account, error) {
		return nil, domain.ErrAccountExists
	}

	ok, err := f.svc.RegisterAccount(context.Background(), testAccount.Email, "pw", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterAccount_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.accounts.createFn = func(context.Context, string, string, string) (*domain.Account, error) {
		return nil, errors.New("connection reset")
	}

	_, err := f.svc.RegisterAccount(context.Background(), "x@example.com", "pw", "")
	assert.True(t, apperrors.IsType(err, apperrors.TypePersistence))
}

func TestRegisterAccount_EmptyEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterAccount(context.Background(), "", "pw", "")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

// --- ValidateAccount ---

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     bool
	}{
		{"matching credentials", testAccount.Email, "hunter2", true},
		{"wrong password", testAccount.Email, "hunter3", false},
		{"empty password", testAccount.Email, "", false},
		{"unknown email", "nobody@example.com", "hunter2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ok, err := f.svc.ValidateAccount(context.Background(), tt.email, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestValidateAccount_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.accounts.getByEmailFn = func(context.Context, string) (*domain.Account, error) {
		return nil, errors.New("timeout")
	}

	ok, err := f.svc.ValidateAccount(context.Background(), testAccount.Email, "hunter2")
	assert.False(t, ok)
	assert.True(t, apperrors.IsType(err, apperrors.TypePersistence))
}

// --- ChangeConversation ---

func TestChangeConversation_AppendsScoredRecords(t *testing.T) {
	f := newFixture(t)
	scores := []float64{0, 0.5, 0.25}
	f.scorer.scoreFn = func(string) (float64, error) {
		s := scores[0]
		scores = scores[1:]
		return s, nil
	}

	state, err := f.svc.ChangeConversation(context.Background(), changeReq("hi", "hello"))
	require.NoError(t, err)

	require.Len(t, state.Records, 2)
	assert.Equal(t, sentiment.ContentID("hi"), state.Records[0].ContentID)
	assert.Equal(t, "author-0", state.Records[0].Author)
	assert.InDelta(t, 0.5, state.Records[0].SentimentDelta, 1e-9)
	assert.InDelta(t, -0.25, state.Records[1].SentimentDelta, 1e-9)

	assert.Equal(t, 1, f.conversations.saves)
	assert.Equal(t, state, f.conversations.conv.State)
	assert.Equal(t, 1, f.locker.locked)
	assert.Equal(t, 1, f.locker.unlocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Merges.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RecordsAppended))
}

func TestChangeConversation_ResubmissionIsNoop(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.ChangeConversation(context.Background(), changeReq("hi", "hello"))
	require.NoError(t, err)
	callsAfterFirst := f.scorer.calls

	second, err := f.svc.ChangeConversation(context.Background(), changeReq("hi", "hello"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, f.scorer.calls, "seen messages must not be rescored")
	assert.Equal(t, 1, f.conversations.saves)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Merges.WithLabelValues("noop")))
}

func TestChangeConversation_OnlyUnseenAreScored(t *testing.T) {
	existing := domain.ImpactRecord{ContentID: sentiment.ContentID("hi"), SentimentDelta: 0.1, Author: "author-0"}
	f := newFixture(t, existing)

	state, err := f.svc.ChangeConversation(context.Background(), changeReq("hi", "new one"))
	require.NoError(t, err)

	// one unseen message: two windows
	assert.Equal(t, 2, f.scorer.calls)
	require.Len(t, state.Records, 2)
	assert.Equal(t, existing, state.Records[0])
	assert.Equal(t, sentiment.ContentID("new one"), state.Records[1].ContentID)
}

func TestChangeConversation_CapsHistory(t *testing.T) {
	existing := make([]domain.ImpactRecord, 0, domain.MaxRecords)
	for i := range domain.MaxRecords {
		existing = append(existing, domain.ImpactRecord{ContentID: sentiment.ContentID(fmt.Sprintf("old %d", i))})
	}
	f := newFixture(t, existing...)

	state, err := f.svc.ChangeConversation(context.Background(), changeReq("n1", "n2", "n3"))
	require.NoError(t, err)

	require.Len(t, state.Records, domain.MaxRecords)
	assert.Equal(t, existing[3], state.Records[0])
	assert.Equal(t, sentiment.ContentID("n3"), state.Records[domain.MaxRecords-1].ContentID)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.RecordsEvicted))
}

func TestChangeConversation_LongBatchResubmissionIsNoop(t *testing.T) {
	f := newFixture(t)
	texts := make([]string, 0, domain.MaxRecords+5)
	for i := range domain.MaxRecords + 5 {
		texts = append(texts, fmt.Sprintf("m%02d", i))
	}

	first, err := f.svc.ChangeConversation(context.Background(), changeReq(texts...))
	require.NoError(t, err)
	require.Len(t, first.Records, domain.MaxRecords)
	assert.Equal(t, sentiment.ContentID("m05"), first.Records[0].ContentID)
	assert.Equal(t, sentiment.ContentID("m24"), first.Records[domain.MaxRecords-1].ContentID)
	callsAfterFirst := f.scorer.calls

	second, err := f.svc.ChangeConversation(context.Background(), changeReq(texts...))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, f.scorer.calls, "evicted messages must not be rescored")
	assert.Equal(t, 1, f.conversations.saves)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Merges.WithLabelValues("noop")))
}

func TestChangeConversation_EmptyBatchReturnsCurrentState(t *testing.T) {
	existing := domain.ImpactRecord{ContentID: "abc", SentimentDelta: 0.2}
	f := newFixture(t, existing)

	state, err := f.svc.ChangeConversation(context.Background(), changeReq())
	require.NoError(t, err)
	assert.Equal(t, []domain.ImpactRecord{existing}, state.Records)
	assert.Zero(t, f.scorer.calls)
	assert.Zero(t, f.conversations.saves)
}

func TestChangeConversation_ScoringFailureLeavesStateUntouched(t *testing.T) {
	existing := domain.ImpactRecord{ContentID: "abc", SentimentDelta: 0.2}
	f := newFixture(t, existing)
	f.scorer.scoreFn = func(string) (float64, error) { return 0, errors.New("upstream 503") }

	_, err := f.svc.ChangeConversation(context.Background(), changeReq("hi"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeScoring))
	assert.ErrorIs(t, err, domain.ErrScoringFailed)
	assert.Zero(t, f.conversations.saves)
	assert.Equal(t, []domain.ImpactRecord{existing}, f.conversations.conv.State.Records)
	assert.Equal(t, 1, f.locker.unlocked, "lock must be released on failure")
}

func TestChangeConversation_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	req := changeReq("hi")
	req.Email = "nobody@example.com"

	_, err := f.svc.ChangeConversation(context.Background(), req)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
	assert.Zero(t, f.scorer.calls)
	assert.Zero(t, f.locker.locked)
}

func TestChangeConversation_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ChangeConversationRequest)
	}{
		{"missing email", func(r *domain.ChangeConversationRequest) { r.Email = "" }},
		{"missing peer", func(r *domain.ChangeConversationRequest) { r.PeerID = "" }},
		{"nil messages", func(r *domain.ChangeConversationRequest) { r.Messages = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := changeReq("hi")
			tt.mutate(&req)

			_, err := f.svc.ChangeConversation(context.Background(), req)
			assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
		})
	}
}

func TestChangeConversation_LockNotAcquired(t *testing.T) {
	f := newFixture(t)
	f.locker.lockErr = domain.ErrLockNotAcquired

	_, err := f.svc.ChangeConversation(context.Background(), changeReq("hi"))

	assert.True(t, apperrors.IsType(err, apperrors.TypePersistence))
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
	assert.Zero(t, f.scorer.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Merges.WithLabelValues("lock_timeout")))
}

func TestChangeConversation_VersionConflict(t *testing.T) {
	f := newFixture(t)
	f.conversations.saveErr = domain.ErrConversationConflict

	_, err := f.svc.ChangeConversation(context.Background(), changeReq("hi"))

	assert.True(t, apperrors.IsType(err, apperrors.TypePersistence))
	assert.ErrorIs(t, err, domain.ErrConversationConflict)
	se := apperrors.AsStructuredError(err)
	require.NotNil(t, se)
	assert.True(t, se.Retryable())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Merges.WithLabelValues("conflict")))
}

func TestChangeConversation_ConnectionFailure(t *testing.T) {
	f := newFixture(t)
	f.connections.getOrCreateFn = func(context.Context, string) (*domain.Connection, error) {
		return nil, errors.New("pool closed")
	}

	_, err := f.svc.ChangeConversation(context.Background(), changeReq("hi"))
	assert.True(t, apperrors.IsType(err, apperrors.TypePersistence))
}

// --- GetConversation ---

func TestGetConversation(t *testing.T) {
	existing := domain.ImpactRecord{ContentID: "abc", SentimentDelta: -0.3, Author: "x"}
	f := newFixture(t, existing)

	state, err := f.svc.GetConversation(context.Background(), testAccount.Email, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ImpactRecord{existing}, state.Records)
	assert.Zero(t, f.scorer.calls)
}

func TestGetConversation_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		peerID string
		setup  func(*fixture)
	}{
		{"unknown account", "nobody@example.com", "peer-1", nil},
		{"unknown peer", testAccount.Email, "peer-2", nil},
		{"no conversation yet", testAccount.Email, "peer-1", func(f *fixture) {
			f.conversations.getErr = domain.ErrConversationNotFound
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.svc.GetConversation(context.Background(), tt.email, tt.peerID)
			assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
		})
	}
}
