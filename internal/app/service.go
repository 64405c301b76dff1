package app

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
	"github.com/darthbatman/TypeSense/internal/domain"
)

// ImpactCalculator turns a message batch into per-message impact records.
type ImpactCalculator interface {
	Compute(ctx context.Context, messages []domain.Message) ([]domain.ImpactRecord, error)
}

// Service is the only component that references multiple domain components.
type Service struct {
	accounts      domain.AccountRepository
	connections   domain.ConnectionRepository
	conversations domain.ConversationRepository
	locker        domain.ConversationLocker
	calculator    ImpactCalculator
	clock         clockwork.Clock
	metrics       *metrics.ConversationMetrics
}

var _ domain.AppService = (*Service)(nil)

type Deps struct {
	Accounts      domain.AccountRepository
	Connections   domain.ConnectionRepository
	Conversations domain.ConversationRepository
	Locker        domain.ConversationLocker
	Calculator    ImpactCalculator
	Clock         clockwork.Clock
	// Metrics is optional.
	Metrics *metrics.ConversationMetrics
}

func NewService(d Deps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		accounts:      d.Accounts,
		connections:   d.Connections,
		conversations: d.Conversations,
		locker:        d.Locker,
		calculator:    d.Calculator,
		clock:         clock,
		metrics:       d.Metrics,
	}
}
