package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/darthbatman/TypeSense/internal/domain"
	apperrors "github.com/darthbatman/TypeSense/internal/platform/errors"
	"github.com/darthbatman/TypeSense/internal/sentiment"
)

// ChangeConversation scores the messages of req that the conversation has not
// seen yet, merges them into the stored history and persists the result.
//
// The read-modify-write runs under the conversation lock. A scoring failure
// aborts before anything is written.
func (s *Service) ChangeConversation(ctx context.Context, req domain.ChangeConversationRequest) (domain.ConversationState, error) {
	start := s.clock.Now()
	state, result, err := s.changeConversation(ctx, req)
	if s.metrics != nil {
		s.metrics.Merges.WithLabelValues(result).Inc()
		s.metrics.MergeDuration.Observe(s.clock.Since(start).Seconds())
	}
	return state, err
}

func (s *Service) changeConversation(ctx context.Context, req domain.ChangeConversationRequest) (domain.ConversationState, string, error) {
	if err := validateChange(req); err != nil {
		return domain.ConversationState{}, "invalid", err
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.ConversationState{}, "not_found", apperrors.NotFoundError("account not found").WithField("email", req.Email)
	}
	if err != nil {
		return domain.ConversationState{}, "persistence_error", apperrors.PersistenceError("failed to load account", err)
	}

	conn, err := s.connections.GetOrCreate(ctx, req.PeerID)
	if err != nil {
		return domain.ConversationState{}, "persistence_error", apperrors.PersistenceError("failed to load connection", err)
	}

	conv, err := s.conversations.GetOrCreate(ctx, account.ID, conn.ID)
	if err != nil {
		return domain.ConversationState{}, "persistence_error", apperrors.PersistenceError("failed to load conversation", err)
	}

	lockStart := s.clock.Now()
	unlock, err := s.locker.Lock(ctx, conv.ID)
	if err != nil {
		return domain.ConversationState{}, "lock_timeout", apperrors.PersistenceError("conversation is busy, retry later", err).
			WithField("conversation_id", conv.ID.String())
	}
	defer unlock()
	if s.metrics != nil {
		s.metrics.LockWaitDuration.Observe(s.clock.Since(lockStart).Seconds())
	}

	// Reload: another holder may have merged since GetOrCreate.
	conv, err = s.conversations.Get(ctx, account.ID, conn.ID)
	if err != nil {
		return domain.ConversationState{}, "persistence_error", apperrors.PersistenceError("failed to reload conversation", err)
	}

	// Anything older than the newest MaxRecords would be evicted by this
	// merge anyway; scoring it would re-append it on every retry.
	unseen := sentiment.Unseen(conv.State, newestMessages(req.Messages))
	skipped := len(req.Messages) - len(unseen)
	if len(unseen) == 0 {
		s.observeMerge(sentiment.MergeStats{Skipped: skipped})
		return conv.State, "noop", nil
	}

	records, err := s.calculator.Compute(ctx, unseen)
	if err != nil {
		slog.WarnContext(ctx, "Scoring failed, conversation left unchanged", "conversation_id", conv.ID, "messages", len(unseen), "error", err)
		return domain.ConversationState{}, "scoring_error", apperrors.ScoringError("sentiment scoring failed", err).
			WithField("conversation_id", conv.ID.String())
	}

	merged, stats := sentiment.MergeWithStats(conv.State, records)
	stats.Skipped += skipped

	if _, err := s.conversations.SaveState(ctx, conv.ID, merged, conv.Version); err != nil {
		result := "persistence_error"
		if errors.Is(err, domain.ErrConversationConflict) {
			result = "conflict"
		}
		return domain.ConversationState{}, result, apperrors.PersistenceError("failed to save conversation", err).
			WithField("conversation_id", conv.ID.String())
	}

	s.observeMerge(stats)
	slog.InfoContext(ctx, "Conversation merged",
		"conversation_id", conv.ID,
		"appended", stats.Appended,
		"skipped", stats.Skipped,
		"evicted", stats.Evicted,
		"records", len(merged.Records),
	)
	return merged, "success", nil
}

func newestMessages(msgs []domain.Message) []domain.Message {
	if len(msgs) <= domain.MaxRecords {
		return msgs
	}
	return msgs[len(msgs)-domain.MaxRecords:]
}

// GetConversation returns the stored history without scoring anything.
func (s *Service) GetConversation(ctx context.Context, email, peerID string) (domain.ConversationState, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.ConversationState{}, apperrors.NotFoundError("account not found").WithField("email", email)
	}
	if err != nil {
		return domain.ConversationState{}, apperrors.PersistenceError("failed to load account", err)
	}

	conn, err := s.connections.GetByPeerID(ctx, peerID)
	if errors.Is(err, domain.ErrConnectionNotFound) {
		return domain.ConversationState{}, apperrors.NotFoundError("conversation not found").WithField("fb_id", peerID)
	}
	if err != nil {
		return domain.ConversationState{}, apperrors.PersistenceError("failed to load connection", err)
	}

	conv, err := s.conversations.Get(ctx, account.ID, conn.ID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		return domain.ConversationState{}, apperrors.NotFoundError("conversation not found").WithField("fb_id", peerID)
	}
	if err != nil {
		return domain.ConversationState{}, apperrors.PersistenceError("failed to load conversation", err)
	}

	return conv.State, nil
}

func validateChange(req domain.ChangeConversationRequest) error {
	switch {
	case req.Email == "":
		return apperrors.ValidationError("email is required").WithField("field", "email")
	case req.PeerID == "":
		return apperrors.ValidationError("fb_id is required").WithField("field", "fb_id")
	case req.Messages == nil:
		return apperrors.ValidationError("messages is required").WithField("field", "messages")
	}
	return nil
}

func (s *Service) observeMerge(stats sentiment.MergeStats) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordsAppended.Add(float64(stats.Appended))
	s.metrics.RecordsSkipped.Add(float64(stats.Skipped))
	s.metrics.RecordsEvicted.Add(float64(stats.Evicted))
}
