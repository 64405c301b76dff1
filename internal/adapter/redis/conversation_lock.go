package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/darthbatman/TypeSense/internal/domain"
)

const (
	lockPollInitial = 10 * time.Millisecond
	lockPollMax     = 250 * time.Millisecond
	releaseTimeout  = 2 * time.Second
)

// releaseLockScript deletes the lock only if this holder still owns it.
// KEYS: [1]=lock key. ARGV: [1]=holder token.
var releaseLockScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// ConversationLock is a per-conversation mutex held in Redis with SET NX PX.
// The TTL bounds how long a crashed holder can block others.
type ConversationLock struct {
	rdb   goredis.Cmdable
	ttl   time.Duration
	wait  time.Duration
	clock clockwork.Clock
}

var _ domain.ConversationLocker = (*ConversationLock)(nil)

func NewConversationLock(rdb goredis.Cmdable, ttl, wait time.Duration, clock clockwork.Clock) *ConversationLock {
	return &ConversationLock{rdb: rdb, ttl: ttl, wait: wait, clock: clock}
}

// Lock blocks until the lock is held, the wait budget is spent or ctx ends.
// The returned unlock is safe to call once the lock has expired.
func (l *ConversationLock) Lock(ctx context.Context, conversationID uuid.UUID) (func(), error) {
	key := lockKey(conversationID)
	token := uuid.NewString()
	deadline := l.clock.Now().Add(l.wait)
	backoff := lockPollInitial

	for {
		acquired, err := l.tryAcquire(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() { l.release(key, token) }, nil
		}

		if !l.clock.Now().Add(backoff).Before(deadline) {
			return nil, fmt.Errorf("%w: %s held for longer than %s", domain.ErrLockNotAcquired, conversationID, l.wait)
		}

		select {
		case <-l.clock.After(backoff):
			backoff = min(backoff*2, lockPollMax)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrLockNotAcquired, ctx.Err())
		}
	}
}

func (l *ConversationLock) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	args := goredis.SetArgs{TTL: l.ttl, Mode: "NX"}
	_, err := l.rdb.SetArgs(ctx, key, token, args).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire conversation lock: %w", err)
	}
	return true, nil
}

func (l *ConversationLock) release(key, token string) {
	// Detached so a cancelled request still releases its lock.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := releaseLockScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		slog.Warn("Failed to release conversation lock", "key", key, "error", err)
	}
}

func lockKey(conversationID uuid.UUID) string {
	return "conversation_lock:" + conversationID.String()
}
