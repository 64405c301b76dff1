package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
)

func failingProcess(err error) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error { return err }
}

func TestBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(nil))
	for range 10 {
		require.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.Equal(t, gobreaker.StateClosed, hook.State())
	assert.Equal(t, uint32(10), hook.Counts().TotalSuccesses)
}

func TestBreakerHook_NilReplyIsNotAFailure(t *testing.T) {
	hook := NewBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(goredis.Nil))
	for range breakerConsecutiveFailures + 1 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, gobreaker.StateClosed, hook.State())
}

func TestBreakerHook_TransientFailuresKeepItClosed(t *testing.T) {
	hook := NewBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(errors.New("connection refused")))
	for range breakerConsecutiveFailures - 1 {
		assert.Error(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.Equal(t, gobreaker.StateClosed, hook.State())
}

func TestBreakerHook_OpensAndFailsFast(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewBreakerHook(m)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(errors.New("i/o timeout")))
	for range breakerConsecutiveFailures {
		_ = process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	}
	require.Equal(t, gobreaker.StateOpen, hook.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	called := false
	process = hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewStringCmd(ctx, "get", "key")
	err := process(ctx, cmd)

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, cmd.Err(), gobreaker.ErrOpenState)
	assert.False(t, called, "open breaker must not reach redis")
}

func TestBreakerHook_PipelineRejectedWhenOpen(t *testing.T) {
	hook := NewBreakerHook(nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error {
		return errors.New("broken pipe")
	})
	for range breakerConsecutiveFailures {
		_ = pipeline(ctx, nil)
	}

	cmds := []goredis.Cmder{goredis.NewStringCmd(ctx, "get", "a"), goredis.NewStatusCmd(ctx, "set", "b", "1")}
	err := pipeline(ctx, cmds)

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	for _, cmd := range cmds {
		assert.ErrorIs(t, cmd.Err(), gobreaker.ErrOpenState)
	}
}
