// Package textanalytics scores text with a Text Analytics style sentiment API
// (v2 document shape) and normalizes the result to [-1, 1].
package textanalytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
	"github.com/darthbatman/TypeSense/internal/domain"
	"github.com/darthbatman/TypeSense/internal/platform/retry"
)

const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	documentID            = "1"
	maxErrorBody          = 512
)

var (
	ErrInvalidResponse = errors.New("invalid sentiment response")
	ErrScoreOutOfRange = errors.New("sentiment score out of range")
)

type Config struct {
	Endpoint string
	APIKey   string
	Language string
	Timeout  time.Duration

	// Retry overrides the default retry policy when MaxAttempts > 0.
	Retry retry.Policy
	// BreakerTimeout is how long the breaker stays open. Defaults to 30s.
	BreakerTimeout time.Duration
	// BreakerFailures is the consecutive failures that open the breaker. Defaults to 5.
	BreakerFailures uint32
}

// Client implements domain.SentimentScorer against the remote service.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	policy  retry.Policy
	metrics *metrics.ScoringMetrics
}

var _ domain.SentimentScorer = (*Client)(nil)

func NewClient(cfg Config, m *metrics.ScoringMetrics) *Client {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}

	c.policy = cfg.Retry
	if c.policy.MaxAttempts <= 0 {
		c.policy = retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
			MaxBackoff:       2 * time.Second,
		}
	}
	c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Sentiment request failed, retrying", "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
		if c.metrics != nil {
			c.metrics.Retries.Inc()
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sentiment",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Rejections caused by the input, not the service, keep the breaker closed.
			return err == nil || errors.Is(err, ErrScoreOutOfRange) || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return c
}

// State exposes the breaker state for health checks.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// CheckBreaker reports an open breaker as an error. It never calls the
// service, so readiness probes do not spend quota.
func (c *Client) CheckBreaker(_ context.Context) error {
	if state := c.breaker.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("sentiment service circuit breaker is %s", state)
	}
	return nil
}

// Score returns the normalized sentiment of text. Blank text is neutral and
// never sent, since the service rejects empty documents.
func (c *Client) Score(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		c.observe("blank")
		return 0, nil
	}

	start := time.Now()
	v, err := c.breaker.Execute(func() (any, error) {
		return retry.Do(ctx, c.policy, classify, func() (float64, error) {
			return c.attempt(ctx, text)
		})
	})
	if c.metrics != nil {
		c.metrics.CallDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.observe("rejected")
		default:
			c.observe("error")
		}
		return 0, fmt.Errorf("sentiment request: %w", err)
	}

	c.observe("success")
	return Normalize(v.(float64)), nil
}

// Normalize maps a raw score in [0, 1] onto [-1, 1].
func Normalize(raw float64) float64 {
	return (raw - 0.5) * 2
}

type document struct {
	Language string `json:"language"`
	ID       string `json:"id"`
	Text     string `json:"text"`
}

type request struct {
	Documents []document `json:"documents"`
}

type response struct {
	Documents []struct {
		ID    string   `json:"id"`
		Score *float64 `json:"score"`
	} `json:"documents"`
	Errors []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"errors"`
}

// attempt performs one HTTP exchange and returns the raw score.
func (c *Client) attempt(ctx context.Context, text string) (float64, error) {
	body, err := json.Marshal(request{Documents: []document{{Language: c.cfg.Language, ID: documentID, Text: text}}})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(subscriptionKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return extractScore(decoded)
}

func extractScore(r response) (float64, error) {
	for _, e := range r.Errors {
		if e.ID == documentID {
			return 0, fmt.Errorf("%w: document rejected: %s", ErrInvalidResponse, e.Message)
		}
	}

	for _, d := range r.Documents {
		if d.ID != documentID {
			continue
		}
		if d.Score == nil {
			return 0, fmt.Errorf("%w: document has no score", ErrInvalidResponse)
		}
		if *d.Score < 0 || *d.Score > 1 {
			return 0, fmt.Errorf("%w: %g", ErrScoreOutOfRange, *d.Score)
		}
		return *d.Score, nil
	}

	return 0, fmt.Errorf("%w: document missing", ErrInvalidResponse)
}

func (c *Client) observe(result string) {
	if c.metrics != nil {
		c.metrics.Calls.WithLabelValues(result).Inc()
	}
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sentiment service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("sentiment service returned %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) RetryDelay() time.Duration { return e.RetryAfter }

func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrScoreOutOfRange) {
		return retry.Stop
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		// Transport failure.
		return retry.Retry
	}

	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case statusErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func isClientError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) &&
		statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
