// Package refresh serializes refresh-token exchanges so that any number of
// callers holding a rejected access token share a single exchange.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/telemetry"
)

// Exchanger trades a refresh token for a new access token.
// Implementations must not route the call through the refresh logic itself.
type Exchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Broadcaster announces that the session has ended.
type Broadcaster interface {
	Broadcast()
}

// outcome is delivered exactly once to every participant of a refresh.
type outcome struct {
	token string
	err   error
}

// errSessionChanged is returned when the stored session was cleared or
// replaced while the exchange was in flight. The new token belongs to a
// session that no longer exists and is not persisted.
var errSessionChanged = errors.New(errors.ErrCodeSessionExpired, "session ended during refresh").
	WithSuggestion("Run 'practicedesk auth login' to sign in again")

// Coordinator runs at most one refresh exchange at a time. Callers arriving
// while an exchange is in flight wait for its outcome instead of starting
// their own.
type Coordinator struct {
	store     session.Store
	exchanger Exchanger
	signal    Broadcaster
	logger    *log.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	refreshing bool
	queue      []chan outcome
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a Coordinator. signal may be nil when nobody needs
// to hear about terminal failures.
func NewCoordinator(store session.Store, exchanger Exchanger, signal Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		signal:    signal,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.DefaultLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.Discard()
	}
	c.logger = c.logger.Named("refresh")
	return c
}

// Refresh obtains a fresh access token.
//
// If no exchange is in flight the caller becomes the leader and performs it;
// otherwise it waits for the in-flight exchange and receives the same result.
// On failure every participant receives the same terminal error, the store is
// cleared and a logout is broadcast once. A rate-limited exchange is the one
// exception: participants get the rate-limit error and the session is kept.
//
// If the session is cleared or replaced during the exchange (a concurrent
// logout or login) the new token is discarded and participants get an
// AUTH-002 error; the store is left alone and nothing is broadcast.
//
// A waiting caller whose ctx ends stops waiting and gets ctx.Err(); the
// exchange itself is not cancelled by any caller's context.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan outcome, 1)
		c.queue = append(c.queue, ch)
		c.mu.Unlock()

		select {
		case out := <-ch:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.exchange(context.WithoutCancel(ctx))
	superseded := err == errSessionChanged
	terminal := err != nil && !superseded && !errors.IsRateLimited(err)
	if terminal {
		err = errors.NewSessionExpiredError(err)
	}

	waiters := c.settle(outcome{token: token, err: err}, terminal)
	c.metrics.QueuedWaiters.Observe(float64(waiters))

	switch {
	case superseded:
		c.metrics.Refreshes.WithLabelValues("superseded").Inc()
		c.logger.Info("session changed during refresh, token discarded", "waiters", waiters)
		return "", err
	case terminal:
		c.metrics.Refreshes.WithLabelValues("failure").Inc()
		c.logger.WithError(err).Warn("refresh failed, ending session", "waiters", waiters)
		return "", err
	case err != nil:
		c.metrics.Refreshes.WithLabelValues("rate_limited").Inc()
		c.logger.WithError(err).Warn("refresh rate limited, session kept", "waiters", waiters)
		return "", err
	}

	c.metrics.Refreshes.WithLabelValues("success").Inc()
	c.logger.Debug("refresh succeeded", "waiters", waiters)
	return token, nil
}

// exchange reads the refresh token fresh from the store, trades it and
// persists the new access token. On a terminal failure it clears the store before
// anybody is told about it.
func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartRefreshSpan(ctx)
	defer span.End()

	start := time.Now()
	token, err := c.tryExchange(ctx)
	c.metrics.RefreshDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordError(span, err)
		if err == errSessionChanged || errors.IsRateLimited(err) {
			return "", err
		}
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.LogError("failed to clear session after refresh failure", clearErr)
		}
		return "", err
	}

	telemetry.RecordSuccess(span)
	return token, nil
}

func (c *Coordinator) tryExchange(ctx context.Context) (string, error) {
	refreshToken, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		return "", err
	}
	if !ok || refreshToken == "" {
		return "", errors.NewNoRefreshTokenError()
	}

	token, err := c.exchanger.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New(errors.ErrCodeMalformedResponse, "refresh response did not include an access token")
	}

	if !c.holds(ctx, refreshToken) {
		return "", errSessionChanged
	}
	if err := c.store.Set(ctx, session.KeyAccessToken, token); err != nil {
		return "", err
	}
	// A logout may land between the check and the write.
	if !c.holds(ctx, refreshToken) {
		c.discard(ctx, token)
		return "", errSessionChanged
	}
	return token, nil
}

// holds reports whether the store still carries refreshToken.
func (c *Coordinator) holds(ctx context.Context, refreshToken string) bool {
	current, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	return err == nil && ok && current == refreshToken
}

// discard removes token from the store unless something else replaced it.
func (c *Coordinator) discard(ctx context.Context, token string) {
	current, ok, err := c.store.Get(ctx, session.KeyAccessToken)
	if err != nil || !ok || current != token {
		return
	}
	if err := c.store.Remove(ctx, session.KeyAccessToken); err != nil {
		c.logger.LogError("failed to discard access token", err)
	}
}

// settle delivers out to every queued caller in arrival order and resets the
// gate. It returns how many callers were waiting.
//
// Unless the failure is terminal the gate opens before delivery, so a caller
// arriving later starts a new exchange instead of receiving a token minted
// before it asked. After a terminal failure the gate stays closed until the
// logout has been broadcast; callers arriving in between share the failure.
func (c *Coordinator) settle(out outcome, terminal bool) int {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	if !terminal {
		c.refreshing = false
	}
	c.mu.Unlock()

	deliver(queue, out)
	if !terminal {
		return len(queue)
	}

	if c.signal != nil {
		c.metrics.LogoutBroadcasts.Inc()
		c.signal.Broadcast()
	}

	c.mu.Lock()
	late := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	deliver(late, out)
	return len(queue) + len(late)
}

func deliver(queue []chan outcome, out outcome) {
	for _, ch := range queue {
		ch <- out
	}
}

// Refreshing reports whether an exchange is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of callers waiting on the in-flight exchange.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
