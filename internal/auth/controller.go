// Package auth owns the client's session lifecycle: the in-memory mirror of
// who is signed in, and the operations that change it.
package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/token"
)

// API is the subset of the platform client the controller calls.
type API interface {
	Login(ctx context.Context, email, password string) (*platform.TokenPair, error)
	Profile(ctx context.Context) (*platform.UserProfile, error)
	EditProfile(ctx context.Context, update platform.ProfileUpdate) (*platform.UserProfile, error)
	Logout(ctx context.Context, refreshToken string) error
	Register(ctx context.Context, req platform.RegisterRequest) (*platform.FlowResponse, error)
	VerifyRegistration(ctx context.Context, email, code string) (*platform.TokenPair, error)
	ForgotPassword(ctx context.Context, email string) (*platform.FlowResponse, error)
	VerifyResetCode(ctx context.Context, email, code string) (*platform.FlowResponse, error)
	ResetPassword(ctx context.Context, req platform.ResetPasswordRequest) (*platform.FlowResponse, error)
	SetupPassword(ctx context.Context, req platform.SetupPasswordRequest) (*platform.FlowResponse, error)
}

// Refresher runs a refresh exchange. Manual refreshes go through the same
// Refresher as the gateway's automatic ones, so the two never overlap.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// manualCall is an in-flight ManualRefresh that later callers join.
type manualCall struct {
	done    chan struct{}
	err     error
	waiters int
}

type listener struct {
	id uint64
	fn func(State)
}

// Controller is the seam between user-facing code and the token machinery.
type Controller struct {
	api       API
	refresher Refresher
	store     session.Store
	logger    *log.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu        sync.Mutex
	state     State
	nextID    uint64
	listeners []listener
	// generation moves on every time a session ends, so work started
	// against an earlier session can tell it is stale.
	generation uint64

	manualMu sync.Mutex
	manual   *manualCall

	unsubscribe func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock overrides the clock used for local token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller in the initializing phase. When signal is not nil
// the controller turns anonymous whenever it broadcasts.
func New(api API, refresher Refresher, store session.Store, signal *session.Signal, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		refresher: refresher,
		store:     store,
		now:       time.Now,
		state:     State{Loading: true},
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
	c.logger = c.logger.Named("session")

	if signal != nil {
		c.unsubscribe = signal.Subscribe(c.sessionEnded)
	}
	return c
}

// Close detaches the controller from the logout signal.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive every state change, in order. The
// returned function removes it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Start restores the session from the store.
//
// Transient failures (rate limit, network) are returned so callers can tell
// them apart from a signed-out user. A rate-limited profile fetch leaves the
// state and the stored tokens as they were.
func (c *Controller) Start(ctx context.Context) error {
	gen := c.currentGeneration()
	c.update(func(s *State) { s.Loading = true })

	access, ok, err := c.store.Get(ctx, session.KeyAccessToken)
	if err != nil {
		c.setState(State{})
		return err
	}
	if !ok || access == "" {
		c.setState(State{})
		return nil
	}

	user, err := c.api.Profile(ctx)
	switch {
	case err == nil:
		c.authenticated(ctx, gen, user)
		return nil
	case errors.IsRateLimited(err):
		c.logger.Warn("profile fetch rate limited, keeping session")
		c.update(func(s *State) { s.Loading = false })
		return err
	case errors.IsNetwork(err):
		c.logger.WithError(err).Warn("profile fetch failed")
		c.setState(State{})
		return err
	default:
		c.logger.WithError(err).Debug("stored session not usable")
		c.setState(State{})
		return nil
	}
}

// Login signs in with email and password. On failure the state is left
// alone and the returned *AuthError carries a displayable message.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	pair, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.logger.WithError(err).Info("login failed", "email", log.RedactEmail(email))
		return NewAuthError(err)
	}
	if err := c.establish(ctx, pair); err != nil {
		return err
	}
	c.logger.Info("logged in", "email", log.RedactEmail(email))
	return nil
}

// establish persists pair and loads the profile it belongs to.
func (c *Controller) establish(ctx context.Context, pair *platform.TokenPair) error {
	gen := c.currentGeneration()
	if err := c.store.Set(ctx, session.KeyAccessToken, pair.AccessToken); err != nil {
		return NewAuthError(err)
	}
	if err := c.store.Set(ctx, session.KeyRefreshToken, pair.RefreshToken); err != nil {
		return NewAuthError(err)
	}

	user, err := c.api.Profile(ctx)
	if err != nil {
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.LogError("failed to clear session", clearErr)
		}
		c.setState(State{})
		return NewAuthError(err)
	}

	if !c.authenticated(ctx, gen, user) {
		return sessionEndedError()
	}
	return nil
}

// Logout ends the session. The server is told best-effort; local teardown
// always happens. Logging out while anonymous is a no-op.
func (c *Controller) Logout(ctx context.Context) error {
	refreshToken, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		c.logger.LogError("failed to read refresh token", err)
	}
	if ok && refreshToken != "" {
		if err := c.api.Logout(ctx, refreshToken); err != nil {
			c.logger.WithError(err).Warn("logout request failed, clearing session anyway")
		}
	}
	return c.teardown(ctx)
}

func (c *Controller) teardown(ctx context.Context) error {
	c.endGeneration()
	err := c.store.Clear(ctx)
	c.setState(State{})
	return err
}

// sessionEnded handles the logout broadcast. The store is already empty.
func (c *Controller) sessionEnded() {
	c.logger.Info("session ended")
	c.endGeneration()
	c.setState(State{})
}

// ManualRefresh mints a new access token on request.
//
// A call made while another manual refresh is running does not start a
// second one; it waits for the running call and returns its result.
// A missing or locally expired refresh token ends the session without a
// network call and returns an AuthError coded AUTH-002.
func (c *Controller) ManualRefresh(ctx context.Context) error {
	c.manualMu.Lock()
	if call := c.manual; call != nil {
		call.waiters++
		c.manualMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &manualCall{done: make(chan struct{})}
	c.manual = call
	c.manualMu.Unlock()

	call.err = c.manualRefresh(ctx)

	c.manualMu.Lock()
	c.manual = nil
	c.manualMu.Unlock()
	close(call.done)
	return call.err
}

func (c *Controller) manualRefresh(ctx context.Context) error {
	refreshToken, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		return NewAuthError(err)
	}
	if !ok || token.IsExpired(refreshToken, c.now()) {
		c.logger.Info("refresh token missing or expired, logging out")
		if err := c.teardown(ctx); err != nil {
			c.logger.LogError("failed to clear session", err)
		}
		return &AuthError{
			Code:    errors.ErrCodeSessionExpired,
			Message: MessageSessionExpired,
			Cause:   errors.NewSessionExpiredError(errors.NewNoRefreshTokenError()),
		}
	}

	if _, err := c.refresher.Refresh(ctx); err != nil {
		return NewAuthError(err)
	}
	return nil
}

// UpdateProfile re-fetches the profile and replaces the user snapshot.
func (c *Controller) UpdateProfile(ctx context.Context) error {
	gen := c.currentGeneration()
	user, err := c.api.Profile(ctx)
	if err != nil {
		return NewAuthError(err)
	}
	if !c.authenticated(ctx, gen, user) {
		return sessionEndedError()
	}
	return nil
}

// EditProfile saves update and replaces the user snapshot with the result.
func (c *Controller) EditProfile(ctx context.Context, update platform.ProfileUpdate) error {
	gen := c.currentGeneration()
	user, err := c.api.EditProfile(ctx, update)
	if err != nil {
		return NewAuthError(err)
	}
	if !c.authenticated(ctx, gen, user) {
		return sessionEndedError()
	}
	return nil
}

// CachedUser returns the profile blob stored with the session, if any.
func (c *Controller) CachedUser(ctx context.Context) (*platform.UserProfile, bool) {
	blob, ok, err := c.store.Get(ctx, session.KeyUser)
	if err != nil || !ok {
		return nil, false
	}
	var user platform.UserProfile
	if err := json.Unmarshal([]byte(blob), &user); err != nil {
		return nil, false
	}
	return &user, true
}

// authenticated installs user as the signed-in profile and caches it in the
// store, unless the session ended since gen was taken or the store no longer
// holds an access token. It reports whether the profile was applied.
func (c *Controller) authenticated(ctx context.Context, gen uint64, user *platform.UserProfile) bool {
	if _, ok, err := c.store.Get(ctx, session.KeyAccessToken); err == nil && !ok {
		c.logger.Debug("session cleared while loading the profile")
		c.commit(State{}, gen)
		return false
	}
	if !c.commit(State{User: user, IsAuthenticated: true}, gen) {
		c.logger.Debug("session ended while loading the profile")
		return false
	}

	if blob, err := json.Marshal(user); err == nil {
		if err := c.store.Set(ctx, session.KeyUser, string(blob)); err != nil {
			c.logger.LogError("failed to cache profile", err)
		}
	}
	// A logout may have cleared the store while the blob was written.
	if c.currentGeneration() != gen {
		_ = c.store.Remove(ctx, session.KeyUser)
	}
	return true
}

func sessionEndedError() *AuthError {
	return &AuthError{
		Code:    errors.ErrCodeSessionExpired,
		Message: MessageSessionExpired,
		Cause:   errors.New(errors.ErrCodeSessionExpired, "session ended while loading the profile"),
	}
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) endGeneration() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	next := c.state
	c.mu.Unlock()
	fn(&next)
	c.setState(next)
}

// setState installs next and notifies listeners when anything changed.
func (c *Controller) setState(next State) {
	c.install(next, nil)
}

// commit is setState for work started in generation gen; it does nothing
// and returns false when a session has ended since.
func (c *Controller) commit(next State, gen uint64) bool {
	return c.install(next, &gen)
}

func (c *Controller) install(next State, gen *uint64) bool {
	c.mu.Lock()
	if gen != nil && *gen != c.generation {
		c.mu.Unlock()
		return false
	}
	prev := c.state
	if prev.equal(next) {
		c.mu.Unlock()
		return true
	}
	c.state = next
	listeners := make([]listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if prev.Phase() != next.Phase() {
		c.metrics.SessionTransitions.WithLabelValues(string(next.Phase())).Inc()
		c.logger.Debug("session transition", "from", prev.Phase(), "to", next.Phase())
	}
	for _, l := range listeners {
		l.fn(next)
	}
	return true
}
