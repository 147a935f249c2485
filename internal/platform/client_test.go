package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/fakeapi"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/refresh"
	"github.com/felixgeelhaar/practicedesk/internal/session"
)

const staffEmail = "staff@clinic.example"

type harness struct {
	api        *fakeapi.API
	store      *session.MemoryStore
	client     *Client
	coord      *refresh.Coordinator
	metrics    *metrics.Metrics
	broadcasts atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:     fakeapi.New(),
		store:   session.NewMemoryStore(),
		metrics: metrics.Discard(),
	}
	srv := h.api.Start()
	t.Cleanup(srv.Close)

	signal := session.NewSignal()
	signal.Subscribe(func() { h.broadcasts.Add(1) })

	h.client = NewClient(srv.URL, h.store, WithLogger(log.Nop()), WithMetrics(h.metrics))
	h.coord = refresh.NewCoordinator(h.store, h.client, signal, refresh.WithLogger(log.Nop()), refresh.WithMetrics(h.metrics))
	h.client.SetRefresher(h.coord)
	return h
}

// seed stores a session for email whose access token has already expired.
func (h *harness) seedExpired(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	_, rt := h.api.IssueTokens(email)
	require.NoError(t, h.store.Set(ctx, session.KeyAccessToken, h.api.ExpiredAccessToken(email)))
	require.NoError(t, h.store.Set(ctx, session.KeyRefreshToken, rt))
	require.NoError(t, h.store.Set(ctx, session.KeyUser, `{"id":"usr_Sam"}`))
}

func (h *harness) seedValid(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	at, rt := h.api.IssueTokens(email)
	require.NoError(t, h.store.Set(ctx, session.KeyAccessToken, at))
	require.NoError(t, h.store.Set(ctx, session.KeyRefreshToken, rt))
}

func (h *harness) access(t *testing.T) string {
	t.Helper()
	v, _, err := h.store.Get(context.Background(), session.KeyAccessToken)
	require.NoError(t, err)
	return v
}

func TestDo_AttachesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.KeyAccessToken, "tok-1"))
	client := NewClient(srv.URL+"/", store, WithLogger(log.Nop()))

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/things", map[string]int{"n": 1}, &out))

	assert.True(t, out.OK)
	assert.Equal(t, "Bearer tok-1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get(HeaderRequestID))
	assert.Contains(t, got.Get("User-Agent"), "practicedesk/")
}

func TestDo_WithoutTokenSendsNoAuthorization(t *testing.T) {
	var auth string
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, session.NewMemoryStore(), WithLogger(log.Nop()))
	ctx := WithRequestID(context.Background(), "req-123")
	require.NoError(t, client.Do(ctx, http.MethodGet, "/ping", nil, nil))

	assert.Empty(t, auth)
	assert.False(t, sawAuth)
}

func TestDo_ReusesRequestIDFromContext(t *testing.T) {
	var id string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = r.Header.Get(HeaderRequestID)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, session.NewMemoryStore(), WithLogger(log.Nop()))
	require.NoError(t, client.Do(WithRequestID(context.Background(), "req-123"), http.MethodGet, "/ping", nil, nil))
	assert.Equal(t, "req-123", id)
}

func TestScenario_ConcurrentExpiredCallsShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.seedExpired(t, staffEmail)
	release := h.api.HoldRefresh()

	const n = 3
	pages := make([]*Page[Patient], n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var err error
			pages[i], err = h.client.ListPatients(context.Background(), ListOptions{})
			return err
		})
	}

	require.Eventually(t, func() bool {
		return h.api.RefreshCalls() == 1 && h.coord.Pending() == n-1
	}, 3*time.Second, time.Millisecond)
	release()
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, h.api.RefreshCalls(), "exactly one refresh exchange")
	fresh := h.access(t)
	for i := 0; i < n; i++ {
		require.NotNil(t, pages[i])
		assert.Equal(t, 3, pages[i].Total)
	}

	seen := h.api.TokensSeen("/patients")
	require.Len(t, seen, 2*n, "each call tried once with the stale token and once with the fresh one")
	retries := 0
	for _, tok := range seen {
		if tok == fresh {
			retries++
		}
	}
	assert.Equal(t, n, retries, "every retry carried the same new token")
	assert.Equal(t, int32(0), h.broadcasts.Load())
	assert.Equal(t, float64(n), testutil.ToFloat64(h.metrics.Retries.WithLabelValues("success")))
}

func TestSingleFlightUnderLoad(t *testing.T) {
	h := newHarness(t)
	h.seedExpired(t, staffEmail)
	release := h.api.HoldRefresh()

	const n = 25
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := h.client.ListProviders(context.Background(), ListOptions{Limit: 5})
			return err
		})
	}

	require.Eventually(t, func() bool {
		return h.api.RefreshCalls() == 1 && h.coord.Pending() == n-1
	}, 3*time.Second, time.Millisecond)
	release()

	require.NoError(t, g.Wait())
	assert.Equal(t, 1, h.api.RefreshCalls())
}

func TestScenario_RejectedRefreshFailsEveryone(t *testing.T) {
	h := newHarness(t)
	h.seedExpired(t, staffEmail)
	h.api.RejectRefresh(true)
	release := h.api.HoldRefresh()

	const n = 4
	errs := make([]error, n)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, errs[i] = h.client.ListAppointments(context.Background(), ListOptions{})
				return nil
			})
		}
		_ = g.Wait()
	}()

	require.Eventually(t, func() bool {
		return h.api.RefreshCalls() == 1 && h.coord.Pending() == n-1
	}, 3*time.Second, time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queued callers hung after a failed refresh")
	}

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.IsTerminal(err))
		assert.Contains(t, err.Error(), "invalid token")
	}
	assert.Equal(t, 0, h.store.Len(), "store holds no tokens")
	assert.Equal(t, int32(1), h.broadcasts.Load(), "logout broadcast exactly once")
}

func TestNoDoubleRetry(t *testing.T) {
	h := newHarness(t)
	h.seedValid(t, staffEmail)
	h.api.AlwaysUnauthorized("/invoices", true)

	_, err := h.client.ListInvoices(context.Background(), ListOptions{})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAccessTokenRejected))
	assert.Equal(t, http.StatusUnauthorized, errors.StatusOf(err))
	assert.Equal(t, 1, h.api.RefreshCalls(), "one refresh, no second retry")
	assert.Len(t, h.api.TokensSeen("/invoices"), 2)
	assert.Equal(t, int32(0), h.broadcasts.Load())
}

func TestScenario_WrongPasswordIsNotSessionExpiry(t *testing.T) {
	h := newHarness(t)
	h.seedValid(t, staffEmail)
	before := h.access(t)

	_, err := h.client.Login(context.Background(), staffEmail, "wrong")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
	assert.False(t, errors.IsTerminal(err))
	de, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid email or password", de.Payload["error"].(map[string]any)["message"])

	assert.Equal(t, 0, h.api.RefreshCalls())
	assert.Equal(t, before, h.access(t), "store untouched")
	assert.Equal(t, int32(0), h.broadcasts.Load())
}

func TestPublicPathsBypassRefresh(t *testing.T) {
	h := newHarness(t)
	h.seedExpired(t, staffEmail)
	ctx := context.Background()

	_, err := h.client.VerifyRegistration(ctx, "nobody@clinic.example", "000000")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))

	_, err = h.client.VerifyResetCode(ctx, staffEmail, "000000")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))

	_, err = h.client.SetupPassword(ctx, SetupPasswordRequest{Token: "bogus", Password: "x"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))

	assert.Equal(t, 0, h.api.RefreshCalls())
	assert.Equal(t, 3, h.store.Len())
	assert.Equal(t, int32(0), h.broadcasts.Load())
}

func TestRateLimitIsolation(t *testing.T) {
	for _, path := range []string{"/patients", "/auth/login"} {
		t.Run(path, func(t *testing.T) {
			h := newHarness(t)
			h.seedExpired(t, staffEmail)
			h.api.RateLimit(path, true)

			var err error
			if path == "/auth/login" {
				_, err = h.client.Login(context.Background(), staffEmail, "staff-pass")
			} else {
				_, err = h.client.ListPatients(context.Background(), ListOptions{})
			}

			require.Error(t, err)
			assert.True(t, errors.IsRateLimited(err))
			de, _ := errors.As(err)
			assert.Equal(t, 2*time.Second, de.RetryAfter)
			assert.Equal(t, http.StatusTooManyRequests, de.Status)

			assert.Equal(t, 0, h.api.RefreshCalls())
			assert.Equal(t, 3, h.store.Len(), "session kept")
			assert.Equal(t, int32(0), h.broadcasts.Load())
			assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RateLimited.WithLabelValues(http.MethodGet))+
				testutil.ToFloat64(h.metrics.RateLimited.WithLabelValues(http.MethodPost)))
		})
	}
}

func TestScenario_UndecodableTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), session.KeyAccessToken, "abc"))

	_, err := h.client.ListPatients(context.Background(), ListOptions{})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoRefreshToken))
	assert.Equal(t, 0, h.api.RefreshCalls())
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, int32(1), h.broadcasts.Load())
}

func TestWithoutRefresherSurfaces401(t *testing.T) {
	api := fakeapi.New()
	srv := api.Start()
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.KeyAccessToken, api.ExpiredAccessToken(staffEmail)))
	client := NewClient(srv.URL, store, WithLogger(log.Nop()))

	_, err := client.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAccessTokenRejected))
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(srv.URL, session.NewMemoryStore(), WithLogger(log.Nop()), WithTimeout(time.Second))
	_, err := client.Profile(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsNetwork(err))
}

func TestOtherStatusesAreRequestFailures(t *testing.T) {
	h := newHarness(t)
	h.seedValid(t, staffEmail)

	_, err := h.client.GetPatient(context.Background(), "pat_404")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRequestFailed))
	assert.Equal(t, http.StatusNotFound, errors.StatusOf(err))

	_, err = h.client.ListUsers(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errors.StatusOf(err))
	assert.Equal(t, 0, h.api.RefreshCalls())
}

func TestForward(t *testing.T) {
	h := newHarness(t)
	h.seedExpired(t, staffEmail)

	resp, err := h.client.Forward(context.Background(), http.MethodGet, "/patients", url.Values{"search": {"li"}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.api.RefreshCalls())

	var body struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, 1, body.Data.Total)

	resp, err = h.client.Forward(context.Background(), http.MethodGet, "/patients/missing", nil, nil, nil)
	require.NoError(t, err, "upstream errors are relayed, not returned")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDecodeEnvelope(t *testing.T) {
	type item struct {
		Name string `json:"name"`
	}

	var a item
	require.NoError(t, decodeEnvelope([]byte(`{"data":{"name":"wrapped"}}`), &a))
	assert.Equal(t, "wrapped", a.Name)

	var b item
	require.NoError(t, decodeEnvelope([]byte(`{"name":"bare"}`), &b))
	assert.Equal(t, "bare", b.Name)

	var c []item
	require.NoError(t, decodeEnvelope([]byte(`[{"name":"x"}]`), &c))
	assert.Len(t, c, 1)

	require.NoError(t, decodeEnvelope(nil, &a))
	require.NoError(t, decodeEnvelope([]byte(`{"data":1}`), nil))

	err := decodeEnvelope([]byte(`{"data":"not an object"}`), &a)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), retryAfter(h))

	h.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, retryAfter(h))

	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.InDelta(t, time.Hour.Seconds(), retryAfter(h).Seconds(), 5)

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), retryAfter(h))
}

func TestIsPublicPath(t *testing.T) {
	c := NewClient("http://x", session.NewMemoryStore(), WithLogger(log.Nop()))
	assert.True(t, c.IsPublicPath("/auth/login"))
	assert.True(t, c.IsPublicPath("/auth/register/verify?x=1"))
	assert.False(t, c.IsPublicPath("/auth/profile"))
	assert.False(t, c.IsPublicPath("/auth/refresh-token"))

	custom := NewClient("http://x", session.NewMemoryStore(), WithLogger(log.Nop()), WithPublicPaths("/open"))
	assert.True(t, custom.IsPublicPath("/open"))
	assert.False(t, custom.IsPublicPath("/auth/login"))
}
