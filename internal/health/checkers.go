package health

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/practicedesk/internal/session"
)

// StoreChecker verifies the session store answers reads.
type StoreChecker struct {
	store session.Store
}

// NewStoreChecker creates a StoreChecker.
func NewStoreChecker(store session.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name returns the checker name.
func (c *StoreChecker) Name() string {
	return "session-store"
}

// Check reads the access token key. Its presence is reported, never its value.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	_, ok, err := c.store.Get(ctx, session.KeyAccessToken)
	if err != nil {
		return Unhealthy("session store unavailable").WithDetail("error", err.Error())
	}
	return Healthy("session store reachable").WithDetail("signed_in", ok)
}

// UpstreamChecker verifies the practice platform answers HTTP requests.
type UpstreamChecker struct {
	url    string
	client *http.Client
}

// NewUpstreamChecker creates an UpstreamChecker probing url.
func NewUpstreamChecker(url string, client *http.Client) *UpstreamChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &UpstreamChecker{url: url, client: client}
}

// Name returns the checker name.
func (c *UpstreamChecker) Name() string {
	return "platform-api"
}

// Check issues a GET to the API root. Any response below 500 means the
// platform is up; authentication is not required.
func (c *UpstreamChecker) Check(ctx context.Context) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Unhealthy("invalid platform URL").WithDetail("error", err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Unhealthy("platform unreachable").WithDetail("error", err.Error())
	}
	defer resp.Body.Close()

	result := Healthy("platform reachable")
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		result = Degraded("platform is rate limiting")
	case resp.StatusCode >= 500:
		result = Degraded("platform returned a server error")
	}
	return result.WithDetail("status", resp.StatusCode)
}
