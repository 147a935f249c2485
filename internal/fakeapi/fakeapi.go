// Package fakeapi is an in-process stand-in for the practice platform API,
// used by tests. It issues real signed JWTs with controllable lifetimes and
// lets tests reject refreshes, force rate limits, and hold a refresh open.
package fakeapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Well-known codes accepted by the verification endpoints.
const (
	RegistrationCode = "123456"
	ResetCode        = "654321"
)

// Role mirrors the platform's role payload.
type Role struct {
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

// Account is a user known to the fake backend.
type Account struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Roles     []Role `json:"roles"`
	Active    bool   `json:"active"`

	password string
}

// API is the fake backend. The zero value is not usable; call New.
type API struct {
	secret []byte
	router chi.Router

	mu            sync.Mutex
	accessTTL     time.Duration
	refreshTTL    time.Duration
	accounts      map[string]*Account
	pending       map[string]*Account
	resetCodes    map[string]string
	invites       map[string]string
	revoked       map[string]bool
	rejectRefresh bool
	rateLimited   map[string]bool
	unauthorized  map[string]bool
	refreshGate   chan struct{}
	refreshCalls  int
	logoutCalls   int
	tokensSeen    map[string][]string
}

// New creates a fake backend with one admin and one staff account.
func New() *API {
	a := &API{
		secret:       []byte("fakeapi-secret"),
		accessTTL:    15 * time.Minute,
		refreshTTL:   24 * time.Hour,
		accounts:     map[string]*Account{},
		pending:      map[string]*Account{},
		resetCodes:   map[string]string{},
		invites:      map[string]string{},
		revoked:      map[string]bool{},
		rateLimited:  map[string]bool{},
		unauthorized: map[string]bool{},
		tokensSeen:   map[string][]string{},
	}

	a.Seed("admin@clinic.example", "admin-pass", "Ada", "Admin", Role{
		Name:        "admin",
		Permissions: map[string]bool{"users:read": true, "patients:read": true},
	})
	a.Seed("staff@clinic.example", "staff-pass", "Sam", "Staff", Role{
		Name:        "receptionist",
		Permissions: map[string]bool{"patients:read": true},
	})

	a.router = a.routes()
	return a
}

// Start serves the API on a local listener. Close the returned server when done.
func (a *API) Start() *httptest.Server {
	return httptest.NewServer(a)
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.limiter)
	r.Use(a.forcedUnauthorized)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/refresh-token", a.handleRefresh)
		r.Post("/logout", a.handleLogout)
		r.Post("/register", a.handleRegister)
		r.Post("/register/verify", a.handleRegisterVerify)
		r.Post("/forgot-password", a.handleForgotPassword)
		r.Post("/verify-reset-code", a.handleVerifyResetCode)
		r.Post("/reset-password", a.handleResetPassword)
		r.Post("/setup-password", a.handleSetupPassword)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/profile", a.handleProfile)
			r.Patch("/profile", a.handleEditProfile)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/patients", a.handlePatients)
		r.Get("/patients/{id}", a.handlePatient)
		r.Get("/providers", a.handleProviders)
		r.Get("/appointments", a.handleAppointments)
		r.Get("/invoices", a.handleInvoices)
		r.With(a.requireRole("admin")).Get("/users", a.handleUsers)
	})

	return r
}

// Seed adds an active account.
func (a *API) Seed(email, password, firstName, lastName string, roles ...Role) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()

	acct := &Account{
		ID:        "usr_" + firstName,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Roles:     roles,
		Active:    true,
		password:  password,
	}
	a.accounts[email] = acct
	return acct
}

// Invite creates an account without a password and returns the setup token.
func (a *API) Invite(email, firstName, lastName string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	token := "invite-" + email
	a.accounts[email] = &Account{
		ID:        "usr_" + firstName,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Roles:     []Role{{Name: "provider"}},
	}
	a.invites[token] = email
	return token
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (a *API) SetAccessTTL(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accessTTL = d
}

// RejectRefresh makes every refresh-token exchange fail with 401.
func (a *API) RejectRefresh(reject bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejectRefresh = reject
}

// RateLimit makes path answer 429 until called again with false.
func (a *API) RateLimit(path string, on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rateLimited[path] = on
}

// AlwaysUnauthorized makes path answer 401 regardless of the token presented.
func (a *API) AlwaysUnauthorized(path string, on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unauthorized[path] = on
}

// HoldRefresh blocks refresh-token exchanges until the returned function is
// called. The exchange is still counted when it arrives.
func (a *API) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.refreshGate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.refreshGate == gate {
				a.refreshGate = nil
			}
			a.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls returns how many refresh-token exchanges were received.
func (a *API) RefreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

// LogoutCalls returns how many logout requests were received.
func (a *API) LogoutCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logoutCalls
}

// TokensSeen returns the access tokens presented to path, in arrival order,
// including rejected ones.
func (a *API) TokensSeen(path string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tokensSeen[path]...)
}
