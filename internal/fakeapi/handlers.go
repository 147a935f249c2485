package fakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type accountKey struct{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": v})
}

// nestedError is the backend's most common error shape.
func nestedError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func bearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func (a *API) limiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		limited := a.rateLimited[r.URL.Path]
		a.mu.Unlock()

		if limited {
			w.Header().Set("Retry-After", "2")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "Too many requests, slow down"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) forcedUnauthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		forced := a.unauthorized[r.URL.Path]
		if forced {
			a.tokensSeen[r.URL.Path] = append(a.tokensSeen[r.URL.Path], bearer(r))
		}
		a.mu.Unlock()

		if forced {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)

		a.mu.Lock()
		a.tokensSeen[r.URL.Path] = append(a.tokensSeen[r.URL.Path], token)
		a.mu.Unlock()

		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Authentication required"})
			return
		}
		c, err := a.verify(token, kindAccess)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired or invalid"})
			return
		}

		a.mu.Lock()
		acct := a.accounts[c.Subject]
		a.mu.Unlock()
		if acct == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unknown user"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, acct)))
	})
}

func (a *API) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct := r.Context().Value(accountKey{}).(*Account)
			for _, have := range acct.Roles {
				if have.Name == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			nestedError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

func (a *API) tokensFor(w http.ResponseWriter, email string) {
	access, refresh := a.IssueTokens(email)
	writeData(w, map[string]any{
		"tokens": map[string]string{"accessToken": access, "refreshToken": refresh},
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(r, &req) {
		nestedError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a.mu.Lock()
	acct := a.accounts[req.Email]
	ok := acct != nil && acct.password != "" && acct.password == req.Password
	a.mu.Unlock()

	if !ok {
		nestedError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	a.tokensFor(w, req.Email)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decode(r, &req)

	a.mu.Lock()
	a.refreshCalls++
	gate := a.refreshGate
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	reject := a.rejectRefresh || a.revoked[req.RefreshToken]
	ttl := a.accessTTL
	a.mu.Unlock()

	if reject {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid token"})
		return
	}
	c, err := a.verify(req.RefreshToken, kindRefresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid token"})
		return
	}

	writeData(w, map[string]any{
		"tokens": map[string]string{"accessToken": a.sign(c.Subject, kindAccess, ttl)},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decode(r, &req)

	a.mu.Lock()
	a.logoutCalls++
	if req.RefreshToken != "" {
		a.revoked[req.RefreshToken] = true
	}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if !decode(r, &req) || req.Email == "" || req.Password == "" {
		nestedError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	a.mu.Lock()
	_, exists := a.accounts[req.Email]
	if !exists {
		a.pending[req.Email] = &Account{
			ID:        "usr_" + req.FirstName,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Roles:     []Role{{Name: "admin", Permissions: map[string]bool{"users:read": true}}},
			Active:    true,
			password:  req.Password,
		}
	}
	a.mu.Unlock()

	if exists {
		nestedError(w, http.StatusConflict, "Email already registered")
		return
	}
	writeData(w, map[string]any{"message": "Verification code sent", "email": req.Email})
}

func (a *API) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	_ = decode(r, &req)

	a.mu.Lock()
	acct := a.pending[req.Email]
	ok := acct != nil && req.Code == RegistrationCode
	if ok {
		delete(a.pending, req.Email)
		a.accounts[req.Email] = acct
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid verification code"})
		return
	}
	a.tokensFor(w, req.Email)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	_ = decode(r, &req)

	a.mu.Lock()
	if _, ok := a.accounts[req.Email]; ok {
		a.resetCodes[req.Email] = ResetCode
	}
	a.mu.Unlock()

	writeData(w, map[string]any{"message": "If the account exists, a reset code was sent", "email": req.Email})
}

func (a *API) validResetCode(email, code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	want, ok := a.resetCodes[email]
	return ok && code == want
}

func (a *API) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	_ = decode(r, &req)

	if !a.validResetCode(req.Email, req.Code) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired code"})
		return
	}
	writeData(w, map[string]any{"message": "Code verified", "email": req.Email})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	_ = decode(r, &req)

	if !a.validResetCode(req.Email, req.Code) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired code"})
		return
	}

	a.mu.Lock()
	a.accounts[req.Email].password = req.NewPassword
	delete(a.resetCodes, req.Email)
	a.mu.Unlock()

	writeData(w, map[string]any{"message": "Password updated", "email": req.Email})
}

func (a *API) handleSetupPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	_ = decode(r, &req)

	a.mu.Lock()
	email, ok := a.invites[req.Token]
	if ok {
		a.accounts[email].password = req.Password
		a.accounts[email].Active = true
		delete(a.invites, req.Token)
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invitation expired"})
		return
	}
	writeData(w, map[string]any{"message": "Password set", "email": email})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	acct := r.Context().Value(accountKey{}).(*Account)
	a.mu.Lock()
	snapshot := *acct
	a.mu.Unlock()
	writeData(w, map[string]any{"user": snapshot})
}

func (a *API) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !decode(r, &req) {
		nestedError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct := r.Context().Value(accountKey{}).(*Account)
	a.mu.Lock()
	if req.FirstName != "" {
		acct.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acct.LastName = req.LastName
	}
	snapshot := *acct
	a.mu.Unlock()

	writeData(w, map[string]any{"user": snapshot})
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func paginate[T any](w http.ResponseWriter, r *http.Request, items []T) {
	page, limit := pageParams(r)
	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	writeData(w, map[string]any{
		"items": items[start:end],
		"total": len(items),
		"page":  page,
		"limit": limit,
	})
}

type patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Email       string `json:"email,omitempty"`
}

var patients = []patient{
	{ID: "pat_1", FirstName: "Maria", LastName: "Lopez", DateOfBirth: "1984-03-12", Email: "maria@example.com"},
	{ID: "pat_2", FirstName: "John", LastName: "Okafor", DateOfBirth: "1979-11-02"},
	{ID: "pat_3", FirstName: "Li", LastName: "Wei", DateOfBirth: "1992-07-25"},
}

func (a *API) handlePatients(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	out := []patient{}
	for _, p := range patients {
		if search == "" || strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName), search) {
			out = append(out, p)
		}
	}
	paginate(w, r, out)
}

func (a *API) handlePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, p := range patients {
		if p.ID == id {
			writeData(w, p)
			return
		}
	}
	nestedError(w, http.StatusNotFound, "Patient not found")
}

func (a *API) handleProviders(w http.ResponseWriter, r *http.Request) {
	paginate(w, r, []map[string]string{
		{"id": "prv_1", "firstName": "Grace", "lastName": "Hopper", "specialty": "Family medicine"},
		{"id": "prv_2", "firstName": "Paul", "lastName": "Farmer", "specialty": "Infectious disease"},
	})
}

func (a *API) handleAppointments(w http.ResponseWriter, r *http.Request) {
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	paginate(w, r, []map[string]any{
		{"id": "apt_1", "patientId": "pat_1", "providerId": "prv_1", "startsAt": start, "endsAt": start.Add(30 * time.Minute), "status": "scheduled"},
		{"id": "apt_2", "patientId": "pat_2", "providerId": "prv_2", "startsAt": start.Add(time.Hour), "endsAt": start.Add(90 * time.Minute), "status": "confirmed"},
	})
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	issued := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	paginate(w, r, []map[string]any{
		{"id": "inv_1", "patientId": "pat_1", "amount": 12500, "currency": "USD", "status": "open", "issuedAt": issued},
	})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	users := make([]Account, 0, len(a.accounts))
	for _, acct := range a.accounts {
		users = append(users, *acct)
	}
	a.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	paginate(w, r, users)
}
