package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/felixgeelhaar/practicedesk/internal/auth"
	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/health"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the platform's nested error shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.ErrorCode("")
	if de, ok := errors.As(err); ok {
		code = de.Code
	}

	switch {
	case errors.IsRateLimited(err):
		status = http.StatusTooManyRequests
		if de, ok := errors.As(err); ok && de.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(de.RetryAfter.Seconds())))
		}
	case errors.IsTerminal(err),
		errors.HasCode(err, errors.ErrCodeInvalidCredentials),
		errors.HasCode(err, errors.ErrCodeAccessTokenRejected):
		status = http.StatusUnauthorized
	case errors.IsNetwork(err):
		status = http.StatusBadGateway
	case errors.StatusOf(err) >= 400:
		status = errors.StatusOf(err)
	}

	if ae, ok := err.(*auth.AuthError); ok {
		code = ae.Code
	}
	if code != "" {
		s.deps.Metrics.Errors.WithLabelValues(string(code), "proxy").Inc()
	}

	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": auth.Message(err),
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"session": s.deps.Controller.State().Phase(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Health.Liveness())
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Readiness(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req platform.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "email and password are required"},
		})
		return
	}

	if err := s.deps.Controller.Login(r.Context(), req.Email, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Logout(r.Context()); err != nil {
		s.logger.LogError("logout teardown failed", err)
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.ManualRefresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.UpdateProfile(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}
