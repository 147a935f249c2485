package auth

import (
	"encoding/json"

	"github.com/felixgeelhaar/practicedesk/internal/platform"
)

// Phase is the coarse session lifecycle position.
type Phase string

const (
	PhaseInitializing  Phase = "initializing"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// State is the in-memory mirror of the session.
type State struct {
	User            *platform.UserProfile
	IsAuthenticated bool
	Loading         bool
}

// Phase derives the lifecycle position from the flags.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseInitializing
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}

func (s State) equal(o State) bool {
	return s.User == o.User && s.IsAuthenticated == o.IsAuthenticated && s.Loading == o.Loading
}

// MarshalJSON renders the state with its phase.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Phase           Phase                 `json:"phase"`
		IsAuthenticated bool                  `json:"isAuthenticated"`
		Loading         bool                  `json:"loading"`
		User            *platform.UserProfile `json:"user"`
	}{s.Phase(), s.IsAuthenticated, s.Loading, s.User})
}
