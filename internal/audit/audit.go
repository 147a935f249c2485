// Package audit keeps a local, append-only trail of session events: sign-ins,
// sessions ending, and profile changes. One JSON event per line, one file per
// day.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/practicedesk/internal/auth"
	"github.com/felixgeelhaar/practicedesk/internal/log"
)

// EventType represents the type of audit event
type EventType string

const (
	EventSignedIn       EventType = "session.signed_in"
	EventEnded          EventType = "session.ended"
	EventProfileUpdated EventType = "session.profile_updated"
)

// Event represents one audit entry
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Actor is the redacted email of the user the event concerns.
	Actor string `json:"actor"`

	// Source names the process that recorded the event (cli, proxy).
	Source string `json:"source,omitempty"`

	Details map[string]any `json:"details,omitempty"`
}

// Logger writes audit events to daily files under a directory.
type Logger struct {
	mu sync.Mutex

	dir         string
	source      string
	now         func() time.Time
	currentFile *os.File
	currentDate string
}

// NewLogger creates dir if needed and opens today's file.
func NewLogger(dir, source string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	l := &Logger{dir: dir, source: source, now: time.Now}
	if err := l.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return l, nil
}

// Log appends event, filling in ID, timestamp and source when unset.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = l.source
	}

	if err := l.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := l.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return l.currentFile.Sync()
}

// Observer returns a controller listener that records transitions away from
// initial, the state at the time of subscribing. Transitions out of the
// initializing phase are session restores and are not recorded. Failures to
// write are logged, not returned.
func (l *Logger) Observer(initial auth.State, logger *log.Logger) func(auth.State) {
	var mu sync.Mutex
	prev := initial

	return func(next auth.State) {
		mu.Lock()
		event := transition(prev, next)
		prev = next
		mu.Unlock()

		if event == nil {
			return
		}
		if err := l.Log(event); err != nil {
			logger.LogError("failed to record audit event", err)
		}
	}
}

func transition(prev, next auth.State) *Event {
	if prev.Loading {
		return nil
	}

	switch {
	case next.IsAuthenticated && (!prev.IsAuthenticated || userID(prev) != userID(next)):
		return &Event{Type: EventSignedIn, Actor: actor(next)}

	case prev.IsAuthenticated && !next.IsAuthenticated:
		return &Event{Type: EventEnded, Actor: actor(prev)}

	case prev.IsAuthenticated && next.IsAuthenticated && prev.User != nil && next.User != nil &&
		(prev.User.FullName() != next.User.FullName() || prev.User.Email != next.User.Email):
		return &Event{
			Type:    EventProfileUpdated,
			Actor:   actor(next),
			Details: map[string]any{"previousActor": actor(prev)},
		}
	}
	return nil
}

func userID(s auth.State) string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func actor(s auth.State) string {
	if s.User == nil {
		return ""
	}
	return log.RedactEmail(s.User.Email)
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Since time.Time
	Type  EventType
	Limit int
}

// Matches reports whether event passes the filter
func (f Filter) Matches(event *Event) bool {
	if !f.Since.IsZero() && event.Timestamp.Before(f.Since) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	return true
}

// Query returns matching events, newest first, at most filter.Limit.
func (l *Logger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil {
		return nil, err
	}

	var events []*Event
	for _, file := range files {
		fileEvents, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit log %s: %w", file, err)
		}
		for _, e := range fileEvents {
			if filter.Matches(e) {
				events = append(events, e)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func readFile(name string) ([]*Event, error) {
	f, err := os.Open(name) // #nosec G304 -- names come from Glob over our own directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []*Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
			events = append(events, &e)
		}
	}
	return events, sc.Err()
}

// rotateIfNeeded switches files when the date changes
func (l *Logger) rotateIfNeeded() error {
	date := l.now().Format("2006-01-02")
	if l.currentDate == date && l.currentFile != nil {
		return nil
	}

	if l.currentFile != nil {
		_ = l.currentFile.Close()
	}

	name := filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", date))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path built from our own directory
	if err != nil {
		return err
	}
	l.currentFile = f
	l.currentDate = date
	return nil
}

// Close closes the current file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		return l.currentFile.Close()
	}
	return nil
}
