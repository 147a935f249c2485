package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out := RenderSession(SessionView{
		Phase:         "authenticated",
		Name:          "Ada Admin",
		Email:         "admin@clinic.example",
		Roles:         []string{"admin"},
		BaseURL:       "http://localhost:3000/api",
		Backend:       "file",
		AccessExpiry:  now.Add(15 * time.Minute),
		RefreshExpiry: now.Add(-time.Hour),
	}, DefaultStyles(), now)

	for _, want := range []string{
		"authenticated",
		"Ada Admin <admin@clinic.example>",
		"admin",
		"http://localhost:3000/api",
		"expires in 15m0s",
		"expired 1h0m0s ago",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderSessionAnonymous(t *testing.T) {
	out := RenderSession(SessionView{
		Phase:   "anonymous",
		BaseURL: "http://localhost:3000/api",
		Backend: "memory",
		Warning: "rate limited",
	}, DefaultStyles(), time.Now())

	assert.Contains(t, out, "anonymous")
	assert.Contains(t, out, "! rate limited")
	assert.NotContains(t, out, "User")
	assert.NotContains(t, out, "Access")
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "NAME"},
		[][]string{{"p1", "Alice Liddell"}, {"p2", "Bob Stone"}},
		DefaultStyles(),
	)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Alice Liddell")
	assert.Contains(t, out, "Bob Stone")
	assert.Equal(t, 6, strings.Count(out, "\n")+1, "borders, header, separator and two rows")
}

func TestRenderTableEmpty(t *testing.T) {
	out := RenderTable([]string{"ID"}, nil, DefaultStyles())
	assert.Contains(t, out, "No results")
	assert.NotContains(t, out, "ID")
}

func TestRenderMessage(t *testing.T) {
	assert.True(t, strings.HasSuffix(RenderMessage("Signed out", DefaultStyles()), "Signed out"))
}
