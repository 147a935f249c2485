// Package session persists the client's credentials and broadcasts the end
// of a session to interested components.
package session

import (
	"context"
	"sync"
)

// Key names one of the persisted session entries.
type Key string

const (
	// KeyAccessToken holds the short-lived bearer token.
	KeyAccessToken Key = "accessToken"
	// KeyRefreshToken holds the token used to mint new access tokens.
	KeyRefreshToken Key = "refreshToken"
	// KeyUser holds the cached profile blob.
	KeyUser Key = "user"
)

// Keys lists every key cleared together on logout.
var Keys = []Key{KeyAccessToken, KeyRefreshToken, KeyUser}

// Store is the persistence contract for session credentials.
//
// Implementations must be safe for concurrent use. Clear removes all keys as
// one logical unit: a reader never observes a partially cleared session.
type Store interface {
	// Get returns the value for key. The boolean is false when the key is absent.
	Get(ctx context.Context, key Key) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key Key) error

	// Clear deletes every session key.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory.
//
// Used by tests and by the proxy when no durable backend is configured.
type MemoryStore struct {
	values sync.Map
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key Key) (string, bool, error) {
	v, ok := m.values.Load(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(_ context.Context, key Key, value string) error {
	m.values.Store(key, value)
	return nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(_ context.Context, key Key) error {
	m.values.Delete(key)
	return nil
}

// Clear deletes every key.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.values.Clear()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	n := 0
	m.values.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
