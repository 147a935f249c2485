package session

import (
	"sync"

	"github.com/felixgeelhaar/practicedesk/internal/log"
)

type subscriber struct {
	id uint64
	fn func()
}

// Signal is a fire-and-forget "session ended" broadcast with any number of
// subscribers. The zero value is ready to use.
type Signal struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

// NewSignal creates a Signal with no subscribers.
func NewSignal() *Signal {
	return &Signal{}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (s *Signal) Subscribe(fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Broadcast invokes every subscriber synchronously in subscription order.
// A panicking subscriber is logged and does not stop the others.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		notify(sub.fn)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.DefaultLogger().Error("logout subscriber panicked", "panic", r)
		}
	}()
	fn()
}
