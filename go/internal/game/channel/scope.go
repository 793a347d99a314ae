package channel

import (
	"sync"

	"github.com/mcdev12/maninthemiddle/go/internal/game/events"
)

// Scope groups subscriptions made for one owner lifetime so they can be
// released together, exactly once, on every exit path.
//
//	scope := adapter.NewScope()
//	defer scope.Release()
type Scope struct {
	adapter *Adapter

	mu       sync.Mutex
	tokens   []Token
	released bool
}

// NewScope opens an empty subscription scope on the adapter.
func (a *Adapter) NewScope() *Scope {
	return &Scope{adapter: a}
}

// Subscribe registers handler within the scope. Subscribing on a released
// scope is a no-op and returns an empty token.
func (s *Scope) Subscribe(name events.Name, handler Handler) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ""
	}
	token := s.adapter.Subscribe(name, handler)
	s.tokens = append(s.tokens, token)
	return token
}

// Release unsubscribes everything registered through the scope. Later
// calls do nothing. It returns how many subscriptions were still live.
func (s *Scope) Release() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return 0
	}
	s.released = true

	n := 0
	for _, token := range s.tokens {
		if s.adapter.Unsubscribe(token) {
			n++
		}
	}
	s.tokens = nil
	return n
}

// Released reports whether Release has run.
func (s *Scope) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
