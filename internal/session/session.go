// Package session owns the mapping from user identity to the pair of
// endpoints and the broadcast engine that make up a live relay session.
package session

import (
	"sync"

	"github.com/cr8-studio/relay/internal/broadcast"
	"github.com/cr8-studio/relay/internal/endpoint"
	"github.com/cr8-studio/relay/internal/model"
)

// Session pairs one user identity's browser and worker endpoints with its
// broadcast engine. Endpoint handles are replaced wholesale on reconnect,
// never mutated in place.
type Session struct {
	identity string
	engine   *broadcast.Engine

	mu      sync.RWMutex
	browser endpoint.Endpoint
	worker  endpoint.Endpoint
}

// Identity returns the opaque user key this session belongs to.
func (s *Session) Identity() string {
	return s.identity
}

// Engine returns the session's broadcast engine.
func (s *Session) Engine() *broadcast.Engine {
	return s.engine
}

// Browser returns the current browser endpoint, nil if none is attached.
func (s *Session) Browser() endpoint.Endpoint {
	return s.Endpoint(model.RoleBrowser)
}

// Worker returns the current worker endpoint, nil if none is attached.
func (s *Session) Worker() endpoint.Endpoint {
	return s.Endpoint(model.RoleWorker)
}

// Endpoint returns the current endpoint for the given role.
func (s *Session) Endpoint(role model.Role) endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role == model.RoleBrowser {
		return s.browser
	}
	return s.worker
}

// SetEndpoint attaches ep for the given role, returning the endpoint it
// replaced (nil on first connect).
func (s *Session) SetEndpoint(role model.Role, ep endpoint.Endpoint) endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old endpoint.Endpoint
	if role == model.RoleBrowser {
		old, s.browser = s.browser, ep
	} else {
		old, s.worker = s.worker, ep
	}
	return old
}

// ClearEndpoint detaches ep from the given role. It only clears when ep is
// still the current handle, so a disconnect racing a reconnect cannot drop
// the fresh connection.
func (s *Session) ClearEndpoint(role model.Role, ep endpoint.Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if role == model.RoleBrowser {
		if s.browser != ep {
			return false
		}
		s.browser = nil
		return true
	}
	if s.worker != ep {
		return false
	}
	s.worker = nil
	return true
}

// idle reports whether both endpoints are detached.
func (s *Session) idle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browser == nil && s.worker == nil
}
