// Package generation tracks the live, cancellable state of in-progress
// assistant responses, keyed by chat.
package generation

import (
	"context"
	"errors"
	"sync"
)

// ErrActiveGeneration reports that the chat already has a generation in
// flight. A second concurrent send is rejected rather than silently
// abandoning the first session's cancel handle.
var ErrActiveGeneration = errors.New("generation already active for chat")

// Registry is process-wide state constructed once at bootstrap and injected
// into handlers. Every code path that registers a session must release it
// exactly once.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint]context.CancelFunc)}
}

func (r *Registry) Register(chatID uint, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[chatID]; exists {
		return ErrActiveGeneration
	}
	r.sessions[chatID] = cancel
	return nil
}

// Cancel fires and removes the session for chatID. Returns false when no
// session was registered; the caller's intent is satisfied either way.
func (r *Registry) Cancel(chatID uint) bool {
	r.mu.Lock()
	cancel, exists := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()

	if !exists {
		return false
	}
	cancel()
	return true
}

// Release removes the session unconditionally. Idempotent.
func (r *Registry) Release(chatID uint) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

func (r *Registry) Active(chatID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.sessions[chatID]
	return exists
}
