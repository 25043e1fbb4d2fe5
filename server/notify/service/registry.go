package service

import (
	"sync"

	"workhub/server/notify/domain"
)

// Handle is a live realtime connection for one user.
type Handle interface {
	ID() string
	UserID() string
	Send(event domain.Event) error
}

// ConnectionRegistry maps a user to at most one live handle.
type ConnectionRegistry interface {
	// Register stores h as the user's handle and returns the handle it
	// replaced, if any.
	Register(h Handle) Handle
	// Unregister removes h only if it is still the user's current handle.
	Unregister(h Handle) bool
	Lookup(userID string) (Handle, bool)
}

type LocalRegistry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{handles: map[string]Handle{}}
}

func (r *LocalRegistry) Register(h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.handles[h.UserID()]
	r.handles[h.UserID()] = h
	if previous == nil {
		liveConnections.Inc()
	}
	return previous
}

func (r *LocalRegistry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.handles[h.UserID()]
	if !ok || current.ID() != h.ID() {
		return false
	}
	delete(r.handles, h.UserID())
	liveConnections.Dec()
	return true
}

func (r *LocalRegistry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

func (r *LocalRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
