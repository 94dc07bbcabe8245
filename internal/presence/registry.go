package presence

import (
	"sync"
	"time"
)

// Meta is the per-connection cursor identity recorded when a connection
// joins a board. It is never persisted; entries live exactly as long as
// the connection (or until the stale sweep reclaims them).
type Meta struct {
	BoardID    string
	UserID     int64
	Name       string
	Color      string
	LastSeenAt time.Time
	// Expired is set once the stale sweep has announced this cursor as
	// gone; a later Touch revives it. The entry itself stays until the
	// connection leaves, so an idle user can resume moving.
	Expired bool
}

// Registry maps live connection ids to their board presence. It is
// process-local by design: all connections for a room are assumed to be
// colocated in one process. A horizontally scaled deployment needs a
// shared store plus a pub/sub fan-out instead.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Meta
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Meta)}
}

// Set records or replaces the presence entry for a connection
func (r *Registry) Set(connID string, meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connID] = meta
}

// Get returns the presence entry for a connection
func (r *Registry) Get(connID string) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.entries[connID]
	return meta, ok
}

// Delete removes a connection's entry. Must be called synchronously
// with connection teardown; this map has no other eviction policy.
func (r *Registry) Delete(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connID)
}

// Touch refreshes the last-seen timestamp for a connection
func (r *Registry) Touch(connID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.entries[connID]
	if !ok {
		return false
	}
	meta.LastSeenAt = at
	meta.Expired = false
	r.entries[connID] = meta
	return true
}

// MarkExpired flags an entry as already announced stale
func (r *Registry) MarkExpired(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.entries[connID]
	if !ok {
		return
	}
	meta.Expired = true
	r.entries[connID] = meta
}

// Stale returns a copy of every live entry not refreshed since cutoff
// that has not already been marked expired
func (r *Registry) Stale(cutoff time.Time) map[string]Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stale := make(map[string]Meta)
	for connID, meta := range r.entries {
		if !meta.Expired && meta.LastSeenAt.Before(cutoff) {
			stale[connID] = meta
		}
	}
	return stale
}

// Len returns the number of live entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
