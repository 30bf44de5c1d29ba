package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the Connection Registry (C1): the single source of truth
// mapping connection_id -> *User. It is the lock boundary the rest of the
// core synchronizes through — the Matcher and Session Supervisor never
// reach into a User directly without holding this lock, so registry reads
// and writes are always serialized with respect to each other (spec §5).
//
// registry.go replaces the teacher's nameToUserSession/sessionIdToName pair
// of maps (webrtc/service.go) with a single map keyed by the stable
// connection_id assigned at accept time, removing the need for a reverse
// lookup by username or remote address.
type Registry struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[uuid.UUID]*User)}
}

// Register adds a freshly accepted connection's User record in the Idle
// state. Calling Register twice for the same connID replaces the record.
func (r *Registry) Register(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ConnID] = u
}

// Lookup returns the User for connID, or nil if it isn't registered.
func (r *Registry) Lookup(connID uuid.UUID) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[connID]
}

// Remove deletes connID's record from the registry. It is a no-op if the
// connection is already gone.
func (r *Registry) Remove(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, connID)
}

// Count returns the number of live connections, for metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Snapshot returns a shallow copy of every live User, for diagnostics only.
// Callers must not mutate the returned Users.
func (r *Registry) Snapshot() []*User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

// withLock runs fn with the registry lock held. It exists so the Matcher
// and Session Supervisor can extend the critical section across a registry
// lookup and a queue-set mutation without re-entering Lock/Unlock per step,
// while keeping the lock itself private to this file.
func (r *Registry) withLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}
