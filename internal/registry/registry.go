// Package registry is the authoritative map of connected principals to
// their session handles.
package registry

import "sync"

// Handle is the slice of a live session the registry needs: push a
// server-initiated notification, or tear the connection down.
type Handle interface {
	Notify(event uint32, payload []byte)
	Disconnect() error
}

// Registry holds at most one handle per pid. All map mutation happens
// under one mutex; the mutex is never held across a Disconnect call, so
// the detach path a closing transport runs cannot deadlock against a
// kick in flight.
type Registry struct {
	mu      sync.Mutex
	clients map[uint32]Handle
}

func New() *Registry {
	return &Registry{clients: make(map[uint32]Handle)}
}

// Attach registers a handle for pid. If the pid already has a handle the
// old one is evicted and disconnected (best effort) — a fresh login wins.
func (r *Registry) Attach(pid uint32, h Handle) {
	r.mu.Lock()
	prev := r.clients[pid]
	r.clients[pid] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		_ = prev.Disconnect()
	}
}

// Detach removes the pid's handle, but only if it is still the given one;
// a handle displaced by a newer Attach must not remove its successor.
// Double detach is a no-op.
func (r *Registry) Detach(pid uint32, h Handle) {
	r.mu.Lock()
	if r.clients[pid] == h {
		delete(r.clients, pid)
	}
	r.mu.Unlock()
}

// Kick disconnects and removes the pid's handle. Returns whether the pid
// was connected. The handle is removed even if the transport reports an
// error on disconnect.
func (r *Registry) Kick(pid uint32) bool {
	r.mu.Lock()
	h, ok := r.clients[pid]
	if ok {
		delete(r.clients, pid)
	}
	r.mu.Unlock()

	if ok {
		_ = h.Disconnect()
	}
	return ok
}

// KickAll disconnects every client and returns how many there were. The
// handle list is copied under the lock and the disconnects run without it.
func (r *Registry) KickAll() int {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.clients))
	for _, h := range r.clients {
		handles = append(handles, h)
	}
	r.clients = make(map[uint32]Handle)
	r.mu.Unlock()

	for _, h := range handles {
		_ = h.Disconnect()
	}
	return len(handles)
}

// Snapshot returns the connected pids.
func (r *Registry) Snapshot() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	pids := make([]uint32, 0, len(r.clients))
	for pid := range r.clients {
		pids = append(pids, pid)
	}
	return pids
}

// Connected reports whether the pid currently has a session.
func (r *Registry) Connected(pid uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[pid]
	return ok
}

// Get returns the pid's handle, or nil.
func (r *Registry) Get(pid uint32) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[pid]
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
