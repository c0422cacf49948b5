package discord

import (
	"sync"

	"github.com/conorfennell/ankibot/internal/review"
)

// registry tracks the running sessions so button presses can find their
// gate. Each user has at most one session.
type registry struct {
	mu      sync.Mutex
	gates   map[string]*review.Gate // by session id
	byOwner map[string]string       // owner -> session id, "" while starting
}

func newRegistry() *registry {
	return &registry{
		gates:   make(map[string]*review.Gate),
		byOwner: make(map[string]string),
	}
}

// reserve claims the owner's single slot. It fails if the owner already has
// a session, even one that is still starting.
func (r *registry) reserve(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.byOwner[owner]; busy {
		return false
	}
	r.byOwner[owner] = ""
	return true
}

func (r *registry) add(sessionID string, gate *review.Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[sessionID] = gate
	r.byOwner[gate.Owner()] = sessionID
}

// release frees the owner's slot and forgets the session, if any.
func (r *registry) release(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sid := r.byOwner[owner]; sid != "" {
		delete(r.gates, sid)
	}
	delete(r.byOwner, owner)
}

func (r *registry) gate(sessionID string) *review.Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gates[sessionID]
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner)
}
