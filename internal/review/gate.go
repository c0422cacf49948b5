package review

import (
	"context"
	"sync"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
)

// ActionKind is the kind of button a user pressed.
type ActionKind int

const (
	noAction ActionKind = iota
	ActionFlip
	ActionRate
)

func (k ActionKind) String() string {
	switch k {
	case ActionFlip:
		return "flip"
	case ActionRate:
		return "rate"
	default:
		return "none"
	}
}

// Action is one user interaction. Rating is set only for ActionRate.
type Action struct {
	Kind   ActionKind
	Rating domain.Rating
	Actor  string
}

// Gate is the single-slot meeting point between a session and its user. The
// session opens the gate for each phase before showing its controls and then
// waits on it; frontends call Offer when a button is pressed. At most one
// action is accepted per opening.
type Gate struct {
	owner string

	mu   sync.Mutex
	want ActionKind
	slot chan Action
}

// NewGate returns a gate that only accepts actions from owner.
func NewGate(owner string) *Gate {
	return &Gate{owner: owner}
}

func (g *Gate) Owner() string { return g.owner }

// Pending is one opening of a gate. An action offered between Open and Wait
// is held until Wait collects it.
type Pending struct {
	gate *Gate
	slot chan Action
}

// Open starts accepting one action of kind want.
func (g *Gate) Open(want ActionKind) *Pending {
	slot := make(chan Action, 1)
	g.mu.Lock()
	g.want = want
	g.slot = slot
	g.mu.Unlock()
	return &Pending{gate: g, slot: slot}
}

// Wait blocks until the action arrives, the timeout expires or ctx is done.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (Action, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-p.slot:
		return a, nil
	case <-timer.C:
		if a, ok := p.gate.close(p.slot); ok {
			return a, nil
		}
		return Action{}, ErrInteractionTimeout
	case <-ctx.Done():
		if a, ok := p.gate.close(p.slot); ok {
			return a, nil
		}
		return Action{}, ctx.Err()
	}
}

// Cancel shuts the gate without waiting.
func (p *Pending) Cancel() {
	p.gate.close(p.slot)
}

// Await opens the gate for one action of kind want and waits for it.
func (g *Gate) Await(ctx context.Context, want ActionKind, timeout time.Duration) (Action, error) {
	return g.Open(want).Wait(ctx, timeout)
}

// close shuts the gate. An action that slipped in before the lock was taken
// is still returned, since Offer already told its sender it was accepted.
func (g *Gate) close(slot chan Action) (Action, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == slot {
		g.slot = nil
		g.want = noAction
	}
	select {
	case a := <-slot:
		return a, true
	default:
		return Action{}, false
	}
}

// Offer hands a to the waiting session. Actions from anyone but the owner
// are refused with ErrUnauthorizedActor and leave the gate open.
func (g *Gate) Offer(a Action) error {
	if a.Actor != g.owner {
		return ErrUnauthorizedActor
	}
	if a.Kind == ActionRate && !a.Rating.IsValid() {
		return ErrNotAwaiting
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == nil || a.Kind != g.want {
		return ErrNotAwaiting
	}
	g.slot <- a
	g.slot = nil
	g.want = noAction
	return nil
}

// Waiting returns the action kind the gate currently accepts.
func (g *Gate) Waiting() ActionKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.want
}
