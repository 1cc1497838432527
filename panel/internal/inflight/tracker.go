// Package inflight hands out per-endpoint tickets so that a response which has
// been overtaken by a newer request for the same endpoint is never applied.
package inflight

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSuperseded is returned when a newer request for the same endpoint started
// before this one finished.
var ErrSuperseded = errors.New("request superseded by a newer one")

type Tracker struct {
	mu     sync.Mutex
	active map[string]*Ticket
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*Ticket)}
}

// Ticket identifies one in-flight request for a key
type Ticket struct {
	Key string
	ID  string

	tracker *Tracker
	cancel  context.CancelFunc
}

// Supersede starts a request for key and cancels the previous one, if any.
// Use it for reads, where abandoning the older request is harmless.
func (t *Tracker) Supersede(parent context.Context, key string) (context.Context, *Ticket) {
	return t.begin(parent, key, true)
}

// Track starts a request for key and marks the previous one stale without
// cancelling it. Use it for requests that mutate server state.
func (t *Tracker) Track(parent context.Context, key string) (context.Context, *Ticket) {
	return t.begin(parent, key, false)
}

func (t *Tracker) begin(parent context.Context, key string, cancelPrior bool) (context.Context, *Ticket) {
	ctx, cancel := context.WithCancel(parent)
	ticket := &Ticket{
		Key:     key,
		ID:      uuid.NewString(),
		tracker: t,
		cancel:  cancel,
	}

	t.mu.Lock()
	prior := t.active[key]
	t.active[key] = ticket
	t.mu.Unlock()

	if prior != nil && cancelPrior {
		prior.cancel()
	}
	return ctx, ticket
}

// Apply runs fn only if the ticket is still current, holding the tracker lock
// so that no newer request for the key can start in between. It reports
// whether fn ran.
func (tk *Ticket) Apply(fn func()) bool {
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	if !tk.current() {
		return false
	}
	fn()
	return true
}

// current reports whether no newer request for the key has started; the
// tracker lock must be held.
func (tk *Ticket) current() bool {
	return tk.tracker.active[tk.Key] == tk
}

// Finish releases the ticket's context and forgets it if it is still the newest.
func (tk *Ticket) Finish() {
	tk.tracker.mu.Lock()
	if tk.current() {
		delete(tk.tracker.active, tk.Key)
	}
	tk.tracker.mu.Unlock()
	tk.cancel()
}

// InFlight returns the number of keys with a request outstanding
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
