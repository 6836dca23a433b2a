package capacity

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outstandingSlots = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "prover",
	Subsystem: "capacity",
	Name:      "outstanding_slots",
	Help:      "Number of assignments the prover currently stands behind",
})

// Observer is notified when the guard goes from idle to busy and back.
// Notifications are delivered while the guard is locked and must not block.
type Observer interface {
	Busy()
	Idle()
}

// Slot is one reservation against the prover's capacity. A slot is in flight
// from TryAcquire until Commit or Release, and is never reclaimed while in
// flight.
type Slot struct {
	id        uint64
	key       common.Hash
	expiresAt time.Time
	inFlight  bool
	guard     *Guard
}

// Guard bounds the number of outstanding slots. A zero max means unlimited.
type Guard struct {
	max      uint64
	observer Observer

	mu     sync.Mutex
	nextId uint64
	held   map[uint64]*Slot
}

type Option func(*Guard)

func WithObserver(o Observer) Option {
	return func(g *Guard) { g.observer = o }
}

func New(max uint64, opts ...Option) *Guard {
	g := &Guard{max: max, held: make(map[uint64]*Slot)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Max() uint64 { return g.max }

func (g *Guard) Unlimited() bool { return g.max == 0 }

// TryAcquire reserves an in-flight slot for key. Committed slots whose expiry
// is not after now are reclaimed first. It returns false when the guard is full.
func (g *Guard) TryAcquire(key common.Hash, expiresAt, now time.Time) (*Slot, bool) {
	if g.Unlimited() {
		return &Slot{key: key, expiresAt: expiresAt}, true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := len(g.held)
	g.reapLocked(now)
	if uint64(len(g.held)) >= g.max {
		g.notifyLocked(before)
		return nil, false
	}
	g.nextId++
	slot := &Slot{id: g.nextId, key: key, expiresAt: expiresAt, inFlight: true, guard: g}
	g.held[slot.id] = slot
	g.notifyLocked(before)
	return slot, true
}

// Commit ends the in-flight phase of slot. From then on it is held until its
// expiry or until Complete is called for its key.
func (g *Guard) Commit(slot *Slot, now time.Time) {
	if slot == nil || slot.guard != g || g.Unlimited() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := len(g.held)
	if held, ok := g.held[slot.id]; ok {
		held.inFlight = false
	}
	g.reapLocked(now)
	g.notifyLocked(before)
}

// Release returns the slot to the guard. Releasing a slot more than once,
// or releasing a slot that already expired, has no effect.
func (g *Guard) Release(slot *Slot) {
	if slot == nil || slot.guard != g || g.Unlimited() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := len(g.held)
	delete(g.held, slot.id)
	g.notifyLocked(before)
}

// Complete releases every committed slot held for key and returns how many
// were released.
func (g *Guard) Complete(key common.Hash) int {
	if g.Unlimited() {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := len(g.held)
	for id, slot := range g.held {
		if slot.key == key && !slot.inFlight {
			delete(g.held, id)
		}
	}
	g.notifyLocked(before)
	return before - len(g.held)
}

// Outstanding returns the number of slots held at now.
func (g *Guard) Outstanding(now time.Time) int {
	if g.Unlimited() {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := len(g.held)
	g.reapLocked(now)
	g.notifyLocked(before)
	return len(g.held)
}

func (g *Guard) reapLocked(now time.Time) {
	for id, slot := range g.held {
		if !slot.inFlight && !slot.expiresAt.After(now) {
			delete(g.held, id)
		}
	}
}

func (g *Guard) notifyLocked(before int) {
	after := len(g.held)
	if before == after {
		return
	}
	outstandingSlots.Set(float64(after))
	if g.observer == nil {
		return
	}
	if before == 0 && after > 0 {
		g.observer.Busy()
	} else if before > 0 && after == 0 {
		g.observer.Idle()
	}
}
