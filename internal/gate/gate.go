// Package gate bounds the number of simultaneous downloads per owner and
// globally. Acquisition fails fast; requests are never queued.
package gate

import (
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrLimitExceeded = errors.New("concurrent download limit reached")

// Gate is the admission controller. The global ceiling protects host
// resources; per-owner ceilings depend on the owner's tier.
type Gate struct {
	global *semaphore.Weighted

	mu           sync.Mutex
	perOwner     map[string]int
	tierLimits   map[string]int
	defaultLimit int
}

func New(globalLimit int64, tierLimits map[string]int, defaultLimit int) *Gate {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	return &Gate{
		global:       semaphore.NewWeighted(globalLimit),
		perOwner:     make(map[string]int),
		tierLimits:   tierLimits,
		defaultLimit: defaultLimit,
	}
}

// Acquire claims one download slot for ownerID, or fails with
// ErrLimitExceeded when the owner's tier ceiling or the global ceiling is
// reached.
func (g *Gate) Acquire(ownerID, tier string) (*Slot, error) {
	if !g.global.TryAcquire(1) {
		return nil, ErrLimitExceeded
	}

	limit, ok := g.tierLimits[tier]
	if !ok {
		limit = g.defaultLimit
	}

	g.mu.Lock()
	if g.perOwner[ownerID] >= limit {
		g.mu.Unlock()
		g.global.Release(1)
		return nil, ErrLimitExceeded
	}
	g.perOwner[ownerID]++
	g.mu.Unlock()

	return &Slot{g: g, owner: ownerID}, nil
}

// Active reports the number of slots currently held by ownerID.
func (g *Gate) Active(ownerID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.perOwner[ownerID]
}

// Slot is one admitted download. Release is idempotent so error and
// cancellation paths may call it alongside the success path.
type Slot struct {
	g     *Gate
	owner string
	once  sync.Once
}

func (s *Slot) Release() {
	s.once.Do(func() {
		s.g.mu.Lock()
		s.g.perOwner[s.owner]--
		if s.g.perOwner[s.owner] <= 0 {
			delete(s.g.perOwner, s.owner)
		}
		s.g.mu.Unlock()
		s.g.global.Release(1)
	})
}
