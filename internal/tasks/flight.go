package tasks

import (
	"fmt"
	"maps"
	"sync"

	"github.com/desertthunder/karaokectl/internal/shared"
)

// Flights tracks which job ids have a mutation in progress.
type Flights struct {
	mu     sync.Mutex
	active map[string]string
}

// NewFlights creates an empty tracker.
func NewFlights() *Flights {
	return &Flights{active: make(map[string]string)}
}

// Begin claims key for op, failing with [shared.ErrBusy] if another operation holds it.
func (f *Flights) Begin(key, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.active[key]; ok {
		return fmt.Errorf("%w: %s already running for %s", shared.ErrBusy, cur, key)
	}
	f.active[key] = op
	return nil
}

// End releases key.
func (f *Flights) End(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, key)
}

// Active reports whether key is held.
func (f *Flights) Active(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[key]
	return ok
}

// Snapshot returns the held keys as a set.
func (f *Flights) Snapshot() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]bool, len(f.active))
	for k := range maps.Keys(f.active) {
		out[k] = true
	}
	return out
}
