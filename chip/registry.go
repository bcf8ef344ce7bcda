package chip

import (
	"fmt"
	"sync"

	"github.com/ardnew/sinn7/pkg"
)

// MaxCards is the number of card slots.
const MaxCards = 8

// CardOptions are the per-slot card options.
type CardOptions struct {
	// Index is the requested card number, or -1 for the slot number.
	Index int `yaml:"index"`

	// ID is the card identifier. Empty derives one from the slot.
	ID string `yaml:"id"`

	// Enable allows a device to be bound to the slot.
	Enable bool `yaml:"enable"`
}

// DefaultCardOptions returns every slot enabled with automatic index.
func DefaultCardOptions() []CardOptions {
	opts := make([]CardOptions, MaxCards)
	for i := range opts {
		opts[i] = CardOptions{Index: -1, Enable: true}
	}
	return opts
}

// Registry tracks which card slots are bound to a probed device.
// Its mutex is held only across probe and disconnect bookkeeping.
type Registry struct {
	mu    sync.Mutex
	opts  [MaxCards]CardOptions
	cards [MaxCards]*Chip
}

// NewRegistry creates a registry. Missing trailing options default to
// enabled slots; extra entries are ignored.
func NewRegistry(opts []CardOptions) *Registry {
	r := &Registry{}
	defaults := DefaultCardOptions()
	for i := range r.opts {
		if i < len(opts) {
			r.opts[i] = opts[i]
		} else {
			r.opts[i] = defaults[i]
		}
	}
	return r
}

// reserve binds c to the first slot that is enabled and free.
func (r *Registry) reserve(c *Chip) (int, CardOptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.cards {
		if r.opts[i].Enable && r.cards[i] == nil {
			r.cards[i] = c
			pkg.LogDebug(pkg.ComponentRegistry, "card slot reserved", "slot", i)
			return i, r.opts[i], nil
		}
	}
	return -1, CardOptions{}, fmt.Errorf("%w: no available card slot", pkg.ErrNoResources)
}

// release frees slot if it is still bound to c.
func (r *Registry) release(slot int, c *Chip) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= MaxCards || r.cards[slot] != c {
		return
	}
	r.cards[slot] = nil
	pkg.LogDebug(pkg.ComponentRegistry, "card slot released", "slot", slot)
}

// Cards returns the bound chips in slot order.
func (r *Registry) Cards() []*Chip {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Chip
	for _, c := range r.cards {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of bound slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.cards {
		if c != nil {
			n++
		}
	}
	return n
}
