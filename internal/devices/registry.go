package devices

import (
	"fmt"
	"sync"
)

// Registry holds the devices reachable by one observation. Antennas keep
// registration order.
type Registry struct {
	mu            sync.RWMutex
	antennas      map[string]Antenna
	order         []string
	feeds         map[string]Feed
	downconverter Downconverter
}

func NewRegistry() *Registry {
	return &Registry{
		antennas: map[string]Antenna{},
		feeds:    map[string]Feed{},
	}
}

// RegisterAntenna adds an antenna; re-registering a name replaces the handle.
func (r *Registry) RegisterAntenna(a Antenna) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.antennas[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.antennas[a.Name()] = a
}

// RegisterFeed associates feed electronics with an antenna name.
func (r *Registry) RegisterFeed(antenna string, f Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[antenna] = f
}

func (r *Registry) SetDownconverter(d Downconverter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downconverter = d
}

func (r *Registry) Antenna(name string) (Antenna, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.antennas[name]
	if !ok {
		return nil, fmt.Errorf("antenna not registered: %s", name)
	}
	return a, nil
}

// Antennas returns every registered antenna in registration order.
func (r *Registry) Antennas() []Antenna {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Antenna, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.antennas[name])
	}
	return out
}

func (r *Registry) Feed(antenna string) (Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[antenna]
	if !ok {
		return nil, fmt.Errorf("no feed electronics for antenna %s", antenna)
	}
	return f, nil
}

// Downconverter returns nil when none is registered.
func (r *Registry) Downconverter() Downconverter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.downconverter
}
