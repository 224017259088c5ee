package sim

import (
	"time"

	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/devices"
)

// Array is a complete simulated installation: antennas with feeds, a
// downconverter and one backend, all registered in Registry.
type Array struct {
	Registry      *devices.Registry
	Downconverter *Downconverter
	Backend       *Backend

	antennas map[string]*Antenna
	feeds    map[string]*Feed
}

// NewArray builds an array of the named antennas sharing clock c. store may
// be nil.
func NewArray(c clock.Clock, slewTime time.Duration, store *Store, names ...string) *Array {
	arr := &Array{
		Registry:      devices.NewRegistry(),
		Downconverter: &Downconverter{},
		Backend:       NewBackend(c, store),
		antennas:      map[string]*Antenna{},
		feeds:         map[string]*Feed{},
	}
	for _, n := range names {
		a := NewAntenna(n, c, slewTime)
		f := NewFeed(c)
		arr.antennas[n] = a
		arr.feeds[n] = f
		arr.Registry.RegisterAntenna(a)
		arr.Registry.RegisterFeed(n, f)
	}
	arr.Registry.SetDownconverter(arr.Downconverter)
	return arr
}

// Antenna returns the simulated antenna called name, or nil.
func (a *Array) Antenna(name string) *Antenna { return a.antennas[name] }

func (a *Array) Feed(name string) *Feed { return a.feeds[name] }
