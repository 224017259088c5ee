package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/radioscope/capsession/internal/devices"
)

// DefaultWaitTimeout bounds every per-antenna wait for lock or scan completion.
const DefaultWaitTimeout = 300 * time.Second

// AntennaSpec selects antennas for a group. Build one with Single, List,
// NamedCSV, All or Existing.
type AntennaSpec interface {
	antennaSpec()
}

type singleSpec struct{ ant devices.Antenna }
type listSpec struct{ ants []devices.Antenna }
type namedSpec struct{ csv string }
type allSpec struct{}
type existingSpec struct{ group *Group }

func (singleSpec) antennaSpec()   {}
func (listSpec) antennaSpec()     {}
func (namedSpec) antennaSpec()    {}
func (allSpec) antennaSpec()      {}
func (existingSpec) antennaSpec() {}

func Single(a devices.Antenna) AntennaSpec     { return singleSpec{ant: a} }
func List(ants ...devices.Antenna) AntennaSpec { return listSpec{ants: ants} }
func NamedCSV(names string) AntennaSpec        { return namedSpec{csv: names} }
func All() AntennaSpec                         { return allSpec{} }
func Existing(g *Group) AntennaSpec            { return existingSpec{group: g} }

// ParseAntennaSpec interprets a user-supplied string: "all" or a
// comma-separated list of antenna names.
func ParseAntennaSpec(s string) AntennaSpec {
	if strings.TrimSpace(s) == "all" {
		return All()
	}
	return NamedCSV(s)
}

// Group is an ordered, de-duplicated set of antennas that receives commands
// together.
type Group struct {
	name    string
	members []devices.Antenna
}

// Resolve turns spec into a concrete group using the devices in reg.
func Resolve(reg *devices.Registry, spec AntennaSpec, name string) (*Group, error) {
	var ants []devices.Antenna
	switch s := spec.(type) {
	case existingSpec:
		if s.group == nil || len(s.group.members) == 0 {
			return nil, fmt.Errorf("resolve %s: %w", name, ErrEmptyGroup)
		}
		return s.group, nil
	case singleSpec:
		ants = []devices.Antenna{s.ant}
	case listSpec:
		ants = s.ants
	case allSpec:
		ants = reg.Antennas()
	case namedSpec:
		for _, n := range strings.Split(s.csv, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			a, err := reg.Antenna(n)
			if err != nil {
				return nil, &UnknownAntennaError{Name: n}
			}
			ants = append(ants, a)
		}
	default:
		return nil, fmt.Errorf("resolve antennas: unsupported spec %T", spec)
	}

	g := &Group{name: name}
	seen := map[string]bool{}
	for _, a := range ants {
		if a == nil || seen[a.Name()] {
			continue
		}
		seen[a.Name()] = true
		g.members = append(g.members, a)
	}
	if len(g.members) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", name, ErrEmptyGroup)
	}
	return g, nil
}

func (g *Group) Name() string { return g.name }
func (g *Group) Len() int     { return len(g.members) }

// Names returns member names in group order.
func (g *Group) Names() []string {
	out := make([]string, len(g.members))
	for i, a := range g.members {
		out[i] = a.Name()
	}
	return out
}

func (g *Group) Members() []devices.Antenna {
	return append([]devices.Antenna(nil), g.members...)
}

func (g *Group) Contains(name string) bool {
	for _, a := range g.members {
		if a.Name() == name {
			return true
		}
	}
	return false
}

// IsSubsetOf reports whether every member of g is in other.
func (g *Group) IsSubsetOf(other *Group) bool {
	for _, a := range g.members {
		if !other.Contains(a.Name()) {
			return false
		}
	}
	return true
}

// Equal is order-insensitive set equality.
func (g *Group) Equal(other *Group) bool {
	return g.IsSubsetOf(other) && other.IsSubsetOf(g)
}

// Without returns the names of members not present in other.
func (g *Group) Without(other *Group) []string {
	var out []string
	for _, a := range g.members {
		if !other.Contains(a.Name()) {
			out = append(out, a.Name())
		}
	}
	return out
}

// each runs fn on every member in parallel and returns once all are done.
func (g *Group) each(ctx context.Context, op string, fn func(ctx context.Context, a devices.Antenna) error) error {
	var eg errgroup.Group
	for _, a := range g.members {
		eg.Go(func() error {
			if err := fn(ctx, a); err != nil {
				return fmt.Errorf("%s %s: %w", a.Name(), op, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (g *Group) SetMode(ctx context.Context, mode devices.Mode) error {
	log.Debug().Str("group", g.name).Str("mode", string(mode)).Msg("Setting antenna mode")
	return g.each(ctx, "set mode", func(ctx context.Context, a devices.Antenna) error {
		return a.SetMode(ctx, mode)
	})
}

func (g *Group) SetTarget(ctx context.Context, description string) error {
	return g.each(ctx, "set target", func(ctx context.Context, a devices.Antenna) error {
		return a.SetTarget(ctx, description)
	})
}

func (g *Group) SetDriveStrategy(ctx context.Context, strategy devices.DriveStrategy) error {
	return g.each(ctx, "set drive strategy", func(ctx context.Context, a devices.Antenna) error {
		return a.SetDriveStrategy(ctx, strategy)
	})
}

// ScanAsym loads the same scan geometry on every member.
func (g *Group) ScanAsym(ctx context.Context, start, end Offset, duration time.Duration) error {
	return g.each(ctx, "load scan", func(ctx context.Context, a devices.Antenna) error {
		return a.ScanAsym(ctx, start.X, start.Y, end.X, end.Y, duration)
	})
}

// WaitLock blocks until every member reports pointing lock. Members that do
// not lock within timeout produce a *LockTimeoutError.
func (g *Group) WaitLock(ctx context.Context, timeout time.Duration) error {
	late, err := g.wait(ctx, devices.SensorLock, devices.LockTrue, timeout)
	if err != nil {
		return err
	}
	if len(late) > 0 {
		return &LockTimeoutError{Antennas: late, Timeout: timeout}
	}
	return nil
}

// WaitScanComplete blocks until every member reports its scan finished.
func (g *Group) WaitScanComplete(ctx context.Context, timeout time.Duration) error {
	late, err := g.wait(ctx, devices.SensorScanStatus, string(devices.ScanAfter), timeout)
	if err != nil {
		return err
	}
	if len(late) > 0 {
		return &ScanTimeoutError{Antennas: late, Timeout: timeout}
	}
	return nil
}

func (g *Group) wait(ctx context.Context, sensor devices.Sensor, want string, timeout time.Duration) ([]string, error) {
	ok := make([]bool, len(g.members))
	var eg errgroup.Group
	for i, a := range g.members {
		eg.Go(func() error {
			reached, err := a.Wait(ctx, sensor, want, timeout)
			if err != nil {
				return fmt.Errorf("%s wait %s: %w", a.Name(), sensor, err)
			}
			ok[i] = reached
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	var late []string
	for i, reached := range ok {
		if !reached {
			late = append(late, g.members[i].Name())
		}
	}
	if len(late) > 0 {
		log.Error().Str("group", g.name).Strs("antennas", late).Str("sensor", string(sensor)).
			Dur("timeout", timeout).Msg("Antennas did not reach expected state")
	}
	return late, nil
}
