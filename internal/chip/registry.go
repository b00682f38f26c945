package chip

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Factory creates a driver for the given region.
type Factory func(region Region) (Driver, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a driver available under name. Registering the same name
// twice replaces the earlier factory.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open creates a driver by name.
func Open(name string, region Region) (Driver, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver %q (available: %v)", name, Drivers())
	}
	return f(region)
}

// Drivers lists the registered driver names.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DemoStations is the band the "simulator" driver receives.
func DemoStations() []SimStation {
	return []SimStation{
		{Channel: 8810, Strength: 140, RDS: &StationInfo{PI: 0x1870, PTY: 3, PS: "KDFC", Radiotext: "Classical music all day"}},
		{Channel: 8850, Strength: 96, Mono: true},
		{Channel: 9490, Strength: 180, RDS: &StationInfo{PI: 0x381e, PTY: 4, PS: "KPFA", Radiotext: "News & <views> from \"Berkeley\""}},
		{Channel: 10110, Strength: 210, RDS: &StationInfo{PI: 0x2694, PTY: 10, PS: "KIOI", Radiotext: "Today's best hits"}},
		{Channel: 10450, Strength: 60},
		{Channel: 10690, Strength: 120, RDS: &StationInfo{PI: 0x13d9, PTY: 1, PS: "KBLX"}},
	}
}

func init() {
	Register("simulator", func(region Region) (Driver, error) {
		return NewSimulator(SimOptions{
			Region:      region,
			Stations:    DemoStations(),
			RDSInterval: 80 * time.Millisecond,
		}), nil
	})
}
