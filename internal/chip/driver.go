// Package chip defines the tuner chip-driver contract used by the rest of the
// daemon, the regulatory band table, and the register helpers that keep chip
// register addresses out of the tuning logic.
//
// All driver calls are synchronous and may block on the hardware bus.
package chip

import (
	"fmt"
	"strings"
)

// BlockSize is the size of one raw RDS group as read from the chip:
// four big-endian 16-bit blocks A, B, C, D.
const BlockSize = 8

// Direction is a seek direction.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Driver is the chip-driver interface. Channels are in 10 kHz units
// (101.1 MHz == 10110).
type Driver interface {
	// ReadRegister returns the value of a chip register.
	ReadRegister(addr uint8) (uint8, error)

	// WriteRegister sets a chip register.
	WriteRegister(addr uint8, value uint8) error

	// TuneToChannel tunes the receiver. It does not change the mute state.
	TuneToChannel(ch int) error

	// SeekChannel scans from start toward stop (inclusive) in step
	// increments and returns the first channel whose signal strength is at
	// least minStrength. found is false when the range holds no station or
	// when start already lies beyond stop in the given direction.
	SeekChannel(start, stop, step, minStrength int, dir Direction) (ch int, found bool, err error)

	// SeekAllChannels returns every channel in [start, stop] that reaches
	// minStrength, in ascending order.
	SeekAllChannels(start, stop, step, minStrength int) ([]int, error)

	// EnableMetadata switches the RDS receiver on or off.
	EnableMetadata(on bool) error

	// ReadMetadataBlock reads the most recently received RDS group.
	ReadMetadataBlock() ([BlockSize]byte, error)

	// CurrentChannel returns the channel the receiver is tuned to.
	CurrentChannel() (int, error)

	// SetRegion selects the regulatory band.
	SetRegion(r Region) error
}

// VolumeSetter is implemented by drivers that can drive the output volume.
type VolumeSetter interface {
	SetVolume(level int) error
}

// LEDSetter is implemented by drivers that can drive the status LED.
type LEDSetter interface {
	SetLED(code int) error
}

// Region is a regulatory region.
type Region int

const (
	RegionUS Region = iota
	RegionEurope
	RegionJapan
	RegionChina
)

// Band is a legal tuning range and channel step, all in 10 kHz units.
type Band struct {
	Start int
	Stop  int
	Step  int
}

var bands = map[Region]Band{
	RegionUS:     {Start: 8750, Stop: 10790, Step: 20},
	RegionEurope: {Start: 8750, Stop: 10800, Step: 10},
	RegionJapan:  {Start: 7600, Stop: 9000, Step: 10},
	RegionChina:  {Start: 8750, Stop: 10800, Step: 10},
}

// Band returns the band for r. Unknown regions get the US band.
func (r Region) Band() Band {
	if b, ok := bands[r]; ok {
		return b
	}
	return bands[RegionUS]
}

func (r Region) String() string {
	switch r {
	case RegionUS:
		return "US"
	case RegionEurope:
		return "Europe"
	case RegionJapan:
		return "Japan"
	case RegionChina:
		return "China"
	default:
		return fmt.Sprintf("Region(%d)", int(r))
	}
}

// ParseRegion accepts the names produced by Region.String, case-insensitively,
// plus "usa" and "eu".
func ParseRegion(s string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "us", "usa":
		return RegionUS, nil
	case "europe", "eu":
		return RegionEurope, nil
	case "japan":
		return RegionJapan, nil
	case "china":
		return RegionChina, nil
	}
	return RegionUS, fmt.Errorf("unknown region %q", s)
}

// Contains reports whether ch lies inside the band.
func (b Band) Contains(ch int) bool {
	return ch >= b.Start && ch <= b.Stop
}

// Snap returns the grid channel nearest to ch, clamped to the band.
func (b Band) Snap(ch int) int {
	if b.Step <= 0 {
		return ch
	}
	if ch <= b.Start {
		return b.Start
	}
	steps := (ch - b.Start + b.Step/2) / b.Step
	snapped := b.Start + steps*b.Step
	for snapped > b.Stop {
		snapped -= b.Step
	}
	return snapped
}

// Last returns the highest grid channel inside the band.
func (b Band) Last() int {
	return b.Snap(b.Stop)
}
