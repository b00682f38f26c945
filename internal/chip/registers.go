package chip

import (
	"fmt"
)

// Register map of the QN80xx family. Only this package refers to addresses.
const (
	RegSystem  uint8 = 0x00
	RegStatus1 uint8 = 0x04
	RegRSSI    uint8 = 0x05
	RegStatus3 uint8 = 0x1a
	RegPD2     uint8 = 0x49
)

const (
	pd2Mute   uint8 = 0x0c
	pd2Unmute uint8 = 0x00

	status1Mono  uint8 = 0x01 // inverted: clear means stereo
	status3RDSUp uint8 = 0x80
)

// Signal levels reported by RegRSSI.
const (
	SignalMax          = 256
	SeekThresholdMax   = 255
	TunedSignalMinimum = 85
)

// MuteState is an opaque copy of the mute register, used to restore the exact
// previous state after a scan.
type MuteState uint8

// Muted reports whether the saved state was muted.
func (s MuteState) Muted() bool {
	return uint8(s)&pd2Mute == pd2Mute
}

// SetMute mutes or unmutes the audio output.
func SetMute(d Driver, muted bool) error {
	v := pd2Unmute
	if muted {
		v = pd2Mute
	}
	if err := d.WriteRegister(RegPD2, v); err != nil {
		return fmt.Errorf("write mute register: %w", err)
	}
	return nil
}

// ReadMuteState captures the mute register.
func ReadMuteState(d Driver) (MuteState, error) {
	v, err := d.ReadRegister(RegPD2)
	if err != nil {
		return 0, fmt.Errorf("read mute register: %w", err)
	}
	return MuteState(v), nil
}

// RestoreMuteState writes back a state captured by ReadMuteState.
func RestoreMuteState(d Driver, s MuteState) error {
	if err := d.WriteRegister(RegPD2, uint8(s)); err != nil {
		return fmt.Errorf("restore mute register: %w", err)
	}
	return nil
}

// Signal is the receiver's view of the current channel.
type Signal struct {
	Strength int
	Stereo   bool
}

// Tuned reports whether the signal is strong enough to count as a station.
func (s Signal) Tuned() bool {
	return s.Strength > TunedSignalMinimum
}

// ReadSignal reads strength and stereo indication.
func ReadSignal(d Driver) (Signal, error) {
	status, err := d.ReadRegister(RegStatus1)
	if err != nil {
		return Signal{}, fmt.Errorf("read status register: %w", err)
	}
	rssi, err := d.ReadRegister(RegRSSI)
	if err != nil {
		return Signal{}, fmt.Errorf("read rssi register: %w", err)
	}
	return Signal{
		Strength: int(rssi),
		Stereo:   status&status1Mono == 0,
	}, nil
}

// RDSToggle returns the RDS update flag. The chip flips it every time a new
// group has been received.
func RDSToggle(d Driver) (bool, error) {
	v, err := d.ReadRegister(RegStatus3)
	if err != nil {
		return false, fmt.Errorf("read rds status: %w", err)
	}
	return v&status3RDSUp != 0, nil
}
