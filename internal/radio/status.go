package radio

import (
	"context"
	"fmt"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
)

// Status is a point-in-time copy of everything the renderers show.
type Status struct {
	Frequency     int // 10 kHz units
	Signal        chip.Signal
	Region        chip.Region
	Band          chip.Band
	SeekThreshold int

	Power     bool
	RDSActive bool
	RDS       device.RDSSnapshot

	Volume int
	LED    int
	Locked bool
	Key    int

	Stations []int
}

// Status collects a consistent snapshot. The RDS part is copied under the
// snapshot lock and is empty unless the RDS worker is running.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if !e.dev.Initialized() {
		return Status{}, fmt.Errorf("status: %w", device.ErrInvalidState)
	}

	sig, err := e.tuner.Signal()
	if err != nil {
		return Status{}, err
	}
	snap, active := e.dev.RDS()
	region := e.tuner.Region()

	return Status{
		Frequency:     e.dev.Frequency(),
		Signal:        sig,
		Region:        region,
		Band:          region.Band(),
		SeekThreshold: e.dev.SeekThreshold(),
		Power:         e.dev.PowerRunning(),
		RDSActive:     active,
		RDS:           snap,
		Volume:        e.dev.Volume(),
		LED:           e.dev.LED(),
		Locked:        e.dev.Locked(),
		Key:           e.dev.Key(),
		Stations:      e.dev.Stations().Channels(),
	}, nil
}
