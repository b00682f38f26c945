// Package tuner orchestrates the chip driver: tuning, seeking with wrap-around,
// station-list scans and the optional volume and LED extensions.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/metrics"
)

// Legal FM broadcast range accepted by TuneTo, in MHz.
const (
	MinMHz = 87.5
	MaxMHz = 108.0
)

// Limits of the extension settings.
const (
	MaxVolume = 15
	MaxLED    = 7
)

// Options configures a Controller.
type Options struct {
	Region chip.Region

	// EnableVolume and EnableLED allow the controller to forward the values to
	// drivers implementing chip.VolumeSetter / chip.LEDSetter.
	EnableVolume bool
	EnableLED    bool

	Metrics *metrics.Metrics
}

// Controller serializes multi-step driver sequences against the device
// context. Driver implementations must be safe for concurrent use because the
// RDS worker polls registers independently.
type Controller struct {
	mu     sync.Mutex
	dev    *device.Context
	driver chip.Driver
	region chip.Region
	opts   Options
}

// New creates a controller. It does not touch the hardware; call Initialize.
func New(dev *device.Context, driver chip.Driver, opts Options) *Controller {
	return &Controller{
		dev:    dev,
		driver: driver,
		region: opts.Region,
		opts:   opts,
	}
}

func (c *Controller) check() error {
	if c == nil || c.dev == nil || c.driver == nil {
		return fmt.Errorf("tuner not configured: %w", device.ErrInvalidParameter)
	}
	return nil
}

func (c *Controller) requireInitialized() error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.dev.Initialized() {
		return fmt.Errorf("tuner not initialized: %w", device.ErrInvalidState)
	}
	return nil
}

func deviceFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, device.ErrDeviceFailure, err)
}

// Region returns the configured regulatory region.
func (c *Controller) Region() chip.Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

// Band returns the band of the configured region.
func (c *Controller) Band() chip.Band {
	return c.Region().Band()
}

// Initialize selects the region, moves the stored frequency onto the band
// grid, scans the band and marks the device initialized.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.applyRegion(c.region)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := c.RefreshStationList(ctx); err != nil {
		return err
	}

	c.dev.SetInitialized(true)
	log.Printf("Tuner: initialized, region %s, %.2f MHz, %d stations",
		c.Region(), float64(c.dev.Frequency())/100, c.dev.Stations().Len())
	return nil
}

// applyRegion programs the region and re-tunes onto its grid. Caller holds mu.
func (c *Controller) applyRegion(r chip.Region) error {
	if err := c.driver.SetRegion(r); err != nil {
		return deviceFailure("set region", err)
	}
	c.region = r

	band := r.Band()
	ch := band.Snap(c.dev.Frequency())
	if err := c.driver.TuneToChannel(ch); err != nil {
		return deviceFailure("tune", err)
	}
	c.dev.SetFrequency(ch)
	c.opts.Metrics.SetFrequency(ch)
	return nil
}

// SetRegion switches the regulatory region at runtime and rescans the band.
func (c *Controller) SetRegion(ctx context.Context, r chip.Region) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.applyRegion(r)
	c.mu.Unlock()
	c.opts.Metrics.RecordTunerOp("region", err)
	if err != nil {
		return err
	}
	return c.RefreshStationList(ctx)
}

// TuneTo tunes to mhz. The value must lie in the broadcast range and in the
// configured band; it is snapped to the nearest channel of the band grid.
// The stored frequency is left unchanged on any failure.
func (c *Controller) TuneTo(mhz float64) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}

	err := c.tuneTo(mhz)
	c.opts.Metrics.RecordTunerOp("tune", err)
	return err
}

func (c *Controller) tuneTo(mhz float64) error {
	if math.IsNaN(mhz) || mhz < MinMHz || mhz > MaxMHz {
		return fmt.Errorf("frequency %.2f MHz: %w", mhz, device.ErrOutOfRange)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	band := c.region.Band()
	ch := int(math.Round(mhz * 100))
	if !band.Contains(ch) {
		return fmt.Errorf("frequency %.2f MHz outside %s band: %w", mhz, c.region, device.ErrOutOfRange)
	}
	return c.tune(band.Snap(ch))
}

// tune issues the tune command, unmutes and records the channel. Caller holds mu.
func (c *Controller) tune(ch int) error {
	if err := c.driver.TuneToChannel(ch); err != nil {
		return deviceFailure("tune", err)
	}
	if err := chip.SetMute(c.driver, false); err != nil {
		return deviceFailure("unmute", err)
	}
	c.dev.SetFrequency(ch)
	c.opts.Metrics.SetFrequency(ch)
	return nil
}

// Seek looks for the next channel in dir whose strength reaches minStrength.
// When the band edge is reached the scan wraps to the opposite edge and
// continues up to the starting channel. Without a hit the receiver stays where
// it was. The resulting channel is returned.
func (c *Controller) Seek(dir chip.Direction, minStrength int) (int, error) {
	if err := c.requireInitialized(); err != nil {
		return 0, err
	}

	ch, err := c.seek(dir, minStrength)
	c.opts.Metrics.RecordTunerOp("seek", err)
	return ch, err
}

func (c *Controller) seek(dir chip.Direction, minStrength int) (int, error) {
	if minStrength < 0 || minStrength > chip.SeekThresholdMax {
		return 0, fmt.Errorf("seek threshold %d: %w", minStrength, device.ErrOutOfRange)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dev.SetSeekThreshold(minStrength)
	start := c.dev.Frequency()

	if err := chip.SetMute(c.driver, true); err != nil {
		return start, deviceFailure("mute", err)
	}

	ch, err := c.scan(start, dir, minStrength)
	if err != nil {
		// Leave the receiver on the channel it started from.
		if terr := c.tune(start); terr != nil {
			log.Printf("Tuner: failed to restore %d after seek error: %v", start, terr)
		}
		return start, deviceFailure("seek", err)
	}

	if err := c.tune(ch); err != nil {
		return c.dev.Frequency(), err
	}
	return ch, nil
}

// scan runs the two seek legs and returns start when neither finds a station.
func (c *Controller) scan(start int, dir chip.Direction, minStrength int) (int, error) {
	band := c.region.Band()
	last := band.Last()

	var first, wrap [2]int
	if dir == chip.Up {
		first = [2]int{start + band.Step, last}
		wrap = [2]int{band.Start, start}
	} else {
		first = [2]int{start - band.Step, band.Start}
		wrap = [2]int{last, start}
	}

	ch, found, err := c.driver.SeekChannel(first[0], first[1], band.Step, minStrength, dir)
	if err != nil {
		return 0, err
	}
	if found {
		return ch, nil
	}

	ch, found, err = c.driver.SeekChannel(wrap[0], wrap[1], band.Step, minStrength, dir)
	if err != nil {
		return 0, err
	}
	if found {
		return ch, nil
	}
	return start, nil
}

// RefreshStationList scans the whole band and publishes the result in one
// step. The tuned channel and the mute state are restored afterwards, also
// when the scan fails.
func (c *Controller) RefreshStationList(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.refresh()
	c.mu.Unlock()

	c.opts.Metrics.RecordTunerOp("refresh", err)
	return err
}

func (c *Controller) refresh() error {
	band := c.region.Band()
	saved := c.dev.Frequency()

	mute, err := chip.ReadMuteState(c.driver)
	if err != nil {
		return deviceFailure("refresh", err)
	}

	channels, scanErr := c.driver.SeekAllChannels(band.Start, band.Last(), band.Step, 0)
	if scanErr == nil {
		c.dev.ReplaceStations(channels)
	}

	var errs []error
	if scanErr != nil {
		errs = append(errs, deviceFailure("scan", scanErr))
	}
	if err := c.driver.TuneToChannel(saved); err != nil {
		errs = append(errs, deviceFailure("retune", err))
	}
	if err := chip.RestoreMuteState(c.driver, mute); err != nil {
		errs = append(errs, deviceFailure("restore mute", err))
	}
	return errors.Join(errs...)
}

// SetVolume validates and records the output volume.
func (c *Controller) SetVolume(level int) error {
	if err := c.check(); err != nil {
		return err
	}
	if level < 0 || level > MaxVolume {
		return fmt.Errorf("volume %d: %w", level, device.ErrOutOfRange)
	}

	c.dev.SetVolume(level)
	if !c.opts.EnableVolume {
		return nil
	}
	vs, ok := c.driver.(chip.VolumeSetter)
	if !ok {
		return nil
	}
	err := vs.SetVolume(level)
	c.opts.Metrics.RecordTunerOp("volume", err)
	if err != nil {
		return deviceFailure("volume", err)
	}
	return nil
}

// SetLED validates and records the LED code.
func (c *Controller) SetLED(code int) error {
	if err := c.check(); err != nil {
		return err
	}
	if code < 0 || code > MaxLED {
		return fmt.Errorf("led %d: %w", code, device.ErrOutOfRange)
	}

	c.dev.SetLED(code)
	if !c.opts.EnableLED {
		return nil
	}
	ls, ok := c.driver.(chip.LEDSetter)
	if !ok {
		return nil
	}
	err := ls.SetLED(code)
	c.opts.Metrics.RecordTunerOp("led", err)
	if err != nil {
		return deviceFailure("led", err)
	}
	return nil
}

// Signal reads the strength and stereo indication of the current channel.
func (c *Controller) Signal() (chip.Signal, error) {
	if err := c.check(); err != nil {
		return chip.Signal{}, err
	}
	sig, err := chip.ReadSignal(c.driver)
	if err != nil {
		return chip.Signal{}, deviceFailure("signal", err)
	}
	return sig, nil
}

// Driver returns the underlying driver, for the RDS worker.
func (c *Controller) Driver() chip.Driver {
	return c.driver
}
