package rds

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/metrics"
)

// Defaults of the polling loop. Up to 50.4 groups per second are possible, so
// a 20 ms poll never misses a toggle.
const (
	DefaultPollInterval      = 20 * time.Millisecond
	DefaultPollLimit         = 100
	DefaultMismatchThreshold = 10
)

// Options configures a Worker. Zero fields take the defaults.
type Options struct {
	PollInterval      time.Duration
	PollLimit         int
	MismatchThreshold int
	Metrics           *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollLimit <= 0 {
		o.PollLimit = DefaultPollLimit
	}
	if o.MismatchThreshold <= 0 {
		o.MismatchThreshold = DefaultMismatchThreshold
	}
	return o
}

// Worker polls the chip for RDS groups and publishes the decoded snapshot into
// the device context. It is the only writer of that snapshot.
type Worker struct {
	dev    *device.Context
	driver chip.Driver
	opts   Options
}

// NewWorker creates a worker. Run starts it.
func NewWorker(dev *device.Context, driver chip.Driver, opts Options) *Worker {
	return &Worker{dev: dev, driver: driver, opts: opts.withDefaults()}
}

// Run enables the RDS receiver and decodes groups until ctx is cancelled. It
// returns nil on cancellation and an error only when the chip fails.
func (w *Worker) Run(ctx context.Context) error {
	if w.dev == nil || w.driver == nil {
		return fmt.Errorf("rds worker not configured: %w", device.ErrInvalidParameter)
	}

	if err := w.driver.EnableMetadata(true); err != nil {
		return fmt.Errorf("enable rds: %w: %w", device.ErrDeviceFailure, err)
	}
	defer func() {
		if err := w.driver.EnableMetadata(false); err != nil {
			log.Printf("RDS: failed to disable receiver: %v", err)
		}
		w.dev.ResetRDS()
		log.Printf("RDS: worker stopped")
	}()
	log.Printf("RDS: worker started")

	last, err := chip.RDSToggle(w.driver)
	if err != nil {
		return fmt.Errorf("%w: %w", device.ErrDeviceFailure, err)
	}

	var state State
	deb := newDebouncer(w.opts.MismatchThreshold)

	for {
		if ctx.Err() != nil {
			return nil
		}

		toggled, err := w.waitToggle(ctx, &last)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("%w: %w", device.ErrDeviceFailure, err)
		}
		if !toggled {
			// Nothing for PollLimit polls: most likely a station without RDS.
			state = State{}
			deb.reset()
			w.dev.ResetRDS()
			w.opts.Metrics.RecordRDSTimeout()
			continue
		}

		group, err := w.driver.ReadMetadataBlock()
		if err != nil {
			return fmt.Errorf("read rds group: %w: %w", device.ErrDeviceFailure, err)
		}
		state.Decode(group)
		w.opts.Metrics.RecordRDSGroup()

		switch deb.observe(state.Callsign()) {
		case verdictChanged:
			// Start over with the group that belongs to the new station.
			state = State{}
			state.Decode(group)
			w.dev.ResetRDS()
			w.opts.Metrics.RecordStationChange()
			log.Printf("RDS: station changed to %s", state.Callsign())
			w.dev.StoreRDS(state.Snapshot())
		case verdictPending:
			snap := state.Snapshot()
			snap.Callsign = deb.accepted
			w.dev.StoreRDS(snap)
		default:
			w.dev.StoreRDS(state.Snapshot())
		}
	}
}

// waitToggle polls the update flag until it differs from *last. It returns
// false when PollLimit polls pass without a change.
func (w *Worker) waitToggle(ctx context.Context, last *bool) (bool, error) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for i := 0; i < w.opts.PollLimit; i++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		cur, err := chip.RDSToggle(w.driver)
		if err != nil {
			return false, err
		}
		if cur != *last {
			*last = cur
			return true, nil
		}
	}
	return false, nil
}

type verdict int

const (
	verdictSame verdict = iota
	verdictPending
	verdictChanged
)

// debouncer suppresses single corrupted groups: a different callsign is
// accepted only after it has been seen more than threshold times in a row.
type debouncer struct {
	threshold  int
	baseline   uint32
	accepted   string
	hasBase    bool
	mismatches int
}

func newDebouncer(threshold int) *debouncer {
	return &debouncer{threshold: threshold}
}

func hashCallsign(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (d *debouncer) observe(callsign string) verdict {
	h := hashCallsign(callsign)
	if !d.hasBase {
		d.baseline, d.accepted, d.hasBase = h, callsign, true
		return verdictSame
	}
	if h == d.baseline {
		d.mismatches = 0
		return verdictSame
	}

	d.mismatches++
	if d.mismatches > d.threshold {
		d.baseline, d.accepted = h, callsign
		d.mismatches = 0
		return verdictChanged
	}
	return verdictPending
}

func (d *debouncer) reset() {
	*d = debouncer{threshold: d.threshold}
}
