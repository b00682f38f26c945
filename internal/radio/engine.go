// Package radio ties the device context, the tuner controller and the two
// background workers together behind one facade used by the front ends.
package radio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/fmradiod/internal/audio"
	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/metrics"
	"github.com/fmradiod/internal/rds"
	"github.com/fmradiod/internal/tuner"
)

// Worker names used in logs and metrics.
const (
	WorkerAudio = "audio"
	WorkerRDS   = "rds"
)

// Options configures an Engine.
type Options struct {
	Tuner   tuner.Options
	RDS     rds.Options
	Audio   audio.Options
	Opener  audio.Opener
	Metrics *metrics.Metrics
}

// Engine owns the device context and the worker lifecycles. Worker start and
// stop requests are serialized; the running flags in the device context are
// flipped with compare-and-swap so a flag and its worker never disagree.
type Engine struct {
	dev     *device.Context
	tuner   *tuner.Controller
	driver  chip.Driver
	opts    Options
	metrics *metrics.Metrics

	lifeMu sync.Mutex // serializes SetPower, SetRDS and Close
	closed bool       // set by Close; guarded by lifeMu

	taskMu    sync.Mutex
	audioTask *task
	rdsTask   *task
}

// task is a joinable, cancellable worker goroutine.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (t *task) stop() error {
	t.cancel()
	<-t.done
	return t.err
}

// New creates an engine for driver. The device starts at the bottom of the
// configured band; call Initialize before use.
func New(driver chip.Driver, opts Options) *Engine {
	opts.Tuner.Metrics = opts.Metrics
	opts.RDS.Metrics = opts.Metrics
	opts.Audio.Metrics = opts.Metrics

	dev := device.NewContext(opts.Tuner.Region.Band().Start)
	return &Engine{
		dev:     dev,
		tuner:   tuner.New(dev, driver, opts.Tuner),
		driver:  driver,
		opts:    opts,
		metrics: opts.Metrics,
	}
}

// Device exposes the shared context.
func (e *Engine) Device() *device.Context { return e.dev }

// Initialize prepares the tuner and scans the band.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.tuner.Initialize(ctx)
}

func (e *Engine) TuneTo(mhz float64) error { return e.tuner.TuneTo(mhz) }

func (e *Engine) Seek(dir chip.Direction, minStrength int) (int, error) {
	return e.tuner.Seek(dir, minStrength)
}

func (e *Engine) SetRegion(ctx context.Context, r chip.Region) error {
	return e.tuner.SetRegion(ctx, r)
}

func (e *Engine) RefreshStationList(ctx context.Context) error {
	return e.tuner.RefreshStationList(ctx)
}

func (e *Engine) SetVolume(level int) error { return e.tuner.SetVolume(level) }
func (e *Engine) SetLED(code int) error     { return e.tuner.SetLED(code) }

// SetLocked and SetKey store the UI lock state. The daemon does not act on it.
func (e *Engine) SetLocked(locked bool) { e.dev.SetLocked(locked) }
func (e *Engine) SetKey(key int)        { e.dev.SetKey(key) }

// SetPower starts or stops the audio passthrough. Powering off also stops the
// RDS worker. Repeated calls with the same value are no-ops.
func (e *Engine) SetPower(on bool) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if on {
		if e.closed {
			return fmt.Errorf("audio: engine closed: %w", device.ErrInvalidState)
		}
		if !e.dev.ClaimPower(true) {
			return nil
		}
		if e.opts.Opener == nil {
			e.dev.ClaimPower(false)
			return fmt.Errorf("no audio backend: %w", device.ErrInvalidState)
		}
		p := audio.NewPassthrough(e.opts.Opener, e.opts.Audio)
		e.start(WorkerAudio, &e.audioTask, p.Run, func() bool { return e.dev.ClaimPower(false) })
		return nil
	}

	if !e.dev.ClaimPower(false) {
		return nil
	}
	err := e.join(WorkerAudio, &e.audioTask)
	if rerr := e.stopRDS(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// SetRDS starts or stops the RDS worker.
func (e *Engine) SetRDS(on bool) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if on {
		if e.closed {
			return fmt.Errorf("rds: engine closed: %w", device.ErrInvalidState)
		}
		if !e.dev.ClaimRDS(true) {
			return nil
		}
		w := rds.NewWorker(e.dev, e.driver, e.opts.RDS)
		e.start(WorkerRDS, &e.rdsTask, w.Run, func() bool { return e.dev.ClaimRDS(false) })
		return nil
	}
	return e.stopRDS()
}

// stopRDS is SetRDS(false) without the lifecycle lock. Caller holds lifeMu.
func (e *Engine) stopRDS() error {
	if !e.dev.ClaimRDS(false) {
		return nil
	}
	return e.join(WorkerRDS, &e.rdsTask)
}

// start launches run as the task stored in slot. When the worker returns on
// its own, release clears its running flag so it can be started again.
func (e *Engine) start(name string, slot **task, run func(context.Context) error, release func() bool) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	e.taskMu.Lock()
	*slot = t
	e.taskMu.Unlock()

	e.metrics.SetWorkerRunning(name, true)
	go func() {
		defer close(t.done)
		t.err = run(ctx)

		e.taskMu.Lock()
		defer e.taskMu.Unlock()
		if *slot != t {
			// Stopped through join.
			return
		}
		*slot = nil
		release()
		e.metrics.SetWorkerRunning(name, false)
		if t.err != nil {
			log.Printf("Engine: %s worker failed: %v", name, t.err)
		}
	}()
	log.Printf("Engine: %s worker started", name)
}

// join cancels the task in slot and waits for it to return.
func (e *Engine) join(name string, slot **task) error {
	e.taskMu.Lock()
	t := *slot
	*slot = nil
	e.taskMu.Unlock()

	if t == nil {
		return nil
	}
	err := t.stop()
	e.metrics.SetWorkerRunning(name, false)
	log.Printf("Engine: %s worker stopped", name)
	return err
}

// Running reports whether a worker goroutine is currently alive.
func (e *Engine) Running(name string) bool {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	switch name {
	case WorkerAudio:
		return e.audioTask != nil
	case WorkerRDS:
		return e.rdsTask != nil
	}
	return false
}

// Close stops audio first, then RDS, and waits for both. Later requests to
// start either worker fail with ErrInvalidState.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.closed = true
	var errs []error
	if e.dev.ClaimPower(false) {
		errs = append(errs, e.join(WorkerAudio, &e.audioTask))
	}
	errs = append(errs, e.stopRDS())
	return errors.Join(errs...)
}
