// Package device holds the process-lifetime state shared by the tuner, the
// background workers and the request handlers.
package device

import (
	"sync"
	"sync/atomic"
)

// Context is the shared device state. Scalar fields are atomics so request
// workers and background workers can read them without extra locking; the
// RDS snapshot has its own mutex and the station list is swapped whole.
type Context struct {
	frequency     atomic.Int32 // 10 kHz units
	volume        atomic.Int32
	led           atomic.Int32
	seekThreshold atomic.Int32

	initialized  atomic.Bool
	powerRunning atomic.Bool
	rdsRunning   atomic.Bool
	lockLocked   atomic.Bool
	lockKey      atomic.Int32

	rdsMu sync.Mutex
	rds   RDSSnapshot

	stations atomic.Pointer[StationList]
}

// NewContext creates a context tuned to frequency (10 kHz units) with an
// empty station list.
func NewContext(frequency int) *Context {
	c := &Context{}
	c.frequency.Store(int32(frequency))
	c.stations.Store(&StationList{})
	return c
}

// Frequency returns the current channel in 10 kHz units.
func (c *Context) Frequency() int { return int(c.frequency.Load()) }

// SetFrequency records the current channel.
func (c *Context) SetFrequency(ch int) { c.frequency.Store(int32(ch)) }

func (c *Context) Volume() int     { return int(c.volume.Load()) }
func (c *Context) SetVolume(v int) { c.volume.Store(int32(v)) }

func (c *Context) LED() int        { return int(c.led.Load()) }
func (c *Context) SetLED(code int) { c.led.Store(int32(code)) }

// SeekThreshold is the minimum strength used by the most recent seek.
func (c *Context) SeekThreshold() int     { return int(c.seekThreshold.Load()) }
func (c *Context) SetSeekThreshold(s int) { c.seekThreshold.Store(int32(s)) }

func (c *Context) Initialized() bool     { return c.initialized.Load() }
func (c *Context) SetInitialized(v bool) { c.initialized.Store(v) }

func (c *Context) PowerRunning() bool { return c.powerRunning.Load() }
func (c *Context) RDSRunning() bool   { return c.rdsRunning.Load() }

// ClaimPower flips powerRunning from !on to on. It returns false when the flag
// already had that value, so only one caller wins a start or a stop.
func (c *Context) ClaimPower(on bool) bool {
	return c.powerRunning.CompareAndSwap(!on, on)
}

// ClaimRDS is ClaimPower for the RDS worker flag.
func (c *Context) ClaimRDS(on bool) bool {
	return c.rdsRunning.CompareAndSwap(!on, on)
}

func (c *Context) Locked() bool     { return c.lockLocked.Load() }
func (c *Context) SetLocked(v bool) { c.lockLocked.Store(v) }
func (c *Context) Key() int         { return int(c.lockKey.Load()) }
func (c *Context) SetKey(k int)     { c.lockKey.Store(int32(k)) }

// Stations returns the current station list. The returned value is never
// mutated after publication.
func (c *Context) Stations() StationList {
	if l := c.stations.Load(); l != nil {
		return *l
	}
	return StationList{}
}

// ReplaceStations publishes a freshly scanned list in one step.
func (c *Context) ReplaceStations(channels []int) {
	l := NewStationList(channels)
	c.stations.Store(&l)
}
