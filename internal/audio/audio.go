// Package audio moves live PCM from the tuner's capture device to the local
// playback device. Backends plug in through Opener.
package audio

import (
	"errors"
	"time"
)

// Stream format of the passthrough.
const (
	SampleRate     = 44100
	Channels       = 2
	BufferTime     = 50 * time.Millisecond
	LowWaterTime   = 10 * time.Millisecond
	IdleSleep      = 5 * time.Millisecond
	BufferFrames   = SampleRate * int(BufferTime/time.Millisecond) / 1000
	LowWaterFrames = SampleRate * int(LowWaterTime/time.Millisecond) / 1000
)

// Recoverable stream conditions. Streams wrap them so callers can test with
// errors.Is; any other error is fatal for the worker.
var (
	ErrOverrun  = errors.New("audio overrun")
	ErrUnderrun = errors.New("audio underrun")
)

// Format describes an interleaved int16 stream.
type Format struct {
	SampleRate   int
	Channels     int
	BufferFrames int
}

// DefaultFormat is 44.1 kHz stereo with 50 ms of buffering.
func DefaultFormat() Format {
	return Format{SampleRate: SampleRate, Channels: Channels, BufferFrames: BufferFrames}
}

// Frames converts a duration to a frame count at the format's rate.
func (f Format) Frames(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// Duration converts a frame count to time.
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Stream is one direction of an opened audio device. Frame counts exclude
// channels; buffers passed to Read and Write hold frames*Channels samples.
type Stream interface {
	// Available returns how many frames can be read or written without
	// blocking.
	Available() (int, error)

	// Read fills buf and returns the number of frames read.
	Read(buf []int16) (int, error)

	// Write plays buf and returns the number of frames accepted.
	Write(buf []int16) (int, error)

	// Reset recovers the stream after ErrOverrun or ErrUnderrun.
	Reset() error

	Close() error
}

// Opener opens the capture and playback sides of the passthrough.
type Opener interface {
	OpenCapture(f Format) (Stream, error)
	OpenPlayback(f Format) (Stream, error)
}
