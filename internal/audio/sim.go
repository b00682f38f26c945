package audio

import (
	"errors"
	"math"
	"sync"
	"time"
)

var errClosed = errors.New("audio: stream closed")

// SimOpener produces clock-driven in-memory streams: capture generates a sine
// tone in real time and playback drains in real time. It lets the daemon run
// without sound hardware.
type SimOpener struct {
	mu       sync.Mutex
	toneHz   float64
	captured int64
	played   int64
}

// NewSimOpener creates an opener whose capture side plays a tone of toneHz.
func NewSimOpener(toneHz float64) *SimOpener {
	return &SimOpener{toneHz: toneHz}
}

// Captured returns the total number of frames read from simulated captures.
func (o *SimOpener) Captured() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.captured
}

// Played returns the total number of frames accepted by simulated playbacks.
func (o *SimOpener) Played() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.played
}

func (o *SimOpener) OpenCapture(f Format) (Stream, error) {
	return &simCapture{o: o, f: f, last: time.Now()}, nil
}

func (o *SimOpener) OpenPlayback(f Format) (Stream, error) {
	return &simPlayback{o: o, f: f, at: time.Now()}, nil
}

// simCapture holds the frames that arrived since the last read. More than one
// buffer of unread frames is an overrun.
type simCapture struct {
	mu     sync.Mutex
	o      *SimOpener
	f      Format
	last   time.Time
	phase  float64
	closed bool
}

func (s *simCapture) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}
	n := s.f.Frames(time.Since(s.last))
	if n > s.f.BufferFrames {
		return 0, ErrOverrun
	}
	return n, nil
}

func (s *simCapture) Read(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}
	frames := len(buf) / s.f.Channels
	step := 2 * math.Pi * s.o.toneHz / float64(s.f.SampleRate)
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(s.phase) * 8000)
		for c := 0; c < s.f.Channels; c++ {
			buf[i*s.f.Channels+c] = v
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}
	s.last = s.last.Add(s.f.Duration(frames))

	s.o.mu.Lock()
	s.o.captured += int64(frames)
	s.o.mu.Unlock()
	return frames, nil
}

func (s *simCapture) Write([]int16) (int, error) {
	return 0, errors.New("audio: capture stream is read-only")
}

func (s *simCapture) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = time.Now()
	return nil
}

func (s *simCapture) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// simPlayback queues written frames and drains them at the sample rate. It
// reports an underrun once it has starved for more than half a buffer.
type simPlayback struct {
	mu      sync.Mutex
	o       *SimOpener
	f       Format
	queued  int
	at      time.Time
	started bool
	starved bool
	closed  bool
}

// drain advances the queue to now. Caller holds mu.
func (s *simPlayback) drain() {
	now := time.Now()
	elapsed := s.f.Frames(now.Sub(s.at))
	if elapsed <= 0 {
		return
	}
	if s.started && elapsed-s.queued > s.f.BufferFrames/2 {
		s.starved = true
	}
	s.queued = max(0, s.queued-elapsed)
	s.at = now
}

func (s *simPlayback) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}
	s.drain()
	if s.starved {
		return 0, ErrUnderrun
	}
	return s.f.BufferFrames - s.queued, nil
}

func (s *simPlayback) Read([]int16) (int, error) {
	return 0, errors.New("audio: playback stream is write-only")
}

func (s *simPlayback) Write(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}
	s.drain()
	if s.starved {
		return 0, ErrUnderrun
	}
	n := min(len(buf)/s.f.Channels, s.f.BufferFrames-s.queued)
	s.queued += n
	s.started = true

	s.o.mu.Lock()
	s.o.played += int64(n)
	s.o.mu.Unlock()
	return n, nil
}

func (s *simPlayback) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = 0
	s.at = time.Now()
	s.started = false
	s.starved = false
	return nil
}

func (s *simPlayback) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
