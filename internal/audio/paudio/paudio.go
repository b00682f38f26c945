// Package paudio provides PortAudio blocking-mode streams for the audio
// passthrough. It is kept apart from package audio so that only binaries
// which select it link against the C library.
package paudio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/fmradiod/internal/audio"
)

// Options selects devices by name. An empty name means the host default.
type Options struct {
	CaptureDevice  string
	PlaybackDevice string

	// FramesPerBuffer is the PortAudio transfer size. Zero means 441 frames.
	FramesPerBuffer int
}

// Opener opens PortAudio streams.
type Opener struct {
	opts Options
}

// NewOpener creates an opener. PortAudio is initialized per stream.
func NewOpener(opts Options) *Opener {
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = audio.LowWaterFrames
	}
	return &Opener{opts: opts}
}

func (o *Opener) OpenCapture(f audio.Format) (audio.Stream, error) {
	return o.open(f, true)
}

func (o *Opener) OpenPlayback(f audio.Format) (audio.Stream, error) {
	return o.open(f, false)
}

func (o *Opener) open(f audio.Format, input bool) (audio.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := findDevice(o.deviceName(input), input)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	var params portaudio.StreamParameters
	if input {
		params = portaudio.HighLatencyParameters(dev, nil)
		params.Input.Channels = f.Channels
		params.Input.Latency = f.Duration(f.BufferFrames)
	} else {
		params = portaudio.HighLatencyParameters(nil, dev)
		params.Output.Channels = f.Channels
		params.Output.Latency = f.Duration(f.BufferFrames)
	}
	params.SampleRate = float64(f.SampleRate)
	params.FramesPerBuffer = o.opts.FramesPerBuffer

	buf := make([]int16, o.opts.FramesPerBuffer*f.Channels)
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open %s on %s: %w", direction(input), dev.Name, err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start %s on %s: %w", direction(input), dev.Name, err)
	}

	return &stream{s: s, buf: buf, input: input, channels: f.Channels}, nil
}

func (o *Opener) deviceName(input bool) string {
	if input {
		return o.opts.CaptureDevice
	}
	return o.opts.PlaybackDevice
}

func direction(input bool) string {
	if input {
		return "capture"
	}
	return "playback"
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get device list: %w", err)
	}
	for _, d := range devices {
		if !strings.Contains(d.Name, name) {
			continue
		}
		if input && d.MaxInputChannels > 0 || !input && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no %s device matching %q", direction(input), name)
}

// stream adapts a fixed-size PortAudio blocking stream to arbitrary read and
// write sizes. Capture keeps the unread tail of the last transfer; playback
// keeps the samples that did not fill a whole transfer yet.
type stream struct {
	s        *portaudio.Stream
	buf      []int16
	input    bool
	channels int

	rest    []int16 // capture: received, not yet returned
	pending int     // playback: samples already staged in buf
}

func mapError(err error) error {
	switch {
	case errors.Is(err, portaudio.InputOverflowed):
		return fmt.Errorf("%w: %v", audio.ErrOverrun, err)
	case errors.Is(err, portaudio.OutputUnderflowed):
		return fmt.Errorf("%w: %v", audio.ErrUnderrun, err)
	}
	return err
}

func (s *stream) Available() (int, error) {
	if s.input {
		n, err := s.s.AvailableToRead()
		if err != nil {
			return 0, mapError(err)
		}
		return n + len(s.rest)/s.channels, nil
	}
	n, err := s.s.AvailableToWrite()
	if err != nil {
		return 0, mapError(err)
	}
	return max(0, n-s.pending/s.channels), nil
}

func (s *stream) Read(p []int16) (int, error) {
	off := 0
	for off < len(p) {
		if len(s.rest) == 0 {
			if err := s.s.Read(); err != nil {
				return off / s.channels, mapError(err)
			}
			s.rest = s.buf
		}
		n := copy(p[off:], s.rest)
		s.rest = s.rest[n:]
		off += n
	}
	return off / s.channels, nil
}

func (s *stream) Write(p []int16) (int, error) {
	off := 0
	for off < len(p) {
		n := copy(s.buf[s.pending:], p[off:])
		s.pending += n
		off += n
		if s.pending < len(s.buf) {
			break
		}
		if err := s.s.Write(); err != nil {
			s.pending = 0
			return off / s.channels, mapError(err)
		}
		s.pending = 0
	}
	return off / s.channels, nil
}

func (s *stream) Reset() error {
	s.rest = nil
	s.pending = 0
	if err := s.s.Stop(); err != nil {
		return err
	}
	return s.s.Start()
}

func (s *stream) Close() error {
	s.s.Stop()
	err := s.s.Close()
	portaudio.Terminate()
	return err
}
