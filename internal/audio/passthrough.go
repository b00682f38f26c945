package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fmradiod/internal/metrics"
)

// Options configures a Passthrough. Zero fields take the defaults.
type Options struct {
	Format         Format
	LowWaterFrames int
	IdleSleep      time.Duration
	Metrics        *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Format.SampleRate == 0 {
		o.Format.SampleRate = SampleRate
	}
	if o.Format.Channels == 0 {
		o.Format.Channels = Channels
	}
	if o.Format.BufferFrames == 0 {
		o.Format.BufferFrames = o.Format.Frames(BufferTime)
	}
	if o.LowWaterFrames == 0 {
		o.LowWaterFrames = o.Format.Frames(LowWaterTime)
	}
	if o.IdleSleep == 0 {
		o.IdleSleep = IdleSleep
	}
	return o
}

// Passthrough copies capture to playback until cancelled.
type Passthrough struct {
	opener Opener
	opts   Options
}

// NewPassthrough creates a worker using opener for its streams.
func NewPassthrough(opener Opener, opts Options) *Passthrough {
	return &Passthrough{opener: opener, opts: opts.withDefaults()}
}

// Run opens both streams, owns them until it returns and closes them on exit.
// Overruns and underruns are recovered in place; any other stream error stops
// the worker and is returned. Cancellation returns nil.
func (p *Passthrough) Run(ctx context.Context) error {
	if p.opener == nil {
		return errors.New("audio: no stream opener")
	}

	capture, err := p.opener.OpenCapture(p.opts.Format)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer capture.Close()

	playback, err := p.opener.OpenPlayback(p.opts.Format)
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	defer playback.Close()

	log.Printf("Audio: passthrough started (%d Hz, %d channels, %d frame buffer)",
		p.opts.Format.SampleRate, p.opts.Format.Channels, p.opts.Format.BufferFrames)
	defer log.Printf("Audio: passthrough stopped")

	ch := p.opts.Format.Channels
	scratch := make([]int16, p.opts.Format.BufferFrames*ch)

	for {
		if ctx.Err() != nil {
			return nil
		}

		inAvail, err := capture.Available()
		if err != nil {
			if err := p.recoverStream("capture", capture, err); err != nil {
				return err
			}
			continue
		}
		outAvail, err := playback.Available()
		if err != nil {
			if err := p.recoverStream("playback", playback, err); err != nil {
				return err
			}
			continue
		}

		frames := min(inAvail, outAvail)
		if frames < p.opts.LowWaterFrames {
			if !sleep(ctx, p.opts.IdleSleep) {
				return nil
			}
			continue
		}
		frames = min(frames, p.opts.Format.BufferFrames)

		got, err := capture.Read(scratch[:frames*ch])
		if err != nil {
			if err := p.recoverStream("capture", capture, err); err != nil {
				return err
			}
			continue
		}
		p.opts.Metrics.RecordAudioFrames("capture", got)

		if err := p.writeAll(playback, scratch[:got*ch]); err != nil {
			return err
		}
	}
}

// writeAll pushes every frame of buf. An underrun resets playback and drops
// the rest of the chunk.
func (p *Passthrough) writeAll(playback Stream, buf []int16) error {
	ch := p.opts.Format.Channels
	for len(buf) > 0 {
		n, err := playback.Write(buf)
		p.opts.Metrics.RecordAudioFrames("playback", n)
		if err != nil {
			return p.recoverStream("playback", playback, err)
		}
		if n <= 0 {
			return fmt.Errorf("playback accepted no frames")
		}
		buf = buf[n*ch:]
	}
	return nil
}

// recoverStream resets s after an overrun or underrun and returns nil. Other
// errors are returned wrapped with the stream name.
func (p *Passthrough) recoverStream(name string, s Stream, err error) error {
	if !errors.Is(err, ErrOverrun) && !errors.Is(err, ErrUnderrun) {
		return fmt.Errorf("%s: %w", name, err)
	}
	p.opts.Metrics.RecordXrun(name)
	if rerr := s.Reset(); rerr != nil {
		return fmt.Errorf("%s reset after %v: %w", name, err, rerr)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
