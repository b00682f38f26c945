// Package status renders the radio state as the XML document served to the
// control UI, and as a JSON report for the operations endpoints.
package status

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/radio"
)

// DefaultMaxBytes bounds a rendered document.
const DefaultMaxBytes = 4096

var escaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&apos;",
	"<", "&lt;",
	">", "&gt;",
)

// Escape replaces the five XML special characters with entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// FormatStation formats a channel in 10 kHz units as MHz with at least one
// decimal and no trailing zeros: 10110 is "101.1", 10000 is "100.0".
func FormatStation(ch int) string {
	s := fmt.Sprintf("%d.%02d", ch/100, ch%100)
	if strings.HasSuffix(s, "0") {
		s = s[:len(s)-1]
	}
	return s
}

// formatBandEdge always prints two decimals, like the station list.
func formatBandEdge(ch int) string {
	return fmt.Sprintf("%d.%02d", ch/100, ch%100)
}

// Renderer produces status documents no larger than MaxBytes.
type Renderer struct {
	MaxBytes int
}

// NewRenderer creates a renderer. A non-positive bound selects the default.
func NewRenderer(maxBytes int) *Renderer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Renderer{MaxBytes: maxBytes}
}

// boundedBuffer stops accepting writes once the limit would be exceeded.
type boundedBuffer struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func (b *boundedBuffer) printf(format string, args ...any) {
	if b.overflow {
		return
	}
	s := fmt.Sprintf(format, args...)
	if b.buf.Len()+len(s) > b.max {
		b.overflow = true
		return
	}
	b.buf.WriteString(s)
}

// Render writes the document for st. A non-empty errCode is added as the
// error attribute. When the document does not fit, nothing is returned and
// the error wraps device.ErrBufferTooSmall.
func (r *Renderer) Render(st radio.Status, errCode string) ([]byte, error) {
	b := &boundedBuffer{max: r.MaxBytes}

	b.printf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.printf("<radio found='1' tuned='%s' station='%s' stereo='%s' ",
		flag(st.Signal.Tuned()), FormatStation(st.Frequency), flag(st.Signal.Stereo))
	b.printf("signal='%d' signal_max='%d' ", st.Signal.Strength, chip.SignalMax)
	b.printf("seek_threshold='%d' seek_threshold_max='%d' ", st.SeekThreshold, chip.SeekThresholdMax)
	b.printf("spacing='%d' ", st.Band.Step*10)
	b.printf("start='%s' stop='%s' ", formatBandEdge(st.Band.Start), formatBandEdge(st.Band.Stop))
	b.printf("band='%s' ", Escape(st.Region.String()))
	if st.RDSActive {
		writeRDS(b, st.RDS)
	}
	if errCode != "" {
		b.printf("error='%s' ", Escape(errCode))
	}
	b.printf(">\n")

	for _, ch := range st.Stations {
		b.printf("<station freq=\"%.2f\"/>\n", float64(ch)/100)
	}
	b.printf("</radio>\n")

	if b.overflow {
		return nil, fmt.Errorf("status document exceeds %d bytes: %w", r.MaxBytes, device.ErrBufferTooSmall)
	}
	return b.buf.Bytes(), nil
}

func writeRDS(b *boundedBuffer, s device.RDSSnapshot) {
	b.printf("callsign='%s' ", Escape(s.Callsign))
	b.printf("programservice='%s' ", Escape(s.ProgramService))
	b.printf("ptycode='%s' ", Escape(s.ProgramType))
	b.printf("radiotext0='%s' ", Escape(s.Radiotext[0]))
	b.printf("radiotext1='%s' ", Escape(s.Radiotext[1]))
	b.printf("juliandate='%d' hour='%d' minute='%d' ", s.JulianDate, s.Hour, s.Minute)
	b.printf("localtime='%d:%02d' ", s.LocalHour, s.LocalMinute)
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
