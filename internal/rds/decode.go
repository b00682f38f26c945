// Package rds decodes RDS/RBDS groups read from the tuner and runs the
// background worker that keeps the shared metadata snapshot current.
package rds

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
)

// Group types carried in bits 15-12 of block B.
const (
	groupBasic     = 0
	groupRadiotext = 2
	groupClock     = 4
)

// RBDS program type names, indexed by PTY code.
var ptyNames = [32]string{
	"None", "News", "Information", "Sports", "Talk", "Rock", "Classic Rock",
	"Adult Hits", "Soft Rock", "Top 40", "Country", "Oldies", "Soft", "Nostalgia",
	"Jazz", "Classical", "Rhythm and Blues", "Soft R&B", "Foreign Language",
	"Religious Music", "Religious Talk", "Personality", "Public", "College",
	"Spanish Talk", "Spanish Music", "Hip Hop", "", "", "Weather", "Emergency Test",
	"Emergency",
}

// PTYName returns the RBDS name of a program type code.
func PTYName(code int) string {
	if code < 0 || code >= len(ptyNames) {
		return ""
	}
	return ptyNames[code]
}

// Callsign derives a North American callsign from a PI code. Codes outside
// the K and W ranges are returned as four hex digits.
func Callsign(pi uint16) string {
	n := int(pi)
	var prefix byte
	switch {
	case n >= 4096 && n <= 21671:
		prefix = 'K'
		n -= 4096
	case n >= 21672 && n <= 39247:
		prefix = 'W'
		n -= 21672
	default:
		return fmt.Sprintf("%04X", pi)
	}
	return string([]byte{
		prefix,
		byte('A' + n/676),
		byte('A' + (n%676)/26),
		byte('A' + n%26),
	})
}

// State accumulates decoded groups. The zero value is ready to use.
type State struct {
	PI       uint16
	PTY      int
	decoded  bool
	ps       [8]byte
	text     [2][64]byte
	textFlag int

	julianDate  int
	hour        int
	minute      int
	localHour   int
	localMinute int
}

// Decode folds one raw group into the state.
func (s *State) Decode(group [chip.BlockSize]byte) {
	a := binary.BigEndian.Uint16(group[0:])
	b := binary.BigEndian.Uint16(group[2:])
	c := binary.BigEndian.Uint16(group[4:])
	d := binary.BigEndian.Uint16(group[6:])

	s.PI = a
	s.PTY = int(b>>5) & 0x1f
	s.decoded = true

	versionB := b&0x0800 != 0
	switch int(b >> 12) {
	case groupBasic:
		seg := int(b & 0x3)
		s.ps[seg*2] = byte(d >> 8)
		s.ps[seg*2+1] = byte(d)

	case groupRadiotext:
		flag := int(b>>4) & 0x1
		if flag != s.textFlag {
			s.text[flag] = [64]byte{}
			s.textFlag = flag
		}
		seg := int(b & 0xf)
		if versionB {
			// 2B carries two characters per group in block D.
			s.text[flag][seg*2] = byte(d >> 8)
			s.text[flag][seg*2+1] = byte(d)
		} else {
			s.text[flag][seg*4] = byte(c >> 8)
			s.text[flag][seg*4+1] = byte(c)
			s.text[flag][seg*4+2] = byte(d >> 8)
			s.text[flag][seg*4+3] = byte(d)
		}

	case groupClock:
		if versionB {
			return
		}
		s.julianDate = int(b&0x3)<<15 | int(c>>1)
		s.hour = int(c&0x1)<<4 | int(d>>12)
		s.minute = int(d>>6) & 0x3f

		offset := int(d&0x1f) * 30
		if d&0x20 != 0 {
			offset = -offset
		}
		local := (s.hour*60 + s.minute + offset) % (24 * 60)
		if local < 0 {
			local += 24 * 60
		}
		s.localHour = local / 60
		s.localMinute = local % 60
	}
}

// Callsign returns the callsign of the last decoded PI, or "" before any group.
func (s *State) Callsign() string {
	if !s.decoded {
		return ""
	}
	return Callsign(s.PI)
}

// Snapshot converts the state into the shared snapshot form.
func (s *State) Snapshot() device.RDSSnapshot {
	if !s.decoded {
		return device.RDSSnapshot{}
	}
	return device.RDSSnapshot{
		Callsign:       s.Callsign(),
		ProgramService: printable(s.ps[:]),
		ProgramType:    PTYName(s.PTY),
		Radiotext:      [2]string{printable(s.text[0][:]), printable(s.text[1][:])},
		JulianDate:     s.julianDate,
		Hour:           s.hour,
		Minute:         s.minute,
		LocalHour:      s.localHour,
		LocalMinute:    s.localMinute,
	}
}

// printable cuts at the radiotext terminator, blanks unreceived and control
// bytes and trims trailing spaces.
func printable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == '\r' {
			break
		}
		switch {
		case c == 0:
			sb.WriteByte(' ')
		case c < 0x20 || c > 0x7e:
			sb.WriteByte('?')
		default:
			sb.WriteByte(c)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}
