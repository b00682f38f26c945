package chip

import (
	"encoding/binary"
	"strings"
)

// StationInfo is the RDS content a simulated station broadcasts.
type StationInfo struct {
	PI        uint16
	PTY       int
	PS        string
	Radiotext string
	TextB     bool // radiotext A/B flag
}

// PackGroup assembles one raw group from its four blocks.
func PackGroup(a, b, c, d uint16) [BlockSize]byte {
	var g [BlockSize]byte
	binary.BigEndian.PutUint16(g[0:], a)
	binary.BigEndian.PutUint16(g[2:], b)
	binary.BigEndian.PutUint16(g[4:], c)
	binary.BigEndian.PutUint16(g[6:], d)
	return g
}

// EncodeGroups produces one full cycle of 0A (program service) and 2A
// (radiotext) groups for info.
func EncodeGroups(info StationInfo) [][BlockSize]byte {
	var groups [][BlockSize]byte

	ps := padRight(info.PS, 8)
	for seg := 0; seg < 4; seg++ {
		b := groupB(0, info.PTY) | uint16(seg)
		d := uint16(ps[seg*2])<<8 | uint16(ps[seg*2+1])
		groups = append(groups, PackGroup(info.PI, b, 0xe0cd, d))
	}

	if info.Radiotext == "" {
		return groups
	}
	rt := info.Radiotext
	if len(rt) > 64 {
		rt = rt[:64]
	}
	if len(rt) < 64 {
		rt += "\r"
	}
	rt = padRight(rt, (len(rt)+3)/4*4)
	for seg := 0; seg*4 < len(rt); seg++ {
		b := groupB(2, info.PTY) | uint16(seg)
		if info.TextB {
			b |= 0x10
		}
		c := uint16(rt[seg*4])<<8 | uint16(rt[seg*4+1])
		d := uint16(rt[seg*4+2])<<8 | uint16(rt[seg*4+3])
		groups = append(groups, PackGroup(info.PI, b, c, d))
	}
	return groups
}

// EncodeClock produces a 4A clock-time group. offset is the local time offset
// in half hours and may be negative.
func EncodeClock(pi uint16, pty, mjd, hour, minute, offset int) [BlockSize]byte {
	b := groupB(4, pty) | uint16((mjd>>15)&0x3)
	c := uint16((mjd&0x7fff)<<1) | uint16((hour>>4)&0x1)
	d := uint16(hour&0xf)<<12 | uint16(minute&0x3f)<<6
	if offset < 0 {
		d |= 0x20
		offset = -offset
	}
	d |= uint16(offset & 0x1f)
	return PackGroup(pi, b, c, d)
}

func groupB(groupType, pty int) uint16 {
	return uint16(groupType&0xf)<<12 | uint16(pty&0x1f)<<5
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
