package device

import (
	"sort"
)

// StationList is an ordered, immutable set of receivable channels
// (10 kHz units).
type StationList struct {
	channels []int
}

// NewStationList copies, sorts and de-duplicates channels.
func NewStationList(channels []int) StationList {
	cp := append([]int(nil), channels...)
	sort.Ints(cp)

	out := cp[:0]
	for i, ch := range cp {
		if i > 0 && ch == cp[i-1] {
			continue
		}
		out = append(out, ch)
	}
	return StationList{channels: out}
}

// Len returns the number of stations.
func (l StationList) Len() int { return len(l.channels) }

// Channels returns a copy of the channels in ascending order.
func (l StationList) Channels() []int {
	return append([]int(nil), l.channels...)
}

// Contains reports whether ch is a known station.
func (l StationList) Contains(ch int) bool {
	i := sort.SearchInts(l.channels, ch)
	return i < len(l.channels) && l.channels[i] == ch
}
