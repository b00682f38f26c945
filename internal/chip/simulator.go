package chip

import (
	"fmt"
	"sync"
	"time"
)

// SimStation is one receivable station of the simulated band.
type SimStation struct {
	Channel  int
	Strength int
	Mono     bool
	RDS      *StationInfo
}

// SimOptions configures a Simulator.
type SimOptions struct {
	Region   Region
	Channel  int
	Stations []SimStation

	// RDSInterval is the time between simulated group arrivals. Zero means a
	// new group is available on every status read.
	RDSInterval time.Duration
}

// Simulator is an in-memory Driver. It models enough of the chip for the
// daemon to run without hardware: registers, a band of stations with fixed
// signal strengths, and an RDS group stream per station.
type Simulator struct {
	mu sync.Mutex

	regs     [256]uint8
	region   Region
	channel  int
	stations map[int]SimStation
	groups   map[int][][BlockSize]byte

	metadataOn  bool
	rdsFlag     bool
	rdsIdx      int
	rdsInterval time.Duration
	lastGroup   time.Time

	failures map[string]error
	tunes    []int
	volume   int
	led      int
}

// Operation names accepted by SetFailure.
const (
	OpRead     = "read"
	OpWrite    = "write"
	OpTune     = "tune"
	OpSeek     = "seek"
	OpSeekAll  = "seekall"
	OpMetadata = "metadata"
	OpCurrent  = "current"
	OpRegion   = "region"
)

// NewSimulator creates a simulator tuned to opts.Channel (or the band start).
func NewSimulator(opts SimOptions) *Simulator {
	s := &Simulator{
		region:      opts.Region,
		channel:     opts.Channel,
		stations:    make(map[int]SimStation),
		groups:      make(map[int][][BlockSize]byte),
		rdsInterval: opts.RDSInterval,
		failures:    make(map[string]error),
	}
	if s.channel == 0 {
		s.channel = opts.Region.Band().Start
	}
	s.regs[RegPD2] = pd2Mute

	for _, st := range opts.Stations {
		s.stations[st.Channel] = st
		if st.RDS != nil {
			s.groups[st.Channel] = EncodeGroups(*st.RDS)
		}
	}
	return s
}

// SetFailure makes every subsequent call of op return err. A nil err clears it.
func (s *Simulator) SetFailure(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// AddGroups appends raw groups to the stream of ch.
func (s *Simulator) AddGroups(ch int, groups ...[BlockSize]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[ch] = append(s.groups[ch], groups...)
}

// Tunes returns every channel passed to TuneToChannel, in order.
func (s *Simulator) Tunes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.tunes...)
}

// MetadataEnabled reports whether the RDS receiver is on.
func (s *Simulator) MetadataEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataOn
}

func (s *Simulator) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("simulator %s: %w", op, err)
	}
	return nil
}

func (s *Simulator) ReadRegister(addr uint8) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpRead); err != nil {
		return 0, err
	}

	switch addr {
	case RegRSSI:
		st := s.stations[s.channel]
		if st.Strength > 255 {
			return 255, nil
		}
		return uint8(st.Strength), nil
	case RegStatus1:
		st, ok := s.stations[s.channel]
		if !ok || st.Mono {
			return status1Mono, nil
		}
		return 0, nil
	case RegStatus3:
		s.advanceRDS()
		if s.rdsFlag {
			return status3RDSUp, nil
		}
		return 0, nil
	}
	return s.regs[addr], nil
}

// advanceRDS flips the update flag when a new group is due. Caller holds mu.
func (s *Simulator) advanceRDS() {
	if !s.metadataOn || len(s.groups[s.channel]) == 0 {
		return
	}
	now := time.Now()
	if s.rdsInterval > 0 && now.Sub(s.lastGroup) < s.rdsInterval {
		return
	}
	s.lastGroup = now
	s.rdsFlag = !s.rdsFlag
	s.rdsIdx++
}

func (s *Simulator) WriteRegister(addr uint8, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpWrite); err != nil {
		return err
	}
	s.regs[addr] = value
	return nil
}

func (s *Simulator) TuneToChannel(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpTune); err != nil {
		return err
	}
	if !s.region.Band().Contains(ch) {
		return fmt.Errorf("simulator: channel %d outside band", ch)
	}
	s.channel = ch
	s.rdsIdx = 0
	s.tunes = append(s.tunes, ch)
	return nil
}

func (s *Simulator) qualifies(ch, minStrength int) bool {
	st, ok := s.stations[ch]
	if !ok || st.Strength <= 0 {
		return false
	}
	return st.Strength >= minStrength
}

func (s *Simulator) SeekChannel(start, stop, step, minStrength int, dir Direction) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpSeek); err != nil {
		return 0, false, err
	}
	if step <= 0 {
		return 0, false, fmt.Errorf("simulator: invalid step %d", step)
	}

	if dir == Up {
		for ch := start; ch <= stop; ch += step {
			s.channel = ch
			if s.qualifies(ch, minStrength) {
				return ch, true, nil
			}
		}
	} else {
		for ch := start; ch >= stop; ch -= step {
			s.channel = ch
			if s.qualifies(ch, minStrength) {
				return ch, true, nil
			}
		}
	}
	return 0, false, nil
}

func (s *Simulator) SeekAllChannels(start, stop, step, minStrength int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpSeekAll); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("simulator: invalid step %d", step)
	}

	var found []int
	for ch := start; ch <= stop; ch += step {
		s.channel = ch
		if s.qualifies(ch, minStrength) {
			found = append(found, ch)
		}
	}
	return found, nil
}

func (s *Simulator) EnableMetadata(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpMetadata); err != nil {
		return err
	}
	s.metadataOn = on
	return nil
}

func (s *Simulator) ReadMetadataBlock() ([BlockSize]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpMetadata); err != nil {
		return [BlockSize]byte{}, err
	}
	groups := s.groups[s.channel]
	if len(groups) == 0 {
		return [BlockSize]byte{}, nil
	}
	return groups[(s.rdsIdx+len(groups)-1)%len(groups)], nil
}

func (s *Simulator) CurrentChannel() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpCurrent); err != nil {
		return 0, err
	}
	return s.channel, nil
}

func (s *Simulator) SetRegion(r Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpRegion); err != nil {
		return err
	}
	s.region = r
	if !r.Band().Contains(s.channel) {
		s.channel = r.Band().Start
	}
	return nil
}

// SetVolume and SetLED record the value so the optional extension paths can
// be exercised without hardware.
func (s *Simulator) SetVolume(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = level
	return nil
}

func (s *Simulator) SetLED(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = code
	return nil
}

// Volume returns the last level passed to SetVolume.
func (s *Simulator) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// LED returns the last code passed to SetLED.
func (s *Simulator) LED() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}
