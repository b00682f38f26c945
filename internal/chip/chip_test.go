package chip

import (
	"encoding/binary"
	"errors"
	"testing"
)

func createTestSimulator() *Simulator {
	return NewSimulator(SimOptions{
		Region:   RegionUS,
		Channel:  9490,
		Stations: DemoStations(),
	})
}

func TestBandSnap(t *testing.T) {
	us := RegionUS.Band()
	eu := RegionEurope.Band()

	tests := []struct {
		name string
		band Band
		in   int
		want int
	}{
		{"on grid", us, 10110, 10110},
		{"round down", us, 10119, 10110},
		{"round up", us, 10120, 10130},
		{"below start", us, 8700, 8750},
		{"above stop clamps to last grid channel", us, 10800, 10790},
		{"eu step", eu, 10114, 10110},
		{"eu stop", eu, 10800, 10800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.band.Snap(tt.in); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in      string
		want    Region
		wantErr bool
	}{
		{"US", RegionUS, false},
		{"usa", RegionUS, false},
		{"Europe", RegionEurope, false},
		{" eu ", RegionEurope, false},
		{"japan", RegionJapan, false},
		{"CHINA", RegionChina, false},
		{"mars", RegionUS, true},
	}

	for _, tt := range tests {
		got, err := ParseRegion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRegion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRegion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMuteRoundTrip(t *testing.T) {
	sim := createTestSimulator()

	saved, err := ReadMuteState(sim)
	if err != nil {
		t.Fatalf("ReadMuteState failed: %v", err)
	}
	if !saved.Muted() {
		t.Error("Expected simulator to start muted")
	}

	if err := SetMute(sim, false); err != nil {
		t.Fatalf("SetMute failed: %v", err)
	}
	now, _ := ReadMuteState(sim)
	if now.Muted() {
		t.Error("Expected unmuted after SetMute(false)")
	}

	if err := RestoreMuteState(sim, saved); err != nil {
		t.Fatalf("RestoreMuteState failed: %v", err)
	}
	now, _ = ReadMuteState(sim)
	if now != saved {
		t.Errorf("Expected restored state %#x, got %#x", saved, now)
	}
}

func TestReadSignal(t *testing.T) {
	sim := createTestSimulator()

	sig, err := ReadSignal(sim)
	if err != nil {
		t.Fatalf("ReadSignal failed: %v", err)
	}
	if sig.Strength != 180 || !sig.Stereo || !sig.Tuned() {
		t.Errorf("Unexpected signal at 94.9: %+v", sig)
	}

	sim.TuneToChannel(8850)
	sig, _ = ReadSignal(sim)
	if sig.Stereo {
		t.Error("Expected mono station at 88.5")
	}

	sim.TuneToChannel(10450)
	sig, _ = ReadSignal(sim)
	if sig.Tuned() {
		t.Errorf("Expected strength %d not to count as tuned", sig.Strength)
	}
}

func TestSimulatorSeek(t *testing.T) {
	sim := createTestSimulator()

	ch, found, err := sim.SeekChannel(9510, 10790, 20, 100, Up)
	if err != nil || !found || ch != 10110 {
		t.Errorf("Expected seek up to find 10110, got %d found=%v err=%v", ch, found, err)
	}

	ch, found, _ = sim.SeekChannel(10090, 8750, 20, 100, Down)
	if !found || ch != 9490 {
		t.Errorf("Expected seek down to find 9490, got %d found=%v", ch, found)
	}

	_, found, _ = sim.SeekChannel(10710, 10790, 20, 0, Up)
	if found {
		t.Error("Expected no station above 107.1")
	}

	all, err := sim.SeekAllChannels(8750, 10790, 20, 0)
	if err != nil {
		t.Fatalf("SeekAllChannels failed: %v", err)
	}
	if len(all) != len(DemoStations()) {
		t.Errorf("Expected %d stations, got %v", len(DemoStations()), all)
	}
}

func TestSimulatorFailure(t *testing.T) {
	sim := createTestSimulator()
	boom := errors.New("i2c timeout")

	sim.SetFailure(OpTune, boom)
	if err := sim.TuneToChannel(10110); !errors.Is(err, boom) {
		t.Errorf("Expected injected error, got %v", err)
	}

	sim.SetFailure(OpTune, nil)
	if err := sim.TuneToChannel(10110); err != nil {
		t.Errorf("Expected tune to succeed after clearing failure, got %v", err)
	}
}

func TestSimulatorRDSToggle(t *testing.T) {
	sim := createTestSimulator()

	first, _ := RDSToggle(sim)
	second, _ := RDSToggle(sim)
	if first != second {
		t.Error("Expected no toggle while metadata is disabled")
	}

	sim.EnableMetadata(true)
	a, _ := RDSToggle(sim)
	b, _ := RDSToggle(sim)
	if a == b {
		t.Error("Expected the flag to flip on every read with a zero interval")
	}
}

func TestEncodeGroups(t *testing.T) {
	groups := EncodeGroups(StationInfo{PI: 0x2694, PTY: 10, PS: "KIOI", Radiotext: "hi"})

	// 4 PS segments plus one radiotext segment ("hi\r ")
	if len(groups) != 5 {
		t.Fatalf("Expected 5 groups, got %d", len(groups))
	}

	g := groups[0]
	if pi := binary.BigEndian.Uint16(g[0:]); pi != 0x2694 {
		t.Errorf("Expected PI 0x2694, got %#x", pi)
	}
	b := binary.BigEndian.Uint16(g[2:])
	if b>>12 != 0 {
		t.Errorf("Expected group type 0, got %d", b>>12)
	}
	if pty := (b >> 5) & 0x1f; pty != 10 {
		t.Errorf("Expected PTY 10, got %d", pty)
	}
	if d := binary.BigEndian.Uint16(g[6:]); d != uint16('K')<<8|uint16('I') {
		t.Errorf("Unexpected first PS pair %#x", d)
	}

	rt := groups[4]
	if binary.BigEndian.Uint16(rt[2:])>>12 != 2 {
		t.Error("Expected last group to be radiotext")
	}
	if rt[4] != 'h' || rt[5] != 'i' || rt[6] != '\r' {
		t.Errorf("Unexpected radiotext payload %q", rt[4:])
	}
}

func TestOpen(t *testing.T) {
	d, err := Open("simulator", RegionEurope)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ch, _ := d.CurrentChannel()
	if ch != RegionEurope.Band().Start {
		t.Errorf("Expected simulator to start at band start, got %d", ch)
	}

	if _, err := Open("qn8035", RegionUS); err == nil {
		t.Error("Expected error for unregistered driver")
	}
}
