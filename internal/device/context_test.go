package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewContext(t *testing.T) {
	c := NewContext(10110)

	if c.Frequency() != 10110 {
		t.Errorf("Expected frequency 10110, got %d", c.Frequency())
	}
	if c.Initialized() {
		t.Error("Expected new context to be uninitialized")
	}
	if c.Stations().Len() != 0 {
		t.Errorf("Expected empty station list, got %d entries", c.Stations().Len())
	}
}

func TestClaimFlags(t *testing.T) {
	c := NewContext(8750)

	if !c.ClaimPower(true) {
		t.Fatal("Expected first power-on claim to succeed")
	}
	if c.ClaimPower(true) {
		t.Error("Expected second power-on claim to fail")
	}
	if !c.ClaimPower(false) {
		t.Error("Expected power-off claim to succeed")
	}
	if c.ClaimPower(false) {
		t.Error("Expected repeated power-off claim to fail")
	}
}

func TestClaimRDSConcurrent(t *testing.T) {
	c := NewContext(8750)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ClaimRDS(true) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winning claim, got %d", wins)
	}
}

func TestRDSSnapshotHiddenWhenStopped(t *testing.T) {
	c := NewContext(8750)
	c.StoreRDS(RDSSnapshot{Callsign: "KQED"})

	if _, active := c.RDS(); active {
		t.Error("Expected RDS to be inactive before the worker is claimed")
	}

	c.ClaimRDS(true)
	s, active := c.RDS()
	if !active {
		t.Fatal("Expected RDS to be active")
	}
	if s.Callsign != "KQED" {
		t.Errorf("Expected callsign KQED, got %q", s.Callsign)
	}

	c.ResetRDS()
	s, _ = c.RDS()
	if !s.IsZero() {
		t.Errorf("Expected empty snapshot after reset, got %+v", s)
	}
}

// Readers must never see fields from two different writes.
func TestRDSSnapshotConsistency(t *testing.T) {
	c := NewContext(8750)
	c.ClaimRDS(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			tag := fmt.Sprintf("%04d", i)
			c.StoreRDS(RDSSnapshot{
				Callsign:       tag,
				ProgramService: tag,
				Radiotext:      [2]string{tag, tag},
				Minute:         i,
			})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		s, _ := c.RDS()
		if s.IsZero() {
			continue
		}
		want := fmt.Sprintf("%04d", s.Minute)
		if s.Callsign != want || s.ProgramService != want || s.Radiotext[0] != want || s.Radiotext[1] != want {
			t.Fatalf("Observed mixed snapshot: %+v", s)
		}
	}
}

func TestReplaceStations(t *testing.T) {
	c := NewContext(8750)
	c.ReplaceStations([]int{10110, 8810, 10110, 9490})

	got := c.Stations().Channels()
	want := []int{8810, 9490, 10110}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
	if !c.Stations().Contains(9490) {
		t.Error("Expected list to contain 9490")
	}
	if c.Stations().Contains(9491) {
		t.Error("Expected list not to contain 9491")
	}
}

func TestStationListIsImmutable(t *testing.T) {
	c := NewContext(8750)
	c.ReplaceStations([]int{8810})

	got := c.Stations().Channels()
	got[0] = 1

	if c.Stations().Channels()[0] != 8810 {
		t.Error("Expected published list to be unaffected by caller mutation")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrOutOfRange, "OUT_OF_RANGE"},
		{fmt.Errorf("tune 120.0: %w", ErrOutOfRange), "OUT_OF_RANGE"},
		{fmt.Errorf("seek: %w", ErrDeviceFailure), "DEVICE_FAILURE"},
		{ErrInvalidState, "INVALID_STATE"},
		{ErrInvalidParameter, "INVALID_PARAMETER"},
		{ErrBufferTooSmall, "BUFFER_TOO_SMALL"},
		{errors.New("boom"), "INTERNAL"},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
