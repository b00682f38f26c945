package status

import (
	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/radio"
)

// Report is the JSON view of a radio.Status.
type Report struct {
	Station       string    `json:"station"`
	FrequencyMHz  float64   `json:"frequency_mhz"`
	Tuned         bool      `json:"tuned"`
	Stereo        bool      `json:"stereo"`
	Signal        int       `json:"signal"`
	SignalMax     int       `json:"signal_max"`
	SeekThreshold int       `json:"seek_threshold"`
	SpacingKHz    int       `json:"spacing_khz"`
	StartMHz      float64   `json:"start_mhz"`
	StopMHz       float64   `json:"stop_mhz"`
	Band          string    `json:"band"`
	Power         bool      `json:"power"`
	Volume        int       `json:"volume"`
	LED           int       `json:"led"`
	Locked        bool      `json:"locked"`
	Key           int       `json:"key"`
	RDS           *RDS      `json:"rds,omitempty"`
	Stations      []float64 `json:"stations"`
}

// RDS is the metadata part of a Report, present while the RDS worker runs.
type RDS struct {
	Callsign       string    `json:"callsign"`
	ProgramService string    `json:"program_service"`
	ProgramType    string    `json:"program_type"`
	Radiotext      [2]string `json:"radiotext"`
	JulianDate     int       `json:"julian_date"`
	Hour           int       `json:"hour"`
	Minute         int       `json:"minute"`
	LocalHour      int       `json:"local_hour"`
	LocalMinute    int       `json:"local_minute"`
}

// NewReport converts st.
func NewReport(st radio.Status) Report {
	r := Report{
		Station:       FormatStation(st.Frequency),
		FrequencyMHz:  float64(st.Frequency) / 100,
		Tuned:         st.Signal.Tuned(),
		Stereo:        st.Signal.Stereo,
		Signal:        st.Signal.Strength,
		SignalMax:     chip.SignalMax,
		SeekThreshold: st.SeekThreshold,
		SpacingKHz:    st.Band.Step * 10,
		StartMHz:      float64(st.Band.Start) / 100,
		StopMHz:       float64(st.Band.Stop) / 100,
		Band:          st.Region.String(),
		Power:         st.Power,
		Volume:        st.Volume,
		LED:           st.LED,
		Locked:        st.Locked,
		Key:           st.Key,
		Stations:      make([]float64, 0, len(st.Stations)),
	}
	for _, ch := range st.Stations {
		r.Stations = append(r.Stations, float64(ch)/100)
	}
	if st.RDSActive {
		s := st.RDS
		r.RDS = &RDS{
			Callsign:       s.Callsign,
			ProgramService: s.ProgramService,
			ProgramType:    s.ProgramType,
			Radiotext:      s.Radiotext,
			JulianDate:     s.JulianDate,
			Hour:           s.Hour,
			Minute:         s.Minute,
			LocalHour:      s.LocalHour,
			LocalMinute:    s.LocalMinute,
		}
	}
	return r
}
