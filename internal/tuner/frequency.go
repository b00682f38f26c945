package tuner

import (
	"fmt"
	"strconv"
	"strings"

	"hz.tools/rf"

	"github.com/fmradiod/internal/device"
)

// ParseFrequency reads a tuning frequency in MHz. A bare number is taken as
// MHz ("101.1"); a value with a unit goes through rf.ParseHz ("101.1MHz",
// "88100KHz").
func ParseFrequency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty frequency", device.ErrInvalidParameter)
	}
	if mhz, err := strconv.ParseFloat(s, 64); err == nil {
		return mhz, nil
	}
	hz, err := rf.ParseHz(s)
	if err != nil {
		return 0, fmt.Errorf("%w: frequency %q: %v", device.ErrInvalidParameter, s, err)
	}
	return float64(hz) / 1e6, nil
}
