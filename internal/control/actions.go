// Package control holds the radio control actions shared by the HTTP front
// end and the maintenance console.
package control

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/tuner"
)

// Radio is the part of the engine the control handler drives.
type Radio interface {
	SetPower(on bool) error
	SetRDS(on bool) error
	SetRegion(ctx context.Context, r chip.Region) error
	TuneTo(mhz float64) error
	Seek(dir chip.Direction, minStrength int) (int, error)
	SetVolume(level int) error
	SetLED(code int) error
	SetLocked(locked bool)
	SetKey(key int)
	RefreshStationList(ctx context.Context) error
	Status(ctx context.Context) (radio.Status, error)
}

// ActionHandler applies one control parameter.
type ActionHandler interface {
	Apply(ctx context.Context, value string, form url.Values) error
	GetName() string
	GetDescription() string
}

// ActionRegistry keeps actions in the order they are applied.
type ActionRegistry struct {
	handlers []ActionHandler
	byName   map[string]ActionHandler
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{byName: make(map[string]ActionHandler)}
}

// Register adds an action. A second action with the same name replaces the
// first in place.
func (r *ActionRegistry) Register(h ActionHandler) {
	name := h.GetName()
	if _, exists := r.byName[name]; exists {
		for i, old := range r.handlers {
			if old.GetName() == name {
				r.handlers[i] = h
			}
		}
	} else {
		r.handlers = append(r.handlers, h)
	}
	r.byName[name] = h
}

// Get returns the named action.
func (r *ActionRegistry) Get(name string) (ActionHandler, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// List returns the actions in application order.
func (r *ActionRegistry) List() []ActionHandler {
	return append([]ActionHandler(nil), r.handlers...)
}

// ApplyForm applies every action named in form, in registry order. It stops
// at the first failure and returns it.
func (r *ActionRegistry) ApplyForm(ctx context.Context, form url.Values) error {
	for _, action := range r.handlers {
		name := action.GetName()
		if _, present := form[name]; !present {
			continue
		}
		if err := action.Apply(ctx, form.Get(name), form); err != nil {
			log.Printf("Control: %s=%q failed: %v", name, form.Get(name), err)
			return err
		}
	}
	return nil
}

// RegisterRadioActions installs the control parameters in their fixed order:
// power, rds, region, tune, seek, volume, led, lock, key, refresh.
func RegisterRadioActions(reg *ActionRegistry, rad Radio, defaultSeekStrength int) {
	reg.Register(NewPowerAction(rad))
	reg.Register(NewRDSAction(rad))
	reg.Register(NewRegionAction(rad))
	reg.Register(NewTuneAction(rad))
	reg.Register(NewSeekAction(rad, defaultSeekStrength))
	reg.Register(NewVolumeAction(rad))
	reg.Register(NewLEDAction(rad))
	reg.Register(NewLockAction(rad))
	reg.Register(NewKeyAction(rad))
	reg.Register(NewRefreshAction(rad))
}

func parseBool(name, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "on", "true", "yes":
		return true, nil
	case "0", "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s=%q", device.ErrInvalidParameter, name, value)
}

func parseInt(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", device.ErrInvalidParameter, name, value)
	}
	return n, nil
}

// PowerAction starts or stops audio playback.
type PowerAction struct {
	radio Radio
}

// NewPowerAction creates the power action.
func NewPowerAction(rad Radio) *PowerAction {
	return &PowerAction{radio: rad}
}

// Apply switches playback.
func (a *PowerAction) Apply(ctx context.Context, value string, form url.Values) error {
	on, err := parseBool(a.GetName(), value)
	if err != nil {
		return err
	}
	return a.radio.SetPower(on)
}

func (a *PowerAction) GetName() string        { return "power" }
func (a *PowerAction) GetDescription() string { return "Start (1) or stop (0) audio playback" }

// RDSAction starts or stops the RDS reader.
type RDSAction struct {
	radio Radio
}

// NewRDSAction creates the rds action.
func NewRDSAction(rad Radio) *RDSAction {
	return &RDSAction{radio: rad}
}

// Apply switches the RDS reader.
func (a *RDSAction) Apply(ctx context.Context, value string, form url.Values) error {
	on, err := parseBool(a.GetName(), value)
	if err != nil {
		return err
	}
	return a.radio.SetRDS(on)
}

func (a *RDSAction) GetName() string        { return "rds" }
func (a *RDSAction) GetDescription() string { return "Start (1) or stop (0) RDS decoding" }

// RegionAction switches the band plan.
type RegionAction struct {
	radio Radio
}

// NewRegionAction creates the region action.
func NewRegionAction(rad Radio) *RegionAction {
	return &RegionAction{radio: rad}
}

// Apply switches region and rescans the band.
func (a *RegionAction) Apply(ctx context.Context, value string, form url.Values) error {
	r, err := chip.ParseRegion(value)
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrInvalidParameter, err)
	}
	return a.radio.SetRegion(ctx, r)
}

func (a *RegionAction) GetName() string        { return "region" }
func (a *RegionAction) GetDescription() string { return "Band plan: US, Europe, Japan or China" }

// TuneAction tunes to a frequency in MHz.
type TuneAction struct {
	radio Radio
}

// NewTuneAction creates the tune action.
func NewTuneAction(rad Radio) *TuneAction {
	return &TuneAction{radio: rad}
}

// Apply tunes.
func (a *TuneAction) Apply(ctx context.Context, value string, form url.Values) error {
	mhz, err := tuner.ParseFrequency(value)
	if err != nil {
		return err
	}
	return a.radio.TuneTo(mhz)
}

func (a *TuneAction) GetName() string        { return "tune" }
func (a *TuneAction) GetDescription() string { return "Tune to a frequency in MHz" }

// SeekAction seeks up or down. The optional strength parameter sets the
// minimum signal strength for a hit.
type SeekAction struct {
	radio           Radio
	defaultStrength int
}

// NewSeekAction creates the seek action.
func NewSeekAction(rad Radio, defaultStrength int) *SeekAction {
	return &SeekAction{radio: rad, defaultStrength: defaultStrength}
}

// Apply seeks.
func (a *SeekAction) Apply(ctx context.Context, value string, form url.Values) error {
	var dir chip.Direction
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up", "1":
		dir = chip.Up
	case "down", "0":
		dir = chip.Down
	default:
		return fmt.Errorf("%w: seek=%q", device.ErrInvalidParameter, value)
	}

	strength := a.defaultStrength
	if s := form.Get("strength"); s != "" {
		n, err := parseInt("strength", s)
		if err != nil {
			return err
		}
		strength = n
	}
	_, err := a.radio.Seek(dir, strength)
	return err
}

func (a *SeekAction) GetName() string { return "seek" }
func (a *SeekAction) GetDescription() string {
	return "Seek up or down to the next station at or above strength"
}

// VolumeAction sets the output level.
type VolumeAction struct {
	radio Radio
}

// NewVolumeAction creates the volume action.
func NewVolumeAction(rad Radio) *VolumeAction {
	return &VolumeAction{radio: rad}
}

// Apply sets the volume.
func (a *VolumeAction) Apply(ctx context.Context, value string, form url.Values) error {
	n, err := parseInt(a.GetName(), value)
	if err != nil {
		return err
	}
	return a.radio.SetVolume(n)
}

func (a *VolumeAction) GetName() string        { return "volume" }
func (a *VolumeAction) GetDescription() string { return "Output volume, 0 to 15" }

// LEDAction sets the indicator code.
type LEDAction struct {
	radio Radio
}

// NewLEDAction creates the led action.
func NewLEDAction(rad Radio) *LEDAction {
	return &LEDAction{radio: rad}
}

// Apply sets the LED.
func (a *LEDAction) Apply(ctx context.Context, value string, form url.Values) error {
	n, err := parseInt(a.GetName(), value)
	if err != nil {
		return err
	}
	return a.radio.SetLED(n)
}

func (a *LEDAction) GetName() string        { return "led" }
func (a *LEDAction) GetDescription() string { return "Indicator LED code, 0 to 7" }

// LockAction stores the lock flag.
type LockAction struct {
	radio Radio
}

// NewLockAction creates the lock action.
func NewLockAction(rad Radio) *LockAction {
	return &LockAction{radio: rad}
}

// Apply stores the flag.
func (a *LockAction) Apply(ctx context.Context, value string, form url.Values) error {
	locked, err := parseBool(a.GetName(), value)
	if err != nil {
		return err
	}
	a.radio.SetLocked(locked)
	return nil
}

func (a *LockAction) GetName() string        { return "lock" }
func (a *LockAction) GetDescription() string { return "Set (1) or clear (0) the lock flag" }

// KeyAction stores the key value.
type KeyAction struct {
	radio Radio
}

// NewKeyAction creates the key action.
func NewKeyAction(rad Radio) *KeyAction {
	return &KeyAction{radio: rad}
}

// Apply stores the key.
func (a *KeyAction) Apply(ctx context.Context, value string, form url.Values) error {
	n, err := parseInt(a.GetName(), value)
	if err != nil {
		return err
	}
	a.radio.SetKey(n)
	return nil
}

func (a *KeyAction) GetName() string        { return "key" }
func (a *KeyAction) GetDescription() string { return "Store an integer key" }

// RefreshAction rescans the station list. Any value triggers it.
type RefreshAction struct {
	radio Radio
}

// NewRefreshAction creates the refresh action.
func NewRefreshAction(rad Radio) *RefreshAction {
	return &RefreshAction{radio: rad}
}

// Apply rescans.
func (a *RefreshAction) Apply(ctx context.Context, value string, form url.Values) error {
	return a.radio.RefreshStationList(ctx)
}

func (a *RefreshAction) GetName() string        { return "refresh" }
func (a *RefreshAction) GetDescription() string { return "Rescan the band for stations" }
