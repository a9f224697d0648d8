// Package battery decodes the controller's battery status byte.
package battery

import (
	"fmt"
	"sync"
)

// Mode is the power source reported in bits 5..4.
type Mode uint8

const (
	ModeUSB Mode = iota
	ModeBattery
	ModeChargeDock
	ModeUnknown
)

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m Mode) String() string {
	switch m {
	case ModeUSB:
		return "usb"
	case ModeBattery:
		return "battery"
	case ModeChargeDock:
		return "charge-dock"
	}
	return "unknown"
}

// Level is the coarse capacity level.
type Level uint8

const (
	LevelUnknown Level = iota
	LevelCritical
	LevelLow
	LevelNormal
	LevelHigh
	LevelFull
)

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelLow:
		return "low"
	case LevelNormal:
		return "normal"
	case LevelHigh:
		return "high"
	case LevelFull:
		return "full"
	}
	return "unknown"
}

// Status mirrors the power supply status values.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusCharging
	StatusDischarging
	StatusNotCharging
)

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s Status) String() string {
	switch s {
	case StatusCharging:
		return "Charging"
	case StatusDischarging:
		return "Discharging"
	case StatusNotCharging:
		return "Not charging"
	}
	return "Unknown"
}

const (
	flagOnline   = 0x80
	flagCharging = 0x08
	modeShift    = 4
	modeMask     = 0x03
	levelMask    = 0x03
)

// State is the decoded status byte.
type State struct {
	Raw      byte   `json:"raw"`
	Online   bool   `json:"online"`
	Present  bool   `json:"present"`
	Charging bool   `json:"charging"`
	Mode     Mode   `json:"mode"`
	Level    Level  `json:"level"`
	Status   Status `json:"status"`
}

func (s State) String() string {
	return fmt.Sprintf("%s %s level=%s", s.Mode, s.Status, s.Level)
}

// Decode is a pure function of the status byte.
func Decode(b byte) State {
	s := State{
		Raw:      b,
		Online:   b&flagOnline != 0,
		Charging: b&flagCharging != 0,
		Mode:     Mode((b >> modeShift) & modeMask),
	}
	s.Present = s.Mode != ModeUSB || s.Charging

	switch {
	case s.Charging:
		s.Status = StatusCharging
	case s.Online && s.Mode == ModeUSB:
		s.Status = StatusNotCharging
	case s.Online && s.Present:
		s.Status = StatusDischarging
	default:
		s.Status = StatusUnknown
	}

	s.Level = LevelUnknown
	if s.Online && s.Present {
		switch b & levelMask {
		case 0:
			s.Level = LevelCritical
		case 1:
			s.Level = LevelLow
		case 2:
			s.Level = LevelNormal
		case 3:
			s.Level = LevelHigh
			if s.Mode == ModeChargeDock && !s.Charging {
				s.Level = LevelFull
			}
		}
	}
	return s
}

// Name returns the power supply name for a controller.
func Name(uniq string, id int) string {
	return fmt.Sprintf("xboxbt_batt_%s_%d", uniq, id)
}

// Tracker keeps the last status byte of one controller. Registration is
// deferred until the first online sample; updates only fire on change.
type Tracker struct {
	mu         sync.Mutex
	registered bool
	last       byte
	state      State
}

// Update feeds a new status byte. register is true exactly once, on the
// first online sample; changed is true when the byte differs from the last
// one seen after registration.
func (t *Tracker) Update(b byte) (s State, register, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s = Decode(b)
	if !t.registered {
		if !s.Online {
			return s, false, false
		}
		t.registered = true
		t.last = b
		t.state = s
		return s, true, true
	}

	if b == t.last {
		return t.state, false, false
	}
	t.last = b
	t.state = s
	return s, false, true
}

// State returns the last registered state.
func (t *Tracker) State() (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.registered
}
