// Package profile implements the Xbox button as a shift key: held together
// with A, B, X or Y it selects one of four profiles instead of producing its
// own button event.
package profile

import (
	"go.uber.org/zap"

	"xboxbt-driver/internal/report"
)

// Shift is the button acting as modifier.
const Shift = report.ButtonXbox

// MouseToggle toggles mouse mode while the shift key is held.
const MouseToggle = report.ButtonBack

var selectors = map[report.Button]uint8{
	report.ButtonA: 0,
	report.ButtonB: 1,
	report.ButtonX: 2,
	report.ButtonY: 3,
}

// State of the shift key.
type State uint8

const (
	Idle State = iota
	ShiftHeld
	ShiftHeldConsumed
)

func (s State) String() string {
	switch s {
	case ShiftHeld:
		return "shift-held"
	case ShiftHeldConsumed:
		return "shift-consumed"
	}
	return "idle"
}

// Event is a button transition to forward to the output sinks.
type Event struct {
	Button  report.Button
	Pressed bool
}

// Result is the outcome of one button transition.
type Result struct {
	Forward        []Event
	ProfileChanged bool
	Profile        uint8
	ToggleMouse    bool
}

// Machine is the per-connection shift key state. It is driven from the
// report path only.
type Machine struct {
	state       State
	profile     uint8
	passThrough bool
	swallowed   report.Buttons
	log         *zap.Logger
}

// New creates a machine. With hwProfiles or disabled set the shift key is an
// ordinary button.
func New(hwProfiles, disabled bool, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{passThrough: hwProfiles || disabled, log: log}
}

// State returns the current shift key state.
func (m *Machine) State() State { return m.state }

// Profile returns the selected profile, 0..3.
func (m *Machine) Profile() uint8 { return m.profile }

// Emulated reports whether the machine selects profiles itself rather than
// passing the shift key through.
func (m *Machine) Emulated() bool { return !m.passThrough }

// Handle processes one press or release.
func (m *Machine) Handle(b report.Button, pressed bool) Result {
	var res Result
	res.Profile = m.profile

	if m.passThrough {
		res.Forward = []Event{{b, pressed}}
		return res
	}

	if b == Shift {
		switch {
		case pressed && m.state == Idle:
			m.state = ShiftHeld
		case pressed:
			// repeated press while held
		case m.state == ShiftHeldConsumed:
			m.state = Idle
		case m.state == ShiftHeld:
			m.state = Idle
			res.Forward = []Event{{Shift, true}, {Shift, false}}
		default:
			res.Forward = []Event{{Shift, false}}
		}
		return res
	}

	if !pressed && m.swallowed.Has(b) {
		m.swallowed &^= report.Buttons(b)
		return res
	}

	if pressed && m.state != Idle {
		if p, ok := selectors[b]; ok {
			m.state = ShiftHeldConsumed
			m.swallowed |= report.Buttons(b)
			res.ProfileChanged = m.switchProfile(p)
			res.Profile = m.profile
			return res
		}
		if b == MouseToggle {
			m.state = ShiftHeldConsumed
			m.swallowed |= report.Buttons(b)
			res.ToggleMouse = true
			return res
		}
	}

	res.Forward = []Event{{b, pressed}}
	return res
}

func (m *Machine) switchProfile(p uint8) bool {
	if m.profile == p {
		return false
	}
	m.log.Info("profile switched", zap.Uint8("from", m.profile), zap.Uint8("to", p))
	m.profile = p
	return true
}

// SetHardware records the profile reported by controllers that manage
// profiles themselves.
func (m *Machine) SetHardware(p uint8) bool {
	return m.switchProfile(p)
}
