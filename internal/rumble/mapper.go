package rumble

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// Mode selects how the trigger motors are driven.
type Mode uint8

const (
	ModePressure Mode = iota
	ModeDirectional
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModePressure:
		return "pressure"
	case ModeDirectional:
		return "directional"
	case ModeDisabled:
		return "disabled"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pressure", "":
		return ModePressure, nil
	case "directional":
		return ModeDirectional, nil
	case "disabled", "disable", "off":
		return ModeDisabled, nil
	}
	return 0, fmt.Errorf("unknown trigger rumble mode %q", s)
}

// Request is a two-motor rumble request as uploaded by applications.
// Direction 0 points down, 0x4000 left, 0x8000 up, 0xC000 right.
type Request struct {
	Strong, Weak uint16
	Direction    uint16
}

const triggerMax = 1023

// Mapper converts requests to motor magnitudes. Map may be called from any
// goroutine; trigger positions are updated from the report path.
type Mapper struct {
	mode         Mode
	percentMain  uint64
	percentTrig  uint64
	triggerLeft  atomic.Uint32
	triggerRight atomic.Uint32
}

// NewMapper builds a mapper. Attenuations are percentages; the trigger
// attenuation applies on top of the main one.
func NewMapper(mode Mode, attMain, attTrig uint8) *Mapper {
	if attMain > 100 {
		attMain = 100
	}
	if attTrig > 100 {
		attTrig = 100
	}
	pMain := 100 - uint64(attMain)
	return &Mapper{
		mode:        mode,
		percentMain: pMain,
		percentTrig: (100 - uint64(attTrig)) * pMain / 100,
	}
}

// Mode returns the trigger rumble mode.
func (m *Mapper) Mode() Mode { return m.mode }

// SetTriggers records the latest analog trigger positions (0..1023).
func (m *Mapper) SetTriggers(left, right uint16) {
	m.triggerLeft.Store(uint32(left))
	m.triggerRight.Store(uint32(right))
}

// scale maps a 16 bit magnitude through a factor and a percentage, both
// 0..100, to 0..100 rounding to nearest.
func scale(v uint16, factor, percent uint64) uint8 {
	const div = 0xFFFF * 100
	return uint8((uint64(v)*factor*percent + div/2) / div)
}

func roundFactor(f float64) uint64 {
	return uint64(math.Round(f))
}

func positionFactor(pos uint32) uint64 {
	if pos > triggerMax {
		pos = triggerMax
	}
	return (uint64(pos)*100 + triggerMax/2) / triggerMax
}

// Map computes the motor magnitudes for one request.
func (m *Mapper) Map(req Request) Motors {
	var fMain, fLeft, fRight uint64 = 100, 0, 0

	switch m.mode {
	case ModePressure:
		fLeft = positionFactor(m.triggerLeft.Load())
		fRight = positionFactor(m.triggerRight.Load())
	case ModeDirectional:
		theta := float64(req.Direction) / 65536 * 2 * math.Pi
		fMain = roundFactor(50 * (1 + math.Cos(theta)))
		fLeft = roundFactor(50 * (1 + math.Cos(theta-math.Pi/2)))
		fRight = roundFactor(50 * (1 + math.Cos(theta+math.Pi/2)))
	}

	base := req.Weak
	if req.Strong > base {
		base = req.Strong
	}

	return Motors{
		Strong: scale(req.Strong, fMain, m.percentMain),
		Weak:   scale(req.Weak, fMain, m.percentMain),
		Left:   scale(base, fLeft, m.percentTrig),
		Right:  scale(base, fRight, m.percentTrig),
	}
}
