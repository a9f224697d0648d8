package report

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Button is one bit of the canonical button field.
type Button uint16

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonLB
	ButtonRB
	ButtonBack
	ButtonMenu
	ButtonLS
	ButtonRS
	ButtonXbox
	ButtonShare
)

// AllButtons lists the canonical buttons in bit order.
var AllButtons = []Button{
	ButtonA, ButtonB, ButtonX, ButtonY, ButtonLB, ButtonRB,
	ButtonBack, ButtonMenu, ButtonLS, ButtonRS, ButtonXbox, ButtonShare,
}

var buttonNames = map[Button]string{
	ButtonA: "A", ButtonB: "B", ButtonX: "X", ButtonY: "Y",
	ButtonLB: "LB", ButtonRB: "RB", ButtonBack: "Back", ButtonMenu: "Menu",
	ButtonLS: "LS", ButtonRS: "RS", ButtonXbox: "Xbox", ButtonShare: "Share",
}

func (b Button) String() string {
	if n, ok := buttonNames[b]; ok {
		return n
	}
	return fmt.Sprintf("Button(0x%x)", uint16(b))
}

// Buttons is a set of pressed buttons.
type Buttons uint16

func (b Buttons) Has(x Button) bool { return uint16(b)&uint16(x) != 0 }

func (b Buttons) String() string {
	var out []string
	for _, x := range AllButtons {
		if b.Has(x) {
			out = append(out, x.String())
		}
	}
	return strings.Join(out, "+")
}

// Trigger scale settings of the Elite Series 2.
type TriggerScale uint8

const (
	TriggerScaleFull TriggerScale = iota
	TriggerScaleHalf
	TriggerScaleDigital
)

func (t TriggerScale) String() string {
	switch t {
	case TriggerScaleFull:
		return "full"
	case TriggerScaleHalf:
		return "half"
	case TriggerScaleDigital:
		return "digital"
	}
	return "unknown"
}

// State is a decoded canonical state report.
type State struct {
	LX, LY, RX, RY uint16 // 0..65535, 32768 centred
	LT, RT         uint16 // 0..1023
	Hat            uint8  // 0 centred, 1..8 clockwise from up
	Buttons        Buttons

	// Elite Series 2 extras
	Paddles         uint8 // bits 0..3
	HasPaddles      bool
	Profile         uint8
	HasProfile      bool
	ScaleLeft       TriggerScale
	ScaleRight      TriggerScale
	HasTriggerScale bool
}

// DPad converts the hat to -1/0/1 axis values, y pointing down.
func (s State) DPad() (x, y int32) {
	h := s.Hat
	if h >= 1 && h <= 2 || h == 8 {
		y = -1
	}
	if h >= 4 && h <= 6 {
		y = 1
	}
	if h >= 2 && h <= 4 {
		x = 1
	}
	if h >= 6 && h <= 8 {
		x = -1
	}
	return x, y
}

// Decode reads a canonical report produced by Classifier.Process.
// shareByte selects the Series X|S Windows layout where byte 16 bit 0 is the
// share button.
func Decode(data []byte, shareByte bool) (State, error) {
	if len(data) < minStateLength {
		return State{}, fmt.Errorf("%w: %d bytes", ErrShortReport, len(data))
	}

	le := binary.LittleEndian
	s := State{
		LX:      le.Uint16(data[1:]),
		LY:      le.Uint16(data[3:]),
		RX:      le.Uint16(data[5:]),
		RY:      le.Uint16(data[7:]),
		LT:      le.Uint16(data[9:]) & 0x03FF,
		RT:      le.Uint16(data[11:]) & 0x03FF,
		Hat:     data[13] & 0x0F,
		Buttons: Buttons(le.Uint16(data[14:]) & 0x0FFF),
	}
	if s.Hat > 8 {
		s.Hat = 0
	}
	if shareByte && len(data) >= 17 && data[16]&0x01 != 0 {
		s.Buttons |= Buttons(ButtonShare)
	}

	decodeElite(&s, data)
	return s, nil
}

func decodeElite(s *State, data []byte) {
	var profile, scale, paddles int
	switch n := len(data); {
	case n == 55:
		profile, scale, paddles = 35, 36, 18
	case n >= 21:
		profile, scale, paddles = 19, 20, 18
	case n == 20:
		profile, scale, paddles = 17, 18, -1
	default:
		return
	}

	s.Profile = data[profile] & 0x03
	s.HasProfile = true
	s.ScaleLeft = TriggerScale(data[scale] & 0x03)
	s.ScaleRight = TriggerScale((data[scale] >> 2) & 0x03)
	s.HasTriggerScale = true
	if paddles >= 0 {
		s.Paddles = data[paddles] & 0x0F
		s.HasPaddles = true
	}
}

// DecodeGuide reads the Xbox button from report 2, which the Windows layout
// uses instead of a bit in the state report.
func DecodeGuide(data []byte) (bool, error) {
	if len(data) == 0 || data[0] != GuideReportID {
		return false, ErrNotState
	}
	if len(data) < 2 {
		return false, fmt.Errorf("%w: %d bytes", ErrShortReport, len(data))
	}
	return data[1]&0x01 != 0, nil
}
