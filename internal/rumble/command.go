// Package rumble maps application rumble requests onto the four motors of
// the controller and schedules the resulting output reports.
package rumble

import (
	"fmt"

	"xboxbt-driver/internal/quirks"
)

const (
	ReportID      = 0x03
	CommandLength = 9

	pulseSustain = 0xFF
	pulseLoop    = 0xEB
)

// Enable is the motor enable mask of a command.
type Enable uint8

const (
	EnableWeak   Enable = 0x01 // right main motor
	EnableStrong Enable = 0x02 // left main motor
	EnableRight  Enable = 0x04 // right trigger
	EnableLeft   Enable = 0x08 // left trigger

	EnableNone     Enable = 0
	EnableMain            = EnableWeak | EnableStrong
	EnableTriggers        = EnableLeft | EnableRight
	EnableAll             = EnableMain | EnableTriggers
)

// Motors holds one magnitude per motor in 0..100.
type Motors struct {
	Strong, Weak, Left, Right uint8
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// Max returns the elementwise maximum of m and o.
func (m Motors) Max(o Motors) Motors {
	return Motors{
		Strong: maxU8(m.Strong, o.Strong),
		Weak:   maxU8(m.Weak, o.Weak),
		Left:   maxU8(m.Left, o.Left),
		Right:  maxU8(m.Right, o.Right),
	}
}

// IsZero reports whether every motor is off.
func (m Motors) IsZero() bool { return m == Motors{} }

func (m Motors) String() string {
	return fmt.Sprintf("strong=%d weak=%d left=%d right=%d", m.Strong, m.Weak, m.Left, m.Right)
}

// Command is one output report.
type Command struct {
	Enable Enable
	Motors Motors
	Pulse  bool
}

func swapBits(v Enable, b1, b2 uint) Enable {
	if (v>>b1)&1 == (v>>b2)&1 {
		return v
	}
	return v ^ (1 << b1) ^ (1 << b2)
}

// wireMask adjusts the enable mask for firmware that numbers the motor bits
// differently.
func wireMask(e Enable, q quirks.Set) Enable {
	if q.ReverseMask() {
		e = swapBits(swapBits(e, 1, 2), 0, 3)
	}
	if q.SwappedMask() {
		e = swapBits(swapBits(e, 0, 2), 1, 3)
	}
	return e
}

// Bytes encodes the command as report 3.
func (c Command) Bytes() []byte {
	b := make([]byte, CommandLength)
	b[0] = ReportID
	b[1] = byte(c.Enable)
	b[2] = c.Motors.Left
	b[3] = c.Motors.Right
	b[4] = c.Motors.Strong
	b[5] = c.Motors.Weak
	if c.Pulse {
		b[6] = pulseSustain
		b[8] = pulseLoop
	}
	return b
}
