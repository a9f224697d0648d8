// Package input holds the Linux input event codes used by the driver and the
// interface of a virtual input device.
package input

// Sink is one virtual input device. Events are buffered until Sync.
type Sink interface {
	Key(code uint16, pressed bool) error
	Abs(code uint16, value int32) error
	Rel(code uint16, value int32) error
	Sync() error
}

// Event types
const (
	EvSyn    = 0x00
	EvKey    = 0x01
	EvRel    = 0x02
	EvAbs    = 0x03
	EvMsc    = 0x04
	EvFF     = 0x15
	EvUinput = 0x0101
)

// Gamepad buttons
const (
	BtnSouth     = 0x130
	BtnEast      = 0x131
	BtnNorth     = 0x133
	BtnWest      = 0x134
	BtnTL        = 0x136
	BtnTR        = 0x137
	BtnTL2       = 0x138
	BtnTR2       = 0x139
	BtnSelect    = 0x13a
	BtnStart     = 0x13b
	BtnMode      = 0x13c
	BtnThumbL    = 0x13d
	BtnThumbR    = 0x13e
	BtnDpadUp    = 0x220
	BtnDpadDown  = 0x221
	BtnDpadLeft  = 0x222
	BtnDpadRight = 0x223

	BtnA = BtnSouth
	BtnB = BtnEast
	BtnX = BtnNorth
	BtnY = BtnWest

	BtnTriggerHappy1 = 0x2c0
	BtnShare         = BtnTriggerHappy1
	BtnPaddle1       = BtnTriggerHappy1 + 4
	BtnPaddle2       = BtnPaddle1 + 1
	BtnPaddle3       = BtnPaddle1 + 2
	BtnPaddle4       = BtnPaddle1 + 3
)

// Mouse buttons
const (
	BtnLeft    = 0x110
	BtnRight   = 0x111
	BtnMiddle  = 0x112
	BtnSide    = 0x113
	BtnExtra   = 0x114
	BtnForward = 0x115
	BtnBack    = 0x116
	BtnTask    = 0x117
)

// Keyboard keys
const (
	KeyEsc              = 1
	KeyEnter            = 28
	KeyUp               = 103
	KeyLeft             = 105
	KeyRight            = 106
	KeyDown             = 108
	KeyOnscreenKeyboard = 0x278
)

// Absolute axes
const (
	AbsX       = 0x00
	AbsY       = 0x01
	AbsZ       = 0x02
	AbsRX      = 0x03
	AbsRY      = 0x04
	AbsRZ      = 0x05
	AbsRudder  = 0x07
	AbsHat0X   = 0x10
	AbsHat0Y   = 0x11
	AbsProfile = 0x21
)

// Relative axes
const (
	RelX      = 0x00
	RelY      = 0x01
	RelHWheel = 0x06
	RelWheel  = 0x08
)

// Force feedback
const (
	FFRumble = 0x50
	FFGain   = 0x60

	UIFFUpload = 1
	UIFFErase  = 2
)

const (
	BusUSB       = 0x03
	BusBluetooth = 0x05
	BusVirtual   = 0x06
)
