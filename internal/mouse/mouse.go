// Package mouse turns the controller into a mouse and cursor keyboard while
// mouse mode is active.
package mouse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"xboxbt-driver/internal/input"
	"xboxbt-driver/internal/report"
)

const (
	Interval = 10 * time.Millisecond

	deadzone      = 3072
	motionDivisor = 1024
	wheelDivisor  = 16384

	pressAbove   = 640
	releaseBelow = 384
)

// Emulator tracks mouse mode. The report path feeds it controls; a ticker
// emits the accumulated motion every Interval.
type Emulator struct {
	mouse, keyboard, consumer input.Sink
	log                       *zap.Logger

	mu                         sync.Mutex
	enabled                    bool
	relX, relY, wheelX, wheelY int32
	errX, errY, errWX, errWY   int32
	left, right                bool
	hat                        uint8
	held                       map[report.Button]bool // pressed while enabled
	missing                    map[string]bool

	runMu  sync.Mutex
	stop   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates an emulator. Any sink may be nil; without a mouse sink mouse
// mode cannot be enabled.
func New(mouse, keyboard, consumer input.Sink, log *zap.Logger) *Emulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emulator{
		mouse:    mouse,
		keyboard: keyboard,
		consumer: consumer,
		log:      log,
		held:     make(map[report.Button]bool),
		missing:  make(map[string]bool),
	}
}

// Toggle flips mouse mode and returns the new state.
func (e *Emulator) Toggle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.mouse == nil:
		e.enabled = false
		e.log.Info("mouse not available")
	case e.enabled:
		e.enabled = false
		e.relX, e.relY, e.wheelX, e.wheelY = 0, 0, 0, 0
		e.releaseAnalog()
		e.log.Info("mouse mode disabled")
	default:
		e.enabled = true
		e.log.Info("mouse mode enabled")
	}
	return e.enabled
}

// releaseAnalog lets go of what the triggers and the d-pad hold down. The
// gamepad takes them over from here.
func (e *Emulator) releaseAnalog() {
	if e.left || e.right {
		if e.left {
			e.mouse.Key(input.BtnLeft, false)
		}
		if e.right {
			e.mouse.Key(input.BtnRight, false)
		}
		e.left, e.right = false, false
		e.mouse.Sync()
	}
	if e.hat != 0 && e.keyboard != nil {
		e.keyboard.Key(input.KeyUp, false)
		e.keyboard.Key(input.KeyRight, false)
		e.keyboard.Key(input.KeyDown, false)
		e.keyboard.Key(input.KeyLeft, false)
	}
	e.hat = 0
}

// Enabled reports whether mouse mode is on.
func (e *Emulator) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

func rescale(v, d int32) int32 {
	if v < d && v > -d {
		return 0
	}
	if v > 0 {
		return 32768 * (v - d) / (32768 - d)
	}
	return 32768 * (v + d) / (32768 - d)
}

// Sticks takes the raw unsigned stick values. It reports false when mouse
// mode is off and the sticks belong to the gamepad.
func (e *Emulator) Sticks(lx, ly, rx, ry uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return false
	}
	e.relX = rescale(int32(lx)-32768, deadzone)
	e.relY = rescale(int32(ly)-32768, deadzone)
	e.wheelX = rescale(int32(rx)-32768, deadzone)
	e.wheelY = rescale(int32(ry)-32768, deadzone)
	return true
}

func (e *Emulator) analog(state *bool, code uint16, v uint16) {
	switch {
	case *state && v < releaseBelow:
		*state = false
		e.mouse.Key(code, false)
		e.mouse.Sync()
	case !*state && v > pressAbove:
		*state = true
		e.mouse.Key(code, true)
		e.mouse.Sync()
	}
}

// Triggers maps the right trigger to the left mouse button and the left
// trigger to the right one.
func (e *Emulator) Triggers(lt, rt uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return false
	}
	e.analog(&e.left, input.BtnLeft, rt)
	e.analog(&e.right, input.BtnRight, lt)
	return true
}

func onHat(hat uint8, a, b, c uint8) bool {
	return hat == a || hat == b || hat == c
}

// Hat maps the d-pad to the cursor keys.
func (e *Emulator) Hat(hat uint8) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return false
	}
	if e.keyboard == nil {
		e.reportMissing("keyboard")
		return true
	}
	e.hat = hat
	e.keyboard.Key(input.KeyUp, onHat(hat, 8, 1, 2))
	e.keyboard.Key(input.KeyRight, onHat(hat, 2, 3, 4))
	e.keyboard.Key(input.KeyDown, onHat(hat, 4, 5, 6))
	e.keyboard.Key(input.KeyLeft, onHat(hat, 6, 7, 8))
	return true
}

var mouseButtons = map[report.Button]uint16{
	report.ButtonY:     input.BtnMiddle,
	report.ButtonLB:    input.BtnSide,
	report.ButtonRB:    input.BtnExtra,
	report.ButtonBack:  input.BtnBack,
	report.ButtonMenu:  input.BtnForward,
	report.ButtonShare: input.BtnTask,
}

// Button handles one button transition. It reports false for buttons that
// keep their gamepad meaning. A release goes wherever the press went, so a
// button held across a toggle is released on the device that saw it pressed.
func (e *Emulator) Button(b report.Button, pressed bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !pressed {
		if !e.held[b] {
			return false
		}
		delete(e.held, b)
		e.key(b, false)
		return true
	}
	if !e.enabled || !e.key(b, true) {
		return false
	}
	e.held[b] = true
	return true
}

func (e *Emulator) key(b report.Button, pressed bool) bool {
	switch b {
	case report.ButtonA, report.ButtonB:
		if e.keyboard == nil {
			e.reportMissing("keyboard")
			return true
		}
		code := uint16(input.KeyEnter)
		if b == report.ButtonB {
			code = input.KeyEsc
		}
		e.keyboard.Key(code, pressed)
		return true
	case report.ButtonX:
		if e.consumer == nil {
			e.reportMissing("consumer control")
			return true
		}
		e.consumer.Key(input.KeyOnscreenKeyboard, pressed)
		return true
	}

	if code, ok := mouseButtons[b]; ok {
		e.mouse.Key(code, pressed)
		e.mouse.Sync()
		return true
	}
	return false
}

func (e *Emulator) reportMissing(what string) {
	if !e.missing[what] {
		e.missing[what] = true
		e.log.Error(what + " not detected")
	}
}

func accumulate(v int32, rem *int32, div int32) int32 {
	v += *rem
	*rem = v % div
	return v / div
}

// Tick emits one interval worth of motion.
func (e *Emulator) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}

	dirty := false
	emit := func(code uint16, v int32) {
		if v != 0 {
			e.mouse.Rel(code, v)
			dirty = true
		}
	}
	emit(input.RelX, accumulate(e.relX, &e.errX, motionDivisor))
	emit(input.RelY, accumulate(e.relY, &e.errY, motionDivisor))
	emit(input.RelHWheel, accumulate(e.wheelX, &e.errWX, wheelDivisor))
	emit(input.RelWheel, accumulate(-e.wheelY, &e.errWY, wheelDivisor))
	if dirty {
		e.mouse.Sync()
	}
}

// Start runs Tick every Interval until Close. It does nothing after Close.
func (e *Emulator) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.mouse == nil || e.stop != nil || e.closed {
		return
	}
	stop := make(chan struct{})
	e.stop = stop
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	}()
}

// Close stops the ticker for good.
func (e *Emulator) Close() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.closed = true
	if e.stop != nil {
		close(e.stop)
		e.wg.Wait()
		e.stop = nil
	}
}
