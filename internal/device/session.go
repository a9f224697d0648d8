// Package device runs one attached controller: it turns raw input reports
// into events on the virtual input devices and rumble requests into output
// reports.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/battery"
	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/input"
	"xboxbt-driver/internal/mouse"
	"xboxbt-driver/internal/profile"
	"xboxbt-driver/internal/quirks"
	"xboxbt-driver/internal/rdesc"
	"xboxbt-driver/internal/report"
	"xboxbt-driver/internal/rumble"
)

const (
	// report id of the battery status when the descriptor does not say
	defaultBatteryReportID = 0x04
	stickCentre            = 32768
)

// Identity describes the physical controller.
type Identity struct {
	Bus     uint16
	Vendor  uint16
	Product uint16
	Version uint16
	Name    string
	Address string // HID_UNIQ, the Bluetooth address
	Path    string // hidraw node
}

// Sinks are the virtual input devices of one controller. Only Gamepad is
// required.
type Sinks struct {
	Gamepad  input.Sink
	Consumer input.Sink
	Keyboard input.Sink
	Mouse    input.Sink
}

// Params are the inputs of Attach.
type Params struct {
	ID         int
	Identity   Identity
	Descriptor []byte
	Config     *config.Config
	Sinks      Sinks
	Transport  io.Writer
	Observer   Observer
	Log        *zap.Logger
	Rumble     []rumble.Option
}

// Session is one attached controller. HandleReport and Run must be driven
// from a single goroutine; Rumble and Status are safe from any goroutine.
type Session struct {
	id       int
	identity Identity
	quirks   quirks.Set
	fixup    rdesc.Result
	desc     []byte
	log      *zap.Logger
	observer Observer

	batteryID uint8

	classifier *report.Classifier
	axes       *axis.Normalizer
	shift      *profile.Machine
	mapper     *rumble.Mapper
	scheduler  *rumble.Scheduler
	battery    battery.Tracker
	mouse      *mouse.Emulator

	gamepad, consumer, keyboard *sink

	// report path state
	prev      report.State
	seen      bool
	resync    bool // gamepad axes are sent in full on the next report
	stateBtns report.Buttons
	guide     bool
	pressed   report.Buttons

	mu        sync.Mutex
	variant   report.Variant
	profile   uint8
	mouseMode bool
	closeOnce sync.Once
}

// Probed is what the descriptor and the quirk table say about a controller.
type Probed struct {
	Descriptor []byte // fixed up
	Fixup      rdesc.Result
	Quirks     quirks.Set
	BatteryID  uint8
}

// Probe fixes up the report descriptor and resolves the quirks of a
// controller.
func Probe(id Identity, descriptor []byte, overrides []string, log *zap.Logger) Probed {
	desc, fix := rdesc.Fixup(descriptor)

	batteryID, ok := rdesc.BatteryReportID(desc)
	if !ok {
		batteryID = defaultBatteryReportID
	}

	q := quirks.Builtin().Resolve(quirks.Device{
		Product:        id.Product,
		Name:           id.Name,
		Address:        id.Address,
		DescriptorSize: len(descriptor),
	}, overrides, log)
	if fix.LinuxButtons {
		q |= quirks.LinuxButtons
	}
	return Probed{Descriptor: desc, Fixup: fix, Quirks: q, BatteryID: batteryID}
}

// Attach builds the session for a newly found controller.
func Attach(p Params) *Session {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log = log.With(zap.Int("id", p.ID), zap.String("address", p.Identity.Address))

	pr := Probe(p.Identity, p.Descriptor, cfg.Quirks, log)
	if pr.Fixup.Changed() {
		log.Info("report descriptor fixed",
			zap.Bool("trimmed", pr.Fixup.Trimmed),
			zap.Bool("axes", pr.Fixup.AxesFixed),
			zap.Bool("simulation", pr.Fixup.SimFixed),
			zap.Bool("linux_buttons", pr.Fixup.LinuxButtons))
	}
	q := pr.Quirks
	log.Info("controller attached",
		zap.String("name", p.Identity.Name),
		zap.String("product", fmt.Sprintf("%04x", p.Identity.Product)),
		zap.Stringer("quirks", q))

	s := &Session{
		id:        p.ID,
		identity:  p.Identity,
		quirks:    q,
		fixup:     pr.Fixup,
		desc:      pr.Descriptor,
		log:       log,
		observer:  p.Observer,
		batteryID: pr.BatteryID,
	}

	s.gamepad = newSink("gamepad", p.Sinks.Gamepad, log)
	s.consumer = newSink("consumer control", p.Sinks.Consumer, log)
	s.keyboard = newSink("keyboard", p.Sinks.Keyboard, log)

	attMain, attTrig := cfg.Attenuation()
	s.classifier = report.NewClassifier(q, log)
	s.axes = axis.NewNormalizer(cfg.AxisOptions())
	s.shift = profile.New(q.UseHWProfiles(), cfg.DisableShiftMode, log)
	s.mapper = rumble.NewMapper(cfg.RumbleMode(), attMain, attTrig)

	transport := p.Transport
	if transport == nil {
		transport = io.Discard
	}
	s.scheduler = rumble.NewScheduler(transport, q, log, p.Rumble...)
	s.mouse = mouse.New(p.Sinks.Mouse, s.keyboard.orNil(), s.consumer.orNil(), log)
	s.mouse.Start()
	return s
}

// ID is the instance id used to name the virtual devices.
func (s *Session) ID() int { return s.id }

// Identity returns the controller the session was attached to.
func (s *Session) Identity() Identity { return s.identity }

// Quirks returns the resolved quirk set.
func (s *Session) Quirks() quirks.Set { return s.quirks }

// Fixup says which descriptor patches were applied.
func (s *Session) Fixup() rdesc.Result { return s.fixup }

// Descriptor returns the fixed report descriptor.
func (s *Session) Descriptor() []byte { return s.desc }

// Run consumes reports in arrival order until the channel closes or ctx is
// done.
func (s *Session) Run(ctx context.Context, reports <-chan []byte) error {
	s.notify(Event{Kind: EventConnected})
	defer s.notify(Event{Kind: EventDisconnected})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-reports:
			if !ok {
				return nil
			}
			s.HandleReport(data)
		}
	}
}

// HandleReport processes one raw input report.
func (s *Session) HandleReport(data []byte) {
	if len(data) == 0 {
		return
	}

	switch data[0] {
	case report.StateReportID:
		s.handleState(data)
	case report.GuideReportID:
		pressed, err := report.DecodeGuide(data)
		if err != nil {
			s.log.Debug("bad guide report", zap.Error(err))
			return
		}
		s.guide = pressed
		s.buttons()
	case s.batteryID:
		if len(data) < 2 {
			return
		}
		s.handleBattery(data[1])
	default:
		return
	}
	s.flush()
}

func (s *Session) handleState(data []byte) {
	canonical, err := s.classifier.Process(data)
	if err != nil {
		if !errors.Is(err, report.ErrDuplicate) {
			s.log.Debug("dropping report", zap.Error(err))
		}
		return
	}
	st, err := report.Decode(canonical, s.quirks.ShareButton())
	if err != nil {
		s.log.Debug("dropping report", zap.Error(err))
		return
	}

	if s.quirks.UseHWProfiles() && st.HasProfile && s.shift.SetHardware(st.Profile) {
		s.profileChanged(st.Profile)
	}

	if v := s.classifier.Variant(); v != s.variant {
		s.mu.Lock()
		s.variant = v
		s.mu.Unlock()
	}

	s.stateBtns = st.Buttons
	s.buttons()
	s.analog(st)
	s.paddles(st)

	s.prev = st
	s.seen = true
}

// buttons feeds every changed button through the shift key and mouse mode.
func (s *Session) buttons() {
	cur := s.stateBtns
	if s.guide {
		cur |= report.Buttons(report.ButtonXbox)
	}
	changed := cur ^ s.pressed
	if changed == 0 {
		return
	}
	s.pressed = cur

	for _, b := range report.AllButtons {
		if !changed.Has(b) {
			continue
		}
		res := s.shift.Handle(b, cur.Has(b))
		if res.ProfileChanged {
			s.profileChanged(res.Profile)
		}
		if res.ToggleMouse {
			s.toggleMouse()
		}
		for i, ev := range res.Forward {
			if i > 0 {
				// a replayed tap needs its own frame for the press
				s.flush()
			}
			s.button(ev.Button, ev.Pressed)
		}
	}
}

var gamepadButtons = map[report.Button]uint16{
	report.ButtonA:     input.BtnA,
	report.ButtonB:     input.BtnB,
	report.ButtonX:     input.BtnX,
	report.ButtonY:     input.BtnY,
	report.ButtonLB:    input.BtnTL,
	report.ButtonRB:    input.BtnTR,
	report.ButtonBack:  input.BtnSelect,
	report.ButtonMenu:  input.BtnStart,
	report.ButtonLS:    input.BtnThumbL,
	report.ButtonRS:    input.BtnThumbR,
	report.ButtonXbox:  input.BtnMode,
	report.ButtonShare: input.BtnShare,
}

func (s *Session) button(b report.Button, pressed bool) {
	if s.mouse.Button(b, pressed) {
		return
	}
	code, ok := gamepadButtons[b]
	if !ok {
		return
	}
	s.gamepad.Key(code, pressed)
	if b == report.ButtonXbox || b == report.ButtonShare {
		s.consumer.Key(code, pressed)
	}
}

func (s *Session) analog(st report.State) {
	first := !s.seen || s.resync
	s.resync = false
	p := s.prev

	if !s.mouse.Sticks(st.LX, st.LY, st.RX, st.RY) {
		if first || st.LX != p.LX {
			s.gamepad.Abs(input.AbsX, s.axes.Stick(st.LX))
		}
		if first || st.LY != p.LY {
			s.gamepad.Abs(input.AbsY, s.axes.Stick(st.LY))
		}
		if first || st.RX != p.RX {
			s.gamepad.Abs(input.AbsRX, s.axes.Stick(st.RX))
		}
		if first || st.RY != p.RY {
			s.gamepad.Abs(input.AbsRY, s.axes.Stick(st.RY))
		}
	}

	s.mapper.SetTriggers(st.LT, st.RT)
	if !s.mouse.Triggers(st.LT, st.RT) {
		if first || st.LT != p.LT {
			s.gamepad.Abs(input.AbsZ, int32(st.LT))
		}
		if first || st.RT != p.RT {
			s.gamepad.Abs(input.AbsRZ, int32(st.RT))
		}
		s.axes.BeginFrame()
		s.axes.Trigger(axis.Left, st.LT)
		if v, ok := s.axes.Trigger(axis.Right, st.RT); ok && (first || st.LT != p.LT || st.RT != p.RT) {
			s.gamepad.Abs(input.AbsRudder, v)
		}
	}

	if !first && st.Hat == p.Hat || s.mouse.Hat(st.Hat) {
		return
	}
	x, y := st.DPad()
	px, py := p.DPad()
	if first || x != px {
		s.gamepad.Abs(input.AbsHat0X, x)
	}
	if first || y != py {
		s.gamepad.Abs(input.AbsHat0Y, y)
	}
	s.gamepad.Key(input.BtnDpadUp, y < 0)
	s.gamepad.Key(input.BtnDpadDown, y > 0)
	s.gamepad.Key(input.BtnDpadLeft, x < 0)
	s.gamepad.Key(input.BtnDpadRight, x > 0)
}

var paddleCodes = [4]uint16{input.BtnPaddle1, input.BtnPaddle2, input.BtnPaddle3, input.BtnPaddle4}

func (s *Session) paddles(st report.State) {
	if !st.HasPaddles {
		return
	}
	changed := st.Paddles ^ s.prev.Paddles
	if !s.seen {
		changed = st.Paddles
	}
	for i, code := range paddleCodes {
		if changed&(1<<i) != 0 {
			s.gamepad.Key(code, st.Paddles&(1<<i) != 0)
		}
	}
}

func (s *Session) handleBattery(b byte) {
	st, register, changed := s.battery.Update(b)
	if register {
		s.log.Info("battery registered",
			zap.String("name", battery.Name(s.identity.Address, s.id)),
			zap.Stringer("battery", st))
	}
	if changed {
		s.log.Debug("battery changed", zap.Stringer("battery", st))
		s.notify(Event{Kind: EventBattery, Battery: &st})
	}
}

func (s *Session) profileChanged(p uint8) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.gamepad.Abs(input.AbsProfile, int32(p))
	s.notify(Event{Kind: EventProfile, Profile: p})
}

func (s *Session) toggleMouse() {
	on := s.mouse.Toggle()
	if on {
		s.neutralAnalog()
	} else {
		s.resync = true
	}
	s.mu.Lock()
	s.mouseMode = on
	s.mu.Unlock()
	s.notify(Event{Kind: EventMouseMode, MouseMode: on})
}

// neutralAnalog centres the gamepad controls mouse mode takes over, so
// nothing stays deflected while the mouse owns them.
func (s *Session) neutralAnalog() {
	if !s.seen {
		return
	}
	p := s.prev
	sticks := [...]struct {
		code uint16
		v    uint16
	}{{input.AbsX, p.LX}, {input.AbsY, p.LY}, {input.AbsRX, p.RX}, {input.AbsRY, p.RY}}
	for _, a := range sticks {
		if a.v != stickCentre {
			s.gamepad.Abs(a.code, s.axes.Stick(stickCentre))
		}
	}
	if p.LT != 0 || p.RT != 0 {
		s.gamepad.Abs(input.AbsZ, 0)
		s.gamepad.Abs(input.AbsRZ, 0)
		s.axes.BeginFrame()
		s.axes.Trigger(axis.Left, 0)
		if v, ok := s.axes.Trigger(axis.Right, 0); ok {
			s.gamepad.Abs(input.AbsRudder, v)
		}
	}
	if p.Hat != 0 {
		s.gamepad.Abs(input.AbsHat0X, 0)
		s.gamepad.Abs(input.AbsHat0Y, 0)
		s.gamepad.Key(input.BtnDpadUp, false)
		s.gamepad.Key(input.BtnDpadDown, false)
		s.gamepad.Key(input.BtnDpadLeft, false)
		s.gamepad.Key(input.BtnDpadRight, false)
	}
}

// flush syncs every sink written to during this report.
func (s *Session) flush() {
	s.consumer.flush()
	s.gamepad.flush()
	s.keyboard.flush()
}

// Rumble maps an application rumble request and queues it for the
// controller.
func (s *Session) Rumble(req rumble.Request) {
	s.scheduler.Submit(s.mapper.Map(req))
}

// Status returns a snapshot for status reporting.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:        s.id,
		Name:      s.identity.Name,
		Address:   s.identity.Address,
		Product:   fmt.Sprintf("%04x", s.identity.Product),
		Quirks:    s.quirks.String(),
		Variant:   s.variant.String(),
		Profile:   s.profile,
		MouseMode: s.mouseMode,
	}
	s.mu.Unlock()

	if b, ok := s.battery.State(); ok {
		st.Battery = &b
	}
	st.Rumble = s.scheduler.Stats()
	return st
}

// Close stops mouse mode and cancels pending rumble. The transport may be
// closed once Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mouse.Close()
		s.scheduler.Close()
		s.log.Info("controller detached")
	})
}
