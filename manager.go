package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/input"
	"xboxbt-driver/internal/quirks"
)

const defaultControllerName = "Xbox Wireless Controller"

// hidPort is the transport of one controller.
type hidPort interface {
	io.Writer
	Reports() <-chan []byte
	ReadLoop(ctx context.Context)
	Close() error
}

// virtualDevice is one created uinput device.
type virtualDevice interface {
	input.Sink
	Close() error
}

// platform opens the kernel devices. Tests replace it.
type platform struct {
	openHID   func(path string, log *zap.Logger) (hidPort, error)
	newDevice func(spec deviceSpec) (virtualDevice, error)
	grab      func(path string) (io.Closer, error)
}

var linuxPlatform = platform{
	openHID: func(path string, log *zap.Logger) (hidPort, error) {
		h, err := OpenHID(path, log)
		if err != nil {
			return nil, err
		}
		return h, nil
	},
	newDevice: func(spec deviceSpec) (virtualDevice, error) {
		v, err := NewVirtualDevice(spec)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	grab: func(path string) (io.Closer, error) {
		f, err := grabEvdev(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	},
}

// activeController is a running controller instance.
type activeController struct {
	node    string
	session *device.Session
	hid     hidPort
	devices []virtualDevice
	grab    io.Closer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Manager handles detection and lifecycle of controllers.
type Manager struct {
	cfg   *config.Config
	sys   sysfs
	table *quirks.Table
	plat  platform
	log   *zap.Logger

	mu        sync.Mutex
	active    map[string]*activeController
	ids       map[int]bool
	observers []device.Observer
	closed    bool
}

// NewManager creates a manager with no controllers attached.
func NewManager(cfg *config.Config, sys sysfs, plat platform, log *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		sys:    sys,
		table:  quirks.Builtin(),
		plat:   plat,
		log:    log,
		active: make(map[string]*activeController),
		ids:    make(map[int]bool),
	}
}

// Observe adds a receiver of session events. Call before Scan.
func (m *Manager) Observe(o device.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) notify(ev device.Event) {
	m.mu.Lock()
	obs := append([]device.Observer(nil), m.observers...)
	m.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

// Scan attaches new controllers and detaches the ones whose node is gone.
func (m *Manager) Scan(ctx context.Context) {
	devs, err := m.sys.Scan(m.table)
	if err != nil {
		m.log.Warn("scan failed", zap.Error(err))
		return
	}

	present := make(map[string]bool, len(devs))
	for _, d := range devs {
		present[d.Node] = true
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var gone []*activeController
	for node, ac := range m.active {
		if !present[node] {
			gone = append(gone, ac)
		}
	}
	m.mu.Unlock()

	for _, ac := range gone {
		m.detach(ac)
	}

	for _, d := range devs {
		m.mu.Lock()
		_, exists := m.active[d.Node]
		m.mu.Unlock()
		if exists {
			continue
		}
		if err := m.attach(ctx, d); err != nil {
			m.log.Error("failed to start controller", zap.String("node", d.Node), zap.Error(err))
		}
	}
}

// allocID returns the smallest free instance id.
func (m *Manager) allocID() int {
	for id := 0; ; id++ {
		if !m.ids[id] {
			m.ids[id] = true
			return id
		}
	}
}

func (m *Manager) releaseID(id int) {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
}

func (m *Manager) attach(ctx context.Context, d hidDevice) error {
	m.mu.Lock()
	id := m.allocID()
	m.mu.Unlock()

	log := m.log.With(zap.String("node", d.Node))
	ident := d.Identity
	if ident.Name == "" {
		ident.Name = defaultControllerName
	}

	hid, err := m.plat.openHID(ident.Path, log)
	if err != nil {
		m.releaseID(id)
		return err
	}

	ac := &activeController{node: d.Node, hid: hid}
	fail := func(err error) error {
		for _, dev := range ac.devices {
			dev.Close()
		}
		if ac.grab != nil {
			ac.grab.Close()
		}
		hid.Close()
		m.releaseID(id)
		return err
	}

	opts := m.cfg.AxisOptions()
	specs := virtualSpecs(ident, opts, m.cfg.FakeDevVersion)
	var sinks [4]virtualDevice
	for i, spec := range specs {
		dev, err := m.plat.newDevice(spec)
		if err != nil {
			if i == 0 {
				return fail(fmt.Errorf("create %q: %w", spec.Name, err))
			}
			// the session runs without the missing sink
			log.Warn("failed to create virtual device", zap.String("name", spec.Name), zap.Error(err))
			continue
		}
		sinks[i] = dev
		ac.devices = append(ac.devices, dev)
	}

	if d.Evdev != "" {
		g, err := m.plat.grab(d.Evdev)
		if err != nil {
			log.Info("could not grab original evdev", zap.String("evdev", d.Evdev), zap.Error(err))
		} else {
			ac.grab = g
			log.Debug("grabbed original evdev", zap.String("evdev", d.Evdev))
		}
	}

	ac.session = device.Attach(device.Params{
		ID:         id,
		Identity:   ident,
		Descriptor: d.Descriptor,
		Config:     m.cfg,
		Sinks: device.Sinks{
			Gamepad:  sinks[0],
			Consumer: asSink(sinks[1]),
			Keyboard: asSink(sinks[2]),
			Mouse:    asSink(sinks[3]),
		},
		Transport: hid,
		Observer:  m.notify,
		Log:       log,
	})

	if vd, ok := sinks[0].(*VirtualDevice); ok {
		ff := newFFHandler(vd, ac.session.Rumble, log)
		ac.wg.Add(1)
		go func() {
			defer ac.wg.Done()
			ff.Run()
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	ac.cancel = cancel
	ac.wg.Add(2)
	go func() {
		defer ac.wg.Done()
		hid.ReadLoop(runCtx)
	}()
	go func() {
		defer ac.wg.Done()
		if err := ac.session.Run(runCtx, hid.Reports()); err != nil {
			log.Debug("session stopped", zap.Error(err))
		}
		// the node went away or we were cancelled; a rescan cleans up
	}()

	m.mu.Lock()
	m.active[d.Node] = ac
	m.mu.Unlock()

	log.Debug("controller started", zap.Int("id", id))
	return nil
}

// asSink avoids a non-nil interface holding a nil device.
func asSink(d virtualDevice) input.Sink {
	if d == nil {
		return nil
	}
	return d
}

func (m *Manager) detach(ac *activeController) {
	m.mu.Lock()
	if m.active[ac.node] != ac {
		m.mu.Unlock()
		return
	}
	delete(m.active, ac.node)
	m.mu.Unlock()

	ac.cancel()
	ac.session.Close()
	ac.hid.Close()
	if ac.grab != nil {
		ac.grab.Close()
	}
	for _, dev := range ac.devices {
		dev.Close()
	}
	ac.wg.Wait()
	m.releaseID(ac.session.ID())

	m.log.Debug("controller released", zap.String("node", ac.node), zap.Int("id", ac.session.ID()))
}

// Statuses lists the attached controllers ordered by id.
func (m *Manager) Statuses() []device.Status {
	m.mu.Lock()
	sessions := make([]*device.Session, 0, len(m.active))
	for _, ac := range m.active {
		sessions = append(sessions, ac.session)
	}
	m.mu.Unlock()

	out := make([]device.Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close detaches every controller. Scan does nothing afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*activeController, 0, len(m.active))
	for _, ac := range m.active {
		all = append(all, ac)
	}
	m.mu.Unlock()

	for _, ac := range all {
		m.detach(ac)
	}
}

// deviceName derives the name of an auxiliary device.
func deviceName(base, suffix string) string {
	if strings.HasSuffix(base, suffix) {
		return base
	}
	return base + " " + suffix
}

var (
	padKeys = []uint16{
		input.BtnA, input.BtnB, input.BtnX, input.BtnY,
		input.BtnTL, input.BtnTR, input.BtnSelect, input.BtnStart,
		input.BtnMode, input.BtnThumbL, input.BtnThumbR,
		input.BtnDpadUp, input.BtnDpadDown, input.BtnDpadLeft, input.BtnDpadRight,
		input.BtnShare,
		input.BtnPaddle1, input.BtnPaddle2, input.BtnPaddle3, input.BtnPaddle4,
	}
	consumerKeys = []uint16{input.BtnMode, input.BtnShare, input.KeyOnscreenKeyboard}
	keyboardKeys = []uint16{input.KeyEsc, input.KeyEnter, input.KeyUp, input.KeyDown, input.KeyLeft, input.KeyRight}
	mouseKeys    = []uint16{
		input.BtnLeft, input.BtnRight, input.BtnMiddle, input.BtnSide,
		input.BtnExtra, input.BtnForward, input.BtnBack, input.BtnTask,
	}
	mouseRel = []uint16{input.RelX, input.RelY, input.RelWheel, input.RelHWheel}
)

// virtualSpecs returns the gamepad, consumer control, keyboard and mouse
// devices of one controller, in that order.
func virtualSpecs(id device.Identity, opts axis.Options, fakeVersion uint16) []deviceSpec {
	n := axis.NewNormalizer(opts)
	stick := n.StickRange()
	trigger := n.TriggerRange()

	abs := map[uint16]axis.Range{
		input.AbsX:       stick,
		input.AbsY:       stick,
		input.AbsRX:      stick,
		input.AbsRY:      stick,
		input.AbsZ:       trigger,
		input.AbsRZ:      trigger,
		input.AbsHat0X:   {Min: -1, Max: 1},
		input.AbsHat0Y:   {Min: -1, Max: 1},
		input.AbsProfile: {Min: 0, Max: 3},
	}
	if opts.Combine {
		abs[input.AbsRudder] = n.RudderRange()
	}

	version := id.Version
	if fakeVersion != 0 {
		version = fakeVersion
	}
	base := deviceSpec{
		Bus:     input.BusBluetooth,
		Vendor:  id.Vendor,
		Product: id.Product,
		Version: id.Version,
	}

	pad := base
	pad.Name = id.Name
	pad.Version = version
	pad.Keys = padKeys
	pad.Abs = abs
	pad.Rumble = true

	consumer := base
	consumer.Name = deviceName(id.Name, "Consumer Control")
	consumer.Keys = consumerKeys

	keyboard := base
	keyboard.Name = deviceName(id.Name, "Keyboard")
	keyboard.Keys = keyboardKeys

	mouse := base
	mouse.Name = deviceName(id.Name, "Mouse")
	mouse.Keys = mouseKeys
	mouse.Rel = mouseRel

	return []deviceSpec{pad, consumer, keyboard, mouse}
}
