package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/input"
	"xboxbt-driver/internal/rumble"
)

// --- uinput ioctls ---
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567
	uiSetFFBit   = 0x4004556B
	uiDevSetup   = 0x405c5503
	uiAbsSetup   = 0x401c5504
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	uiBeginFFUpload = 0xC06855C8
	uiEndFFUpload   = 0x406855C9
	uiBeginFFErase  = 0xC00C55CA
	uiEndFFErase    = 0x400C55CB

	eviocGrab = 0x40044590

	maxFFEffects = 16
)

// uinput structs
type inputEvent struct {
	time      unix.Timeval
	typ, code uint16
	value     int32
}

type inputID struct {
	bustype, vendor, product, version uint16
}

type inputAbsinfo struct {
	value, min, max, fuzz, flat, resolution int32
}

type uinputAbsSetup struct {
	code uint16
	_    [2]byte
	info inputAbsinfo
}

type uinputSetup struct {
	id           inputID
	name         [80]byte
	ffEffectsMax uint32
}

func ioctl(f *os.File, request, arg uintptr) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var errno unix.Errno
	if err := rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, request, arg)
	}); err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlPtr(f *os.File, request uintptr, arg unsafe.Pointer) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var errno unix.Errno
	if err := rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(arg))
	}); err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// deviceSpec describes one virtual input device.
type deviceSpec struct {
	Name    string
	Bus     uint16
	Vendor  uint16
	Product uint16
	Version uint16
	Keys    []uint16
	Rel     []uint16
	Abs     map[uint16]axis.Range
	Rumble  bool
}

// VirtualDevice is a uinput device. It implements input.Sink.
type VirtualDevice struct {
	file *os.File
	name string
	mu   sync.Mutex
}

var _ input.Sink = (*VirtualDevice)(nil)

// NewVirtualDevice registers spec with /dev/uinput.
func NewVirtualDevice(spec deviceSpec) (*VirtualDevice, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open /dev/uinput: %w", err)
	}

	fail := func(what string, err error) (*VirtualDevice, error) {
		f.Close()
		return nil, fmt.Errorf("%s failed: %w", what, err)
	}

	bits := []struct {
		req   uintptr
		codes []uint16
	}{
		{uiSetKeyBit, spec.Keys},
		{uiSetRelBit, spec.Rel},
	}
	events := []uint16{input.EvSyn}
	if len(spec.Keys) > 0 {
		events = append(events, input.EvKey)
	}
	if len(spec.Rel) > 0 {
		events = append(events, input.EvRel)
	}
	if len(spec.Abs) > 0 {
		events = append(events, input.EvAbs)
	}
	if spec.Rumble {
		events = append(events, input.EvFF)
	}
	for _, ev := range events {
		if err := ioctl(f, uiSetEvBit, uintptr(ev)); err != nil {
			return fail("UI_SET_EVBIT", err)
		}
	}
	for _, b := range bits {
		for _, code := range b.codes {
			if err := ioctl(f, b.req, uintptr(code)); err != nil {
				return fail("UI_SET_*BIT", err)
			}
		}
	}
	for code := range spec.Abs {
		if err := ioctl(f, uiSetAbsBit, uintptr(code)); err != nil {
			return fail("UI_SET_ABSBIT", err)
		}
	}
	if spec.Rumble {
		for _, code := range []uint16{input.FFRumble, input.FFGain} {
			if err := ioctl(f, uiSetFFBit, uintptr(code)); err != nil {
				return fail("UI_SET_FFBIT", err)
			}
		}
	}

	var usetup uinputSetup
	copy(usetup.name[:len(usetup.name)-1], spec.Name)
	usetup.id = inputID{spec.Bus, spec.Vendor, spec.Product, spec.Version}
	if spec.Rumble {
		usetup.ffEffectsMax = maxFFEffects
	}
	if err := ioctlPtr(f, uiDevSetup, unsafe.Pointer(&usetup)); err != nil {
		return fail("UI_DEV_SETUP", err)
	}

	for code, r := range spec.Abs {
		abs := uinputAbsSetup{
			code: code,
			info: inputAbsinfo{min: r.Min, max: r.Max, fuzz: r.Fuzz, flat: r.Flat},
		}
		if err := ioctlPtr(f, uiAbsSetup, unsafe.Pointer(&abs)); err != nil {
			return fail("UI_ABS_SETUP", err)
		}
	}

	if err := ioctl(f, uiDevCreate, 0); err != nil {
		return fail("UI_DEV_CREATE", err)
	}
	return &VirtualDevice{file: f, name: spec.Name}, nil
}

func (v *VirtualDevice) Name() string { return v.name }

func (v *VirtualDevice) writeEvent(typ, code uint16, value int32) error {
	var tv unix.Timeval
	unix.Gettimeofday(&tv)
	event := inputEvent{time: tv, typ: typ, code: code, value: value}

	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.file.Write((*(*[unsafe.Sizeof(event)]byte)(unsafe.Pointer(&event)))[:])
	return err
}

func (v *VirtualDevice) Key(code uint16, pressed bool) error {
	val := int32(0)
	if pressed {
		val = 1
	}
	return v.writeEvent(input.EvKey, code, val)
}

func (v *VirtualDevice) Abs(code uint16, value int32) error {
	return v.writeEvent(input.EvAbs, code, value)
}

func (v *VirtualDevice) Rel(code uint16, value int32) error {
	return v.writeEvent(input.EvRel, code, value)
}

func (v *VirtualDevice) Sync() error {
	return v.writeEvent(input.EvSyn, 0, 0)
}

func (v *VirtualDevice) Close() error {
	if v.file == nil {
		return nil
	}
	ioctl(v.file, uiDevDestroy, 0)
	return v.file.Close()
}

// --- force feedback ---

// ffEffect is the rumble part of struct ff_effect.
type ffEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Length    time.Duration
	Strong    uint16
	Weak      uint16
}

const (
	ffEffectSize = 48
	ffUploadSize = 8 + 2*ffEffectSize
	ffEraseSize  = 12
	eventSize    = int(unsafe.Sizeof(inputEvent{}))
)

func decodeFFEffect(b []byte) ffEffect {
	le := binary.LittleEndian
	return ffEffect{
		Type:      le.Uint16(b[0:]),
		ID:        int16(le.Uint16(b[2:])),
		Direction: le.Uint16(b[4:]),
		Length:    time.Duration(le.Uint16(b[10:])) * time.Millisecond,
		Strong:    le.Uint16(b[16:]),
		Weak:      le.Uint16(b[18:]),
	}
}

// ffHandler serves force feedback requests of one gamepad device.
type ffHandler struct {
	dev    *VirtualDevice
	rumble func(rumble.Request)
	log    *zap.Logger

	mu      sync.Mutex
	effects map[int16]ffEffect
	gain    uint32
	stop    *time.Timer
}

func newFFHandler(dev *VirtualDevice, fn func(rumble.Request), log *zap.Logger) *ffHandler {
	return &ffHandler{
		dev:     dev,
		rumble:  fn,
		log:     log,
		effects: make(map[int16]ffEffect),
		gain:    0xFFFF,
	}
}

// Run reads uinput events until the device is closed.
func (h *ffHandler) Run() {
	buf := make([]byte, eventSize)
	le := binary.LittleEndian
	for {
		if _, err := io.ReadFull(h.dev.file, buf); err != nil {
			if !errors.Is(err, os.ErrClosed) {
				h.log.Debug("uinput read stopped", zap.Error(err))
			}
			h.mu.Lock()
			if h.stop != nil {
				h.stop.Stop()
			}
			h.mu.Unlock()
			return
		}
		off := eventSize - 8
		typ := le.Uint16(buf[off:])
		code := le.Uint16(buf[off+2:])
		value := int32(le.Uint32(buf[off+4:]))
		h.handle(typ, code, value)
	}
}

func (h *ffHandler) handle(typ, code uint16, value int32) {
	switch typ {
	case input.EvUinput:
		switch code {
		case input.UIFFUpload:
			h.upload(uint32(value))
		case input.UIFFErase:
			h.erase(uint32(value))
		}
	case input.EvFF:
		if code == input.FFGain {
			h.mu.Lock()
			h.gain = uint32(value) & 0xFFFF
			h.mu.Unlock()
			return
		}
		h.play(int16(code), value > 0)
	}
}

func (h *ffHandler) upload(requestID uint32) {
	var buf [ffUploadSize]byte
	le := binary.LittleEndian
	le.PutUint32(buf[0:], requestID)
	if err := ioctlPtr(h.dev.file, uiBeginFFUpload, unsafe.Pointer(&buf[0])); err != nil {
		h.log.Warn("UI_BEGIN_FF_UPLOAD failed", zap.Error(err))
		return
	}

	eff := decodeFFEffect(buf[8:])
	retval := int32(0)
	if eff.Type != input.FFRumble {
		retval = -int32(unix.EINVAL)
	} else {
		h.mu.Lock()
		h.effects[eff.ID] = eff
		h.mu.Unlock()
	}
	le.PutUint32(buf[4:], uint32(retval))

	if err := ioctlPtr(h.dev.file, uiEndFFUpload, unsafe.Pointer(&buf[0])); err != nil {
		h.log.Warn("UI_END_FF_UPLOAD failed", zap.Error(err))
	}
}

func (h *ffHandler) erase(requestID uint32) {
	var buf [ffEraseSize]byte
	le := binary.LittleEndian
	le.PutUint32(buf[0:], requestID)
	if err := ioctlPtr(h.dev.file, uiBeginFFErase, unsafe.Pointer(&buf[0])); err != nil {
		h.log.Warn("UI_BEGIN_FF_ERASE failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	delete(h.effects, int16(le.Uint32(buf[8:])))
	h.mu.Unlock()
	le.PutUint32(buf[4:], 0)

	if err := ioctlPtr(h.dev.file, uiEndFFErase, unsafe.Pointer(&buf[0])); err != nil {
		h.log.Warn("UI_END_FF_ERASE failed", zap.Error(err))
	}
}

func (h *ffHandler) play(id int16, on bool) {
	h.mu.Lock()
	eff, ok := h.effects[id]
	gain := h.gain
	if h.stop != nil {
		h.stop.Stop()
		h.stop = nil
	}
	if ok && on && eff.Length > 0 {
		h.stop = time.AfterFunc(eff.Length, func() { h.rumble(rumble.Request{}) })
	}
	h.mu.Unlock()

	if !ok || !on {
		h.rumble(rumble.Request{})
		return
	}
	h.rumble(rumble.Request{
		Strong:    applyGain(eff.Strong, gain),
		Weak:      applyGain(eff.Weak, gain),
		Direction: eff.Direction,
	})
}

func applyGain(v uint16, gain uint32) uint16 {
	return uint16(uint32(v) * gain / 0xFFFF)
}
