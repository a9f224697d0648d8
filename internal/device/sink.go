package device

import (
	"go.uber.org/zap"

	"xboxbt-driver/internal/input"
)

// sink wraps a virtual device so that it is synced at most once per report
// and only when something was written. A missing device is reported once.
type sink struct {
	name    string
	out     input.Sink
	log     *zap.Logger
	dirty   bool
	missing bool
}

var _ input.Sink = (*sink)(nil)

func newSink(name string, out input.Sink, log *zap.Logger) *sink {
	return &sink{name: name, out: out, log: log}
}

// orNil returns the wrapper, or nil when there is no device behind it.
func (k *sink) orNil() input.Sink {
	if k.out == nil {
		return nil
	}
	return k
}

func (k *sink) ready() bool {
	if k.out != nil {
		return true
	}
	if !k.missing {
		k.missing = true
		k.log.Error(k.name + " not detected")
	}
	return false
}

func (k *sink) check(err error) error {
	if err != nil {
		k.log.Debug("input write failed", zap.String("device", k.name), zap.Error(err))
	}
	return err
}

func (k *sink) Key(code uint16, pressed bool) error {
	if !k.ready() {
		return nil
	}
	k.dirty = true
	return k.check(k.out.Key(code, pressed))
}

func (k *sink) Abs(code uint16, v int32) error {
	if !k.ready() {
		return nil
	}
	k.dirty = true
	return k.check(k.out.Abs(code, v))
}

func (k *sink) Rel(code uint16, v int32) error {
	if !k.ready() {
		return nil
	}
	k.dirty = true
	return k.check(k.out.Rel(code, v))
}

// Sync is left to flush.
func (k *sink) Sync() error { return nil }

func (k *sink) flush() {
	if k.out == nil || !k.dirty {
		return
	}
	k.dirty = false
	k.check(k.out.Sync())
}
