// Package inputtest provides an in-memory input.Sink for tests.
package inputtest

import (
	"sync"

	"xboxbt-driver/internal/input"
)

// Event is one recorded event.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Recorder records events. Events become visible in Events after Sync.
type Recorder struct {
	mu      sync.Mutex
	pending []Event
	events  []Event
	syncs   int
}

var _ input.Sink = (*Recorder)(nil)

func (r *Recorder) add(typ, code uint16, v int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, Event{typ, code, v})
	return nil
}

func (r *Recorder) Key(code uint16, pressed bool) error {
	v := int32(0)
	if pressed {
		v = 1
	}
	return r.add(input.EvKey, code, v)
}

func (r *Recorder) Abs(code uint16, v int32) error { return r.add(input.EvAbs, code, v) }
func (r *Recorder) Rel(code uint16, v int32) error { return r.add(input.EvRel, code, v) }

func (r *Recorder) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, r.pending...)
	r.pending = nil
	r.syncs++
	return nil
}

// Events returns the synced events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Syncs returns how often Sync was called.
func (r *Recorder) Syncs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncs
}

// Filter returns the synced events of one type and code.
func (r *Recorder) Filter(typ, code uint16) []int32 {
	var out []int32
	for _, e := range r.Events() {
		if e.Type == typ && e.Code == code {
			out = append(out, e.Value)
		}
	}
	return out
}

// Last returns the latest synced value of one type and code.
func (r *Recorder) Last(typ, code uint16) (int32, bool) {
	vals := r.Filter(typ, code)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending, r.events, r.syncs = nil, nil, 0
}
