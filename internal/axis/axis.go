// Package axis converts raw stick and trigger values to the ranges exposed
// on the virtual gamepad.
package axis

const (
	stickMidpoint = 32768
	TriggerMax    = 1023

	stickFuzz = 255
	stickFlat = 3072
)

// Side selects a trigger.
type Side uint8

const (
	Left Side = iota
	Right
)

// Range describes one virtual absolute axis.
type Range struct {
	Min, Max, Fuzz, Flat int32
}

// Options are the user-selectable behaviours.
type Options struct {
	Signed           bool
	Combine          bool
	DisableDeadzones bool
}

// Normalizer holds the per-connection axis state. Not safe for concurrent
// use; it is driven from the report path.
type Normalizer struct {
	opts      Options
	lastLeft  int32
	lastRight int32
	count     int
}

// NewNormalizer returns a normalizer for the given options.
func NewNormalizer(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Options returns the options the normalizer was built with.
func (n *Normalizer) Options() Options { return n.opts }

// Stick maps a raw 0..65535 stick value.
func (n *Normalizer) Stick(v uint16) int32 {
	if n.opts.Signed {
		return int32(v) - stickMidpoint
	}
	return int32(v)
}

// BeginFrame starts a new report; a trigger half seen in an earlier frame
// does not pair with one from this frame.
func (n *Normalizer) BeginFrame() {
	n.count = 0
}

// Trigger records a trigger value. Once both triggers of the frame have been
// seen it returns the combined rudder value right minus left, in
// -1023..1023. Nothing is returned when combining is disabled.
func (n *Normalizer) Trigger(side Side, v uint16) (int32, bool) {
	if !n.opts.Combine {
		return 0, false
	}

	switch side {
	case Left:
		n.lastLeft = int32(v)
	case Right:
		n.lastRight = int32(v)
	}

	n.count++
	if n.count < 2 {
		return 0, false
	}
	n.count = 0
	return n.lastRight - n.lastLeft, true
}

// StickRange is the range of the four stick axes.
func (n *Normalizer) StickRange() Range {
	r := Range{Min: 0, Max: 65535, Fuzz: stickFuzz, Flat: stickFlat}
	if n.opts.Signed {
		r.Min, r.Max = -32768, 32767
	}
	if n.opts.DisableDeadzones {
		r.Fuzz, r.Flat = 0, 0
	}
	return r
}

// TriggerRange is the range of each trigger axis.
func (n *Normalizer) TriggerRange() Range {
	return Range{Min: 0, Max: TriggerMax}
}

// RudderRange is the range of the combined axis.
func (n *Normalizer) RudderRange() Range {
	return Range{Min: -TriggerMax, Max: TriggerMax}
}
