package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xboxbt-driver/internal/report"
)

func collect(results ...Result) []Event {
	var out []Event
	for _, r := range results {
		out = append(out, r.Forward...)
	}
	return out
}

func TestShiftTap(t *testing.T) {
	m := New(false, false, nil)

	down := m.Handle(Shift, true)
	assert.Empty(t, down.Forward)
	assert.Equal(t, ShiftHeld, m.State())

	up := m.Handle(Shift, false)
	assert.Equal(t, []Event{{Shift, true}, {Shift, false}}, up.Forward)
	assert.Equal(t, Idle, m.State())
}

func TestShiftSelectsProfile(t *testing.T) {
	m := New(false, false, nil)

	r1 := m.Handle(Shift, true)
	r2 := m.Handle(report.ButtonB, true)
	r3 := m.Handle(report.ButtonB, false)
	r4 := m.Handle(Shift, false)

	assert.Empty(t, collect(r1, r2, r3, r4))
	assert.True(t, r2.ProfileChanged)
	assert.Equal(t, uint8(1), m.Profile())
	assert.Equal(t, Idle, m.State())

	changes := 0
	for _, r := range []Result{r1, r2, r3, r4} {
		if r.ProfileChanged {
			changes++
		}
	}
	assert.Equal(t, 1, changes)
}

func TestSelectorReleasedAfterShift(t *testing.T) {
	m := New(false, false, nil)

	m.Handle(Shift, true)
	m.Handle(report.ButtonY, true)
	r := m.Handle(Shift, false)
	assert.Empty(t, r.Forward)

	r = m.Handle(report.ButtonY, false)
	assert.Empty(t, r.Forward, "release of a swallowed press is swallowed")

	r = m.Handle(report.ButtonY, true)
	assert.Equal(t, []Event{{report.ButtonY, true}}, r.Forward)
	assert.Equal(t, uint8(3), m.Profile())
}

func TestOtherButtonsPassWhileHeld(t *testing.T) {
	m := New(false, false, nil)

	m.Handle(Shift, true)
	r := m.Handle(report.ButtonLB, true)
	assert.Equal(t, []Event{{report.ButtonLB, true}}, r.Forward)
	assert.Equal(t, ShiftHeld, m.State())

	r = m.Handle(Shift, false)
	assert.Equal(t, []Event{{Shift, true}, {Shift, false}}, r.Forward)
}

func TestSameProfileNoChange(t *testing.T) {
	m := New(false, false, nil)
	m.Handle(Shift, true)
	r := m.Handle(report.ButtonA, true)
	assert.False(t, r.ProfileChanged)
	assert.Equal(t, ShiftHeldConsumed, m.State())
	assert.Empty(t, m.Handle(Shift, false).Forward)
}

func TestMouseToggle(t *testing.T) {
	m := New(false, false, nil)
	m.Handle(Shift, true)
	r := m.Handle(report.ButtonBack, true)
	assert.True(t, r.ToggleMouse)
	assert.Empty(t, r.Forward)
	assert.Empty(t, m.Handle(report.ButtonBack, false).Forward)
	assert.Empty(t, m.Handle(Shift, false).Forward)
}

func TestPassThrough(t *testing.T) {
	for _, m := range []*Machine{New(true, false, nil), New(false, true, nil)} {
		assert.False(t, m.Emulated())

		r := m.Handle(Shift, true)
		assert.Equal(t, []Event{{Shift, true}}, r.Forward)
		r = m.Handle(report.ButtonA, true)
		assert.Equal(t, []Event{{report.ButtonA, true}}, r.Forward)
		assert.False(t, r.ProfileChanged)
		r = m.Handle(Shift, false)
		assert.Equal(t, []Event{{Shift, false}}, r.Forward)
	}
}

func TestSetHardware(t *testing.T) {
	m := New(true, false, nil)
	assert.True(t, m.SetHardware(2))
	assert.False(t, m.SetHardware(2))
	assert.Equal(t, uint8(2), m.Profile())
}
