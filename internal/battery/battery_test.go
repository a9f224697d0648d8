package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeUSB(t *testing.T) {
	s := Decode(0x80)
	assert.True(t, s.Online)
	assert.Equal(t, ModeUSB, s.Mode)
	assert.False(t, s.Present)
	assert.False(t, s.Charging)
	assert.Equal(t, StatusNotCharging, s.Status)
	assert.Equal(t, LevelUnknown, s.Level)
}

func TestDecodeBattery(t *testing.T) {
	s := Decode(0x94)
	assert.True(t, s.Online)
	assert.Equal(t, ModeBattery, s.Mode)
	assert.True(t, s.Present)
	assert.False(t, s.Charging)
	assert.Equal(t, StatusDischarging, s.Status)
	assert.Equal(t, LevelCritical, s.Level)

	assert.Equal(t, LevelLow, Decode(0x95).Level)
	assert.Equal(t, LevelNormal, Decode(0x96).Level)
	assert.Equal(t, LevelHigh, Decode(0x97).Level)
}

func TestDecodeCharging(t *testing.T) {
	s := Decode(0x8A) // online, USB, charging, normal
	assert.True(t, s.Present)
	assert.Equal(t, StatusCharging, s.Status)
	assert.Equal(t, LevelNormal, s.Level)

	dock := Decode(0xA3) // online, dock, not charging, top level
	assert.Equal(t, ModeChargeDock, dock.Mode)
	assert.Equal(t, LevelFull, dock.Level)
	assert.Equal(t, StatusDischarging, dock.Status)

	assert.Equal(t, LevelHigh, Decode(0xAB).Level)
}

func TestDecodeOffline(t *testing.T) {
	s := Decode(0x13)
	assert.False(t, s.Online)
	assert.True(t, s.Present)
	assert.Equal(t, StatusUnknown, s.Status)
	assert.Equal(t, LevelUnknown, s.Level)
}

func TestDecodePure(t *testing.T) {
	for b := 0; b < 256; b++ {
		assert.Equal(t, Decode(byte(b)), Decode(byte(b)))
	}
}

func TestTracker(t *testing.T) {
	var tr Tracker

	_, reg, changed := tr.Update(0x14)
	assert.False(t, reg, "offline sample does not register")
	assert.False(t, changed)
	_, ok := tr.State()
	assert.False(t, ok)

	s, reg, changed := tr.Update(0x96)
	assert.True(t, reg)
	assert.True(t, changed)
	assert.Equal(t, LevelNormal, s.Level)

	_, reg, changed = tr.Update(0x96)
	assert.False(t, reg)
	assert.False(t, changed)

	s, reg, changed = tr.Update(0x95)
	assert.False(t, reg)
	assert.True(t, changed)
	assert.Equal(t, LevelLow, s.Level)

	// once registered, going offline is a change too
	s, _, changed = tr.Update(0x15)
	assert.True(t, changed)
	assert.Equal(t, StatusUnknown, s.Status)
}

func TestName(t *testing.T) {
	assert.Equal(t, "xboxbt_batt_aa:bb:cc:dd:ee:ff_2", Name("aa:bb:cc:dd:ee:ff", 2))
}
