package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/report"
)

func surveyOf(states ...report.State) StickSurvey {
	var s StickSurvey
	for _, st := range states {
		s.Add(st)
	}
	return s
}

func at(lx, ly, rx, ry uint16) report.State {
	return report.State{LX: lx, LY: ly, RX: rx, RY: ry}
}

func TestAxisSurvey(t *testing.T) {
	var a axisSurvey
	assert.Equal(t, uint16(stickCentre), a.Mean())
	assert.Zero(t, a.Drift())
	assert.False(t, a.Reaches())

	a.add(32000)
	a.add(33000)
	assert.Equal(t, uint16(32500), a.Mean())
	assert.Equal(t, int32(768), a.Drift())

	a.add(100)
	a.add(65500)
	assert.True(t, a.Reaches())
}

func TestJudge(t *testing.T) {
	full := surveyOf(at(0, 0, 0, 0), at(65535, 65535, 65535, 65535))

	quiet := surveyOf(at(32768, 32800, 32700, 32768), at(32768, 32790, 32760, 32768))
	v := judge(quiet, full, axis.Options{})
	assert.True(t, v.FullRange)
	assert.True(t, v.DisableDeadzones)
	assert.Equal(t, int32(3072), v.Flat)
	assert.Equal(t, int32(68), v.Drift)

	noisy := surveyOf(at(32768, 32768, 32768, 36800))
	v = judge(noisy, surveyOf(at(32768, 32768, 32768, 32768)), axis.Options{DisableDeadzones: true})
	assert.False(t, v.FullRange)
	assert.False(t, v.DisableDeadzones)
	assert.Equal(t, int32(3072), v.Flat)
	assert.Contains(t, v.Advice, "drift beyond")

	middle := surveyOf(at(34000, 32768, 32768, 32768))
	v = judge(middle, full, axis.Options{})
	assert.False(t, v.DisableDeadzones)
	assert.Contains(t, v.Advice, "default dead zone fits")
}
