package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"xboxbt-driver/internal/report"
)

func TestFormatState(t *testing.T) {
	st := report.State{LX: 32768, LY: 32768, RX: 0, RY: 65535, LT: 1023}
	assert.Equal(t, "L(32768, 32768) | R(    0, 65535) | LT 1023 RT    0", formatState(st))

	st.Buttons = report.Buttons(report.ButtonA | report.ButtonLB)
	st.Hat = 3
	st.Paddles = 0x05
	st.HasProfile = true
	st.Profile = 2
	st.HasTriggerScale = true
	st.ScaleRight = report.TriggerScaleDigital
	assert.Equal(t,
		"Pressed: A + LB + → + P1 + P3 | L(32768, 32768) | R(    0, 65535) | LT 1023 RT    0 | Profile 2 | Scale full/digital",
		formatState(st))
}

func TestReportCapture(t *testing.T) {
	c := newReportCapture()
	c.Add([]byte{0x01, 0x10, 0x80})
	c.Add([]byte{0x01, 0x20, 0x80})
	c.Add([]byte{0x01, 0x05, 0x80, 0x01})

	assert.Len(t, c.Reports, 3)
	assert.Equal(t, ReportStats{Seen: true, Min: 0x01, Max: 0x01}, c.Stats[0])
	assert.Equal(t, ReportStats{Seen: true, Min: 0x05, Max: 0x20, Changes: 2}, c.Stats[1])
	assert.Equal(t, ReportStats{Seen: true, Min: 0x80, Max: 0x80}, c.Stats[2])
	assert.Equal(t, ReportStats{Seen: true, Min: 0x01, Max: 0x01, Changes: 1}, c.Stats[3])
	assert.False(t, c.Stats[4].Seen)

	var buf bytes.Buffer
	printStats(&buf, c)
	out := buf.String()
	assert.Contains(t, out, "First report (3 bytes): 011080")
	assert.Contains(t, out, "  1 |       2 | 0x05 | 0x20 |  27")
	assert.NotContains(t, out, "  4 |")
}
