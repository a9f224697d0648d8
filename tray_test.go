package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xboxbt-driver/internal/battery"
	"xboxbt-driver/internal/device"
)

func TestTrayTooltip(t *testing.T) {
	assert.Equal(t, "xboxbt: no controller", trayTooltip(nil))

	b := battery.Decode(0x92)
	got := trayTooltip([]device.Status{
		{ID: 0, Name: "Xbox Wireless Controller", Battery: &b},
		{ID: 1, Name: "Xbox Elite"},
	})
	assert.Equal(t, "#0 Xbox Wireless Controller: battery "+b.Level.String()+", "+b.Status.String()+"\n#1 Xbox Elite: battery unknown", got)
}

func TestStatusURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/status", statusURL(":8080"))
	assert.Equal(t, "http://localhost:8080/status", statusURL("0.0.0.0:8080"))
	assert.Equal(t, "http://127.0.0.1:9000/status", statusURL("127.0.0.1:9000"))
	assert.Equal(t, "http://[::1]:9000/status", statusURL("[::1]:9000"))
	assert.Equal(t, "http://example/status", statusURL("example"))
}
