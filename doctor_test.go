package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
)

func withInterface(desc gousb.DeviceDesc, c, sub gousb.Class, p gousb.Protocol) *gousb.DeviceDesc {
	desc.Configs = map[int]gousb.ConfigDesc{
		1: {Number: 1, Interfaces: []gousb.InterfaceDesc{{
			Number:      0,
			AltSettings: []gousb.InterfaceSetting{{Class: c, SubClass: sub, Protocol: p}},
		}}},
	}
	return &desc
}

func TestClassifyUSB(t *testing.T) {
	adapter := &gousb.DeviceDesc{Vendor: 0x8087, Product: 0x0026, Class: gousb.ClassWireless, SubClass: 0x01, Protocol: 0x01}
	assert.Equal(t, usbBluetoothAdapter, classifyUSB(adapter))

	// composite adapter announcing Bluetooth on its first interface
	composite := withInterface(gousb.DeviceDesc{Vendor: 0x0a12, Product: 0x0001, Class: gousb.Class(0xef)}, gousb.ClassWireless, 0x01, 0x01)
	assert.Equal(t, usbBluetoothAdapter, classifyUSB(composite))

	wired := withInterface(gousb.DeviceDesc{Vendor: 0x045E, Product: 0x0B12, Class: gousb.ClassVendorSpec}, gousb.ClassVendorSpec, 0x47, 0xd0)
	assert.Equal(t, usbWiredController, classifyUSB(wired))

	mouse := withInterface(gousb.DeviceDesc{Vendor: 0x045E, Product: 0x07fd, Class: gousb.ClassPerInterface}, gousb.ClassHID, 0x01, 0x02)
	assert.Equal(t, usbOther, classifyUSB(mouse))
}

func TestSystemChecks(t *testing.T) {
	fs := fakeSysfs(t, xsController("hidraw3", "aa:bb:cc:dd:ee:ff"))
	writeFile(t, filepath.Join(fs.Root, "module", "hid_xpadneo", "refcnt"), "0\n")

	checks := systemChecks(fs)
	byName := map[string]Check{}
	for _, c := range checks {
		byName[c.Name] = c
	}

	assert.Equal(t, CheckFail, byName["uinput"].Status)
	assert.Equal(t, CheckWarn, byName["kernel driver"].Status)
	// the fake hidraw node does not exist under /dev
	assert.Equal(t, CheckFail, byName["controller"].Status)
	assert.Contains(t, byName["controller"].Detail, "0b13")

	var buf bytes.Buffer
	assert.False(t, RunDoctor(&buf, fs, false))
	assert.Contains(t, buf.String(), "[fail] uinput")
}

func TestSystemChecksNoControllers(t *testing.T) {
	fs := fakeSysfs(t)
	writeFile(t, filepath.Join(fs.Dev, "uinput"), "")

	checks := systemChecks(fs)
	assert.Contains(t, checks, Check{"controllers", CheckWarn, "no supported controller connected over Bluetooth"})
	assert.Equal(t, "uinput", checks[0].Name)
}
