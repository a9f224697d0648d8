package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/gousb"
	"golang.org/x/sys/unix"

	"xboxbt-driver/internal/quirks"
)

// CheckStatus is the outcome of one doctor check.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is one line of the doctor report.
type Check struct {
	Name   string
	Status CheckStatus
	Detail string
}

type usbKind int

const (
	usbOther usbKind = iota
	usbBluetoothAdapter
	usbWiredController
)

// classifyUSB recognises Bluetooth adapters (wireless controller class,
// RF subclass, Bluetooth protocol) and Microsoft gamepads on the cable.
func classifyUSB(desc *gousb.DeviceDesc) usbKind {
	isBT := func(c, sub gousb.Class, p gousb.Protocol) bool {
		return c == gousb.ClassWireless && sub == 0x01 && p == 0x01
	}
	if isBT(desc.Class, desc.SubClass, desc.Protocol) {
		return usbBluetoothAdapter
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if isBT(alt.Class, alt.SubClass, alt.Protocol) {
					return usbBluetoothAdapter
				}
			}
		}
	}
	if desc.Vendor == gousb.ID(microsoftVendor) && (desc.Class == gousb.ClassVendorSpec || desc.Class == gousb.ClassPerInterface) {
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, alt := range intf.AltSettings {
					// GIP and XUSB both use vendor class 0xff subclass 0x47/0x5d
					if alt.Class == gousb.ClassVendorSpec && (alt.SubClass == 0x47 || alt.SubClass == 0x5d) {
						return usbWiredController
					}
				}
			}
		}
	}
	return usbOther
}

// usbChecks lists Bluetooth adapters and wired controllers.
func usbChecks() []Check {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var adapters, wired []string
	// the predicate sees every descriptor; nothing is opened
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		switch classifyUSB(desc) {
		case usbBluetoothAdapter:
			adapters = append(adapters, fmt.Sprintf("%s:%s at bus %d addr %d", desc.Vendor, desc.Product, desc.Bus, desc.Address))
		case usbWiredController:
			wired = append(wired, fmt.Sprintf("%s:%s at bus %d addr %d", desc.Vendor, desc.Product, desc.Bus, desc.Address))
		}
		return false
	})
	if err != nil {
		return []Check{{Name: "usb", Status: CheckWarn, Detail: err.Error()}}
	}

	var checks []Check
	if len(adapters) == 0 {
		checks = append(checks, Check{Name: "bluetooth adapter", Status: CheckWarn, Detail: "no USB Bluetooth adapter found (built-in adapters may not be on USB)"})
	}
	for _, a := range adapters {
		checks = append(checks, Check{Name: "bluetooth adapter", Status: CheckOK, Detail: a})
	}
	for _, w := range wired {
		checks = append(checks, Check{Name: "wired controller", Status: CheckWarn, Detail: w + " is on USB; only Bluetooth connections are handled"})
	}
	return checks
}

// systemChecks inspect uinput, the competing kernel driver and the hidraw
// nodes of connected controllers.
func systemChecks(sys sysfs) []Check {
	var checks []Check

	uinput := filepath.Join(sys.Dev, "uinput")
	switch {
	case !exists(uinput):
		checks = append(checks, Check{"uinput", CheckFail, uinput + " missing, load the uinput module"})
	case unix.Access(uinput, unix.W_OK) != nil:
		checks = append(checks, Check{"uinput", CheckFail, uinput + " not writable, run as root or add a udev rule"})
	default:
		checks = append(checks, Check{"uinput", CheckOK, uinput})
	}

	if exists(filepath.Join(sys.Root, "module", "hid_xpadneo")) {
		checks = append(checks, Check{"kernel driver", CheckWarn, "hid_xpadneo is loaded and will also drive the controller"})
	}

	devs, err := sys.Scan(quirks.Builtin())
	if err != nil {
		checks = append(checks, Check{"controllers", CheckFail, err.Error()})
		return checks
	}
	if len(devs) == 0 {
		checks = append(checks, Check{"controllers", CheckWarn, "no supported controller connected over Bluetooth"})
	}
	for _, d := range devs {
		st, detail := CheckOK, fmt.Sprintf("%s %04x (%s) on %s", d.Identity.Name, d.Identity.Product, d.Identity.Address, d.Identity.Path)
		if unix.Access(d.Identity.Path, unix.R_OK|unix.W_OK) != nil {
			st, detail = CheckFail, detail+" not accessible"
		}
		checks = append(checks, Check{"controller", st, detail})
	}
	return checks
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RunDoctor prints the environment checks and reports whether all passed.
func RunDoctor(w io.Writer, sys sysfs, withUSB bool) bool {
	checks := systemChecks(sys)
	if withUSB {
		checks = append(checks, usbChecks()...)
	}

	ok := true
	for _, c := range checks {
		if c.Status == CheckFail {
			ok = false
		}
		fmt.Fprintf(w, "[%-4s] %-18s %s\n", c.Status, c.Name, c.Detail)
	}
	return ok
}
