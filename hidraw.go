package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/input"
	"xboxbt-driver/internal/quirks"
)

const microsoftVendor = 0x045E

// hidDevice is a hidraw node of a supported controller.
type hidDevice struct {
	Node       string // hidrawN
	Identity   device.Identity
	Descriptor []byte
	Evdev      string // /dev/input/eventN of the kernel's own input device, if any
}

// sysfs locates the kernel's device tree. Tests point it at a temp dir.
type sysfs struct {
	Root string // usually /sys
	Dev  string // usually /dev
}

var defaultSysfs = sysfs{Root: "/sys", Dev: "/dev"}

// Scan lists supported controllers connected over Bluetooth.
func (s sysfs) Scan(table *quirks.Table) ([]hidDevice, error) {
	base := filepath.Join(s.Root, "class", "hidraw")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", base, err)
	}

	var found []hidDevice
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "hidraw") {
			continue
		}
		dev, ok, err := s.Describe(entry.Name())
		if err != nil || !ok {
			continue
		}
		if !table.Supported(dev.Identity.Product) {
			continue
		}
		found = append(found, dev)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Node < found[j].Node })
	return found, nil
}

// Describe reads the identity of one hidraw node. ok is false for devices
// that are not Microsoft controllers on Bluetooth.
func (s sysfs) Describe(node string) (hidDevice, bool, error) {
	devDir := filepath.Join(s.Root, "class", "hidraw", node, "device")

	uevent, err := os.ReadFile(filepath.Join(devDir, "uevent"))
	if err != nil {
		return hidDevice{}, false, err
	}
	props := parseUevent(uevent)

	bus, vendor, product, err := parseHidID(props["HID_ID"])
	if err != nil {
		return hidDevice{}, false, err
	}
	if bus != input.BusBluetooth || vendor != microsoftVendor {
		return hidDevice{}, false, nil
	}

	desc, err := os.ReadFile(filepath.Join(devDir, "report_descriptor"))
	if err != nil {
		return hidDevice{}, false, fmt.Errorf("read report descriptor: %w", err)
	}

	dev := hidDevice{
		Node: node,
		Identity: device.Identity{
			Bus:     bus,
			Vendor:  vendor,
			Product: product,
			Name:    props["HID_NAME"],
			Address: props["HID_UNIQ"],
			Path:    filepath.Join(s.Dev, node),
		},
		Descriptor: desc,
	}

	// the kernel's hid-generic input device carries the version and the
	// event node we grab
	inputs, _ := filepath.Glob(filepath.Join(devDir, "input", "input*"))
	sort.Strings(inputs)
	for _, in := range inputs {
		if v, err := readHexFile(filepath.Join(in, "id", "version")); err == nil && dev.Identity.Version == 0 {
			dev.Identity.Version = uint16(v)
		}
		if dev.Evdev == "" {
			events, _ := filepath.Glob(filepath.Join(in, "event*"))
			if len(events) > 0 {
				sort.Strings(events)
				dev.Evdev = filepath.Join(s.Dev, "input", filepath.Base(events[0]))
			}
		}
	}
	return dev, true, nil
}

func parseUevent(data []byte) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok {
			props[k] = v
		}
	}
	return props
}

// parseHidID parses HID_ID, e.g. "0005:0000045E:00000B13".
func parseHidID(s string) (bus, vendor, product uint16, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("bad HID_ID %q", s)
	}
	var v [3]uint64
	for i, p := range parts {
		v[i], err = strconv.ParseUint(p, 16, 32)
		if err != nil || v[i] > 0xFFFF {
			return 0, 0, 0, fmt.Errorf("bad HID_ID %q", s)
		}
	}
	return uint16(v[0]), uint16(v[1]), uint16(v[2]), nil
}

func readHexFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
}
