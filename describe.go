package main

import (
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"xboxbt-driver/internal/axis"
	"xboxbt-driver/internal/config"
	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/quirks"
)

// Description is what describe prints for one controller.
type Description struct {
	Node      string        `yaml:"node"`
	Name      string        `yaml:"name"`
	Address   string        `yaml:"address"`
	Vendor    string        `yaml:"vendor"`
	Product   string        `yaml:"product"`
	Version   string        `yaml:"version"`
	Evdev     string        `yaml:"evdev,omitempty"`
	Quirks    []string      `yaml:"quirks"`
	Fixups    []string      `yaml:"fixups,omitempty"`
	Battery   uint8         `yaml:"battery_report_id"`
	Rumble    string        `yaml:"trigger_rumble_mode"`
	Devices   []VirtualDesc `yaml:"virtual_devices"`
	DescBytes int           `yaml:"descriptor_size"`
}

// VirtualDesc summarises one virtual device.
type VirtualDesc struct {
	Name    string                `yaml:"name"`
	Version string                `yaml:"version"`
	Keys    int                   `yaml:"keys,omitempty"`
	Axes    map[string]axis.Range `yaml:"axes,omitempty"`
	Rel     int                   `yaml:"relative_axes,omitempty"`
	Rumble  bool                  `yaml:"rumble,omitempty"`
}

var absNames = map[uint16]string{
	0x00: "x", 0x01: "y", 0x02: "z", 0x03: "rx", 0x04: "ry", 0x05: "rz",
	0x07: "rudder", 0x10: "hat0x", 0x11: "hat0y", 0x21: "profile",
}

func describe(dev hidDevice, cfg *config.Config, log *zap.Logger) Description {
	pr := device.Probe(dev.Identity, dev.Descriptor, cfg.Quirks, log)

	d := Description{
		Node:      dev.Node,
		Name:      dev.Identity.Name,
		Address:   dev.Identity.Address,
		Vendor:    fmt.Sprintf("%04x", dev.Identity.Vendor),
		Product:   fmt.Sprintf("%04x", dev.Identity.Product),
		Version:   fmt.Sprintf("%04x", dev.Identity.Version),
		Evdev:     dev.Evdev,
		Quirks:    pr.Quirks.Names(),
		Battery:   pr.BatteryID,
		Rumble:    cfg.RumbleMode().String(),
		DescBytes: len(dev.Descriptor),
	}
	if d.Quirks == nil {
		d.Quirks = []string{}
	}
	for _, f := range []struct {
		on   bool
		name string
	}{
		{pr.Fixup.Trimmed, "trailing byte trimmed"},
		{pr.Fixup.AxesFixed, "right stick axes"},
		{pr.Fixup.SimFixed, "simulation triggers"},
		{pr.Fixup.LinuxButtons, "linux button count"},
	} {
		if f.on {
			d.Fixups = append(d.Fixups, f.name)
		}
	}

	ident := dev.Identity
	if ident.Name == "" {
		ident.Name = defaultControllerName
	}
	for _, spec := range virtualSpecs(ident, cfg.AxisOptions(), cfg.FakeDevVersion) {
		v := VirtualDesc{
			Name:    spec.Name,
			Version: fmt.Sprintf("%04x", spec.Version),
			Keys:    len(spec.Keys),
			Rel:     len(spec.Rel),
			Rumble:  spec.Rumble,
		}
		if len(spec.Abs) > 0 {
			v.Axes = make(map[string]axis.Range, len(spec.Abs))
			for code, r := range spec.Abs {
				v.Axes[absNames[code]] = r
			}
		}
		d.Devices = append(d.Devices, v)
	}
	return d
}

// RunDescribe prints the given hidraw nodes, or every supported controller,
// as YAML.
func RunDescribe(w io.Writer, sys sysfs, nodes []string, cfg *config.Config, log *zap.Logger) error {
	var devs []hidDevice
	if len(nodes) == 0 {
		found, err := sys.Scan(quirks.Builtin())
		if err != nil {
			return err
		}
		devs = found
	}
	for _, n := range nodes {
		d, ok, err := sys.Describe(filepath.Base(n))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not a Microsoft controller on Bluetooth", n)
		}
		devs = append(devs, d)
	}

	out := make([]Description, 0, len(devs))
	for _, d := range devs {
		out = append(out, describe(d, cfg, log))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}
