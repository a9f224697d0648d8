// Package rdesc patches known defects in the controller's HID report
// descriptor and looks up report ids in it.
package rdesc

import "bytes"

// Result records which patches Fixup applied.
type Result struct {
	Trimmed      bool
	AxesFixed    bool
	SimFixed     bool
	LinuxButtons bool
}

// Changed reports whether any patch was applied.
func (r Result) Changed() bool {
	return r.Trimmed || r.AxesFixed || r.SimFixed || r.LinuxButtons
}

type patch struct {
	at    int
	match []byte
	set   map[int]byte // offset relative to at
}

func (p patch) apply(desc []byte) bool {
	if len(desc) < p.at+len(p.match) || !bytes.Equal(desc[p.at:p.at+len(p.match)], p.match) {
		return false
	}
	for off, v := range p.set {
		desc[p.at+off] = v
	}
	return true
}

var (
	// right stick is announced as Z/Rz, aliasing the triggers
	rightStickX = patch{34, []byte{0x09, 0x32}, map[int]byte{1: 0x33}}
	rightStickY = patch{36, []byte{0x09, 0x35}, map[int]byte{1: 0x34}}

	// simulation page brake/accelerator become generic desktop Z/Rz
	brake       = patch{52, []byte{0x05, 0x02, 0x09, 0xC5}, map[int]byte{1: 0x01, 3: 0x32}}
	accelerator = patch{77, []byte{0x05, 0x02, 0x09, 0xC4}, map[int]byte{1: 0x01, 3: 0x35}}
)

// Fixup returns a patched copy of desc. Every patch only fires when the
// surrounding bytes match the expected layout, so a second pass over an
// already patched descriptor changes nothing.
func Fixup(desc []byte) ([]byte, Result) {
	var res Result
	out := append([]byte(nil), desc...)

	if n := len(out); n >= 2 && out[n-2] == 0xC0 && out[n-1] == 0x00 {
		out = out[:n-1]
		res.Trimmed = true
	}

	if len(out) >= 81 {
		if rightStickX.apply(out) {
			res.AxesFixed = true
		}
		if rightStickY.apply(out) {
			res.AxesFixed = true
		}
		if brake.apply(out) {
			res.SimFixed = true
		}
		if accelerator.apply(out) {
			res.SimFixed = true
		}
	}

	// legacy Linux layout announces 15 buttons with one padding bit
	if len(out) >= 164 &&
		out[140] == 0x05 && out[141] == 0x09 &&
		out[144] == 0x29 && out[145] == 0x0F &&
		out[152] == 0x95 && out[153] == 0x0F &&
		out[162] == 0x95 && out[163] == 0x01 {
		out[145] = 0x0C
		out[153] = 0x0C
		out[163] = 0x04
		res.LinuxButtons = true
	}

	return out, res
}
