// Package report classifies raw input reports by protocol variant, remaps
// the button layouts into one canonical order and decodes the result.
package report

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"xboxbt-driver/internal/quirks"
)

const (
	StateReportID = 0x01
	GuideReportID = 0x02

	// longest state report seen (Elite Series 2, firmware 4) plus the id byte
	dedupLength = 55 + 1

	minStateLength = 16
)

var (
	ErrShortReport = errors.New("report too short")
	ErrDuplicate   = errors.New("duplicate report")
	ErrNotState    = errors.New("not a state report")
)

// Variant is the button layout the controller is currently using.
type Variant uint8

const (
	Unknown  Variant = iota
	VariantA         // Windows layout, buttons already in canonical order
	VariantB         // Linux/Android layout, 15 scattered button bits
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "windows"
	case VariantB:
		return "linux"
	}
	return "unknown"
}

// Classifier keeps the per-connection report state. It is not safe for
// concurrent use; reports must be fed in arrival order.
type Classifier struct {
	quirks  quirks.Set
	variant Variant
	last    []byte
	log     *zap.Logger
}

// NewClassifier returns a classifier that has not seen a state report yet.
func NewClassifier(q quirks.Set, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{quirks: q, log: log}
}

// Variant returns the variant detected so far.
func (c *Classifier) Variant() Variant { return c.variant }

// classify maps a state report length to its layout. The Series X|S sends
// 17 bytes in the Windows layout, the extra byte carrying the share button.
func classify(length int, q quirks.Set) Variant {
	switch length {
	case 16:
		return VariantA
	case 17:
		if q.ShareButton() {
			return VariantA
		}
		return VariantB
	case 20, 21, 39, 55:
		return VariantA
	}
	return Unknown
}

// Process turns a raw state report into its canonical form. The returned
// slice is a copy owned by the caller. Repeats of the previous report are
// rejected with ErrDuplicate.
func (c *Classifier) Process(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != StateReportID {
		return nil, ErrNotState
	}
	if len(data) < minStateLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortReport, len(data))
	}

	if len(data) <= dedupLength {
		if c.last != nil && bytes.Equal(c.last, data) {
			return nil, ErrDuplicate
		}
		c.last = append(c.last[:0], data...)
	}

	if c.variant == Unknown {
		if v := classify(len(data), c.quirks); v != Unknown {
			c.variant = v
			c.log.Info("report layout detected",
				zap.Stringer("variant", v), zap.Int("length", len(data)))
		}
	}

	out := append([]byte(nil), data...)
	if c.remapActive(len(out)) {
		remapLinux(out, c.quirks.ShareButton())
	}
	if c.quirks.Nintendo() {
		swapNintendo(out)
	}
	return out, nil
}

func (c *Classifier) remapActive(length int) bool {
	return (c.quirks.LinuxButtons() || c.variant == VariantB) && length >= 17
}

// remapLinux packs the 15-bit Linux button field of bytes 14..16 into the
// canonical order used by the Windows layout.
func remapLinux(data []byte, share bool) {
	d14, d15, d16 := uint16(data[14]), uint16(data[15]), uint16(data[16])

	bits := d14 & 0x03        // A, B
	bits |= (d14 & 0x18) >> 1 // X, Y
	bits |= (d14 & 0xC0) >> 2 // LB, RB
	bits |= (d15 & 0x08) << 4 // Menu
	bits |= (d15 & 0x20) << 3 // LS
	bits |= (d15 & 0x40) << 3 // RS
	bits |= (d15 & 0x10) << 6 // Xbox
	if share {
		bits |= (d15 & 0x04) << 4  // Back
		bits |= (d16 & 0x01) << 11 // Share
	} else {
		bits |= (d16 & 0x01) << 6 // Back
	}

	data[14] = byte(bits)
	data[15] = byte(bits >> 8)
	data[16] = 0
}

func swapBits(v byte, b1, b2 uint) byte {
	if (v>>b1)&1 == (v>>b2)&1 {
		return v
	}
	return v ^ (1 << b1) ^ (1 << b2)
}

// swapNintendo exchanges A/B and X/Y for controllers with Nintendo labels.
func swapNintendo(data []byte) {
	if len(data) < 15 {
		return
	}
	data[14] = swapBits(swapBits(data[14], 0, 1), 2, 3)
}
