package quirks

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrMalformedOverride is returned for override strings that do not have the
// form "MAC{:|+|-}hexflags".
var ErrMalformedOverride = errors.New("malformed quirk override")

// Op selects how an override combines with the computed flags.
type Op byte

const (
	OpReplace Op = ':'
	OpAdd     Op = '+'
	OpRemove  Op = '-'
)

// Override is one parsed user override.
type Override struct {
	Address string // canonical lower-case MAC
	Op      Op
	Flags   Set
}

func (o Override) String() string {
	return fmt.Sprintf("%s%c%x", o.Address, o.Op, uint32(o.Flags))
}

// ParseOverride parses "aa:bb:cc:dd:ee:ff+0x40". The flags are hexadecimal,
// with or without a 0x prefix.
func ParseOverride(s string) (Override, error) {
	s = strings.TrimSpace(s)
	const macLen = len("00:00:00:00:00:00")
	if len(s) < macLen+2 {
		return Override{}, fmt.Errorf("%w: %q", ErrMalformedOverride, s)
	}

	mac, err := net.ParseMAC(s[:macLen])
	if err != nil || len(mac) != 6 {
		return Override{}, fmt.Errorf("%w: bad address in %q", ErrMalformedOverride, s)
	}

	op := Op(s[macLen])
	switch op {
	case OpReplace, OpAdd, OpRemove:
	default:
		return Override{}, fmt.Errorf("%w: unknown operator %q in %q", ErrMalformedOverride, op, s)
	}

	flags, err := parseHex(s[macLen+1:])
	if err != nil {
		return Override{}, fmt.Errorf("%w: bad flags in %q", ErrMalformedOverride, s)
	}

	return Override{Address: mac.String(), Op: op, Flags: flags}, nil
}

// Apply combines o with the current set.
func (o Override) Apply(s Set) Set {
	switch o.Op {
	case OpReplace:
		return o.Flags
	case OpAdd:
		return s | o.Flags
	case OpRemove:
		return s &^ o.Flags
	}
	return s
}

// Matches reports whether the override targets the given address.
func (o Override) Matches(address string) bool {
	mac, err := net.ParseMAC(strings.TrimSpace(address))
	if err != nil {
		return false
	}
	return mac.String() == o.Address
}
