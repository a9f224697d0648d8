// Package quirks resolves the per-device set of behaviour deviations from
// the built-in rule table, a descriptor heuristic and user overrides.
package quirks

import (
	"fmt"
	"strconv"
	"strings"
)

// Set is a bitset of quirk flags. The numeric values are stable and are what
// users write in override strings.
type Set uint32

const (
	NoPulse Set = 1 << iota
	NoTriggerRumble
	NoMotorMask
	UseHWProfiles
	LinuxButtons
	Nintendo
	ShareButton
	ReverseMask
	SwappedMask
	NoHeuristics
)

const (
	NoHaptics   = NoPulse | NoMotorMask
	SimpleClone = NoHaptics | NoTriggerRumble
)

var names = []struct {
	flag Set
	name string
}{
	{NoPulse, "NoPulse"},
	{NoTriggerRumble, "NoTriggerRumble"},
	{NoMotorMask, "NoMotorMask"},
	{UseHWProfiles, "UseHWProfiles"},
	{LinuxButtons, "LinuxButtons"},
	{Nintendo, "Nintendo"},
	{ShareButton, "ShareButton"},
	{ReverseMask, "ReverseMask"},
	{SwappedMask, "SwappedMask"},
	{NoHeuristics, "NoHeuristics"},
}

// aliases accepted by ParseNames in addition to the single flag names
var aliases = map[string]Set{
	"NoHaptics":   NoHaptics,
	"SimpleClone": SimpleClone,
}

// Has reports whether every flag in f is set.
func (s Set) Has(f Set) bool { return s&f == f }

func (s Set) NoPulse() bool         { return s.Has(NoPulse) }
func (s Set) NoTriggerRumble() bool { return s.Has(NoTriggerRumble) }
func (s Set) NoMotorMask() bool     { return s.Has(NoMotorMask) }
func (s Set) UseHWProfiles() bool   { return s.Has(UseHWProfiles) }
func (s Set) LinuxButtons() bool    { return s.Has(LinuxButtons) }
func (s Set) Nintendo() bool        { return s.Has(Nintendo) }
func (s Set) ShareButton() bool     { return s.Has(ShareButton) }
func (s Set) ReverseMask() bool     { return s.Has(ReverseMask) }
func (s Set) SwappedMask() bool     { return s.Has(SwappedMask) }
func (s Set) NoHeuristics() bool    { return s.Has(NoHeuristics) }

// Names returns the names of the single flags set in s.
func (s Set) Names() []string {
	var out []string
	for _, n := range names {
		if s&n.flag != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	out := s.Names()
	if rest := s &^ (NoHeuristics<<1 - 1); rest != 0 {
		out = append(out, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(out, "|")
}

// ParseNames parses a "|" separated list of flag names or hex values, as used
// in the rule table.
func ParseNames(s string) (Set, error) {
	var out Set
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" || part == "none" {
			continue
		}
		if f, ok := lookupName(part); ok {
			out |= f
			continue
		}
		v, err := parseHex(part)
		if err != nil {
			return 0, fmt.Errorf("unknown quirk %q", part)
		}
		out |= v
	}
	return out, nil
}

func lookupName(s string) (Set, bool) {
	for _, n := range names {
		if strings.EqualFold(n.name, s) {
			return n.flag, true
		}
	}
	for name, f := range aliases {
		if strings.EqualFold(name, s) {
			return f, true
		}
	}
	return 0, false
}

// UnmarshalText lets rule files spell flags by name.
func (s *Set) UnmarshalText(text []byte) error {
	v, err := ParseNames(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Set) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseHex(s string) (Set, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return Set(v), nil
}
