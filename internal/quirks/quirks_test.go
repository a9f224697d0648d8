package quirks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTable(t *testing.T) {
	tab := Builtin()
	require.NotEmpty(t, tab.Products)
	assert.True(t, tab.Supported(0x0B13))
	assert.False(t, tab.Supported(0x1234))

	s := tab.Resolve(Device{Product: 0x0B13, Address: "aa:bb:cc:00:11:22"}, nil, nil)
	assert.Equal(t, ShareButton, s)

	s = tab.Resolve(Device{Product: 0x0B05, Address: "aa:bb:cc:00:11:22"}, nil, nil)
	assert.True(t, s.UseHWProfiles())
}

func TestRuleMatching(t *testing.T) {
	tab := &Table{Rules: []Rule{
		{OUI: "98:B6:EA", Flags: NoPulse | ReverseMask},
		{Name: "8BitDo", Flags: SimpleClone},
		{},
	}}

	s := tab.Resolve(Device{Address: "98:b6:ea:01:02:03", Name: "Xbox Wireless Controller"}, nil, nil)
	assert.Equal(t, NoPulse|ReverseMask, s)

	s = tab.Resolve(Device{Address: "00:11:22:33:44:55", Name: "8BitDo Pro 2"}, nil, nil)
	assert.Equal(t, SimpleClone, s)

	s = tab.Resolve(Device{Address: "98:b6:ea:01:02:03", Name: "8BitDo Pro 2"}, nil, nil)
	assert.Equal(t, SimpleClone|ReverseMask, s)
}

func TestRuleOrderIndependent(t *testing.T) {
	rules := []Rule{
		{OUI: "98:B6:EA", Flags: NoPulse},
		{Name: "Pad", Flags: Nintendo},
		{OUI: "98:B6", Flags: SwappedMask},
	}
	dev := Device{Address: "98:B6:EA:00:00:01", Name: "Pad X"}

	a := (&Table{Rules: rules}).Resolve(dev, nil, nil)
	b := (&Table{Rules: []Rule{rules[2], rules[0], rules[1]}}).Resolve(dev, nil, nil)
	assert.Equal(t, a, b)
	assert.Equal(t, NoPulse|Nintendo|SwappedMask, a)
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride("AA:BB:CC:DD:EE:FF+0x40")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", o.Address)
	assert.Equal(t, OpAdd, o.Op)
	assert.Equal(t, ShareButton, o.Flags)

	o, err = ParseOverride("aa:bb:cc:dd:ee:ff:7")
	require.NoError(t, err)
	assert.Equal(t, OpReplace, o.Op)
	assert.Equal(t, Set(7), o.Flags)

	for _, bad := range []string{
		"",
		"aa:bb:cc:dd:ee:ff",
		"aa:bb:cc:dd:ee:ff*1",
		"aa:bb:cc:dd:ee:ff+",
		"aa:bb:cc:dd:ee:ff+xyz",
		"zz:bb:cc:dd:ee:ff+1",
	} {
		_, err := ParseOverride(bad)
		assert.True(t, errors.Is(err, ErrMalformedOverride), bad)
	}
}

func TestOverridePrecedence(t *testing.T) {
	tab := &Table{
		Products: []ProductRule{{Product: 0x02FD, Flags: NoPulse}},
		Rules:    []Rule{{OUI: "AA:BB:CC", Flags: Nintendo}},
	}
	dev := Device{Product: 0x02FD, Address: "aa:bb:cc:dd:ee:ff"}

	assert.Equal(t, NoPulse|Nintendo, tab.Resolve(dev, nil, nil))
	assert.Equal(t, ShareButton, tab.Resolve(dev, []string{"aa:bb:cc:dd:ee:ff:40"}, nil))
	assert.Equal(t, NoPulse|Nintendo|ShareButton, tab.Resolve(dev, []string{"aa:bb:cc:dd:ee:ff+40"}, nil))
	assert.Equal(t, Nintendo, tab.Resolve(dev, []string{"aa:bb:cc:dd:ee:ff-1"}, nil))

	// only the first matching override counts
	assert.Equal(t, Set(0), tab.Resolve(dev, []string{
		"11:22:33:44:55:66:1ff",
		"aa:bb:cc:dd:ee:ff:0",
		"aa:bb:cc:dd:ee:ff+40",
	}, nil))
}

func TestMalformedOverrideKeepsState(t *testing.T) {
	tab := &Table{Products: []ProductRule{{Product: 0x02FD, Flags: NoPulse}}}
	dev := Device{Product: 0x02FD, Address: "aa:bb:cc:dd:ee:ff"}

	s := tab.Resolve(dev, []string{"aa:bb:cc:dd:ee:ff#40", "garbage"}, nil)
	assert.Equal(t, NoPulse, s)

	s = tab.Resolve(dev, []string{"garbage", "aa:bb:cc:dd:ee:ff+40"}, nil)
	assert.Equal(t, NoPulse|ShareButton, s)
}

func TestHeuristic(t *testing.T) {
	tab := &Table{}
	clone := Device{Address: "28:00:00:00:00:01", DescriptorSize: HeuristicDescriptorSize}

	assert.Equal(t, SimpleClone, tab.Resolve(clone, nil, nil))

	other := clone
	other.DescriptorSize = 335
	assert.Equal(t, Set(0), tab.Resolve(other, nil, nil))

	other = clone
	other.Address = "20:00:00:00:00:01"
	assert.Equal(t, Set(0), tab.Resolve(other, nil, nil))

	// remove runs after the heuristic and can veto it
	assert.Equal(t, NoTriggerRumble, tab.Resolve(clone, []string{"28:00:00:00:00:01-5"}, nil))
	// NoHeuristics added by the user disables it
	assert.Equal(t, NoHeuristics, tab.Resolve(clone, []string{"28:00:00:00:00:01+200"}, nil))
	// replace skips it entirely
	assert.Equal(t, Nintendo, tab.Resolve(clone, []string{"28:00:00:00:00:01:20"}, nil))
}

func TestSetText(t *testing.T) {
	s, err := ParseNames("SimpleClone|ShareButton")
	require.NoError(t, err)
	assert.Equal(t, SimpleClone|ShareButton, s)
	assert.Equal(t, "NoPulse|NoTriggerRumble|NoMotorMask|ShareButton", s.String())
	assert.Equal(t, "none", Set(0).String())

	_, err = ParseNames("Bogus")
	assert.Error(t, err)

	var back Set
	require.NoError(t, back.UnmarshalText([]byte(s.String())))
	assert.Equal(t, s, back)
}
