package rdesc

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadHex(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	b, err := hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
	require.NoError(t, err)
	return b
}

func TestFixupLinuxDescriptor(t *testing.T) {
	desc := loadHex(t, "linux.hex")
	require.Len(t, desc, 335)

	out, res := Fixup(desc)
	assert.True(t, res.Trimmed)
	assert.True(t, res.AxesFixed)
	assert.True(t, res.SimFixed)
	assert.True(t, res.LinuxButtons)
	assert.Len(t, out, 334)

	assert.Equal(t, []byte{0x09, 0x33, 0x09, 0x34}, out[34:38])
	assert.Equal(t, []byte{0x05, 0x01, 0x09, 0x32}, out[52:56])
	assert.Equal(t, []byte{0x05, 0x01, 0x09, 0x35}, out[77:81])
	assert.Equal(t, byte(0x0C), out[145])
	assert.Equal(t, byte(0x0C), out[153])
	assert.Equal(t, byte(0x04), out[163])

	// input untouched
	assert.Equal(t, byte(0x32), desc[35])
	assert.Len(t, desc, 335)
}

func TestFixupWindowsDescriptor(t *testing.T) {
	desc := loadHex(t, "windows.hex")
	require.Len(t, desc, 307)

	out, res := Fixup(desc)
	assert.True(t, res.Trimmed)
	assert.False(t, res.AxesFixed)
	assert.False(t, res.SimFixed)
	assert.False(t, res.LinuxButtons)
	assert.Equal(t, desc[:306], out)
}

func TestFixupIdempotent(t *testing.T) {
	for _, name := range []string{"linux.hex", "windows.hex"} {
		once, _ := Fixup(loadHex(t, name))
		twice, res := Fixup(once)
		assert.Equal(t, once, twice, name)
		assert.False(t, res.Changed(), name)
	}
}

func TestFixupShortBuffers(t *testing.T) {
	out, res := Fixup(nil)
	assert.Empty(t, out)
	assert.False(t, res.Changed())

	out, res = Fixup([]byte{0xC0, 0x00})
	assert.Equal(t, []byte{0xC0}, out)
	assert.True(t, res.Trimmed)

	short := make([]byte, 40)
	short[34], short[35] = 0x09, 0x32
	out, res = Fixup(short)
	assert.False(t, res.AxesFixed)
	assert.Equal(t, short, out)
}

func TestBatteryReportID(t *testing.T) {
	for _, name := range []string{"linux.hex", "windows.hex"} {
		id, ok := BatteryReportID(loadHex(t, name))
		assert.True(t, ok, name)
		assert.Equal(t, uint8(4), id, name)
	}

	_, ok := BatteryReportID([]byte{0x05, 0x01, 0x09, 0x05, 0xA1, 0x01, 0xC0})
	assert.False(t, ok)

	// truncated item does not panic
	_, ok = BatteryReportID([]byte{0x85, 0x04, 0x05, 0x06, 0x09})
	assert.False(t, ok)
}

func TestFindReportID(t *testing.T) {
	// Xbox button usage in the Windows layout lives in report 2
	id, ok := FindReportID(loadHex(t, "windows.hex"), 0x01, 0x85)
	require.True(t, ok)
	assert.Equal(t, uint8(2), id)
}
