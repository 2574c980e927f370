package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxEvdevKnownCodes(t *testing.T) {
	native, ok := LinuxEvdev.ToNative(0x41) // VK 'A'
	require.True(t, ok)
	assert.Equal(t, 30, native) // KEY_A

	native, ok = LinuxEvdev.ToNative(0x0D) // VK_RETURN
	require.True(t, ok)
	assert.Equal(t, 28, native) // KEY_ENTER
}

func TestLinuxEvdevUnknownCodeIsNotOK(t *testing.T) {
	_, ok := LinuxEvdev.ToNative(0xFF)
	assert.False(t, ok)
}

func TestLinuxEvdevSideSpecificModifiersWinReverseLookup(t *testing.T) {
	// evdev KEY_LEFTSHIFT(42) is reachable from both the generic
	// VK_SHIFT and the side-specific VK_LSHIFT; the reverse lookup
	// must resolve to the side-specific one so round-tripping a
	// captured LSHIFT keeps its side.
	c, ok := LinuxEvdev.ToNeutral(42)
	require.True(t, ok)
	assert.Equal(t, Code(0xA0), c)

	c, ok = LinuxEvdev.ToNeutral(29)
	require.True(t, ok)
	assert.Equal(t, Code(0xA2), c)
}

func TestLinuxEvdevRoundTripFromNative(t *testing.T) {
	// spec.md §8: for all native codes k, neutral->native(native->neutral(k)) == k
	// where defined.
	for _, native := range []int{30, 28, 1, 57, 105, 103, 106, 108, 59, 87} {
		neutral, ok := LinuxEvdev.ToNeutral(native)
		require.True(t, ok, "native code %d should map to a neutral code", native)
		back, ok := LinuxEvdev.ToNative(neutral)
		require.True(t, ok)
		assert.Equal(t, native, back)
	}
}

func TestLinuxEvdevRoundTripFromNeutral(t *testing.T) {
	for _, vk := range []uint16{0x41, 0x5A, 0x30, 0x39, 0x25, 0x28, 0x70, 0x7B} {
		native, ok := LinuxEvdev.ToNative(Code(vk))
		require.True(t, ok, "vk 0x%X should map to a native code", vk)
		back, ok := LinuxEvdev.ToNeutral(native)
		require.True(t, ok)
		assert.Equal(t, Code(vk), back)
	}
}

func TestLinuxEvdevHasNoZeroMappings(t *testing.T) {
	// VK_SELECT/VK_PRINT have no evdev counterpart in the teacher's
	// table and were dropped rather than carried forward as a 0 -> 0
	// entry, since ToNative must report ok=false for them, not 0.
	for _, vk := range []uint16{0x29, 0x2A} {
		_, ok := LinuxEvdev.ToNative(Code(vk))
		assert.False(t, ok)
	}
}
