// Package keymap translates between the neutral key-code space the Peer
// Link protocol carries on the wire and a host's native key-code space.
//
// The neutral space follows the traditional Windows VK convention:
// letters are uppercase ASCII, function keys occupy 112–123 (0x70–0x7B),
// the arrow keys are 37–40 (0x25–0x28). Each host platform provides a
// Table giving its own bijection into and out of that space; the
// protocol itself never carries a native code.
package keymap

// Code is a key code in the neutral, wire-transported space.
type Code uint16

// Table is a host's bijection between the neutral space and its own
// native key-code space. Each platform's Input Driver owns one.
type Table interface {
	// ToNative converts a neutral code to the host's native code. ok is
	// false if the neutral code has no native counterpart on this host.
	ToNative(c Code) (native int, ok bool)
	// ToNeutral converts a host-native code back to the neutral space.
	ToNeutral(native int) (c Code, ok bool)
}
