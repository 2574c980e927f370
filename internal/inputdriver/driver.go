// Package inputdriver abstracts the local platform's pointer/keyboard
// synthesis and clipboard access behind one interface, so the Transfer
// Engine (internal/transfer) and Clipboard Bridge (internal/clipboard)
// never touch a platform API directly (spec.md §4.4).
package inputdriver

import (
	"context"

	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/keymap"
)

// Button identifies a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

// Driver is the platform seam every component needing to read or
// synthesise input, or reach the clipboard, depends on. The real
// implementation is the Linux WaylandDriver (wayland.go), optionally
// composed with DBusClipboard (dbusclipboard.go) by NewDefaultDriver;
// tests use the in-memory Fake.
type Driver interface {
	// PointerPosition returns the current pointer position in LOCAL
	// native screen coordinates.
	PointerPosition() (x, y int, err error)

	// WarpPointer moves the real pointer to (x, y) in LOCAL native
	// coordinates, used for the pointer-trap recentering spec.md
	// §4.5.3 describes.
	WarpPointer(x, y int) error

	// BeginCapture grabs exclusive pointer/keyboard input so none of it
	// reaches local applications while suppress is true (spec.md
	// §4.5.4). EndCapture releases it.
	BeginCapture(suppress bool) error
	EndCapture() error

	// SynthesiseMouseMove injects REMOTE-side absolute pointer motion.
	SynthesiseMouseMove(x, y int) error
	// SynthesiseMouseButton injects a button press or release.
	SynthesiseMouseButton(btn Button, down bool) error
	// SynthesiseMouseScroll injects a scroll event in 120-scaled
	// notches, positive deltaY meaning up.
	SynthesiseMouseScroll(deltaX, deltaY int) error
	// SynthesiseKey injects a key event. code is in the neutral key
	// space (internal/keymap).
	SynthesiseKey(code keymap.Code, down bool) error

	// ClipboardText reads the current clipboard text contents.
	ClipboardText(ctx context.Context) (string, error)
	// SetClipboardText writes text to the clipboard.
	SetClipboardText(ctx context.Context, text string) error

	// EnumerateScreens returns this host's screens in native space,
	// primary first.
	EnumerateScreens() ([]geometry.Screen, error)

	// Close releases any platform resources (virtual devices, bus
	// connections).
	Close() error
}
