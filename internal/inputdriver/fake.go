package inputdriver

import (
	"context"
	"sync"

	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/keymap"
)

// KeyEvent records one SynthesiseKey call observed by Fake.
type KeyEvent struct {
	Code keymap.Code
	Down bool
}

// ButtonEvent records one SynthesiseMouseButton call observed by Fake.
type ButtonEvent struct {
	Button Button
	Down   bool
}

// ScrollEvent records one SynthesiseMouseScroll call observed by Fake.
type ScrollEvent struct{ DeltaX, DeltaY int }

// Fake is an in-memory Driver used by unit tests for the Transfer
// Engine, Clipboard Bridge and Session Controller, letting them assert
// on injected events without a real display server.
type Fake struct {
	mu sync.Mutex

	PointerX, PointerY int
	Screens            []geometry.Screen
	Clipboard          string

	Captured bool
	Suppress bool

	MouseMoves []struct{ X, Y int }
	Buttons    []ButtonEvent
	Scrolls    []ScrollEvent
	Keys       []KeyEvent

	ClosedFlag bool
}

// NewFake builds a Fake seeded with the given screens.
func NewFake(screens ...geometry.Screen) *Fake {
	return &Fake{Screens: screens}
}

func (f *Fake) PointerPosition() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PointerX, f.PointerY, nil
}

func (f *Fake) WarpPointer(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PointerX, f.PointerY = x, y
	return nil
}

func (f *Fake) BeginCapture(suppress bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Captured = true
	f.Suppress = suppress
	return nil
}

func (f *Fake) EndCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Captured = false
	return nil
}

func (f *Fake) SynthesiseMouseMove(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MouseMoves = append(f.MouseMoves, struct{ X, Y int }{x, y})
	return nil
}

func (f *Fake) SynthesiseMouseButton(btn Button, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Buttons = append(f.Buttons, ButtonEvent{btn, down})
	return nil
}

func (f *Fake) SynthesiseMouseScroll(deltaX, deltaY int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolls = append(f.Scrolls, ScrollEvent{deltaX, deltaY})
	return nil
}

func (f *Fake) SynthesiseKey(code keymap.Code, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, KeyEvent{code, down})
	return nil
}

func (f *Fake) ClipboardText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Clipboard, nil
}

func (f *Fake) SetClipboardText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clipboard = text
	return nil
}

func (f *Fake) EnumerateScreens() ([]geometry.Screen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Screens, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClosedFlag = true
	return nil
}

var _ Driver = (*Fake)(nil)
