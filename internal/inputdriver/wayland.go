//go:build linux

package inputdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/keymap"
)

// clipboardTimeout bounds how long wl-copy/wl-paste may block; a short
// timeout keeps a wedged clipboard owner from stalling the poll loop.
const clipboardTimeout = 2 * time.Second

// WaylandDriver synthesises input via the zwlr_virtual_pointer_v1 and
// zwp_virtual_keyboard_v1 protocols, and bridges the clipboard via
// wl-copy/wl-paste. It needs no /dev/uinput access or root privilege.
type WaylandDriver struct {
	mu sync.Mutex

	pointerManager  *virtual_pointer.VirtualPointerManager
	pointer         *virtual_pointer.VirtualPointer
	keyboardManager *virtual_keyboard.VirtualKeyboardManager
	keyboard        *virtual_keyboard.VirtualKeyboard

	logger zerolog.Logger
	closed bool

	screen geometry.Screen

	currentX, currentY float64
	initialized        bool
}

// NewWaylandDriver connects to the running Wayland compositor. screen
// describes this host's sole reporting screen (spec.md's Non-goals
// exclude multi-monitor output enumeration on the LOCAL host; a single
// configured screen is assumed, as built by ScreenFromEnv).
func NewWaylandDriver(logger zerolog.Logger, screen geometry.Screen) (*WaylandDriver, error) {
	ctx := context.Background()

	pointerManager, err := virtual_pointer.NewVirtualPointerManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("inputdriver: create virtual pointer manager: %w", err)
	}
	pointer, err := pointerManager.CreatePointer()
	if err != nil {
		pointerManager.Close()
		return nil, fmt.Errorf("inputdriver: create virtual pointer: %w", err)
	}
	keyboardManager, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
	if err != nil {
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("inputdriver: create virtual keyboard manager: %w", err)
	}
	keyboard, err := keyboardManager.CreateKeyboard()
	if err != nil {
		keyboardManager.Close()
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("inputdriver: create virtual keyboard: %w", err)
	}

	logger.Info().Int("width", screen.Width).Int("height", screen.Height).Msg("wayland virtual input ready")

	return &WaylandDriver{
		pointerManager:  pointerManager,
		pointer:         pointer,
		keyboardManager: keyboardManager,
		keyboard:        keyboard,
		logger:          logger.With().Str("component", "inputdriver.wayland").Logger(),
		screen:          screen,
		currentX:        float64(screen.Width) / 2,
		currentY:        float64(screen.Height) / 2,
	}, nil
}

// PointerPosition returns the position this driver last moved the
// virtual pointer to (the screen centre before any move). It does not
// read the compositor's real pointer, so pointer motion made by the
// local user is not reflected.
func (w *WaylandDriver) PointerPosition() (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.currentX), int(w.currentY), nil
}

func (w *WaylandDriver) WarpPointer(x, y int) error {
	return w.moveAbsolute(x, y)
}

func (w *WaylandDriver) SynthesiseMouseMove(x, y int) error {
	return w.moveAbsolute(x, y)
}

// moveAbsolute converts a target position into the relative delta the
// virtual pointer protocol requires, since it has no absolute-move
// request.
func (w *WaylandDriver) moveAbsolute(x, y int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	targetX, targetY := float64(x), float64(y)
	dx, dy := targetX-w.currentX, targetY-w.currentY
	if !w.initialized {
		dx = targetX - float64(w.screen.Width)/2
		dy = targetY - float64(w.screen.Height)/2
		w.initialized = true
	}
	w.currentX, w.currentY = targetX, targetY

	if dx != 0 || dy != 0 {
		w.pointer.MoveRelative(dx, dy)
		w.pointer.Frame()
	}
	return nil
}

func (w *WaylandDriver) SynthesiseMouseButton(btn Button, down bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	var code uint32
	switch btn {
	case ButtonLeft:
		code = virtual_pointer.BTN_LEFT
	case ButtonMiddle:
		code = virtual_pointer.BTN_MIDDLE
	case ButtonRight:
		code = virtual_pointer.BTN_RIGHT
	default:
		return nil
	}

	state := virtual_pointer.BUTTON_STATE_RELEASED
	if down {
		state = virtual_pointer.BUTTON_STATE_PRESSED
	}
	w.pointer.Button(time.Now(), code, state)
	w.pointer.Frame()
	return nil
}

func (w *WaylandDriver) SynthesiseMouseScroll(deltaX, deltaY int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}
	if deltaY != 0 {
		w.pointer.ScrollVertical(float64(deltaY))
	}
	if deltaX != 0 {
		w.pointer.ScrollHorizontal(float64(deltaX))
	}
	w.pointer.Frame()
	return nil
}

func (w *WaylandDriver) SynthesiseKey(code keymap.Code, down bool) error {
	evdev, ok := keymap.LinuxEvdev.ToNative(code)
	if !ok {
		w.logger.Debug().Uint16("code", uint16(code)).Msg("unmapped neutral key code")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.keyboard == nil {
		return nil
	}

	state := virtual_keyboard.KeyStateReleased
	if down {
		state = virtual_keyboard.KeyStatePressed
	}
	return w.keyboard.Key(time.Now(), uint32(evdev), state)
}

// BeginCapture is a no-op on Wayland: the virtual-input protocols only
// inject into the compositor, they never grab local input away from
// it, so local input is not suppressed and keeps reaching local
// applications even when suppress is true.
func (w *WaylandDriver) BeginCapture(suppress bool) error { return nil }
func (w *WaylandDriver) EndCapture() error                { return nil }

func (w *WaylandDriver) ClipboardText(ctx context.Context) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	out, err := exec.CommandContext(cctx, "wl-paste", "--no-newline").Output()
	if err != nil {
		return "", fmt.Errorf("inputdriver: wl-paste: %w", err)
	}
	return string(out), nil
}

func (w *WaylandDriver) SetClipboardText(ctx context.Context, text string) error {
	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "wl-copy")
	cmd.Stdin = bytes.NewBufferString(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("inputdriver: wl-copy: %w", err)
	}
	return nil
}

// EnumerateScreens reports the single configured screen: this module
// targets a single-seat Wayland host and has no grounding in the
// example pack for a wlr-output-management enumeration of multiple
// physical outputs (the Non-goals explicitly exclude multi-monitor
// spanning on the LOCAL side).
func (w *WaylandDriver) EnumerateScreens() ([]geometry.Screen, error) {
	return []geometry.Screen{w.screen}, nil
}

func (w *WaylandDriver) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.keyboard != nil {
		record(w.keyboard.Close())
	}
	if w.keyboardManager != nil {
		record(w.keyboardManager.Close())
	}
	if w.pointer != nil {
		record(w.pointer.Close())
	}
	if w.pointerManager != nil {
		record(w.pointerManager.Close())
	}
	return firstErr
}

var _ Driver = (*WaylandDriver)(nil)
