//go:build linux

package inputdriver

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/geometry"
)

// gnomeRemoteDesktopClipboard composes WaylandDriver's pointer/keyboard
// synthesis with DBusClipboard's GNOME-native selection transfer,
// avoiding the wl-copy/wl-paste subprocess spawn on GNOME hosts where a
// RemoteDesktop session is already available.
type gnomeRemoteDesktopClipboard struct {
	*WaylandDriver
	clipboard *DBusClipboard
}

func (g *gnomeRemoteDesktopClipboard) ClipboardText(ctx context.Context) (string, error) {
	return g.clipboard.ClipboardText(ctx)
}

func (g *gnomeRemoteDesktopClipboard) SetClipboardText(ctx context.Context, text string) error {
	return g.clipboard.SetClipboardText(ctx, text)
}

func (g *gnomeRemoteDesktopClipboard) Close() error {
	err := g.WaylandDriver.Close()
	if cerr := g.clipboard.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewDefaultDriver selects the best available Driver for this host: the
// Wayland virtual-input backend always, composed with the GNOME D-Bus
// clipboard when gnomeSessionPath is non-empty (cmd/peerbridge passes
// Config.GnomeSessionPath, an already-negotiated Mutter RemoteDesktop
// session; an empty path falls back to WaylandDriver's own
// wl-copy/wl-paste clipboard).
func NewDefaultDriver(logger zerolog.Logger, screen geometry.Screen, gnomeSessionPath string) (Driver, error) {
	wl, err := NewWaylandDriver(logger, screen)
	if err != nil {
		return nil, err
	}
	if gnomeSessionPath == "" {
		return wl, nil
	}
	clip, err := NewDBusClipboard(dbus.ObjectPath(gnomeSessionPath), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("gnome clipboard unavailable, falling back to wl-copy/wl-paste")
		return wl, nil
	}
	return &gnomeRemoteDesktopClipboard{WaylandDriver: wl, clipboard: clip}, nil
}

var _ Driver = (*gnomeRemoteDesktopClipboard)(nil)
