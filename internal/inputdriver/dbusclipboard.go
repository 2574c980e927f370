//go:build linux

package inputdriver

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	remoteDesktopBus          = "org.gnome.Mutter.RemoteDesktop"
	remoteDesktopSessionIface = "org.gnome.Mutter.RemoteDesktop.Session"
)

// gnomeTextMimeTypes is tried in order when reading the clipboard,
// since GNOME's RemoteDesktop selection does not normalise mime types.
var gnomeTextMimeTypes = []string{"text/plain;charset=utf-8", "text/plain", "UTF8_STRING", "STRING"}

// DBusClipboard bridges the clipboard through an already-established
// GNOME Mutter RemoteDesktop session (org.gnome.Mutter.RemoteDesktop),
// avoiding the wl-copy/wl-paste subprocesses WaylandDriver's clipboard
// falls back to elsewhere. It does not negotiate the session itself —
// sessionPath must come from whatever owns the RemoteDesktop portal
// handshake (spec.md leaves GNOME portal session setup to the host
// environment, same as legacydesktop.Server's rdSessionPath).
type DBusClipboard struct {
	conn        *dbus.Conn
	sessionPath dbus.ObjectPath
	logger      zerolog.Logger

	mu              sync.Mutex
	signalStarted   bool
	pendingContent  []byte
	pendingMimeType string
}

// NewDBusClipboard connects to the session bus and wires selection
// transfer handling for sessionPath.
func NewDBusClipboard(sessionPath dbus.ObjectPath, logger zerolog.Logger) (*DBusClipboard, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("inputdriver: connect session bus: %w", err)
	}
	c := &DBusClipboard{
		conn:        conn,
		sessionPath: sessionPath,
		logger:      logger.With().Str("component", "inputdriver.dbusclipboard").Logger(),
	}
	if err := c.session().Call(remoteDesktopSessionIface+".EnableClipboard", 0, map[string]dbus.Variant{}).Err; err != nil {
		c.logger.Debug().Err(err).Msg("EnableClipboard")
	}
	return c, nil
}

func (c *DBusClipboard) session() dbus.BusObject {
	return c.conn.Object(remoteDesktopBus, c.sessionPath)
}

// ClipboardText implements Driver's clipboard read by trying each
// text mime type in turn.
func (c *DBusClipboard) ClipboardText(ctx context.Context) (string, error) {
	for _, mime := range gnomeTextMimeTypes {
		data, err := c.readSelection(mime)
		if err == nil && len(data) > 0 {
			return string(data), nil
		}
	}
	return "", nil
}

func (c *DBusClipboard) readSelection(mimeType string) ([]byte, error) {
	call := c.session().Call(remoteDesktopSessionIface+".SelectionRead", 0, mimeType)
	if call.Err != nil {
		return nil, call.Err
	}
	if len(call.Body) == 0 {
		return nil, fmt.Errorf("inputdriver: SelectionRead returned no fd")
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		return nil, fmt.Errorf("inputdriver: SelectionRead returned unexpected type")
	}
	file := os.NewFile(uintptr(fd), "clipboard-read")
	defer file.Close()
	return io.ReadAll(file)
}

// SetClipboardText announces text as the current selection and serves
// it when GNOME's SelectionTransfer signal requests it.
func (c *DBusClipboard) SetClipboardText(ctx context.Context, text string) error {
	c.mu.Lock()
	c.pendingContent = []byte(text)
	c.pendingMimeType = "text/plain;charset=utf-8"
	c.mu.Unlock()

	opts := map[string]dbus.Variant{"mime-types": dbus.MakeVariant(gnomeTextMimeTypes)}
	if err := c.session().Call(remoteDesktopSessionIface+".SetSelection", 0, opts).Err; err != nil {
		return fmt.Errorf("inputdriver: SetSelection: %w", err)
	}
	c.ensureSignalHandler()
	return nil
}

func (c *DBusClipboard) ensureSignalHandler() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signalStarted {
		return
	}
	c.signalStarted = true

	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(c.sessionPath),
		dbus.WithMatchInterface(remoteDesktopSessionIface),
		dbus.WithMatchMember("SelectionTransfer"),
	); err != nil {
		c.logger.Error().Err(err).Msg("subscribe SelectionTransfer")
		return
	}

	signals := make(chan *dbus.Signal, 10)
	c.conn.Signal(signals)
	go func() {
		for sig := range signals {
			if sig.Name == remoteDesktopSessionIface+".SelectionTransfer" {
				c.handleSelectionTransfer(sig)
			}
		}
	}()
}

func (c *DBusClipboard) handleSelectionTransfer(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	serial, ok := sig.Body[1].(uint32)
	if !ok {
		return
	}

	c.mu.Lock()
	content := c.pendingContent
	c.mu.Unlock()

	session := c.session()
	if len(content) == 0 {
		session.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}

	call := session.Call(remoteDesktopSessionIface+".SelectionWrite", 0, serial)
	if call.Err != nil || len(call.Body) == 0 {
		session.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}
	fd, ok := call.Body[0].(dbus.UnixFD)
	if !ok {
		session.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, false)
		return
	}

	file := os.NewFile(uintptr(fd), "clipboard-write")
	_, writeErr := file.Write(content)
	file.Close()
	session.Call(remoteDesktopSessionIface+".SelectionWriteDone", 0, serial, writeErr == nil)
}

// Close disconnects the session bus connection.
func (c *DBusClipboard) Close() error {
	return c.conn.Close()
}
