// Package clipboard implements the Clipboard Bridge (spec.md §4.6): a
// poll loop that watches the local clipboard for changes and forwards
// them to the peer, applying an echo-suppression rule so a value just
// received from the peer is never bounced straight back.
package clipboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/peerlink"
)

// DefaultPollInterval is CLIPBOARD_POLL's default (spec.md §4.6).
const DefaultPollInterval = 500 * time.Millisecond

// TextProvider is the subset of inputdriver.Driver the bridge needs.
// Tests substitute a fake; production wires *inputdriver.<platform>Driver.
type TextProvider interface {
	ClipboardText(ctx context.Context) (string, error)
	SetClipboardText(ctx context.Context, text string) error
}

// Sender is the subset of *peerlink.Link the bridge needs.
type Sender interface {
	Send(peerlink.Message) error
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithEnabled sets the bridge's initial enabled state. Disabled bridges
// still run their poll loop but neither read nor write the clipboard,
// so SetEnabled can flip behaviour without restarting Run.
func WithEnabled(enabled bool) Option {
	return func(b *Bridge) { b.enabled = enabled }
}

// Bridge polls the local clipboard and mirrors changes to the peer link,
// and applies inbound clipboard_sync messages to the local clipboard.
type Bridge struct {
	driver TextProvider
	sender Sender
	logger zerolog.Logger

	pollInterval time.Duration

	mu                  sync.Mutex
	enabled             bool
	lastSeen            string // last text observed locally, seen or applied
	lastAppliedFromPeer string // last text this bridge itself applied, to suppress the echo
}

// New builds a Bridge. It starts enabled unless WithEnabled(false) is
// passed.
func New(driver TextProvider, sender Sender, logger zerolog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		driver:       driver,
		sender:       sender,
		logger:       logger.With().Str("component", "clipboard").Logger(),
		pollInterval: DefaultPollInterval,
		enabled:      true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetEnabled toggles clipboard syncing at runtime (Session Controller's
// set_clipboard_enabled command).
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Enabled reports whether syncing is currently on.
func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Run drives the poll loop until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.poll(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("clipboard poll failed")
			}
		}
	}
}

// poll implements one iteration of spec.md §4.6's suppress-echo rule:
// a locally observed value is sent only when it differs from both the
// last value seen on any prior poll AND the last value this bridge
// itself applied from an inbound clipboard_sync.
func (b *Bridge) poll(ctx context.Context) error {
	b.mu.Lock()
	enabled := b.enabled
	lastSeen := b.lastSeen
	lastApplied := b.lastAppliedFromPeer
	b.mu.Unlock()
	if !enabled {
		return nil
	}

	text, err := b.driver.ClipboardText(ctx)
	if err != nil {
		return err
	}
	if text == lastSeen {
		return nil
	}

	b.mu.Lock()
	b.lastSeen = text
	b.mu.Unlock()

	if text == lastApplied {
		return nil
	}

	return b.sender.Send(peerlink.NewMessage(peerlink.TypeClipboardSync, peerlink.ClipboardSyncPayload{
		ContentType: "text",
		Data:        text,
	}))
}

// HandleMessage applies an inbound clipboard_sync to the local
// clipboard, recording the applied text so the next poll doesn't echo
// it straight back to the peer. The Session Controller wires this as
// the peerlink.Link's clipboard_sync handler.
func (b *Bridge) HandleMessage(ctx context.Context, msg peerlink.Message) error {
	if msg.Type != peerlink.TypeClipboardSync {
		return nil
	}
	var p peerlink.ClipboardSyncPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.ContentType != "text" {
		// Binary payload types are reserved but not implemented.
		b.logger.Debug().Str("content_type", p.ContentType).Msg("ignoring unsupported clipboard content type")
		return nil
	}

	b.mu.Lock()
	enabled := b.enabled
	b.mu.Unlock()
	if !enabled {
		return nil
	}

	if err := b.driver.SetClipboardText(ctx, p.Data); err != nil {
		return err
	}

	b.mu.Lock()
	b.lastAppliedFromPeer = p.Data
	b.lastSeen = p.Data
	b.mu.Unlock()
	return nil
}
