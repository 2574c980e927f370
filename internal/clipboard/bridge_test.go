package clipboard

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frank2889/peerbridge/internal/peerlink"
)

type fakeClipboardDriver struct {
	mu   sync.Mutex
	text string
}

func (f *fakeClipboardDriver) ClipboardText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *fakeClipboardDriver) SetClipboardText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	return nil
}

func (f *fakeClipboardDriver) set(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
}

type fakeClipboardSender struct {
	mu   sync.Mutex
	sent []peerlink.Message
}

func (f *fakeClipboardSender) Send(m peerlink.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeClipboardSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeClipboardSender) last() peerlink.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func TestPollSendsOnLocalChange(t *testing.T) {
	driver := &fakeClipboardDriver{text: "hello"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())

	require.NoError(t, b.poll(context.Background()))

	require.Equal(t, 1, sender.count())
	var p peerlink.ClipboardSyncPayload
	require.NoError(t, sender.last().Decode(&p))
	assert.Equal(t, "text", p.ContentType)
	assert.Equal(t, "hello", p.Data)
}

func TestPollDoesNotResendUnchangedText(t *testing.T) {
	driver := &fakeClipboardDriver{text: "hello"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())

	require.NoError(t, b.poll(context.Background()))
	require.NoError(t, b.poll(context.Background()))

	assert.Equal(t, 1, sender.count())
}

func TestPollSendsAgainAfterFurtherLocalChange(t *testing.T) {
	driver := &fakeClipboardDriver{text: "hello"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())

	require.NoError(t, b.poll(context.Background()))
	driver.set("world")
	require.NoError(t, b.poll(context.Background()))

	require.Equal(t, 2, sender.count())
	var p peerlink.ClipboardSyncPayload
	require.NoError(t, sender.last().Decode(&p))
	assert.Equal(t, "world", p.Data)
}

func TestHandleMessageAppliesTextAndSuppressesEcho(t *testing.T) {
	driver := &fakeClipboardDriver{text: "local"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())

	msg := peerlink.NewMessage(peerlink.TypeClipboardSync, peerlink.ClipboardSyncPayload{
		ContentType: "text",
		Data:        "from-peer",
	})
	require.NoError(t, b.HandleMessage(context.Background(), msg))

	text, err := driver.ClipboardText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-peer", text)

	// The next poll must not bounce the applied value back to the peer.
	require.NoError(t, b.poll(context.Background()))
	assert.Equal(t, 0, sender.count())
}

func TestHandleMessageIgnoresNonTextContentType(t *testing.T) {
	driver := &fakeClipboardDriver{text: "local"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())

	msg := peerlink.NewMessage(peerlink.TypeClipboardSync, peerlink.ClipboardSyncPayload{
		ContentType: "image/png",
		Data:        "base64stuff",
	})
	require.NoError(t, b.HandleMessage(context.Background(), msg))

	text, err := driver.ClipboardText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", text, "non-text payload must not touch the clipboard")
}

func TestDisabledBridgeNeitherPollsNorApplies(t *testing.T) {
	driver := &fakeClipboardDriver{text: "hello"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop(), WithEnabled(false))

	require.NoError(t, b.poll(context.Background()))
	assert.Equal(t, 0, sender.count())

	msg := peerlink.NewMessage(peerlink.TypeClipboardSync, peerlink.ClipboardSyncPayload{
		ContentType: "text",
		Data:        "from-peer",
	})
	require.NoError(t, b.HandleMessage(context.Background(), msg))
	text, err := driver.ClipboardText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestSetEnabledTogglesPolling(t *testing.T) {
	driver := &fakeClipboardDriver{text: "hello"}
	sender := &fakeClipboardSender{}
	b := New(driver, sender, zerolog.Nop())
	assert.True(t, b.Enabled())

	b.SetEnabled(false)
	assert.False(t, b.Enabled())
	require.NoError(t, b.poll(context.Background()))
	assert.Equal(t, 0, sender.count())

	b.SetEnabled(true)
	require.NoError(t, b.poll(context.Background()))
	assert.Equal(t, 1, sender.count())
}
