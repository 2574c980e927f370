package peerlink

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeLinks(t *testing.T) (*Link, *Link) {
	t.Helper()
	a, b := net.Pipe()
	logger := zerolog.Nop()
	return New(a, logger, WithTimeouts(time.Hour, time.Hour)),
		New(b, logger, WithTimeouts(time.Hour, time.Hour))
}

func TestHandshakeBothSidesReachReady(t *testing.T) {
	accepting, dialing := newPipeLinks(t)

	var wg sync.WaitGroup
	wg.Add(2)

	var acceptPeer, dialPeer Peer
	var acceptErr, dialErr error

	go func() {
		defer wg.Done()
		acceptPeer, acceptErr = accepting.Handshake(HelloPayload{ID: "accept-id", Name: "accept"})
	}()
	go func() {
		defer wg.Done()
		dialPeer, dialErr = dialing.Handshake(HelloPayload{ID: "dial-id", Name: "dial"})
	}()
	wg.Wait()

	require.NoError(t, acceptErr)
	require.NoError(t, dialErr)
	assert.Equal(t, "dial-id", acceptPeer.ID)
	assert.Equal(t, "accept-id", dialPeer.ID)
	assert.Equal(t, StateReady, accepting.State())
	assert.Equal(t, StateReady, dialing.State())

	accepting.Close()
	dialing.Close()
}

func TestSendDeliversToOnMessage(t *testing.T) {
	received := make(chan Message, 1)

	a, b := net.Pipe()
	logger := zerolog.Nop()
	side1 := New(a, logger, WithTimeouts(time.Hour, time.Hour))
	side2 := New(b, logger, WithTimeouts(time.Hour, time.Hour),
		WithOnMessage(func(m Message) { received <- m }))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = side1.Handshake(HelloPayload{ID: "s1"})
	}()
	go func() {
		defer wg.Done()
		_, _ = side2.Handshake(HelloPayload{ID: "s2"})
	}()
	wg.Wait()

	err := side1.Send(NewMessage(TypeMouseMove, MouseMovePayload{X: 10, Y: 20, Absolute: true}))
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, TypeMouseMove, msg.Type)
		var p MouseMovePayload
		require.NoError(t, msg.Decode(&p))
		assert.Equal(t, 10, p.X)
		assert.Equal(t, 20, p.Y)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	side1.Close()
	side2.Close()
}

func TestSendAfterCloseFails(t *testing.T) {
	accepting, dialing := newPipeLinks(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = accepting.Handshake(HelloPayload{ID: "a"}) }()
	go func() { defer wg.Done(); _, _ = dialing.Handshake(HelloPayload{ID: "d"}) }()
	wg.Wait()

	require.NoError(t, accepting.Close())
	err := accepting.Send(NewMessage(TypePing, nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandshakeRejectsUnexpectedMessage(t *testing.T) {
	a, b := net.Pipe()
	logger := zerolog.Nop()
	accepting := New(a, logger, WithTimeouts(time.Hour, time.Hour))

	go func() {
		// Write something other than hello/connected before the real
		// handshake traffic arrives.
		raw, _ := json.Marshal(NewMessage(TypeMouseMove, MouseMovePayload{}))
		raw = append(raw, '\n')
		_, _ = b.Write(raw)
		b.Close()
	}()

	_, err := accepting.Handshake(HelloPayload{ID: "a"})
	assert.Error(t, err)
}
