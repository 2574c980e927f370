package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/inputdriver"
	"github.com/frank2889/peerbridge/internal/peerlink"
	"github.com/frank2889/peerbridge/internal/transfer"
)

func newTestController(t *testing.T, id string, statusCh chan StatusView) (*Controller, context.CancelFunc) {
	t.Helper()
	arr := geometry.NewArrangement(0, 0, 0)
	arr.SetLocalScreens([]geometry.Screen{{ID: "l0", Width: 1920, Height: 1080, Primary: true}})
	arr.SetTransferEdge(geometry.EdgeRight)
	driver := inputdriver.NewFake(geometry.Screen{ID: "l0", Width: 1920, Height: 1080, Primary: true})

	opts := []Option{}
	if statusCh != nil {
		opts = append(opts, WithOnStatusChange(func(v StatusView) {
			select {
			case statusCh <- v:
			default:
			}
		}))
	}

	c := New(Identity{ID: id, Name: id, Platform: "linux"}, "127.0.0.1:0", arr, driver, zerolog.Nop(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	require.Eventually(t, func() bool { return c.ListenAddr() != "" }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, cancel
}

func TestConnectPerformsHandshakeAndReachesReady(t *testing.T) {
	server, _ := newTestController(t, "server", nil)
	client, _ := newTestController(t, "client", nil)

	require.NoError(t, client.Connect(context.Background(), server.ListenAddr()))

	require.Eventually(t, func() bool {
		return client.Status().LinkState == peerlink.StateReady
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return server.Status().LinkState == peerlink.StateReady
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "server", client.Status().PeerInfo.ID)
	assert.Equal(t, "client", server.Status().PeerInfo.ID)
	assert.Equal(t, transfer.StateLocal, client.Status().EngineState)
}

func TestSecondConnectionIsRefused(t *testing.T) {
	server, _ := newTestController(t, "server", nil)
	clientA, _ := newTestController(t, "clientA", nil)
	clientB, _ := newTestController(t, "clientB", nil)

	require.NoError(t, clientA.Connect(context.Background(), server.ListenAddr()))
	require.Eventually(t, func() bool {
		return server.Status().LinkState == peerlink.StateReady
	}, 2*time.Second, 10*time.Millisecond)

	err := clientB.Connect(context.Background(), server.ListenAddr())
	// The dial/handshake may succeed at the TCP level but the server
	// refuses the second Link before handshaking it, so clientB should
	// never observe a READY status.
	_ = err
	time.Sleep(200 * time.Millisecond)
	assert.NotEqual(t, peerlink.StateReady, clientB.Status().LinkState)
}

func TestDisconnectTearsLinkDown(t *testing.T) {
	server, _ := newTestController(t, "server", nil)
	client, _ := newTestController(t, "client", nil)

	require.NoError(t, client.Connect(context.Background(), server.ListenAddr()))
	require.Eventually(t, func() bool {
		return client.Status().LinkState == peerlink.StateReady
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Disconnect())

	require.Eventually(t, func() bool {
		s := client.Status().LinkState
		return s == peerlink.StateClosing || s == peerlink.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectWhileAlreadyConnectedFails(t *testing.T) {
	server, _ := newTestController(t, "server", nil)
	other, _ := newTestController(t, "other", nil)
	client, _ := newTestController(t, "client", nil)

	require.NoError(t, client.Connect(context.Background(), server.ListenAddr()))
	require.Eventually(t, func() bool {
		return client.Status().LinkState == peerlink.StateReady
	}, 2*time.Second, 10*time.Millisecond)

	err := client.Connect(context.Background(), other.ListenAddr())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestSetTransferEdgeUpdatesStatus(t *testing.T) {
	c, _ := newTestController(t, "solo", nil)
	assert.True(t, c.SetTransferEdge(geometry.EdgeLeft))
	assert.Equal(t, geometry.EdgeLeft, c.Status().TransferEdge)
}

func TestSetClipboardEnabledUpdatesStatus(t *testing.T) {
	c, _ := newTestController(t, "solo", nil)
	assert.True(t, c.Status().ClipboardEnabled)
	c.SetClipboardEnabled(false)
	assert.False(t, c.Status().ClipboardEnabled)
}

func TestDisconnectWithoutLinkReturnsErrNotConnected(t *testing.T) {
	c, _ := newTestController(t, "solo", nil)
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)
}
