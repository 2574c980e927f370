package session

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/frank2889/peerbridge/internal/peerlink"
	"github.com/frank2889/peerbridge/internal/transfer"
)

func TestStatusServerPushesPublishedView(t *testing.T) {
	s := NewStatusServer(zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let the server register the client

	want := StatusView{
		LinkState:    peerlink.StateReady,
		EngineState:  transfer.StateRemote,
		TransferEdge: "right",
	}
	s.Publish(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got StatusView
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, want.LinkState, got.LinkState)
	require.Equal(t, want.EngineState, got.EngineState)
	require.Equal(t, want.TransferEdge, got.TransferEdge)
}

// TestStatusServerPublishDuringDisconnectDoesNotPanic guards against a
// send-on-closed-channel race: a client disconnecting concurrently with
// Publish must never see its update channel closed while Publish still
// holds a reference to it.
func TestStatusServerPublishDuringDisconnectDoesNotPanic(t *testing.T) {
	s := NewStatusServer(zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * time.Millisecond)
			c.Close()
		}(conn)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Publish(StatusView{LinkState: peerlink.StateReady})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish did not complete; possible deadlock")
	}
	wg.Wait()
}
