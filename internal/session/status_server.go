package session

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StatusServer implements C10: a websocket push of every StatusView
// change to connected status-UI sockets, grounded on the teacher's
// ws_input.go upgrader (this server only ever writes; it never reads
// input back from the socket).
type StatusServer struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan StatusView
}

// NewStatusServer builds a push server. CheckOrigin allows every origin,
// matching the teacher's "allow all for now" local-dev posture — this
// server is meant to run on loopback only (SPEC_FULL.md §4.10).
func NewStatusServer(logger zerolog.Logger) *StatusServer {
	return &StatusServer{
		logger: logger.With().Str("component", "status").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan StatusView),
	}
}

// Handler returns the http.HandlerFunc to mount at the status endpoint.
func (s *StatusServer) Handler() http.HandlerFunc {
	return s.handle
}

func (s *StatusServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("status websocket upgrade failed")
		return
	}

	updates := make(chan StatusView, 1)
	s.mu.Lock()
	s.clients[conn] = updates
	s.mu.Unlock()

	s.logger.Debug().Msg("status client connected")

	defer func() {
		s.removeClient(conn)
		conn.Close()
	}()

	// Drain any client-sent frames so the connection's read side doesn't
	// back up; a status client never sends meaningful input, so the
	// content is discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.removeClient(conn)
				return
			}
		}
	}()

	for view := range updates {
		data, err := json.Marshal(view)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// removeClient deletes conn's entry and closes its update channel
// under s.mu, so it can never race with Publish's send under the same
// lock (only one of "send" or "close" ever wins for a given client).
// Both the reader goroutine (on read error) and handle's own cleanup
// call this, guarded by the map lookup so a client is only closed once.
func (s *StatusServer) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(ch)
	}
}

// Publish pushes view to every connected client. A client whose update
// is still unsent has this update dropped rather than blocking Publish;
// the client itself stays connected.
func (s *StatusServer) Publish(view StatusView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- view:
		default:
			s.logger.Debug().Msg("dropping status update for slow client")
			_ = conn
		}
	}
}
