// Package peerlink implements the framed JSON message channel between
// the two hosts: the hello/connected handshake, keep-alive ping/pong,
// and the single-writer/dedicated-reader concurrency split spec.md §4.2
// and §5 call for.
package peerlink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProtocolVersion is the hello.version this implementation speaks.
const ProtocolVersion = 1

// State is one of the Link States spec.md §3 defines.
type State string

const (
	StateIdle        State = "IDLE"
	StateListening   State = "LISTENING"
	StateDialing     State = "DIALING"
	StateHandshaking State = "HANDSHAKING"
	StateReady       State = "READY"
	StateClosing     State = "CLOSING"
)

const (
	defaultIdleTimeout = 10 * time.Second
	defaultPingTimeout = 3 * time.Second
	readDeadlineSlice  = 1 * time.Second
)

// Transport is the minimal surface Link needs from a connection. A
// *net.TCPConn satisfies it directly; tests substitute net.Pipe() ends
// or a mock.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetDeadline(t time.Time) error
}

var (
	// ErrProtocolViolation is returned by Handshake when the peer sends
	// an unexpected message or omits a required hello field.
	ErrProtocolViolation = errors.New("peerlink: protocol violation")
	// ErrClosed is returned by Send once the link has closed.
	ErrClosed = errors.New("peerlink: link closed")
)

// Peer is the handshake result: the other side's hello payload.
type Peer = HelloPayload

// Link owns one peer connection: the handshake, the single write lock,
// the reader goroutine, and the idle/ping keep-alive.
type Link struct {
	conn   Transport
	logger zerolog.Logger

	idleTimeout time.Duration
	pingTimeout time.Duration

	writeMu sync.Mutex

	mu    sync.Mutex
	state State
	peer  Peer

	onMessage func(Message)
	onState   func(State)

	closeOnce sync.Once
	closed    chan struct{}

	lastRecvMu sync.Mutex
	lastRecv   time.Time

	pendingPong chan struct{}
}

// Option configures a Link at construction.
type Option func(*Link)

// WithOnMessage sets the callback invoked for every message after the
// handshake completes (ping/pong are handled internally and never
// reach it).
func WithOnMessage(f func(Message)) Option {
	return func(l *Link) { l.onMessage = f }
}

// WithOnStateChange sets the callback invoked whenever the Link's state
// changes.
func WithOnStateChange(f func(State)) Option {
	return func(l *Link) { l.onState = f }
}

// WithTimeouts overrides IDLE_TIMEOUT / PING_TIMEOUT (spec.md §4.2
// defaults: 10s / 3s).
func WithTimeouts(idle, ping time.Duration) Option {
	return func(l *Link) {
		if idle > 0 {
			l.idleTimeout = idle
		}
		if ping > 0 {
			l.pingTimeout = ping
		}
	}
}

// New wraps conn in a Link, initially IDLE.
func New(conn Transport, logger zerolog.Logger, opts ...Option) *Link {
	l := &Link{
		conn:        conn,
		logger:      logger.With().Str("component", "peerlink").Logger(),
		idleTimeout: defaultIdleTimeout,
		pingTimeout: defaultPingTimeout,
		state:       StateIdle,
		closed:      make(chan struct{}),
		pendingPong: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DialTCP connects to addr and returns a Link in the DIALING state,
// ready for Handshake.
func DialTCP(addr string, logger zerolog.Logger, opts ...Option) (*Link, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("peerlink: dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	l := New(conn, logger, opts...)
	l.setState(StateDialing)
	return l, nil
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()
	if changed && l.onState != nil {
		l.onState(s)
	}
}

// State returns the link's current state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// PeerInfo returns the peer's hello payload, valid once READY.
func (l *Link) PeerInfo() Peer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

// Handshake performs the hello/connected exchange described in
// spec.md §4.2. It is symmetric for both the accepting and dialing
// side: whichever side calls it first sends hello immediately, then
// both sides wait for the other's hello (replying connected) and for
// the other's connected (transitioning READY). On success the reader
// goroutine and keep-alive loop are started and the link is READY.
func (l *Link) Handshake(hello HelloPayload) (Peer, error) {
	hello.Version = ProtocolVersion
	l.setState(StateHandshaking)

	if err := l.writeMessage(NewMessage(TypeHello, hello)); err != nil {
		return Peer{}, fmt.Errorf("peerlink: send hello: %w", err)
	}

	br := bufio.NewReaderSize(&deadlineReader{t: l.conn, slice: readDeadlineSlice}, 64*1024)

	var gotHello, gotConnected, sentConnected bool
	var peer Peer

	for !gotConnected || !sentConnected {
		line, err := readLine(br)
		if err != nil {
			return Peer{}, fmt.Errorf("peerlink: handshake read: %w", err)
		}
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return Peer{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		switch msg.Type {
		case TypeHello:
			var h HelloPayload
			if err := msg.Decode(&h); err != nil || h.ID == "" {
				return Peer{}, fmt.Errorf("%w: malformed hello", ErrProtocolViolation)
			}
			peer = h
			gotHello = true
			if err := l.writeMessage(NewMessage(TypeConnected, nil)); err != nil {
				return Peer{}, fmt.Errorf("peerlink: send connected: %w", err)
			}
			sentConnected = true
		case TypeConnected:
			if !gotHello {
				return Peer{}, fmt.Errorf("%w: connected before hello", ErrProtocolViolation)
			}
			gotConnected = true
		default:
			return Peer{}, fmt.Errorf("%w: unexpected %q during handshake", ErrProtocolViolation, msg.Type)
		}
	}

	l.mu.Lock()
	l.peer = peer
	l.mu.Unlock()

	l.touchRecv()
	l.setState(StateReady)
	go l.readLoop(br)
	go l.keepAliveLoop()
	return peer, nil
}

// Send marshals and writes msg, serialised by the single write lock.
func (l *Link) Send(msg Message) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	return l.writeMessage(msg)
}

func (l *Link) writeMessage(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetDeadline(time.Now().Add(readDeadlineSlice))
	_, err = l.conn.Write(raw)
	return err
}

func (l *Link) touchRecv() {
	l.lastRecvMu.Lock()
	l.lastRecv = timeNow()
	l.lastRecvMu.Unlock()
}

func (l *Link) sinceLastRecv() time.Duration {
	l.lastRecvMu.Lock()
	defer l.lastRecvMu.Unlock()
	return timeNow().Sub(l.lastRecv)
}

// timeNow is a seam so tests could substitute a clock; production code
// always uses time.Now.
var timeNow = time.Now

func (l *Link) readLoop(br *bufio.Reader) {
	defer l.Close()
	for {
		line, err := readLine(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debug().Err(err).Msg("read failed, closing link")
			}
			return
		}
		if line == "" {
			continue
		}
		l.touchRecv()

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			l.logger.Warn().Err(err).Msg("malformed frame, closing link")
			return
		}

		switch msg.Type {
		case TypePing:
			if err := l.writeMessage(NewMessage(TypePong, nil)); err != nil {
				return
			}
		case TypePong:
			select {
			case l.pendingPong <- struct{}{}:
			default:
			}
		case TypeDisconnect:
			return
		default:
			if l.onMessage != nil {
				l.onMessage(msg)
			}
		}
	}
}

func (l *Link) keepAliveLoop() {
	ticker := time.NewTicker(l.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.closed:
			return
		case <-ticker.C:
			if l.sinceLastRecv() < l.idleTimeout {
				continue
			}
			if err := l.writeMessage(NewMessage(TypePing, nil)); err != nil {
				l.Close()
				return
			}
			select {
			case <-l.pendingPong:
			case <-time.After(l.pingTimeout):
				l.logger.Warn().Msg("ping timeout, closing link")
				l.Close()
				return
			case <-l.closed:
				return
			}
		}
	}
}

// Close tears the link down. Idempotent and safe to call from any
// goroutine (spec.md §5 cancellation requirement).
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.setState(StateClosing)
		close(l.closed)
		err = l.conn.Close()
	})
	return err
}

// deadlineReader wraps a Transport so each Read call is bounded by a
// short deadline, matching spec.md §5's "every blocking socket call
// uses <= 1s timeout" requirement, while still presenting a plain
// io.Reader to bufio.Reader.
type deadlineReader struct {
	t     Transport
	slice time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	_ = d.t.SetDeadline(timeNow().Add(d.slice))
	n, err := d.t.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
	}
	return n, err
}

// readLine reads one newline-delimited frame, trimming the trailing \n
// (and \r, for leniency). A blank line yields "" with a nil error. Read
// timeouts do not return here: deadlineReader reports them as empty
// reads, which bufio.Reader retries, failing with io.ErrNoProgress after
// 100 consecutive empty reads.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return trimEOL(line), nil
		}
		if len(line) == 0 {
			return "", err
		}
	}
	return trimEOL(line), nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
