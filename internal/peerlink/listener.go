package peerlink

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// Listener wraps a TCP listener producing one Link per accepted
// connection with TCP_NODELAY set, per spec.md §4.2. It does not itself
// enforce the "single connection at a time" policy — that belongs to
// whatever owns the accept loop (the Session Controller, spec.md §5.1),
// since only it knows whether a peer is already connected.
type Listener struct {
	ln     net.Listener
	logger zerolog.Logger
}

// Listen binds addr (host:port, typically ":52525") for TCP.
func Listen(addr string, logger zerolog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peerlink: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, logger: logger}, nil
}

// Accept blocks for the next incoming connection and wraps it in a Link
// in the HANDSHAKING-ready IDLE state. Call Handshake on the result.
func (l *Listener) Accept(opts ...Option) (*Link, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return New(conn, l.logger, opts...), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }
