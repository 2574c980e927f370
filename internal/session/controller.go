// Package session implements the Session Controller (spec.md §4.7): it
// owns startup order (Discovery -> Peer Link listen -> Input Driver ->
// Transfer Engine -> Clipboard), accepts UI commands, and publishes the
// observable status view spec.md §6's UI interface describes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/frank2889/peerbridge/internal/clipboard"
	"github.com/frank2889/peerbridge/internal/discovery"
	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/inputdriver"
	"github.com/frank2889/peerbridge/internal/peerlink"
	"github.com/frank2889/peerbridge/internal/transfer"
)

// ErrAlreadyConnected is returned by Connect, and silently enforced on
// the accept loop, per spec.md §5 item 1's "single connection at a
// time" policy.
var ErrAlreadyConnected = errors.New("session: already connected to a peer")

// ErrNotConnected is returned by Disconnect when there is no active link.
var ErrNotConnected = errors.New("session: not connected")

// StatusView is the UI-observable state spec.md §6 names:
// {link_state, peer_info?, engine_state, discovered_peers[], transfer_edge,
// clipboard_enabled}.
type StatusView struct {
	LinkState        peerlink.State   `json:"link_state"`
	PeerInfo         *peerlink.Peer   `json:"peer_info,omitempty"`
	EngineState      transfer.State   `json:"engine_state"`
	DiscoveredPeers  []discovery.Peer `json:"discovered_peers"`
	TransferEdge     geometry.Edge    `json:"transfer_edge"`
	ClipboardEnabled bool             `json:"clipboard_enabled"`
}

// Identity is this process's self-announcement and hello fields.
type Identity struct {
	ID       string
	Name     string
	Platform string
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithOnStatusChange registers a callback invoked whenever the
// published StatusView changes, wired to C10's websocket push.
func WithOnStatusChange(f func(StatusView)) Option {
	return func(c *Controller) { c.onStatus = f }
}

// WithDiscovery enables the C3 discovery broadcaster/listener at the
// given port/interval. Without this option the controller only accepts
// peer links directly (e.g. via Connect), never announcing itself.
func WithDiscovery(port int, interval time.Duration) Option {
	return func(c *Controller) {
		c.discoveryPort = port
		c.discoveryInterval = interval
		c.discoveryEnabled = true
	}
}

// WithClipboardPollInterval overrides the Clipboard Bridge's poll period.
func WithClipboardPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.clipboardPoll = d }
}

// WithPointerTuning overrides the Transfer Engine's gain/trap radius.
func WithPointerTuning(gain float64, trapRadius int) Option {
	return func(c *Controller) { c.pointerGain, c.trapRadius = gain, trapRadius }
}

// WithClipboardEnabled sets the initial clipboard-sync state.
func WithClipboardEnabled(enabled bool) Option {
	return func(c *Controller) { c.clipboardEnabled = enabled }
}

// WithLinkTimeouts overrides the Peer Link's IDLE_TIMEOUT/PING_TIMEOUT
// (spec.md §4.2) for every link this controller accepts or dials.
func WithLinkTimeouts(idle, ping time.Duration) Option {
	return func(c *Controller) { c.idleTimeout, c.pingTimeout = idle, ping }
}

// activeSession is a message router for one Link: its fields are filled
// in only once the handshake completes and engine/clipboard bridge
// exist, so the Link's onMessage option (which must be supplied before
// Handshake) has somewhere to dispatch to. The link only invokes
// onMessage once it is READY; messages that arrive after that but before
// the fields are set are dropped.
type activeSession struct {
	mu     sync.Mutex
	engine *transfer.Engine
	clip   *clipboard.Bridge
}

func (s *activeSession) set(engine *transfer.Engine, clip *clipboard.Bridge) {
	s.mu.Lock()
	s.engine, s.clip = engine, clip
	s.mu.Unlock()
}

func (s *activeSession) dispatch(logger zerolog.Logger) func(peerlink.Message) {
	return func(msg peerlink.Message) {
		s.mu.Lock()
		engine, clip := s.engine, s.clip
		s.mu.Unlock()
		if engine == nil {
			return
		}
		if msg.Type == peerlink.TypeClipboardSync {
			if clip == nil {
				return
			}
			if err := clip.HandleMessage(context.Background(), msg); err != nil {
				logger.Warn().Err(err).Msg("clipboard message handling failed")
			}
			return
		}
		if err := engine.HandleMessage(msg); err != nil {
			logger.Warn().Err(err).Msg("transfer message handling failed")
		}
	}
}

// Controller owns one process's entire session lifecycle: at most one
// active peer link, the Transfer Engine and Clipboard Bridge scoped to
// it, and the long-running Discovery broadcaster/listener.
type Controller struct {
	self        Identity
	listenAddr  string
	arrangement *geometry.Arrangement
	driver      inputdriver.Driver
	logger      zerolog.Logger

	discoveryEnabled  bool
	discoveryPort     int
	discoveryInterval time.Duration
	disc              *discovery.Discovery

	clipboardPoll time.Duration
	pointerGain   float64
	trapRadius    int
	idleTimeout   time.Duration
	pingTimeout   time.Duration

	onStatus func(StatusView)

	mu               sync.Mutex
	listener         *peerlink.Listener
	link             *peerlink.Link
	engine           *transfer.Engine
	clip             *clipboard.Bridge
	clipboardEnabled bool
}

// New builds a Controller. arrangement and driver are constructed by
// the caller (cmd/peerbridge) since they depend on the host platform.
func New(self Identity, listenAddr string, arrangement *geometry.Arrangement, driver inputdriver.Driver, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		self:             self,
		listenAddr:       listenAddr,
		arrangement:      arrangement,
		driver:           driver,
		logger:           logger.With().Str("component", "session").Logger(),
		discoveryPort:    discovery.DefaultPort,
		clipboardPoll:    clipboard.DefaultPollInterval,
		pointerGain:      transfer.DefaultPointerGain,
		trapRadius:       transfer.DefaultTrapRadius,
		clipboardEnabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts listening for peer connections and, if enabled, the
// discovery broadcaster/listener; it blocks until ctx is cancelled,
// tearing both down together (spec.md §4.7's startup order, reversed on
// shutdown).
func (c *Controller) Run(ctx context.Context) error {
	listener, err := peerlink.Listen(c.listenAddr, c.logger)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", c.listenAddr, err)
	}
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()
	defer listener.Close()

	var wg conc.WaitGroup
	if c.discoveryEnabled {
		c.disc = discovery.New(c.discoveryPort, c.discoveryInterval, discovery.Announcement{
			ID:       c.self.ID,
			Name:     c.self.Name,
			IP:       "", // receiving listeners fill it from the datagram's source address
			Port:     addrPort(c.listenAddr),
			Platform: c.self.Platform,
		}, c.logger, discovery.WithOnChange(func(peers []discovery.Peer) {
			c.publishStatus()
		}))
		wg.Go(func() {
			if err := c.disc.Run(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("discovery stopped")
			}
		})
	}

	wg.Go(func() { c.acceptLoop(ctx, listener) })

	<-ctx.Done()
	listener.Close()
	c.Disconnect()
	wg.Wait()
	return nil
}

func (c *Controller) acceptLoop(ctx context.Context, listener *peerlink.Listener) {
	for {
		session := &activeSession{}
		link, err := listener.Accept(
			peerlink.WithOnMessage(session.dispatch(c.logger)),
			peerlink.WithOnStateChange(func(s peerlink.State) { c.onLinkStateChange(s) }),
			peerlink.WithTimeouts(c.idleTimeout, c.pingTimeout),
		)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Debug().Err(err).Msg("accept failed")
			return
		}

		c.mu.Lock()
		alreadyConnected := c.link != nil
		if !alreadyConnected {
			c.link = link
		}
		c.mu.Unlock()

		if alreadyConnected {
			c.logger.Info().Msg("refusing additional connection, already connected")
			link.Close()
			continue
		}

		go c.finishIncoming(link, session)
	}
}

func (c *Controller) finishIncoming(link *peerlink.Link, session *activeSession) {
	peer, err := link.Handshake(c.hello())
	if err != nil {
		c.logger.Warn().Err(err).Msg("handshake failed")
		c.clearLink(link)
		return
	}
	c.onHandshakeComplete(link, session, peer)
}

// Connect dials ip:port directly, bypassing discovery (spec.md §4.9's
// `peerbridge connect`), with a bounded retry since this is a deliberate
// user action rather than a background discovery candidacy.
func (c *Controller) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	alreadyConnected := c.link != nil
	c.mu.Unlock()
	if alreadyConnected {
		return ErrAlreadyConnected
	}

	session := &activeSession{}
	var link *peerlink.Link
	err := retry.Do(
		func() error {
			l, dialErr := peerlink.DialTCP(addr, c.logger,
				peerlink.WithOnMessage(session.dispatch(c.logger)),
				peerlink.WithOnStateChange(func(s peerlink.State) { c.onLinkStateChange(s) }),
				peerlink.WithTimeouts(c.idleTimeout, c.pingTimeout),
			)
			if dialErr != nil {
				return dialErr
			}
			link = l
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return fmt.Errorf("session: connect %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		link.Close()
		return ErrAlreadyConnected
	}
	c.link = link
	c.mu.Unlock()

	peer, err := link.Handshake(c.hello())
	if err != nil {
		c.clearLink(link)
		return fmt.Errorf("session: handshake %s: %w", addr, err)
	}
	c.onHandshakeComplete(link, session, peer)
	return nil
}

func (c *Controller) hello() peerlink.HelloPayload {
	screens, _ := c.driver.EnumerateScreens()
	return peerlink.HelloPayload{
		Version:  peerlink.ProtocolVersion,
		ID:       c.self.ID,
		Name:     c.self.Name,
		Platform: c.self.Platform,
		Screens:  screens,
	}
}

// onHandshakeComplete implements the rest of spec.md §4.7's startup
// order for the newly READY link: Input Driver is already initialised
// (constructor-injected), so this wires the Transfer Engine and
// Clipboard Bridge and starts both.
func (c *Controller) onHandshakeComplete(link *peerlink.Link, session *activeSession, peer peerlink.Peer) {
	c.arrangement.SetRemoteScreens(peer.Screens)

	engine := transfer.New(c.arrangement, c.driver, link, c.logger,
		transfer.WithPointerGain(c.pointerGain),
		transfer.WithTrapRadius(c.trapRadius),
		transfer.WithOnStateChange(func(transfer.State) { c.publishStatus() }),
	)

	c.mu.Lock()
	clipboardEnabled := c.clipboardEnabled
	c.mu.Unlock()

	clip := clipboard.New(c.driver, link, c.logger,
		clipboard.WithPollInterval(c.clipboardPoll),
		clipboard.WithEnabled(clipboardEnabled),
	)
	session.set(engine, clip)

	c.mu.Lock()
	c.engine = engine
	c.clip = clip
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	var wg conc.WaitGroup
	wg.Go(func() { _ = engine.Run(ctx) })
	wg.Go(func() { _ = clip.Run(ctx) })

	go func() {
		for link.State() != peerlink.StateClosing {
			time.Sleep(200 * time.Millisecond)
		}
		cancel()
		wg.Wait()
		c.clearLink(link)
	}()

	c.publishStatus()
}

func (c *Controller) onLinkStateChange(s peerlink.State) {
	c.publishStatus()
}

func (c *Controller) clearLink(link *peerlink.Link) {
	c.mu.Lock()
	if c.link == link {
		c.link = nil
		c.engine = nil
		c.clip = nil
	}
	c.mu.Unlock()
	c.publishStatus()
}

// ListenAddr returns the bound listener's address, valid once Run has
// started. Useful for tests and for a "connect <ip>" peer dialling back
// a dynamically chosen port.
func (c *Controller) ListenAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Disconnect closes the active link, if any (spec.md §6's UI command).
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return ErrNotConnected
	}
	return link.Close()
}

// SetTransferEdge changes the active transfer edge (spec.md §6's UI
// command), refreshing the Arrangement immediately.
func (c *Controller) SetTransferEdge(edge geometry.Edge) bool {
	ok := c.arrangement.SetTransferEdge(edge)
	if ok {
		c.publishStatus()
	}
	return ok
}

// SetClipboardEnabled toggles clipboard syncing for the active session,
// and the default for future sessions.
func (c *Controller) SetClipboardEnabled(enabled bool) {
	c.mu.Lock()
	c.clipboardEnabled = enabled
	clip := c.clip
	c.mu.Unlock()
	if clip != nil {
		clip.SetEnabled(enabled)
	}
	c.publishStatus()
}

// Status returns the current observable state.
func (c *Controller) Status() StatusView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := StatusView{
		LinkState:        peerlink.StateIdle,
		EngineState:      transfer.StateLocal,
		TransferEdge:     c.arrangement.TransferEdge(),
		ClipboardEnabled: c.clipboardEnabled,
	}
	if c.disc != nil {
		view.DiscoveredPeers = c.disc.Peers()
	}
	if c.link != nil {
		view.LinkState = c.link.State()
		if view.LinkState == peerlink.StateReady {
			peer := c.link.PeerInfo()
			view.PeerInfo = &peer
		}
	}
	if c.engine != nil {
		view.EngineState = c.engine.State()
	}
	return view
}

func (c *Controller) publishStatus() {
	if c.onStatus != nil {
		c.onStatus(c.Status())
	}
}

// addrPort extracts the numeric port from a "host:port" or ":port"
// listen address, returning 0 if it cannot be parsed.
func addrPort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			for _, ch := range addr[i+1:] {
				if ch < '0' || ch > '9' {
					return 0
				}
				port = port*10 + int(ch-'0')
			}
			return port
		}
	}
	return 0
}
