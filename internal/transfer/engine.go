// Package transfer implements the Transfer Engine (spec.md §4.5): the
// LOCAL/REMOTE/CONTROLLED state machine that decides, on every pointer
// sample, whether input belongs to this host or the peer's, and drives
// the Input Driver and Peer Link accordingly.
package transfer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/geometry"
	"github.com/frank2889/peerbridge/internal/inputdriver"
	"github.com/frank2889/peerbridge/internal/keymap"
	"github.com/frank2889/peerbridge/internal/peerlink"
)

// State is one of the Transfer Engine states (spec.md §4.5).
type State string

const (
	StateLocal      State = "LOCAL"
	StateRemote     State = "REMOTE"
	StateControlled State = "CONTROLLED"
)

// Tuning defaults (spec.md §4.5.3).
const (
	DefaultPointerGain = 1.0
	DefaultTrapRadius  = 200 // px
	DefaultPollPeriod  = 8 * time.Millisecond
	settleDelay        = 50 * time.Millisecond
)

// Neutral VK codes (internal/keymap space) for the modifiers the engine
// tracks and the return hotkey.
const (
	vkShift   keymap.Code = 0x10
	vkControl keymap.Code = 0x11
	vkMenu    keymap.Code = 0x12 // Alt
	vkLWin    keymap.Code = 0x5B
	vkM       keymap.Code = 'M'
)

// Modifier identifies one of the tracked modifier keys (spec.md
// §4.5.3's Modifier Set).
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
	ModMeta  Modifier = "meta"
)

func modifierFor(code keymap.Code) (Modifier, bool) {
	switch code {
	case vkControl:
		return ModCtrl, true
	case vkMenu:
		return ModAlt, true
	case vkShift:
		return ModShift, true
	case vkLWin:
		return ModMeta, true
	default:
		return "", false
	}
}

// Sender is the subset of *peerlink.Link the engine needs: sending
// frames and observing link readiness. Tests substitute a fake.
type Sender interface {
	Send(peerlink.Message) error
	State() peerlink.State
}

// LocalEventKind distinguishes the kinds of events a platform capture
// hook can deliver to HandleLocalEvent.
type LocalEventKind int

const (
	LocalMouseButton LocalEventKind = iota
	LocalMouseScroll
	LocalKey
)

// LocalEvent is one event observed by begin_capture's hooks while
// REMOTE (spec.md §4.5.3).
type LocalEvent struct {
	Kind    LocalEventKind
	Button  inputdriver.Button
	Down    bool
	DeltaX  int
	DeltaY  int
	KeyCode keymap.Code
	KeyDown bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithPointerGain(g float64) Option {
	return func(e *Engine) {
		if g > 0 {
			e.gain = g
		}
	}
}

func WithTrapRadius(px int) Option {
	return func(e *Engine) {
		if px > 0 {
			e.trapRadius = px
		}
	}
}

// WithInvertY flips the vertical delta sign, for hosts whose pointer
// sampling reports mathematical (bottom-up) Y.
func WithInvertY(invert bool) Option {
	return func(e *Engine) { e.invertY = invert }
}

func WithPollPeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollPeriod = d
		}
	}
}

// WithOnStateChange registers a callback invoked whenever the engine's
// state changes, for the Session Controller's status view.
func WithOnStateChange(f func(State)) Option {
	return func(e *Engine) { e.onStateChange = f }
}

// Engine is the state machine described by spec.md §4.5. One Engine
// serves one peer link.
type Engine struct {
	arrangement *geometry.Arrangement
	driver      inputdriver.Driver
	sender      Sender
	logger      zerolog.Logger

	gain       float64
	trapRadius int
	invertY    bool
	pollPeriod time.Duration

	onStateChange func(State)

	mu    sync.Mutex
	state State

	// REMOTE-only tracking.
	screenIdx      int
	rx, ry         int
	trapX, trapY   int
	lastX, lastY   int
	remoteModifier map[Modifier]bool

	// remoteKeysDown holds every key this engine has forwarded as "down"
	// to the peer while REMOTE (modifiers and ordinary keys alike), so
	// remoteToLocalLocked can release all of them before the peer stops
	// listening (spec.md §5/§8 property 2).
	remoteKeysDown map[keymap.Code]bool

	// CONTROLLED-only tracking, so link loss can release held keys
	// (spec.md §4.5.7).
	controlledModifier map[Modifier]bool

	// pendingReturn is set by the hotkey check in HandleLocalEvent (an
	// OS capture-hook callback) and consumed by the next Tick, so the
	// REMOTE->LOCAL transition itself always runs on the poll loop
	// (spec.md §5 item 6) rather than the hook's own goroutine.
	pendingReturn bool
}

// New builds an Engine in the initial LOCAL state.
func New(arrangement *geometry.Arrangement, driver inputdriver.Driver, sender Sender, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		arrangement:        arrangement,
		driver:             driver,
		sender:             sender,
		logger:             logger.With().Str("component", "transfer").Logger(),
		gain:               DefaultPointerGain,
		trapRadius:         DefaultTrapRadius,
		pollPeriod:         DefaultPollPeriod,
		state:              StateLocal,
		remoteModifier:     make(map[Modifier]bool),
		remoteKeysDown:     make(map[keymap.Code]bool),
		controlledModifier: make(map[Modifier]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.state = s
	if e.onStateChange != nil {
		e.onStateChange(s)
	}
}

// Run drives the poll loop until ctx is cancelled (spec.md §5 item 4).
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(); err != nil {
				e.logger.Warn().Err(err).Msg("transfer engine tick failed")
			}
		}
	}
}

// Tick runs one iteration of the poll loop: the link-health check
// common to every state, then the state-specific behaviour. It is
// exported so tests can drive the engine deterministically without a
// real ticker.
func (e *Engine) Tick() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sender.State() != peerlink.StateReady {
		return e.handleLinkNotReadyLocked()
	}

	if e.pendingReturn && e.state == StateRemote {
		e.pendingReturn = false
		return e.remoteToLocalLocked(true)
	}
	e.pendingReturn = false

	switch e.state {
	case StateLocal:
		return e.tickLocalLocked()
	case StateRemote:
		return e.tickRemoteLocked()
	case StateControlled:
		return nil // driven entirely by inbound messages
	default:
		return nil
	}
}

// handleLinkNotReadyLocked implements the "peer link closes" rows of
// the failure model (spec.md §4.5.7). Caller holds e.mu.
func (e *Engine) handleLinkNotReadyLocked() error {
	switch e.state {
	case StateLocal:
		return nil
	case StateRemote:
		return e.remoteToLocalLocked(false)
	case StateControlled:
		e.releaseControlledModifiersLocked()
		e.setState(StateLocal)
		return nil
	}
	return nil
}

func (e *Engine) tickLocalLocked() error {
	x, y, err := e.driver.PointerPosition()
	if err != nil {
		return err
	}
	if !e.arrangement.HitEdge(x, y) {
		return nil
	}
	return e.localToRemoteLocked(x, y)
}

// localToRemoteLocked implements spec.md §4.5.2. Caller holds e.mu.
func (e *Engine) localToRemoteLocked(x, y int) error {
	screenIdx, rx, ry, ok := e.arrangement.EntryPoint(x, y)
	if !ok {
		return nil
	}

	trapX, trapY, ok := e.arrangement.LocalCentroid()
	if !ok {
		trapX, trapY = x, y
	}

	if err := e.driver.BeginCapture(true); err != nil {
		e.logger.Error().Err(err).Msg("begin_capture failed, staying LOCAL")
		return err
	}

	if err := e.driver.WarpPointer(trapX, trapY); err != nil {
		e.logger.Warn().Err(err).Msg("warp to trap point failed")
	}
	time.Sleep(settleDelay)

	e.screenIdx, e.rx, e.ry = screenIdx, rx, ry
	e.trapX, e.trapY = trapX, trapY
	e.lastX, e.lastY = trapX, trapY
	e.remoteModifier = make(map[Modifier]bool)
	e.remoteKeysDown = make(map[keymap.Code]bool)

	edge := e.arrangement.TransferEdge()
	if err := e.sender.Send(peerlink.NewMessage(peerlink.TypeModeSwitch, peerlink.ModeSwitchPayload{
		Active: true, Screen: screenIdx, X: rx, Y: ry, Edge: string(edge),
	})); err != nil {
		e.logger.Warn().Err(err).Msg("send mode_switch failed")
	}

	e.setState(StateRemote)
	return nil
}

func (e *Engine) tickRemoteLocked() error {
	x, y, err := e.driver.PointerPosition()
	if err != nil {
		return err
	}

	screenDX := x - e.lastX
	screenDY := y - e.lastY
	if e.invertY {
		screenDY = -screenDY
	}
	e.lastX, e.lastY = x, y

	proposedX := e.rx + int(math.Round(float64(screenDX)*e.gain))
	proposedY := e.ry + int(math.Round(float64(screenDY)*e.gain))

	newIdx, nx, ny, crossedBack := e.arrangement.AdvanceRemote(e.screenIdx, proposedX, proposedY)
	if crossedBack {
		return e.remoteToLocalLocked(true)
	}
	e.screenIdx, e.rx, e.ry = newIdx, nx, ny

	if err := e.sender.Send(peerlink.NewMessage(peerlink.TypeMouseMove, peerlink.MouseMovePayload{
		X: e.rx, Y: e.ry, Absolute: true,
	})); err != nil {
		e.logger.Warn().Err(err).Msg("send mouse_move failed")
	}

	tdx, tdy := x-e.trapX, y-e.trapY
	if tdx*tdx+tdy*tdy > e.trapRadius*e.trapRadius {
		if err := e.driver.WarpPointer(e.trapX, e.trapY); err != nil {
			e.logger.Warn().Err(err).Msg("re-trap warp failed")
		}
		e.lastX, e.lastY = e.trapX, e.trapY
	}
	return nil
}

// remoteToLocalLocked implements spec.md §4.5.5. sendSwitch is false
// when the transition is forced by link loss (§4.5.7). Caller holds
// e.mu.
func (e *Engine) remoteToLocalLocked(sendSwitch bool) error {
	e.releaseRemoteKeysLocked()

	if sendSwitch {
		if err := e.sender.Send(peerlink.NewMessage(peerlink.TypeModeSwitch, peerlink.ModeSwitchPayload{Active: false})); err != nil {
			e.logger.Warn().Err(err).Msg("send mode_switch(false) failed")
		}
	}
	if err := e.driver.EndCapture(); err != nil {
		e.logger.Warn().Err(err).Msg("end_capture failed")
	}

	lx, ly, ok := e.arrangement.ExitPoint(e.screenIdx, e.rx, e.ry)
	if !ok {
		lx, ly = e.trapX, e.trapY
	}
	if err := e.driver.WarpPointer(lx, ly); err != nil {
		e.logger.Warn().Err(err).Msg("exit warp failed")
	}

	e.screenIdx, e.rx, e.ry = 0, 0, 0
	e.trapX, e.trapY = 0, 0
	e.remoteModifier = make(map[Modifier]bool)
	e.setState(StateLocal)
	return nil
}

// releaseRemoteKeysLocked sends a "key up" to the peer for every key this
// engine forwarded as "down" while REMOTE, so the matched-up-event
// invariant (spec.md §5/§8 property 2) holds before mode_switch(false)
// or link close. Caller holds e.mu.
func (e *Engine) releaseRemoteKeysLocked() {
	for code, down := range e.remoteKeysDown {
		if !down {
			continue
		}
		if err := e.sender.Send(peerlink.NewMessage(peerlink.TypeKey, peerlink.KeyPayload{
			KeyCode: int(code), Action: "up",
		})); err != nil {
			e.logger.Warn().Err(err).Msg("send key up on return-to-local failed")
		}
	}
	e.remoteKeysDown = make(map[keymap.Code]bool)
}

// HandleLocalEvent forwards a captured local button/scroll/key event to
// the peer while REMOTE, checking for the Ctrl+Alt+M return hotkey
// first (spec.md §4.5.3).
func (e *Engine) HandleLocalEvent(ev LocalEvent) error {
	e.mu.Lock()
	if e.state != StateRemote {
		e.mu.Unlock()
		return nil
	}

	switch ev.Kind {
	case LocalKey:
		if mod, ok := modifierFor(ev.KeyCode); ok {
			e.remoteModifier[mod] = ev.KeyDown
		}
		if ev.KeyDown && ev.KeyCode == vkM && e.remoteModifier[ModCtrl] && e.remoteModifier[ModAlt] {
			// The actual transition runs on the next poll-loop Tick
			// (spec.md §5 item 6); this hook only flips a flag and
			// does not forward the M keystroke itself.
			e.pendingReturn = true
			e.mu.Unlock()
			return nil
		}
		if ev.KeyDown {
			e.remoteKeysDown[ev.KeyCode] = true
		} else {
			delete(e.remoteKeysDown, ev.KeyCode)
		}
		action := "up"
		if ev.KeyDown {
			action = "down"
		}
		modifiers := e.activeModifierNamesLocked()
		e.mu.Unlock()
		return e.sender.Send(peerlink.NewMessage(peerlink.TypeKey, peerlink.KeyPayload{
			KeyCode: int(ev.KeyCode), Action: action, Modifiers: modifiers,
		}))
	case LocalMouseButton:
		action := "up"
		if ev.Down {
			action = "down"
		}
		rx, ry := e.rx, e.ry
		e.mu.Unlock()
		return e.sender.Send(peerlink.NewMessage(peerlink.TypeMouseButton, peerlink.MouseButtonPayload{
			Button: buttonName(ev.Button), Action: action, X: rx, Y: ry,
		}))
	case LocalMouseScroll:
		e.mu.Unlock()
		return e.sender.Send(peerlink.NewMessage(peerlink.TypeMouseScroll, peerlink.MouseScrollPayload{
			DeltaX: ev.DeltaX, DeltaY: ev.DeltaY,
		}))
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) activeModifierNamesLocked() []string {
	var out []string
	for _, m := range []Modifier{ModCtrl, ModAlt, ModShift, ModMeta} {
		if e.remoteModifier[m] {
			out = append(out, string(m))
		}
	}
	return out
}

func buttonName(b inputdriver.Button) string {
	switch b {
	case inputdriver.ButtonLeft:
		return "left"
	case inputdriver.ButtonRight:
		return "right"
	case inputdriver.ButtonMiddle:
		return "middle"
	default:
		return "left"
	}
}

// HandleMessage processes an inbound protocol message (spec.md §4.5.4).
// The Session Controller wires this as the peerlink.Link's OnMessage
// callback.
func (e *Engine) HandleMessage(msg peerlink.Message) error {
	switch msg.Type {
	case peerlink.TypeModeSwitch:
		var p peerlink.ModeSwitchPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return e.handleModeSwitch(p)
	case peerlink.TypeMouseMove:
		var p peerlink.MouseMovePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if e.State() != StateControlled {
			return nil
		}
		return e.driver.SynthesiseMouseMove(p.X, p.Y)
	case peerlink.TypeMouseButton:
		var p peerlink.MouseButtonPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if e.State() != StateControlled {
			return nil
		}
		return e.driver.SynthesiseMouseButton(buttonFromName(p.Button), p.Action == "down")
	case peerlink.TypeMouseScroll:
		var p peerlink.MouseScrollPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if e.State() != StateControlled {
			return nil
		}
		return e.driver.SynthesiseMouseScroll(p.DeltaX, p.DeltaY)
	case peerlink.TypeKey:
		var p peerlink.KeyPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if e.State() != StateControlled {
			return nil
		}
		return e.handleInboundKey(p)
	}
	return nil
}

func (e *Engine) handleModeSwitch(p peerlink.ModeSwitchPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Active {
		if e.state == StateRemote {
			return e.sender.Send(peerlink.NewMessage(peerlink.TypeModeSwitch, peerlink.ModeSwitchPayload{Active: false}))
		}
		e.controlledModifier = make(map[Modifier]bool)
		if err := e.driver.WarpPointer(p.X, p.Y); err != nil {
			e.logger.Warn().Err(err).Msg("controlled entry warp failed")
		}
		e.setState(StateControlled)
		return nil
	}

	if e.state == StateControlled {
		e.releaseControlledModifiersLocked()
		e.setState(StateLocal)
	}
	return nil
}

func (e *Engine) handleInboundKey(p peerlink.KeyPayload) error {
	e.mu.Lock()
	code := keymap.Code(p.KeyCode)
	down := p.Action == "down"
	if mod, ok := modifierFor(code); ok {
		e.controlledModifier[mod] = down
	}
	e.mu.Unlock()
	return e.driver.SynthesiseKey(code, down)
}

// releaseControlledModifiersLocked synthesises a key-up for every
// modifier still held in the CONTROLLED Modifier Set, per spec.md
// §4.5.7 and §5's link-loss requirement. Caller holds e.mu.
func (e *Engine) releaseControlledModifiersLocked() {
	for mod, held := range e.controlledModifier {
		if !held {
			continue
		}
		code := codeForModifier(mod)
		if err := e.driver.SynthesiseKey(code, false); err != nil {
			e.logger.Warn().Err(err).Str("modifier", string(mod)).Msg("failed to release held modifier")
		}
	}
	e.controlledModifier = make(map[Modifier]bool)
}

func codeForModifier(m Modifier) keymap.Code {
	switch m {
	case ModCtrl:
		return vkControl
	case ModAlt:
		return vkMenu
	case ModShift:
		return vkShift
	case ModMeta:
		return vkLWin
	default:
		return 0
	}
}

func buttonFromName(name string) inputdriver.Button {
	switch name {
	case "right":
		return inputdriver.ButtonRight
	case "middle":
		return inputdriver.ButtonMiddle
	default:
		return inputdriver.ButtonLeft
	}
}
