package geometry

import "sync"

// Default tuning constants (spec.md §4.1); callers may override via
// NewArrangement.
const (
	DefaultEdgeThreshold = 3  // px
	DefaultEntryInset    = 50 // px
	DefaultExitInset     = 50 // px
)

// Arrangement owns the LOCAL and REMOTE screen geometry and answers the
// edge-crossing questions the transfer engine needs. It is safe for
// concurrent use: the pointer poll loop reads it on every tick while the
// controller may replace the local or remote screen lists from a
// different goroutine (display-change notification, peer hello).
//
// Two coordinate spaces are in play. LOCAL screens and the REMOTE
// screens' own relative layout (a.raw, exactly as the peer published
// them) each live in their own native space. a.placed translates a.raw
// as a rigid body to sit flush against the active transfer edge of the
// LOCAL region, purely so entry/exit can be computed by comparing
// against the LOCAL pointer's coordinates; once a screen has been
// entered, the Virtual Cursor the engine tracks and puts on the wire is
// in the REMOTE's own native space (a.raw), since that is what the
// remote host's Input Driver understands.
type Arrangement struct {
	mu sync.RWMutex

	local []Screen // LOCAL screens, as published/enumerated
	raw   []Screen // REMOTE screens exactly as the peer published them

	edge   Edge
	placed []Screen // a.raw rigidly translated into the LOCAL's space
	dx, dy int      // translation applied to get placed from raw

	edgeThreshold int
	entryInset    int
	exitInset     int
}

// NewArrangement builds an Arrangement with the given tuning constants.
// A zero value for any constant falls back to its spec default.
func NewArrangement(edgeThreshold, entryInset, exitInset int) *Arrangement {
	if edgeThreshold <= 0 {
		edgeThreshold = DefaultEdgeThreshold
	}
	if entryInset <= 0 {
		entryInset = DefaultEntryInset
	}
	if exitInset <= 0 {
		exitInset = DefaultExitInset
	}
	return &Arrangement{
		edge:          EdgeRight,
		edgeThreshold: edgeThreshold,
		entryInset:    entryInset,
		exitInset:     exitInset,
	}
}

// SetLocalScreens replaces the LOCAL geometry. Called at startup and on
// display-change notifications.
func (a *Arrangement) SetLocalScreens(screens []Screen) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.local = make([]Screen, len(screens))
	for i, s := range screens {
		s.Owner = OwnerLocal
		a.local[i] = s
	}
	a.rebuildLocked()
}

// SetRemoteScreens replaces the REMOTE geometry, as published by the
// peer's hello, and re-places it against the active transfer edge.
func (a *Arrangement) SetRemoteScreens(screens []Screen) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = make([]Screen, len(screens))
	for i, s := range screens {
		s.Owner = OwnerRemote
		a.raw[i] = s
	}
	a.rebuildLocked()
}

// SetTransferEdge changes the active transfer edge and re-places the
// REMOTE geometry against it.
func (a *Arrangement) SetTransferEdge(edge Edge) bool {
	if !edge.Valid() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edge = edge
	a.rebuildLocked()
	return true
}

// TransferEdge returns the currently active transfer edge.
func (a *Arrangement) TransferEdge() Edge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.edge
}

// RemoteScreens returns a copy of the REMOTE screen list in the peer's
// own native coordinate space (a.raw) — the space the Virtual Cursor and
// wire messages use.
func (a *Arrangement) RemoteScreens() []Screen {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Screen, len(a.raw))
	copy(out, a.raw)
	return out
}

// PlacedRemoteScreens returns a copy of the REMOTE screen list translated
// into the LOCAL's space — the placement spec.md §8's scenarios describe
// when they say a REMOTE screen's "origin becomes (...)" against the
// active transfer edge.
func (a *Arrangement) PlacedRemoteScreens() []Screen {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Screen, len(a.placed))
	copy(out, a.placed)
	return out
}

// rebuildLocked recomputes a.placed and a.dx/a.dy from a.raw, a.local and
// a.edge. Caller must hold a.mu.
func (a *Arrangement) rebuildLocked() {
	if len(a.raw) == 0 || len(a.local) == 0 {
		a.placed = nil
		a.dx, a.dy = 0, 0
		return
	}

	rMinX, rMinY, rMaxX, rMaxY := union(a.raw)
	lMinX, lMinY, lMaxX, lMaxY := union(a.local)
	clusterW := rMaxX - rMinX
	clusterH := rMaxY - rMinY
	localW := lMaxX - lMinX
	localH := lMaxY - lMinY

	var dx, dy int
	switch a.edge {
	case EdgeRight:
		dx = lMaxX - rMinX
		dy = lMinY + (localH-clusterH)/2 - rMinY
	case EdgeLeft:
		dx = lMinX - rMaxX
		dy = lMinY + (localH-clusterH)/2 - rMinY
	case EdgeTop:
		dy = lMinY - rMaxY
		dx = lMinX + (localW-clusterW)/2 - rMinX
	case EdgeBottom:
		dy = lMaxY - rMinY
		dx = lMinX + (localW-clusterW)/2 - rMinX
	default:
		a.placed = nil
		a.dx, a.dy = 0, 0
		return
	}

	placed := make([]Screen, len(a.raw))
	for i, s := range a.raw {
		s.X += dx
		s.Y += dy
		placed[i] = s
	}
	a.placed = placed
	a.dx, a.dy = dx, dy
}

// localRegion returns the bounding box of the LOCAL screens and whether
// it is non-empty. Caller must hold at least a read lock.
func (a *Arrangement) localRegion() (minX, minY, maxX, maxY int, ok bool) {
	if len(a.local) == 0 {
		return 0, 0, 0, 0, false
	}
	minX, minY, maxX, maxY = union(a.local)
	return minX, minY, maxX, maxY, true
}

// LocalCentroid returns the center point of the LOCAL region's bounding
// box, used by the Transfer Engine as the default Trap Point (spec.md
// §4.5.2 step 3).
func (a *Arrangement) LocalCentroid() (x, y int, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	minX, minY, maxX, maxY, regionOK := a.localRegion()
	if !regionOK {
		return 0, 0, false
	}
	return (minX + maxX) / 2, (minY + maxY) / 2, true
}

// HitEdge reports whether (x, y) lies within the edge threshold of the
// active transfer edge of the LOCAL region and a REMOTE screen exists
// along that edge at the crossing's cross-axis coordinate.
func (a *Arrangement) HitEdge(x, y int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	minX, minY, maxX, maxY, ok := a.localRegion()
	if !ok || len(a.placed) == 0 {
		return false
	}

	switch a.edge {
	case EdgeRight:
		if x < maxX-a.edgeThreshold || y < minY || y >= maxY {
			return false
		}
		return a.remoteSpansParallelLocked(y)
	case EdgeLeft:
		if x > minX+a.edgeThreshold || y < minY || y >= maxY {
			return false
		}
		return a.remoteSpansParallelLocked(y)
	case EdgeTop:
		if y > minY+a.edgeThreshold || x < minX || x >= maxX {
			return false
		}
		return a.remoteSpansParallelLocked(x)
	case EdgeBottom:
		if y < maxY-a.edgeThreshold || x < minX || x >= maxX {
			return false
		}
		return a.remoteSpansParallelLocked(x)
	default:
		return false
	}
}

// remoteSpansParallelLocked reports whether any placed REMOTE screen's
// range along the axis parallel to the active edge contains cross.
// Caller must hold at least a read lock.
func (a *Arrangement) remoteSpansParallelLocked(cross int) bool {
	for _, s := range a.placed {
		switch a.edge {
		case EdgeRight, EdgeLeft:
			if cross >= s.Y && cross < s.Bottom() {
				return true
			}
		case EdgeTop, EdgeBottom:
			if cross >= s.X && cross < s.Right() {
				return true
			}
		}
	}
	return false
}

// screenAtCross picks the placed REMOTE screen spanning cross on the
// axis parallel to the active edge. If several overlap, the one with
// the smallest cross-axis origin wins (spec.md §4.1 tie-break). The
// returned index is valid into both a.placed and a.raw, which are kept
// in lockstep. Caller must hold at least a read lock.
func (a *Arrangement) screenAtCross(cross int) (int, bool) {
	best := -1
	bestOrigin := 0
	for i, s := range a.placed {
		var lo, hi, origin int
		switch a.edge {
		case EdgeRight, EdgeLeft:
			lo, hi, origin = s.Y, s.Bottom(), s.Y
		case EdgeTop, EdgeBottom:
			lo, hi, origin = s.X, s.Right(), s.X
		default:
			return -1, false
		}
		if cross < lo || cross >= hi {
			continue
		}
		if best == -1 || origin < bestOrigin {
			best = i
			bestOrigin = origin
		}
	}
	return best, best != -1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EntryPoint projects (x, y) — a LOCAL pointer position — across the
// active transfer edge onto the adjacent REMOTE screen, offsetting
// ENTRY_INSET inward so the Virtual Cursor starts safely inside the
// screen. The returned (rx, ry) are in the REMOTE screen's own native
// space (a.raw), ready to send as-is to the peer. Returns ok=false if
// there is no REMOTE screen to enter.
func (a *Arrangement) EntryPoint(x, y int) (screenIdx, rx, ry int, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.edge {
	case EdgeRight, EdgeLeft:
		idx, found := a.screenAtCross(y)
		if !found {
			return 0, 0, 0, false
		}
		raw := a.raw[idx]
		cy := clampInt(y-a.dy, raw.Y, raw.Bottom()-1)
		if a.edge == EdgeRight {
			return idx, raw.X + a.entryInset, cy, true
		}
		return idx, raw.Right() - 1 - a.entryInset, cy, true
	case EdgeTop, EdgeBottom:
		idx, found := a.screenAtCross(x)
		if !found {
			return 0, 0, 0, false
		}
		raw := a.raw[idx]
		cx := clampInt(x-a.dx, raw.X, raw.Right()-1)
		if a.edge == EdgeTop {
			return idx, cx, raw.Bottom() - 1 - a.entryInset, true
		}
		return idx, cx, raw.Y + a.entryInset, true
	default:
		return 0, 0, 0, false
	}
}

// ExitPoint is the mirror of EntryPoint: the LOCAL point to place the
// real pointer on return, given a Virtual Cursor position (rx, ry) in
// the REMOTE screen's native space. The returned coordinate sits one
// pixel inside maxX/maxY (maxX-1, maxY-1 are the screen's last valid
// pixel), so for a 1920-wide screen with exitInset=50 this lands at
// 1869, one less than the 1870 a literal "maxX - exitInset" reading of
// spec.md §8 scenario 2 gives — deliberate, since maxX itself is
// already out of bounds.
func (a *Arrangement) ExitPoint(screenIdx, rx, ry int) (lx, ly int, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	minX, minY, maxX, maxY, regionOK := a.localRegion()
	if !regionOK {
		return 0, 0, false
	}

	switch a.edge {
	case EdgeRight:
		return maxX - 1 - a.exitInset, clampInt(ry+a.dy, minY, maxY-1), true
	case EdgeLeft:
		return minX + a.exitInset, clampInt(ry+a.dy, minY, maxY-1), true
	case EdgeTop:
		return clampInt(rx+a.dx, minX, maxX-1), minY + a.exitInset, true
	case EdgeBottom:
		return clampInt(rx+a.dx, minX, maxX-1), maxY - 1 - a.exitInset, true
	default:
		return 0, 0, false
	}
}

// CrossedBack reports whether the Virtual Cursor, in the given active
// REMOTE screen's native space, has reached or crossed the inverse edge
// of that screen — the signal that the user wishes to return.
func (a *Arrangement) CrossedBack(screenIdx, rx, ry int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if screenIdx < 0 || screenIdx >= len(a.raw) {
		return true
	}
	return a.crossedBackLocked(screenIdx, rx, ry)
}

func (a *Arrangement) crossedBackLocked(screenIdx, rx, ry int) bool {
	s := a.raw[screenIdx]
	switch a.edge {
	case EdgeRight:
		return rx <= s.X
	case EdgeLeft:
		return rx >= s.Right()-1
	case EdgeTop:
		return ry >= s.Bottom()-1
	case EdgeBottom:
		return ry <= s.Y
	default:
		return true
	}
}

// AdvanceRemote applies a proposed Virtual Cursor position, in the
// active REMOTE screen's native space, to that screen. The axis parallel
// to the transfer edge is clamped to the screen's own bounds; in the
// perpendicular axis, the cursor clamps at that screen's far limit. For
// a right or bottom transfer edge it instead walks to an adjacent REMOTE
// screen if the peer published one further out in that direction (in the
// peer's own native layout); for a left or top edge there is no walk,
// only the clamp. Returns
// the (possibly new) active screen index and the clamped/walked
// position, plus whether this move instead crossed back to LOCAL.
func (a *Arrangement) AdvanceRemote(screenIdx, rx, ry int) (newIdx, nx, ny int, crossedBack bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if screenIdx < 0 || screenIdx >= len(a.raw) {
		return screenIdx, rx, ry, true
	}
	if a.crossedBackLocked(screenIdx, rx, ry) {
		return screenIdx, rx, ry, true
	}

	s := a.raw[screenIdx]
	switch a.edge {
	case EdgeRight, EdgeLeft:
		cy := clampInt(ry, s.Y, s.Bottom()-1)
		if rx >= s.Right() {
			if idx, nx2, ok := a.walkPerpendicular(screenIdx, cy, s.Right()); ok {
				return idx, nx2, cy, false
			}
			return screenIdx, s.Right() - 1, cy, false
		}
		if rx < s.X {
			return screenIdx, s.X, cy, false
		}
		return screenIdx, rx, cy, false
	case EdgeTop, EdgeBottom:
		cx := clampInt(rx, s.X, s.Right()-1)
		if ry >= s.Bottom() {
			if idx, ny2, ok := a.walkPerpendicular(screenIdx, cx, s.Bottom()); ok {
				return idx, cx, ny2, false
			}
			return screenIdx, cx, s.Bottom() - 1, false
		}
		if ry < s.Y {
			return screenIdx, cx, s.Y, false
		}
		return screenIdx, cx, ry, false
	default:
		return screenIdx, rx, ry, false
	}
}

// walkPerpendicular looks for a REMOTE screen, in the peer's own native
// layout (a.raw), adjacent to the current one in the direction of travel
// on the perpendicular axis, whose parallel-axis range covers cross.
func (a *Arrangement) walkPerpendicular(currentIdx, cross, farBound int) (int, int, bool) {
	best := -1
	bestPos := 0
	for i, s := range a.raw {
		if i == currentIdx {
			continue
		}
		var lo, hi, pos int
		switch a.edge {
		case EdgeRight, EdgeLeft:
			lo, hi, pos = s.Y, s.Bottom(), s.X
		case EdgeTop, EdgeBottom:
			lo, hi, pos = s.X, s.Right(), s.Y
		default:
			return 0, 0, false
		}
		if cross < lo || cross >= hi {
			continue
		}
		if pos < farBound {
			continue
		}
		if best == -1 || pos < bestPos {
			best = i
			bestPos = pos
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	return best, bestPos, true
}
