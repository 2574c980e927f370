package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArrangement(t *testing.T) *Arrangement {
	t.Helper()
	a := NewArrangement(3, 50, 50)
	a.SetLocalScreens([]Screen{{ID: "l0", Width: 1920, Height: 1080}})
	return a
}

func TestSetTransferEdgeRightFlushAndCentered(t *testing.T) {
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	require.True(t, a.SetTransferEdge(EdgeRight))

	remote := a.PlacedRemoteScreens()
	require.Len(t, remote, 1)
	assert.Equal(t, 1920, remote[0].X)
	assert.Equal(t, 0, remote[0].Y)
}

func TestSimpleRightEdgeCrossing(t *testing.T) {
	// Scenario 1 from spec.md §8.
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	a.SetTransferEdge(EdgeRight)

	assert.False(t, a.HitEdge(1919, 540))
	assert.True(t, a.HitEdge(1920, 540))

	idx, rx, ry, ok := a.EntryPoint(1920, 540)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 50, rx)
	assert.Equal(t, 540, ry)
}

func TestReturnViaInverseEdge(t *testing.T) {
	// Scenario 2 from spec.md §8.
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	a.SetTransferEdge(EdgeRight)

	idx, rx, ry, ok := a.EntryPoint(1920, 540)
	require.True(t, ok)

	idx2, rx2, ry2, crossed := a.AdvanceRemote(idx, 0, ry)
	assert.True(t, crossed)
	_ = idx2
	_ = rx2
	_ = ry2
	assert.True(t, a.CrossedBack(idx, 0, 540))
	assert.False(t, a.CrossedBack(idx, rx, ry))

	lx, ly, ok := a.ExitPoint(idx, 0, 540)
	require.True(t, ok)
	assert.Equal(t, 1920-1-50, lx)
	assert.Equal(t, 540, ly)
}

func TestBoundaryPointerExactlyOnEdgeTriggers(t *testing.T) {
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	a.SetTransferEdge(EdgeRight)
	assert.True(t, a.HitEdge(1920, 0))
	assert.True(t, a.HitEdge(1920, 1079))
}

func TestHitEdgeFalseWithNoRemoteScreenAtCrossing(t *testing.T) {
	a := newTestArrangement(t)
	// The 400 px tall remote screen is centered on the local region's Y
	// range, so it only spans y 340..739.
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 400}})
	a.SetTransferEdge(EdgeRight)
	assert.True(t, a.HitEdge(1920, 540))
	assert.False(t, a.HitEdge(1920, 900))
}

func TestNoAdjacentRemoteScreenClampsInsteadOfCrossingBack(t *testing.T) {
	// Scenario: pointer walks to the far perpendicular bound of the only
	// remote screen; with no sibling screen further out it clamps rather
	// than crossing back, since crossing back is defined by the inverse
	// (near) edge, not the far one.
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	a.SetTransferEdge(EdgeRight)

	idx, _, ry, ok := a.EntryPoint(1920, 540)
	require.True(t, ok)

	newIdx, nx, ny, crossed := a.AdvanceRemote(idx, 5000, ry)
	assert.False(t, crossed)
	assert.Equal(t, idx, newIdx)
	assert.Equal(t, 1920-1, nx)
	assert.Equal(t, 540, ny)
}

func TestEntryExitInsetRoundTrip(t *testing.T) {
	// Round-trip / idempotence property from spec.md §8.
	a := newTestArrangement(t)
	a.SetRemoteScreens([]Screen{{ID: "r0", Width: 1920, Height: 1080}})
	a.SetTransferEdge(EdgeRight)

	idx, rx, ry, ok := a.EntryPoint(1920, 540)
	require.True(t, ok)
	lx, ly, ok := a.ExitPoint(idx, rx, ry)
	require.True(t, ok)

	assert.InDelta(t, 1920, lx, float64(DefaultEntryInset+DefaultExitInset))
	assert.Equal(t, 540, ly)
}

func TestWalkToAdjacentRemoteScreenOnPerpendicularAxis(t *testing.T) {
	a := newTestArrangement(t)
	// Remote host has two monitors side by side in its own layout: the
	// second one sits further from the shared edge on the perpendicular
	// axis, so walking further right should land on it.
	a.SetRemoteScreens([]Screen{
		{ID: "r0", X: 0, Y: 0, Width: 1920, Height: 1080},
		{ID: "r1", X: 1920, Y: 0, Width: 1920, Height: 1080},
	})
	a.SetTransferEdge(EdgeRight)

	remote := a.RemoteScreens()
	require.Len(t, remote, 2)

	idx, _, ry, ok := a.EntryPoint(1920, 540)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	newIdx, nx, ny, crossed := a.AdvanceRemote(idx, remote[0].Right()+10, ry)
	assert.False(t, crossed)
	assert.Equal(t, 1, newIdx)
	assert.Equal(t, remote[1].X, nx)
	assert.Equal(t, 540, ny)
}
