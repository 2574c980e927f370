// Package geometry stores the virtual-plane placement of both hosts'
// screens and answers the edge-crossing questions the transfer engine
// needs: where a crossing pointer enters the remote side, where it
// re-enters the local side on return, and when it has crossed back.
package geometry

// Owner identifies which host a Screen belongs to in the virtual plane.
type Owner string

const (
	OwnerLocal  Owner = "local"
	OwnerRemote Owner = "remote"
)

// Edge is one of the four sides of the LOCAL region that can be
// designated as the active transfer edge.
type Edge string

const (
	EdgeNone   Edge = ""
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
)

// Opposite returns the edge on the far side of a screen from e.
func (e Edge) Opposite() Edge {
	switch e {
	case EdgeLeft:
		return EdgeRight
	case EdgeRight:
		return EdgeLeft
	case EdgeTop:
		return EdgeBottom
	case EdgeBottom:
		return EdgeTop
	default:
		return EdgeNone
	}
}

// Valid reports whether e is one of the four recognised edges.
func (e Edge) Valid() bool {
	switch e {
	case EdgeLeft, EdgeRight, EdgeTop, EdgeBottom:
		return true
	default:
		return false
	}
}

// Screen is a rectangle in the shared virtual plane.
type Screen struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Primary   bool   `json:"primary"`
	Owner     Owner  `json:"owner"`
}

// Right returns the screen's right edge coordinate.
func (s Screen) Right() int { return s.X + s.Width }

// Bottom returns the screen's bottom edge coordinate.
func (s Screen) Bottom() int { return s.Y + s.Height }

// Contains reports whether (x, y) lies within the screen's bounds.
func (s Screen) Contains(x, y int) bool {
	return x >= s.X && x < s.Right() && y >= s.Y && y < s.Bottom()
}

// Clamp pins (x, y) to the screen's bounds.
func (s Screen) Clamp(x, y int) (int, int) {
	if x < s.X {
		x = s.X
	} else if x >= s.Right() {
		x = s.Right() - 1
	}
	if y < s.Y {
		y = s.Y
	} else if y >= s.Bottom() {
		y = s.Bottom() - 1
	}
	return x, y
}

// union computes the bounding rectangle of a non-empty screen list.
func union(screens []Screen) (minX, minY, maxX, maxY int) {
	minX, minY = screens[0].X, screens[0].Y
	maxX, maxY = screens[0].Right(), screens[0].Bottom()
	for _, s := range screens[1:] {
		if s.X < minX {
			minX = s.X
		}
		if s.Y < minY {
			minY = s.Y
		}
		if s.Right() > maxX {
			maxX = s.Right()
		}
		if s.Bottom() > maxY {
			maxY = s.Bottom()
		}
	}
	return
}
