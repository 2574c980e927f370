//go:build !linux

package inputdriver

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/geometry"
)

// NewWaylandDriver is unavailable outside Linux; callers should select
// a platform driver via NewDefaultDriver instead of calling this
// directly.
func NewWaylandDriver(logger zerolog.Logger, screen geometry.Screen) (Driver, error) {
	return nil, errors.New("inputdriver: wayland backend requires linux")
}
