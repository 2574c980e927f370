//go:build !linux

package inputdriver

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/frank2889/peerbridge/internal/geometry"
)

// NewDefaultDriver has no platform backend outside Linux and always
// returns an error.
func NewDefaultDriver(logger zerolog.Logger, screen geometry.Screen, gnomeSessionPath string) (Driver, error) {
	return nil, errors.New("inputdriver: no platform driver available on this OS")
}
