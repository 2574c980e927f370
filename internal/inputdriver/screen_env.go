package inputdriver

import (
	"os"
	"strconv"

	"github.com/frank2889/peerbridge/internal/geometry"
)

// ScreenFromEnv builds a geometry.Screen from PEERBRIDGE_SCREEN_WIDTH /
// PEERBRIDGE_SCREEN_HEIGHT, defaulting to 1920x1080, matching the
// environment-driven screen sizing internal/legacydesktop used. It
// carries no build tag so cmd/peerbridge can call it on any host OS
// before selecting a platform driver.
func ScreenFromEnv() geometry.Screen {
	width := envInt("PEERBRIDGE_SCREEN_WIDTH", 1920)
	height := envInt("PEERBRIDGE_SCREEN_HEIGHT", 1080)
	return geometry.Screen{ID: "local", Name: "local", Width: width, Height: height, Primary: true}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
