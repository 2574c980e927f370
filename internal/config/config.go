// Package config loads peerbridge's runtime configuration from the
// environment, following the teacher's envconfig/godotenv convention
// (api/pkg/config/cli_config.go).
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full set of settings a `peerbridge serve` process reads
// at startup (spec.md §4.9 / §6).
type Config struct {
	ListenPort    int    `envconfig:"PEERBRIDGE_LISTEN_PORT" default:"52525"`
	DiscoveryPort int    `envconfig:"PEERBRIDGE_DISCOVERY_PORT" default:"52526"`
	HostName      string `envconfig:"PEERBRIDGE_HOSTNAME" default:""`
	Platform      string `envconfig:"PEERBRIDGE_PLATFORM" default:""`

	TransferEdge     string `envconfig:"PEERBRIDGE_TRANSFER_EDGE" default:"right"`
	ClipboardEnabled bool   `envconfig:"PEERBRIDGE_CLIPBOARD_ENABLED" default:"true"`

	ClipboardPollInterval time.Duration `envconfig:"PEERBRIDGE_CLIPBOARD_POLL" default:"500ms"`
	AnnounceInterval      time.Duration `envconfig:"PEERBRIDGE_ANNOUNCE_INTERVAL" default:"3s"`
	IdleTimeout           time.Duration `envconfig:"PEERBRIDGE_IDLE_TIMEOUT" default:"10s"`
	PingTimeout           time.Duration `envconfig:"PEERBRIDGE_PING_TIMEOUT" default:"3s"`

	PointerGain float64 `envconfig:"PEERBRIDGE_POINTER_GAIN" default:"1.0"`
	TrapRadius  int     `envconfig:"PEERBRIDGE_TRAP_RADIUS" default:"200"`

	DiscoveryEnabled bool `envconfig:"PEERBRIDGE_DISCOVERY_ENABLED" default:"true"`

	// StatusAddr is the C10 websocket listen address (e.g. "127.0.0.1:52527").
	// Empty disables the status server.
	StatusAddr string `envconfig:"PEERBRIDGE_STATUS_ADDR" default:""`

	// GnomeSessionPath, when set, is the already-negotiated
	// org.gnome.Mutter.RemoteDesktop session object path used for
	// the GNOME D-Bus clipboard backend (internal/inputdriver). Empty
	// falls back to wl-copy/wl-paste.
	GnomeSessionPath string `envconfig:"PEERBRIDGE_GNOME_SESSION_PATH" default:""`

	// StateFile is where persisted state (transfer edge, last peer
	// address, process UUID) is read and written (spec.md §6).
	StateFile string `envconfig:"PEERBRIDGE_STATE_FILE" default:""`
}

// Load reads Config from the environment, loading a ".env" file first
// if present (ambient dev convenience, matching the teacher's
// LoadCliConfig).
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
