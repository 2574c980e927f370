package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{
		"PEERBRIDGE_LISTEN_PORT", "PEERBRIDGE_DISCOVERY_PORT", "PEERBRIDGE_TRANSFER_EDGE",
		"PEERBRIDGE_CLIPBOARD_ENABLED", "PEERBRIDGE_CLIPBOARD_POLL", "PEERBRIDGE_POINTER_GAIN",
		"PEERBRIDGE_TRAP_RADIUS",
	} {
		// envconfig applies a default only to an unset variable, so
		// register the restore with t.Setenv and then unset it.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 52525, cfg.ListenPort)
	assert.Equal(t, 52526, cfg.DiscoveryPort)
	assert.Equal(t, "right", cfg.TransferEdge)
	assert.True(t, cfg.ClipboardEnabled)
	assert.Equal(t, 500*time.Millisecond, cfg.ClipboardPollInterval)
	assert.Equal(t, 1.0, cfg.PointerGain)
	assert.Equal(t, 200, cfg.TrapRadius)
}

func TestLoadHonoursEnvOverride(t *testing.T) {
	t.Setenv("PEERBRIDGE_LISTEN_PORT", "6000")
	t.Setenv("PEERBRIDGE_TRANSFER_EDGE", "top")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.ListenPort)
	assert.Equal(t, "top", cfg.TransferEdge)
}
