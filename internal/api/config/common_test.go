package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, LoadConfig())
	assert.Equal(t, 8080, Cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, Cfg.Presence.LeaseDuration())
	assert.Equal(t, 3, Cfg.Message.SendAttempts)
	assert.Equal(t, "redis", Cfg.Fanout.Transport)
	assert.False(t, Cfg.Relationship.Fallback)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	yaml := []byte(`
server:
  port: 9090
call:
  ring_timeout: 30
webrtc:
  ice_servers:
    - urls: ["stun:stun.l.google.com:19302"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), yaml, 0o644))
	chdir(t, dir)
	t.Setenv("PARLEY_FANOUT_TRANSPORT", "nats")

	require.NoError(t, LoadConfig())
	assert.Equal(t, 9090, Cfg.Server.Port)
	assert.Equal(t, 30*time.Second, Cfg.Call.RingTimeoutDuration())
	assert.Equal(t, "nats", Cfg.Fanout.Transport)
	require.Len(t, Cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, Cfg.WebRTC.ICEServers[0].URLs)
}
