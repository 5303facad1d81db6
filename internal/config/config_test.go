package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, 64, cfg.ObserverBuffer)
	assert.Equal(t, 5*time.Second, cfg.TeardownTimeout)
	assert.Equal(t, 8, cfg.StatsConcurrency)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.True(t, cfg.DisableMDNS)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Empty(t, cfg.VideoFile)
	assert.True(t, cfg.InitialVideoTrack)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
http_port: 9000
observer_buffer: 8
teardown_timeout: 250ms
ice_servers: []
udp_port_min: 40000
udp_port_max: 40100
video_file: media/loop.ivf
initial_video_track: false
`), 0o600))
	t.Setenv("RTC_HTTP_PORT", "9100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, 8, cfg.ObserverBuffer)
	assert.Equal(t, 250*time.Millisecond, cfg.TeardownTimeout)
	assert.Empty(t, cfg.ICEServers)
	assert.Equal(t, uint16(40000), cfg.UDPPortMin)
	assert.Equal(t, uint16(40100), cfg.UDPPortMax)
	assert.Equal(t, "media/loop.ivf", cfg.VideoFile)
	assert.False(t, cfg.InitialVideoTrack)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: turbo\n"), 0o600))
	_, err := LoadFile(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("udp_port_min: 50000\nudp_port_max: 40000\n"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
}
