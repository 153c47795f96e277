package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/segment"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 0.1, cfg.HUDInterval(), 1e-12)
	assert.Equal(t, segment.ModeSpatial, cfg.SegmentOptions().Mode)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_config.yaml")
	content := `
playback:
  hud_rate_hz: 4
  default_speed: 2.5

observer:
  enabled: false
  follow_distance: 12
  smoothing: 0.5

route:
  mode: space-time
  time_scale: 0.01

store:
  path: "./runs.db"

server:
  addr: ":9000"
  metrics_enabled: false

log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4.0, cfg.Playback.HUDRateHz)
	assert.Equal(t, 2.5, cfg.Playback.DefaultSpeed)
	assert.False(t, cfg.Observer.Enabled)
	assert.Equal(t, 12.0, cfg.Observer.FollowDistance)
	assert.Equal(t, observer.DefaultConfig().Height, cfg.Observer.Height, "unset keys keep defaults")
	assert.Equal(t, segment.ModeSpaceTime, cfg.Route.Mode)
	assert.Equal(t, 0.01, cfg.SegmentOptions().TimeScale)
	assert.Equal(t, 50.0, cfg.Route.LayoutRadius)
	assert.Equal(t, "./runs.db", cfg.Store.Path)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Rejects(t *testing.T) {
	for name, content := range map[string]string{
		"bad yaml":       "playback: [",
		"zero speed":     "playback:\n  default_speed: 0\n",
		"zero hud rate":  "playback:\n  hud_rate_hz: -1\n",
		"unknown mode":   "route:\n  mode: sideways\n",
		"smoothing > 1":  "observer:\n  smoothing: 2\n",
		"zero tick rate": "server:\n  tick_hz: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("route:\n  mode: sideways\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("observer:\n  smoothing: 2\n"))
	assert.ErrorIs(t, err, observer.ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("QTT_DB", "/tmp/x.db")
	t.Setenv("QTT_ADDR", ":1234")
	t.Setenv("QTT_LOG_LEVEL", "warn")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, ":1234", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}
