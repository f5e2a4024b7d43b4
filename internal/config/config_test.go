package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadConfig_Minimal(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "routeplay.toml", `
[playback]
timeline = "routes.json"
`)
	c, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "default", c.Playback.Name)
	assert.Equal(t, 16*time.Millisecond, c.Playback.FrameInterval)
	assert.Equal(t, 1.0, c.Playback.Speed)
	assert.Equal(t, filepath.Join(dir, "routes.json"), c.Playback.Timeline)
	assert.Nil(t, c.Server)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, file, c.ConfigPath)
}

func TestLoadConfig_Full(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cfg.toml", `
[server]
listen = "127.0.0.1:8080"
base_path = "/api"
jwt_secret = "s3cret"
pidfile = "/tmp/routeplay.pid"
  [server.tls]
  enabled = true
  dir = "certs"
  auto_generate = true

[playback]
name = "tour"
timeline = "/abs/tour.json"
frame_interval = "33ms"
speed = 1.5
autoplay = true
loop = true

[metrics]
enabled = true
listen = ":9100"

[log]
level = "debug"
format = "json"
file = "/var/log/routeplay.log"
max_size_mb = 5

[[history]]
dsn = "sqlite:///tmp/h.db"
buffer = 64

[[history]]
dsn = "opensearch://localhost:9200/routeplay"
`)
	c, err := LoadConfig(file)
	require.NoError(t, err)
	require.NotNil(t, c.Server)
	assert.Equal(t, "127.0.0.1:8080", c.Server.Listen)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.Equal(t, "s3cret", c.Server.JWTSecret)
	require.NotNil(t, c.Server.TLS)
	assert.True(t, c.Server.TLS.AutoGenerate)
	assert.Equal(t, filepath.Join(dir, "certs"), c.Server.TLS.Dir)

	assert.Equal(t, "tour", c.Playback.Name)
	assert.Equal(t, "/abs/tour.json", c.Playback.Timeline)
	assert.Equal(t, 33*time.Millisecond, c.Playback.FrameInterval)
	assert.Equal(t, 1.5, c.Playback.Speed)
	assert.True(t, c.Playback.Autoplay)
	assert.True(t, c.Playback.Loop)

	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, ":9100", c.Metrics.Listen)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, 5, c.Log.MaxSizeMB)

	require.Len(t, c.History, 2)
	assert.Equal(t, 64, c.History[0].Buffer)
	assert.Equal(t, "opensearch://localhost:9200/routeplay", c.History[1].DSN)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cfg.toml", "[playback]\nspeed = 1.0\n")
	t.Setenv("ROUTEPLAY_PLAYBACK_SPEED", "2.5")
	t.Setenv("ROUTEPLAY_LOG_LEVEL", "warn")

	c, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 2.5, c.Playback.Speed)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"speed":    "[playback]\nspeed = 9.0\n",
		"frame":    "[playback]\nframe_interval = \"-1s\"\n",
		"autoplay": "[playback]\nautoplay = true\n",
		"listen":   "[server]\nbase_path = \"/x\"\n",
		"metrics":  "[metrics]\nenabled = true\nlisten = \"\"\n",
		"history":  "[[history]]\nbuffer = 1\n",
		"level":    "[log]\nlevel = \"chatty\"\n",
		"syntax":   "[playback\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			file := writeFile(t, dir, name+".toml", data)
			_, err := LoadConfig(file)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ":9090", c.Metrics.Listen)
}

func TestLoadEnvFileAndApply(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "RP_TEST_A=1\n#comment\nRP_TEST_B=two\n")
	pairs, err := LoadEnvFile(dotenv)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"RP_TEST_A=1", "RP_TEST_B=two"}, pairs)

	t.Setenv("RP_TEST_B", "kept")
	t.Setenv("RP_TEST_A", "")
	_ = os.Unsetenv("RP_TEST_A")
	c := &Config{EnvFiles: []string{dotenv}}
	require.NoError(t, c.ApplyEnvFiles())
	assert.Equal(t, "1", os.Getenv("RP_TEST_A"))
	assert.Equal(t, "kept", os.Getenv("RP_TEST_B"))

	c = &Config{EnvFiles: []string{filepath.Join(dir, "nope.env")}}
	assert.Error(t, c.ApplyEnvFiles())
}
