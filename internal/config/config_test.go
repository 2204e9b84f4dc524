package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getlantern/geneva/v2/internal/config"
)

const sample = `
strategy: '[TCP:flags:PA]-fragment{tcp:8:False}-| \/'
queue:
  outbound: 200
  inbound: 201
  mark: 0x4000
  workers: 4
log:
  output: /var/log/geneva.log
  level: debug
  format: json
  rotation:
    maxSize: 10
    maxBackups: 3
    compress: true
api:
  addr: 127.0.0.1:8080
  accesslog: true
metrics:
  addr: :9100
`

func TestRead(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, `[TCP:flags:PA]-fragment{tcp:8:False}-| \/`, cfg.Strategy)

	require.NotNil(t, cfg.Queue)
	assert.Equal(t, uint16(200), cfg.Queue.Outbound)
	assert.Equal(t, uint16(201), cfg.Queue.Inbound)
	assert.Equal(t, uint32(0x4000), cfg.Queue.Mark)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, uint32(config.DefaultMaxQueueLen), cfg.Queue.MaxQueueLen)

	require.NotNil(t, cfg.Log)
	assert.Equal(t, "json", cfg.Log.Format)
	require.NotNil(t, cfg.Log.Rotation)
	assert.Equal(t, 10, cfg.Log.Rotation.MaxSize)
	assert.Equal(t, 3, cfg.Log.Rotation.MaxBackups)
	assert.True(t, cfg.Log.Rotation.Compress)

	require.NotNil(t, cfg.API)
	assert.Equal(t, "127.0.0.1:8080", cfg.API.Addr)
	assert.True(t, cfg.API.AccessLog)

	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Read(strings.NewReader("strategy: ''\n"))
	require.NoError(t, err)

	require.NotNil(t, cfg.Queue)
	assert.Equal(t, uint16(config.DefaultOutboundQueue), cfg.Queue.Outbound)
	assert.Equal(t, uint16(config.DefaultInboundQueue), cfg.Queue.Inbound)
	assert.Equal(t, uint32(config.DefaultMark), cfg.Queue.Mark)
	assert.Equal(t, config.DefaultWorkers, cfg.Queue.Workers)

	require.NotNil(t, cfg.Log)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GENEVA_QUEUE_WORKERS", "2")
	t.Setenv("GENEVA_LOG_LEVEL", "trace")
	t.Setenv("GENEVA_STRATEGY", `\/ [TCP:flags:R]-drop-|`)

	cfg, err := config.Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Equal(t, `\/ [TCP:flags:R]-drop-|`, cfg.Strategy)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geneva.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(200), cfg.Queue.Outbound)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicitly named file must exist")
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"same queues":    "queue:\n  outbound: 5\n  inbound: 5\n",
		"no workers":     "queue:\n  workers: 0\n",
		"unknown format": "log:\n  format: xml\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Read(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestStrategyText(t *testing.T) {
	cfg := &config.Config{Strategy: `\/`}
	s, err := cfg.StrategyText()
	require.NoError(t, err)
	assert.Equal(t, `\/`, s)

	path := filepath.Join(t.TempDir(), "strategy.txt")
	require.NoError(t, os.WriteFile(path, []byte("[TCP:flags:R]-drop-| \\/\n"), 0o600))

	cfg = &config.Config{StrategyFile: path}
	s, err = cfg.StrategyText()
	require.NoError(t, err)
	assert.Equal(t, `[TCP:flags:R]-drop-| \/`, s)

	_, err = (&config.Config{}).StrategyText()
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf, "yaml"))

	again, err := config.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	buf.Reset()
	require.NoError(t, cfg.Write(&buf, "json"))
	assert.Contains(t, buf.String(), `"maxSize": 10`)

	assert.Error(t, cfg.Write(&buf, "toml"))
}
