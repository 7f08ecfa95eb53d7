package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rudp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":2000", cfg.Listen)
	assert.Equal(t, CarrierUDP, cfg.Carrier)
	assert.Equal(t, "basic", cfg.Variant)
	assert.Equal(t, 15*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 3*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, 1500, cfg.BufferSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
listen: ":4000"
variant: reliable-order
connection_timeout: 20s
keep_alive_interval: 2s
buffer_size: 2048
log_level: debug
`)
	t.Setenv("RUDP_BUFFER_SIZE", "4096")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", ":2000", "")
	flags.Duration("keep-alive-interval", 3*time.Second, "")
	require.NoError(t, flags.Parse([]string{"--keep-alive-interval=1s"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Listen, "unset flag must not override the file")
	assert.Equal(t, "reliable-order", cfg.Variant)
	assert.Equal(t, 20*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, time.Second, cfg.KeepAliveInterval, "flag wins over file")
	assert.Equal(t, 4096, cfg.BufferSize, "env wins over file")
	assert.Equal(t, "debug", cfg.LogLevel)

	sc := cfg.SocketConfig()
	assert.Equal(t, protocol.ReliableOrder, sc.Variant)
	assert.Equal(t, 4096, sc.BufferSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Carrier:           CarrierUDP,
			Variant:           "time-critical",
			ConnectionTimeout: socket.DefaultConnectionTimeout,
			KeepAliveInterval: socket.DefaultKeepAliveInterval,
			AckTimeout:        socket.DefaultAckTimeout,
			ReorderTimeout:    socket.DefaultReorderTimeout,
			BufferSize:        socket.DefaultBufferSize,
			LogLevel:          "info",
		}
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"variant", func(c *Config) { c.Variant = "fast" }, "fast"},
		{"carrier", func(c *Config) { c.Carrier = "tcp" }, "invalid carrier"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"keep-alive too long", func(c *Config) { c.KeepAliveInterval = c.ConnectionTimeout }, "shorter than"},
		{"zero timeout", func(c *Config) { c.ReorderTimeout = 0 }, "reorder_timeout must be positive"},
		{"small buffer", func(c *Config) { c.BufferSize = 100 }, "buffer_size"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestDumpRoundTrip(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Variant = "reliable-order"
	cfg.ReorderTimeout = 250 * time.Millisecond

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.Contains(t, string(out), "reorder_timeout: 250ms")

	back, err := Load(writeConfig(t, string(out)), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
