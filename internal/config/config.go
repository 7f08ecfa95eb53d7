// Package config loads the CLI configuration using viper. Values come from
// defaults, an optional YAML file, RUDP_* environment variables and command
// line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
)

// Carrier selects what datagrams travel over.
type Carrier string

const (
	CarrierUDP    Carrier = "udp"
	CarrierWebRTC Carrier = "webrtc"
)

// DefaultPort is the chat server's well-known port.
const DefaultPort = 2000

// Config stores every parameter the commands need.
type Config struct {
	Listen            string        `mapstructure:"listen"`              // server: UDP bind address or WS signaling address
	Server            string        `mapstructure:"server"`              // client: host:port, or ws:// URL for webrtc
	Carrier           Carrier       `mapstructure:"carrier"`             // udp | webrtc
	Variant           string        `mapstructure:"variant"`             // basic | time-critical | reliable-order
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	AckTimeout        time.Duration `mapstructure:"ack_timeout"`
	ReorderTimeout    time.Duration `mapstructure:"reorder_timeout"`
	BufferSize        int           `mapstructure:"buffer_size"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	LogLevel          string        `mapstructure:"log_level"`
	MetricsAddr       string        `mapstructure:"metrics_addr"` // empty disables /metrics
	StatsInterval     time.Duration `mapstructure:"stats_interval"`
}

// keys lists every configuration key; flags are bound to the ones whose
// name matches with dashes turned into underscores.
var keys = []string{
	"listen", "server", "carrier", "variant",
	"connection_timeout", "keep_alive_interval", "ack_timeout", "reorder_timeout",
	"buffer_size", "ice_servers", "log_level", "metrics_addr", "stats_interval",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", fmt.Sprintf(":%d", DefaultPort))
	v.SetDefault("server", fmt.Sprintf("127.0.0.1:%d", DefaultPort))
	v.SetDefault("carrier", string(CarrierUDP))
	v.SetDefault("variant", protocol.Basic.String())
	v.SetDefault("connection_timeout", socket.DefaultConnectionTimeout)
	v.SetDefault("keep_alive_interval", socket.DefaultKeepAliveInterval)
	v.SetDefault("ack_timeout", socket.DefaultAckTimeout)
	v.SetDefault("reorder_timeout", socket.DefaultReorderTimeout)
	v.SetDefault("buffer_size", socket.DefaultBufferSize)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("stats_interval", 5*time.Second)
}

// Load builds the effective configuration. path may be empty; flags may be
// nil. Only flags the user actually set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RUDP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if flags != nil {
		for _, key := range keys {
			f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := protocol.ParseVariant(c.Variant); err != nil {
		errs = append(errs, err)
	}
	if c.Carrier != CarrierUDP && c.Carrier != CarrierWebRTC {
		errs = append(errs, fmt.Errorf("invalid carrier: %q (must be udp/webrtc)", c.Carrier))
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel))
	}
	for name, d := range map[string]time.Duration{
		"connection_timeout":  c.ConnectionTimeout,
		"keep_alive_interval": c.KeepAliveInterval,
		"ack_timeout":         c.AckTimeout,
		"reorder_timeout":     c.ReorderTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.KeepAliveInterval >= c.ConnectionTimeout {
		errs = append(errs, fmt.Errorf("keep_alive_interval (%s) must be shorter than connection_timeout (%s)",
			c.KeepAliveInterval, c.ConnectionTimeout))
	}
	if c.BufferSize < socket.MinBufferSize {
		errs = append(errs, fmt.Errorf("buffer_size must be at least %d, got %d", socket.MinBufferSize, c.BufferSize))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats_interval must not be negative, got %s", c.StatsInterval))
	}
	return errors.Join(errs...)
}

// SocketConfig converts the loaded values for socket.New. Validate must
// have succeeded.
func (c *Config) SocketConfig() socket.Config {
	v, _ := protocol.ParseVariant(c.Variant)
	return socket.Config{
		Variant:           v,
		ConnectionTimeout: c.ConnectionTimeout,
		KeepAliveInterval: c.KeepAliveInterval,
		AckTimeout:        c.AckTimeout,
		ReorderTimeout:    c.ReorderTimeout,
		BufferSize:        c.BufferSize,
	}
}

// dumpView is the YAML shape of Config, with durations as strings.
type dumpView struct {
	Listen            string   `yaml:"listen"`
	Server            string   `yaml:"server"`
	Carrier           string   `yaml:"carrier"`
	Variant           string   `yaml:"variant"`
	ConnectionTimeout string   `yaml:"connection_timeout"`
	KeepAliveInterval string   `yaml:"keep_alive_interval"`
	AckTimeout        string   `yaml:"ack_timeout"`
	ReorderTimeout    string   `yaml:"reorder_timeout"`
	BufferSize        int      `yaml:"buffer_size"`
	ICEServers        []string `yaml:"ice_servers,omitempty"`
	LogLevel          string   `yaml:"log_level"`
	MetricsAddr       string   `yaml:"metrics_addr"`
	StatsInterval     string   `yaml:"stats_interval"`
}

// Dump renders c as YAML that Load accepts back.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(dumpView{
		Listen:            c.Listen,
		Server:            c.Server,
		Carrier:           string(c.Carrier),
		Variant:           c.Variant,
		ConnectionTimeout: c.ConnectionTimeout.String(),
		KeepAliveInterval: c.KeepAliveInterval.String(),
		AckTimeout:        c.AckTimeout.String(),
		ReorderTimeout:    c.ReorderTimeout.String(),
		BufferSize:        c.BufferSize,
		ICEServers:        c.ICEServers,
		LogLevel:          c.LogLevel,
		MetricsAddr:       c.MetricsAddr,
		StatsInterval:     c.StatsInterval.String(),
	})
}
