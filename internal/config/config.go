// Package config loads the configuration of the geneva daemon.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/getlantern/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOutboundQueue = 100
	DefaultInboundQueue  = 101
	DefaultMark          = 0x2000
	DefaultMaxQueueLen   = 4096
	DefaultWorkers       = 16

	envPrefix = "GENEVA"
)

type LogConfig struct {
	Output   string             `yaml:",omitempty" json:"output,omitempty"`
	Level    string             `yaml:",omitempty" json:"level,omitempty"`
	Format   string             `yaml:",omitempty" json:"format,omitempty"`
	Rotation *LogRotationConfig `yaml:",omitempty" json:"rotation,omitempty"`
}

type LogRotationConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets
	// rotated.
	MaxSize int `yaml:"maxSize,omitempty" json:"maxSize,omitempty"`
	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int  `yaml:"maxBackups,omitempty" json:"maxBackups,omitempty"`
	LocalTime  bool `yaml:"localTime,omitempty" json:"localTime,omitempty"`
	Compress   bool `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// QueueConfig describes the NFQUEUE numbers that carry outbound and inbound packets. Packets
// carrying Mark were injected by geneva itself and are accepted without processing.
type QueueConfig struct {
	Outbound    uint16 `json:"outbound"`
	Inbound     uint16 `json:"inbound"`
	Mark        uint32 `json:"mark"`
	MaxQueueLen uint32 `yaml:"maxQueueLen,omitempty" json:"maxQueueLen,omitempty"`
	Workers     int    `yaml:",omitempty" json:"workers,omitempty"`
}

type APIConfig struct {
	Addr       string `json:"addr"`
	PathPrefix string `yaml:"pathPrefix,omitempty" json:"pathPrefix,omitempty"`
	AccessLog  bool   `yaml:"accesslog,omitempty" json:"accesslog,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
	Path string `yaml:",omitempty" json:"path,omitempty"`
}

type Config struct {
	// Strategy is the strategy text. It takes precedence over StrategyFile.
	Strategy     string         `yaml:",omitempty" json:"strategy,omitempty"`
	StrategyFile string         `yaml:"strategyFile,omitempty" json:"strategyFile,omitempty"`
	Queue        *QueueConfig   `yaml:",omitempty" json:"queue,omitempty"`
	Log          *LogConfig     `yaml:",omitempty" json:"log,omitempty"`
	API          *APIConfig     `yaml:",omitempty" json:"api,omitempty"`
	Metrics      *MetricsConfig `yaml:",omitempty" json:"metrics,omitempty"`
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("strategy", "")
	v.SetDefault("strategyFile", "")
	v.SetDefault("queue.outbound", DefaultOutboundQueue)
	v.SetDefault("queue.inbound", DefaultInboundQueue)
	v.SetDefault("queue.mark", DefaultMark)
	v.SetDefault("queue.maxQueueLen", DefaultMaxQueueLen)
	v.SetDefault("queue.workers", DefaultWorkers)
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("api.addr", "")
	v.SetDefault("api.pathPrefix", "")
	v.SetDefault("api.accesslog", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration from path. If path is empty, geneva.yaml is looked up in
// /etc/geneva, $HOME/.geneva and the working directory, and a missing file is not an error.
// Environment variables prefixed with GENEVA_ override file values, e.g. GENEVA_QUEUE_MARK.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("geneva")
		v.AddConfigPath("/etc/geneva/")
		v.AddConfigPath("$HOME/.geneva/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); path != "" || !notFound {
			return nil, errors.New("reading config: %v", err)
		}
	}

	return unmarshal(v)
}

// Read parses a YAML configuration from r.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(r); err != nil {
		return nil, errors.New("reading config: %v", err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New("decoding config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be repaired by defaults.
func (c *Config) Validate() error {
	if c.Queue != nil {
		if c.Queue.Outbound == c.Queue.Inbound {
			return errors.New("outbound and inbound queues must differ (both are %d)", c.Queue.Outbound)
		}

		if c.Queue.Workers < 1 {
			return errors.New("queue workers must be positive, got %d", c.Queue.Workers)
		}
	}

	if c.Log != nil {
		switch strings.ToLower(c.Log.Format) {
		case "", "text", "json":
		default:
			return errors.New("unknown log format %q", c.Log.Format)
		}
	}

	return nil
}

// StrategyText returns the configured strategy, reading StrategyFile if no inline strategy is set.
func (c *Config) StrategyText() (string, error) {
	if c.Strategy != "" {
		return c.Strategy, nil
	}

	if c.StrategyFile == "" {
		return "", errors.New("no strategy configured")
	}

	b, err := os.ReadFile(c.StrategyFile)
	if err != nil {
		return "", errors.New("cannot read strategy file %s: %v", c.StrategyFile, err)
	}

	return strings.TrimSpace(string(b)), nil
}

// Write encodes the configuration to w as "yaml" or "json".
func (c *Config) Write(w io.Writer, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(c)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)

		return enc.Encode(c)
	default:
		return errors.New("unknown config format %q", format)
	}
}
