// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the fioscope daemon.
type Config struct {
	Core      CoreConfig      `yaml:"core"`
	Socket    SocketConfig    `yaml:"socket"`
	EBPF      EBPFConfig      `yaml:"ebpf"`
	Health    HealthConfig    `yaml:"health"`
	Sink      SinkConfig      `yaml:"sink"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	OTLP      OTLPConfig      `yaml:"otlp"`
	ProcStats ProcStatsConfig `yaml:"procstats"`
	Log       LogConfig       `yaml:"log"`
}

// CoreConfig sizes the aggregation engine. These fields are read once at
// process start: changing them in a hot-reloaded file has no effect until
// the process restarts, because the sharded maps they size are fixed-length
// arrays allocated at construction (spec.md §4.2).
type CoreConfig struct {
	BucketCount    int    `yaml:"bucket_count" env:"FIOSCOPE_CORE_BUCKET_COUNT"`
	MaxPoolEntries int    `yaml:"max_pool_entries" env:"FIOSCOPE_CORE_MAX_POOL_ENTRIES"`
	SeparatorByte  string `yaml:"separator_byte"`
}

// SocketConfig configures the Unix DGRAM socket intercept provider (D1).
type SocketConfig struct {
	Path string `yaml:"path" env:"FIOSCOPE_SOCKET_PATH"`
}

// EBPFConfig toggles the eBPF intercept provider (D2) in place of the
// socket provider.
type EBPFConfig struct {
	Enabled bool `yaml:"enabled" env:"FIOSCOPE_EBPF_ENABLED"`
}

// HealthConfig configures the health/metrics HTTP server (A3).
type HealthConfig struct {
	Addr string `yaml:"addr" env:"FIOSCOPE_HEALTH_ADDR"`
}

// SinkConfig configures the SQLite snapshot sink (D4).
type SinkConfig struct {
	Enabled       bool          `yaml:"enabled" env:"FIOSCOPE_SINK_ENABLED"`
	DBPath        string        `yaml:"db_path" env:"FIOSCOPE_SINK_DB_PATH"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AlertsConfig configures the Sigma-rule anomaly detector (D5).
type AlertsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"FIOSCOPE_ALERTS_ENABLED"`
	RulesDir string `yaml:"rules_dir" env:"FIOSCOPE_ALERTS_RULES_DIR"`
}

// OTLPConfig configures the OTLP metrics exporter (D6).
type OTLPConfig struct {
	Enabled  bool   `yaml:"enabled" env:"FIOSCOPE_OTLP_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"FIOSCOPE_OTLP_ENDPOINT"`
	Insecure bool   `yaml:"insecure"`
}

// ProcStatsConfig configures the gopsutil-based process/system sampler (D7).
type ProcStatsConfig struct {
	Enabled  bool          `yaml:"enabled" env:"FIOSCOPE_PROCSTATS_ENABLED"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig configures the zap logger (A2).
type LogConfig struct {
	Level string `yaml:"level" env:"FIOSCOPE_LOG_LEVEL"`
}

// SeparatorByteValue returns Core.SeparatorByte as a byte, falling back to
// core.SeparatorByte's default if the configured value isn't exactly one
// character.
func (c *CoreConfig) SeparatorByteValue() byte {
	if len(c.SeparatorByte) == 1 {
		return c.SeparatorByte[0]
	}
	return '-'
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults, matching
// the reference file's constants where the spec carries them over
// (DEFAULT_HASH_BUCKET_SIZE 1031, and a max data pool size of 10000
// entries).
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			BucketCount:    1031,
			MaxPoolEntries: 10000,
			SeparatorByte:  "-",
		},
		Socket: SocketConfig{
			Path: "/tmp/fioscope.sock",
		},
		EBPF: EBPFConfig{
			Enabled: false,
		},
		Health: HealthConfig{
			Addr: "127.0.0.1:9090",
		},
		Sink: SinkConfig{
			Enabled:       true,
			DBPath:        "./fioscope.db",
			FlushInterval: 10 * time.Second,
		},
		Alerts: AlertsConfig{
			Enabled:  false,
			RulesDir: "./rules",
		},
		OTLP: OTLPConfig{
			Enabled:  false,
			Endpoint: "127.0.0.1:4317",
			Insecure: true,
		},
		ProcStats: ProcStatsConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadDir loads signal-specific YAML files from a directory and merges them
// into a single Config. Expected files:
//   - base.yaml   → core, socket, ebpf, health, log
//   - sink.yaml   → sink
//   - alerts.yaml → alerts
//   - otlp.yaml   → otlp
//   - procstats.yaml → procstats
//
// Missing files are silently ignored (defaults apply).
func LoadDir(dir string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFileInto(filepath.Join(dir, "base.yaml"), cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load base.yaml: %w", err)
	}

	overlays := []string{"sink.yaml", "alerts.yaml", "otlp.yaml", "procstats.yaml"}
	for _, f := range overlays {
		if err := loadFileInto(filepath.Join(dir, f), cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadFileInto reads a YAML file and unmarshals it into an existing Config,
// overwriting only the fields present in the file.
func loadFileInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnvOverrides reads FIOSCOPE_* environment variables and applies them
// to the config, overriding YAML values.
func (c *Config) ApplyEnvOverrides() {
	stringOverrides := map[string]*string{
		"FIOSCOPE_SOCKET_PATH":       &c.Socket.Path,
		"FIOSCOPE_HEALTH_ADDR":       &c.Health.Addr,
		"FIOSCOPE_SINK_DB_PATH":      &c.Sink.DBPath,
		"FIOSCOPE_ALERTS_RULES_DIR":  &c.Alerts.RulesDir,
		"FIOSCOPE_OTLP_ENDPOINT":     &c.OTLP.Endpoint,
		"FIOSCOPE_LOG_LEVEL":         &c.Log.Level,
	}

	boolOverrides := map[string]*bool{
		"FIOSCOPE_EBPF_ENABLED":   &c.EBPF.Enabled,
		"FIOSCOPE_SINK_ENABLED":   &c.Sink.Enabled,
		"FIOSCOPE_ALERTS_ENABLED": &c.Alerts.Enabled,
		"FIOSCOPE_OTLP_ENABLED":   &c.OTLP.Enabled,
		"FIOSCOPE_PROCSTATS_ENABLED": &c.ProcStats.Enabled,
	}

	intOverrides := map[string]*int{
		"FIOSCOPE_CORE_BUCKET_COUNT":      &c.Core.BucketCount,
		"FIOSCOPE_CORE_MAX_POOL_ENTRIES":  &c.Core.MaxPoolEntries,
	}

	for envKey, target := range stringOverrides {
		if val := os.Getenv(envKey); val != "" {
			*target = val
		}
	}

	for envKey, target := range boolOverrides {
		if val := os.Getenv(envKey); val != "" {
			*target = parseBool(val)
		}
	}

	for envKey, target := range intOverrides {
		if val := os.Getenv(envKey); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*target = n
			}
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Core.BucketCount <= 0 {
		return fmt.Errorf("core.bucket_count must be positive")
	}
	if c.Core.MaxPoolEntries <= 0 {
		return fmt.Errorf("core.max_pool_entries must be positive")
	}
	if len(c.Core.SeparatorByte) != 1 {
		return fmt.Errorf("core.separator_byte must be exactly one character")
	}

	if !c.EBPF.Enabled && c.Socket.Path == "" {
		return fmt.Errorf("socket.path is required when ebpf.enabled is false")
	}

	if c.Sink.Enabled {
		if c.Sink.DBPath == "" {
			return fmt.Errorf("sink.db_path is required when sink is enabled")
		}
		if c.Sink.FlushInterval < time.Second {
			return fmt.Errorf("sink.flush_interval must be at least 1s")
		}
	}

	if c.Alerts.Enabled && c.Alerts.RulesDir == "" {
		return fmt.Errorf("alerts.rules_dir is required when alerts are enabled")
	}

	if c.OTLP.Enabled && c.OTLP.Endpoint == "" {
		return fmt.Errorf("otlp.endpoint is required when otlp is enabled")
	}

	if c.ProcStats.Enabled && c.ProcStats.Interval < time.Second {
		return fmt.Errorf("procstats.interval must be at least 1s")
	}

	return nil
}
