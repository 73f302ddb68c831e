// Package config provides centralized configuration management for the
// impulse control plane.
//
// Configuration can be loaded from:
// - a TOML configuration file (default: /etc/impulse/config.toml)
// - environment variables (prefixed with IMPULSE_)
// - built-in defaults
//
// Every configurable value is declared exactly once, in the fields table,
// which ties its TOML section/key to its derived environment variable.
// Configuration is organized into sections matching the process roles:
// Interface (impulsed), Actuator (impulse-actuator), Engine (shared by
// both, since the Actuator embeds an Engine), Metrics, and Log.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all configuration for an impulse process. Both impulsed and
// impulse-actuator parse the same file shape; each binary only reads the
// sections it needs.
type Config struct {
	Interface InterfaceConfig `toml:"interface"`
	Actuator  ActuatorConfig  `toml:"actuator"`
	Engine    EngineConfig    `toml:"engine"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// InterfaceConfig holds impulsed's server settings.
type InterfaceConfig struct {
	// ExternalListenAddress is where the External gRPC service listens.
	ExternalListenAddress string `toml:"external_listen_address"`

	// InternalListenAddress is where the Internal gRPC service (Actuator
	// registration and the Controller stream) listens.
	InternalListenAddress string `toml:"internal_listen_address"`

	// RequestTimeout bounds how long LaunchVM/ShutdownVM wait for a
	// correlated result before failing the external caller.
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// ActuatorConfig holds impulse-actuator's connection settings.
type ActuatorConfig struct {
	// InterfaceAddress is the impulsed Internal service to dial.
	InterfaceAddress string `toml:"interface_address"`

	// DialRetries is how many attempts the Actuator makes to dial the
	// Interface before giving up. Register itself is not retried.
	DialRetries int `toml:"dial_retries"`

	// DialRetryInterval is the pause after each failed dial attempt.
	DialRetryInterval time.Duration `toml:"dial_retry_interval"`
}

// EngineConfig holds the Engine's filesystem and binary locations, shared by
// any Actuator embedding an Engine.
type EngineConfig struct {
	// WorkingBaseDir is the root under which each VM gets
	// <working_base_dir>/<uuid>/ for its copied kernel/initrd/rootfs.
	WorkingBaseDir string `toml:"working_base_dir"`

	// SocketBaseDir is the root under which each VM's API socket is
	// placed, named <uuid>.socket.
	SocketBaseDir string `toml:"socket_base_dir"`

	// ConfigBaseDir is the root under which each VM gets
	// <config_base_dir>/<uuid>/ for its generated config_file.json.
	ConfigBaseDir string `toml:"config_base_dir"`

	// ImageBaseDir holds the pre-staged kernel/initrd/rootfs source files
	// an Engine copies from when materializing a VM's working directory.
	ImageBaseDir string `toml:"image_base_dir"`

	// FirecrackerBinary is the path to the firecracker hypervisor binary.
	FirecrackerBinary string `toml:"firecracker_binary"`

	// SupervisorBinary is the path to the systemd-run-equivalent process
	// supervisor used to launch the hypervisor under a named unit/slice.
	SupervisorBinary string `toml:"supervisor_binary"`

	// StopBinary is the path to systemctl (or equivalent), invoked as
	// "<stop_binary> stop <unit_slice>" to tear a launched unit down.
	// Distinct from SupervisorBinary: systemd-run itself has no stop verb.
	StopBinary string `toml:"stop_binary"`

	// AddressPoolBase is the base network address the Engine's AddressPool
	// allocates guest IPs from.
	AddressPoolBase string `toml:"address_pool_base"`

	// LogPath, if set, populates the generated config's optional logger
	// section.
	LogPath string `toml:"log_path"`

	// MetricsPath, if set, populates the generated config's optional
	// metrics section.
	MetricsPath string `toml:"metrics_path"`

	// ImageCopyConcurrency bounds how many files an Engine copies
	// concurrently while staging a VM's working directory.
	ImageCopyConcurrency int64 `toml:"image_copy_concurrency"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Interface: InterfaceConfig{
			ExternalListenAddress: ":7000",
			InternalListenAddress: ":7001",
			RequestTimeout:        30 * time.Second,
		},
		Actuator: ActuatorConfig{
			InterfaceAddress:  "127.0.0.1:7001",
			DialRetries:       30,
			DialRetryInterval: time.Second,
		},
		Engine: EngineConfig{
			WorkingBaseDir:       "/srv/impulse",
			SocketBaseDir:        "/tmp/impulse/socket",
			ConfigBaseDir:        "/var/lib/impulse/machine",
			ImageBaseDir:         "/var/lib/impulse/images",
			FirecrackerBinary:    "/usr/bin/firecracker",
			SupervisorBinary:     "/usr/bin/systemd-run",
			StopBinary:           "/usr/bin/systemctl",
			AddressPoolBase:      "169.254.0.0",
			ImageCopyConcurrency: 4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// field binds one configuration value to its TOML section and key. The
// matching environment variable is derived from the same pair, so the two
// namespaces can never drift apart: [engine] working_base_dir answers to
// IMPULSE_ENGINE_WORKING_BASE_DIR.
type field struct {
	section string
	key     string
	set     func(raw string)
}

func (f field) envVar() string {
	return "IMPULSE_" + strings.ToUpper(f.section) + "_" + strings.ToUpper(f.key)
}

// setter adapts a parse function into a field setter. A raw value that does
// not parse leaves the previous (default or file-loaded) value in place.
func setter[T any](target *T, parse func(string) (T, error)) func(string) {
	return func(raw string) {
		if v, err := parse(raw); err == nil {
			*target = v
		}
	}
}

func parseRaw(raw string) (string, error) { return raw, nil }

func parseBool(raw string) (bool, error) {
	switch raw {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

func parseInt64(raw string) (int64, error) { return strconv.ParseInt(raw, 10, 64) }

// fields enumerates every configurable value once. LoadFromEnv and parseTOML
// both walk this table rather than naming fields a second time.
func (c *Config) fields() []field {
	return []field{
		{"interface", "external_listen_address", setter(&c.Interface.ExternalListenAddress, parseRaw)},
		{"interface", "internal_listen_address", setter(&c.Interface.InternalListenAddress, parseRaw)},
		{"interface", "request_timeout", setter(&c.Interface.RequestTimeout, time.ParseDuration)},

		{"actuator", "interface_address", setter(&c.Actuator.InterfaceAddress, parseRaw)},
		{"actuator", "dial_retries", setter(&c.Actuator.DialRetries, strconv.Atoi)},
		{"actuator", "dial_retry_interval", setter(&c.Actuator.DialRetryInterval, time.ParseDuration)},

		{"engine", "working_base_dir", setter(&c.Engine.WorkingBaseDir, parseRaw)},
		{"engine", "socket_base_dir", setter(&c.Engine.SocketBaseDir, parseRaw)},
		{"engine", "config_base_dir", setter(&c.Engine.ConfigBaseDir, parseRaw)},
		{"engine", "image_base_dir", setter(&c.Engine.ImageBaseDir, parseRaw)},
		{"engine", "firecracker_binary", setter(&c.Engine.FirecrackerBinary, parseRaw)},
		{"engine", "supervisor_binary", setter(&c.Engine.SupervisorBinary, parseRaw)},
		{"engine", "stop_binary", setter(&c.Engine.StopBinary, parseRaw)},
		{"engine", "address_pool_base", setter(&c.Engine.AddressPoolBase, parseRaw)},
		{"engine", "log_path", setter(&c.Engine.LogPath, parseRaw)},
		{"engine", "metrics_path", setter(&c.Engine.MetricsPath, parseRaw)},
		{"engine", "image_copy_concurrency", setter(&c.Engine.ImageCopyConcurrency, parseInt64)},

		{"metrics", "enabled", setter(&c.Metrics.Enabled, parseBool)},
		{"metrics", "address", setter(&c.Metrics.Address, parseRaw)},
		{"metrics", "path", setter(&c.Metrics.Path, parseRaw)},

		{"log", "level", setter(&c.Log.Level, parseRaw)},
		{"log", "format", setter(&c.Log.Format, parseRaw)},
		{"log", "file", setter(&c.Log.File, parseRaw)},
	}
}

// LoadFromFile loads configuration from a TOML file, falling back to
// defaults if the file does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := parseTOML(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays IMPULSE_-prefixed environment variables onto cfg.
func LoadFromEnv(cfg *Config) {
	for _, f := range cfg.fields() {
		if raw := os.Getenv(f.envVar()); raw != "" {
			f.set(raw)
		}
	}
}

// parseTOML reads the flat section/key/value shape this config file uses; it
// is not a general TOML parser. Keys that no field claims are skipped so a
// newer config file still loads under an older binary; lines that are not a
// comment, a section header, or a key = value pair are an error.
func parseTOML(data []byte, cfg *Config) error {
	byKey := make(map[string]func(string))
	for _, f := range cfg.fields() {
		byKey[f.section+"."+f.key] = f.set
	}

	section := ""
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return fmt.Errorf("line %d: unterminated section header %q", n+1, line)
			}
			section = strings.Trim(line, "[]")
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: expected key = value, got %q", n+1, line)
		}
		if set, claimed := byKey[section+"."+strings.TrimSpace(key)]; claimed {
			set(strings.Trim(strings.TrimSpace(value), `"'`))
		}
	}
	return nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime errors much later.
func (c *Config) Validate() error {
	if c.Interface.ExternalListenAddress == c.Interface.InternalListenAddress {
		return fmt.Errorf("external and internal listen addresses must differ, both are %q", c.Interface.ExternalListenAddress)
	}
	if c.Interface.RequestTimeout <= 0 {
		return fmt.Errorf("interface request_timeout must be positive, got %s", c.Interface.RequestTimeout)
	}
	if c.Engine.ImageCopyConcurrency <= 0 {
		return fmt.Errorf("engine image_copy_concurrency must be positive, got %d", c.Engine.ImageCopyConcurrency)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// ApplyToLogger configures a logrus.Logger's level, formatter, and output
// destination from the Log section. Validate has already vetted the level
// and format; an unopenable log file falls back to the logger's existing
// output rather than failing the process.
func (c *Config) ApplyToLogger(log *logrus.Logger) {
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if c.Log.File == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.Log.File), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(c.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	log.SetOutput(f)
}
