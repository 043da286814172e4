// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file when no --config
// flag is given.
const EnvironmentVariable = "MUX_CONFIG"

// DefaultSocketPath is where the server listens unless configured
// otherwise.
const DefaultSocketPath = "${XDG_RUNTIME_DIR:-/tmp}/mux-${UID}/default"

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the master configuration for mux.
type Config struct {
	// Server configures the listening server.
	Server ServerConfig `yaml:"server"`

	// Logging configures the structured logger of both binaries.
	Logging LoggingConfig `yaml:"logging"`

	// Access seeds the server access list beyond root and the owner.
	Access AccessConfig `yaml:"access"`

	// Environment is the initial global environment, merged over the
	// environment the server was started with.
	Environment map[string]string `yaml:"environment"`
}

// ServerConfig configures the listening server.
type ServerConfig struct {
	// SocketPath is the AF_UNIX socket the server listens on and the
	// client connects to. Its parent directory is created mode 0700.
	SocketPath string `yaml:"socket_path"`

	// MaxQueuedBytes is the most output that may wait for one client.
	// A client that falls further behind is disconnected.
	// Default: 1 MiB
	MaxQueuedBytes int `yaml:"max_queued_bytes"`

	// ExitEmpty makes the server exit when its last session is killed.
	ExitEmpty bool `yaml:"exit_empty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text or json.
	Format string `yaml:"format"`
}

// AccessConfig lists users by uid.
type AccessConfig struct {
	// Allow lists users that may connect.
	Allow []uint32 `yaml:"allow"`

	// ReadOnly lists users that may connect but not change state. A
	// uid here need not also appear in Allow.
	ReadOnly []uint32 `yaml:"read_only"`
}

// Default returns the configuration used when no file is given. The
// socket path is left unexpanded; [Resolve] and [LoadFile] expand it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			SocketPath:     DefaultSocketPath,
			MaxQueuedBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: FormatAuto,
		},
	}
}

// Load loads configuration from the file named by MUX_CONFIG, failing
// if it is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your mux.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path and validates
// it.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve picks the configuration for a binary: the file named by
// flagPath if not empty, else the file named by MUX_CONFIG if set, else
// the defaults.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// loadFile merges one configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"UID":  strconv.Itoa(os.Getuid()),
		"HOME": os.Getenv("HOME"),
	}
	c.Server.SocketPath = filepath.Clean(expandVars(c.Server.SocketPath, vars))
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking in
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.SocketPath == "" || c.Server.SocketPath == "." {
		errs = append(errs, errors.New("server.socket_path is required"))
	} else if !filepath.IsAbs(c.Server.SocketPath) {
		errs = append(errs, fmt.Errorf("server.socket_path must be absolute: %s", c.Server.SocketPath))
	}
	// sun_path holds 108 bytes including the terminator.
	if len(c.Server.SocketPath) > 107 {
		errs = append(errs, fmt.Errorf("server.socket_path is %d bytes, longer than a socket address allows", len(c.Server.SocketPath)))
	}
	if c.Server.MaxQueuedBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_queued_bytes must be positive, got %d", c.Server.MaxQueuedBytes))
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{FormatAuto, FormatText, FormatJSON}
	if !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}

	for name := range c.Environment {
		if name == "" || strings.ContainsRune(name, '=') {
			errs = append(errs, fmt.Errorf("environment: invalid variable name %q", name))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// EnsureSocketDir creates the socket's parent directory, private to the
// owner, and refuses one that other users can reach.
func (c *Config) EnsureSocketDir() error {
	dir := filepath.Dir(c.Server.SocketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("checking %s: %w", dir, err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("socket directory %s has mode %v, want no group or other access", dir, info.Mode().Perm())
	}
	return nil
}
