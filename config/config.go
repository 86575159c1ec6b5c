// Package config provides CLI configuration management for the minutes command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// HistoryBackend selects where analysis history is stored.
type HistoryBackend string

const (
	HistoryBackendFile     HistoryBackend = "file"
	HistoryBackendRedis    HistoryBackend = "redis"
	HistoryBackendPostgres HistoryBackend = "postgres"
	HistoryBackendNone     HistoryBackend = "none"
)

// Default configuration values.
const (
	DefaultServerURL      = "http://localhost:8000"
	DefaultTimeout        = 10 * time.Minute
	DefaultOutputFormat   = OutputFormatText
	DefaultConfigDir      = ".minutes"
	DefaultConfigFile     = "config.yaml"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "console"
	DefaultHistoryLimit   = 50
	DefaultWatchKind      = "audio"
	DefaultWatchWorkers   = 2
	DefaultHistoryBackend = HistoryBackendFile
)

// TLSConfig holds client TLS settings for HTTPS servers.
type TLSConfig struct {
	// CACert is the path to a CA certificate for verifying the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// SkipVerify disables server certificate verification (insecure, for testing only).
	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// HistoryConfig holds analysis history settings.
type HistoryConfig struct {
	// Backend is one of file, redis, postgres, none.
	Backend HistoryBackend `yaml:"backend"`

	// Dir is the directory for the file backend. Defaults to <config dir>/history.
	Dir string `yaml:"dir,omitempty"`

	// RedisAddr is the host:port of the redis backend.
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// PostgresDSN is the connection string of the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`

	// Limit caps the number of entries returned by list operations.
	Limit int `yaml:"limit"`
}

// WatchConfig holds folder watch settings.
type WatchConfig struct {
	// Dir is the folder to watch when none is given on the command line.
	Dir string `yaml:"dir,omitempty"`

	// Kind is the media kind of watched files (audio or video).
	Kind string `yaml:"kind"`

	// Concurrency bounds the number of files uploaded at once.
	Concurrency int `yaml:"concurrency"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServerURL is the base URL of the meeting assistant API.
	ServerURL string `yaml:"server_url"`

	// Timeout is the default timeout for API requests. Uploads of large
	// recordings are slow, so the default is generous.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// ExportDir is where analysis exports are written. Defaults to the working directory.
	ExportDir string `yaml:"export_dir,omitempty"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat is console or json.
	LogFormat string `yaml:"log_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// MetricsFile, when set, receives Prometheus text-format metrics at exit.
	MetricsFile string `yaml:"metrics_file,omitempty"`

	TLS     TLSConfig     `yaml:"tls,omitempty"`
	History HistoryConfig `yaml:"history"`
	Watch   WatchConfig   `yaml:"watch"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServerURL:    DefaultServerURL,
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		History: HistoryConfig{
			Backend: DefaultHistoryBackend,
			Limit:   DefaultHistoryLimit,
		},
		Watch: WatchConfig{
			Kind:        DefaultWatchKind,
			Concurrency: DefaultWatchWorkers,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MINUTES_CONFIG_DIR if set, otherwise ~/.minutes
func ConfigDir() (string, error) {
	if dir := os.Getenv("MINUTES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.minutes/config.yaml or $MINUTES_CONFIG_DIR/config.yaml)
// 3. Environment variables (MINUTES_SERVER_URL, MINUTES_TIMEOUT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFileConfig loads the defaults and the config file only, without
// environment overrides or validation. `config set` edits this view so that
// environment variables are never written back to the file.
func LoadFileConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	return cfg, nil
}

// configFile mirrors CLIConfig with the timeout as a duration string.
type configFile struct {
	ServerURL    string        `yaml:"server_url"`
	Timeout      string        `yaml:"timeout"`
	OutputFormat OutputFormat  `yaml:"output_format"`
	ExportDir    string        `yaml:"export_dir,omitempty"`
	LogLevel     string        `yaml:"log_level,omitempty"`
	LogFormat    string        `yaml:"log_format,omitempty"`
	Debug        bool          `yaml:"debug,omitempty"`
	MetricsFile  string        `yaml:"metrics_file,omitempty"`
	TLS          TLSConfig     `yaml:"tls,omitempty"`
	History      HistoryConfig `yaml:"history"`
	Watch        WatchConfig   `yaml:"watch"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServerURL != "" {
		cfg.ServerURL = fileCfg.ServerURL
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.ExportDir != "" {
		cfg.ExportDir = fileCfg.ExportDir
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
	}
	if fileCfg.MetricsFile != "" {
		cfg.MetricsFile = fileCfg.MetricsFile
	}
	cfg.Debug = fileCfg.Debug
	cfg.TLS = fileCfg.TLS

	if fileCfg.History.Backend != "" {
		cfg.History.Backend = fileCfg.History.Backend
	}
	if fileCfg.History.Dir != "" {
		cfg.History.Dir = fileCfg.History.Dir
	}
	if fileCfg.History.RedisAddr != "" {
		cfg.History.RedisAddr = fileCfg.History.RedisAddr
	}
	if fileCfg.History.PostgresDSN != "" {
		cfg.History.PostgresDSN = fileCfg.History.PostgresDSN
	}
	if fileCfg.History.Limit != 0 {
		cfg.History.Limit = fileCfg.History.Limit
	}

	if fileCfg.Watch.Dir != "" {
		cfg.Watch.Dir = fileCfg.Watch.Dir
	}
	if fileCfg.Watch.Kind != "" {
		cfg.Watch.Kind = fileCfg.Watch.Kind
	}
	if fileCfg.Watch.Concurrency != 0 {
		cfg.Watch.Concurrency = fileCfg.Watch.Concurrency
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("MINUTES_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}

	if v := os.Getenv("MINUTES_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("MINUTES_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("MINUTES_EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}

	if v := os.Getenv("MINUTES_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("MINUTES_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if v := os.Getenv("MINUTES_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("MINUTES_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}

	if v := os.Getenv("MINUTES_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}

	if v := os.Getenv("MINUTES_TLS_SKIP_VERIFY"); v == "true" || v == "1" {
		cfg.TLS.SkipVerify = true
	}

	if v := os.Getenv("MINUTES_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = HistoryBackend(v)
	}
	if v := os.Getenv("MINUTES_HISTORY_DIR"); v != "" {
		cfg.History.Dir = v
	}
	if v := os.Getenv("MINUTES_REDIS_ADDR"); v != "" {
		cfg.History.RedisAddr = v
	}
	if v := os.Getenv("MINUTES_POSTGRES_DSN"); v != "" {
		cfg.History.PostgresDSN = v
	}

	if v := os.Getenv("MINUTES_WATCH_DIR"); v != "" {
		cfg.Watch.Dir = v
	}
	if v := os.Getenv("MINUTES_WATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.Concurrency = n
		}
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url: %q (must be an http or https URL)", c.ServerURL)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}

	if !c.History.Backend.IsValid() {
		return fmt.Errorf("invalid history.backend: %q (must be file, redis, postgres, or none)", c.History.Backend)
	}
	if c.History.Backend == HistoryBackendRedis && c.History.RedisAddr == "" {
		return fmt.Errorf("history.redis_addr is required for the redis backend")
	}
	if c.History.Backend == HistoryBackendPostgres && c.History.PostgresDSN == "" {
		return fmt.Errorf("history.postgres_dsn is required for the postgres backend")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}

	if c.Watch.Kind != "audio" && c.Watch.Kind != "video" {
		return fmt.Errorf("invalid watch.kind: %q (must be audio or video)", c.Watch.Kind)
	}
	if c.Watch.Concurrency < 1 {
		return fmt.Errorf("watch.concurrency must be at least 1")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// IsValid checks if the history backend is known.
func (b HistoryBackend) IsValid() bool {
	switch b {
	case HistoryBackendFile, HistoryBackendRedis, HistoryBackendPostgres, HistoryBackendNone:
		return true
	default:
		return false
	}
}

// HistoryDir returns the expanded file backend directory.
func (c *CLIConfig) HistoryDir() (string, error) {
	if c.History.Dir != "" {
		return ExpandPath(c.History.Dir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// GetExportDir returns the expanded export directory, defaulting to ".".
func (c *CLIConfig) GetExportDir() (string, error) {
	if c.ExportDir == "" {
		return ".", nil
	}
	return ExpandPath(c.ExportDir)
}

// settable maps `config set` keys to setters.
var settable = map[string]func(c *CLIConfig, v string) error{
	"server_url": func(c *CLIConfig, v string) error { c.ServerURL = v; return nil },
	"timeout": func(c *CLIConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		c.Timeout = d
		return nil
	},
	"output_format": func(c *CLIConfig, v string) error { c.OutputFormat = OutputFormat(v); return nil },
	"export_dir":    func(c *CLIConfig, v string) error { c.ExportDir = v; return nil },
	"log_level":     func(c *CLIConfig, v string) error { c.LogLevel = v; return nil },
	"log_format":    func(c *CLIConfig, v string) error { c.LogFormat = v; return nil },
	"metrics_file":  func(c *CLIConfig, v string) error { c.MetricsFile = v; return nil },
	"debug": func(c *CLIConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing debug: %w", err)
		}
		c.Debug = b
		return nil
	},
	"tls.ca_cert": func(c *CLIConfig, v string) error { c.TLS.CACert = v; return nil },
	"tls.skip_verify": func(c *CLIConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing tls.skip_verify: %w", err)
		}
		c.TLS.SkipVerify = b
		return nil
	},
	"history.backend":      func(c *CLIConfig, v string) error { c.History.Backend = HistoryBackend(v); return nil },
	"history.dir":          func(c *CLIConfig, v string) error { c.History.Dir = v; return nil },
	"history.redis_addr":   func(c *CLIConfig, v string) error { c.History.RedisAddr = v; return nil },
	"history.postgres_dsn": func(c *CLIConfig, v string) error { c.History.PostgresDSN = v; return nil },
	"history.limit": func(c *CLIConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing history.limit: %w", err)
		}
		c.History.Limit = n
		return nil
	},
	"watch.dir":  func(c *CLIConfig, v string) error { c.Watch.Dir = v; return nil },
	"watch.kind": func(c *CLIConfig, v string) error { c.Watch.Kind = v; return nil },
	"watch.concurrency": func(c *CLIConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing watch.concurrency: %w", err)
		}
		c.Watch.Concurrency = n
		return nil
	},
}

// SettableKeys returns the keys accepted by Set, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a single key from its string form and re-validates the result.
// The config is left unchanged when the key is unknown or the value is invalid.
func (c *CLIConfig) Set(key, value string) error {
	setter, ok := settable[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(SettableKeys(), ", "))
	}
	next := *c
	if err := setter(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	fileCfg := configFile{
		ServerURL:    cfg.ServerURL,
		Timeout:      cfg.Timeout.String(),
		OutputFormat: cfg.OutputFormat,
		ExportDir:    cfg.ExportDir,
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		Debug:        cfg.Debug,
		MetricsFile:  cfg.MetricsFile,
		TLS:          cfg.TLS,
		History:      cfg.History,
		Watch:        cfg.Watch,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
