// Package config provides configuration management for the pendrag daemon.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"pendrag/internal/filter"
)

// Config represents the application configuration
type Config struct {
	// Filter holds the drag threshold settings
	Filter filter.Config `json:"filter" yaml:"filter"`

	// Input configures the local evdev source
	Input InputConfig `json:"input" yaml:"input"`

	// Network configures UDP ingest and forwarding
	Network NetworkConfig `json:"network" yaml:"network"`

	// API configures the HTTP/WebSocket server
	API APIConfig `json:"api" yaml:"api"`

	// Log configures log output
	Log LogConfig `json:"log" yaml:"log"`

	// General contains desktop integration settings
	General GeneralConfig `json:"general" yaml:"general"`
}

// InputConfig selects a local tablet device
type InputConfig struct {
	// Enabled turns on reading from a local /dev/input device
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Device is the event node (e.g. "/dev/input/event5")
	Device string `json:"device,omitempty" yaml:"device,omitempty"`

	// Grab takes exclusive access of the device (EVIOCGRAB)
	Grab bool `json:"grab" yaml:"grab"`

	// OutputWidth and OutputHeight are the output area in px the device
	// area is mapped onto. Zero keeps device units.
	OutputWidth  float64 `json:"output_width,omitempty" yaml:"output_width,omitempty"`
	OutputHeight float64 `json:"output_height,omitempty" yaml:"output_height,omitempty"`
}

// NetworkConfig configures the UDP transport
type NetworkConfig struct {
	// IngestAddr is where producers send raw reports (e.g. ":19090")
	IngestAddr string `json:"ingest_addr,omitempty" yaml:"ingest_addr,omitempty"`

	// ForwardAddr is where consumers register for filtered reports
	ForwardAddr string `json:"forward_addr,omitempty" yaml:"forward_addr,omitempty"`
}

// APIConfig configures the HTTP server
type APIConfig struct {
	// Enabled enables the HTTP API server
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Port is the port for the API server (default: 19080)
	Port int `json:"port" yaml:"port"`

	// Token is an optional authentication token for API requests
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// LogConfig configures log output and rotation
type LogConfig struct {
	// Filename is the log file. Empty or "-" logs to stderr.
	Filename   string `json:"filename,omitempty" yaml:"filename,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" yaml:"max_size,omitempty"` // megabytes
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAge     int    `json:"max_age,omitempty" yaml:"max_age,omitempty"` // days
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
	Append     bool   `json:"append" yaml:"append"`
	AlsoStderr bool   `json:"also_stderr,omitempty" yaml:"also_stderr,omitempty"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Tray shows the system tray icon
	Tray bool `json:"tray" yaml:"tray"`

	// LogReports logs every filtered report. Noisy.
	LogReports bool `json:"log_reports,omitempty" yaml:"log_reports,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Filter: filter.DefaultConfig(),
		Network: NetworkConfig{
			IngestAddr:  ":19090",
			ForwardAddr: ":19091",
		},
		API: APIConfig{
			Enabled: true,
			Port:    19080,
		},
		Log: LogConfig{
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Append:     true,
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("%w: api port %d", ErrInvalidValue, c.API.Port)
	}
	if c.Input.OutputWidth < 0 || c.Input.OutputHeight < 0 {
		return fmt.Errorf("%w: negative output area", ErrInvalidValue)
	}
	if c.Input.Enabled && c.Input.Device == "" {
		return fmt.Errorf("%w: input enabled without a device", ErrInvalidValue)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  []func()
}

// NewManager creates a configuration manager for the per-user config file
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath)
}

// NewManagerAt creates a configuration manager for an explicit file.
// The format follows the extension: .json, .yaml or .yml.
func NewManagerAt(path string) (*Manager, error) {
	if _, err := formatOf(path); err != nil {
		return nil, err
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "pendrag")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "pendrag")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "pendrag")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "pendrag")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := unmarshal(m.configPath, data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	for _, fn := range onChanged {
		fn()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := marshal(m.configPath, m.config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set validates and replaces the configuration
func (m *Manager) Set(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = &config
	onChanged := m.onChanged
	m.mu.Unlock()
	for _, fn := range onChanged {
		fn()
	}
	return nil
}

// SetFilter replaces only the filter settings
func (m *Manager) SetFilter(fc filter.Config) error {
	cfg := m.Get()
	cfg.Filter = fc
	return m.Set(cfg)
}

// RegisterChangeCallback registers a function to be called when config changes.
// Callbacks run in registration order without the manager lock held.
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = append(m.onChanged, fn)
}

func unmarshal(path string, data []byte, cfg *Config) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	if f == formatYAML {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	if f == formatYAML {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}
