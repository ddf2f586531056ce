package config

import (
	"encoding/json"
	"path/filepath"
)

// Config represents the main Kasumi configuration
type Config struct {
	// Gateway endpoint
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Command prefixes recognized by text command triggers
	Prefixes []string `json:"prefixes" mapstructure:"prefixes"`

	// Directory layout
	Dirs DirsConfig `json:"dirs" mapstructure:"dirs"`

	// Group category document refresh policy
	Categories CategoriesConfig `json:"categories" mapstructure:"categories"`

	// Periodic plugin directory rescan
	Rescan RescanConfig `json:"rescan" mapstructure:"rescan"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// GatewayConfig holds the OneBot gateway endpoint. Events arrive on the
// WebSocket port, actions go out over the HTTP port.
type GatewayConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	HTTPPort int    `json:"http_port" mapstructure:"http_port"`
	WSPort   int    `json:"ws_port" mapstructure:"ws_port"`
}

// DirsConfig holds the directory layout
type DirsConfig struct {
	Plugins string `json:"plugins" mapstructure:"plugins"` // .plugin archives
	Cache   string `json:"cache" mapstructure:"cache"`     // extraction workspaces
	Data    string `json:"data" mapstructure:"data"`       // configs, usage log
}

// CategoriesConfig controls how often the group category document is
// re-read during dispatch
type CategoriesConfig struct {
	RefreshTTLMs int `json:"refresh_ttl_ms" mapstructure:"refresh_ttl_ms"` // 0 re-reads every event
}

// RescanConfig holds the periodic rescan schedule
type RescanConfig struct {
	Cron string `json:"cron" mapstructure:"cron"` // five-field spec; empty disables
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `json:"level" mapstructure:"level"`
	File     string `json:"file" mapstructure:"file"`
	Console  bool   `json:"console" mapstructure:"console"`
	Pretty   bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:     "127.0.0.1",
			HTTPPort: 5700,
			WSPort:   6700,
		},
		Prefixes: []string{"/", "!"},
		Dirs: DirsConfig{
			Plugins: "plugins",
			Cache:   "cache/plugins",
			Data:    "data",
		},
		Categories: CategoriesConfig{
			RefreshTTLMs: 0,
		},
		Rescan: RescanConfig{
			Cron: "*/5 * * * *",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:2112",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Pretty:   true,
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
	}
}

// PluginConfigDir returns the directory holding per-plugin trigger
// config documents.
func (c *Config) PluginConfigDir() string {
	return filepath.Join(c.Dirs.Data, "configs", "plugins")
}

// CategoriesPath returns the group category document path.
func (c *Config) CategoriesPath() string {
	return filepath.Join(c.Dirs.Data, "configs", "group_categories.json")
}

// UsagePath returns the trigger usage log path.
func (c *Config) UsagePath() string {
	return filepath.Join(c.Dirs.Data, "usage.jsonl")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
