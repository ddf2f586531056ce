package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// TriggerConfig is the operator-editable state of one trigger.
// MustPrefix is a pointer so the field is only written for command
// triggers, the only type that reads it.
type TriggerConfig struct {
	Enabled    bool          `json:"enabled"`
	Groups     []interface{} `json:"groups"`
	CanPrivate bool          `json:"can_private"`
	MustPrefix *bool         `json:"must_prefix,omitempty"`
}

// PluginConfig is the on-disk trigger configuration document for one
// plugin.
type PluginConfig struct {
	Triggers map[string]TriggerConfig `json:"triggers"`
}

// ConfigStore reads and seeds per-plugin trigger configuration
// documents. Documents are deliberately re-read on every dispatch so
// operator edits take effect without a reload.
type ConfigStore struct {
	dir    string
	logger zerolog.Logger
}

// NewConfigStore creates a store over the given directory.
func NewConfigStore(dir string, logger zerolog.Logger) *ConfigStore {
	return &ConfigStore{
		dir:    dir,
		logger: logger.With().Str("component", "config-store").Logger(),
	}
}

// Path returns the document path for a plugin id.
func (s *ConfigStore) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// EnsureDefaults writes the default document for a plugin unless one
// already exists. Existing documents are never touched, whatever their
// content, so operator edits survive rescans and reloads.
func (s *ConfigStore) EnsureDefaults(id string, triggers []Trigger) error {
	path := s.Path(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := PluginConfig{Triggers: make(map[string]TriggerConfig, len(triggers))}
	for _, t := range triggers {
		cfg.Triggers[t.ID] = defaultTriggerConfig(t)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trigger config for %s: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trigger config for %s: %w", id, err)
	}

	s.logger.Info().Str("plugin", id).Int("triggers", len(triggers)).Msg("Seeded default trigger config")
	return nil
}

// Load reads the document for a plugin. A missing or malformed
// document falls back to defaults, and every trigger is guaranteed an
// entry, so a broken config file can never disable a whole plugin.
func (s *ConfigStore) Load(id string, triggers []Trigger) PluginConfig {
	cfg := PluginConfig{}

	data, err := os.ReadFile(s.Path(id))
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			s.logger.Warn().Err(jsonErr).Str("plugin", id).Msg("Malformed trigger config, using defaults")
			cfg = PluginConfig{}
		}
	case os.IsNotExist(err):
		s.logger.Debug().Str("plugin", id).Msg("No trigger config on disk, using defaults")
	default:
		s.logger.Warn().Err(err).Str("plugin", id).Msg("Unreadable trigger config, using defaults")
	}

	if cfg.Triggers == nil {
		cfg.Triggers = make(map[string]TriggerConfig, len(triggers))
	}
	for _, t := range triggers {
		if _, ok := cfg.Triggers[t.ID]; !ok {
			cfg.Triggers[t.ID] = defaultTriggerConfig(t)
		}
	}
	return cfg
}

func defaultTriggerConfig(t Trigger) TriggerConfig {
	tc := TriggerConfig{
		Enabled:    true,
		Groups:     []interface{}{},
		CanPrivate: t.CanPrivate,
	}
	if t.Type == TriggerTextCommand {
		mustPrefix := t.MustPrefix()
		tc.MustPrefix = &mustPrefix
	}
	return tc
}
