package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port number
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	return nil
}

// ValidatePrefixes validates the command prefix list
func (v *Validator) ValidatePrefixes(prefixes []string) error {
	if len(prefixes) == 0 {
		return fmt.Errorf("at least one command prefix is required")
	}
	for i, prefix := range prefixes {
		if prefix == "" {
			return fmt.Errorf("command prefix %d is empty", i)
		}
	}
	return nil
}

// ValidateCronSpec validates a standard five-field cron spec. An empty
// spec disables the periodic rescan and is valid.
func (v *Validator) ValidateCronSpec(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %v", spec, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Gateway.Host == "" {
		errors = append(errors, fmt.Errorf("gateway host is required"))
	}
	if err := v.ValidatePort(cfg.Gateway.HTTPPort); err != nil {
		errors = append(errors, fmt.Errorf("gateway http_port: %w", err))
	}
	if err := v.ValidatePort(cfg.Gateway.WSPort); err != nil {
		errors = append(errors, fmt.Errorf("gateway ws_port: %w", err))
	}

	if err := v.ValidatePrefixes(cfg.Prefixes); err != nil {
		errors = append(errors, err)
	}

	if cfg.Dirs.Plugins == "" {
		errors = append(errors, fmt.Errorf("plugins directory is required"))
	}
	if cfg.Dirs.Cache == "" {
		errors = append(errors, fmt.Errorf("cache directory is required"))
	}
	if cfg.Dirs.Data == "" {
		errors = append(errors, fmt.Errorf("data directory is required"))
	}

	if cfg.Categories.RefreshTTLMs < 0 {
		errors = append(errors, fmt.Errorf("categories refresh_ttl_ms must be >= 0"))
	}

	if err := v.ValidateCronSpec(cfg.Rescan.Cron); err != nil {
		errors = append(errors, fmt.Errorf("rescan: %w", err))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errors = append(errors, fmt.Errorf("metrics addr is required when metrics are enabled"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging max_age must be >= 0"))
	}

	return errors
}
