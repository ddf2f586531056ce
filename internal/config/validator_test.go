package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	t.Run("valid ports", func(t *testing.T) {
		assert.NoError(t, v.ValidatePort(1))
		assert.NoError(t, v.ValidatePort(5700))
		assert.NoError(t, v.ValidatePort(65535))
	})

	t.Run("invalid ports", func(t *testing.T) {
		assert.Error(t, v.ValidatePort(0))
		assert.Error(t, v.ValidatePort(-1))
		assert.Error(t, v.ValidatePort(70000))
	})
}

func TestValidatePrefixes(t *testing.T) {
	v := NewValidator()

	t.Run("valid prefixes", func(t *testing.T) {
		assert.NoError(t, v.ValidatePrefixes([]string{"/"}))
		assert.NoError(t, v.ValidatePrefixes([]string{"/", "!", "cmd:"}))
	})

	t.Run("empty list", func(t *testing.T) {
		err := v.ValidatePrefixes(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least one")
	})

	t.Run("empty prefix", func(t *testing.T) {
		err := v.ValidatePrefixes([]string{"/", ""})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestValidateCronSpec(t *testing.T) {
	v := NewValidator()

	t.Run("valid specs", func(t *testing.T) {
		assert.NoError(t, v.ValidateCronSpec("*/5 * * * *"))
		assert.NoError(t, v.ValidateCronSpec("0 3 * * 1"))
	})

	t.Run("empty spec disables rescan", func(t *testing.T) {
		assert.NoError(t, v.ValidateCronSpec(""))
	})

	t.Run("invalid specs", func(t *testing.T) {
		assert.Error(t, v.ValidateCronSpec("every five minutes"))
		assert.Error(t, v.ValidateCronSpec("* * * *"))
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"trace", "debug", "info", "warn", "error", "fatal"} {
			assert.NoError(t, v.ValidateLogLevel(level), level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := v.ValidateLogLevel("loud")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("default config is valid", func(t *testing.T) {
		errs := v.ValidateConfig(DefaultConfig())
		assert.Empty(t, errs)
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gateway.Host = ""
		cfg.Gateway.HTTPPort = 0
		cfg.Logging.Level = "loud"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 3)
	})
}
