package plugin

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	reader := NewManifestReader(zerolog.Nop())

	t.Run("full manifest", func(t *testing.T) {
		manifest, err := reader.Parse([]byte(`{
			"id": "weather",
			"name": "Weather",
			"description": "Weather lookups",
			"version": "2.1.0",
			"author": "ops",
			"triggers": [
				{"id": "forecast", "type": "text_command", "params": {"command": "weather"}, "can_private": true},
				{"id": "rain_alert", "type": "match_message", "params": {"matches": {"notice_type": "rain"}}, "func": "OnRain"}
			]
		}`))
		require.NoError(t, err)

		assert.Equal(t, "weather", manifest.ID)
		assert.Equal(t, "Weather", manifest.Name)
		assert.Equal(t, "2.1.0", manifest.Version)
		require.Len(t, manifest.Triggers, 2)
		assert.Equal(t, "weather", manifest.Triggers[0].Command())
		assert.True(t, manifest.Triggers[0].CanPrivate)
		assert.Equal(t, "Forecast", manifest.Triggers[0].HandlerName())
		assert.Equal(t, "OnRain", manifest.Triggers[1].HandlerName())
	})

	t.Run("defaults fill descriptive fields", func(t *testing.T) {
		manifest, err := reader.Parse([]byte(`{"id": "echo"}`))
		require.NoError(t, err)

		assert.Equal(t, "echo", manifest.Name)
		assert.Equal(t, "no description", manifest.Description)
		assert.Equal(t, "1.0.0", manifest.Version)
		assert.Equal(t, "Unknown", manifest.Author)
		assert.Empty(t, manifest.Triggers)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := reader.Parse([]byte(`{"id": "echo"`))
		require.ErrorIs(t, err, ErrMalformedPackage)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := reader.Parse([]byte(`{"name": "Echo"}`))
		require.ErrorIs(t, err, ErrMalformedPackage)
		assert.Contains(t, err.Error(), "id")
	})

	t.Run("id must be a package name", func(t *testing.T) {
		for _, id := range []string{"Echo", "1echo", "my-plugin", "a.b"} {
			_, err := reader.Parse([]byte(`{"id": "` + id + `"}`))
			require.ErrorIs(t, err, ErrMalformedPackage, "id %q", id)
		}
	})

	t.Run("unknown trigger type", func(t *testing.T) {
		_, err := reader.Parse([]byte(`{
			"id": "echo",
			"triggers": [{"id": "echo", "type": "on_message"}]
		}`))
		require.ErrorIs(t, err, ErrMalformedPackage)
	})

	t.Run("trigger without id", func(t *testing.T) {
		_, err := reader.Parse([]byte(`{
			"id": "echo",
			"triggers": [{"type": "text_command"}]
		}`))
		require.ErrorIs(t, err, ErrMalformedPackage)
	})

	t.Run("duplicate trigger ids", func(t *testing.T) {
		_, err := reader.Parse([]byte(`{
			"id": "echo",
			"triggers": [
				{"id": "echo", "type": "text_command"},
				{"id": "echo", "type": "text_pattern", "params": {"pattern": "hi"}}
			]
		}`))
		require.ErrorIs(t, err, ErrMalformedPackage)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestTriggerParams(t *testing.T) {
	t.Run("handler name from id", func(t *testing.T) {
		assert.Equal(t, "Echo", Trigger{ID: "echo"}.HandlerName())
		assert.Equal(t, "Rain_alert", Trigger{ID: "rain_alert"}.HandlerName())
		assert.Equal(t, "Custom", Trigger{ID: "echo", Func: "Custom"}.HandlerName())
		assert.Equal(t, "", Trigger{}.HandlerName())
	})

	t.Run("must_prefix defaults to true", func(t *testing.T) {
		assert.True(t, Trigger{}.MustPrefix())
		assert.True(t, Trigger{Params: map[string]interface{}{"must_prefix": true}}.MustPrefix())
		assert.False(t, Trigger{Params: map[string]interface{}{"must_prefix": false}}.MustPrefix())
	})

	t.Run("array match type defaults to all", func(t *testing.T) {
		assert.Equal(t, "all", Trigger{}.ArrayMatchType())
		assert.Equal(t, "contains", Trigger{Params: map[string]interface{}{"array_match_type": "contains"}}.ArrayMatchType())
	})

	t.Run("match pattern presence", func(t *testing.T) {
		_, ok := Trigger{}.MatchPattern()
		assert.False(t, ok)

		v, ok := Trigger{Params: map[string]interface{}{"matches": map[string]interface{}{"post_type": "notice"}}}.MatchPattern()
		assert.True(t, ok)
		assert.Equal(t, map[string]interface{}{"post_type": "notice"}, v)
	})
}
