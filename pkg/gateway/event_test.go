package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("decodes an object frame", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "message", "message_type": "group"}`))
		require.NoError(t, err)
		assert.Equal(t, "message", event.PostType())
		assert.NotEmpty(t, event.Raw)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{broken`))
		require.Error(t, err)
	})

	t.Run("rejects non-object roots", func(t *testing.T) {
		_, err := ParseEvent([]byte(`[1, 2, 3]`))
		require.Error(t, err)

		_, err = ParseEvent([]byte(`42`))
		require.Error(t, err)
	})
}

func TestEventScope(t *testing.T) {
	t.Run("group event", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "message", "group_id": 12345, "user_id": 67}`))
		require.NoError(t, err)

		assert.True(t, event.IsMessage())
		assert.True(t, event.IsGroup())
		assert.False(t, event.IsPrivate())

		groupID, ok := event.GroupID()
		require.True(t, ok)
		assert.Equal(t, "12345", groupID)

		userID, ok := event.UserID()
		require.True(t, ok)
		assert.Equal(t, "67", userID)
	})

	t.Run("private event", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "message", "user_id": 67}`))
		require.NoError(t, err)

		assert.True(t, event.IsPrivate())
		assert.False(t, event.IsGroup())

		_, ok := event.GroupID()
		assert.False(t, ok)
	})

	t.Run("notice event is not a message", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "notice", "group_id": 12345}`))
		require.NoError(t, err)

		assert.False(t, event.IsMessage())
		assert.True(t, event.IsGroup())
	})
}

func TestEventText(t *testing.T) {
	t.Run("segment chain", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{
			"post_type": "message",
			"message": [
				{"type": "text", "data": {"text": "  hello "}},
				{"type": "image", "data": {"file": "cat.png"}},
				{"type": "text", "data": {"text": "world "}}
			]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "hello world", event.Text())
	})

	t.Run("plain string message", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "message", "message": " /ping "}`))
		require.NoError(t, err)
		assert.Equal(t, "/ping", event.Text())
	})

	t.Run("no text segments", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{
			"post_type": "message",
			"message": [{"type": "image", "data": {"file": "cat.png"}}]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "", event.Text())
	})

	t.Run("no message field", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"post_type": "notice"}`))
		require.NoError(t, err)
		assert.Equal(t, "", event.Text())
	})
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected string
		ok       bool
	}{
		{"string", "12345", "12345", true},
		{"empty string", "", "", false},
		{"integral float", float64(12345), "12345", true},
		{"large integral float", float64(3133078859), "3133078859", true},
		{"fractional float", 1.5, "1.5", true},
		{"int", 42, "42", true},
		{"int64", int64(9007199254740993), "9007199254740993", true},
		{"json number", json.Number("12345"), "12345", true},
		{"nil", nil, "", false},
		{"bool", true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalID(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
