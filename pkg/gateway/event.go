package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Event is one inbound gateway frame. Raw holds the exact bytes as
// received; Data is the decoded form handed to structural matching and
// to plugin handlers.
type Event struct {
	Raw  []byte
	Data map[string]interface{}
}

// ParseEvent decodes a gateway frame. Frames whose root is not a JSON
// object are rejected.
func ParseEvent(raw []byte) (*Event, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	return &Event{Raw: raw, Data: data}, nil
}

// PostType returns the event's post_type field, or "".
func (e *Event) PostType() string {
	s, _ := e.Data["post_type"].(string)
	return s
}

// IsMessage reports whether this is a message event. Text triggers only
// apply to message events.
func (e *Event) IsMessage() bool {
	return e.PostType() == "message"
}

// GroupID returns the canonical group id. ok is false when the event
// carries no group id, which makes the event private-scoped.
func (e *Event) GroupID() (string, bool) {
	return CanonicalID(e.Data["group_id"])
}

// IsGroup reports whether the event is group-scoped.
func (e *Event) IsGroup() bool {
	_, ok := e.GroupID()
	return ok
}

// IsPrivate reports whether the event is private-scoped. An event is
// private exactly when it carries no group id.
func (e *Event) IsPrivate() bool {
	return !e.IsGroup()
}

// UserID returns the canonical sender id, when present.
func (e *Event) UserID() (string, bool) {
	return CanonicalID(e.Data["user_id"])
}

// Text returns the plain-text content of a message event: the text
// segments of the message chain concatenated and trimmed. Non-message
// events and messages without text yield "".
func (e *Event) Text() string {
	switch chain := e.Data["message"].(type) {
	case string:
		return strings.TrimSpace(chain)
	case []interface{}:
		var b strings.Builder
		for _, item := range chain {
			segment, isMap := item.(map[string]interface{})
			if !isMap {
				continue
			}
			data, isMap := segment["data"].(map[string]interface{})
			if !isMap {
				continue
			}
			if text, isString := data["text"].(string); isString {
				b.WriteString(text)
			}
		}
		return strings.TrimSpace(b.String())
	default:
		return ""
	}
}

// CanonicalID converts a JSON-decoded identifier to its canonical
// string form. Gateways deliver ids inconsistently as numbers or
// strings; configuration files do the same, so both sides of every id
// comparison go through here. Integral numbers lose their decoded
// float64 formatting ("12345", never "1.2345e+07").
func CanonicalID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return strconv.FormatInt(int64(id), 10), true
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}
