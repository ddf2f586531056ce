package plugin

import (
	"context"
	"unicode"
)

// Trigger types understood by the dispatch engine.
const (
	TriggerTextPattern  = "text_pattern"
	TriggerTextCommand  = "text_command"
	TriggerMatchMessage = "match_message"
)

// CallFunc is the outbound-gateway capability injected into plugins.
// It is a type alias, not a defined type: interpreted plugin code
// declares functions with this structural signature and the host
// asserts them back, which only works when the types are identical.
type CallFunc = func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error)

// HandlerFunc is a trigger handler exported by a plugin package. The
// event is the decoded gateway payload that matched the trigger.
type HandlerFunc = func(ctx context.Context, event map[string]interface{}) error

// InitFunc is the optional Init function a plugin may export to receive
// the gateway capability before its handlers run.
type InitFunc = func(call CallFunc)

// Trigger declares when one plugin handler runs.
type Trigger struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Params     map[string]interface{} `json:"params,omitempty"`
	CanPrivate bool                   `json:"can_private,omitempty"`
	Func       string                 `json:"func,omitempty"`
}

// HandlerName returns the plugin function this trigger invokes: the
// manifest's func field when set, otherwise the trigger id with its
// first rune upper-cased so it names an exported function.
func (t Trigger) HandlerName() string {
	if t.Func != "" {
		return t.Func
	}
	runes := []rune(t.ID)
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Pattern returns the regexp source for text_pattern triggers.
func (t Trigger) Pattern() string {
	s, _ := t.Params["pattern"].(string)
	return s
}

// Command returns the command word for text_command triggers.
func (t Trigger) Command() string {
	s, _ := t.Params["command"].(string)
	return s
}

// MustPrefix returns the manifest default for command-prefix
// enforcement. Absent means a prefix is required.
func (t Trigger) MustPrefix() bool {
	if v, ok := t.Params["must_prefix"].(bool); ok {
		return v
	}
	return true
}

// MatchPattern returns the structural pattern for match_message
// triggers.
func (t Trigger) MatchPattern() (interface{}, bool) {
	v, ok := t.Params["matches"]
	return v, ok
}

// ArrayMatchType returns the sequence comparison mode for match_message
// triggers, defaulting to "all".
func (t Trigger) ArrayMatchType() string {
	if s, ok := t.Params["array_match_type"].(string); ok && s != "" {
		return s
	}
	return "all"
}

// Manifest is the info.json document at the root of a plugin archive.
type Manifest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version,omitempty"`
	Author      string    `json:"author,omitempty"`
	Triggers    []Trigger `json:"triggers,omitempty"`
}

// Plugin is one known plugin package and its state. The registry owns
// all records; the lifecycle controller is the only writer of Loaded.
type Plugin struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Author      string    `json:"author"`
	Triggers    []Trigger `json:"triggers,omitempty"`
	Enabled     bool      `json:"enabled"`
	Loaded      bool      `json:"loaded"`
	FileName    string    `json:"file_name"`
	ArchivePath string    `json:"file_path"`
}

// Status summarizes every known plugin, in the shape the management
// surfaces expose.
type Status struct {
	PluginsCount int               `json:"plugins_count"`
	EnabledCount int               `json:"enabled_count"`
	Plugins      map[string]Plugin `json:"plugins"`
}
