package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// UsageLog appends one JSON line per fired trigger. The line is
// written before the handler is scheduled, so the log records every
// match even when the handler itself is unavailable or fails.
type UsageLog struct {
	path string
	mu   sync.Mutex
}

type usageRecord struct {
	PluginID  string      `json:"plugin_id"`
	TriggerID string      `json:"trigger_id"`
	Event     interface{} `json:"event"`
}

// NewUsageLog creates an appender writing to path.
func NewUsageLog(path string) *UsageLog {
	return &UsageLog{path: path}
}

// Path returns the log file path.
func (u *UsageLog) Path() string {
	return u.path
}

// Append writes one usage record.
func (u *UsageLog) Append(pluginID, triggerID string, event map[string]interface{}) error {
	line, err := json.Marshal(usageRecord{PluginID: pluginID, TriggerID: triggerID, Event: event})
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return fmt.Errorf("create usage log dir: %w", err)
	}

	f, err := os.OpenFile(u.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}
