// Package confdoc provides file-backed JSON documents with a staleness
// policy. Callers read through Refresh with a TTL; a TTL of zero means
// every Refresh hits the file, which is how per-event configuration
// reads stay live without a watcher.
package confdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Doc is a JSON document backed by a single file. The document root may
// be any JSON value; nested values use the shapes produced by
// encoding/json (map[string]interface{}, []interface{}, float64).
type Doc struct {
	path string

	mu     sync.RWMutex
	root   interface{}
	readAt time.Time
}

// Open reads and parses the document at path. An empty file yields a nil
// root; a missing or malformed file is an error.
func Open(path string) (*Doc, error) {
	d := &Doc{path: path}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the backing file path.
func (d *Doc) Path() string {
	return d.path
}

// Refresh re-reads the backing file when the last successful read is
// older than ttl. A ttl <= 0 always re-reads. On a read or parse
// failure the previous document is kept and the error returned, so a
// half-written file never wipes live configuration.
func (d *Doc) Refresh(ttl time.Duration) error {
	if ttl > 0 {
		d.mu.RLock()
		fresh := time.Since(d.readAt) <= ttl
		d.mu.RUnlock()
		if fresh {
			return nil
		}
	}
	return d.load()
}

// Root returns the decoded document root.
func (d *Doc) Root() interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Get returns the value at a top-level key when the root is an object,
// and nil otherwise.
func (d *Doc) Get(key string) interface{} {
	v, _ := d.Lookup(key)
	return v
}

// Lookup walks nested object keys from the root. ok reports whether the
// full path exists.
func (d *Doc) Lookup(keys ...string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cur := d.root
	for _, key := range keys {
		obj, isMap := cur.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		next, exists := obj[key]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Set stores value at a top-level key and persists the document. The
// root must be an object (or empty, in which case one is created).
func (d *Doc) Set(key string, value interface{}) error {
	d.mu.Lock()
	obj, isMap := d.root.(map[string]interface{})
	if !isMap {
		if d.root != nil {
			d.mu.Unlock()
			return fmt.Errorf("document root of %s is not an object", d.path)
		}
		obj = make(map[string]interface{})
		d.root = obj
	}
	obj[key] = value
	d.mu.Unlock()

	return d.Write()
}

// Write persists the current document to its backing file.
func (d *Doc) Write() error {
	d.mu.RLock()
	raw, err := json.Marshal(d.root)
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.path, err)
	}

	if err := os.WriteFile(d.path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.readAt = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *Doc) load() error {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", d.path, err)
	}

	var root interface{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &root); err != nil {
			return fmt.Errorf("parse %s: %w", d.path, err)
		}
	}

	d.mu.Lock()
	d.root = root
	d.readAt = time.Now()
	d.mu.Unlock()
	return nil
}
