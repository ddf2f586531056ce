package plugin

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the in-memory catalog of plugin packages found in the
// plugin directory. Rescan rebuilds it from disk; everything else
// reads or updates the cached records.
type Registry struct {
	dir     string
	reader  *ManifestReader
	configs *ConfigStore
	logger  zerolog.Logger

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewRegistry creates a registry over the given plugin directory.
func NewRegistry(dir string, reader *ManifestReader, configs *ConfigStore, logger zerolog.Logger) *Registry {
	return &Registry{
		dir:     dir,
		reader:  reader,
		configs: configs,
		logger:  logger.With().Str("component", "registry").Logger(),
		plugins: make(map[string]*Plugin),
	}
}

// Rescan rebuilds the catalog from the plugin directory. Enabled
// packages keep their loaded flag across rescans; disabled packages
// are never loaded. A package whose manifest cannot be read still
// gets a record so operators can see and remove it.
func (r *Registry) Rescan() error {
	enabled, err := filepath.Glob(filepath.Join(r.dir, "*.plugin"))
	if err != nil {
		return fmt.Errorf("scan plugin dir: %w", err)
	}
	disabled, err := filepath.Glob(filepath.Join(r.dir, "*.plugin.disabled"))
	if err != nil {
		return fmt.Errorf("scan plugin dir: %w", err)
	}

	next := make(map[string]*Plugin, len(enabled)+len(disabled))
	for _, path := range enabled {
		p := r.scanFile(path, true)
		next[p.ID] = p
	}
	for _, path := range disabled {
		p := r.scanFile(path, false)
		if prior, ok := next[p.ID]; ok {
			r.logger.Warn().
				Str("plugin", p.ID).
				Str("kept", prior.FileName).
				Str("ignored", p.FileName).
				Msg("Duplicate plugin id, enabled package wins")
			continue
		}
		next[p.ID] = p
	}

	r.mu.Lock()
	for id, p := range next {
		if prev, ok := r.plugins[id]; ok && p.Enabled {
			p.Loaded = prev.Loaded
		}
	}
	r.plugins = next
	r.mu.Unlock()

	r.logger.Info().
		Int("enabled", len(enabled)).
		Int("disabled", len(disabled)).
		Msg("Plugin directory scanned")

	return nil
}

// scanFile builds the catalog record for one archive.
func (r *Registry) scanFile(path string, enabled bool) *Plugin {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, ".disabled")
	stem = strings.TrimSuffix(stem, ".plugin")

	manifest, err := r.reader.ReadArchive(path)
	if err != nil {
		r.logger.Warn().Err(err).Str("file", base).Msg("Unreadable plugin package")
		return &Plugin{
			ID:          stem,
			Name:        stem,
			Description: "plugin package unreadable",
			Enabled:     enabled,
			FileName:    base,
			ArchivePath: path,
		}
	}

	if err := r.configs.EnsureDefaults(manifest.ID, manifest.Triggers); err != nil {
		r.logger.Warn().Err(err).Str("plugin", manifest.ID).Msg("Could not write default trigger config")
	}

	return &Plugin{
		ID:          manifest.ID,
		Name:        manifest.Name,
		Description: manifest.Description,
		Version:     manifest.Version,
		Author:      manifest.Author,
		Triggers:    manifest.Triggers,
		Enabled:     enabled,
		FileName:    base,
		ArchivePath: path,
	}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return Plugin{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	return *p, nil
}

// All returns copies of every record, sorted by plugin id.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetLoaded updates the loaded flag for id.
func (r *Registry) SetLoaded(id string, loaded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	p.Loaded = loaded
	return nil
}

// Refresh re-reads a single archive and replaces its catalog record,
// keeping the enabled and loaded flags. Used after a load so the
// catalog reflects the manifest that was actually activated.
func (r *Registry) Refresh(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.plugins[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}

	fresh := r.scanFile(prev.ArchivePath, prev.Enabled)
	fresh.Loaded = prev.Loaded
	if fresh.ID != id {
		// The manifest id on disk changed since the last scan; keep
		// the record reachable under the new id only.
		delete(r.plugins, id)
	}
	r.plugins[fresh.ID] = fresh
	return nil
}

// Status reports catalog counts and records for the status surface.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{Plugins: make(map[string]Plugin, len(r.plugins))}
	for id, p := range r.plugins {
		st.Plugins[id] = *p
		st.PluginsCount++
		if p.Enabled {
			st.EnabledCount++
		}
	}
	return st
}
