package plugin

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// loadAttempts bounds the retry loop around a single load. Archives
// are sometimes read while still being copied into the plugin dir, so
// a failed read is retried before the load is abandoned.
const loadAttempts = 3

// Controller drives plugin state transitions: disabled, enabled
// unloaded, enabled loaded. It owns the rename-based enable switch
// and the extract-activate pipeline.
type Controller struct {
	registry      *Registry
	reader        *ManifestReader
	extractor     *Extractor
	host          *Host
	workspaceRoot string
	logger        zerolog.Logger
}

// NewController wires a lifecycle controller.
func NewController(registry *Registry, reader *ManifestReader, extractor *Extractor, host *Host, workspaceRoot string, logger zerolog.Logger) *Controller {
	return &Controller{
		registry:      registry,
		reader:        reader,
		extractor:     extractor,
		host:          host,
		workspaceRoot: workspaceRoot,
		logger:        logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Load extracts and activates a plugin. Loading an already-loaded id
// is an in-place reload: the new table replaces the old one only
// after activation succeeds. Failures are retried a few times; after
// that the load is abandoned and the previous state kept.
func (c *Controller) Load(id string) error {
	var err error
	for attempt := 1; attempt <= loadAttempts; attempt++ {
		if err = c.loadOnce(id); err == nil {
			if attempt > 1 {
				c.logger.Info().Str("plugin", id).Int("attempt", attempt).Msg("Plugin loaded after retry")
			}
			return nil
		}
		if errors.Is(err, ErrUnknownPlugin) {
			break
		}
		if attempt < loadAttempts {
			c.logger.Warn().
				Err(err).
				Str("plugin", id).
				Int("attempt", attempt).
				Msg("Plugin load failed, retrying")
			time.Sleep(retryDelay)
		}
	}

	c.logger.Error().Err(err).Str("plugin", id).Msg("Plugin load abandoned")
	return err
}

func (c *Controller) loadOnce(id string) error {
	p, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	// The manifest is re-read from the archive rather than taken from
	// the catalog, so a load always activates what is on disk now.
	manifest, err := c.reader.ReadArchive(p.ArchivePath)
	if err != nil {
		return err
	}
	if manifest.ID != id {
		return fmt.Errorf("%w: archive %s declares id %q, catalog has %q",
			ErrMalformedPackage, p.FileName, manifest.ID, id)
	}

	if err := c.extractor.Extract(p.ArchivePath, c.host.WorkspacePath(id)); err != nil {
		return err
	}

	if err := c.host.Activate(manifest); err != nil {
		return err
	}

	if err := c.registry.Refresh(id); err != nil {
		return err
	}
	return c.registry.SetLoaded(id, true)
}

// Unload drops the handler table and removes the extraction
// workspace. Workspace removal is best-effort; a stale workspace is
// overwritten by the next load.
func (c *Controller) Unload(id string) error {
	if !c.host.Loaded(id) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	c.host.Deactivate(id)

	if err := os.RemoveAll(c.host.WorkspacePath(id)); err != nil {
		c.logger.Warn().Err(err).Str("plugin", id).Msg("Workspace removal failed")
	}
	if err := c.registry.SetLoaded(id, false); err != nil {
		// The archive may have vanished from the catalog since the
		// load; the unload itself still succeeded.
		c.logger.Debug().Err(err).Str("plugin", id).Msg("Plugin not in catalog after unload")
	}

	c.logger.Info().Str("plugin", id).Msg("Plugin unloaded")
	return nil
}

// Reload re-extracts and re-activates a loaded plugin. Plugins that
// are not loaded are left alone.
func (c *Controller) Reload(id string) error {
	if !c.host.Loaded(id) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	return c.Load(id)
}

// Enable renames the archive to its enabled form and loads it.
// Enabling an already-enabled plugin just loads it.
func (c *Controller) Enable(id string) error {
	p, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	if !p.Enabled {
		enabledPath := strings.TrimSuffix(p.ArchivePath, ".disabled")
		if err := os.Rename(p.ArchivePath, enabledPath); err != nil {
			return fmt.Errorf("enable %s: %w", id, err)
		}
		c.logger.Info().Str("plugin", id).Msg("Plugin enabled")
	}

	if err := c.registry.Rescan(); err != nil {
		return err
	}
	return c.Load(id)
}

// Disable unloads the plugin and renames its archive to the disabled
// form. Disabling an unloaded plugin just renames it.
func (c *Controller) Disable(id string) error {
	p, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	if err := c.Unload(id); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}

	if p.Enabled {
		if err := os.Rename(p.ArchivePath, p.ArchivePath+".disabled"); err != nil {
			return fmt.Errorf("disable %s: %w", id, err)
		}
		c.logger.Info().Str("plugin", id).Msg("Plugin disabled")
	}

	return c.registry.Rescan()
}

// LoadAll resets the extraction workspace, rescans the plugin dir and
// loads every enabled plugin. Individual load failures are logged and
// do not stop the rest.
func (c *Controller) LoadAll() error {
	if err := os.RemoveAll(c.workspaceRoot); err != nil {
		c.logger.Warn().Err(err).Str("dir", c.workspaceRoot).Msg("Workspace root removal failed")
	}
	if err := os.MkdirAll(c.workspaceRoot, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}

	if err := c.registry.Rescan(); err != nil {
		return err
	}

	for _, p := range c.registry.All() {
		if !p.Enabled {
			continue
		}
		if err := c.Load(p.ID); err != nil {
			c.logger.Error().Err(err).Str("plugin", p.ID).Msg("Plugin failed to load at startup")
		}
	}
	return nil
}

// ReloadAll rescans the plugin dir and reloads every loaded plugin.
func (c *Controller) ReloadAll() error {
	if err := c.registry.Rescan(); err != nil {
		return err
	}
	for _, id := range c.host.LoadedIDs() {
		if err := c.Reload(id); err != nil {
			c.logger.Error().Err(err).Str("plugin", id).Msg("Plugin reload failed")
		}
	}
	return nil
}
