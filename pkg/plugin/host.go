package plugin

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Host activates extracted plugin source with a yaegi interpreter and
// owns the per-plugin handler tables. A plugin is loaded exactly when
// its table exists.
type Host struct {
	workspaceRoot string
	call          CallFunc
	logger        zerolog.Logger

	mu     sync.RWMutex
	tables map[string]map[string]HandlerFunc
}

// NewHost creates a host rooted at workspaceRoot. call is the gateway
// capability handed to plugins that export Init.
func NewHost(workspaceRoot string, call CallFunc, logger zerolog.Logger) *Host {
	return &Host{
		workspaceRoot: workspaceRoot,
		call:          call,
		logger:        logger.With().Str("component", "host").Logger(),
		tables:        make(map[string]map[string]HandlerFunc),
	}
}

// WorkspacePath returns the extraction directory for a plugin id. The
// directory doubles as the interpreter GOPATH, so plugin source lives
// under src/<id>/ inside it.
func (h *Host) WorkspacePath(id string) string {
	return filepath.Join(h.workspaceRoot, id)
}

// Activate interprets the extracted source for the manifest and
// resolves one handler per trigger into a fresh table. The table is
// swapped in only after every handler resolved, so a failed
// activation of an already-loaded plugin leaves the previous table
// serving. All failures wrap ErrActivation.
func (h *Host) Activate(manifest *Manifest) (err error) {
	// The interpreter panics on some malformed source instead of
	// returning an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: plugin %s: interpreter panic: %v", ErrActivation, manifest.ID, r)
		}
	}()

	i := interp.New(interp.Options{GoPath: h.WorkspacePath(manifest.ID)})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("%w: plugin %s: stdlib symbols: %v", ErrActivation, manifest.ID, err)
	}

	if _, err := i.Eval(fmt.Sprintf("import %q", manifest.ID)); err != nil {
		return fmt.Errorf("%w: plugin %s: %v", ErrActivation, manifest.ID, err)
	}

	// Init is optional. When the package exports it, it receives the
	// gateway capability before any handler can run.
	if v, evalErr := i.Eval(manifest.ID + ".Init"); evalErr == nil {
		init, ok := v.Interface().(InitFunc)
		if !ok {
			return fmt.Errorf("%w: plugin %s: Init has wrong signature", ErrActivation, manifest.ID)
		}
		init(h.call)
	}

	table := make(map[string]HandlerFunc, len(manifest.Triggers))
	for _, trigger := range manifest.Triggers {
		name := trigger.HandlerName()
		v, evalErr := i.Eval(manifest.ID + "." + name)
		if evalErr != nil {
			return fmt.Errorf("%w: plugin %s: trigger %s: handler %s: %v",
				ErrActivation, manifest.ID, trigger.ID, name, evalErr)
		}
		fn, ok := v.Interface().(HandlerFunc)
		if !ok {
			return fmt.Errorf("%w: plugin %s: trigger %s: handler %s has wrong signature",
				ErrActivation, manifest.ID, trigger.ID, name)
		}
		table[trigger.ID] = fn
	}

	h.mu.Lock()
	h.tables[manifest.ID] = table
	h.mu.Unlock()

	h.logger.Info().
		Str("plugin", manifest.ID).
		Int("handlers", len(table)).
		Msg("Plugin activated")

	return nil
}

// Deactivate drops the handler table for id. In-flight handlers keep
// running; they hold their own references.
func (h *Host) Deactivate(id string) {
	h.mu.Lock()
	delete(h.tables, id)
	h.mu.Unlock()
}

// Handler returns the handler bound to a trigger, if the plugin is
// loaded and the trigger resolved at activation.
func (h *Host) Handler(pluginID, triggerID string) (HandlerFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	table, ok := h.tables[pluginID]
	if !ok {
		return nil, false
	}
	fn, ok := table[triggerID]
	return fn, ok
}

// Loaded reports whether a handler table exists for id.
func (h *Host) Loaded(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.tables[id]
	return ok
}

// LoadedIDs returns the ids of all loaded plugins, sorted.
func (h *Host) LoadedIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.tables))
	for id := range h.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
