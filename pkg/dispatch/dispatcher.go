// Package dispatch routes gateway events to plugin trigger handlers.
// Trigger resolution for one event runs to completion before the next
// event is looked at; matched handlers are handed to the task runner
// and never awaited.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kasumi-bot/kasumi/internal/metrics"
	"github.com/kasumi-bot/kasumi/pkg/confdoc"
	"github.com/kasumi-bot/kasumi/pkg/gateway"
	"github.com/kasumi-bot/kasumi/pkg/match"
	"github.com/kasumi-bot/kasumi/pkg/plugin"
	"github.com/kasumi-bot/kasumi/pkg/taskrunner"
)

// Catalog lists the known plugins. *plugin.Registry satisfies it.
type Catalog interface {
	All() []plugin.Plugin
}

// ConfigSource loads per-plugin trigger configuration with an entry
// guaranteed for every trigger. *plugin.ConfigStore satisfies it.
type ConfigSource interface {
	Load(id string, triggers []plugin.Trigger) plugin.PluginConfig
}

// HandlerSource resolves trigger handlers at spawn time.
// *plugin.Host satisfies it.
type HandlerSource interface {
	Handler(pluginID, triggerID string) (plugin.HandlerFunc, bool)
}

// Config wires a Dispatcher.
type Config struct {
	Registry    Catalog
	Configs     ConfigSource
	Host        HandlerSource
	Runner      *taskrunner.Runner
	Categories  *confdoc.Doc
	Usage       *UsageLog
	Metrics     *metrics.Metrics
	Prefixes    []string
	CategoryTTL time.Duration
}

// Dispatcher resolves which triggers fire for an inbound event.
// Trigger configuration and group categories are re-read per event so
// operator edits apply without a reload.
type Dispatcher struct {
	registry    Catalog
	configs     ConfigSource
	host        HandlerSource
	runner      *taskrunner.Runner
	categories  *confdoc.Doc
	usage       *UsageLog
	metrics     *metrics.Metrics
	prefixes    []string
	categoryTTL time.Duration
	logger      zerolog.Logger
}

// New creates a dispatcher.
func New(cfg Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:    cfg.Registry,
		configs:     cfg.Configs,
		host:        cfg.Host,
		runner:      cfg.Runner,
		categories:  cfg.Categories,
		usage:       cfg.Usage,
		metrics:     cfg.Metrics,
		prefixes:    cfg.Prefixes,
		categoryTTL: cfg.CategoryTTL,
		logger:      logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch resolves every enabled plugin's triggers against one
// event. Failures are contained at the narrowest scope: a broken
// trigger never stops its siblings, a broken plugin never stops other
// plugins.
func (d *Dispatcher) Dispatch(ev *gateway.Event) {
	d.metrics.EventsTotal.Inc()

	logger := d.logger.With().
		Str("dispatchId", uuid.New().String()).
		Str("postType", ev.PostType()).
		Logger()
	logger.Debug().Msg("Event received")

	if err := d.categories.Refresh(d.categoryTTL); err != nil {
		logger.Warn().Err(err).Msg("Group categories refresh failed, using last good copy")
	}

	for _, p := range d.registry.All() {
		if !p.Enabled {
			continue
		}
		cfg := d.configs.Load(p.ID, p.Triggers)
		for _, trigger := range p.Triggers {
			d.dispatchTrigger(logger, ev, p, trigger, cfg.Triggers[trigger.ID])
		}
	}
}

func (d *Dispatcher) dispatchTrigger(logger zerolog.Logger, ev *gateway.Event, p plugin.Plugin, trigger plugin.Trigger, tc plugin.TriggerConfig) {
	if !tc.Enabled {
		return
	}
	if !d.eligible(tc, ev) {
		return
	}

	matched, err := d.matchTrigger(trigger, tc, ev)
	if err != nil {
		d.metrics.DispatchErrorsTotal.Inc()
		logger.Error().Err(err).
			Str("plugin", p.ID).
			Str("trigger", trigger.ID).
			Msg("Trigger match failed")
		return
	}
	if !matched {
		return
	}

	d.metrics.MatchesTotal.WithLabelValues(p.ID, trigger.ID).Inc()
	logger.Info().Str("plugin", p.ID).Str("trigger", trigger.ID).Msg("Trigger matched")

	// The usage line goes down before the handler is scheduled. An
	// append failure is logged but does not suppress the handler.
	if err := d.usage.Append(p.ID, trigger.ID, ev.Data); err != nil {
		d.metrics.DispatchErrorsTotal.Inc()
		logger.Error().Err(err).
			Str("plugin", p.ID).
			Str("trigger", trigger.ID).
			Msg("Usage record failed")
	}

	fn, ok := d.host.Handler(p.ID, trigger.ID)
	if !ok {
		d.metrics.DispatchErrorsTotal.Inc()
		logger.Error().
			Str("plugin", p.ID).
			Str("trigger", trigger.ID).
			Msg("Handler unavailable, plugin not loaded")
		return
	}

	pluginID, triggerID := p.ID, trigger.ID
	d.runner.Spawn(pluginID+"."+triggerID, func(ctx context.Context) error {
		// Failures are metered here; the runner owns recovery and
		// logging at the task boundary.
		defer func() {
			if r := recover(); r != nil {
				d.metrics.HandlerFailuresTotal.WithLabelValues(pluginID, triggerID).Inc()
				panic(r)
			}
		}()
		if err := fn(ctx, ev.Data); err != nil {
			d.metrics.HandlerFailuresTotal.WithLabelValues(pluginID, triggerID).Inc()
			return fmt.Errorf("handler %s.%s: %w", pluginID, triggerID, err)
		}
		return nil
	})
}

// eligible applies scope rules: a group event needs one of the
// trigger's configured categories to cover the group, a private event
// needs can_private.
func (d *Dispatcher) eligible(tc plugin.TriggerConfig, ev *gateway.Event) bool {
	if groupID, ok := ev.GroupID(); ok {
		return d.groupCovered(tc.Groups, groupID)
	}
	return tc.CanPrivate
}

func (d *Dispatcher) matchTrigger(trigger plugin.Trigger, tc plugin.TriggerConfig, ev *gateway.Event) (bool, error) {
	switch trigger.Type {
	case plugin.TriggerTextPattern:
		if !ev.IsMessage() {
			return false, nil
		}
		return match.Pattern(ev.Text(), trigger.Pattern())

	case plugin.TriggerTextCommand:
		if !ev.IsMessage() {
			return false, nil
		}
		mustPrefix := trigger.MustPrefix()
		if tc.MustPrefix != nil {
			mustPrefix = *tc.MustPrefix
		}
		return match.Command(ev.Text(), trigger.Command(), d.prefixes, mustPrefix), nil

	case plugin.TriggerMatchMessage:
		pattern, ok := trigger.MatchPattern()
		if !ok {
			return false, nil
		}
		return match.Matches(ev.Data, pattern, match.ArrayMode(trigger.ArrayMatchType()))

	default:
		return false, fmt.Errorf("unknown trigger type %q", trigger.Type)
	}
}

// groupCovered reports whether any category listed for the trigger
// contains the event's group.
func (d *Dispatcher) groupCovered(categories []interface{}, groupID string) bool {
	root := d.categories.Root()
	for _, c := range categories {
		catID, ok := gateway.CanonicalID(c)
		if !ok {
			continue
		}
		if categoryHasGroup(root, catID, groupID) {
			return true
		}
	}
	return false
}

// categoryHasGroup searches the categories document. The document is
// an array of category objects as seeded, or a map keyed by category
// id once a management surface rewrites it.
func categoryHasGroup(root interface{}, catID, groupID string) bool {
	switch doc := root.(type) {
	case []interface{}:
		for _, item := range doc {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			id, ok := gateway.CanonicalID(obj["id"])
			if !ok || id != catID {
				continue
			}
			if groupIn(obj["groups"], groupID) {
				return true
			}
		}
	case map[string]interface{}:
		if obj, ok := doc[catID].(map[string]interface{}); ok {
			return groupIn(obj["groups"], groupID)
		}
	}
	return false
}

func groupIn(v interface{}, groupID string) bool {
	list, ok := v.([]interface{})
	if !ok {
		return false
	}
	for _, g := range list {
		if id, ok := gateway.CanonicalID(g); ok && id == groupID {
			return true
		}
	}
	return false
}
