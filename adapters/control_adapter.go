// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control interface using control package primitives.

package adapters

import (
	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/control"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
	hooks   *control.ReloadHooks
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter builds an adapter. Settings reloads delivered through
// hooks are merged into the config store, which fires OnReload listeners.
// hooks may be nil.
func NewControlAdapter(hooks *control.ReloadHooks) *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
		hooks:   hooks,
	}
	control.RegisterPlatformProbes(adapter.debug)
	if hooks != nil {
		hooks.Register(func(s control.Settings) {
			adapter.config.SetConfig(s.Map())
		})
	}
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	if cfg == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "adapters: nil config")
	}
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges config, metrics and probe output. Probe keys are
// prefixed with "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	combined := c.config.GetSnapshot()
	for k, v := range c.metrics.GetSnapshot() {
		combined[k] = v
	}
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
}

func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// Debug exposes the probe registry.
func (c *ControlAdapter) Debug() api.Debug { return c.debug }

// Probe evaluates a single debug probe.
func (c *ControlAdapter) Probe(name string) (any, bool) {
	return c.debug.Probe(name)
}
