package pullpay

import (
	"log/slog"
	"time"

	"github.com/xraph/pullpay/plugin"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithName overrides the engine identifier used for store namespacing
// and generated references. Defaults to the kind's canonical name.
func WithName(name string) EngineOption {
	return func(e *Engine) { e.name = name }
}

// WithDynamic puts the engine in dynamic mode: amount, tokens and
// schedule come from the subscriber instead of the billing model, and
// recurring behavior follows the model's recorded recurring type.
func WithDynamic() EngineOption {
	return func(e *Engine) { e.dynamic = true }
}

// WithPlugins sets the plugin registry events are dispatched through.
func WithPlugins(plugins *plugin.Registry) EngineOption {
	return func(e *Engine) { e.plugins = plugins }
}

// WithNow overrides the engine clock. Tests use this to drive interval
// gating and trial expiry deterministically.
func WithNow(now func() int64) EngineOption {
	return func(e *Engine) { e.now = now }
}

func defaultNow() int64 { return time.Now().Unix() }
