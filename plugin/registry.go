package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onBillingModelCreated   []OnBillingModelCreated
	onBillingModelEdited    []OnBillingModelEdited
	onNewSubscription       []OnNewSubscription
	onSubscriptionCancelled []OnSubscriptionCancelled
	onPullPaymentExecuted   []OnPullPaymentExecuted
	onRegistryUpdated       []OnRegistryUpdated
	onExecutorGranted       []OnExecutorGranted
	onExecutorRevoked       []OnExecutorRevoked
	onUpkeepPerformed       []OnUpkeepPerformed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBillingModelCreated); ok {
		r.onBillingModelCreated = append(r.onBillingModelCreated, v)
	}
	if v, ok := p.(OnBillingModelEdited); ok {
		r.onBillingModelEdited = append(r.onBillingModelEdited, v)
	}
	if v, ok := p.(OnNewSubscription); ok {
		r.onNewSubscription = append(r.onNewSubscription, v)
	}
	if v, ok := p.(OnSubscriptionCancelled); ok {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v)
	}
	if v, ok := p.(OnPullPaymentExecuted); ok {
		r.onPullPaymentExecuted = append(r.onPullPaymentExecuted, v)
	}
	if v, ok := p.(OnRegistryUpdated); ok {
		r.onRegistryUpdated = append(r.onRegistryUpdated, v)
	}
	if v, ok := p.(OnExecutorGranted); ok {
		r.onExecutorGranted = append(r.onExecutorGranted, v)
	}
	if v, ok := p.(OnExecutorRevoked); ok {
		r.onExecutorRevoked = append(r.onExecutorRevoked, v)
	}
	if v, ok := p.(OnUpkeepPerformed); ok {
		r.onUpkeepPerformed = append(r.onUpkeepPerformed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnBillingModelCreated)(nil)).Elem(), "OnBillingModelCreated")
	checkInterface(reflect.TypeOf((*OnBillingModelEdited)(nil)).Elem(), "OnBillingModelEdited")
	checkInterface(reflect.TypeOf((*OnNewSubscription)(nil)).Elem(), "OnNewSubscription")
	checkInterface(reflect.TypeOf((*OnSubscriptionCancelled)(nil)).Elem(), "OnSubscriptionCancelled")
	checkInterface(reflect.TypeOf((*OnPullPaymentExecuted)(nil)).Elem(), "OnPullPaymentExecuted")
	checkInterface(reflect.TypeOf((*OnRegistryUpdated)(nil)).Elem(), "OnRegistryUpdated")
	checkInterface(reflect.TypeOf((*OnExecutorGranted)(nil)).Elem(), "OnExecutorGranted")
	checkInterface(reflect.TypeOf((*OnExecutorRevoked)(nil)).Elem(), "OnExecutorRevoked")
	checkInterface(reflect.TypeOf((*OnUpkeepPerformed)(nil)).Elem(), "OnUpkeepPerformed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBillingModelCreated emits a billing model created event.
func (r *Registry) EmitBillingModelCreated(ctx context.Context, model interface{}) {
	r.mu.RLock()
	plugins := r.onBillingModelCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBillingModelCreated(ctx, model)
		}); err != nil {
			r.logger.Warn("plugin OnBillingModelCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBillingModelEdited emits a billing model edited event.
func (r *Registry) EmitBillingModelEdited(ctx context.Context, model interface{}) {
	r.mu.RLock()
	plugins := r.onBillingModelEdited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBillingModelEdited(ctx, model)
		}); err != nil {
			r.logger.Warn("plugin OnBillingModelEdited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNewSubscription emits a new subscription event.
func (r *Registry) EmitNewSubscription(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onNewSubscription
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNewSubscription(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnNewSubscription failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCancelled emits a subscription cancelled event.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCancelled(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPullPaymentExecuted emits a pull payment executed event.
func (r *Registry) EmitPullPaymentExecuted(ctx context.Context, payment interface{}) {
	r.mu.RLock()
	plugins := r.onPullPaymentExecuted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPullPaymentExecuted(ctx, payment)
		}); err != nil {
			r.logger.Warn("plugin OnPullPaymentExecuted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRegistryUpdated emits a directory registration event.
func (r *Registry) EmitRegistryUpdated(ctx context.Context, identifier string, addr interface{}) {
	r.mu.RLock()
	plugins := r.onRegistryUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRegistryUpdated(ctx, identifier, addr)
		}); err != nil {
			r.logger.Warn("plugin OnRegistryUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExecutorGranted emits an executor granted event.
func (r *Registry) EmitExecutorGranted(ctx context.Context, executor interface{}) {
	r.mu.RLock()
	plugins := r.onExecutorGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExecutorGranted(ctx, executor)
		}); err != nil {
			r.logger.Warn("plugin OnExecutorGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExecutorRevoked emits an executor revoked event.
func (r *Registry) EmitExecutorRevoked(ctx context.Context, executor interface{}) {
	r.mu.RLock()
	plugins := r.onExecutorRevoked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExecutorRevoked(ctx, executor)
		}); err != nil {
			r.logger.Warn("plugin OnExecutorRevoked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUpkeepPerformed emits an upkeep performed event.
func (r *Registry) EmitUpkeepPerformed(ctx context.Context, executed, skipped, cancelled int) {
	r.mu.RLock()
	plugins := r.onUpkeepPerformed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUpkeepPerformed(ctx, executed, skipped, cancelled)
		}); err != nil {
			r.logger.Warn("plugin OnUpkeepPerformed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
