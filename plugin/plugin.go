// Package plugin provides an extensible plugin system for PullPay.
// Plugins can hook into protocol events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Billing model hooks
// ──────────────────────────────────────────────────

// OnBillingModelCreated is called when a new billing model is created.
type OnBillingModelCreated interface {
	Plugin
	OnBillingModelCreated(ctx context.Context, model interface{}) error
}

// OnBillingModelEdited is called when a billing model's descriptive
// fields change.
type OnBillingModelEdited interface {
	Plugin
	OnBillingModelEdited(ctx context.Context, model interface{}) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnNewSubscription is called when a customer subscribes to a billing
// model.
type OnNewSubscription interface {
	Plugin
	OnNewSubscription(ctx context.Context, sub interface{}) error
}

// OnSubscriptionCancelled is called when a subscription reaches its
// terminal cancelled state.
type OnSubscriptionCancelled interface {
	Plugin
	OnSubscriptionCancelled(ctx context.Context, sub interface{}) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPullPaymentExecuted is called after a pull payment settles.
type OnPullPaymentExecuted interface {
	Plugin
	OnPullPaymentExecuted(ctx context.Context, payment interface{}) error
}

// ──────────────────────────────────────────────────
// Directory hooks
// ──────────────────────────────────────────────────

// OnRegistryUpdated is called when an engine is registered or replaced
// in the directory.
type OnRegistryUpdated interface {
	Plugin
	OnRegistryUpdated(ctx context.Context, identifier string, addr interface{}) error
}

// OnExecutorGranted is called when an executor account is granted.
type OnExecutorGranted interface {
	Plugin
	OnExecutorGranted(ctx context.Context, executor interface{}) error
}

// OnExecutorRevoked is called when an executor grant is revoked.
type OnExecutorRevoked interface {
	Plugin
	OnExecutorRevoked(ctx context.Context, executor interface{}) error
}

// ──────────────────────────────────────────────────
// Upkeep hooks
// ──────────────────────────────────────────────────

// OnUpkeepPerformed is called after an upkeep pass, with counts of
// executed, skipped and auto-cancelled subscriptions.
type OnUpkeepPerformed interface {
	Plugin
	OnUpkeepPerformed(ctx context.Context, executed, skipped, cancelled int) error
}
