// Package observability provides a metrics extension that records
// pull-payment lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/pullpay/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnBillingModelCreated   = (*MetricsExtension)(nil)
	_ plugin.OnBillingModelEdited    = (*MetricsExtension)(nil)
	_ plugin.OnNewSubscription       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCancelled = (*MetricsExtension)(nil)
	_ plugin.OnPullPaymentExecuted   = (*MetricsExtension)(nil)
	_ plugin.OnRegistryUpdated       = (*MetricsExtension)(nil)
	_ plugin.OnExecutorGranted       = (*MetricsExtension)(nil)
	_ plugin.OnExecutorRevoked       = (*MetricsExtension)(nil)
	_ plugin.OnUpkeepPerformed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track payment metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Billing model metrics
	BillingModelCreated Counter
	BillingModelEdited  Counter

	// Subscription metrics
	SubscriptionCreated   Counter
	SubscriptionCancelled Counter

	// Payment metrics
	PullPaymentExecuted Counter

	// Directory metrics
	RegistryUpdated Counter
	ExecutorGranted Counter
	ExecutorRevoked Counter

	// Keeper metrics
	UpkeepRuns      Counter
	UpkeepExecuted  Counter
	UpkeepSkipped   Counter
	UpkeepCancelled Counter
	UpkeepBatchSize Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Billing model metrics
		BillingModelCreated: factory.Counter("pullpay.billing_model.created"),
		BillingModelEdited:  factory.Counter("pullpay.billing_model.edited"),

		// Subscription metrics
		SubscriptionCreated:   factory.Counter("pullpay.subscription.created"),
		SubscriptionCancelled: factory.Counter("pullpay.subscription.cancelled"),

		// Payment metrics
		PullPaymentExecuted: factory.Counter("pullpay.pull_payment.executed"),

		// Directory metrics
		RegistryUpdated: factory.Counter("pullpay.registry.updated"),
		ExecutorGranted: factory.Counter("pullpay.executor.granted"),
		ExecutorRevoked: factory.Counter("pullpay.executor.revoked"),

		// Keeper metrics
		UpkeepRuns:      factory.Counter("pullpay.upkeep.runs"),
		UpkeepExecuted:  factory.Counter("pullpay.upkeep.executed"),
		UpkeepSkipped:   factory.Counter("pullpay.upkeep.skipped"),
		UpkeepCancelled: factory.Counter("pullpay.upkeep.cancelled"),
		UpkeepBatchSize: factory.Histogram("pullpay.upkeep.batch.size"),

		// Error metrics
		StoreErrors:  factory.Counter("pullpay.store.errors"),
		PluginErrors: factory.Counter("pullpay.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Billing model lifecycle hooks
// ──────────────────────────────────────────────────

// OnBillingModelCreated implements plugin.OnBillingModelCreated.
func (m *MetricsExtension) OnBillingModelCreated(_ context.Context, _ interface{}) error {
	m.BillingModelCreated.Inc()
	return nil
}

// OnBillingModelEdited implements plugin.OnBillingModelEdited.
func (m *MetricsExtension) OnBillingModelEdited(_ context.Context, _ interface{}) error {
	m.BillingModelEdited.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnNewSubscription implements plugin.OnNewSubscription.
func (m *MetricsExtension) OnNewSubscription(_ context.Context, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (m *MetricsExtension) OnSubscriptionCancelled(_ context.Context, _ interface{}) error {
	m.SubscriptionCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPullPaymentExecuted implements plugin.OnPullPaymentExecuted.
func (m *MetricsExtension) OnPullPaymentExecuted(_ context.Context, _ interface{}) error {
	m.PullPaymentExecuted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Directory hooks
// ──────────────────────────────────────────────────

// OnRegistryUpdated implements plugin.OnRegistryUpdated.
func (m *MetricsExtension) OnRegistryUpdated(_ context.Context, _ string, _ interface{}) error {
	m.RegistryUpdated.Inc()
	return nil
}

// OnExecutorGranted implements plugin.OnExecutorGranted.
func (m *MetricsExtension) OnExecutorGranted(_ context.Context, _ interface{}) error {
	m.ExecutorGranted.Inc()
	return nil
}

// OnExecutorRevoked implements plugin.OnExecutorRevoked.
func (m *MetricsExtension) OnExecutorRevoked(_ context.Context, _ interface{}) error {
	m.ExecutorRevoked.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Keeper hooks
// ──────────────────────────────────────────────────

// OnUpkeepPerformed implements plugin.OnUpkeepPerformed.
func (m *MetricsExtension) OnUpkeepPerformed(_ context.Context, executed, skipped, cancelled int) error {
	m.UpkeepRuns.Inc()
	m.UpkeepExecuted.Add(float64(executed))
	m.UpkeepSkipped.Add(float64(skipped))
	m.UpkeepCancelled.Add(float64(cancelled))
	m.UpkeepBatchSize.Observe(float64(executed + skipped + cancelled))
	return nil
}
