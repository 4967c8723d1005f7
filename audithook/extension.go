// Package audithook bridges pull-payment lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/pullpay/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnBillingModelCreated   = (*Extension)(nil)
	_ plugin.OnBillingModelEdited    = (*Extension)(nil)
	_ plugin.OnNewSubscription       = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled = (*Extension)(nil)
	_ plugin.OnPullPaymentExecuted   = (*Extension)(nil)
	_ plugin.OnRegistryUpdated       = (*Extension)(nil)
	_ plugin.OnExecutorGranted       = (*Extension)(nil)
	_ plugin.OnExecutorRevoked       = (*Extension)(nil)
	_ plugin.OnUpkeepPerformed       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audithook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges pull-payment lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Billing model lifecycle hooks
// ──────────────────────────────────────────────────

// OnBillingModelCreated implements plugin.OnBillingModelCreated.
func (e *Extension) OnBillingModelCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionBillingModelCreated, SeverityInfo, OutcomeSuccess,
		ResourceBillingModel, "", CategoryBilling, nil,
		"event", "billing_model_created",
	)
}

// OnBillingModelEdited implements plugin.OnBillingModelEdited.
func (e *Extension) OnBillingModelEdited(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionBillingModelEdited, SeverityInfo, OutcomeSuccess,
		ResourceBillingModel, "", CategoryBilling, nil,
		"event", "billing_model_edited",
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnNewSubscription implements plugin.OnNewSubscription.
func (e *Extension) OnNewSubscription(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, "", CategoryBilling, nil,
		"event", "subscription_created",
	)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionCancelled, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, "", CategoryBilling, nil,
		"event", "subscription_cancelled",
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPullPaymentExecuted implements plugin.OnPullPaymentExecuted.
func (e *Extension) OnPullPaymentExecuted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionPullPaymentExecuted, SeverityInfo, OutcomeSuccess,
		ResourcePullPayment, "", CategoryPayment, nil,
		"event", "pull_payment_executed",
	)
}

// ──────────────────────────────────────────────────
// Directory hooks
// ──────────────────────────────────────────────────

// OnRegistryUpdated implements plugin.OnRegistryUpdated.
func (e *Extension) OnRegistryUpdated(ctx context.Context, identifier string, _ interface{}) error {
	return e.record(ctx, ActionRegistryUpdated, SeverityInfo, OutcomeSuccess,
		ResourceDirectory, identifier, CategoryDirectory, nil,
		"identifier", identifier,
	)
}

// OnExecutorGranted implements plugin.OnExecutorGranted.
func (e *Extension) OnExecutorGranted(ctx context.Context, executor interface{}) error {
	return e.record(ctx, ActionExecutorGranted, SeverityInfo, OutcomeSuccess,
		ResourceExecutor, fmt.Sprintf("%v", executor), CategoryDirectory, nil,
		"executor", fmt.Sprintf("%v", executor),
	)
}

// OnExecutorRevoked implements plugin.OnExecutorRevoked.
func (e *Extension) OnExecutorRevoked(ctx context.Context, executor interface{}) error {
	return e.record(ctx, ActionExecutorRevoked, SeverityWarning, OutcomeSuccess,
		ResourceExecutor, fmt.Sprintf("%v", executor), CategoryDirectory, nil,
		"executor", fmt.Sprintf("%v", executor),
	)
}

// ──────────────────────────────────────────────────
// Keeper hooks
// ──────────────────────────────────────────────────

// OnUpkeepPerformed implements plugin.OnUpkeepPerformed.
func (e *Extension) OnUpkeepPerformed(ctx context.Context, executed, skipped, cancelled int) error {
	severity := SeverityInfo
	if cancelled > 0 {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionUpkeepPerformed, severity, OutcomeSuccess,
		ResourceUpkeep, "", CategoryKeeper, nil,
		"executed", executed,
		"skipped", skipped,
		"cancelled", cancelled,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
