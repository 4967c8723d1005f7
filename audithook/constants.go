package audithook

// Action constants for audit events.
const (
	// Billing model actions
	ActionBillingModelCreated = "billing_model.created"
	ActionBillingModelEdited  = "billing_model.edited"

	// Subscription actions
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionCancelled = "subscription.cancelled"

	// Pull payment actions
	ActionPullPaymentExecuted = "pull_payment.executed"

	// Directory actions
	ActionRegistryUpdated = "registry.updated"
	ActionExecutorGranted = "executor.granted"
	ActionExecutorRevoked = "executor.revoked"

	// Keeper actions
	ActionUpkeepPerformed = "upkeep.performed"
)

// Resource constants for audit events.
const (
	ResourceBillingModel = "billing_model"
	ResourceSubscription = "subscription"
	ResourcePullPayment  = "pull_payment"
	ResourceDirectory    = "directory"
	ResourceExecutor     = "executor"
	ResourceUpkeep       = "upkeep"
)

// Category constants for audit events.
const (
	CategoryBilling   = "billing"
	CategoryPayment   = "payment"
	CategoryDirectory = "directory"
	CategoryKeeper    = "keeper"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
