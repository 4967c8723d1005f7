package pullpay

import (
	"errors"

	"github.com/xraph/pullpay/executor"
	"github.com/xraph/pullpay/registry"
)

// Sentinel errors for all caller-visible failure scenarios. Every failure
// aborts the whole operation with no partial state mutation; there is no
// automatic retry inside the engine. Sentinels owned by subpackages are
// re-exported here so callers can depend on a single package.
var (
	// Validation errors (caller misuse)
	ErrInvalidPayee            = errors.New("pullpay: invalid payee address")
	ErrInvalidAmount           = errors.New("pullpay: invalid amount")
	ErrInvalidFrequency        = errors.New("pullpay: invalid frequency")
	ErrInvalidTrialPeriod      = errors.New("pullpay: invalid trial period")
	ErrInvalidInitialAmount    = errors.New("pullpay: invalid initial amount")
	ErrInvalidNumberOfPayments = errors.New("pullpay: invalid number of payments")
	ErrInvalidBillingModelID   = errors.New("pullpay: invalid billing model id")
	ErrInvalidSubscriptionID   = errors.New("pullpay: invalid subscription id")
	ErrInvalidPullPaymentID    = errors.New("pullpay: invalid pull payment id")
	ErrInvalidRecurringType    = errors.New("pullpay: invalid recurring pull payment type")
	ErrUnsupportedToken        = executor.ErrUnsupportedToken
	ErrReferenceExists         = errors.New("pullpay: reference already exists")
	ErrNameExists              = errors.New("pullpay: name already exists")
	ErrInvalidOperation        = errors.New("pullpay: invalid operation")

	// Authorization errors
	ErrInvalidEditor          = errors.New("pullpay: caller is not the payee")
	ErrInvalidCanceler        = errors.New("pullpay: caller may not cancel this subscription")
	ErrNotOwner               = registry.ErrNotOwner
	ErrInvalidExecutorAddress = errors.New("pullpay: invalid executor address")
	ErrExecutorAlreadyRevoked = errors.New("pullpay: executor already revoked")
	ErrIdentifierNotFound     = registry.ErrIdentifierNotFound

	// Temporal/state errors
	ErrInvalidExecutionTime = errors.New("pullpay: execution window not yet open")
	ErrPaymentsExceeded     = errors.New("pullpay: number of payments exceeded")
	ErrSubscriptionCanceled = errors.New("pullpay: subscription is canceled")

	// Conversion errors
	ErrNoSwapPath           = executor.ErrNoSwapPath
	ErrPaymentTokenUnusable = executor.ErrPaymentTokenNotSupported

	// Registry errors
	ErrInvalidFeeReceiver = registry.ErrInvalidFeeReceiver
	ErrInvalidFeeRate     = registry.ErrInvalidFeeRate
)

// reasonCodes maps sentinels to the canonical protocol reason strings.
// These strings are part of the observable surface; integrations match on
// them, so they must not change.
var reasonCodes = map[error]string{
	ErrInvalidPayee:            "INVALID_PAYEE_ADDRESS",
	ErrInvalidAmount:           "INVALID_AMOUNT",
	ErrInvalidFrequency:        "INVALID_FREQUENCY",
	ErrInvalidTrialPeriod:      "INVALID_TRIAL_PERIOD",
	ErrInvalidInitialAmount:    "INVALID_INITIAL_AMOUNT",
	ErrInvalidNumberOfPayments: "INVALID_NO_OF_PAYMENTS",
	ErrInvalidBillingModelID:   "INVALID_BILLING_MODEL_ID",
	ErrInvalidSubscriptionID:   "INVALID_SUBSCRIPTION_ID",
	ErrInvalidPullPaymentID:    "INVALID_PULLPAYMENT_ID",
	ErrInvalidRecurringType:    "INVALID_RECURRING_PP_TYPE",
	ErrUnsupportedToken:        "UNSUPPORTED_TOKEN",
	ErrReferenceExists:         "REFERENCE_ALREADY_EXISTS",
	ErrNameExists:              "NAME_EXISTS",
	ErrInvalidOperation:        "INVALID_OPERATION",
	ErrInvalidEditor:           "INVALID_EDITOR",
	ErrInvalidCanceler:         "INVALID_CANCELER",
	ErrNotOwner:                "CALLER_NOT_OWNER",
	ErrInvalidExecutorAddress:  "INVALID_EXECUTOR_ADDRESS",
	ErrExecutorAlreadyRevoked:  "EXECUTOR_ALREADY_REVOKED",
	ErrIdentifierNotFound:      "IDENTIFIER_NOT_REGISTERED",
	ErrInvalidExecutionTime:    "INVALID_EXECUTION_TIME",
	ErrPaymentsExceeded:        "NO_OF_PAYMENTS_EXCEEDED",
	ErrSubscriptionCanceled:    "SUBSCRIPTION_CANCELED",
	ErrNoSwapPath:              "NO_SWAP_PATH_EXISTS",
	ErrPaymentTokenUnusable:    "PAYMENT_TOKEN_NOT_SUPPORTED",
	ErrInvalidFeeReceiver:      "INVALID_FEE_RECEIVER",
	ErrInvalidFeeRate:          "INVALID_EXECUTION_FEE",
}

// ReasonCode returns the canonical reason string for a PullPay sentinel,
// or an empty string for unknown errors (including ledger errors, which
// pass through verbatim and carry no reason code).
func ReasonCode(err error) string {
	for sentinel, code := range reasonCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// IsValidation returns true if the error is caller misuse.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPayee) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrInvalidTrialPeriod) ||
		errors.Is(err, ErrInvalidInitialAmount) ||
		errors.Is(err, ErrInvalidNumberOfPayments) ||
		errors.Is(err, ErrInvalidBillingModelID) ||
		errors.Is(err, ErrInvalidSubscriptionID) ||
		errors.Is(err, ErrInvalidPullPaymentID) ||
		errors.Is(err, ErrInvalidRecurringType) ||
		errors.Is(err, ErrUnsupportedToken) ||
		errors.Is(err, ErrReferenceExists) ||
		errors.Is(err, ErrNameExists) ||
		errors.Is(err, ErrInvalidOperation)
}

// IsAuthorization returns true if the caller lacked authority.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrInvalidEditor) ||
		errors.Is(err, ErrInvalidCanceler) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrInvalidExecutorAddress) ||
		errors.Is(err, ErrExecutorAlreadyRevoked)
}

// IsTemporal returns true if the operation failed because of execution
// timing or terminal subscription state. Temporal errors are safe to
// retry on the next eligible window.
func IsTemporal(err error) bool {
	return errors.Is(err, ErrInvalidExecutionTime) ||
		errors.Is(err, ErrPaymentsExceeded) ||
		errors.Is(err, ErrSubscriptionCanceled)
}

// IsConversion returns true if the failure came from swap-path resolution.
func IsConversion(err error) bool {
	return errors.Is(err, ErrNoSwapPath) ||
		errors.Is(err, ErrPaymentTokenUnusable)
}
