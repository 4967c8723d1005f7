// Package billing defines the billing-model, subscription and pull-payment
// data model shared by the engine and its stores.
package billing

import (
	"math/big"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Kind selects the payment behavior of a billing model.
type Kind string

const (
	// KindSingle charges the full amount once, at subscribe time.
	KindSingle Kind = "single"
	// KindRecurring charges at subscribe time and then once per frequency.
	KindRecurring Kind = "recurring"
	// KindRecurringFreeTrial defers the first charge by the trial period.
	KindRecurringFreeTrial Kind = "recurring_free_trial"
	// KindRecurringPaidTrial charges a reduced initial amount, then the
	// full amount once per frequency after the trial period.
	KindRecurringPaidTrial Kind = "recurring_paid_trial"
)

// IsRecurring reports whether the kind has repeat payment cycles.
func (k Kind) IsRecurring() bool { return k != KindSingle }

// HasTrial reports whether the kind defers the first full charge.
func (k Kind) HasTrial() bool {
	return k == KindRecurringFreeTrial || k == KindRecurringPaidTrial
}

// RecurringType selects the sub-behavior of a dynamic recurring billing
// model, recorded at model creation.
type RecurringType uint8

const (
	// RecurringNormal charges immediately and then once per frequency.
	RecurringNormal RecurringType = 1
	// RecurringFreeTrial defers the first charge by the trial period.
	RecurringFreeTrial RecurringType = 2
	// RecurringPaidTrial charges the initial amount up front.
	RecurringPaidTrial RecurringType = 3
)

// Valid reports whether the type is one of the three defined behaviors.
func (t RecurringType) Valid() bool {
	return t >= RecurringNormal && t <= RecurringPaidTrial
}

// Kind maps a dynamic recurring type onto the equivalent engine kind.
func (t RecurringType) Kind() Kind {
	switch t {
	case RecurringFreeTrial:
		return KindRecurringFreeTrial
	case RecurringPaidTrial:
		return KindRecurringPaidTrial
	default:
		return KindRecurring
	}
}

// BillingModel is a merchant-defined payment template that subscribers
// attach to. IDs are sequential and 1-based per engine; 0 is reserved.
type BillingModel struct {
	types.Entity
	ID              uint64        `json:"id"`
	Payee           types.Address `json:"payee"`
	Name            string        `json:"name"`
	MerchantName    string        `json:"merchant_name"`
	UniqueReference string        `json:"unique_reference"`
	MerchantURL     string        `json:"merchant_url"`

	// Amount is the settlement amount per payment cycle. Nil for
	// single-dynamic models, where the subscriber supplies it.
	Amount          *big.Int      `json:"amount,omitempty"`
	SettlementToken types.Address `json:"settlement_token"`

	// Frequency and NumberOfPayments apply to recurring kinds only.
	Frequency        uint64 `json:"frequency,omitempty"`
	NumberOfPayments uint64 `json:"number_of_payments,omitempty"`

	// TrialPeriod applies to trial kinds; InitialAmount to paid trials.
	TrialPeriod   uint64   `json:"trial_period,omitempty"`
	InitialAmount *big.Int `json:"initial_amount,omitempty"`

	// RecurringType is set on dynamic recurring models only.
	RecurringType RecurringType `json:"recurring_pp_type,omitempty"`

	CreationTime    int64    `json:"creation_time"`
	SubscriptionIDs []uint64 `json:"subscription_ids"`
}

// Subscription is a customer's live instantiation of a billing model.
type Subscription struct {
	types.Entity
	ID             uint64        `json:"id"`
	BillingModelID uint64        `json:"billing_model_id"`
	Subscriber     types.Address `json:"subscriber"`

	PaymentToken    types.Address `json:"payment_token"`
	SettlementToken types.Address `json:"settlement_token"`
	Amount          *big.Int      `json:"amount"`

	StartTimestamp       int64 `json:"start_timestamp"`
	NextPaymentTimestamp int64 `json:"next_payment_timestamp"`
	LastPaymentTimestamp int64 `json:"last_payment_timestamp"`

	// CancelTimestamp is 0 while the subscription is active. Once set the
	// subscription is terminal and immutable.
	CancelTimestamp int64         `json:"cancel_timestamp"`
	CancelledBy     types.Address `json:"cancelled_by"`

	TotalPayments     uint64 `json:"total_payments"`
	RemainingPayments uint64 `json:"remaining_payments"`

	// Copies for dynamic models, recorded at subscribe time.
	Frequency     uint64        `json:"frequency,omitempty"`
	TrialPeriod   uint64        `json:"trial_period,omitempty"`
	InitialAmount *big.Int      `json:"initial_amount,omitempty"`
	RecurringType RecurringType `json:"recurring_pp_type,omitempty"`

	// UpkeepDisabled marks a subscription the scheduler gave up on after
	// the grace window elapsed without funds.
	UpkeepDisabled bool `json:"upkeep_disabled,omitempty"`

	PullPaymentIDs  []uint64 `json:"pull_payment_ids"`
	UniqueReference string   `json:"unique_reference"`
}

// Cancelled reports whether the subscription is terminal.
func (s *Subscription) Cancelled() bool { return s.CancelTimestamp != 0 }

// Exhausted reports whether all allowed payment cycles have executed.
func (s *Subscription) Exhausted() bool { return s.RemainingPayments == 0 }

// TrialEnded reports whether the trial window has elapsed at the given
// unix timestamp. Only meaningful while no payment has executed yet.
func (s *Subscription) TrialEnded(now int64) bool {
	return now >= s.NextPaymentTimestamp
}

// PullPayment is an execution receipt. Receipts are reserved as
// placeholders at subscribe time for recurring variants (pre-reserving the
// id) and finalized at execution time.
type PullPayment struct {
	types.Entity
	ID             uint64       `json:"id"`
	Ref            id.ReceiptID `json:"ref"`
	BillingModelID uint64       `json:"billing_model_id"`
	SubscriptionID uint64       `json:"subscription_id"`

	// Amount and ExecutionTimestamp stay zero until the payment executes.
	Amount             *big.Int `json:"amount,omitempty"`
	ExecutionTimestamp int64    `json:"execution_timestamp"`
}

// Executed reports whether the receipt has been finalized.
func (p *PullPayment) Executed() bool { return p.ExecutionTimestamp != 0 }
