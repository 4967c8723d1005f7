package pullpay

import (
	"math/big"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Event names. These strings are part of the observable surface;
// integrations match on them, so they must not change.
const (
	EventBillingModelCreated   = "BillingModelCreated"
	EventBillingModelEdited    = "BillingModelEdited"
	EventNewSubscription       = "NewSubscription"
	EventPullPaymentExecuted   = "PullPaymentExecuted"
	EventSubscriptionCancelled = "SubscriptionCancelled"
	EventRegistryUpdated       = "RegistryUpdated"
	EventExecutorGranted       = "ExecutorGranted"
	EventExecutorRevoked       = "ExecutorRevoked"
)

// Event is the envelope delivered to plugin hooks and audit recorders.
type Event struct {
	ID        id.EventID  `json:"id"`
	Name      string      `json:"name"`
	Engine    string      `json:"engine"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// newEvent stamps an envelope with a fresh event id.
func newEvent(name, engine string, ts int64, payload interface{}) Event {
	return Event{
		ID:        id.NewEventID(),
		Name:      name,
		Engine:    engine,
		Timestamp: ts,
		Payload:   payload,
	}
}

// BillingModelEditedPayload carries the payee transition alongside the
// edited model id.
type BillingModelEditedPayload struct {
	BillingModelID uint64        `json:"billing_model_id"`
	OldPayee       types.Address `json:"old_payee"`
	NewPayee       types.Address `json:"new_payee"`
	Name           string        `json:"name"`
}

// PullPaymentExecutedPayload summarizes a settled payment.
type PullPaymentExecutedPayload struct {
	BillingModelID   uint64        `json:"billing_model_id"`
	SubscriptionID   uint64        `json:"subscription_id"`
	PullPaymentID    uint64        `json:"pull_payment_id"`
	Ref              id.ReceiptID  `json:"ref"`
	Payer            types.Address `json:"payer"`
	Payee            types.Address `json:"payee"`
	PaymentToken     types.Address `json:"payment_token"`
	SettlementToken  types.Address `json:"settlement_token"`
	UserPaid         *big.Int      `json:"user_paid"`
	MerchantReceived *big.Int      `json:"merchant_received"`
	Fee              *big.Int      `json:"fee"`
}
