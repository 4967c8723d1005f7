package mongo

import (
	"fmt"
	"math/big"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Document ids are "<engine_id>:<entity_id>" so every engine keeps its own
// sequential id space inside one collection.
func docKey(engineID string, entityID uint64) string {
	return fmt.Sprintf("%s:%d", engineID, entityID)
}

// ==================== Billing model documents ====================

type billingModelDoc struct {
	grove.BaseModel `grove:"table:pullpay_billing_models"`

	Key              string    `grove:"id,pk"             bson:"_id"`
	EngineID         string    `grove:"engine_id"         bson:"engine_id"`
	ModelID          int64     `grove:"model_id"          bson:"model_id"`
	Payee            string    `grove:"payee"             bson:"payee"`
	Name             string    `grove:"name"              bson:"name"`
	MerchantName     string    `grove:"merchant_name"     bson:"merchant_name"`
	UniqueReference  string    `grove:"unique_reference"  bson:"unique_reference"`
	MerchantURL      string    `grove:"merchant_url"      bson:"merchant_url"`
	Amount           string    `grove:"amount"            bson:"amount"`
	SettlementToken  string    `grove:"settlement_token"  bson:"settlement_token"`
	Frequency        int64     `grove:"frequency"         bson:"frequency"`
	NumberOfPayments int64     `grove:"number_of_payments" bson:"number_of_payments"`
	TrialPeriod      int64     `grove:"trial_period"      bson:"trial_period"`
	InitialAmount    string    `grove:"initial_amount"    bson:"initial_amount"`
	RecurringType    int16     `grove:"recurring_type"    bson:"recurring_type"`
	CreationTime     int64     `grove:"creation_time"     bson:"creation_time"`
	SubscriptionIDs  []int64   `grove:"subscription_ids"  bson:"subscription_ids,omitempty"`
	CreatedAt        time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toBillingModelDoc(engineID string, m *billing.BillingModel) *billingModelDoc {
	return &billingModelDoc{
		Key:              docKey(engineID, m.ID),
		EngineID:         engineID,
		ModelID:          int64(m.ID),
		Payee:            m.Payee.Hex(),
		Name:             m.Name,
		MerchantName:     m.MerchantName,
		UniqueReference:  m.UniqueReference,
		MerchantURL:      m.MerchantURL,
		Amount:           encodeAmount(m.Amount),
		SettlementToken:  m.SettlementToken.Hex(),
		Frequency:        int64(m.Frequency),
		NumberOfPayments: int64(m.NumberOfPayments),
		TrialPeriod:      int64(m.TrialPeriod),
		InitialAmount:    encodeAmount(m.InitialAmount),
		RecurringType:    int16(m.RecurringType),
		CreationTime:     m.CreationTime,
		SubscriptionIDs:  encodeIDs(m.SubscriptionIDs),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fromBillingModelDoc(d *billingModelDoc) (*billing.BillingModel, error) {
	amount, err := decodeAmount(d.Amount)
	if err != nil {
		return nil, err
	}
	initialAmount, err := decodeAmount(d.InitialAmount)
	if err != nil {
		return nil, err
	}

	return &billing.BillingModel{
		Entity: types.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:               uint64(d.ModelID),
		Payee:            types.HexToAddress(d.Payee),
		Name:             d.Name,
		MerchantName:     d.MerchantName,
		UniqueReference:  d.UniqueReference,
		MerchantURL:      d.MerchantURL,
		Amount:           amount,
		SettlementToken:  types.HexToAddress(d.SettlementToken),
		Frequency:        uint64(d.Frequency),
		NumberOfPayments: uint64(d.NumberOfPayments),
		TrialPeriod:      uint64(d.TrialPeriod),
		InitialAmount:    initialAmount,
		RecurringType:    billing.RecurringType(d.RecurringType),
		CreationTime:     d.CreationTime,
		SubscriptionIDs:  decodeIDs(d.SubscriptionIDs),
	}, nil
}

// ==================== Subscription documents ====================

type subscriptionDoc struct {
	grove.BaseModel `grove:"table:pullpay_subscriptions"`

	Key                  string    `grove:"id,pk"                 bson:"_id"`
	EngineID             string    `grove:"engine_id"             bson:"engine_id"`
	SubscriptionID       int64     `grove:"subscription_id"       bson:"subscription_id"`
	BillingModelID       int64     `grove:"billing_model_id"      bson:"billing_model_id"`
	Subscriber           string    `grove:"subscriber"            bson:"subscriber"`
	PaymentToken         string    `grove:"payment_token"         bson:"payment_token"`
	SettlementToken      string    `grove:"settlement_token"      bson:"settlement_token"`
	Amount               string    `grove:"amount"                bson:"amount"`
	StartTimestamp       int64     `grove:"start_timestamp"       bson:"start_timestamp"`
	NextPaymentTimestamp int64     `grove:"next_payment_timestamp" bson:"next_payment_timestamp"`
	LastPaymentTimestamp int64     `grove:"last_payment_timestamp" bson:"last_payment_timestamp"`
	CancelTimestamp      int64     `grove:"cancel_timestamp"      bson:"cancel_timestamp"`
	CancelledBy          string    `grove:"cancelled_by"          bson:"cancelled_by"`
	TotalPayments        int64     `grove:"total_payments"        bson:"total_payments"`
	RemainingPayments    int64     `grove:"remaining_payments"    bson:"remaining_payments"`
	Frequency            int64     `grove:"frequency"             bson:"frequency"`
	TrialPeriod          int64     `grove:"trial_period"          bson:"trial_period"`
	InitialAmount        string    `grove:"initial_amount"        bson:"initial_amount"`
	RecurringType        int16     `grove:"recurring_type"        bson:"recurring_type"`
	UpkeepDisabled       bool      `grove:"upkeep_disabled"       bson:"upkeep_disabled"`
	PullPaymentIDs       []int64   `grove:"pull_payment_ids"      bson:"pull_payment_ids,omitempty"`
	UniqueReference      string    `grove:"unique_reference"      bson:"unique_reference"`
	CreatedAt            time.Time `grove:"created_at"            bson:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"            bson:"updated_at"`
}

func toSubscriptionDoc(engineID string, s *billing.Subscription) *subscriptionDoc {
	return &subscriptionDoc{
		Key:                  docKey(engineID, s.ID),
		EngineID:             engineID,
		SubscriptionID:       int64(s.ID),
		BillingModelID:       int64(s.BillingModelID),
		Subscriber:           s.Subscriber.Hex(),
		PaymentToken:         s.PaymentToken.Hex(),
		SettlementToken:      s.SettlementToken.Hex(),
		Amount:               encodeAmount(s.Amount),
		StartTimestamp:       s.StartTimestamp,
		NextPaymentTimestamp: s.NextPaymentTimestamp,
		LastPaymentTimestamp: s.LastPaymentTimestamp,
		CancelTimestamp:      s.CancelTimestamp,
		CancelledBy:          s.CancelledBy.Hex(),
		TotalPayments:        int64(s.TotalPayments),
		RemainingPayments:    int64(s.RemainingPayments),
		Frequency:            int64(s.Frequency),
		TrialPeriod:          int64(s.TrialPeriod),
		InitialAmount:        encodeAmount(s.InitialAmount),
		RecurringType:        int16(s.RecurringType),
		UpkeepDisabled:       s.UpkeepDisabled,
		PullPaymentIDs:       encodeIDs(s.PullPaymentIDs),
		UniqueReference:      s.UniqueReference,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func fromSubscriptionDoc(d *subscriptionDoc) (*billing.Subscription, error) {
	amount, err := decodeAmount(d.Amount)
	if err != nil {
		return nil, err
	}
	initialAmount, err := decodeAmount(d.InitialAmount)
	if err != nil {
		return nil, err
	}

	return &billing.Subscription{
		Entity: types.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:                   uint64(d.SubscriptionID),
		BillingModelID:       uint64(d.BillingModelID),
		Subscriber:           types.HexToAddress(d.Subscriber),
		PaymentToken:         types.HexToAddress(d.PaymentToken),
		SettlementToken:      types.HexToAddress(d.SettlementToken),
		Amount:               amount,
		StartTimestamp:       d.StartTimestamp,
		NextPaymentTimestamp: d.NextPaymentTimestamp,
		LastPaymentTimestamp: d.LastPaymentTimestamp,
		CancelTimestamp:      d.CancelTimestamp,
		CancelledBy:          types.HexToAddress(d.CancelledBy),
		TotalPayments:        uint64(d.TotalPayments),
		RemainingPayments:    uint64(d.RemainingPayments),
		Frequency:            uint64(d.Frequency),
		TrialPeriod:          uint64(d.TrialPeriod),
		InitialAmount:        initialAmount,
		RecurringType:        billing.RecurringType(d.RecurringType),
		UpkeepDisabled:       d.UpkeepDisabled,
		PullPaymentIDs:       decodeIDs(d.PullPaymentIDs),
		UniqueReference:      d.UniqueReference,
	}, nil
}

// ==================== Pull payment documents ====================

type pullPaymentDoc struct {
	grove.BaseModel `grove:"table:pullpay_pull_payments"`

	Key                string    `grove:"id,pk"              bson:"_id"`
	EngineID           string    `grove:"engine_id"          bson:"engine_id"`
	PaymentID          int64     `grove:"payment_id"         bson:"payment_id"`
	Ref                string    `grove:"ref"                bson:"ref"`
	BillingModelID     int64     `grove:"billing_model_id"   bson:"billing_model_id"`
	SubscriptionID     int64     `grove:"subscription_id"    bson:"subscription_id"`
	Amount             string    `grove:"amount"             bson:"amount"`
	ExecutionTimestamp int64     `grove:"execution_timestamp" bson:"execution_timestamp"`
	CreatedAt          time.Time `grove:"created_at"         bson:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"         bson:"updated_at"`
}

func toPullPaymentDoc(engineID string, p *billing.PullPayment) *pullPaymentDoc {
	return &pullPaymentDoc{
		Key:                docKey(engineID, p.ID),
		EngineID:           engineID,
		PaymentID:          int64(p.ID),
		Ref:                p.Ref.String(),
		BillingModelID:     int64(p.BillingModelID),
		SubscriptionID:     int64(p.SubscriptionID),
		Amount:             encodeAmount(p.Amount),
		ExecutionTimestamp: p.ExecutionTimestamp,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func fromPullPaymentDoc(d *pullPaymentDoc) (*billing.PullPayment, error) {
	amount, err := decodeAmount(d.Amount)
	if err != nil {
		return nil, err
	}

	ref, err := id.ParseReceiptID(d.Ref)
	if err != nil {
		return nil, err
	}

	return &billing.PullPayment{
		Entity: types.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:                 uint64(d.PaymentID),
		Ref:                ref,
		BillingModelID:     uint64(d.BillingModelID),
		SubscriptionID:     uint64(d.SubscriptionID),
		Amount:             amount,
		ExecutionTimestamp: d.ExecutionTimestamp,
	}, nil
}

// ==================== Encoding helpers ====================

// Amounts travel as base-10 strings; the empty string means nil.

func encodeAmount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("pullpay/mongo: malformed amount %q", s)
	}
	return v, nil
}

func encodeIDs(ids []uint64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}

func decodeIDs(ids []int64) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint64, len(ids))
	for i, v := range ids {
		out[i] = uint64(v)
	}
	return out
}
