package postgres

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Row keys are "<engine_id>:<entity_id>" so every engine keeps its own
// sequential id space inside one table.
func rowKey(engineID string, entityID uint64) string {
	return fmt.Sprintf("%s:%d", engineID, entityID)
}

// ==================== Billing model rows ====================

type billingModelRow struct {
	grove.BaseModel `grove:"table:pullpay_billing_models"`

	Key              string          `grove:"key,pk"`
	EngineID         string          `grove:"engine_id"`
	ModelID          int64           `grove:"model_id"`
	Payee            string          `grove:"payee"`
	Name             string          `grove:"name"`
	MerchantName     string          `grove:"merchant_name"`
	UniqueReference  string          `grove:"unique_reference"`
	MerchantURL      string          `grove:"merchant_url"`
	Amount           string          `grove:"amount"`
	SettlementToken  string          `grove:"settlement_token"`
	Frequency        int64           `grove:"frequency"`
	NumberOfPayments int64           `grove:"number_of_payments"`
	TrialPeriod      int64           `grove:"trial_period"`
	InitialAmount    string          `grove:"initial_amount"`
	RecurringType    int16           `grove:"recurring_type"`
	CreationTime     int64           `grove:"creation_time"`
	SubscriptionIDs  json.RawMessage `grove:"subscription_ids,type:jsonb"`
	CreatedAt        time.Time       `grove:"created_at"`
	UpdatedAt        time.Time       `grove:"updated_at"`
}

func toBillingModelRow(engineID string, m *billing.BillingModel) *billingModelRow {
	subIDs, _ := json.Marshal(m.SubscriptionIDs) //nolint:errcheck // best-effort

	return &billingModelRow{
		Key:              rowKey(engineID, m.ID),
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
		SubscriptionIDs:  subIDs,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fromBillingModelRow(r *billingModelRow) (*billing.BillingModel, error) {
	amount, err := decodeAmount(r.Amount)
	if err != nil {
		return nil, err
	}
	initialAmount, err := decodeAmount(r.InitialAmount)
	if err != nil {
		return nil, err
	}

	var subIDs []uint64
	if len(r.SubscriptionIDs) > 0 {
		_ = json.Unmarshal(r.SubscriptionIDs, &subIDs) //nolint:errcheck // best-effort
	}

	return &billing.BillingModel{
		Entity: types.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:               uint64(r.ModelID),
		Payee:            types.HexToAddress(r.Payee),
		Name:             r.Name,
		MerchantName:     r.MerchantName,
		UniqueReference:  r.UniqueReference,
		MerchantURL:      r.MerchantURL,
		Amount:           amount,
		SettlementToken:  types.HexToAddress(r.SettlementToken),
		Frequency:        uint64(r.Frequency),
		NumberOfPayments: uint64(r.NumberOfPayments),
		TrialPeriod:      uint64(r.TrialPeriod),
		InitialAmount:    initialAmount,
		RecurringType:    billing.RecurringType(r.RecurringType),
		CreationTime:     r.CreationTime,
		SubscriptionIDs:  subIDs,
	}, nil
}

// ==================== Subscription rows ====================

type subscriptionRow struct {
	grove.BaseModel `grove:"table:pullpay_subscriptions"`

	Key                  string          `grove:"key,pk"`
	EngineID             string          `grove:"engine_id"`
	SubscriptionID       int64           `grove:"subscription_id"`
	BillingModelID       int64           `grove:"billing_model_id"`
	Subscriber           string          `grove:"subscriber"`
	PaymentToken         string          `grove:"payment_token"`
	SettlementToken      string          `grove:"settlement_token"`
	Amount               string          `grove:"amount"`
	StartTimestamp       int64           `grove:"start_timestamp"`
	NextPaymentTimestamp int64           `grove:"next_payment_timestamp"`
	LastPaymentTimestamp int64           `grove:"last_payment_timestamp"`
	CancelTimestamp      int64           `grove:"cancel_timestamp"`
	CancelledBy          string          `grove:"cancelled_by"`
	TotalPayments        int64           `grove:"total_payments"`
	RemainingPayments    int64           `grove:"remaining_payments"`
	Frequency            int64           `grove:"frequency"`
	TrialPeriod          int64           `grove:"trial_period"`
	InitialAmount        string          `grove:"initial_amount"`
	RecurringType        int16           `grove:"recurring_type"`
	UpkeepDisabled       bool            `grove:"upkeep_disabled"`
	PullPaymentIDs       json.RawMessage `grove:"pull_payment_ids,type:jsonb"`
	UniqueReference      string          `grove:"unique_reference"`
	CreatedAt            time.Time       `grove:"created_at"`
	UpdatedAt            time.Time       `grove:"updated_at"`
}

func toSubscriptionRow(engineID string, s *billing.Subscription) *subscriptionRow {
	payIDs, _ := json.Marshal(s.PullPaymentIDs) //nolint:errcheck // best-effort

	return &subscriptionRow{
		Key:                  rowKey(engineID, s.ID),
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
		PullPaymentIDs:       payIDs,
		UniqueReference:      s.UniqueReference,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func fromSubscriptionRow(r *subscriptionRow) (*billing.Subscription, error) {
	amount, err := decodeAmount(r.Amount)
	if err != nil {
		return nil, err
	}
	initialAmount, err := decodeAmount(r.InitialAmount)
	if err != nil {
		return nil, err
	}

	var payIDs []uint64
	if len(r.PullPaymentIDs) > 0 {
		_ = json.Unmarshal(r.PullPaymentIDs, &payIDs) //nolint:errcheck // best-effort
	}

	return &billing.Subscription{
		Entity: types.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:                   uint64(r.SubscriptionID),
		BillingModelID:       uint64(r.BillingModelID),
		Subscriber:           types.HexToAddress(r.Subscriber),
		PaymentToken:         types.HexToAddress(r.PaymentToken),
		SettlementToken:      types.HexToAddress(r.SettlementToken),
		Amount:               amount,
		StartTimestamp:       r.StartTimestamp,
		NextPaymentTimestamp: r.NextPaymentTimestamp,
		LastPaymentTimestamp: r.LastPaymentTimestamp,
		CancelTimestamp:      r.CancelTimestamp,
		CancelledBy:          types.HexToAddress(r.CancelledBy),
		TotalPayments:        uint64(r.TotalPayments),
		RemainingPayments:    uint64(r.RemainingPayments),
		Frequency:            uint64(r.Frequency),
		TrialPeriod:          uint64(r.TrialPeriod),
		InitialAmount:        initialAmount,
		RecurringType:        billing.RecurringType(r.RecurringType),
		UpkeepDisabled:       r.UpkeepDisabled,
		PullPaymentIDs:       payIDs,
		UniqueReference:      r.UniqueReference,
	}, nil
}

// ==================== Pull payment rows ====================

type pullPaymentRow struct {
	grove.BaseModel `grove:"table:pullpay_pull_payments"`

	Key                string    `grove:"key,pk"`
	EngineID           string    `grove:"engine_id"`
	PaymentID          int64     `grove:"payment_id"`
	Ref                string    `grove:"ref"`
	BillingModelID     int64     `grove:"billing_model_id"`
	SubscriptionID     int64     `grove:"subscription_id"`
	Amount             string    `grove:"amount"`
	ExecutionTimestamp int64     `grove:"execution_timestamp"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func toPullPaymentRow(engineID string, p *billing.PullPayment) *pullPaymentRow {
	return &pullPaymentRow{
		Key:                rowKey(engineID, p.ID),
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

func fromPullPaymentRow(r *pullPaymentRow) (*billing.PullPayment, error) {
	amount, err := decodeAmount(r.Amount)
	if err != nil {
		return nil, err
	}

	ref, err := id.ParseReceiptID(r.Ref)
	if err != nil {
		return nil, err
	}

	return &billing.PullPayment{
		Entity: types.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:                 uint64(r.PaymentID),
		Ref:                ref,
		BillingModelID:     uint64(r.BillingModelID),
		SubscriptionID:     uint64(r.SubscriptionID),
		Amount:             amount,
		ExecutionTimestamp: r.ExecutionTimestamp,
	}, nil
}

// ==================== Amount encoding ====================

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
		return nil, fmt.Errorf("pullpay/postgres: malformed amount %q", s)
	}
	return v, nil
}
