// Package pullpay implements a recurring pull-payment protocol engine:
// merchant billing models, customer subscriptions, interval-gated payment
// execution with optional AMM token conversion, and keeper-style upkeep
// scheduling.
package pullpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/executor"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

// Version is the protocol version reported by every engine.
const Version = "2.2.0"

// engineNames are the canonical identifiers per kind. They seed the
// store namespace and generated references, so existing deployments must
// not see them change.
var engineNames = map[billing.Kind]string{
	billing.KindSingle:             "SinglePullPayment",
	billing.KindRecurring:          "RecurringPullPayment",
	billing.KindRecurringFreeTrial: "RecurringPullPaymentWithFreeTrial",
	billing.KindRecurringPaidTrial: "RecurringPullPaymentWithPaidTrial",
}

var dynamicEngineNames = map[billing.Kind]string{
	billing.KindSingle:    "SingleDynamicPullPayment",
	billing.KindRecurring: "RecurringDynamicPullPayment",
}

// Engine is the parameterized billing-model / subscription state machine.
// One engine instance serves one payment kind; all kinds share the same
// code path with the kind (and dynamic mode) selecting behavior.
//
// Every mutating operation validates fully before writing, so a failed
// call leaves no partial state.
type Engine struct {
	kind    billing.Kind
	dynamic bool
	name    string

	store    store.Store
	executor *executor.Executor
	registry *registry.Registry
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() int64

	mu sync.Mutex // serializes mutating operations
}

// NewEngine creates an engine for the given kind. Store, executor and
// registry are required collaborators, injected directly.
func NewEngine(kind billing.Kind, st store.Store, exec *executor.Executor, reg *registry.Registry, opts ...EngineOption) (*Engine, error) {
	if _, ok := engineNames[kind]; !ok {
		return nil, fmt.Errorf("pullpay: unknown kind %q", kind)
	}
	if st == nil {
		return nil, fmt.Errorf("pullpay: store is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("pullpay: executor is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("pullpay: registry is required")
	}

	e := &Engine{
		kind:     kind,
		store:    st,
		executor: exec,
		registry: reg,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		now:      defaultNow,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.dynamic && kind.HasTrial() {
		return nil, fmt.Errorf("pullpay: dynamic mode is selected per subscription, construct with kind %q", billing.KindRecurring)
	}
	if e.name == "" {
		if e.dynamic {
			e.name = dynamicEngineNames[kind]
		} else {
			e.name = engineNames[kind]
		}
	}

	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return e.name }

// Kind returns the engine's billing kind.
func (e *Engine) Kind() billing.Kind { return e.kind }

// Dynamic reports whether the engine is in dynamic mode.
func (e *Engine) Dynamic() bool { return e.dynamic }

// effectiveKind resolves the behavior kind for a model. Dynamic recurring
// engines follow the recurring type recorded on the model.
func (e *Engine) effectiveKind(m *billing.BillingModel) billing.Kind {
	if e.dynamic && e.kind.IsRecurring() {
		return m.RecurringType.Kind()
	}
	return e.kind
}

// ──────────────────────────────────────────────────
// Billing models
// ──────────────────────────────────────────────────

// ModelSpec describes a billing model to create. Dynamic engines only
// read Payee, the descriptive fields and (for recurring) RecurringType;
// the subscriber supplies the rest at subscribe time.
type ModelSpec struct {
	Payee           types.Address
	Name            string
	MerchantName    string
	MerchantURL     string
	UniqueReference string

	Amount          *big.Int
	SettlementToken types.Address

	Frequency        uint64
	NumberOfPayments uint64
	TrialPeriod      uint64
	InitialAmount    *big.Int

	RecurringType billing.RecurringType
}

// CreateBillingModel validates and persists a new billing model.
func (e *Engine) CreateBillingModel(ctx context.Context, caller types.Address, spec ModelSpec) (*billing.BillingModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if spec.Payee == types.ZeroAddress {
		return nil, ErrInvalidPayee
	}

	if e.dynamic {
		if e.kind.IsRecurring() && !spec.RecurringType.Valid() {
			return nil, ErrInvalidRecurringType
		}
	} else {
		if err := e.validateTerms(e.kind, spec.Amount, spec.SettlementToken, spec.Frequency, spec.NumberOfPayments, spec.TrialPeriod, spec.InitialAmount); err != nil {
			return nil, err
		}
	}

	if spec.UniqueReference != "" {
		if _, err := e.store.GetBillingModelByReference(ctx, e.name, spec.UniqueReference); err == nil {
			return nil, ErrReferenceExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	modelID, err := e.store.NextBillingModelID(ctx, e.name)
	if err != nil {
		return nil, err
	}

	reference := spec.UniqueReference
	if reference == "" {
		reference = fmt.Sprintf("%s_%d", e.name, modelID)
	}

	now := e.now()
	m := &billing.BillingModel{
		Entity:           types.NewEntity(),
		ID:               modelID,
		Payee:            spec.Payee,
		Name:             spec.Name,
		MerchantName:     spec.MerchantName,
		UniqueReference:  reference,
		MerchantURL:      spec.MerchantURL,
		Amount:           cloneAmount(spec.Amount),
		SettlementToken:  spec.SettlementToken,
		Frequency:        spec.Frequency,
		NumberOfPayments: spec.NumberOfPayments,
		TrialPeriod:      spec.TrialPeriod,
		InitialAmount:    cloneAmount(spec.InitialAmount),
		RecurringType:    spec.RecurringType,
		CreationTime:     now,
	}
	if e.dynamic {
		m.Amount = nil
		m.SettlementToken = types.ZeroAddress
		m.Frequency = 0
		m.NumberOfPayments = 0
		m.TrialPeriod = 0
		m.InitialAmount = nil
	}

	if err := e.store.CreateBillingModel(ctx, e.name, m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrReferenceExists
		}
		return nil, err
	}

	e.logger.Info("billing model created",
		"engine", e.name,
		"billing_model_id", m.ID,
		"payee", m.Payee.Hex(),
		"caller", caller.Hex(),
	)
	e.plugins.EmitBillingModelCreated(ctx, m)

	return m, nil
}

// validateTerms applies the per-kind payment term gates in canonical
// order.
func (e *Engine) validateTerms(kind billing.Kind, amount *big.Int, settlementToken types.Address, frequency, numberOfPayments, trialPeriod uint64, initialAmount *big.Int) error {
	if !types.IsPositive(amount) {
		return ErrInvalidAmount
	}
	if !e.registry.IsSupportedToken(settlementToken) {
		return ErrUnsupportedToken
	}
	if kind.IsRecurring() {
		if frequency == 0 {
			return ErrInvalidFrequency
		}
		if numberOfPayments == 0 {
			return ErrInvalidNumberOfPayments
		}
	}
	if kind.HasTrial() && trialPeriod == 0 {
		return ErrInvalidTrialPeriod
	}
	if kind == billing.KindRecurringPaidTrial && !types.IsPositive(initialAmount) {
		return ErrInvalidInitialAmount
	}
	return nil
}

// EditSpec describes a billing model edit. Zero/empty fields are left
// unchanged; an edit with nothing to change is rejected.
type EditSpec struct {
	BillingModelID uint64
	NewPayee       types.Address
	Name           string
	MerchantName   string
	MerchantURL    string
}

// EditBillingModel updates the descriptive fields of a billing model.
// Only the current payee may edit; payment terms are immutable.
func (e *Engine) EditBillingModel(ctx context.Context, caller types.Address, spec EditSpec) (*billing.BillingModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.getModel(ctx, spec.BillingModelID)
	if err != nil {
		return nil, err
	}
	if caller != m.Payee {
		return nil, ErrInvalidEditor
	}
	if spec.NewPayee == types.ZeroAddress && spec.Name == "" && spec.MerchantName == "" && spec.MerchantURL == "" {
		return nil, ErrInvalidOperation
	}
	if spec.Name != "" && spec.Name != m.Name {
		exists, err := e.store.BillingModelNameExists(ctx, e.name, spec.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrNameExists
		}
	}

	oldPayee := m.Payee
	if spec.NewPayee != types.ZeroAddress {
		m.Payee = spec.NewPayee
	}
	if spec.Name != "" {
		m.Name = spec.Name
	}
	if spec.MerchantName != "" {
		m.MerchantName = spec.MerchantName
	}
	if spec.MerchantURL != "" {
		m.MerchantURL = spec.MerchantURL
	}
	m.Touch()

	if err := e.store.UpdateBillingModel(ctx, e.name, m); err != nil {
		return nil, err
	}

	e.logger.Info("billing model edited",
		"engine", e.name,
		"billing_model_id", m.ID,
		"old_payee", oldPayee.Hex(),
		"new_payee", m.Payee.Hex(),
	)
	e.plugins.EmitBillingModelEdited(ctx, &BillingModelEditedPayload{
		BillingModelID: m.ID,
		OldPayee:       oldPayee,
		NewPayee:       m.Payee,
		Name:           m.Name,
	})

	return m, nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// SubscribeSpec describes a subscription request. The dynamic fields are
// read only by dynamic engines; fixed engines take the terms from the
// billing model.
type SubscribeSpec struct {
	BillingModelID  uint64
	PaymentToken    types.Address
	UniqueReference string

	// Dynamic-engine terms, supplied by the subscriber.
	Amount           *big.Int
	SettlementToken  types.Address
	Frequency        uint64
	NumberOfPayments uint64
	TrialPeriod      uint64
	InitialAmount    *big.Int
}

// SubscribeToBillingModel attaches the caller to a billing model,
// charging immediately for kinds that start with a payment.
func (e *Engine) SubscribeToBillingModel(ctx context.Context, caller types.Address, spec SubscribeSpec) (*billing.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.getModel(ctx, spec.BillingModelID)
	if err != nil {
		return nil, err
	}
	kind := e.effectiveKind(m)

	amount := m.Amount
	settlementToken := m.SettlementToken
	frequency := m.Frequency
	numberOfPayments := m.NumberOfPayments
	trialPeriod := m.TrialPeriod
	initialAmount := m.InitialAmount
	if e.dynamic {
		amount = spec.Amount
		settlementToken = spec.SettlementToken
		frequency = spec.Frequency
		numberOfPayments = spec.NumberOfPayments
		trialPeriod = spec.TrialPeriod
		initialAmount = spec.InitialAmount
		if err := e.validateTerms(kind, amount, settlementToken, frequency, numberOfPayments, trialPeriod, initialAmount); err != nil {
			return nil, err
		}
	}

	if !e.registry.IsSupportedToken(spec.PaymentToken) {
		return nil, ErrPaymentTokenUnusable
	}
	if spec.PaymentToken != settlementToken {
		canSwap, _, _, err := e.executor.CanSwapFromV2(ctx, spec.PaymentToken, settlementToken)
		if err != nil {
			return nil, err
		}
		if !canSwap {
			return nil, ErrNoSwapPath
		}
	}

	if spec.UniqueReference != "" {
		if _, err := e.store.GetSubscriptionByReference(ctx, e.name, spec.UniqueReference); err == nil {
			return nil, ErrReferenceExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	subID, err := e.store.NextSubscriptionID(ctx, e.name)
	if err != nil {
		return nil, err
	}

	reference := spec.UniqueReference
	if reference == "" {
		reference = fmt.Sprintf("%s_%d_%d", e.name, m.ID, subID)
	}

	now := e.now()
	total := numberOfPayments
	if kind == billing.KindSingle {
		total = 1
	}

	sub := &billing.Subscription{
		Entity:            types.NewEntity(),
		ID:                subID,
		BillingModelID:    m.ID,
		Subscriber:        caller,
		PaymentToken:      spec.PaymentToken,
		SettlementToken:   settlementToken,
		Amount:            cloneAmount(amount),
		StartTimestamp:    now,
		TotalPayments:     total,
		RemainingPayments: total,
		Frequency:         frequency,
		TrialPeriod:       trialPeriod,
		InitialAmount:     cloneAmount(initialAmount),
		RecurringType:     m.RecurringType,
		UniqueReference:   reference,
	}

	var receipt *billing.PullPayment
	var executedPayload *PullPaymentExecutedPayload

	switch kind {
	case billing.KindSingle, billing.KindRecurring:
		settlement, err := e.executor.Execute(ctx, caller, m.Payee, sub.PaymentToken, sub.SettlementToken, sub.Amount)
		if err != nil {
			return nil, err
		}
		receipt, err = e.newReceipt(ctx, m.ID, subID, sub.Amount, now)
		if err != nil {
			return nil, err
		}
		sub.RemainingPayments--
		sub.LastPaymentTimestamp = now
		if kind == billing.KindRecurring {
			sub.NextPaymentTimestamp = now + int64(frequency)
		}
		executedPayload = e.executedPayload(m, sub, receipt, settlement)

	case billing.KindRecurringFreeTrial:
		// No charge during the trial; reserve the first receipt so its
		// id is stable before the trial ends.
		sub.NextPaymentTimestamp = now + int64(trialPeriod)
		receipt, err = e.newPlaceholderReceipt(ctx, m.ID, subID)
		if err != nil {
			return nil, err
		}

	case billing.KindRecurringPaidTrial:
		// The initial amount settles now; the full amount starts once
		// the trial elapses. The trial charge does not consume a cycle.
		settlement, err := e.executor.Execute(ctx, caller, m.Payee, sub.PaymentToken, sub.SettlementToken, sub.InitialAmount)
		if err != nil {
			return nil, err
		}
		receipt, err = e.newReceipt(ctx, m.ID, subID, sub.InitialAmount, now)
		if err != nil {
			return nil, err
		}
		sub.LastPaymentTimestamp = now
		sub.NextPaymentTimestamp = now + int64(trialPeriod)
		executedPayload = e.executedPayload(m, sub, receipt, settlement)
	}

	if receipt != nil {
		sub.PullPaymentIDs = append(sub.PullPaymentIDs, receipt.ID)
	}

	if err := e.store.CreateSubscription(ctx, e.name, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrReferenceExists
		}
		return nil, err
	}

	m.SubscriptionIDs = append(m.SubscriptionIDs, subID)
	m.Touch()
	if err := e.store.UpdateBillingModel(ctx, e.name, m); err != nil {
		// The subscription row is already persisted; surface the failure
		// so the caller reconciles instead of trusting a stale payee
		// index.
		e.logger.Error("subscription index update failed",
			"engine", e.name,
			"billing_model_id", m.ID,
			"subscription_id", subID,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("new subscription",
		"engine", e.name,
		"billing_model_id", m.ID,
		"subscription_id", subID,
		"subscriber", caller.Hex(),
	)
	e.plugins.EmitNewSubscription(ctx, sub)
	if executedPayload != nil {
		e.plugins.EmitPullPaymentExecuted(ctx, executedPayload)
	}

	return sub, nil
}

// ExecutePullPayment settles the next due payment cycle of a
// subscription. Callable by anyone once the interval opens; a second
// call inside the same interval fails without side effects.
func (e *Engine) ExecutePullPayment(ctx context.Context, caller types.Address, subscriptionID uint64) (*billing.PullPayment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executePullPayment(ctx, caller, subscriptionID)
}

// executePullPayment is the lock-free core, shared with upkeep.
func (e *Engine) executePullPayment(ctx context.Context, caller types.Address, subscriptionID uint64) (*billing.PullPayment, error) {
	sub, err := e.getSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Cancelled() {
		return nil, ErrSubscriptionCanceled
	}
	if sub.Exhausted() {
		return nil, ErrPaymentsExceeded
	}

	now := e.now()
	if now < sub.NextPaymentTimestamp {
		return nil, ErrInvalidExecutionTime
	}

	m, err := e.getModel(ctx, sub.BillingModelID)
	if err != nil {
		return nil, err
	}

	settlement, err := e.executor.Execute(ctx, sub.Subscriber, m.Payee, sub.PaymentToken, sub.SettlementToken, sub.Amount)
	if err != nil {
		return nil, err
	}

	receipt, created, err := e.finalizeReceipt(ctx, sub, m.ID, sub.Amount, now)
	if err != nil {
		return nil, err
	}
	if created {
		sub.PullPaymentIDs = append(sub.PullPaymentIDs, receipt.ID)
	}

	// Anchored advancement: the schedule never drifts with execution lag.
	sub.NextPaymentTimestamp += int64(sub.Frequency)
	sub.RemainingPayments--
	sub.LastPaymentTimestamp = now
	sub.Touch()

	if err := e.store.UpdateSubscription(ctx, e.name, sub); err != nil {
		return nil, err
	}

	e.logger.Info("pull payment executed",
		"engine", e.name,
		"subscription_id", sub.ID,
		"pull_payment_id", receipt.ID,
		"remaining", sub.RemainingPayments,
		"caller", caller.Hex(),
	)
	e.plugins.EmitPullPaymentExecuted(ctx, e.executedPayload(m, sub, receipt, settlement))

	return receipt, nil
}

// CancelSubscription moves a subscription to its terminal cancelled
// state. Only the subscriber or the model's payee may cancel.
func (e *Engine) CancelSubscription(ctx context.Context, caller types.Address, subscriptionID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelSubscription(ctx, caller, subscriptionID, false)
}

// cancelSubscription is the lock-free core. forced bypasses the canceler
// gate for the upkeep scheduler.
func (e *Engine) cancelSubscription(ctx context.Context, caller types.Address, subscriptionID uint64, forced bool) error {
	sub, err := e.getSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Cancelled() {
		return ErrSubscriptionCanceled
	}

	m, err := e.getModel(ctx, sub.BillingModelID)
	if err != nil {
		return err
	}
	if !forced && caller != sub.Subscriber && caller != m.Payee {
		return ErrInvalidCanceler
	}

	sub.CancelTimestamp = e.now()
	sub.CancelledBy = caller
	if forced {
		sub.UpkeepDisabled = true
	}
	sub.Touch()

	if err := e.store.UpdateSubscription(ctx, e.name, sub); err != nil {
		return err
	}

	e.logger.Info("subscription cancelled",
		"engine", e.name,
		"subscription_id", sub.ID,
		"cancelled_by", caller.Hex(),
		"forced", forced,
	)
	e.plugins.EmitSubscriptionCancelled(ctx, sub)

	return nil
}

// ──────────────────────────────────────────────────
// Receipts
// ──────────────────────────────────────────────────

func (e *Engine) newReceipt(ctx context.Context, modelID, subID uint64, amount *big.Int, executedAt int64) (*billing.PullPayment, error) {
	paymentID, err := e.store.NextPullPaymentID(ctx, e.name)
	if err != nil {
		return nil, err
	}

	p := &billing.PullPayment{
		Entity:             types.NewEntity(),
		ID:                 paymentID,
		Ref:                id.NewReceiptID(),
		BillingModelID:     modelID,
		SubscriptionID:     subID,
		Amount:             cloneAmount(amount),
		ExecutionTimestamp: executedAt,
	}
	if err := e.store.CreatePullPayment(ctx, e.name, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) newPlaceholderReceipt(ctx context.Context, modelID, subID uint64) (*billing.PullPayment, error) {
	paymentID, err := e.store.NextPullPaymentID(ctx, e.name)
	if err != nil {
		return nil, err
	}

	p := &billing.PullPayment{
		Entity:         types.NewEntity(),
		ID:             paymentID,
		Ref:            id.NewReceiptID(),
		BillingModelID: modelID,
		SubscriptionID: subID,
	}
	if err := e.store.CreatePullPayment(ctx, e.name, p); err != nil {
		return nil, err
	}
	return p, nil
}

// finalizeReceipt consumes the subscription's pending placeholder when
// one exists, otherwise mints a new receipt. Returns whether a new
// receipt id was created.
func (e *Engine) finalizeReceipt(ctx context.Context, sub *billing.Subscription, modelID uint64, amount *big.Int, executedAt int64) (*billing.PullPayment, bool, error) {
	if n := len(sub.PullPaymentIDs); n > 0 {
		last, err := e.store.GetPullPayment(ctx, e.name, sub.PullPaymentIDs[n-1])
		if err == nil && !last.Executed() {
			last.Amount = cloneAmount(amount)
			last.ExecutionTimestamp = executedAt
			last.Touch()
			if err := e.store.UpdatePullPayment(ctx, e.name, last); err != nil {
				return nil, false, err
			}
			return last, false, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	p, err := e.newReceipt(ctx, modelID, sub.ID, amount, executedAt)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (e *Engine) executedPayload(m *billing.BillingModel, sub *billing.Subscription, receipt *billing.PullPayment, settlement executor.Settlement) *PullPaymentExecutedPayload {
	return &PullPaymentExecutedPayload{
		BillingModelID:   m.ID,
		SubscriptionID:   sub.ID,
		PullPaymentID:    receipt.ID,
		Ref:              receipt.Ref,
		Payer:            sub.Subscriber,
		Payee:            m.Payee,
		PaymentToken:     sub.PaymentToken,
		SettlementToken:  sub.SettlementToken,
		UserPaid:         settlement.UserPaid,
		MerchantReceived: settlement.MerchantReceived,
		Fee:              settlement.Fee,
	}
}

// ──────────────────────────────────────────────────
// Getters
// ──────────────────────────────────────────────────

// GetBillingModel returns a billing model by id.
func (e *Engine) GetBillingModel(ctx context.Context, modelID uint64) (*billing.BillingModel, error) {
	return e.getModel(ctx, modelID)
}

// GetSubscription returns a subscription by id.
func (e *Engine) GetSubscription(ctx context.Context, subscriptionID uint64) (*billing.Subscription, error) {
	return e.getSubscription(ctx, subscriptionID)
}

// GetPullPayment returns a pull payment receipt by id.
func (e *Engine) GetPullPayment(ctx context.Context, paymentID uint64) (*billing.PullPayment, error) {
	p, err := e.store.GetPullPayment(ctx, e.name, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidPullPaymentID
	}
	return p, err
}

// CurrentBillingModelID returns the highest billing model id issued.
func (e *Engine) CurrentBillingModelID(ctx context.Context) (uint64, error) {
	return e.store.CurrentBillingModelID(ctx, e.name)
}

// CurrentSubscriptionID returns the highest subscription id issued.
func (e *Engine) CurrentSubscriptionID(ctx context.Context) (uint64, error) {
	return e.store.CurrentSubscriptionID(ctx, e.name)
}

// CurrentPullPaymentID returns the highest pull payment id issued.
func (e *Engine) CurrentPullPaymentID(ctx context.Context) (uint64, error) {
	return e.store.CurrentPullPaymentID(ctx, e.name)
}

// BillingModelIDsByPayee returns the ids of all models owned by payee.
func (e *Engine) BillingModelIDsByPayee(ctx context.Context, payee types.Address) ([]uint64, error) {
	models, err := e.store.ListBillingModelsByPayee(ctx, e.name, payee)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids, nil
}

// SubscriptionIDsBySubscriber returns the ids of the subscriber's live
// subscriptions.
func (e *Engine) SubscriptionIDsBySubscriber(ctx context.Context, subscriber types.Address) ([]uint64, error) {
	return e.subscriptionIDs(ctx, subscriber, false)
}

// CancelledSubscriptionIDsBySubscriber returns the ids of the
// subscriber's cancelled subscriptions.
func (e *Engine) CancelledSubscriptionIDsBySubscriber(ctx context.Context, subscriber types.Address) ([]uint64, error) {
	return e.subscriptionIDs(ctx, subscriber, true)
}

func (e *Engine) subscriptionIDs(ctx context.Context, subscriber types.Address, cancelled bool) ([]uint64, error) {
	subs, err := e.store.ListSubscriptionsBySubscriber(ctx, e.name, subscriber)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, sub := range subs {
		if sub.Cancelled() == cancelled {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}

// IsFreeTrialEnded reports whether a free-trial subscription has left its
// trial window.
func (e *Engine) IsFreeTrialEnded(ctx context.Context, subscriptionID uint64) (bool, error) {
	return e.trialEnded(ctx, subscriptionID, billing.KindRecurringFreeTrial)
}

// IsPaidTrialEnded reports whether a paid-trial subscription has left its
// trial window.
func (e *Engine) IsPaidTrialEnded(ctx context.Context, subscriptionID uint64) (bool, error) {
	return e.trialEnded(ctx, subscriptionID, billing.KindRecurringPaidTrial)
}

func (e *Engine) trialEnded(ctx context.Context, subscriptionID uint64, want billing.Kind) (bool, error) {
	sub, err := e.getSubscription(ctx, subscriptionID)
	if err != nil {
		return false, err
	}

	m, err := e.getModel(ctx, sub.BillingModelID)
	if err != nil {
		return false, err
	}
	if e.effectiveKind(m) != want {
		return false, ErrInvalidOperation
	}

	// Once a full cycle has settled the trial is over regardless of the
	// schedule position.
	if sub.RemainingPayments < sub.TotalPayments {
		return true, nil
	}
	return sub.TrialEnded(e.now()), nil
}

// RegisterPlugin adds a plugin to the engine's hook registry.
func (e *Engine) RegisterPlugin(p plugin.Plugin) error {
	return e.plugins.Register(p)
}

// Plugins exposes the engine's plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Shutdown notifies plugins and releases nothing else; the store is
// owned by the caller.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return nil
}

func (e *Engine) getModel(ctx context.Context, modelID uint64) (*billing.BillingModel, error) {
	m, err := e.store.GetBillingModel(ctx, e.name, modelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidBillingModelID
	}
	return m, err
}

func (e *Engine) getSubscription(ctx context.Context, subscriptionID uint64) (*billing.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, e.name, subscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidSubscriptionID
	}
	return sub, err
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
