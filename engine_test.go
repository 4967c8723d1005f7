package pullpay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/executor"
	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/swap"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

var (
	testOwner        = types.HexToAddress("0x0000000000000000000000000000000000000A01")
	testExecutorAddr = types.HexToAddress("0x0000000000000000000000000000000000000A02")
	testRouterAddr   = types.HexToAddress("0x00000000000000000000000000000000000000AA")
	testFeeReceiver  = types.HexToAddress("0x0000000000000000000000000000000000000A03")
	testKeeper       = types.HexToAddress("0x0000000000000000000000000000000000000A04")
	testHub          = types.HexToAddress("0x0000000000000000000000000000000000000B01")
	testUSD          = types.HexToAddress("0x0000000000000000000000000000000000000B02")
	testEUR          = types.HexToAddress("0x0000000000000000000000000000000000000B03")
	testGBP          = types.HexToAddress("0x0000000000000000000000000000000000000B04")
	testLP           = types.HexToAddress("0x00000000000000000000000000000000000001B0")
	testMerchant     = types.HexToAddress("0x00000000000000000000000000000000000001D0")
	testSubscriber   = types.HexToAddress("0x00000000000000000000000000000000000001E0")
	testStranger     = types.HexToAddress("0x00000000000000000000000000000000000001F0")
)

// harness wires a ledger, AMM, registry, executor and in-memory store,
// with a fake clock the tests advance explicitly.
//
// Token layout: testUSD and testEUR share a direct pool; testGBP is
// supported by the registry but has no liquidity anywhere.
type harness struct {
	t      *testing.T
	ledger *token.Memory
	amm    *swap.Memory
	reg    *registry.Registry
	exec   *executor.Executor
	st     *memory.Store
	clock  int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		t:      t,
		ledger: token.NewMemory(),
		st:     memory.New(),
		clock:  1_700_000_000,
	}
	h.amm = swap.NewMemory(h.ledger, testRouterAddr)

	reserve := big.NewInt(1_000_000)
	h.ledger.Mint(testUSD, testLP, reserve)
	h.ledger.Mint(testEUR, testLP, reserve)
	if err := h.amm.AddLiquidity(ctx, testLP, testUSD, testEUR, reserve, reserve); err != nil {
		t.Fatal(err)
	}

	h.reg = registry.New(testOwner, testHub, registry.WithFeeReceiver(testFeeReceiver))
	for _, tok := range []types.Address{testUSD, testEUR, testGBP} {
		if err := h.reg.AddToken(testOwner, tok); err != nil {
			t.Fatal(err)
		}
	}

	h.exec = executor.New(h.ledger, h.amm, h.amm, h.reg, testExecutorAddr, testRouterAddr)
	return h
}

func (h *harness) engine(kind billing.Kind, opts ...EngineOption) *Engine {
	h.t.Helper()
	opts = append(opts, WithNow(func() int64 { return h.clock }))
	e, err := NewEngine(kind, h.st, h.exec, h.reg, opts...)
	if err != nil {
		h.t.Fatal(err)
	}
	return e
}

// fund mints tokens to the subscriber and approves the executor.
func (h *harness) fund(tok types.Address, amount int64) {
	h.t.Helper()
	h.ledger.Mint(tok, testSubscriber, big.NewInt(amount))
	if err := h.ledger.Approve(context.Background(), tok, testSubscriber, testExecutorAddr, big.NewInt(amount)); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) balance(tok, holder types.Address) int64 {
	h.t.Helper()
	b, err := h.ledger.BalanceOf(context.Background(), tok, holder)
	if err != nil {
		h.t.Fatal(err)
	}
	return b.Int64()
}

// recurringModel creates the canonical test model: 15 per cycle, every
// 600 seconds, 5 cycles.
func recurringModel(t *testing.T, e *Engine) *billing.BillingModel {
	t.Helper()
	m, err := e.CreateBillingModel(context.Background(), testMerchant, ModelSpec{
		Payee:            testMerchant,
		Name:             "gold plan",
		MerchantName:     "Acme",
		Amount:           big.NewInt(15),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewEngine(t *testing.T) {
	h := newHarness(t)

	if _, err := NewEngine("bogus", h.st, h.exec, h.reg); err == nil {
		t.Error("unknown kind accepted")
	}
	if _, err := NewEngine(billing.KindRecurring, nil, h.exec, h.reg); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewEngine(billing.KindRecurringFreeTrial, h.st, h.exec, h.reg, WithDynamic()); err == nil {
		t.Error("dynamic trial engine accepted")
	}

	tests := []struct {
		kind    billing.Kind
		dynamic bool
		want    string
	}{
		{billing.KindSingle, false, "SinglePullPayment"},
		{billing.KindRecurring, false, "RecurringPullPayment"},
		{billing.KindRecurringFreeTrial, false, "RecurringPullPaymentWithFreeTrial"},
		{billing.KindRecurringPaidTrial, false, "RecurringPullPaymentWithPaidTrial"},
		{billing.KindSingle, true, "SingleDynamicPullPayment"},
		{billing.KindRecurring, true, "RecurringDynamicPullPayment"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var opts []EngineOption
			if tt.dynamic {
				opts = append(opts, WithDynamic())
			}
			e, err := NewEngine(tt.kind, h.st, h.exec, h.reg, opts...)
			if err != nil {
				t.Fatal(err)
			}
			if e.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", e.Name(), tt.want)
			}
		})
	}
}

func TestCreateBillingModelValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	valid := func(kind billing.Kind) ModelSpec {
		spec := ModelSpec{
			Payee:            testMerchant,
			Amount:           big.NewInt(15),
			SettlementToken:  testUSD,
			Frequency:        600,
			NumberOfPayments: 5,
		}
		if kind.HasTrial() {
			spec.TrialPeriod = 300
		}
		if kind == billing.KindRecurringPaidTrial {
			spec.InitialAmount = big.NewInt(5)
		}
		return spec
	}

	tests := []struct {
		name    string
		kind    billing.Kind
		mutate  func(*ModelSpec)
		wantErr error
	}{
		{"zero payee", billing.KindRecurring, func(s *ModelSpec) { s.Payee = types.ZeroAddress }, ErrInvalidPayee},
		{"nil amount", billing.KindRecurring, func(s *ModelSpec) { s.Amount = nil }, ErrInvalidAmount},
		{"negative amount", billing.KindRecurring, func(s *ModelSpec) { s.Amount = big.NewInt(-1) }, ErrInvalidAmount},
		{"unsupported token", billing.KindRecurring, func(s *ModelSpec) { s.SettlementToken = testStranger }, ErrUnsupportedToken},
		{"zero frequency", billing.KindRecurring, func(s *ModelSpec) { s.Frequency = 0 }, ErrInvalidFrequency},
		{"zero payments", billing.KindRecurring, func(s *ModelSpec) { s.NumberOfPayments = 0 }, ErrInvalidNumberOfPayments},
		{"zero trial period", billing.KindRecurringFreeTrial, func(s *ModelSpec) { s.TrialPeriod = 0 }, ErrInvalidTrialPeriod},
		{"nil initial amount", billing.KindRecurringPaidTrial, func(s *ModelSpec) { s.InitialAmount = nil }, ErrInvalidInitialAmount},
		{"single ignores frequency", billing.KindSingle, func(s *ModelSpec) { s.Frequency = 0; s.NumberOfPayments = 0 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := h.engine(tt.kind)
			spec := valid(tt.kind)
			tt.mutate(&spec)
			_, err := e.CreateBillingModel(ctx, testMerchant, spec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecurringLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)

	m := recurringModel(t, e)
	if m.ID != 1 {
		t.Fatalf("model ID = %d, want 1", m.ID)
	}
	if m.UniqueReference != fmt.Sprintf("%s_1", e.Name()) {
		t.Errorf("auto reference = %q", m.UniqueReference)
	}

	h.fund(testUSD, 75)
	start := h.clock

	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testUSD,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The first cycle settles at subscribe time.
	if sub.RemainingPayments != 4 {
		t.Errorf("RemainingPayments = %d, want 4", sub.RemainingPayments)
	}
	if sub.NextPaymentTimestamp != start+600 {
		t.Errorf("NextPaymentTimestamp = %d, want %d", sub.NextPaymentTimestamp, start+600)
	}
	if got := h.balance(testUSD, testMerchant); got != 14 {
		t.Errorf("merchant balance after subscribe = %d, want 14", got)
	}
	if got := h.balance(testUSD, testFeeReceiver); got != 1 {
		t.Errorf("fee receiver balance after subscribe = %d, want 1", got)
	}
	if sub.UniqueReference != fmt.Sprintf("%s_1_1", e.Name()) {
		t.Errorf("auto reference = %q", sub.UniqueReference)
	}

	// The window for cycle two has not opened yet.
	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); !errors.Is(err, ErrInvalidExecutionTime) {
		t.Fatalf("early execute: got %v, want ErrInvalidExecutionTime", err)
	}

	for i := 0; i < 4; i++ {
		h.clock += 600
		if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); err != nil {
			t.Fatalf("execute cycle %d: %v", i+2, err)
		}
	}

	if got := h.balance(testUSD, testMerchant); got != 70 {
		t.Errorf("merchant balance = %d, want 70", got)
	}
	if got := h.balance(testUSD, testFeeReceiver); got != 5 {
		t.Errorf("fee receiver balance = %d, want 5", got)
	}
	if got := h.balance(testUSD, testSubscriber); got != 0 {
		t.Errorf("subscriber balance = %d, want 0", got)
	}

	h.clock += 600
	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); !errors.Is(err, ErrPaymentsExceeded) {
		t.Errorf("exhausted execute: got %v, want ErrPaymentsExceeded", err)
	}
}

func TestAnchoredAdvancement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)
	h.fund(testUSD, 75)

	start := h.clock
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	// Execute 500 seconds late; the schedule must not drift.
	h.clock = start + 1100
	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); err != nil {
		t.Fatal(err)
	}

	sub, err = e.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.NextPaymentTimestamp != start+1200 {
		t.Errorf("NextPaymentTimestamp = %d, want %d", sub.NextPaymentTimestamp, start+1200)
	}
	if sub.LastPaymentTimestamp != start+1100 {
		t.Errorf("LastPaymentTimestamp = %d, want %d", sub.LastPaymentTimestamp, start+1100)
	}
}

func TestSingleKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindSingle)

	m, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:           testMerchant,
		Name:            "one-off",
		Amount:          big.NewInt(100),
		SettlementToken: testUSD,
	})
	if err != nil {
		t.Fatal(err)
	}

	h.fund(testUSD, 100)
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	if sub.TotalPayments != 1 || sub.RemainingPayments != 0 {
		t.Errorf("payments = %d/%d, want 0/1 remaining/total", sub.RemainingPayments, sub.TotalPayments)
	}
	if got := h.balance(testUSD, testMerchant); got != 90 {
		t.Errorf("merchant balance = %d, want 90", got)
	}

	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); !errors.Is(err, ErrPaymentsExceeded) {
		t.Errorf("got %v, want ErrPaymentsExceeded", err)
	}
}

func TestReferenceUniqueness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)

	spec := ModelSpec{
		Payee:            testMerchant,
		UniqueReference:  "plan-gold",
		Amount:           big.NewInt(15),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
	}
	m, err := e.CreateBillingModel(ctx, testMerchant, spec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateBillingModel(ctx, testMerchant, spec); !errors.Is(err, ErrReferenceExists) {
		t.Errorf("duplicate model reference: got %v, want ErrReferenceExists", err)
	}

	h.fund(testUSD, 150)
	subSpec := SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD, UniqueReference: "sub-1"}
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, subSpec); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, subSpec); !errors.Is(err, ErrReferenceExists) {
		t.Errorf("duplicate subscription reference: got %v, want ErrReferenceExists", err)
	}
}

func TestEditBillingModel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)

	if _, err := e.EditBillingModel(ctx, testStranger, EditSpec{BillingModelID: m.ID, Name: "x"}); !errors.Is(err, ErrInvalidEditor) {
		t.Errorf("stranger edit: got %v, want ErrInvalidEditor", err)
	}
	if _, err := e.EditBillingModel(ctx, testMerchant, EditSpec{BillingModelID: m.ID}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("empty edit: got %v, want ErrInvalidOperation", err)
	}
	if _, err := e.EditBillingModel(ctx, testMerchant, EditSpec{BillingModelID: 99, Name: "x"}); !errors.Is(err, ErrInvalidBillingModelID) {
		t.Errorf("missing model: got %v, want ErrInvalidBillingModelID", err)
	}

	// A second model already holds the name "silver plan".
	if _, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:            testMerchant,
		Name:             "silver plan",
		Amount:           big.NewInt(5),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EditBillingModel(ctx, testMerchant, EditSpec{BillingModelID: m.ID, Name: "silver plan"}); !errors.Is(err, ErrNameExists) {
		t.Errorf("name collision: got %v, want ErrNameExists", err)
	}

	edited, err := e.EditBillingModel(ctx, testMerchant, EditSpec{
		BillingModelID: m.ID,
		NewPayee:       testStranger,
		Name:           "platinum plan",
		MerchantURL:    "https://acme.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	if edited.Payee != testStranger {
		t.Errorf("Payee = %s, want %s", edited.Payee.Hex(), testStranger.Hex())
	}
	if edited.Name != "platinum plan" || edited.MerchantURL != "https://acme.example" {
		t.Errorf("fields not applied: %q %q", edited.Name, edited.MerchantURL)
	}

	// The old payee lost edit rights with the transfer.
	if _, err := e.EditBillingModel(ctx, testMerchant, EditSpec{BillingModelID: m.ID, Name: "y"}); !errors.Is(err, ErrInvalidEditor) {
		t.Errorf("old payee edit: got %v, want ErrInvalidEditor", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)
	h.fund(testUSD, 75)

	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.CancelSubscription(ctx, testStranger, sub.ID); !errors.Is(err, ErrInvalidCanceler) {
		t.Errorf("stranger cancel: got %v, want ErrInvalidCanceler", err)
	}

	if err := e.CancelSubscription(ctx, testSubscriber, sub.ID); err != nil {
		t.Fatal(err)
	}
	got, err := e.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Cancelled() {
		t.Fatal("subscription not cancelled")
	}
	if got.CancelledBy != testSubscriber {
		t.Errorf("CancelledBy = %s, want subscriber", got.CancelledBy.Hex())
	}

	// Terminal state: no second cancel, no further execution.
	if err := e.CancelSubscription(ctx, testSubscriber, sub.ID); !errors.Is(err, ErrSubscriptionCanceled) {
		t.Errorf("re-cancel: got %v, want ErrSubscriptionCanceled", err)
	}
	h.clock += 600
	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); !errors.Is(err, ErrSubscriptionCanceled) {
		t.Errorf("execute after cancel: got %v, want ErrSubscriptionCanceled", err)
	}

	// The payee may cancel too.
	sub2, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelSubscription(ctx, testMerchant, sub2.ID); err != nil {
		t.Errorf("payee cancel: %v", err)
	}
}

func TestFreeTrial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurringFreeTrial)

	m, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:            testMerchant,
		Name:             "trial plan",
		Amount:           big.NewInt(15),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
		TrialPeriod:      300,
	})
	if err != nil {
		t.Fatal(err)
	}

	h.fund(testUSD, 75)
	start := h.clock
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	// No charge during the trial; the first receipt is reserved up front.
	if got := h.balance(testUSD, testSubscriber); got != 75 {
		t.Errorf("subscriber charged during trial: balance = %d", got)
	}
	if sub.RemainingPayments != 5 {
		t.Errorf("RemainingPayments = %d, want 5", sub.RemainingPayments)
	}
	if sub.NextPaymentTimestamp != start+300 {
		t.Errorf("NextPaymentTimestamp = %d, want %d", sub.NextPaymentTimestamp, start+300)
	}
	if len(sub.PullPaymentIDs) != 1 {
		t.Fatalf("PullPaymentIDs = %v, want one placeholder", sub.PullPaymentIDs)
	}
	placeholderID := sub.PullPaymentIDs[0]
	placeholder, err := e.GetPullPayment(ctx, placeholderID)
	if err != nil {
		t.Fatal(err)
	}
	if placeholder.Executed() {
		t.Fatal("placeholder already executed")
	}

	ended, err := e.IsFreeTrialEnded(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ended {
		t.Error("trial reported ended at start")
	}
	if _, err := e.IsPaidTrialEnded(ctx, sub.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("wrong-kind trial query: got %v, want ErrInvalidOperation", err)
	}

	// Still inside the trial window.
	if _, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID); !errors.Is(err, ErrInvalidExecutionTime) {
		t.Fatalf("in-trial execute: got %v, want ErrInvalidExecutionTime", err)
	}

	// First execution finalizes the reserved receipt in place.
	h.clock = start + 300
	receipt, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.ID != placeholderID {
		t.Errorf("receipt ID = %d, want placeholder %d", receipt.ID, placeholderID)
	}
	if !receipt.Executed() {
		t.Error("receipt not finalized")
	}
	if receipt.Amount.Int64() != 15 {
		t.Errorf("receipt amount = %s, want 15", receipt.Amount)
	}
	if got := h.balance(testUSD, testSubscriber); got != 60 {
		t.Errorf("subscriber balance = %d, want 60", got)
	}

	ended, err = e.IsFreeTrialEnded(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ended {
		t.Error("trial not reported ended after first payment")
	}

	// Second execution mints a fresh receipt.
	h.clock += 600
	receipt2, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if receipt2.ID == placeholderID {
		t.Error("second receipt reused the placeholder id")
	}
}

func TestPaidTrial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurringPaidTrial)

	m, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:            testMerchant,
		Name:             "intro plan",
		Amount:           big.NewInt(15),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 3,
		TrialPeriod:      300,
		InitialAmount:    big.NewInt(5),
	})
	if err != nil {
		t.Fatal(err)
	}

	h.fund(testUSD, 50)
	start := h.clock
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	// The reduced initial amount settles now without consuming a cycle.
	if got := h.balance(testUSD, testSubscriber); got != 45 {
		t.Errorf("subscriber balance = %d, want 45", got)
	}
	if sub.RemainingPayments != 3 {
		t.Errorf("RemainingPayments = %d, want 3", sub.RemainingPayments)
	}
	if sub.NextPaymentTimestamp != start+300 {
		t.Errorf("NextPaymentTimestamp = %d, want %d", sub.NextPaymentTimestamp, start+300)
	}

	ended, err := e.IsPaidTrialEnded(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ended {
		t.Error("trial reported ended at start")
	}

	// First full cycle after the trial.
	h.clock = start + 300
	receipt, err := e.ExecutePullPayment(ctx, testKeeper, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Amount.Int64() != 15 {
		t.Errorf("receipt amount = %s, want 15", receipt.Amount)
	}
	// The trial receipt was already finalized, so this is a fresh one.
	sub, _ = e.GetSubscription(ctx, sub.ID)
	if len(sub.PullPaymentIDs) != 2 {
		t.Errorf("PullPaymentIDs = %v, want two receipts", sub.PullPaymentIDs)
	}
	if sub.RemainingPayments != 2 {
		t.Errorf("RemainingPayments = %d, want 2", sub.RemainingPayments)
	}

	ended, err = e.IsPaidTrialEnded(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ended {
		t.Error("trial not reported ended after first full cycle")
	}
}

func TestSubscribeTokenGates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)

	// Payment token outside the registry.
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testStranger,
	}); !errors.Is(err, ErrPaymentTokenUnusable) {
		t.Errorf("unsupported payment token: got %v, want ErrPaymentTokenUnusable", err)
	}

	// Supported token with no route to the settlement token.
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testGBP,
	}); !errors.Is(err, ErrNoSwapPath) {
		t.Errorf("unroutable payment token: got %v, want ErrNoSwapPath", err)
	}

	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: 99,
		PaymentToken:   testUSD,
	}); !errors.Is(err, ErrInvalidBillingModelID) {
		t.Errorf("missing model: got %v, want ErrInvalidBillingModelID", err)
	}
}

func TestCrossTokenSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)

	// Pay in EUR against a USD-settled model; conversion runs through
	// the direct pool.
	h.fund(testEUR, 75)
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testEUR,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.PaymentToken != testEUR || sub.SettlementToken != testUSD {
		t.Fatalf("token pair %s/%s", sub.PaymentToken.Hex(), sub.SettlementToken.Hex())
	}

	if got := h.balance(testEUR, testSubscriber); got != 60 {
		t.Errorf("subscriber EUR balance = %d, want 60", got)
	}
	if got := h.balance(testUSD, testMerchant); got <= 0 {
		t.Errorf("merchant received nothing: %d", got)
	}
}

func TestDynamicEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring, WithDynamic())

	// Dynamic recurring models require a recurring type but carry no
	// payment terms of their own.
	if _, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{Payee: testMerchant}); !errors.Is(err, ErrInvalidRecurringType) {
		t.Fatalf("missing recurring type: got %v, want ErrInvalidRecurringType", err)
	}

	m, err := e.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:         testMerchant,
		Name:          "dynamic plan",
		RecurringType: billing.RecurringNormal,
		// Provided terms are discarded; subscribers supply their own.
		Amount:          big.NewInt(999),
		SettlementToken: testUSD,
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Amount != nil || m.Frequency != 0 {
		t.Errorf("dynamic model retained terms: amount=%v frequency=%d", m.Amount, m.Frequency)
	}

	// Subscriber-supplied terms are validated at subscribe time.
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID:   m.ID,
		PaymentToken:     testUSD,
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
	}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("missing amount: got %v, want ErrInvalidAmount", err)
	}

	h.fund(testUSD, 100)
	sub, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID:   m.ID,
		PaymentToken:     testUSD,
		Amount:           big.NewInt(20),
		SettlementToken:  testUSD,
		Frequency:        600,
		NumberOfPayments: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Amount.Int64() != 20 || sub.Frequency != 600 {
		t.Errorf("subscriber terms not recorded: amount=%s frequency=%d", sub.Amount, sub.Frequency)
	}
	if got := h.balance(testUSD, testSubscriber); got != 80 {
		t.Errorf("subscriber balance = %d, want 80", got)
	}
}

func TestGettersAndIndexes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)
	h.fund(testUSD, 150)

	sub1, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}
	sub2, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{BillingModelID: m.ID, PaymentToken: testUSD})
	if err != nil {
		t.Fatal(err)
	}

	currentSub, err := e.CurrentSubscriptionID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if currentSub != sub2.ID {
		t.Errorf("CurrentSubscriptionID = %d, want %d", currentSub, sub2.ID)
	}
	currentModel, err := e.CurrentBillingModelID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if currentModel != m.ID {
		t.Errorf("CurrentBillingModelID = %d, want %d", currentModel, m.ID)
	}

	ids, err := e.BillingModelIDsByPayee(ctx, testMerchant)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != m.ID {
		t.Errorf("BillingModelIDsByPayee = %v", ids)
	}

	live, err := e.SubscriptionIDsBySubscriber(ctx, testSubscriber)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 2 {
		t.Fatalf("live subscriptions = %v", live)
	}

	if err := e.CancelSubscription(ctx, testSubscriber, sub1.ID); err != nil {
		t.Fatal(err)
	}
	live, _ = e.SubscriptionIDsBySubscriber(ctx, testSubscriber)
	cancelled, _ := e.CancelledSubscriptionIDsBySubscriber(ctx, testSubscriber)
	if len(live) != 1 || live[0] != sub2.ID {
		t.Errorf("live after cancel = %v", live)
	}
	if len(cancelled) != 1 || cancelled[0] != sub1.ID {
		t.Errorf("cancelled after cancel = %v", cancelled)
	}

	if _, err := e.GetSubscription(ctx, 99); !errors.Is(err, ErrInvalidSubscriptionID) {
		t.Errorf("missing subscription: got %v, want ErrInvalidSubscriptionID", err)
	}
	if _, err := e.GetPullPayment(ctx, 99); !errors.Is(err, ErrInvalidPullPaymentID) {
		t.Errorf("missing pull payment: got %v, want ErrInvalidPullPaymentID", err)
	}

	// The model's subscription index tracks both attachments.
	m, err = e.GetBillingModel(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.SubscriptionIDs) != 2 {
		t.Errorf("SubscriptionIDs = %v, want both", m.SubscriptionIDs)
	}
}

var errStoreDown = errors.New("store down")

// flakyIndexStore fails billing model updates on demand.
type flakyIndexStore struct {
	*memory.Store
	failModelUpdate bool
}

func (s *flakyIndexStore) UpdateBillingModel(ctx context.Context, engineID string, m *billing.BillingModel) error {
	if s.failModelUpdate {
		return errStoreDown
	}
	return s.Store.UpdateBillingModel(ctx, engineID, m)
}

func TestSubscribeSurfacesIndexUpdateFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fs := &flakyIndexStore{Store: h.st}
	e, err := NewEngine(billing.KindRecurring, fs, h.exec, h.reg, WithNow(func() int64 { return h.clock }))
	if err != nil {
		t.Fatal(err)
	}

	m := recurringModel(t, e)
	h.fund(testUSD, 75)

	fs.failModelUpdate = true
	if _, err := e.SubscribeToBillingModel(ctx, testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testUSD,
	}); !errors.Is(err, errStoreDown) {
		t.Fatalf("got %v, want the store failure surfaced", err)
	}

	// The subscription row was persisted before the index write; the
	// error tells the caller to reconcile rather than hiding the gap.
	if _, err := e.GetSubscription(ctx, 1); err != nil {
		t.Errorf("subscription row missing after surfaced failure: %v", err)
	}
}

func TestEnginesShareStoreWithoutCollisions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	recurring := h.engine(billing.KindRecurring)
	single := h.engine(billing.KindSingle)

	m1 := recurringModel(t, recurring)
	m2, err := single.CreateBillingModel(ctx, testMerchant, ModelSpec{
		Payee:           testMerchant,
		Name:            "one-off",
		Amount:          big.NewInt(100),
		SettlementToken: testUSD,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Both engines start their id space at 1 on the shared store.
	if m1.ID != 1 || m2.ID != 1 {
		t.Errorf("ids = %d/%d, want 1/1", m1.ID, m2.ID)
	}

	got, err := single.GetBillingModel(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "one-off" {
		t.Errorf("single engine resolved %q, want its own model", got.Name)
	}
}
