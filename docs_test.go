package pullpay_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/executor"
	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/swap"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run.
func TestDocumentationExamples(t *testing.T) {
	owner := types.HexToAddress("0x0000000000000000000000000000000000000A01")
	executorAddr := types.HexToAddress("0x0000000000000000000000000000000000000A02")
	ammAddr := types.HexToAddress("0x00000000000000000000000000000000000000AA")
	hubToken := types.HexToAddress("0x0000000000000000000000000000000000000B01")
	usd := types.HexToAddress("0x0000000000000000000000000000000000000B02")
	merchant := types.HexToAddress("0x00000000000000000000000000000000000001D0")
	subscriber := types.HexToAddress("0x00000000000000000000000000000000000001E0")

	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		// Wire the collaborators: ledger, AMM, registry, executor.
		ledger := token.NewMemory()
		amm := swap.NewMemory(ledger, ammAddr)
		reg := registry.New(owner, hubToken)
		exec := executor.New(ledger, amm, amm, reg, executorAddr, amm.Address())

		engine, err := pullpay.NewEngine(billing.KindRecurring, memory.New(), exec, reg)
		if err != nil {
			t.Fatal(err)
		}
		defer engine.Shutdown(ctx)

		if err := reg.AddToken(owner, usd); err != nil {
			t.Fatal(err)
		}

		// Merchant publishes a billing model.
		model, err := engine.CreateBillingModel(ctx, merchant, pullpay.ModelSpec{
			Payee:            merchant,
			Name:             "Pro",
			Amount:           big.NewInt(15),
			SettlementToken:  usd,
			Frequency:        600,
			NumberOfPayments: 5,
		})
		if err != nil {
			t.Fatal(err)
		}

		// Customer funds their account and approves the executor.
		ledger.Mint(usd, subscriber, big.NewInt(75))
		if err := ledger.Approve(ctx, usd, subscriber, executorAddr, big.NewInt(75)); err != nil {
			t.Fatal(err)
		}

		sub, err := engine.SubscribeToBillingModel(ctx, subscriber, pullpay.SubscribeSpec{
			BillingModelID: model.ID,
			PaymentToken:   usd,
		})
		if err != nil {
			t.Fatal(err)
		}
		if sub.RemainingPayments != 4 {
			t.Errorf("RemainingPayments = %d, want 4", sub.RemainingPayments)
		}
	})

	t.Run("DirectoryExample", func(t *testing.T) {
		ctx := context.Background()

		ledger := token.NewMemory()
		amm := swap.NewMemory(ledger, ammAddr)
		reg := registry.New(owner, hubToken)
		exec := executor.New(ledger, amm, amm, reg, executorAddr, amm.Address())
		st := memory.New()

		dir := pullpay.NewDirectory(owner)
		for _, kind := range []billing.Kind{billing.KindSingle, billing.KindRecurring} {
			engine, err := pullpay.NewEngine(kind, st, exec, reg)
			if err != nil {
				t.Fatal(err)
			}
			if err := dir.RegisterEngine(ctx, owner, engine.Name(), engine); err != nil {
				t.Fatal(err)
			}
		}

		if len(dir.Identifiers()) != 2 {
			t.Fatalf("Identifiers() = %v", dir.Identifiers())
		}
		if _, err := dir.EngineFor("RecurringPullPayment"); err != nil {
			t.Fatal(err)
		}
		if !dir.IsExecutorGranted(executorAddr) {
			t.Error("executor not granted through registration")
		}
	})

	t.Run("QuoteExample", func(t *testing.T) {
		ctx := context.Background()

		ledger := token.NewMemory()
		amm := swap.NewMemory(ledger, ammAddr)
		reg := registry.New(owner, hubToken)
		exec := executor.New(ledger, amm, amm, reg, executorAddr, amm.Address())

		// Same-token quotes apply the fee directly.
		q, err := exec.GetReceivingAmount(ctx, usd, usd, big.NewInt(1000))
		if err != nil {
			t.Fatal(err)
		}
		if q.ReceivingAmount.Int64() != 900 || q.ExecutionFee.Int64() != 100 {
			t.Errorf("quote = %s/%s, want 900/100", q.ReceivingAmount, q.ExecutionFee)
		}
	})
}
