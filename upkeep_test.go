package pullpay

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/xraph/pullpay/billing"
)

// upkeepHarness subscribes one recurring customer and leaves the clock
// just before the second cycle opens.
func upkeepHarness(t *testing.T) (*harness, *Engine, uint64) {
	t.Helper()
	h := newHarness(t)
	e := h.engine(billing.KindRecurring)
	m := recurringModel(t, e)
	h.fund(testUSD, 75)

	sub, err := e.SubscribeToBillingModel(context.Background(), testSubscriber, SubscribeSpec{
		BillingModelID: m.ID,
		PaymentToken:   testUSD,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h, e, sub.ID
}

func TestCheckUpkeepNoneDue(t *testing.T) {
	_, e, _ := upkeepHarness(t)

	needed, data, err := e.CheckUpkeep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("upkeep reported needed before the window opened")
	}
	if data != nil {
		t.Errorf("perform data = %q, want nil", data)
	}
}

func TestUpkeepExecutesDue(t *testing.T) {
	h, e, subID := upkeepHarness(t)
	ctx := context.Background()

	h.clock += 600
	needed, data, err := e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("upkeep not reported needed")
	}

	var batch UpkeepData
	if err := json.Unmarshal(data, &batch); err != nil {
		t.Fatal(err)
	}
	if len(batch.SubscriptionIDs) != 1 || batch.SubscriptionIDs[0] != subID {
		t.Fatalf("batch = %v, want [%d]", batch.SubscriptionIDs, subID)
	}

	if err := e.PerformUpkeep(ctx, testKeeper, data); err != nil {
		t.Fatal(err)
	}

	sub, err := e.GetSubscription(ctx, subID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.RemainingPayments != 3 {
		t.Errorf("RemainingPayments = %d, want 3", sub.RemainingPayments)
	}
	if sub.LastPaymentTimestamp != h.clock {
		t.Errorf("LastPaymentTimestamp = %d, want %d", sub.LastPaymentTimestamp, h.clock)
	}

	// The batch is no longer due.
	needed, _, err = e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("upkeep still reported needed after execution")
	}
}

func TestUpkeepSkipsUnderfundedWithinGrace(t *testing.T) {
	h, e, subID := upkeepHarness(t)
	ctx := context.Background()

	// Drain the subscriber's remaining allowance so the next cycle is
	// underfunded.
	if err := h.ledger.Approve(ctx, testUSD, testSubscriber, testExecutorAddr, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}

	// 60 seconds into the window, well inside the 120 second grace.
	h.clock += 660
	needed, data, err := e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("upkeep not reported needed")
	}
	if err := e.PerformUpkeep(ctx, testKeeper, data); err != nil {
		t.Fatal(err)
	}

	sub, err := e.GetSubscription(ctx, subID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Cancelled() {
		t.Error("subscription cancelled inside the grace window")
	}
	if sub.RemainingPayments != 4 {
		t.Errorf("RemainingPayments = %d, want 4 (skipped)", sub.RemainingPayments)
	}
}

func TestUpkeepCancelsAfterGrace(t *testing.T) {
	h, e, subID := upkeepHarness(t)
	ctx := context.Background()

	if err := h.ledger.Approve(ctx, testUSD, testSubscriber, testExecutorAddr, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}

	// Grace window fully elapsed.
	h.clock += 600 + 120
	_, data, err := e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.PerformUpkeep(ctx, testKeeper, data); err != nil {
		t.Fatal(err)
	}

	sub, err := e.GetSubscription(ctx, subID)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Cancelled() {
		t.Fatal("subscription not cancelled after grace elapsed")
	}
	if !sub.UpkeepDisabled {
		t.Error("UpkeepDisabled not set on forced cancel")
	}
	if sub.CancelledBy != testKeeper {
		t.Errorf("CancelledBy = %s, want keeper", sub.CancelledBy.Hex())
	}

	// A refunded customer cannot revive the subscription.
	h.fund(testUSD, 75)
	h.clock += 600
	needed, _, err := e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("cancelled subscription reported due again")
	}
}

func TestUpkeepRefundedInsideGrace(t *testing.T) {
	h, e, subID := upkeepHarness(t)
	ctx := context.Background()

	if err := h.ledger.Approve(ctx, testUSD, testSubscriber, testExecutorAddr, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}

	// First round skips.
	h.clock += 630
	_, data, err := e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.PerformUpkeep(ctx, testKeeper, data); err != nil {
		t.Fatal(err)
	}

	// The customer re-approves before the grace elapses; the next round
	// executes normally.
	if err := h.ledger.Approve(ctx, testUSD, testSubscriber, testExecutorAddr, big.NewInt(60)); err != nil {
		t.Fatal(err)
	}
	h.clock += 60
	_, data, err = e.CheckUpkeep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.PerformUpkeep(ctx, testKeeper, data); err != nil {
		t.Fatal(err)
	}

	sub, err := e.GetSubscription(ctx, subID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Cancelled() {
		t.Error("subscription cancelled despite recovered funding")
	}
	if sub.RemainingPayments != 3 {
		t.Errorf("RemainingPayments = %d, want 3", sub.RemainingPayments)
	}
}

func TestPerformUpkeepInvalidData(t *testing.T) {
	_, e, _ := upkeepHarness(t)

	if err := e.PerformUpkeep(context.Background(), testKeeper, []byte("not json")); err == nil {
		t.Error("garbage perform data accepted")
	}
}

func TestPerformUpkeepUnknownSubscription(t *testing.T) {
	_, e, _ := upkeepHarness(t)

	data, err := json.Marshal(UpkeepData{SubscriptionIDs: []uint64{42}})
	if err != nil {
		t.Fatal(err)
	}
	// Unknown ids are logged and skipped, never fatal to the batch.
	if err := e.PerformUpkeep(context.Background(), testKeeper, data); err != nil {
		t.Errorf("unknown id failed the batch: %v", err)
	}
}
