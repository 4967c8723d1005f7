package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/types"
)

const (
	engineA = "RecurringPullPayment"
	engineB = "SinglePullPayment"
)

var (
	payee      = types.HexToAddress("0x00000000000000000000000000000000000001D0")
	subscriber = types.HexToAddress("0x00000000000000000000000000000000000001E0")
)

func model(id uint64, ref string) *billing.BillingModel {
	return &billing.BillingModel{
		Entity:          types.NewEntity(),
		ID:              id,
		Payee:           payee,
		Name:            ref,
		UniqueReference: ref,
		Amount:          big.NewInt(15),
	}
}

func subscription(id uint64, ref string) *billing.Subscription {
	return &billing.Subscription{
		Entity:               types.NewEntity(),
		ID:                   id,
		BillingModelID:       1,
		Subscriber:           subscriber,
		Amount:               big.NewInt(15),
		TotalPayments:        5,
		RemainingPayments:    5,
		NextPaymentTimestamp: 1000,
		UniqueReference:      ref,
	}
}

func TestEngineNamespacing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateBillingModel(ctx, engineA, model(1, "ref")); err != nil {
		t.Fatal(err)
	}
	// Same id and reference under another engine id is fine.
	if err := s.CreateBillingModel(ctx, engineB, model(1, "ref")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetBillingModel(ctx, engineA, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetBillingModel(ctx, "other", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign engine read: got %v, want ErrNotFound", err)
	}
}

func TestDuplicateDetection(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateBillingModel(ctx, engineA, model(1, "ref-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateBillingModel(ctx, engineA, model(1, "ref-b")); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate id: got %v, want ErrDuplicate", err)
	}
	if err := s.CreateBillingModel(ctx, engineA, model(2, "ref-a")); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate reference: got %v, want ErrDuplicate", err)
	}

	if err := s.CreateSubscription(ctx, engineA, subscription(1, "sub-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(ctx, engineA, subscription(2, "sub-a")); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate subscription reference: got %v, want ErrDuplicate", err)
	}
}

func TestReferenceLookups(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateBillingModel(ctx, engineA, model(1, "plan-gold")); err != nil {
		t.Fatal(err)
	}
	m, err := s.GetBillingModelByReference(ctx, engineA, "plan-gold")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != 1 {
		t.Errorf("ID = %d, want 1", m.ID)
	}
	if _, err := s.GetBillingModelByReference(ctx, engineA, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing reference: got %v, want ErrNotFound", err)
	}

	exists, err := s.BillingModelNameExists(ctx, engineA, "plan-gold")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("name not found")
	}
	exists, _ = s.BillingModelNameExists(ctx, engineA, "nope")
	if exists {
		t.Error("phantom name found")
	}
}

func TestCounters(t *testing.T) {
	s := New()
	ctx := context.Background()

	cur, err := s.CurrentBillingModelID(ctx, engineA)
	if err != nil {
		t.Fatal(err)
	}
	if cur != 0 {
		t.Errorf("fresh current = %d, want 0", cur)
	}

	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextBillingModelID(ctx, engineA)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("NextBillingModelID = %d, want %d", got, want)
		}
	}

	// Counters are per engine and per entity.
	got, err := s.NextBillingModelID(ctx, engineB)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("engineB NextBillingModelID = %d, want 1", got)
	}
	got, err = s.NextSubscriptionID(ctx, engineA)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("NextSubscriptionID = %d, want 1", got)
	}

	cur, _ = s.CurrentBillingModelID(ctx, engineA)
	if cur != 3 {
		t.Errorf("current = %d, want 3", cur)
	}
}

func TestListDueSubscriptions(t *testing.T) {
	s := New()
	ctx := context.Background()

	due := subscription(1, "due")
	due.NextPaymentTimestamp = 500

	notYet := subscription(2, "not-yet")
	notYet.NextPaymentTimestamp = 2000

	cancelled := subscription(3, "cancelled")
	cancelled.NextPaymentTimestamp = 500
	cancelled.CancelTimestamp = 400

	exhausted := subscription(4, "exhausted")
	exhausted.NextPaymentTimestamp = 500
	exhausted.RemainingPayments = 0

	disabled := subscription(5, "disabled")
	disabled.NextPaymentTimestamp = 500
	disabled.UpkeepDisabled = true

	for _, sub := range []*billing.Subscription{due, notYet, cancelled, exhausted, disabled} {
		if err := s.CreateSubscription(ctx, engineA, sub); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListDueSubscriptions(ctx, engineA, 1000, store.ListOpts{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		ids := make([]uint64, len(got))
		for i, sub := range got {
			ids[i] = sub.ID
		}
		t.Errorf("due ids = %v, want [1]", ids)
	}
}

func TestUpdateMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.UpdateBillingModel(ctx, engineA, model(1, "ref")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("model: got %v, want ErrNotFound", err)
	}
	if err := s.UpdateSubscription(ctx, engineA, subscription(1, "ref")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("subscription: got %v, want ErrNotFound", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	in := model(1, "ref")
	if err := s.CreateBillingModel(ctx, engineA, in); err != nil {
		t.Fatal(err)
	}

	// Mutating either side must not leak through the store.
	in.Amount.SetInt64(999)
	in.Name = "mutated"

	out, err := s.GetBillingModel(ctx, engineA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Amount.Int64() != 15 {
		t.Errorf("stored amount mutated: %s", out.Amount)
	}
	if out.Name != "ref" {
		t.Errorf("stored name mutated: %q", out.Name)
	}

	out.Amount.SetInt64(777)
	again, _ := s.GetBillingModel(ctx, engineA, 1)
	if again.Amount.Int64() != 15 {
		t.Errorf("read-side mutation leaked: %s", again.Amount)
	}
}

func TestListBySubscriberAndPayee(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateBillingModel(ctx, engineA, model(1, "a")); err != nil {
		t.Fatal(err)
	}
	other := model(2, "b")
	other.Payee = subscriber
	if err := s.CreateBillingModel(ctx, engineA, other); err != nil {
		t.Fatal(err)
	}

	models, err := s.ListBillingModelsByPayee(ctx, engineA, payee)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 1 || models[0].ID != 1 {
		t.Errorf("models by payee = %d entries", len(models))
	}

	if err := s.CreateSubscription(ctx, engineA, subscription(1, "s1")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(ctx, engineA, subscription(2, "s2")); err != nil {
		t.Fatal(err)
	}
	subs, err := s.ListSubscriptionsBySubscriber(ctx, engineA, subscriber)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Errorf("subscriptions = %d entries, want 2", len(subs))
	}
	if subs[0].ID > subs[1].ID {
		t.Error("subscriptions not sorted by id")
	}
}
