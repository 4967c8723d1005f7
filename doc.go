// Package pullpay provides a recurring pull-payment engine for Go applications.
//
// PullPay is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - Parameterized billing-model and subscription state machines covering
//     single, recurring, free-trial and paid-trial payment kinds
//   - Dynamic engines that take payment terms per subscription
//   - Token conversion at execution time through an AMM router, with
//     two-hop routing via a configurable hub token
//   - A core registry for fee rate, fee receiver and token whitelisting
//   - An engine directory with executor account grants
//   - Keeper-style upkeep that collects due payments and force-cancels
//     uncollectible subscriptions after a grace window
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/pullpay"
//	    "github.com/xraph/pullpay/billing"
//	    "github.com/xraph/pullpay/executor"
//	    "github.com/xraph/pullpay/registry"
//	    "github.com/xraph/pullpay/store/memory"
//	    "github.com/xraph/pullpay/swap"
//	    "github.com/xraph/pullpay/token"
//	)
//
//	ledger := token.NewMemory()
//	amm := swap.NewMemory(ledger, ammAddr)
//	reg := registry.New(owner, hubToken)
//	exec := executor.New(ledger, amm, amm, reg, executorAddr, amm.Address())
//
//	engine, err := pullpay.NewEngine(billing.KindRecurring, memory.New(), exec, reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Core Concepts
//
// Billing models define payment terms published by a merchant:
//
//	model, err := engine.CreateBillingModel(ctx, merchant, pullpay.ModelSpec{
//	    Payee:            merchant,
//	    Name:             "Pro",
//	    Amount:           big.NewInt(15),
//	    SettlementToken:  usd,
//	    Frequency:        600,
//	    NumberOfPayments: 5,
//	})
//
// Subscriptions bind a subscriber and payment token to a model:
//
//	sub, err := engine.SubscribeToBillingModel(ctx, subscriber, pullpay.SubscribeSpec{
//	    BillingModelID: model.ID,
//	    PaymentToken:   wbnb,
//	})
//
// Payments after the first are collected when due, either directly or by
// the keeper loop:
//
//	receipt, err := engine.ExecutePullPayment(ctx, caller, sub.ID)
//
// # Conversion
//
// The payment token need not equal the settlement token. At execution time
// the executor swaps the pulled amount through the AMM, preferring a direct
// pair and falling back to a two-hop route through the hub token. The
// execution fee is always taken from the converted output.
//
// All amounts are *big.Int and all arithmetic is integer arithmetic.
//
// # TypeID
//
// Events and payment receipts use TypeID for globally unique, type-safe
// identifiers:
//
//	evt_01h2xcejqtf2nbrexx3vqjhp41   // Event ID
//	rcpt_01h455vb4pex5vsknk084sn02q  // Receipt ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package pullpay
