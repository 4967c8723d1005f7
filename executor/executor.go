// Package executor implements the conversion engine: it resolves a swap
// path between the customer's payment token and the billing model's
// settlement token, invokes the AMM router, extracts the protocol
// execution fee and disburses merchant and fee receiver in one atomic
// operation.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/swap"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

var (
	ErrUnsupportedToken         = errors.New("executor: unsupported settlement token")
	ErrPaymentTokenNotSupported = errors.New("executor: payment token not supported")
	ErrNoSwapPath               = errors.New("executor: no swap path exists")
	ErrInvalidAmount            = errors.New("executor: invalid amount")
)

// Executor converts and settles pull payments. All collaborators are
// injected at construction and resolved once, never looked up per call.
type Executor struct {
	ledger     token.Ledger
	router     swap.Router
	factory    swap.Factory
	registry   *registry.Registry
	addr       types.Address // executor's own ledger account
	routerAddr types.Address // approved spender for swap input
	logger     *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor. addr is the executor's own ledger account used
// to hold swap output between conversion and disbursement; routerAddr is
// the router's spender account.
func New(ledger token.Ledger, router swap.Router, factory swap.Factory, reg *registry.Registry, addr, routerAddr types.Address, opts ...Option) *Executor {
	e := &Executor{
		ledger:     ledger,
		router:     router,
		factory:    factory,
		registry:   reg,
		addr:       addr,
		routerAddr: routerAddr,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Address returns the executor's ledger account. Customers approve this
// account before subscribing.
func (e *Executor) Address() types.Address { return e.addr }

// Quote is the result of a receiving-amount computation.
type Quote struct {
	// ReceivingAmount is what the merchant receives, in settlement token.
	ReceivingAmount *big.Int
	// UserPayableAmount is what the customer pays, in payment token.
	UserPayableAmount *big.Int
	// ExecutionFee is the protocol cut, in settlement token.
	ExecutionFee *big.Int
}

// GetReceivingAmount computes the merchant amount, customer payable
// amount and execution fee for settling `amount` of settlement value paid
// in paymentToken.
//
// Equal tokens skip conversion: the fee applies to the amount directly.
// Otherwise the amount is quoted through the swap path and the fee
// applies to the converted output.
func (e *Executor) GetReceivingAmount(ctx context.Context, paymentToken, settlementToken types.Address, amount *big.Int) (Quote, error) {
	if !types.IsPositive(amount) {
		return Quote{}, ErrInvalidAmount
	}

	feeRate := e.registry.ExecutionFee()

	if paymentToken == settlementToken {
		net, fee := types.SplitFee(amount, feeRate)
		return Quote{
			ReceivingAmount:   net,
			UserPayableAmount: new(big.Int).Set(amount),
			ExecutionFee:      fee,
		}, nil
	}

	canSwap, path, _, err := e.CanSwapFromV2(ctx, paymentToken, settlementToken)
	if err != nil {
		return Quote{}, err
	}
	if !canSwap {
		return Quote{}, ErrNoSwapPath
	}

	amounts, err := e.router.GetAmountsOut(ctx, amount, path)
	if err != nil {
		return Quote{}, err
	}
	converted := amounts[len(amounts)-1]

	net, fee := types.SplitFee(converted, feeRate)
	return Quote{
		ReceivingAmount:   net,
		UserPayableAmount: new(big.Int).Set(amount),
		ExecutionFee:      fee,
	}, nil
}

// CanSwapFromV2 probes routing existence between two tokens and returns
// the concrete forward and reverse hop sequences so callers can reuse
// them without re-querying.
//
// Identity (including hub-to-hub) is reported as non-swappable; callers
// special-case equal tokens as the fee-only path. A direct pair wins over
// hub routing; otherwise both tokenA–hub and hub–tokenB pairs must exist.
// Routing never exceeds two hops.
func (e *Executor) CanSwapFromV2(ctx context.Context, tokenA, tokenB types.Address) (bool, []types.Address, []types.Address, error) {
	if tokenA == tokenB {
		return false, nil, nil, nil
	}

	pair, err := e.factory.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		return false, nil, nil, err
	}
	if pair != types.ZeroAddress {
		return true,
			[]types.Address{tokenA, tokenB},
			[]types.Address{tokenB, tokenA},
			nil
	}

	hub := e.registry.HubToken()
	if tokenA == hub || tokenB == hub {
		// One side is the hub and no direct pair exists.
		return false, nil, nil, nil
	}

	pairA, err := e.factory.GetPair(ctx, tokenA, hub)
	if err != nil {
		return false, nil, nil, err
	}
	pairB, err := e.factory.GetPair(ctx, hub, tokenB)
	if err != nil {
		return false, nil, nil, err
	}
	if pairA == types.ZeroAddress || pairB == types.ZeroAddress {
		return false, nil, nil, nil
	}

	return true,
		[]types.Address{tokenA, hub, tokenB},
		[]types.Address{tokenB, hub, tokenA},
		nil
}

// Settlement is the outcome of an executed pull payment transfer.
type Settlement struct {
	// UserPaid is what left the payer, in payment token.
	UserPaid *big.Int
	// MerchantReceived is what the payee received, in settlement token.
	MerchantReceived *big.Int
	// Fee is what the fee receiver received, in settlement token.
	Fee *big.Int
}

// CanExecute reports whether payer currently holds and has approved
// enough paymentToken to cover amount. Used by the upkeep scheduler to
// decide between executing, skipping and auto-cancelling.
func (e *Executor) CanExecute(ctx context.Context, payer, paymentToken types.Address, amount *big.Int) (bool, error) {
	err := e.checkFunding(ctx, payer, paymentToken, amount)
	if errors.Is(err, token.ErrInsufficientBalance) || errors.Is(err, token.ErrInsufficientAllowance) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkFunding verifies payer balance and executor allowance cover the
// full amount. Shortfalls surface as the ledger's own sentinels so a
// pre-validated failure reads the same as a ledger rejection.
func (e *Executor) checkFunding(ctx context.Context, payer, paymentToken types.Address, amount *big.Int) error {
	balance, err := e.ledger.BalanceOf(ctx, paymentToken, payer)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return token.ErrInsufficientBalance
	}

	allowance, err := e.ledger.Allowance(ctx, paymentToken, payer, e.addr)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return token.ErrInsufficientAllowance
	}
	return nil
}

// Execute pulls `amount` of paymentToken from payer, converts it to the
// settlement token when the tokens differ, and disburses the merchant
// amount to payee and the execution fee to the configured receiver.
//
// Balance, allowance and (for converted settlement) the swap route are
// validated before any funds move, so a failed call leaves every balance
// untouched; ledger errors surface verbatim.
func (e *Executor) Execute(ctx context.Context, payer, payee, paymentToken, settlementToken types.Address, amount *big.Int) (Settlement, error) {
	if !types.IsPositive(amount) {
		return Settlement{}, ErrInvalidAmount
	}
	if !e.registry.IsSupportedToken(paymentToken) {
		return Settlement{}, ErrPaymentTokenNotSupported
	}
	if !e.registry.IsSupportedToken(settlementToken) {
		return Settlement{}, ErrUnsupportedToken
	}
	if err := e.checkFunding(ctx, payer, paymentToken, amount); err != nil {
		return Settlement{}, err
	}

	feeReceiver := e.registry.ExecutionFeeReceiver()

	if paymentToken == settlementToken {
		return e.settleDirect(ctx, payer, payee, feeReceiver, paymentToken, amount)
	}
	return e.settleConverted(ctx, payer, payee, feeReceiver, paymentToken, settlementToken, amount)
}

// settleDirect settles without conversion: fee on the amount itself.
func (e *Executor) settleDirect(ctx context.Context, payer, payee, feeReceiver, tok types.Address, amount *big.Int) (Settlement, error) {
	net, fee := types.SplitFee(amount, e.registry.ExecutionFee())

	if err := e.ledger.TransferFrom(ctx, tok, e.addr, payer, payee, net); err != nil {
		return Settlement{}, err
	}
	if fee.Sign() > 0 {
		if err := e.ledger.TransferFrom(ctx, tok, e.addr, payer, feeReceiver, fee); err != nil {
			return Settlement{}, err
		}
	}

	e.logger.Debug("executor: settled without conversion",
		"token", tok.Hex(),
		"merchant_amount", types.FormatAmount(net),
		"fee", types.FormatAmount(fee),
	)

	return Settlement{
		UserPaid:         new(big.Int).Set(amount),
		MerchantReceived: net,
		Fee:              fee,
	}, nil
}

// settleConverted pulls the payment token, swaps it along the resolved
// path, then splits the output between merchant and fee receiver.
func (e *Executor) settleConverted(ctx context.Context, payer, payee, feeReceiver, paymentToken, settlementToken types.Address, amount *big.Int) (Settlement, error) {
	canSwap, path, _, err := e.CanSwapFromV2(ctx, paymentToken, settlementToken)
	if err != nil {
		return Settlement{}, err
	}
	if !canSwap {
		return Settlement{}, ErrNoSwapPath
	}

	// Quote the route before pulling funds so a dead pool fails the
	// operation while the payer's balance is still untouched.
	if _, err := e.router.GetAmountsOut(ctx, amount, path); err != nil {
		return Settlement{}, err
	}

	if err := e.ledger.TransferFrom(ctx, paymentToken, e.addr, payer, e.addr, amount); err != nil {
		return Settlement{}, err
	}
	if err := e.ledger.Approve(ctx, paymentToken, e.addr, e.routerAddr, amount); err != nil {
		return Settlement{}, err
	}

	amounts, err := e.router.SwapExactTokensForTokens(ctx, e.addr, amount, nil, path, e.addr, 0)
	if err != nil {
		return Settlement{}, err
	}
	converted := amounts[len(amounts)-1]

	net, fee := types.SplitFee(converted, e.registry.ExecutionFee())
	if err := e.ledger.Transfer(ctx, settlementToken, e.addr, payee, net); err != nil {
		return Settlement{}, err
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(ctx, settlementToken, e.addr, feeReceiver, fee); err != nil {
			return Settlement{}, err
		}
	}

	e.logger.Debug("executor: settled with conversion",
		"payment_token", paymentToken.Hex(),
		"settlement_token", settlementToken.Hex(),
		"hops", len(path)-1,
		"merchant_amount", types.FormatAmount(net),
		"fee", types.FormatAmount(fee),
	)

	return Settlement{
		UserPaid:         new(big.Int).Set(amount),
		MerchantReceived: net,
		Fee:              fee,
	}, nil
}
