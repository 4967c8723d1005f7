// Package swap defines the AMM router and factory collaborators consumed
// by the executor, plus an in-memory constant-product AMM for tests and
// local wiring.
package swap

import (
	"context"
	"math/big"

	"github.com/xraph/pullpay/types"
)

// Factory exposes pair discovery on the AMM.
type Factory interface {
	// GetPair returns the pair address for the two tokens, or the zero
	// address when no pair exists. Order-insensitive.
	GetPair(ctx context.Context, tokenA, tokenB types.Address) (types.Address, error)

	// CreatePair deploys a pair for the two tokens and returns its address.
	CreatePair(ctx context.Context, tokenA, tokenB types.Address) (types.Address, error)
}

// Router executes conversions along an ordered token path.
type Router interface {
	// GetAmountsOut computes the output amount at every hop of the path
	// for the given input amount, without executing.
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []types.Address) ([]*big.Int, error)

	// SwapExactTokensForTokens swaps amountIn of path[0] into path[len-1],
	// crediting the final output to `to`. Fails when the realized output
	// is below minOut or the unix deadline has passed. The caller must
	// have approved the router for amountIn beforehand.
	SwapExactTokensForTokens(ctx context.Context, caller types.Address, amountIn, minOut *big.Int, path []types.Address, to types.Address, deadline int64) ([]*big.Int, error)
}
