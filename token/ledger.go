// Package token defines the opaque token-ledger collaborator consumed by
// the executor, plus an in-memory multi-token ledger for tests and local
// wiring. Consensus, finality and signature verification belong to the
// host ledger and are out of scope here.
package token

import (
	"context"
	"math/big"

	"github.com/xraph/pullpay/types"
)

// Ledger is the fungible-token transfer primitive. All amounts are token
// base units. Implementations must treat every call as atomic: a failed
// call leaves no partial state.
type Ledger interface {
	// BalanceOf returns holder's balance of the given token.
	BalanceOf(ctx context.Context, token, holder types.Address) (*big.Int, error)

	// Transfer moves amount from the caller account to the recipient.
	Transfer(ctx context.Context, token, from, to types.Address, amount *big.Int) error

	// TransferFrom moves amount from `from` to `to` on behalf of spender,
	// consuming spender's allowance. Insufficient balance or allowance
	// errors surface unmodified to the caller.
	TransferFrom(ctx context.Context, token, spender, from, to types.Address, amount *big.Int) error

	// Approve sets spender's allowance over owner's tokens.
	Approve(ctx context.Context, token, owner, spender types.Address, amount *big.Int) error

	// Allowance returns the remaining amount spender may pull from owner.
	Allowance(ctx context.Context, token, owner, spender types.Address) (*big.Int, error)
}
