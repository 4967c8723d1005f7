package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a token contract or an account on the host ledger.
type Address = common.Address

// ZeroAddress is the reserved invalid address.
var ZeroAddress = common.Address{}

// HexToAddress parses a hex string into an Address.
var HexToAddress = common.HexToAddress

// BasisPointsDenominator is the denominator for fee rates expressed in
// basis points (1000 = 10%).
const BasisPointsDenominator = 10000

// Amount constructors. All token amounts are *big.Int in base units.

// NewAmount returns an amount from an int64 value.
func NewAmount(v int64) *big.Int { return big.NewInt(v) }

// ParseAmount parses a base-10 decimal string into an amount.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("types: parse amount %q: not a base-10 integer", s)
	}
	return v, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for
// hardcoded amounts in tests and fixtures.
func MustParseAmount(s string) *big.Int {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatAmount renders an amount as a base-10 decimal string.
// Nil amounts render as "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// IsPositive reports whether the amount is non-nil and greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Fee computes amount × rateBps / 10000 using integer arithmetic.
// The remainder is truncated, never rounded up, so the fee can never
// exceed the proportional share.
func Fee(amount *big.Int, rateBps uint16) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	return fee.Div(fee, big.NewInt(BasisPointsDenominator))
}

// SplitFee returns (amount − fee, fee) for the given basis-point rate.
func SplitFee(amount *big.Int, rateBps uint16) (net, fee *big.Int) {
	fee = Fee(amount, rateBps)
	net = new(big.Int).Sub(amount, fee)
	return net, fee
}
