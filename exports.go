package pullpay

import "github.com/xraph/pullpay/types"

// Re-export common types for convenience so users don't have to import types package.

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export address helpers
var (
	ZeroAddress  = types.ZeroAddress
	HexToAddress = types.HexToAddress
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
