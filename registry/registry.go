// Package registry holds the process-wide protocol configuration: the
// supported-token set, execution fee rate and receiver, the upkeep grace
// (extension) period, the hub token used for swap routing, and a
// string-keyed address book used at deployment wiring time.
//
// Mutations are restricted to the owner principal; engines and the
// executor only read, so the registry is append-mostly configuration with
// single-writer discipline.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/pullpay/types"
)

var (
	ErrNotOwner           = errors.New("registry: caller is not the owner")
	ErrInvalidFeeReceiver = errors.New("registry: invalid fee receiver")
	ErrInvalidFeeRate     = errors.New("registry: execution fee above 10000 basis points")
	ErrInvalidToken       = errors.New("registry: invalid token address")
	ErrIdentifierNotFound = errors.New("registry: identifier has no registry entry")
)

// Defaults, matching the protocol's reference deployment.
const (
	DefaultExecutionFee    uint16 = 1000 // 10%
	DefaultExtensionPeriod uint64 = 120  // seconds
)

// Registry is the core configuration registry.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	owner       types.Address
	hubToken    types.Address
	feeRate     uint16
	feeReceiver types.Address
	extension   uint64

	tokens    map[types.Address]struct{}
	tokenList []types.Address

	addressBook map[string]types.Address
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithExecutionFee sets the initial execution fee in basis points.
func WithExecutionFee(bps uint16) Option {
	return func(r *Registry) { r.feeRate = bps }
}

// WithFeeReceiver sets the initial execution fee receiver.
func WithFeeReceiver(addr types.Address) Option {
	return func(r *Registry) { r.feeReceiver = addr }
}

// WithExtensionPeriod sets the upkeep grace window in seconds.
func WithExtensionPeriod(seconds uint64) Option {
	return func(r *Registry) { r.extension = seconds }
}

// New creates a Registry owned by owner, routing conversions through
// hubToken. The hub token is always a supported token.
func New(owner, hubToken types.Address, opts ...Option) *Registry {
	r := &Registry{
		logger:      slog.Default(),
		owner:       owner,
		hubToken:    hubToken,
		feeRate:     DefaultExecutionFee,
		feeReceiver: owner,
		extension:   DefaultExtensionPeriod,
		tokens:      make(map[types.Address]struct{}),
		addressBook: make(map[string]types.Address),
	}

	for _, opt := range opts {
		opt(r)
	}

	if hubToken != types.ZeroAddress {
		r.tokens[hubToken] = struct{}{}
		r.tokenList = append(r.tokenList, hubToken)
	}

	return r
}

// Owner returns the administrative principal.
func (r *Registry) Owner() types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// HubToken returns the designated routing intermediary for swaps.
func (r *Registry) HubToken() types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hubToken
}

// ──────────────────────────────────────────────────
// Supported tokens
// ──────────────────────────────────────────────────

// AddToken adds a token to the supported set. Owner only. Adding an
// already-supported token is a no-op.
func (r *Registry) AddToken(caller, token types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	if token == types.ZeroAddress {
		return ErrInvalidToken
	}
	if _, ok := r.tokens[token]; ok {
		return nil
	}

	r.tokens[token] = struct{}{}
	r.tokenList = append(r.tokenList, token)
	r.logger.Info("registry: token added", "token", token.Hex())
	return nil
}

// RemoveToken removes a token from the supported set. Owner only.
func (r *Registry) RemoveToken(caller, token types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	if _, ok := r.tokens[token]; !ok {
		return nil
	}

	delete(r.tokens, token)
	for i, t := range r.tokenList {
		if t == token {
			r.tokenList = append(r.tokenList[:i], r.tokenList[i+1:]...)
			break
		}
	}
	r.logger.Info("registry: token removed", "token", token.Hex())
	return nil
}

// IsSupportedToken reports membership in the supported-token set.
func (r *Registry) IsSupportedToken(token types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[token]
	return ok
}

// SupportedTokens returns the supported tokens in insertion order.
func (r *Registry) SupportedTokens() []types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Address, len(r.tokenList))
	copy(out, r.tokenList)
	return out
}

// ──────────────────────────────────────────────────
// Execution fee
// ──────────────────────────────────────────────────

// ExecutionFee returns the protocol fee rate in basis points.
func (r *Registry) ExecutionFee() uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeRate
}

// UpdateExecutionFee sets the protocol fee rate. Owner only.
func (r *Registry) UpdateExecutionFee(caller types.Address, bps uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	if bps > types.BasisPointsDenominator {
		return ErrInvalidFeeRate
	}
	r.feeRate = bps
	return nil
}

// ExecutionFeeReceiver returns the account fees are disbursed to.
func (r *Registry) ExecutionFeeReceiver() types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeReceiver
}

// UpdateExecutionFeeReceiver sets the fee receiver. Owner only; the zero
// address is rejected.
func (r *Registry) UpdateExecutionFeeReceiver(caller, receiver types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	if receiver == types.ZeroAddress {
		return ErrInvalidFeeReceiver
	}
	r.feeReceiver = receiver
	return nil
}

// ──────────────────────────────────────────────────
// Extension period
// ──────────────────────────────────────────────────

// ExtensionPeriod returns the upkeep grace window in seconds. A due
// subscription with insufficient funds is skipped until the window
// elapses, then auto-cancelled.
func (r *Registry) ExtensionPeriod() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extension
}

// UpdateExtensionPeriod sets the upkeep grace window. Owner only.
func (r *Registry) UpdateExtensionPeriod(caller types.Address, seconds uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	r.extension = seconds
	return nil
}

// ──────────────────────────────────────────────────
// Address book
// ──────────────────────────────────────────────────

// SetAddressFor binds an identifier to an address. Owner only.
func (r *Registry) SetAddressFor(caller types.Address, identifier string, addr types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return ErrNotOwner
	}
	r.addressBook[identifier] = addr
	r.logger.Info("registry: address set", "identifier", identifier, "address", addr.Hex())
	return nil
}

// GetAddressFor returns the address bound to identifier, or the zero
// address when unbound.
func (r *Registry) GetAddressFor(identifier string) types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addressBook[identifier]
}

// GetAddressForOrDie returns the address bound to identifier, failing
// when no entry exists.
func (r *Registry) GetAddressForOrDie(identifier string) (types.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.addressBook[identifier]
	if !ok {
		return types.ZeroAddress, ErrIdentifierNotFound
	}
	return addr, nil
}

// IsOneOf reports whether addr is bound to any of the identifiers.
func (r *Registry) IsOneOf(identifiers []string, addr types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identifier := range identifiers {
		if bound, ok := r.addressBook[identifier]; ok && bound == addr {
			return true
		}
	}
	return false
}
