package token

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/xraph/pullpay/types"
)

// Native ledger errors. The executor passes these through verbatim, so
// the strings match the host ledger's conventions.
var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrZeroAddress           = errors.New("token: transfer involving the zero address")
)

// compile-time interface check
var _ Ledger = (*Memory)(nil)

// Memory is an in-memory multi-token ledger with standard
// balance/allowance semantics. Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	// token -> holder -> balance
	balances map[types.Address]map[types.Address]*big.Int
	// token -> owner -> spender -> allowance
	allowances map[types.Address]map[types.Address]map[types.Address]*big.Int
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[types.Address]map[types.Address]*big.Int),
		allowances: make(map[types.Address]map[types.Address]map[types.Address]*big.Int),
	}
}

// Mint credits amount of token to holder. Test/deployment seeding only;
// the production ledger mints through its own mechanisms.
func (m *Memory) Mint(token, holder types.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceLocked(token, holder)
	m.setBalanceLocked(token, holder, new(big.Int).Add(bal, amount))
}

// BalanceOf implements Ledger.
func (m *Memory) BalanceOf(_ context.Context, token, holder types.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return new(big.Int).Set(m.balanceLocked(token, holder)), nil
}

// Transfer implements Ledger.
func (m *Memory) Transfer(_ context.Context, token, from, to types.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.moveLocked(token, from, to, amount)
}

// TransferFrom implements Ledger.
func (m *Memory) TransferFrom(_ context.Context, token, spender, from, to types.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowance := m.allowanceLocked(token, from, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.moveLocked(token, from, to, amount); err != nil {
		return err
	}
	m.setAllowanceLocked(token, from, spender, new(big.Int).Sub(allowance, amount))
	return nil
}

// Approve implements Ledger.
func (m *Memory) Approve(_ context.Context, token, owner, spender types.Address, amount *big.Int) error {
	if owner == types.ZeroAddress || spender == types.ZeroAddress {
		return ErrZeroAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.setAllowanceLocked(token, owner, spender, new(big.Int).Set(amount))
	return nil
}

// Allowance implements Ledger.
func (m *Memory) Allowance(_ context.Context, token, owner, spender types.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return new(big.Int).Set(m.allowanceLocked(token, owner, spender)), nil
}

// moveLocked validates then applies a balance move. Callers hold the lock.
func (m *Memory) moveLocked(token, from, to types.Address, amount *big.Int) error {
	if from == types.ZeroAddress || to == types.ZeroAddress {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInsufficientBalance
	}

	fromBal := m.balanceLocked(token, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	m.setBalanceLocked(token, from, new(big.Int).Sub(fromBal, amount))
	toBal := m.balanceLocked(token, to)
	m.setBalanceLocked(token, to, new(big.Int).Add(toBal, amount))
	return nil
}

func (m *Memory) balanceLocked(token, holder types.Address) *big.Int {
	if holders, ok := m.balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return bal
		}
	}
	return new(big.Int)
}

func (m *Memory) setBalanceLocked(token, holder types.Address, amount *big.Int) {
	holders, ok := m.balances[token]
	if !ok {
		holders = make(map[types.Address]*big.Int)
		m.balances[token] = holders
	}
	holders[holder] = amount
}

func (m *Memory) allowanceLocked(token, owner, spender types.Address) *big.Int {
	if owners, ok := m.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if allowance, ok := spenders[spender]; ok {
				return allowance
			}
		}
	}
	return new(big.Int)
}

func (m *Memory) setAllowanceLocked(token, owner, spender types.Address, amount *big.Int) {
	owners, ok := m.allowances[token]
	if !ok {
		owners = make(map[types.Address]map[types.Address]*big.Int)
		m.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[types.Address]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = amount
}
