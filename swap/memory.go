package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

var (
	ErrPairExists         = errors.New("swap: pair exists")
	ErrInvalidPath        = errors.New("swap: invalid path")
	ErrNoLiquidity        = errors.New("swap: insufficient liquidity")
	ErrInsufficientOutput = errors.New("swap: insufficient output amount")
	ErrExpired            = errors.New("swap: expired")
)

// compile-time interface checks
var (
	_ Factory = (*Memory)(nil)
	_ Router  = (*Memory)(nil)
)

// swapFeeNumerator/swapFeeDenominator encode the AMM's 0.3% swap fee.
const (
	swapFeeNumerator   = 997
	swapFeeDenominator = 1000
)

type pair struct {
	addr     types.Address
	token0   types.Address
	token1   types.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

// Memory is an in-memory constant-product AMM implementing both Factory
// and Router against a token.Ledger. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	ledger token.Ledger
	addr   types.Address
	pairs  map[[2]types.Address]*pair
	nextID uint64
}

// NewMemory creates an AMM holding pair reserves on the given ledger.
// addr is the router's own ledger account; callers approve it before
// swapping, exactly as with a deployed router.
func NewMemory(ledger token.Ledger, addr types.Address) *Memory {
	return &Memory{
		ledger: ledger,
		addr:   addr,
		pairs:  make(map[[2]types.Address]*pair),
		nextID: 1,
	}
}

// Address returns the router's ledger account.
func (m *Memory) Address() types.Address { return m.addr }

// GetPair implements Factory.
func (m *Memory) GetPair(_ context.Context, tokenA, tokenB types.Address) (types.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.pairs[pairKey(tokenA, tokenB)]; ok {
		return p.addr, nil
	}
	return types.ZeroAddress, nil
}

// CreatePair implements Factory.
func (m *Memory) CreatePair(_ context.Context, tokenA, tokenB types.Address) (types.Address, error) {
	if tokenA == tokenB || tokenA == types.ZeroAddress || tokenB == types.ZeroAddress {
		return types.ZeroAddress, ErrInvalidPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(tokenA, tokenB)
	if _, ok := m.pairs[key]; ok {
		return types.ZeroAddress, ErrPairExists
	}

	// Synthetic deterministic pair account: high byte marks AMM pairs so
	// fixtures never collide with real participants.
	var addr types.Address
	addr[0] = 0xAA
	id := m.nextID
	m.nextID++
	for i := 0; i < 8; i++ {
		addr[19-i] = byte(id >> (8 * i))
	}

	m.pairs[key] = &pair{
		addr:     addr,
		token0:   key[0],
		token1:   key[1],
		reserve0: new(big.Int),
		reserve1: new(big.Int),
	}
	return addr, nil
}

// AddLiquidity moves reserves from the provider into the pair account and
// records them. The pair is created when absent.
func (m *Memory) AddLiquidity(ctx context.Context, provider, tokenA, tokenB types.Address, amountA, amountB *big.Int) error {
	key := pairKey(tokenA, tokenB)

	m.mu.Lock()
	p, ok := m.pairs[key]
	m.mu.Unlock()
	if !ok {
		if _, err := m.CreatePair(ctx, tokenA, tokenB); err != nil {
			return err
		}
		m.mu.Lock()
		p = m.pairs[key]
		m.mu.Unlock()
	}

	if err := m.ledger.Transfer(ctx, tokenA, provider, p.addr, amountA); err != nil {
		return err
	}
	if err := m.ledger.Transfer(ctx, tokenB, provider, p.addr, amountB); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p.token0 == tokenA {
		p.reserve0.Add(p.reserve0, amountA)
		p.reserve1.Add(p.reserve1, amountB)
	} else {
		p.reserve0.Add(p.reserve0, amountB)
		p.reserve1.Add(p.reserve1, amountA)
	}
	return nil
}

// GetAmountsOut implements Router using the constant-product formula with
// the 0.3% swap fee at each hop.
func (m *Memory) GetAmountsOut(_ context.Context, amountIn *big.Int, path []types.Address) ([]*big.Int, error) {
	if len(path) < 2 || amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.amountsOutLocked(amountIn, path)
}

// amountsOutLocked walks the path hop by hop. Callers hold the lock.
func (m *Memory) amountsOutLocked(amountIn *big.Int, path []types.Address) ([]*big.Int, error) {
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		p, ok := m.pairs[pairKey(path[i], path[i+1])]
		if !ok {
			return nil, ErrInvalidPath
		}
		rIn, rOut := p.reservesFor(path[i])
		out, err := amountOut(amounts[i], rIn, rOut)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// SwapExactTokensForTokens implements Router. Reserves and ledger
// balances move together under the AMM lock.
func (m *Memory) SwapExactTokensForTokens(ctx context.Context, caller types.Address, amountIn, minOut *big.Int, path []types.Address, to types.Address, deadline int64) ([]*big.Int, error) {
	if deadline > 0 && time.Now().Unix() > deadline {
		return nil, ErrExpired
	}
	if len(path) < 2 || amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	amounts, err := m.amountsOutLocked(amountIn, path)
	if err != nil {
		return nil, err
	}
	final := amounts[len(amounts)-1]
	if minOut != nil && final.Cmp(minOut) < 0 {
		return nil, ErrInsufficientOutput
	}

	// Pull the input into the first pair, then roll hop by hop.
	first := m.pairs[pairKey(path[0], path[1])]
	if err := m.ledger.TransferFrom(ctx, path[0], m.addr, caller, first.addr, amountIn); err != nil {
		return nil, err
	}

	for i := 0; i < len(path)-1; i++ {
		p := m.pairs[pairKey(path[i], path[i+1])]
		p.apply(path[i], amounts[i], amounts[i+1])

		dest := to
		if i < len(path)-2 {
			dest = m.pairs[pairKey(path[i+1], path[i+2])].addr
		}
		if err := m.ledger.Transfer(ctx, path[i+1], p.addr, dest, amounts[i+1]); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// amountOut computes in×997×rOut / (rIn×1000 + in×997).
func amountOut(in, rIn, rOut *big.Int) (*big.Int, error) {
	if rIn.Sign() <= 0 || rOut.Sign() <= 0 {
		return nil, ErrNoLiquidity
	}
	inWithFee := new(big.Int).Mul(in, big.NewInt(swapFeeNumerator))
	num := new(big.Int).Mul(inWithFee, rOut)
	den := new(big.Int).Mul(rIn, big.NewInt(swapFeeDenominator))
	den.Add(den, inWithFee)
	return num.Div(num, den), nil
}

// reservesFor returns (reserveIn, reserveOut) oriented for tokenIn.
func (p *pair) reservesFor(tokenIn types.Address) (*big.Int, *big.Int) {
	if tokenIn == p.token0 {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

// apply updates reserves for a swap of `in` tokenIn against `out`.
func (p *pair) apply(tokenIn types.Address, in, out *big.Int) {
	if tokenIn == p.token0 {
		p.reserve0.Add(p.reserve0, in)
		p.reserve1.Sub(p.reserve1, out)
	} else {
		p.reserve1.Add(p.reserve1, in)
		p.reserve0.Sub(p.reserve0, out)
	}
}

// pairKey orders two token addresses into a canonical map key.
func pairKey(a, b types.Address) [2]types.Address {
	if bytesLess(a, b) {
		return [2]types.Address{a, b}
	}
	return [2]types.Address{b, a}
}

func bytesLess(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
