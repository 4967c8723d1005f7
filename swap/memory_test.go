package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

var (
	router = types.HexToAddress("0x00000000000000000000000000000000000000AA")
	tokenA = types.HexToAddress("0x0000000000000000000000000000000000000A01")
	tokenB = types.HexToAddress("0x0000000000000000000000000000000000000B01")
	tokenC = types.HexToAddress("0x0000000000000000000000000000000000000C01")
	lp     = types.HexToAddress("0x00000000000000000000000000000000000001B0")
	trader = types.HexToAddress("0x00000000000000000000000000000000000001C0")
)

// newAMM builds an AMM with an A-B pool of the given reserves.
func newAMM(t *testing.T, reserveA, reserveB int64) (*Memory, *token.Memory) {
	t.Helper()
	ctx := context.Background()

	ledger := token.NewMemory()
	amm := NewMemory(ledger, router)

	ledger.Mint(tokenA, lp, big.NewInt(reserveA))
	ledger.Mint(tokenB, lp, big.NewInt(reserveB))
	if err := amm.AddLiquidity(ctx, lp, tokenA, tokenB, big.NewInt(reserveA), big.NewInt(reserveB)); err != nil {
		t.Fatal(err)
	}
	return amm, ledger
}

func TestGetPair(t *testing.T) {
	ctx := context.Background()
	amm, _ := newAMM(t, 1000, 1000)

	addr, err := amm.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		t.Fatal(err)
	}
	if addr == types.ZeroAddress {
		t.Fatal("expected pair address")
	}

	// Order-insensitive.
	reversed, _ := amm.GetPair(ctx, tokenB, tokenA)
	if reversed != addr {
		t.Errorf("pair lookup is order-sensitive: %s vs %s", addr.Hex(), reversed.Hex())
	}

	// Absent pair reports the zero address, not an error.
	missing, err := amm.GetPair(ctx, tokenA, tokenC)
	if err != nil {
		t.Fatal(err)
	}
	if missing != types.ZeroAddress {
		t.Errorf("expected zero address for missing pair, got %s", missing.Hex())
	}
}

func TestCreatePairRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	amm, _ := newAMM(t, 1000, 1000)

	if _, err := amm.CreatePair(ctx, tokenA, tokenA); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("identical tokens: got %v, want ErrInvalidPath", err)
	}
	if _, err := amm.CreatePair(ctx, tokenA, types.ZeroAddress); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("zero address: got %v, want ErrInvalidPath", err)
	}
	if _, err := amm.CreatePair(ctx, tokenA, tokenB); !errors.Is(err, ErrPairExists) {
		t.Errorf("duplicate pair: got %v, want ErrPairExists", err)
	}
}

func TestGetAmountsOut(t *testing.T) {
	ctx := context.Background()
	amm, _ := newAMM(t, 10000, 10000)

	amounts, err := amm.GetAmountsOut(ctx, big.NewInt(1000), []types.Address{tokenA, tokenB})
	if err != nil {
		t.Fatal(err)
	}
	if len(amounts) != 2 {
		t.Fatalf("expected 2 amounts, got %d", len(amounts))
	}
	// 1000*997*10000 / (10000*1000 + 1000*997) = 906
	if amounts[1].Int64() != 906 {
		t.Errorf("output: got %d, want 906", amounts[1].Int64())
	}
}

func TestGetAmountsOutErrors(t *testing.T) {
	ctx := context.Background()
	amm, _ := newAMM(t, 1000, 1000)

	if _, err := amm.GetAmountsOut(ctx, big.NewInt(100), []types.Address{tokenA}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("short path: got %v, want ErrInvalidPath", err)
	}
	if _, err := amm.GetAmountsOut(ctx, big.NewInt(0), []types.Address{tokenA, tokenB}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("zero amount: got %v, want ErrInvalidPath", err)
	}
	if _, err := amm.GetAmountsOut(ctx, big.NewInt(100), []types.Address{tokenA, tokenC}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("missing pair: got %v, want ErrInvalidPath", err)
	}

	// Pair exists but holds no reserves.
	if _, err := amm.CreatePair(ctx, tokenA, tokenC); err != nil {
		t.Fatal(err)
	}
	if _, err := amm.GetAmountsOut(ctx, big.NewInt(100), []types.Address{tokenA, tokenC}); !errors.Is(err, ErrNoLiquidity) {
		t.Errorf("empty pair: got %v, want ErrNoLiquidity", err)
	}
}

func TestSwapExactTokensForTokens(t *testing.T) {
	ctx := context.Background()
	amm, ledger := newAMM(t, 10000, 10000)

	ledger.Mint(tokenA, trader, big.NewInt(1000))
	if err := ledger.Approve(ctx, tokenA, trader, router, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	amounts, err := amm.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), nil, []types.Address{tokenA, tokenB}, trader, 0)
	if err != nil {
		t.Fatal(err)
	}

	out := amounts[len(amounts)-1].Int64()
	balA, _ := ledger.BalanceOf(ctx, tokenA, trader)
	balB, _ := ledger.BalanceOf(ctx, tokenB, trader)
	if balA.Sign() != 0 {
		t.Errorf("input not fully spent: %d", balA.Int64())
	}
	if balB.Int64() != out {
		t.Errorf("output balance %d does not match reported %d", balB.Int64(), out)
	}
}

func TestSwapRespectsMinOut(t *testing.T) {
	ctx := context.Background()
	amm, ledger := newAMM(t, 10000, 10000)

	ledger.Mint(tokenA, trader, big.NewInt(1000))
	if err := ledger.Approve(ctx, tokenA, trader, router, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	_, err := amm.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), big.NewInt(10000), []types.Address{tokenA, tokenB}, trader, 0)
	if !errors.Is(err, ErrInsufficientOutput) {
		t.Errorf("got %v, want ErrInsufficientOutput", err)
	}
}

func TestSwapRequiresApproval(t *testing.T) {
	ctx := context.Background()
	amm, ledger := newAMM(t, 10000, 10000)

	ledger.Mint(tokenA, trader, big.NewInt(1000))

	_, err := amm.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), nil, []types.Address{tokenA, tokenB}, trader, 0)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("got %v, want ErrInsufficientAllowance", err)
	}
}

func TestTwoHopSwap(t *testing.T) {
	ctx := context.Background()
	amm, ledger := newAMM(t, 10000, 10000)

	// Add a B-C pool for the second hop.
	ledger.Mint(tokenB, lp, big.NewInt(10000))
	ledger.Mint(tokenC, lp, big.NewInt(10000))
	if err := amm.AddLiquidity(ctx, lp, tokenB, tokenC, big.NewInt(10000), big.NewInt(10000)); err != nil {
		t.Fatal(err)
	}

	ledger.Mint(tokenA, trader, big.NewInt(1000))
	if err := ledger.Approve(ctx, tokenA, trader, router, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	path := []types.Address{tokenA, tokenB, tokenC}
	amounts, err := amm.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), nil, path, trader, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(amounts) != 3 {
		t.Fatalf("expected 3 amounts, got %d", len(amounts))
	}

	balC, _ := ledger.BalanceOf(ctx, tokenC, trader)
	if balC.Int64() != amounts[2].Int64() {
		t.Errorf("final balance %d does not match reported %d", balC.Int64(), amounts[2].Int64())
	}
	// Each hop loses to the fee plus price impact, so out < in.
	if amounts[2].Cmp(amounts[0]) >= 0 {
		t.Errorf("two-hop output %d not less than input %d", amounts[2].Int64(), amounts[0].Int64())
	}
}
