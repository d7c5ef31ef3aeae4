package liquidity

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
)

var testPoolKey = solana.PublicKey{9}

func freshPool() *poolstate.Pool {
	sqrtPrice, _ := tickmath.SqrtPriceFromTick(0)
	return &poolstate.Pool{
		TickSpacing:      64,
		SqrtPrice:        sqrtPrice,
		TickCurrentIndex: 0,
	}
}

// TestScenario1OpenPositionBookkeeping mirrors spec section 8 scenario 1:
// opening a [-64,+64] position with L=1_000_000 against a pool at tick 0
// with zero global growths.
func TestScenario1OpenPositionBookkeeping(t *testing.T) {
	pool := freshPool()
	pos := position.Position{TickLowerIndex: -64, TickUpperIndex: 64}
	lowerArr := tickarray.NewFixed(testPoolKey, -88*64)
	arr := tickarray.NewFixed(testPoolKey, 0)
	delta := tickarray.I128{Mag: uint128.From64(1_000_000)}

	update, err := CalculateModifyLiquidity(pool, pos, lowerArr, arr, delta, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.WhirlpoolLiquidity != uint128.From64(1_000_000) {
		t.Errorf("pool liquidity = %v, want 1_000_000", update.WhirlpoolLiquidity)
	}
	if !update.TickLowerUpdate.FeeGrowthOutsideA.IsZero() || !update.TickUpperUpdate.FeeGrowthOutsideA.IsZero() {
		t.Error("expected both boundary ticks' fee-growth-outside to start at zero")
	}
	if !update.PositionUpdate.FeeGrowthCheckpointA.IsZero() || !update.PositionUpdate.FeeGrowthCheckpointB.IsZero() {
		t.Error("expected position checkpoints to start at zero")
	}

	if err := lowerArr.UpdateTick(-64, 64, update.TickLowerUpdate); err != nil {
		t.Fatal(err)
	}
	if err := arr.UpdateTick(64, 64, update.TickUpperUpdate); err != nil {
		t.Fatal(err)
	}

	deltaA, deltaB, err := CalculateLiquidityTokenDeltas(pool.TickCurrentIndex, pool.SqrtPrice, -64, 64, delta)
	if err != nil {
		t.Fatal(err)
	}
	if deltaA != 3121 || deltaB != 3121 {
		t.Errorf("deposit deltas = (%d, %d), want (3121, 3121)", deltaA, deltaB)
	}
}

func TestModifyLiquidityZeroOnEmptyPositionFails(t *testing.T) {
	pool := freshPool()
	pos := position.Position{TickLowerIndex: -64, TickUpperIndex: 64}
	lowerArr := tickarray.NewFixed(testPoolKey, -88*64)
	arr := tickarray.NewFixed(testPoolKey, 0)

	_, err := CalculateModifyLiquidity(pool, pos, lowerArr, arr, tickarray.ZeroI128, 0)
	if err == nil {
		t.Fatal("expected liquidity_zero on an empty position with zero delta")
	}
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.LiquidityZero {
		t.Errorf("expected LiquidityZero, got %v", err)
	}
}

func TestModifyLiquidityZeroOnNonEmptyPositionSyncsOnly(t *testing.T) {
	pool := freshPool()
	pool.Liquidity = uint128.From64(1_000_000)
	pos := position.Position{TickLowerIndex: -64, TickUpperIndex: 64, Liquidity: uint128.From64(1_000_000)}
	lowerArr := tickarray.NewFixed(testPoolKey, -88*64)
	arr := tickarray.NewFixed(testPoolKey, 0)
	if err := lowerArr.UpdateTick(-64, 64, tickarray.TickUpdate{Initialized: true, LiquidityGross: uint128.From64(1_000_000), LiquidityNet: tickarray.I128{Mag: uint128.From64(1_000_000)}}); err != nil {
		t.Fatal(err)
	}
	if err := arr.UpdateTick(64, 64, tickarray.TickUpdate{Initialized: true, LiquidityGross: uint128.From64(1_000_000), LiquidityNet: tickarray.I128{Neg: true, Mag: uint128.From64(1_000_000)}}); err != nil {
		t.Fatal(err)
	}

	pool.FeeGrowthGlobalA = uint128.From64(1).Lsh(64) // 1.0 per unit liquidity
	update, err := CalculateModifyLiquidity(pool, pos, lowerArr, arr, tickarray.ZeroI128, 0)
	if err != nil {
		t.Fatal(err)
	}
	if update.PositionUpdate.Liquidity != pos.Liquidity {
		t.Errorf("liquidity-zero sync must not change position liquidity: got %v, want %v", update.PositionUpdate.Liquidity, pos.Liquidity)
	}
	if update.PositionUpdate.FeeOwedA == 0 {
		t.Error("expected fee-only sync to accrue fee_owed_a from global growth")
	}
}

func TestCollapsedAliasingSharesOneArray(t *testing.T) {
	// A position whose lower and upper tick both land in the same tick
	// array must route through a single mutable Store (section 9).
	pool := freshPool()
	pos := position.Position{TickLowerIndex: 0, TickUpperIndex: 128}
	arr := tickarray.NewFixed(testPoolKey, 0)
	delta := tickarray.I128{Mag: uint128.From64(42)}

	update, err := CalculateModifyLiquidity(pool, pos, arr, arr, delta, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := SyncModifyLiquidityValues(pool, &pos, arr, nil, update, 0); err != nil {
		t.Fatalf("sync with aliased array failed: %v", err)
	}
	lower, err := arr.GetTick(0, 64)
	if err != nil {
		t.Fatal(err)
	}
	upper, err := arr.GetTick(128, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !lower.Initialized || !upper.Initialized {
		t.Error("expected both boundary ticks to be initialized after the aliased sync")
	}
}

func TestCalculateLiquidityTokenDeltasPiecewise(t *testing.T) {
	delta := tickarray.I128{Mag: uint128.From64(1_000_000)}

	// current below lower: only token A moves.
	aBelow, bBelow, err := CalculateLiquidityTokenDeltas(-128, mustSqrtPrice(t, -128), -64, 64, delta)
	if err != nil {
		t.Fatal(err)
	}
	if aBelow == 0 || bBelow != 0 {
		t.Errorf("current below range: want (a>0, b=0), got (%d, %d)", aBelow, bBelow)
	}

	// current above upper: only token B moves.
	aAbove, bAbove, err := CalculateLiquidityTokenDeltas(128, mustSqrtPrice(t, 128), -64, 64, delta)
	if err != nil {
		t.Fatal(err)
	}
	if aAbove != 0 || bAbove == 0 {
		t.Errorf("current above range: want (a=0, b>0), got (%d, %d)", aAbove, bAbove)
	}

	// current inside: both sides move.
	aIn, bIn, err := CalculateLiquidityTokenDeltas(0, mustSqrtPrice(t, 0), -64, 64, delta)
	if err != nil {
		t.Fatal(err)
	}
	if aIn == 0 || bIn == 0 {
		t.Errorf("current inside range: want both sides nonzero, got (%d, %d)", aIn, bIn)
	}
}

func mustSqrtPrice(t *testing.T, tick int32) uint128.Uint128 {
	t.Helper()
	p, err := tickmath.SqrtPriceFromTick(tick)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
