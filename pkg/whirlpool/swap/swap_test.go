package swap

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/feerate"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/sequencer"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
)

const testTickSpacing uint16 = 64

func sqrtPriceAt(t *testing.T, tick int32) uint128.Uint128 {
	t.Helper()
	p, err := tickmath.SqrtPriceFromTick(tick)
	if err != nil {
		t.Fatalf("SqrtPriceFromTick(%d): %v", tick, err)
	}
	return p
}

// basePool returns a pool sitting at tick 0 with 10e6 liquidity, a 0.3% fee
// (3000/1e6), a 20% protocol cut, and no adaptive-fee tier.
func basePool() poolstate.Pool {
	return poolstate.Pool{
		TickSpacing:     testTickSpacing,
		FeeRate:         3_000,
		ProtocolFeeRate: 2_000,
		Liquidity:       uint128.From64(10_000_000),
		SqrtPrice:       uint128.From64(1).Lsh(64), // tick 0
	}
}

// oneArraySequence builds a single Fixed tick array starting at 0, wide
// enough to hold every tick these tests cross, wrapped in a Sequence.
func oneArraySequence(t *testing.T) (*sequencer.Sequence, *tickarray.Fixed) {
	t.Helper()
	whirlpool := solana.PublicKey{1}
	arr := tickarray.NewFixed(whirlpool, 0)
	seq, err := sequencer.New(arr)
	if err != nil {
		t.Fatal(err)
	}
	return seq, arr
}

func TestExecute_ZeroAmountRejected(t *testing.T) {
	seq, _ := oneArraySequence(t)
	pool := basePool()
	_, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         0,
		AmountSpecifiedIsInput:  true,
		AToB:                    true,
		SqrtPriceLimit:          tickmath.MinSqrtPrice(),
		Now:                     1,
	})
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.ZeroTradableAmount {
		t.Fatalf("err = %v, want ZeroTradableAmount", err)
	}
}

func TestExecute_PriceLimitWrongDirectionRejected(t *testing.T) {
	seq, _ := oneArraySequence(t)
	pool := basePool()
	_, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         1_000,
		AmountSpecifiedIsInput:  true,
		AToB:                    true,
		SqrtPriceLimit:          sqrtPriceAt(t, 100), // above current price, but a_to_b needs below
		Now:                     1,
	})
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.InvalidSqrtPriceLimitDirection {
		t.Fatalf("err = %v, want InvalidSqrtPriceLimitDirection", err)
	}
}

// Scenario 2: an in-range exact-in swap with no tick crossing accrues fees
// into feeGrowthGlobal and the protocol fee owed, and the pool's price moves
// in the traded direction.
func TestExecute_FeeAccrualWithoutTickCross(t *testing.T) {
	seq, _ := oneArraySequence(t)
	pool := basePool()

	res, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         1_000_000,
		AmountSpecifiedIsInput:  true,
		AToB:                    false, // b_to_a: price rises
		SqrtPriceLimit:          tickmath.MaxSqrtPrice(),
		OtherAmountThreshold:    1,
		Now:                     1,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.SqrtPrice.Cmp(pool.SqrtPrice) <= 0 {
		t.Fatalf("expected price to rise, got %s from %s", res.SqrtPrice, pool.SqrtPrice)
	}
	if res.AmountIn == 0 || res.AmountOut == 0 {
		t.Fatalf("expected non-zero amounts, got in=%d out=%d", res.AmountIn, res.AmountOut)
	}
	if res.FeeGrowthGlobalB.IsZero() {
		t.Fatal("expected fee_growth_global_b to accrue")
	}
	if !res.FeeGrowthGlobalA.IsZero() {
		t.Fatal("b_to_a swap must not touch fee_growth_global_a")
	}
	if res.ProtocolFeeOwedB == 0 {
		t.Fatal("expected protocol_fee_owed_b to accrue")
	}
	const amountSpecified = 1_000_000
	if res.AmountIn+res.ProtocolFeeOwedB >= amountSpecified {
		t.Fatalf("amount_in (%d) plus fee owed (%d) should leave room under the specified amount (%d)", res.AmountIn, res.ProtocolFeeOwedB, amountSpecified)
	}
}

// Scenario 4: a swap that crosses an initialized tick picks up that tick's
// liquidity_net, changing the pool's active liquidity.
func TestExecute_CrossesInitializedTick(t *testing.T) {
	seq, arr := oneArraySequence(t)
	pool := basePool()

	crossTick := int32(64) // one spacing above tick 0, usable at spacing 64
	netDelta := tickarray.I128{Neg: true, Mag: uint128.From64(4_000_000)}
	if err := arr.UpdateTick(crossTick, testTickSpacing, tickarray.TickUpdate{
		Initialized:    true,
		LiquidityNet:   netDelta,
		LiquidityGross: netDelta.Mag,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         200_000,
		AmountSpecifiedIsInput:  true,
		AToB:                    false,
		SqrtPriceLimit:          sqrtPriceAt(t, 500), // well within the array, beyond crossTick
		OtherAmountThreshold:    1,
		Now:                     1,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.TickCurrentIndex < crossTick {
		t.Fatalf("expected swap to cross tick %d, landed at %d", crossTick, res.TickCurrentIndex)
	}
	wantLiquidity := pool.Liquidity.Sub(netDelta.Mag)
	if res.Liquidity.Cmp(wantLiquidity) != 0 {
		t.Fatalf("Liquidity = %s, want %s after crossing liquidity_net %s", res.Liquidity, wantLiquidity, netDelta.Mag)
	}

	updated, err := arr.GetTick(crossTick, testTickSpacing)
	if err != nil {
		t.Fatal(err)
	}
	if updated.FeeGrowthOutsideB.IsZero() {
		t.Fatal("expected the crossed tick's fee_growth_outside_b to be updated")
	}
}

// Scenario 5: an exact-out swap that cannot be fully satisfied before
// running out of liquidity (hitting the pool's extreme tick) fails with
// PartialFillError rather than silently under-filling.
func TestExecute_ExactOutExhaustsLiquidity_PartialFillError(t *testing.T) {
	const spacing uint16 = 1
	whirlpool := solana.PublicKey{1}
	// The genuine min tick array (mirrors
	// TestGetNextInitializedTickIndex_FallsThroughToMinTick in package
	// sequencer), with no initialized ticks: a_to_b from near the floor
	// runs straight into the MinTickIndex edge.
	arr := tickarray.NewFixed(whirlpool, -443696)
	seq, err := sequencer.New(arr)
	if err != nil {
		t.Fatal(err)
	}

	startTick := tickarray.MinTickIndex + 10 // stays inside the min array's narrow span at spacing 1
	pool := poolstate.Pool{
		TickSpacing:      spacing,
		FeeRate:          3_000,
		ProtocolFeeRate:  2_000,
		Liquidity:        uint128.From64(1_000), // thin: cannot produce a huge output
		SqrtPrice:        sqrtPriceAt(t, startTick),
		TickCurrentIndex: startTick,
	}

	_, err = Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             spacing,
		AmountSpecified:         1_000_000_000_000,
		AmountSpecifiedIsInput:  false,
		AToB:                    true,
		SqrtPriceLimit:          tickmath.MinSqrtPrice(),
		OtherAmountThreshold:    1_000_000_000_000,
		Now:                     1,
	})
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.PartialFillError {
		t.Fatalf("err = %v, want PartialFillError", err)
	}
}

// Scenario 6: adaptive fee volatility rises while a swap is actively
// crossing ticks, and FinishSwap records a major-swap timestamp when the
// move is large enough.
func TestExecute_AdaptiveFeeTracksVolatilityAcrossSwap(t *testing.T) {
	seq, arr := oneArraySequence(t)
	pool := basePool()

	for _, tick := range []int32{64, 128, 192, 256} {
		if err := arr.UpdateTick(tick, testTickSpacing, tickarray.TickUpdate{
			Initialized:    true,
			LiquidityNet:   tickarray.I128{Neg: true, Mag: uint128.From64(1_000_000)},
			LiquidityGross: uint128.From64(1_000_000),
		}); err != nil {
			t.Fatal(err)
		}
	}

	state := &feerate.State{
		Constants: feerate.Constants{
			FilterPeriod:             10,
			DecayPeriod:              60,
			ReductionFactor:          5_000,
			AdaptiveFeeControlFactor: 4_000,
			MaxVolatilityAccumulator: 350_000,
			TickGroupSize:            64,
			MajorSwapThresholdTicks:  100,
		},
	}

	res, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         300_000,
		AmountSpecifiedIsInput:  true,
		AToB:                    false,
		SqrtPriceLimit:          sqrtPriceAt(t, 2_000), // well within the array, beyond every initialized tick
		OtherAmountThreshold:    1,
		Now:                     1_000,
		FeeRate:                 state,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if state.Variables.VolatilityAccumulator == 0 {
		t.Fatal("expected volatility_accumulator to rise while crossing ticks")
	}
	if res.TickCurrentIndex-pool.TickCurrentIndex >= int32(state.Constants.MajorSwapThresholdTicks) &&
		state.Variables.LastMajorSwapTimestamp != 1_000 {
		t.Fatalf("expected last_major_swap_timestamp recorded for a %d-tick move", res.TickCurrentIndex-pool.TickCurrentIndex)
	}
}

func TestExecute_ExactOutputRespectsMaximumThreshold(t *testing.T) {
	seq, _ := oneArraySequence(t)
	pool := basePool()

	_, err := Execute(pool, Params{
		Sequence:               seq,
		TickSpacing:             testTickSpacing,
		AmountSpecified:         10_000,
		AmountSpecifiedIsInput:  false,
		AToB:                    false,
		SqrtPriceLimit:          tickmath.MaxSqrtPrice(),
		OtherAmountThreshold:    1, // unreasonably tight cap on amount in
		Now:                     1,
	})
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.AmountInAboveMaximum {
		t.Fatalf("err = %v, want AmountInAboveMaximum", err)
	}
}
