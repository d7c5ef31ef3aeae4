// Package swap implements the swap engine: the single-pool swap loop that
// advances a pool's virtual price across a sequence of tick arrays,
// collecting fees (optionally blended with an adaptive component) along the
// way. This is the Go counterpart of manager/swap_manager.rs, wiring
// together package tickmath (the step solver), package sequencer (tick-array
// traversal), package ticks (tick-cross bookkeeping) and package feerate
// (the fee-rate manager).
package swap

import (
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/feerate"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/sequencer"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
	"whirlsim/pkg/whirlpool/ticks"
	"whirlsim/pkg/whirlpool/u256"
)

// maxSwapSteps bounds the loop as a defensive backstop against a
// misbehaving tick-array sequence looping forever; a well-formed swap over
// the three arrays a host ever supplies finishes in far fewer steps.
const maxSwapSteps = 5000

// Params bundles a single swap call's inputs, mirroring the swap() host
// operation's parameters (section 4.H/6).
type Params struct {
	Sequence               *sequencer.Sequence
	TickSpacing            uint16
	AmountSpecified        uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
	Now                    uint64

	// FeeRate is the pool's adaptive-fee state, or nil for a pool with no
	// adaptive-fee tier (the static pool.FeeRate is used for every step).
	FeeRate *feerate.State
}

// Result is the pool-level state transition a successful swap produces.
// Tick-array writes are committed by Execute itself, atomically with this
// result, only once every postcondition has passed.
type Result struct {
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32
	Liquidity        uint128.Uint128
	FeeGrowthGlobalA uint128.Uint128
	FeeGrowthGlobalB uint128.Uint128
	ProtocolFeeOwedA uint64
	ProtocolFeeOwedB uint64
	AmountIn         uint64
	AmountOut        uint64
}

type pendingCross struct {
	arrayIndex int
	tickIndex  int32
	update     tickarray.TickUpdate
}

// Execute mirrors the swap engine's main loop (section 4.H): a pure
// calculation against a copy of pool, returning the new state for the
// caller to commit. Tick-array crossings are buffered and applied to
// params.Sequence's stores only after every postcondition passes, so a
// failed swap never leaves a partial tick write behind.
func Execute(pool poolstate.Pool, params Params) (Result, error) {
	if params.AmountSpecified == 0 {
		return Result{}, errs.New(errs.ZeroTradableAmount, "swap amount must be non-zero")
	}
	if params.TickSpacing == 0 {
		return Result{}, errs.New(errs.InvalidTickSpacing, "tick spacing must be non-zero")
	}
	minSqrtPrice, maxSqrtPrice := tickmath.MinSqrtPrice(), tickmath.MaxSqrtPrice()
	if params.SqrtPriceLimit.Cmp(minSqrtPrice) < 0 || params.SqrtPriceLimit.Cmp(maxSqrtPrice) > 0 {
		return Result{}, errs.New(errs.SqrtPriceOutOfBounds, "sqrt price limit out of bounds")
	}
	if params.AToB && params.SqrtPriceLimit.Cmp(pool.SqrtPrice) >= 0 {
		return Result{}, errs.New(errs.InvalidSqrtPriceLimitDirection, "a_to_b swap requires a price limit below the current price")
	}
	if !params.AToB && params.SqrtPriceLimit.Cmp(pool.SqrtPrice) <= 0 {
		return Result{}, errs.New(errs.InvalidSqrtPriceLimitDirection, "b_to_a swap requires a price limit above the current price")
	}

	sqrtPriceBefore := pool.SqrtPrice

	amountRemaining := params.AmountSpecified
	amountCalculated := uint64(0)
	sqrtPrice := pool.SqrtPrice
	tickCurrentIndex := pool.TickCurrentIndex
	liquidity := pool.Liquidity
	feeGrowthGlobalA := pool.FeeGrowthGlobalA
	feeGrowthGlobalB := pool.FeeGrowthGlobalB
	protocolFeeOwedA := pool.ProtocolFeeOwedA
	protocolFeeOwedB := pool.ProtocolFeeOwedB
	totalAmountIn := uint64(0)
	totalAmountOut := uint64(0)

	var crossings []pendingCross

	havePendingBoundary := false
	var boundaryArrayIndex int
	var boundaryTickIndex int32
	var boundaryPrice uint128.Uint128
	var boundaryInitialized bool
	searchArrayIndex := 0

	rewardGrowths := pool.RewardGrowths()

	steps := 0
swapLoop:
	for amountRemaining > 0 && sqrtPrice.Cmp(params.SqrtPriceLimit) != 0 {
		steps++
		if steps > maxSwapSteps {
			return Result{}, errs.New(errs.TickArraySequenceInvalidIndex, "swap exceeded the maximum number of tick-array steps")
		}

		if !havePendingBoundary {
			arrIdx, tickIdx, err := params.Sequence.GetNextInitializedTickIndex(tickCurrentIndex, params.TickSpacing, params.AToB, searchArrayIndex)
			if err != nil {
				return Result{}, err
			}
			boundaryArrayIndex = arrIdx
			boundaryTickIndex = tickIdx
			price, err := tickmath.SqrtPriceFromTick(boundaryTickIndex)
			if err != nil {
				return Result{}, err
			}
			boundaryPrice = price

			boundaryInitialized = false
			if tickarray.CheckIsUsableTick(boundaryTickIndex, params.TickSpacing) {
				t, err := params.Sequence.GetTick(arrIdx, boundaryTickIndex, params.TickSpacing)
				if err == nil {
					boundaryInitialized = t.Initialized
				}
			}
			havePendingBoundary = true
		}

		target := boundaryPrice
		if params.AToB {
			if params.SqrtPriceLimit.Cmp(target) > 0 {
				target = params.SqrtPriceLimit
			}
		} else {
			if params.SqrtPriceLimit.Cmp(target) < 0 {
				target = params.SqrtPriceLimit
			}
		}

		stepTarget := target
		if params.FeeRate != nil && params.FeeRate.Constants.TickGroupSize != 0 {
			groupTick := clampTickIndex(groupBoundaryTick(tickCurrentIndex, params.FeeRate.Constants.TickGroupSize, params.AToB))
			groupPrice, err := tickmath.SqrtPriceFromTick(groupTick)
			if err != nil {
				return Result{}, err
			}
			if params.AToB {
				if groupPrice.Cmp(stepTarget) > 0 {
					stepTarget = groupPrice
				}
			} else {
				if groupPrice.Cmp(stepTarget) < 0 {
					stepTarget = groupPrice
				}
			}
		}

		feeRate := params.FeeRate.AdvanceAndFeeRate(pool.FeeRate, tickCurrentIndex, params.Now)

		step, err := computeSwapStep(sqrtPrice, stepTarget, liquidity, amountRemaining, feeRate, params.AmountSpecifiedIsInput, params.AToB)
		if err != nil {
			return Result{}, err
		}

		if params.AmountSpecifiedIsInput {
			amountRemaining -= step.amountIn + step.feeAmount
			amountCalculated += step.amountOut
		} else {
			amountRemaining -= step.amountOut
			amountCalculated += step.amountIn + step.feeAmount
		}
		totalAmountIn += step.amountIn
		totalAmountOut += step.amountOut

		if step.feeAmount > 0 {
			protocolCut, err := mulDivFloorU64(step.feeAmount, uint64(pool.ProtocolFeeRate), feerate.ProtocolFeeRateDenominator)
			if err != nil {
				return Result{}, err
			}
			if params.AToB {
				protocolFeeOwedA = saturatingAddU64(protocolFeeOwedA, protocolCut)
			} else {
				protocolFeeOwedB = saturatingAddU64(protocolFeeOwedB, protocolCut)
			}

			growthContribution := step.feeAmount - protocolCut
			if !liquidity.IsZero() && growthContribution > 0 {
				delta, err := feeGrowthDelta(growthContribution, liquidity)
				if err != nil {
					return Result{}, err
				}
				if params.AToB {
					feeGrowthGlobalA = feeGrowthGlobalA.AddWrap(delta)
				} else {
					feeGrowthGlobalB = feeGrowthGlobalB.AddWrap(delta)
				}
			}
		}

		sqrtPrice = step.nextSqrtPrice

		switch {
		case sqrtPrice.Cmp(boundaryPrice) == 0:
			atMinEdge := params.AToB && boundaryTickIndex <= tickarray.MinTickIndex
			atMaxEdge := !params.AToB && boundaryTickIndex >= tickarray.MaxTickIndex
			if atMinEdge || atMaxEdge {
				// Nothing more can happen past the pool's extreme tick: stop
				// here even if amountRemaining hasn't reached zero, rather
				// than looping forever re-deriving the same zero-width step.
				tickCurrentIndex = boundaryTickIndex
				havePendingBoundary = false
				break swapLoop
			}

			if boundaryInitialized {
				tick, err := params.Sequence.GetTick(boundaryArrayIndex, boundaryTickIndex, params.TickSpacing)
				if err != nil {
					return Result{}, err
				}
				crossUpdate := ticks.NextTickCrossUpdate(tick, feeGrowthGlobalA, feeGrowthGlobalB, rewardGrowths)
				crossings = append(crossings, pendingCross{arrayIndex: boundaryArrayIndex, tickIndex: boundaryTickIndex, update: crossUpdate})

				netDelta := tick.LiquidityNet
				if params.AToB {
					netDelta = netDelta.Negate()
				}
				newLiquidity, err := ticks.AddLiquidityDelta(liquidity, netDelta)
				if err != nil {
					return Result{}, err
				}
				liquidity = newLiquidity

				if params.AToB {
					tickCurrentIndex = boundaryTickIndex - 1
				} else {
					tickCurrentIndex = boundaryTickIndex
				}
			} else {
				// The tick-array sequence has nothing left in this
				// direction: per section 4.H step 1, that is only a valid
				// stopping point at the pool's extreme tick (handled
				// above); reaching it anywhere else means the caller
				// supplied too few tick arrays for this swap to complete.
				return Result{}, errs.New(errs.TickArraySequenceInvalidIndex, "tick array sequence exhausted before swap could complete")
			}
			havePendingBoundary = false
			searchArrayIndex = boundaryArrayIndex

		case sqrtPrice.Cmp(params.SqrtPriceLimit) == 0:
			idx, err := tickmath.TickFromSqrtPrice(sqrtPrice)
			if err != nil {
				return Result{}, err
			}
			tickCurrentIndex = idx

		default:
			// Reached only a tick-group sub-boundary (adaptive-fee
			// sub-stepping): the real tick boundary is still pending.
			idx, err := tickmath.TickFromSqrtPrice(sqrtPrice)
			if err != nil {
				return Result{}, err
			}
			tickCurrentIndex = idx
		}
	}

	if err := params.FeeRate.FinishSwap(sqrtPriceBefore, sqrtPrice, params.Now); err != nil {
		return Result{}, err
	}

	if params.AmountSpecifiedIsInput {
		if amountCalculated < params.OtherAmountThreshold {
			return Result{}, errs.New(errs.AmountOutBelowMinimum, "amount out %d below minimum %d", amountCalculated, params.OtherAmountThreshold)
		}
	} else {
		if amountCalculated > params.OtherAmountThreshold {
			return Result{}, errs.New(errs.AmountInAboveMaximum, "amount in %d above maximum %d", amountCalculated, params.OtherAmountThreshold)
		}
		if amountRemaining > 0 {
			return Result{}, errs.New(errs.PartialFillError, "swap filled only %d of %d requested output", params.AmountSpecified-amountRemaining, params.AmountSpecified)
		}
	}

	for _, c := range crossings {
		if err := params.Sequence.UpdateTick(c.arrayIndex, c.tickIndex, params.TickSpacing, c.update); err != nil {
			return Result{}, err
		}
	}

	return Result{
		SqrtPrice:        sqrtPrice,
		TickCurrentIndex: tickCurrentIndex,
		Liquidity:        liquidity,
		FeeGrowthGlobalA: feeGrowthGlobalA,
		FeeGrowthGlobalB: feeGrowthGlobalB,
		ProtocolFeeOwedA: protocolFeeOwedA,
		ProtocolFeeOwedB: protocolFeeOwedB,
		AmountIn:         totalAmountIn,
		AmountOut:        totalAmountOut,
	}, nil
}

func clampTickIndex(tick int32) int32 {
	if tick < tickarray.MinTickIndex {
		return tickarray.MinTickIndex
	}
	if tick > tickarray.MaxTickIndex {
		return tickarray.MaxTickIndex
	}
	return tick
}

// groupBoundaryTick returns the tick index at the edge of tickIndex's
// current tick group, in the direction of travel: the start of the current
// group for a_to_b (price falling), or the start of the next group for
// b_to_a (price rising).
func groupBoundaryTick(tickIndex int32, tickGroupSize uint16, aToB bool) int32 {
	g := feerate.TickGroupIndex(tickIndex, tickGroupSize)
	size := int32(tickGroupSize)
	if aToB {
		return g * size
	}
	return (g + 1) * size
}

type stepResult struct {
	nextSqrtPrice uint128.Uint128
	amountIn      uint64
	amountOut     uint64
	feeAmount     uint64
}

// computeSwapStep mirrors swap_manager::compute_swap_step (section 4.H
// step 4), re-derived against this module's uint128/u256 primitives rather
// than a big.Int-based port: fixedIsA determines which token's amount the
// step solves for directly (input for exact-in, output for exact-out), the
// other ("unfixed") side and the fee are derived from wherever the price
// actually lands.
func computeSwapStep(
	sqrtPriceCurrent, sqrtPriceTarget uint128.Uint128,
	liquidity uint128.Uint128,
	amountRemaining uint64,
	feeRate uint32,
	amountSpecifiedIsInput, aToB bool,
) (stepResult, error) {
	fixedIsA := aToB == amountSpecifiedIsInput

	amountFixedDelta, err := amountDeltaFor(fixedIsA, sqrtPriceTarget, sqrtPriceCurrent, liquidity, amountSpecifiedIsInput)
	if err != nil {
		return stepResult{}, err
	}

	var amountCalc uint64
	if amountSpecifiedIsInput {
		amountCalc, err = applySwapFee(amountRemaining, feeRate)
		if err != nil {
			return stepResult{}, err
		}
	} else {
		amountCalc = amountRemaining
	}

	reachesTarget := amountCalc >= amountFixedDelta

	var nextSqrtPrice uint128.Uint128
	switch {
	case reachesTarget:
		nextSqrtPrice = sqrtPriceTarget
	case amountSpecifiedIsInput:
		nextSqrtPrice, err = tickmath.NextSqrtPriceFromInput(sqrtPriceCurrent, liquidity, amountCalc, aToB)
	default:
		nextSqrtPrice, err = tickmath.NextSqrtPriceFromOutput(sqrtPriceCurrent, liquidity, amountCalc, aToB)
	}
	if err != nil {
		return stepResult{}, err
	}

	if !reachesTarget {
		amountFixedDelta, err = amountDeltaFor(fixedIsA, nextSqrtPrice, sqrtPriceCurrent, liquidity, amountSpecifiedIsInput)
		if err != nil {
			return stepResult{}, err
		}
	}

	amountUnfixedDelta, err := amountDeltaFor(!fixedIsA, nextSqrtPrice, sqrtPriceCurrent, liquidity, !amountSpecifiedIsInput)
	if err != nil {
		return stepResult{}, err
	}

	var amountIn, amountOut uint64
	if amountSpecifiedIsInput {
		amountIn, amountOut = amountFixedDelta, amountUnfixedDelta
	} else {
		amountIn, amountOut = amountUnfixedDelta, amountFixedDelta
		if amountOut > amountRemaining {
			amountOut = amountRemaining
		}
	}

	var feeAmount uint64
	if amountSpecifiedIsInput && !reachesTarget {
		feeAmount = amountRemaining - amountIn
	} else {
		feeAmount, err = mulDivCeilU64(amountIn, uint64(feeRate), uint64(feerate.FeeRateDenominator)-uint64(feeRate))
		if err != nil {
			return stepResult{}, err
		}
	}

	return stepResult{nextSqrtPrice: nextSqrtPrice, amountIn: amountIn, amountOut: amountOut, feeAmount: feeAmount}, nil
}

// amountDeltaFor picks AmountDeltaA or AmountDeltaB depending on which
// token the delta is being computed for, with roundUp selected by whether
// this side is the one the swap specified directly.
func amountDeltaFor(isA bool, priceA, priceB, liquidity uint128.Uint128, roundUp bool) (uint64, error) {
	if isA {
		return tickmath.AmountDeltaA(priceA, priceB, liquidity, roundUp)
	}
	return tickmath.AmountDeltaB(priceA, priceB, liquidity, roundUp)
}

// applySwapFee computes floor(amountRemaining * (1 - feeRate)), the amount
// left to trade with after the step's fee is set aside.
func applySwapFee(amountRemaining uint64, feeRate uint32) (uint64, error) {
	return mulDivFloorU64(amountRemaining, uint64(feerate.FeeRateDenominator)-uint64(feeRate), feerate.FeeRateDenominator)
}

// feeGrowthDelta computes floor(amount * 2^64 / liquidity), the Q64.64
// fee-per-unit-liquidity this step's net fee contributes to the pool's
// global growth accumulator.
func feeGrowthDelta(amount uint64, liquidity uint128.Uint128) (uint128.Uint128, error) {
	if liquidity.IsZero() {
		return uint128.Zero, nil
	}
	num := u256.FromU64(amount).Lsh(tickmath.U64Resolution)
	q, _, err := num.DivRem(u256.FromUint128(liquidity))
	if err != nil {
		return uint128.Zero, err
	}
	return q.ToUint128()
}

func mulDivFloorU64(a, b, denom uint64) (uint64, error) {
	v, err := u256.MulDivFloor(uint128.From64(a), uint128.From64(b), uint128.From64(denom))
	if err != nil {
		return 0, err
	}
	if v.Hi != 0 {
		return 0, errs.New(errs.NumberDownCastError, "result exceeds u64")
	}
	return v.Lo, nil
}

func mulDivCeilU64(a, b, denom uint64) (uint64, error) {
	v, err := u256.MulDivCeil(uint128.From64(a), uint128.From64(b), uint128.From64(denom))
	if err != nil {
		return 0, err
	}
	if v.Hi != 0 {
		return 0, errs.New(errs.NumberDownCastError, "result exceeds u64")
	}
	return v.Lo, nil
}

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}
