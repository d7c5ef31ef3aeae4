// Package ticks implements the pure tick-transition functions: the state a
// tick should move to when price crosses it or when liquidity is added or
// removed at its index, and the fee/reward growth "inside" a position's
// range derived from two ticks' growth-outside bookkeeping.
//
// None of these functions touch a Store -- they take a Tick value and
// return a TickUpdate for the caller to apply, mirroring the reference
// implementation's manager/tick_manager.rs split between pure calculation
// and account mutation.
package ticks

import (
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/tickarray"
)

// RewardGrowth is the minimal slice of a pool-level reward stream's state
// the tick transitions need: its cumulative growth and whether the reward
// slot has ever been initialized (an uninitialized slot contributes zero
// growth and is skipped).
type RewardGrowth struct {
	GrowthGlobalX64 uint128.Uint128
	Initialized     bool
}

// NextTickCrossUpdate mirrors next_tick_cross_update: crossing a tick
// flips which side of it each growth accumulator describes, computed as a
// wrapping subtraction from the pool's global growth. The wraparound is
// intentional -- fee/reward growth accumulators are allowed to overflow
// mod 2^128, and the outside/inside bookkeeping is designed around that.
func NextTickCrossUpdate(tick tickarray.Tick, feeGrowthGlobalA, feeGrowthGlobalB uint128.Uint128, rewardInfos [tickarray.NumRewards]RewardGrowth) tickarray.TickUpdate {
	update := tickarray.UpdateFromTick(tick)

	update.FeeGrowthOutsideA = feeGrowthGlobalA.SubWrap(tick.FeeGrowthOutsideA)
	update.FeeGrowthOutsideB = feeGrowthGlobalB.SubWrap(tick.FeeGrowthOutsideB)

	for i := 0; i < tickarray.NumRewards; i++ {
		if !rewardInfos[i].Initialized {
			continue
		}
		update.RewardGrowthsOutside[i] = rewardInfos[i].GrowthGlobalX64.SubWrap(tick.RewardGrowthsOutside[i])
	}
	return update
}

// AddLiquidityDelta applies a signed liquidity delta to an unsigned gross
// liquidity counter, reporting LiquidityOverflow/LiquidityUnderflow on the
// respective checked-arithmetic failure (liquidity_gross can never itself
// go negative, so both directions are bounds checks on a uint128).
func AddLiquidityDelta(liquidityGross uint128.Uint128, delta tickarray.I128) (uint128.Uint128, error) {
	if delta.IsZero() {
		return liquidityGross, nil
	}
	if !delta.Neg {
		sum := liquidityGross.AddWrap(delta.Mag)
		if sum.Cmp(liquidityGross) < 0 {
			return uint128.Uint128{}, errs.New(errs.LiquidityOverflow, "liquidity_gross overflow adding %s", delta.Mag)
		}
		return sum, nil
	}
	if liquidityGross.Cmp(delta.Mag) < 0 {
		return uint128.Uint128{}, errs.New(errs.LiquidityUnderflow, "liquidity_gross underflow subtracting %s", delta.Mag)
	}
	return liquidityGross.Sub(delta.Mag), nil
}

// NextTickModifyLiquidityUpdate mirrors next_tick_modify_liquidity_update:
// the tick's new liquidity_gross/liquidity_net and, if the tick is being
// initialized for the first time, the growth-outside snapshot taken "by
// convention" as if all prior growth happened below the tick when the pool
// is already past it, or none of it when the pool hasn't reached it yet.
func NextTickModifyLiquidityUpdate(
	tick tickarray.Tick,
	tickIndex, tickCurrentIndex int32,
	feeGrowthGlobalA, feeGrowthGlobalB uint128.Uint128,
	rewardInfos [tickarray.NumRewards]RewardGrowth,
	liquidityDelta tickarray.I128,
	isUpperTick bool,
) (tickarray.TickUpdate, error) {
	if liquidityDelta.IsZero() {
		return tickarray.UpdateFromTick(tick), nil
	}

	liquidityGross, err := AddLiquidityDelta(tick.LiquidityGross, liquidityDelta)
	if err != nil {
		return tickarray.TickUpdate{}, err
	}

	if liquidityGross.IsZero() {
		return tickarray.TickUpdate{}, nil
	}

	var feeGrowthOutsideA, feeGrowthOutsideB uint128.Uint128
	var rewardGrowthsOutside [tickarray.NumRewards]uint128.Uint128
	if tick.LiquidityGross.IsZero() {
		if tickCurrentIndex >= tickIndex {
			feeGrowthOutsideA = feeGrowthGlobalA
			feeGrowthOutsideB = feeGrowthGlobalB
			for i := 0; i < tickarray.NumRewards; i++ {
				rewardGrowthsOutside[i] = rewardInfos[i].GrowthGlobalX64
			}
		}
		// else leave all growths at zero
	} else {
		feeGrowthOutsideA = tick.FeeGrowthOutsideA
		feeGrowthOutsideB = tick.FeeGrowthOutsideB
		rewardGrowthsOutside = tick.RewardGrowthsOutside
	}

	var liquidityNet tickarray.I128
	var ok bool
	if isUpperTick {
		liquidityNet, ok = tick.LiquidityNet.CheckedSub(liquidityDelta)
	} else {
		liquidityNet, ok = tick.LiquidityNet.CheckedAdd(liquidityDelta)
	}
	if !ok {
		return tickarray.TickUpdate{}, errs.New(errs.LiquidityNetError, "liquidity_net overflow at tick %d", tickIndex)
	}

	return tickarray.TickUpdate{
		Initialized:          true,
		LiquidityNet:         liquidityNet,
		LiquidityGross:       liquidityGross,
		FeeGrowthOutsideA:    feeGrowthOutsideA,
		FeeGrowthOutsideB:    feeGrowthOutsideB,
		RewardGrowthsOutside: rewardGrowthsOutside,
	}, nil
}

// NextFeeGrowthsInside mirrors next_fee_growths_inside: the fee growth
// accrued strictly between tick_lower and tick_upper, derived by
// subtracting the growth below and above the range from the pool's global
// growth. Uninitialized boundary ticks fall back to the "by convention"
// defaults (all growth below an uninitialized lower tick, none above an
// uninitialized upper tick).
func NextFeeGrowthsInside(
	tickCurrentIndex int32,
	tickLower tickarray.Tick, tickLowerIndex int32,
	tickUpper tickarray.Tick, tickUpperIndex int32,
	feeGrowthGlobalA, feeGrowthGlobalB uint128.Uint128,
) (uint128.Uint128, uint128.Uint128) {
	var feeGrowthBelowA, feeGrowthBelowB uint128.Uint128
	switch {
	case !tickLower.Initialized:
		feeGrowthBelowA, feeGrowthBelowB = feeGrowthGlobalA, feeGrowthGlobalB
	case tickCurrentIndex < tickLowerIndex:
		feeGrowthBelowA = feeGrowthGlobalA.SubWrap(tickLower.FeeGrowthOutsideA)
		feeGrowthBelowB = feeGrowthGlobalB.SubWrap(tickLower.FeeGrowthOutsideB)
	default:
		feeGrowthBelowA = tickLower.FeeGrowthOutsideA
		feeGrowthBelowB = tickLower.FeeGrowthOutsideB
	}

	var feeGrowthAboveA, feeGrowthAboveB uint128.Uint128
	switch {
	case !tickUpper.Initialized:
		// zero value
	case tickCurrentIndex < tickUpperIndex:
		feeGrowthAboveA = tickUpper.FeeGrowthOutsideA
		feeGrowthAboveB = tickUpper.FeeGrowthOutsideB
	default:
		feeGrowthAboveA = feeGrowthGlobalA.SubWrap(tickUpper.FeeGrowthOutsideA)
		feeGrowthAboveB = feeGrowthGlobalB.SubWrap(tickUpper.FeeGrowthOutsideB)
	}

	feeGrowthInsideA := feeGrowthGlobalA.SubWrap(feeGrowthBelowA).SubWrap(feeGrowthAboveA)
	feeGrowthInsideB := feeGrowthGlobalB.SubWrap(feeGrowthBelowB).SubWrap(feeGrowthAboveB)
	return feeGrowthInsideA, feeGrowthInsideB
}

// NextRewardGrowthsInside mirrors next_reward_growths_inside: the same
// below/above/inside derivation as fee growth, applied independently per
// reward slot, with uninitialized slots always reporting zero growth.
func NextRewardGrowthsInside(
	tickCurrentIndex int32,
	tickLower tickarray.Tick, tickLowerIndex int32,
	tickUpper tickarray.Tick, tickUpperIndex int32,
	rewardInfos [tickarray.NumRewards]RewardGrowth,
) [tickarray.NumRewards]uint128.Uint128 {
	var out [tickarray.NumRewards]uint128.Uint128

	for i := 0; i < tickarray.NumRewards; i++ {
		if !rewardInfos[i].Initialized {
			continue
		}

		var growthBelow uint128.Uint128
		switch {
		case !tickLower.Initialized:
			growthBelow = rewardInfos[i].GrowthGlobalX64
		case tickCurrentIndex < tickLowerIndex:
			growthBelow = rewardInfos[i].GrowthGlobalX64.SubWrap(tickLower.RewardGrowthsOutside[i])
		default:
			growthBelow = tickLower.RewardGrowthsOutside[i]
		}

		var growthAbove uint128.Uint128
		switch {
		case !tickUpper.Initialized:
			// zero value
		case tickCurrentIndex < tickUpperIndex:
			growthAbove = tickUpper.RewardGrowthsOutside[i]
		default:
			growthAbove = rewardInfos[i].GrowthGlobalX64.SubWrap(tickUpper.RewardGrowthsOutside[i])
		}

		out[i] = rewardInfos[i].GrowthGlobalX64.SubWrap(growthBelow).SubWrap(growthAbove)
	}
	return out
}
