// Package liquidity orchestrates a single modify-liquidity operation:
// fetching the position's boundary ticks, advancing reward emissions,
// updating the pool's active liquidity, deriving the tick and position
// updates, and computing the token amounts a deposit or withdrawal moves.
// This is the Go counterpart of manager/liquidity_manager.rs, wiring
// together package tickarray, ticks, position and poolstate.
package liquidity

import (
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
	"whirlsim/pkg/whirlpool/ticks"
)

// ModifyLiquidityUpdate bundles every state transition a single
// modify-liquidity call produces, mirroring ModifyLiquidityUpdate in the
// reference implementation (minus its variable-size tick-array resize
// bookkeeping, which has no equivalent in this in-memory engine: tick
// records here are never physically relocated on disk by a resize).
type ModifyLiquidityUpdate struct {
	WhirlpoolLiquidity uint128.Uint128
	RewardInfos        [tickarray.NumRewards]poolstate.RewardInfo
	TickLowerUpdate    tickarray.TickUpdate
	TickUpperUpdate    tickarray.TickUpdate
	PositionUpdate     position.Update
}

// CalculateModifyLiquidity mirrors calculate_modify_liquidity: fetches the
// position's boundary ticks from their stores and delegates to the shared
// computation also used for fee/reward-only syncs.
func CalculateModifyLiquidity(
	pool *poolstate.Pool,
	pos position.Position,
	tickArrayLower, tickArrayUpper tickarray.Store,
	liquidityDelta tickarray.I128,
	timestamp uint64,
) (ModifyLiquidityUpdate, error) {
	tickLower, err := tickArrayLower.GetTick(pos.TickLowerIndex, pool.TickSpacing)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}
	tickUpper, err := tickArrayUpper.GetTick(pos.TickUpperIndex, pool.TickSpacing)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}
	return calculateModifyLiquidity(pool, pos, tickLower, tickUpper, liquidityDelta, timestamp)
}

// CalculateFeeAndRewardGrowths mirrors calculate_fee_and_reward_growths: a
// liquidity_delta=0 sync of a position's accrued fees/rewards against the
// pool's current growth accumulators, without touching pool or tick
// liquidity. Used by Engine.UpdateFeesAndRewards, the sync operation
// collect_fees/collect_reward ride on.
func CalculateFeeAndRewardGrowths(
	pool *poolstate.Pool,
	pos position.Position,
	tickArrayLower, tickArrayUpper tickarray.Store,
	timestamp uint64,
) (position.Update, [tickarray.NumRewards]poolstate.RewardInfo, error) {
	tickLower, err := tickArrayLower.GetTick(pos.TickLowerIndex, pool.TickSpacing)
	if err != nil {
		return position.Update{}, [tickarray.NumRewards]poolstate.RewardInfo{}, err
	}
	tickUpper, err := tickArrayUpper.GetTick(pos.TickUpperIndex, pool.TickSpacing)
	if err != nil {
		return position.Update{}, [tickarray.NumRewards]poolstate.RewardInfo{}, err
	}
	update, err := calculateModifyLiquidity(pool, pos, tickLower, tickUpper, tickarray.ZeroI128, timestamp)
	if err != nil {
		return position.Update{}, [tickarray.NumRewards]poolstate.RewardInfo{}, err
	}
	return update.PositionUpdate, update.RewardInfos, nil
}

func calculateModifyLiquidity(
	pool *poolstate.Pool,
	pos position.Position,
	tickLower, tickUpper tickarray.Tick,
	liquidityDelta tickarray.I128,
	timestamp uint64,
) (ModifyLiquidityUpdate, error) {
	if liquidityDelta.IsZero() && pos.Liquidity.IsZero() {
		return ModifyLiquidityUpdate{}, errs.New(errs.LiquidityZero, "cannot modify an empty position by zero")
	}

	nextRewardInfos, err := pool.NextRewardInfos(timestamp)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}
	nextLiquidity, err := pool.NextLiquidity(pos.TickLowerIndex, pos.TickUpperIndex, liquidityDelta)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}

	rewardGrowths := rewardGrowthsFrom(nextRewardInfos)

	tickLowerUpdate, err := ticks.NextTickModifyLiquidityUpdate(
		tickLower, pos.TickLowerIndex, pool.TickCurrentIndex,
		pool.FeeGrowthGlobalA, pool.FeeGrowthGlobalB, rewardGrowths, liquidityDelta, false,
	)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}
	tickUpperUpdate, err := ticks.NextTickModifyLiquidityUpdate(
		tickUpper, pos.TickUpperIndex, pool.TickCurrentIndex,
		pool.FeeGrowthGlobalA, pool.FeeGrowthGlobalB, rewardGrowths, liquidityDelta, true,
	)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}

	feeGrowthInsideA, feeGrowthInsideB := ticks.NextFeeGrowthsInside(
		pool.TickCurrentIndex,
		tickLower, pos.TickLowerIndex, tickUpper, pos.TickUpperIndex,
		pool.FeeGrowthGlobalA, pool.FeeGrowthGlobalB,
	)
	rewardGrowthsInside := ticks.NextRewardGrowthsInside(
		pool.TickCurrentIndex,
		tickLower, pos.TickLowerIndex, tickUpper, pos.TickUpperIndex,
		rewardGrowths,
	)

	positionUpdate, err := position.NextModifyLiquidityUpdate(pos, liquidityDelta, feeGrowthInsideA, feeGrowthInsideB, rewardGrowthsInside)
	if err != nil {
		return ModifyLiquidityUpdate{}, err
	}

	return ModifyLiquidityUpdate{
		WhirlpoolLiquidity: nextLiquidity,
		RewardInfos:        nextRewardInfos,
		TickLowerUpdate:    tickLowerUpdate,
		TickUpperUpdate:    tickUpperUpdate,
		PositionUpdate:     positionUpdate,
	}, nil
}

func rewardGrowthsFrom(infos [tickarray.NumRewards]poolstate.RewardInfo) [tickarray.NumRewards]ticks.RewardGrowth {
	var out [tickarray.NumRewards]ticks.RewardGrowth
	for i, r := range infos {
		out[i] = r.ToTickRewardGrowth()
	}
	return out
}

// CalculateLiquidityTokenDeltas mirrors calculate_liquidity_token_deltas:
// the amount of token A and/or token B a liquidity change of magnitude
// |liquidityDelta| moves, depending on where the pool's current tick sits
// relative to the position's range. Deposits (positive delta) round token
// amounts up in the protocol's favor; withdrawals round down.
func CalculateLiquidityTokenDeltas(
	currentTickIndex int32,
	sqrtPrice uint128.Uint128,
	tickLowerIndex, tickUpperIndex int32,
	liquidityDelta tickarray.I128,
) (deltaA uint64, deltaB uint64, err error) {
	if liquidityDelta.IsZero() {
		return 0, 0, errs.New(errs.LiquidityZero, "liquidity delta must be non-zero")
	}
	roundUp := !liquidityDelta.Neg

	lowerPrice, err := tickmath.SqrtPriceFromTick(tickLowerIndex)
	if err != nil {
		return 0, 0, err
	}
	upperPrice, err := tickmath.SqrtPriceFromTick(tickUpperIndex)
	if err != nil {
		return 0, 0, err
	}

	switch {
	case currentTickIndex < tickLowerIndex:
		deltaA, err = tickmath.AmountDeltaA(lowerPrice, upperPrice, liquidityDelta.Mag, roundUp)
	case currentTickIndex < tickUpperIndex:
		deltaA, err = tickmath.AmountDeltaA(sqrtPrice, upperPrice, liquidityDelta.Mag, roundUp)
		if err != nil {
			return 0, 0, err
		}
		deltaB, err = tickmath.AmountDeltaB(lowerPrice, sqrtPrice, liquidityDelta.Mag, roundUp)
	default:
		deltaB, err = tickmath.AmountDeltaB(lowerPrice, upperPrice, liquidityDelta.Mag, roundUp)
	}
	if err != nil {
		return 0, 0, err
	}
	return deltaA, deltaB, nil
}

// SyncModifyLiquidityValues mirrors sync_modify_liquidity_values: commits a
// previously computed ModifyLiquidityUpdate to the position, the boundary
// ticks (writing the upper tick through tickArrayLower when the two share a
// single array), and the pool.
func SyncModifyLiquidityValues(
	pool *poolstate.Pool,
	pos *position.Position,
	tickArrayLower, tickArrayUpper tickarray.Store,
	update ModifyLiquidityUpdate,
	rewardLastUpdatedTimestamp uint64,
) error {
	pos.Apply(update.PositionUpdate)

	if err := tickArrayLower.UpdateTick(pos.TickLowerIndex, pool.TickSpacing, update.TickLowerUpdate); err != nil {
		return err
	}
	if tickArrayUpper != nil {
		if err := tickArrayUpper.UpdateTick(pos.TickUpperIndex, pool.TickSpacing, update.TickUpperUpdate); err != nil {
			return err
		}
	} else {
		if err := tickArrayLower.UpdateTick(pos.TickUpperIndex, pool.TickSpacing, update.TickUpperUpdate); err != nil {
			return err
		}
	}

	pool.ApplyRewardsAndLiquidity(update.RewardInfos, update.WhirlpoolLiquidity, rewardLastUpdatedTimestamp)
	return nil
}
