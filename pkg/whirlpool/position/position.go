// Package position implements the pure position-update calculation: given a
// liquidity delta and the fee/reward growth inside the position's range
// (already computed by package ticks), derive the position's new liquidity
// and the fees/rewards it has newly accrued since its last checkpoint.
package position

import (
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/u256"
)

// RewardInfo is a position's per-reward-slot bookkeeping: the growth-inside
// value last observed, and the amount of that reward accrued but not yet
// collected.
type RewardInfo struct {
	GrowthInsideCheckpoint uint128.Uint128
	AmountOwed             uint64
}

// Position is the subset of an open position's state the liquidity
// calculations read and write. TickLowerIndex/TickUpperIndex are immutable
// for the life of the position and are carried here only for convenience at
// call sites; Update never changes them.
type Position struct {
	TickLowerIndex int32
	TickUpperIndex int32

	Liquidity uint128.Uint128

	FeeGrowthCheckpointA uint128.Uint128
	FeeOwedA             uint64
	FeeGrowthCheckpointB uint128.Uint128
	FeeOwedB             uint64

	RewardInfos [tickarray.NumRewards]RewardInfo
}

// Update is the new state to write into a Position, mirroring
// PositionUpdate in the reference implementation.
type Update struct {
	Liquidity            uint128.Uint128
	FeeGrowthCheckpointA uint128.Uint128
	FeeOwedA             uint64
	FeeGrowthCheckpointB uint128.Uint128
	FeeOwedB             uint64
	RewardInfos          [tickarray.NumRewards]RewardInfo
}

// Apply overwrites p with the contents of u, mirroring Position::update.
func (p *Position) Apply(u Update) {
	p.Liquidity = u.Liquidity
	p.FeeGrowthCheckpointA = u.FeeGrowthCheckpointA
	p.FeeOwedA = u.FeeOwedA
	p.FeeGrowthCheckpointB = u.FeeGrowthCheckpointB
	p.FeeOwedB = u.FeeOwedB
	p.RewardInfos = u.RewardInfos
}

// NextModifyLiquidityUpdate mirrors next_position_modify_liquidity_update:
// applies liquidityDelta to the position's liquidity (checked, since a
// position's liquidity can never go negative or below zero) and accrues any
// newly-earned fees and rewards since the position's last checkpoint,
// re-based onto the freshly supplied growth-inside values.
func NextModifyLiquidityUpdate(
	position Position,
	liquidityDelta tickarray.I128,
	feeGrowthInsideA, feeGrowthInsideB uint128.Uint128,
	rewardGrowthsInside [tickarray.NumRewards]uint128.Uint128,
) (Update, error) {
	newLiquidity := position.Liquidity
	if !liquidityDelta.IsZero() {
		if !liquidityDelta.Neg {
			sum := position.Liquidity.AddWrap(liquidityDelta.Mag)
			if sum.Cmp(position.Liquidity) < 0 {
				return Update{}, errs.New(errs.LiquidityOverflow, "position liquidity overflow")
			}
			newLiquidity = sum
		} else {
			if position.Liquidity.Cmp(liquidityDelta.Mag) < 0 {
				return Update{}, errs.New(errs.LiquidityUnderflow, "position liquidity underflow")
			}
			newLiquidity = position.Liquidity.Sub(liquidityDelta.Mag)
		}
	}

	feeGrowthDeltaA := feeGrowthInsideA.SubWrap(position.FeeGrowthCheckpointA)
	feeDeltaA, err := growthToOwedDelta(feeGrowthDeltaA, position.Liquidity)
	if err != nil {
		return Update{}, err
	}
	feeGrowthDeltaB := feeGrowthInsideB.SubWrap(position.FeeGrowthCheckpointB)
	feeDeltaB, err := growthToOwedDelta(feeGrowthDeltaB, position.Liquidity)
	if err != nil {
		return Update{}, err
	}

	var rewardInfos [tickarray.NumRewards]RewardInfo
	for i := 0; i < tickarray.NumRewards; i++ {
		growthDelta := rewardGrowthsInside[i].SubWrap(position.RewardInfos[i].GrowthInsideCheckpoint)
		amountDelta, err := growthToOwedDelta(growthDelta, position.Liquidity)
		if err != nil {
			return Update{}, err
		}
		rewardInfos[i] = RewardInfo{
			GrowthInsideCheckpoint: rewardGrowthsInside[i],
			AmountOwed:             saturatingAddU64(position.RewardInfos[i].AmountOwed, amountDelta),
		}
	}

	return Update{
		Liquidity:            newLiquidity,
		FeeGrowthCheckpointA: feeGrowthInsideA,
		FeeOwedA:             saturatingAddU64(position.FeeOwedA, feeDeltaA),
		FeeGrowthCheckpointB: feeGrowthInsideB,
		FeeOwedB:             saturatingAddU64(position.FeeOwedB, feeDeltaB),
		RewardInfos:          rewardInfos,
	}, nil
}

// saturatingAddU64 adds with clamping at u64::MAX instead of wrapping,
// matching the spec's "saturating add to pos.fee_owed_a" for fee/reward
// accrual (unlike the Q64.64 growth accumulators, owed-token counters are
// not meant to wrap).
func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// growthToOwedDelta converts a Q64.64 growth-inside delta over a position's
// liquidity into a whole-token amount: floor(growthDelta * liquidity / 2^64),
// downcast to u64. A growth delta that would overflow the downcast (an
// enormous, implausible accrual) is reported as NumberDownCastError rather
// than silently truncated.
func growthToOwedDelta(growthDelta, liquidity uint128.Uint128) (uint64, error) {
	if growthDelta.IsZero() || liquidity.IsZero() {
		return 0, nil
	}
	wide := u256.MulU256(growthDelta, liquidity).Rsh(64)
	narrow, err := wide.ToUint128()
	if err != nil {
		return 0, err
	}
	if narrow.Hi != 0 {
		return 0, errs.New(errs.NumberDownCastError, "fee/reward accrual does not fit in u64")
	}
	return narrow.Lo, nil
}
