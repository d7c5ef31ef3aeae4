package position

import (
	"testing"

	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/tickarray"
)

func u128(v uint64) uint128.Uint128 { return uint128.From64(v) }

func TestNextModifyLiquidityUpdate_AccruesFees(t *testing.T) {
	pos := Position{
		Liquidity:            u128(1_000_000),
		FeeGrowthCheckpointA: u128(0),
		FeeGrowthCheckpointB: u128(0),
	}
	// growth-inside advanced by 2^64 (i.e. "1.0" in Q64.64) over a liquidity
	// of 1,000,000 should accrue exactly 1,000,000 base-unit fees.
	feeGrowthInsideA := u128(1).Lsh(64)

	update, err := NextModifyLiquidityUpdate(pos, tickarray.ZeroI128, feeGrowthInsideA, u128(0), [tickarray.NumRewards]uint128.Uint128{})
	if err != nil {
		t.Fatal(err)
	}
	if update.FeeOwedA != 1_000_000 {
		t.Errorf("FeeOwedA = %d, want 1000000", update.FeeOwedA)
	}
	if update.FeeGrowthCheckpointA != feeGrowthInsideA {
		t.Errorf("checkpoint not advanced to new growth-inside value")
	}
	if update.Liquidity != pos.Liquidity {
		t.Errorf("liquidity changed on a zero-delta sync")
	}
}

func TestNextModifyLiquidityUpdate_LiquidityDelta(t *testing.T) {
	pos := Position{Liquidity: u128(500)}

	t.Run("add", func(t *testing.T) {
		update, err := NextModifyLiquidityUpdate(pos, tickarray.FromI64(250), u128(0), u128(0), [tickarray.NumRewards]uint128.Uint128{})
		if err != nil {
			t.Fatal(err)
		}
		if update.Liquidity != u128(750) {
			t.Errorf("liquidity = %s, want 750", update.Liquidity)
		}
	})

	t.Run("remove more than available underflows", func(t *testing.T) {
		_, err := NextModifyLiquidityUpdate(pos, tickarray.FromI64(600).Negate(), u128(0), u128(0), [tickarray.NumRewards]uint128.Uint128{})
		if err == nil {
			t.Fatal("expected an underflow error")
		}
	})
}

func TestNextModifyLiquidityUpdate_RewardAccrual(t *testing.T) {
	pos := Position{Liquidity: u128(10)}
	var rewardGrowthsInside [tickarray.NumRewards]uint128.Uint128
	rewardGrowthsInside[1] = u128(3).Lsh(64)

	update, err := NextModifyLiquidityUpdate(pos, tickarray.ZeroI128, u128(0), u128(0), rewardGrowthsInside)
	if err != nil {
		t.Fatal(err)
	}
	if update.RewardInfos[1].AmountOwed != 30 {
		t.Errorf("reward[1].AmountOwed = %d, want 30", update.RewardInfos[1].AmountOwed)
	}
	if update.RewardInfos[0].AmountOwed != 0 {
		t.Errorf("reward[0].AmountOwed = %d, want 0", update.RewardInfos[0].AmountOwed)
	}
}
