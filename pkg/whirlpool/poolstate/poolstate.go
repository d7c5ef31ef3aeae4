// Package poolstate holds the Whirlpool account's own state transitions:
// advancing reward emissions to a new timestamp, and deciding whether a
// liquidity change actually moves the pool's active liquidity (only true
// when the pool's current price sits inside the position's range).
//
// The account layout itself (byte offsets, discriminator) is carried by
// pkg/whirlpool/accountcodec, adapted from the teacher's original
// WhirlpoolPool account decoder; this package works against the in-memory
// Pool view that codec produces.
package poolstate

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/ticks"
	"whirlsim/pkg/whirlpool/u256"
)

// RewardInfo is a pool-level reward stream: the mint/vault/authority
// identifying it on-chain, its emission rate, and its cumulative growth.
// An uninitialized slot is the zero value -- Mint is the default pubkey.
type RewardInfo struct {
	Mint                  solana.PublicKey
	Vault                 solana.PublicKey
	Authority             solana.PublicKey
	EmissionsPerSecondX64 uint128.Uint128
	GrowthGlobalX64       uint128.Uint128
}

// Initialized reports whether this reward slot has ever been configured.
func (r RewardInfo) Initialized() bool {
	return r.Mint != solana.PublicKey{}
}

// ToTickRewardGrowth narrows a RewardInfo to what package ticks needs to
// compute growth-inside/outside, avoiding a poolstate<->ticks import cycle.
func (r RewardInfo) ToTickRewardGrowth() ticks.RewardGrowth {
	return ticks.RewardGrowth{GrowthGlobalX64: r.GrowthGlobalX64, Initialized: r.Initialized()}
}

// Pool is the in-memory view of a Whirlpool account that the liquidity and
// swap engines read and mutate.
type Pool struct {
	TickSpacing      uint16
	FeeRate          uint16
	ProtocolFeeRate  uint16
	Liquidity        uint128.Uint128
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32
	ProtocolFeeOwedA uint64
	ProtocolFeeOwedB uint64
	FeeGrowthGlobalA uint128.Uint128
	FeeGrowthGlobalB uint128.Uint128

	RewardLastUpdatedTimestamp uint64
	RewardInfos                [tickarray.NumRewards]RewardInfo
}

// RewardGrowths returns the pool's reward infos narrowed for package ticks.
func (p *Pool) RewardGrowths() [tickarray.NumRewards]ticks.RewardGrowth {
	var out [tickarray.NumRewards]ticks.RewardGrowth
	for i, r := range p.RewardInfos {
		out[i] = r.ToTickRewardGrowth()
	}
	return out
}

// NextRewardInfos mirrors next_whirlpool_reward_infos: advances each
// initialized reward's cumulative growth by its emission rate over the
// elapsed time since the pool's last update. A pool with zero liquidity
// accrues no growth (there is nothing for the emission to be distributed
// over), and time may never move backwards.
func (p *Pool) NextRewardInfos(nextTimestamp uint64) ([tickarray.NumRewards]RewardInfo, error) {
	if nextTimestamp < p.RewardLastUpdatedTimestamp {
		return p.RewardInfos, errs.New(errs.InvalidTimestamp, "next timestamp %d precedes last update %d", nextTimestamp, p.RewardLastUpdatedTimestamp)
	}
	if p.Liquidity.IsZero() {
		return p.RewardInfos, nil
	}

	timeDelta := uint128.From64(nextTimestamp - p.RewardLastUpdatedTimestamp)

	next := p.RewardInfos
	for i := range next {
		if !next[i].Initialized() {
			continue
		}
		growthDelta, err := u256.MulDivFloor(timeDelta, next[i].EmissionsPerSecondX64, p.Liquidity)
		if err != nil {
			return p.RewardInfos, err
		}
		next[i].GrowthGlobalX64 = next[i].GrowthGlobalX64.AddWrap(growthDelta)
	}
	return next, nil
}

// NextLiquidity mirrors next_whirlpool_liquidity: a liquidity change only
// moves the pool's active liquidity when the pool's current tick sits
// inside the position's range; outside it the position isn't contributing
// to the active curve yet (or anymore).
func (p *Pool) NextLiquidity(tickLowerIndex, tickUpperIndex int32, liquidityDelta tickarray.I128) (uint128.Uint128, error) {
	if p.TickCurrentIndex < tickUpperIndex && p.TickCurrentIndex >= tickLowerIndex {
		return ticks.AddLiquidityDelta(p.Liquidity, liquidityDelta)
	}
	return p.Liquidity, nil
}

// ApplyRewardsAndLiquidity mirrors update_rewards_and_liquidity: commits a
// previously computed reward-info/liquidity transition and advances the
// pool's reward-update timestamp.
func (p *Pool) ApplyRewardsAndLiquidity(rewardInfos [tickarray.NumRewards]RewardInfo, liquidity uint128.Uint128, timestamp uint64) {
	p.RewardInfos = rewardInfos
	p.Liquidity = liquidity
	p.RewardLastUpdatedTimestamp = timestamp
}
