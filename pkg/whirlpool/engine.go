// Package whirlpool is the top-level entry point for the concentrated-
// liquidity core: it wires packages u256/tickmath/tickarray/ticks/position/
// poolstate/liquidity/swap/feerate/sequencer into the eight host operations
// named in section 6, each a thin, mostly-pure orchestration function in the
// style of manager/*.rs's own top-level instruction handlers. Engine itself
// carries no state of its own -- it is constructed once and issues calls
// against whatever Pool/Position/tick-array values the host (pkg/hostsim or
// a real one) passes in, mirroring the teacher's pkg/sol.Client shape
// (construct once, issue typed calls, get typed results) even though there
// is no connection to hold open here.
package whirlpool

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/feerate"
	"whirlsim/pkg/whirlpool/liquidity"
	"whirlsim/pkg/whirlpool/poolstate"
	"whirlsim/pkg/whirlpool/position"
	"whirlsim/pkg/whirlpool/sequencer"
	"whirlsim/pkg/whirlpool/swap"
	"whirlsim/pkg/whirlpool/tickarray"
	"whirlsim/pkg/whirlpool/tickmath"
)

// Engine issues the host-facing operations of section 6 against
// caller-supplied state.
type Engine struct{}

// NewEngine returns a ready-to-use Engine. There is nothing to configure:
// every operation is parameterized by its call, not by engine construction.
func NewEngine() *Engine { return &Engine{} }

// TickArrayLayout selects a tick array's on-disk representation for
// initialize_tick_array.
type TickArrayLayout int

const (
	LayoutFixed TickArrayLayout = iota
	LayoutDynamic
)

// maxLiquidityDeltaMagnitude is the largest magnitude representable by the
// host operation's own parameter type, `ΔL: i128` (section 6 item 4): i128's
// positive range tops out at 2^127-1. A caller-supplied delta whose
// magnitude exceeds this is rejected before it ever reaches the arithmetic
// in package ticks/position, which is free to assume the narrower range.
var maxLiquidityDeltaMagnitude = uint128.From64(1).Lsh(127).Sub(uint128.From64(1))

func checkLiquidityDeltaMagnitude(delta tickarray.I128) error {
	if delta.Mag.Cmp(maxLiquidityDeltaMagnitude) > 0 {
		return errs.New(errs.LiquidityTooHigh, "liquidity delta magnitude exceeds i128 range")
	}
	return nil
}

// validateTickArrayOwnership mirrors the structural check every tick-array
// account carries implicitly on-chain via its PDA seeds: a tick array
// supplied for one pool must never be substituted for another's. Per
// section 7 this is a "structural error" -- it must never fire on a
// correctly constructed call, only on a caller bug.
func validateTickArrayOwnership(poolKey solana.PublicKey, arrays ...tickarray.Store) error {
	for _, a := range arrays {
		if a == nil {
			continue
		}
		if a.Whirlpool() != poolKey {
			return errs.New(errs.DifferentWhirlpoolTickArrayAccount, "tick array belongs to a different whirlpool account")
		}
	}
	return nil
}

// InitializePoolParams bundles initialize_pool's inputs (section 6 item 1).
type InitializePoolParams struct {
	TickSpacing      uint16
	InitialSqrtPrice uint128.Uint128
	FeeRate          uint16
	ProtocolFeeRate  uint16
	TokenMintA       solana.PublicKey
	TokenMintB       solana.PublicKey
	TokenVaultA      solana.PublicKey
	TokenVaultB      solana.PublicKey
	WhirlpoolsConfig solana.PublicKey
}

// InitializePool mirrors initialize_pool: validates the token-mint ordering
// convention (mint_a must sort before mint_b, matching how Solana PDAs for
// a pool are derived so there is exactly one canonical pool per pair) and
// the initial sqrt price, and derives the pool's starting tick.
func (e *Engine) InitializePool(p InitializePoolParams) (poolstate.Pool, error) {
	if bytes.Compare(p.TokenMintA[:], p.TokenMintB[:]) >= 0 {
		return poolstate.Pool{}, errs.New(errs.InvalidTokenMintOrder, "token_mint_a must sort before token_mint_b")
	}
	if p.InitialSqrtPrice.Cmp(tickmath.MinSqrtPrice()) < 0 || p.InitialSqrtPrice.Cmp(tickmath.MaxSqrtPrice()) > 0 {
		return poolstate.Pool{}, errs.New(errs.SqrtPriceOutOfBounds, "initial sqrt price out of bounds")
	}
	if p.FeeRate > feerate.FeeRateHardCap {
		return poolstate.Pool{}, errs.New(errs.FeeRateMaxExceeded, "fee rate %d exceeds hard cap %d", p.FeeRate, feerate.FeeRateHardCap)
	}
	if uint32(p.ProtocolFeeRate) > feerate.ProtocolFeeRateDenominator {
		return poolstate.Pool{}, errs.New(errs.ProtocolFeeRateMaxExceeded, "protocol fee rate %d exceeds denominator %d", p.ProtocolFeeRate, feerate.ProtocolFeeRateDenominator)
	}
	tick, err := tickmath.TickFromSqrtPrice(p.InitialSqrtPrice)
	if err != nil {
		return poolstate.Pool{}, err
	}
	return poolstate.Pool{
		TickSpacing:      p.TickSpacing,
		FeeRate:          p.FeeRate,
		ProtocolFeeRate:  p.ProtocolFeeRate,
		SqrtPrice:        p.InitialSqrtPrice,
		TickCurrentIndex: tick,
	}, nil
}

// SetFeeRate mirrors the fee-tier update path a host exposes alongside
// initialize_pool: re-validates the new static fee rate against the same
// hard cap.
func (e *Engine) SetFeeRate(pool *poolstate.Pool, feeRate uint16) error {
	if feeRate > feerate.FeeRateHardCap {
		return errs.New(errs.FeeRateMaxExceeded, "fee rate %d exceeds hard cap %d", feeRate, feerate.FeeRateHardCap)
	}
	pool.FeeRate = feeRate
	return nil
}

// SetProtocolFeeRate mirrors the equivalent protocol-fee-rate update path.
func (e *Engine) SetProtocolFeeRate(pool *poolstate.Pool, protocolFeeRate uint16) error {
	if uint32(protocolFeeRate) > feerate.ProtocolFeeRateDenominator {
		return errs.New(errs.ProtocolFeeRateMaxExceeded, "protocol fee rate %d exceeds denominator %d", protocolFeeRate, feerate.ProtocolFeeRateDenominator)
	}
	pool.ProtocolFeeRate = protocolFeeRate
	return nil
}

// InitializeTickArray mirrors initialize_tick_array: validates the proposed
// start tick against the pool's tick spacing before allocating the chosen
// layout.
func (e *Engine) InitializeTickArray(whirlpool solana.PublicKey, startTickIndex int32, tickSpacing uint16, layout TickArrayLayout) (tickarray.Store, error) {
	if !tickarray.CheckIsValidStartTick(startTickIndex, tickSpacing) {
		return nil, errs.New(errs.InvalidStartTick, "start tick %d is not valid for spacing %d", startTickIndex, tickSpacing)
	}
	switch layout {
	case LayoutDynamic:
		return tickarray.NewDynamic(whirlpool, startTickIndex), nil
	default:
		return tickarray.NewFixed(whirlpool, startTickIndex), nil
	}
}

// OpenPosition mirrors open_position: validates that both bounds are usable
// ticks for the pool's spacing and that the range is non-empty.
func (e *Engine) OpenPosition(tickLowerIndex, tickUpperIndex int32, tickSpacing uint16) (position.Position, error) {
	if !tickarray.CheckIsUsableTick(tickLowerIndex, tickSpacing) || !tickarray.CheckIsUsableTick(tickUpperIndex, tickSpacing) {
		return position.Position{}, errs.New(errs.InvalidTickIndex, "tick bounds [%d, %d) are not usable at spacing %d", tickLowerIndex, tickUpperIndex, tickSpacing)
	}
	if tickLowerIndex >= tickUpperIndex {
		return position.Position{}, errs.New(errs.InvalidTickIndex, "tick_lower %d must be less than tick_upper %d", tickLowerIndex, tickUpperIndex)
	}
	return position.Position{TickLowerIndex: tickLowerIndex, TickUpperIndex: tickUpperIndex}, nil
}

// ModifyLiquidityParams bundles modify_liquidity's inputs (section 6 item
// 4). TickArrayUpper may be the same Store as TickArrayLower when both
// boundary ticks share one array (section 9's aliasing note); both tick
// updates are then written through that one Store.
type ModifyLiquidityParams struct {
	WhirlpoolKey   solana.PublicKey
	Pool           *poolstate.Pool
	Position       *position.Position
	TickArrayLower tickarray.Store
	TickArrayUpper tickarray.Store
	LiquidityDelta tickarray.I128
	BoundA         uint64
	BoundB         uint64
	Timestamp      uint64
}

// ModifyLiquidityResult reports the token amounts a modify_liquidity call
// moved.
type ModifyLiquidityResult struct {
	DeltaA uint64
	DeltaB uint64
}

// ModifyLiquidity mirrors modify_liquidity: a positive delta deposits
// (bound_a/bound_b are the caller's max-in), a negative delta withdraws
// (bound_a/bound_b are the caller's min-out); delta==0 on a non-empty
// position is the fee/reward-only sync path.
func (e *Engine) ModifyLiquidity(p ModifyLiquidityParams) (ModifyLiquidityResult, error) {
	if p.LiquidityDelta.IsZero() && p.Position.Liquidity.IsZero() {
		return ModifyLiquidityResult{}, errs.New(errs.LiquidityZero, "cannot modify an empty position by zero")
	}
	if err := checkLiquidityDeltaMagnitude(p.LiquidityDelta); err != nil {
		return ModifyLiquidityResult{}, err
	}
	tickArrayForUpper := p.TickArrayUpper
	if tickArrayForUpper == nil {
		tickArrayForUpper = p.TickArrayLower
	}
	if err := validateTickArrayOwnership(p.WhirlpoolKey, p.TickArrayLower, tickArrayForUpper); err != nil {
		return ModifyLiquidityResult{}, err
	}

	update, err := liquidity.CalculateModifyLiquidity(p.Pool, *p.Position, p.TickArrayLower, tickArrayForUpper, p.LiquidityDelta, p.Timestamp)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}

	var deltaA, deltaB uint64
	if !p.LiquidityDelta.IsZero() {
		deltaA, deltaB, err = liquidity.CalculateLiquidityTokenDeltas(p.Pool.TickCurrentIndex, p.Pool.SqrtPrice, p.Position.TickLowerIndex, p.Position.TickUpperIndex, p.LiquidityDelta)
		if err != nil {
			return ModifyLiquidityResult{}, err
		}
		if !p.LiquidityDelta.Neg {
			if p.BoundA != 0 && deltaA > p.BoundA {
				return ModifyLiquidityResult{}, errs.New(errs.TokenMaxExceeded, "token A delta %d exceeds max-in %d", deltaA, p.BoundA)
			}
			if p.BoundB != 0 && deltaB > p.BoundB {
				return ModifyLiquidityResult{}, errs.New(errs.TokenMaxExceeded, "token B delta %d exceeds max-in %d", deltaB, p.BoundB)
			}
		} else {
			if deltaA < p.BoundA {
				return ModifyLiquidityResult{}, errs.New(errs.TokenMinSubceeded, "token A delta %d below min-out %d", deltaA, p.BoundA)
			}
			if deltaB < p.BoundB {
				return ModifyLiquidityResult{}, errs.New(errs.TokenMinSubceeded, "token B delta %d below min-out %d", deltaB, p.BoundB)
			}
		}
	}

	var upperForSync tickarray.Store
	if p.TickArrayUpper != nil {
		upperForSync = p.TickArrayUpper
	}
	if err := liquidity.SyncModifyLiquidityValues(p.Pool, p.Position, p.TickArrayLower, upperForSync, update, p.Timestamp); err != nil {
		return ModifyLiquidityResult{}, err
	}

	return ModifyLiquidityResult{DeltaA: deltaA, DeltaB: deltaB}, nil
}

// UpdateFeesAndRewardsParams bundles update_fees_and_rewards's inputs: the
// fee/reward-only sync that collect_fees/collect_reward ride on when a
// position has accrued growth since its last touch but its liquidity itself
// isn't changing (original_source's lib.rs:285 exposes this as its own
// instruction, run ahead of a collect rather than fused into it).
type UpdateFeesAndRewardsParams struct {
	WhirlpoolKey   solana.PublicKey
	Pool           *poolstate.Pool
	Position       *position.Position
	TickArrayLower tickarray.Store
	TickArrayUpper tickarray.Store
	Timestamp      uint64
}

// UpdateFeesAndRewards mirrors update_fees_and_rewards: rolls the pool's
// reward emissions forward to Timestamp and re-checkpoints the position's
// fee_owed/reward owed fields against the resulting growth, without moving
// any liquidity. Fails LiquidityZero on an empty position -- there is
// nothing to accrue against and nothing new to checkpoint (an emptied
// position was already synced by the modify_liquidity call that drained it).
func (e *Engine) UpdateFeesAndRewards(p UpdateFeesAndRewardsParams) error {
	tickArrayForUpper := p.TickArrayUpper
	if tickArrayForUpper == nil {
		tickArrayForUpper = p.TickArrayLower
	}
	if err := validateTickArrayOwnership(p.WhirlpoolKey, p.TickArrayLower, tickArrayForUpper); err != nil {
		return err
	}
	posUpdate, rewardInfos, err := liquidity.CalculateFeeAndRewardGrowths(p.Pool, *p.Position, p.TickArrayLower, tickArrayForUpper, p.Timestamp)
	if err != nil {
		return err
	}
	p.Position.Apply(posUpdate)
	p.Pool.ApplyRewardsAndLiquidity(rewardInfos, p.Pool.Liquidity, p.Timestamp)
	return nil
}

// SwapParams bundles swap's inputs (section 6 item 5 / section 4.H).
type SwapParams struct {
	WhirlpoolKey           solana.PublicKey
	Pool                   *poolstate.Pool
	Sequence               *sequencer.Sequence
	AmountSpecified        uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
	Now                    uint64
	FeeRate                *feerate.State
}

// Swap mirrors swap: computes the swap against a copy of the pool and, only
// once every postcondition has passed, commits the resulting pool-level
// state (tick-array writes are committed inside swap.Execute itself under
// the same all-or-nothing rule).
func (e *Engine) Swap(p SwapParams) (swap.Result, error) {
	result, err := swap.Execute(*p.Pool, swap.Params{
		Sequence:               p.Sequence,
		TickSpacing:            p.Pool.TickSpacing,
		AmountSpecified:        p.AmountSpecified,
		OtherAmountThreshold:   p.OtherAmountThreshold,
		SqrtPriceLimit:         p.SqrtPriceLimit,
		AmountSpecifiedIsInput: p.AmountSpecifiedIsInput,
		AToB:                   p.AToB,
		Now:                    p.Now,
		FeeRate:                p.FeeRate,
	})
	if err != nil {
		return swap.Result{}, err
	}
	p.Pool.SqrtPrice = result.SqrtPrice
	p.Pool.TickCurrentIndex = result.TickCurrentIndex
	p.Pool.Liquidity = result.Liquidity
	p.Pool.FeeGrowthGlobalA = result.FeeGrowthGlobalA
	p.Pool.FeeGrowthGlobalB = result.FeeGrowthGlobalB
	p.Pool.ProtocolFeeOwedA = result.ProtocolFeeOwedA
	p.Pool.ProtocolFeeOwedB = result.ProtocolFeeOwedB
	return result, nil
}

// TwoHopSwapParams bundles two_hop_swap's inputs (section 6 item 6): two
// ordinary swaps plus the two checks that make them a valid hop pair.
type TwoHopSwapParams struct {
	Pool1Key, Pool2Key         solana.PublicKey
	Hop1, Hop2                 SwapParams
	Hop1OutputMint             solana.PublicKey
	Hop2InputMint              solana.PublicKey
}

// TwoHopSwapResult carries both hops' results.
type TwoHopSwapResult struct {
	Hop1 swap.Result
	Hop2 swap.Result
}

// TwoHopSwap mirrors two_hop_swap: runs hop one, threads its output amount
// into hop two as an exact-in swap, and enforces that the two pools differ
// and the intermediary mint lines up. Per the spec's own open question,
// pool identity is compared as an opaque key, not re-derived from any
// token-extension normalization.
func (e *Engine) TwoHopSwap(p TwoHopSwapParams) (TwoHopSwapResult, error) {
	if p.Pool1Key == p.Pool2Key {
		return TwoHopSwapResult{}, errs.New(errs.DuplicateTwoHopPool, "two-hop swap requires two distinct pools")
	}
	if p.Hop1OutputMint != p.Hop2InputMint {
		return TwoHopSwapResult{}, errs.New(errs.InvalidIntermediaryMint, "hop one's output mint must equal hop two's input mint")
	}

	r1, err := e.Swap(p.Hop1)
	if err != nil {
		return TwoHopSwapResult{}, err
	}

	hop2 := p.Hop2
	hop2.AmountSpecified = r1.AmountOut
	hop2.AmountSpecifiedIsInput = true
	r2, err := e.Swap(hop2)
	if err != nil {
		return TwoHopSwapResult{}, err
	}
	return TwoHopSwapResult{Hop1: r1, Hop2: r2}, nil
}

// ClosePosition mirrors close_position: fails unless the position is fully
// drained of liquidity and every owed amount.
func (e *Engine) ClosePosition(pos position.Position) error {
	if !pos.Liquidity.IsZero() {
		return errs.New(errs.ClosePositionNotEmpty, "position still holds liquidity")
	}
	if pos.FeeOwedA != 0 || pos.FeeOwedB != 0 {
		return errs.New(errs.ClosePositionNotEmpty, "position still holds uncollected fees")
	}
	for _, r := range pos.RewardInfos {
		if r.AmountOwed != 0 {
			return errs.New(errs.ClosePositionNotEmpty, "position still holds uncollected rewards")
		}
	}
	return nil
}

// CollectFeesResult reports the fee amounts a collect_fees call drained.
type CollectFeesResult struct {
	FeeA uint64
	FeeB uint64
}

// CollectFees mirrors collect_fees: a pure readout that zeros the owed
// fields and returns what they held. A position still accruing against an
// open range must be synced with UpdateFeesAndRewards first (or touched by
// any modify_liquidity call, which syncs as a side effect) for pos.FeeOwed*
// to reflect growth since its last checkpoint.
func (e *Engine) CollectFees(pos *position.Position) CollectFeesResult {
	result := CollectFeesResult{FeeA: pos.FeeOwedA, FeeB: pos.FeeOwedB}
	pos.FeeOwedA = 0
	pos.FeeOwedB = 0
	return result
}

// CollectReward mirrors collect_reward(index): drains the given reward
// slot's owed amount, failing InvalidRewardIndex for an out-of-range index
// and RewardVaultAmountInsufficient if the vault the host reports can't
// cover what's owed. Same UpdateFeesAndRewards caveat as CollectFees applies
// to reward_infos[index].amount_owed.
func (e *Engine) CollectReward(pos *position.Position, index int, vaultBalance uint64) (uint64, error) {
	if index < 0 || index >= tickarray.NumRewards {
		return 0, errs.New(errs.InvalidRewardIndex, "reward index %d out of range", index)
	}
	owed := pos.RewardInfos[index].AmountOwed
	if owed > vaultBalance {
		return 0, errs.New(errs.RewardVaultAmountInsufficient, "reward vault holds %d, need %d", vaultBalance, owed)
	}
	pos.RewardInfos[index].AmountOwed = 0
	return owed, nil
}
