// Package tickarray implements the tick-array storage layer: the Tick
// record, the TickUpdate transition value tick_manager produces, and the
// two on-disk layouts (Fixed, Dynamic) behind the uniform Store interface
// the swap engine and liquidity manager use to find and mutate ticks.
package tickarray

import "lukechampine.com/uint128"

// NumRewards is the number of reward streams a pool tracks.
const NumRewards = 3

const (
	MinTickIndex  = -443636
	MaxTickIndex  = 443636
	TickArraySize = 88
)

// Tick is the semantic tick record, independent of how it is stored
// on-disk. liquidity_net is signed (i128 in the spec); Go has no native
// i128, so it is modeled as a magnitude/sign pair, matching how the rest of
// the engine already has to special-case sign anyway at every crossing.
type Tick struct {
	Initialized          bool
	LiquidityNet         I128
	LiquidityGross       uint128.Uint128
	FeeGrowthOutsideA    uint128.Uint128
	FeeGrowthOutsideB    uint128.Uint128
	RewardGrowthsOutside [NumRewards]uint128.Uint128
}

// TickUpdate is the output of a tick-manager transition: a full
// replacement value for a Tick, applied atomically by Store.UpdateTick.
type TickUpdate struct {
	Initialized          bool
	LiquidityNet         I128
	LiquidityGross       uint128.Uint128
	FeeGrowthOutsideA    uint128.Uint128
	FeeGrowthOutsideB    uint128.Uint128
	RewardGrowthsOutside [NumRewards]uint128.Uint128
}

// Apply overwrites t with the contents of u, matching Tick::update in the
// reference implementation.
func (t *Tick) Apply(u TickUpdate) {
	t.Initialized = u.Initialized
	t.LiquidityNet = u.LiquidityNet
	t.LiquidityGross = u.LiquidityGross
	t.FeeGrowthOutsideA = u.FeeGrowthOutsideA
	t.FeeGrowthOutsideB = u.FeeGrowthOutsideB
	t.RewardGrowthsOutside = u.RewardGrowthsOutside
}

// UpdateFromTick is the identity TickUpdate for an existing tick, used when
// a transition determines nothing changes.
func UpdateFromTick(t Tick) TickUpdate {
	return TickUpdate{
		Initialized:          t.Initialized,
		LiquidityNet:         t.LiquidityNet,
		LiquidityGross:       t.LiquidityGross,
		FeeGrowthOutsideA:    t.FeeGrowthOutsideA,
		FeeGrowthOutsideB:    t.FeeGrowthOutsideB,
		RewardGrowthsOutside: t.RewardGrowthsOutside,
	}
}

// CheckIsOutOfBounds reports whether a tick index falls outside the
// contract-wide supported range.
func CheckIsOutOfBounds(tickIndex int32) bool {
	return tickIndex > MaxTickIndex || tickIndex < MinTickIndex
}

// CheckIsUsableTick reports whether tickIndex is a valid tick for the given
// spacing: in range and a multiple of tickSpacing.
func CheckIsUsableTick(tickIndex int32, tickSpacing uint16) bool {
	if CheckIsOutOfBounds(tickIndex) {
		return false
	}
	return tickIndex%int32(tickSpacing) == 0
}

// CheckIsValidStartTick reports whether tickIndex is a valid start-tick-index
// for a tick array of the given spacing: a multiple of 88*tick_spacing, with
// the single allowance that the left-edge array may start below MinTickIndex
// -- but only at the one start index that array's 88-tick span would occupy
// (MinTickIndex shifted down to the nearest ticks_in_array boundary), not
// any lower multiple.
func CheckIsValidStartTick(tickIndex int32, tickSpacing uint16) bool {
	ticksInArray := int32(TickArraySize) * int32(tickSpacing)
	if CheckIsOutOfBounds(tickIndex) {
		if tickIndex > MinTickIndex {
			return false
		}
		minArrayStartIndex := MinTickIndex - (MinTickIndex%ticksInArray + ticksInArray)
		return tickIndex == minArrayStartIndex
	}
	return tickIndex%ticksInArray == 0
}

// I128 models a signed 128-bit integer as a magnitude over uint128 plus a
// sign bit. The reference implementation uses Rust's native i128 with
// wrapping/checked arithmetic; since Go has no i128, every operation here
// mirrors the specific checked/wrapping semantics the spec calls for at each
// call site instead of trying to be a general-purpose signed-128 type.
type I128 struct {
	Neg bool
	Mag uint128.Uint128
}

// ZeroI128 is the additive identity.
var ZeroI128 = I128{}

// IsZero reports whether the value is zero (sign is irrelevant for zero).
func (a I128) IsZero() bool {
	return a.Mag.IsZero()
}

// Negate returns -a.
func (a I128) Negate() I128 {
	if a.IsZero() {
		return a
	}
	return I128{Neg: !a.Neg, Mag: a.Mag}
}

// CheckedAdd returns a+b, failing ok=false on signed-128 overflow (magnitude
// exceeding the representable range is reported to the caller, who is
// expected to translate it to LiquidityNetError/LiquidityOverflow as
// appropriate for the call site).
func (a I128) CheckedAdd(b I128) (I128, bool) {
	if a.Neg == b.Neg {
		sum, carry := addUint128Checked(a.Mag, b.Mag)
		if carry {
			return I128{}, false
		}
		return I128{Neg: a.Neg, Mag: sum}, true
	}
	// opposite signs: subtract smaller magnitude from larger
	if a.Mag.Cmp(b.Mag) >= 0 {
		return I128{Neg: a.Neg, Mag: a.Mag.Sub(b.Mag)}, true
	}
	return I128{Neg: b.Neg, Mag: b.Mag.Sub(a.Mag)}, true
}

// CheckedSub returns a-b.
func (a I128) CheckedSub(b I128) (I128, bool) {
	return a.CheckedAdd(b.Negate())
}

func addUint128Checked(a, b uint128.Uint128) (uint128.Uint128, bool) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return sum, true
	}
	return sum, false
}

// FromI64 builds an I128 from a signed 64-bit delta (the usual shape of a
// liquidity delta passed in by a host operation).
func FromI64(v int64) I128 {
	if v < 0 {
		return I128{Neg: true, Mag: uint128.From64(uint64(-v))}
	}
	return I128{Mag: uint128.From64(uint64(v))}
}

// Cmp compares a and b, treating zero as signless.
func (a I128) Cmp(b I128) int {
	if a.IsZero() && b.IsZero() {
		return 0
	}
	if a.Neg != b.Neg {
		if a.Neg {
			return -1
		}
		return 1
	}
	c := a.Mag.Cmp(b.Mag)
	if a.Neg {
		return -c
	}
	return c
}
