package tickarray

import (
	"math/bits"

	"whirlsim/pkg/whirlpool/errs"

	"github.com/gagliardetto/solana-go"
)

// Dynamic is the sparse-bitmap tick-array layout: a 128-bit bitmap of
// initialized ticks (only the low 88 bits are used) plus, conceptually, a
// packed byte sequence of initialized-tick records in offset order. Rather
// than model that packed byte sequence literally (which only matters for
// the on-chain account's wire size), this keeps the ticks in a slice
// addressed by bitmap offset so GetTick/UpdateTick still have to go through
// the same popcount-derived position math as the real layout -- the part of
// §4.C this module exists to exercise -- while avoiding reimplementing a
// byte-level rotate.
type Dynamic struct {
	startTickIndex int32
	whirlpool      solana.PublicKey
	bitmap         uint128Bits
	ticks          []Tick // only holds initialized ticks, ordered by ascending offset
}

// uint128Bits is a 128-bit bitmap represented as two uint64 halves,
// low-order first, matching the on-chain DynamicTickArray.tick_bitmap field.
type uint128Bits struct {
	lo, hi uint64
}

func (b uint128Bits) bit(i int32) bool {
	if i < 64 {
		return b.lo&(1<<uint(i)) != 0
	}
	return b.hi&(1<<uint(i-64)) != 0
}

func (b *uint128Bits) setBit(i int32, v bool) {
	if i < 64 {
		if v {
			b.lo |= 1 << uint(i)
		} else {
			b.lo &^= 1 << uint(i)
		}
		return
	}
	if v {
		b.hi |= 1 << uint(i-64)
	} else {
		b.hi &^= 1 << uint(i-64)
	}
}

// popcountBelow counts set bits strictly below offset i (i.e. popcount(bitmap
// & ((1<<i)-1))), the formula that locates a tick's position among the
// packed initialized records.
func (b uint128Bits) popcountBelow(i int32) int {
	if i <= 0 {
		return 0
	}
	count := 0
	if i <= 64 {
		count = popcountMask64(b.lo, uint(i))
	} else {
		count = bits.OnesCount64(b.lo)
		count += popcountMask64(b.hi, uint(i-64))
	}
	return count
}

// NewDynamic allocates an all-uninitialized Dynamic tick array.
func NewDynamic(whirlpool solana.PublicKey, startTickIndex int32) *Dynamic {
	return &Dynamic{startTickIndex: startTickIndex, whirlpool: whirlpool}
}

func (d *Dynamic) IsVariableSize() bool        { return true }
func (d *Dynamic) StartTickIndex() int32       { return d.startTickIndex }
func (d *Dynamic) Whirlpool() solana.PublicKey { return d.whirlpool }

func (d *Dynamic) InSearchRange(tickIndex int32, tickSpacing uint16, shifted bool) bool {
	return inSearchRange(d.startTickIndex, tickIndex, tickSpacing, shifted)
}

func (d *Dynamic) CheckInArrayBounds(tickIndex int32, tickSpacing uint16) bool {
	return d.InSearchRange(tickIndex, tickSpacing, false)
}

func (d *Dynamic) IsMinTickArray() bool { return isMinTickArray(d.startTickIndex) }

func (d *Dynamic) IsMaxTickArray(tickSpacing uint16) bool {
	return isMaxTickArray(d.startTickIndex, tickSpacing)
}

func (d *Dynamic) TickOffset(tickIndex int32, tickSpacing uint16) (int32, error) {
	if err := checkTickSpacing(tickSpacing); err != nil {
		return 0, err
	}
	return tickOffset(tickIndex, d.startTickIndex, tickSpacing), nil
}

// position returns the index into d.ticks for offset i, valid only when bit
// i is set.
func (d *Dynamic) position(offset int32) int {
	return d.bitmap.popcountBelow(offset)
}

func (d *Dynamic) GetTick(tickIndex int32, tickSpacing uint16) (Tick, error) {
	if !d.CheckInArrayBounds(tickIndex, tickSpacing) || !CheckIsUsableTick(tickIndex, tickSpacing) {
		return Tick{}, errs.New(errs.TickNotFound, "tick %d not in array starting at %d", tickIndex, d.startTickIndex)
	}
	off, err := d.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return Tick{}, err
	}
	if !d.bitmap.bit(off) {
		return Tick{}, nil
	}
	return d.ticks[d.position(off)], nil
}

// UpdateTick mirrors DynamicTickArrayLoader::update_tick: when the
// initialized bit flips it inserts or removes the record at its
// popcount-derived position (the real on-chain layout instead shifts raw
// bytes by one record width; here that shift is a slice insert/delete,
// which is the same O(tail length) operation over the logical record list),
// then writes the new value and syncs the bitmap.
func (d *Dynamic) UpdateTick(tickIndex int32, tickSpacing uint16, update TickUpdate) error {
	if !d.CheckInArrayBounds(tickIndex, tickSpacing) || !CheckIsUsableTick(tickIndex, tickSpacing) {
		return errs.New(errs.TickNotFound, "tick %d not in array starting at %d", tickIndex, d.startTickIndex)
	}
	off, err := d.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return err
	}
	wasInit := d.bitmap.bit(off)
	pos := d.position(off)

	switch {
	case !wasInit && update.Initialized:
		d.ticks = append(d.ticks, Tick{})
		copy(d.ticks[pos+1:], d.ticks[pos:len(d.ticks)-1])
		d.ticks[pos] = tickFromUpdate(update)
		d.bitmap.setBit(off, true)
	case wasInit && !update.Initialized:
		copy(d.ticks[pos:], d.ticks[pos+1:])
		d.ticks = d.ticks[:len(d.ticks)-1]
		d.bitmap.setBit(off, false)
	case wasInit && update.Initialized:
		d.ticks[pos] = tickFromUpdate(update)
	default:
		// stays uninitialized, nothing to store
	}
	return nil
}

func tickFromUpdate(u TickUpdate) Tick {
	return Tick{
		Initialized:          u.Initialized,
		LiquidityNet:         u.LiquidityNet,
		LiquidityGross:       u.LiquidityGross,
		FeeGrowthOutsideA:    u.FeeGrowthOutsideA,
		FeeGrowthOutsideB:    u.FeeGrowthOutsideB,
		RewardGrowthsOutside: u.RewardGrowthsOutside,
	}
}

func (d *Dynamic) GetNextInitTickIndex(tickIndex int32, tickSpacing uint16, aToB bool) (int32, bool, error) {
	if !d.InSearchRange(tickIndex, tickSpacing, !aToB) {
		return 0, false, errs.New(errs.InvalidTickArraySequence, "tick %d outside search range", tickIndex)
	}
	curr, err := d.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return 0, false, err
	}
	if !aToB {
		curr++
	}
	for curr >= 0 && curr < TickArraySize {
		if d.bitmap.bit(curr) {
			return curr*int32(tickSpacing) + d.startTickIndex, true, nil
		}
		if aToB {
			curr--
		} else {
			curr++
		}
	}
	return 0, false, nil
}
