package tickarray

import (
	"math/bits"

	"whirlsim/pkg/whirlpool/errs"

	"github.com/gagliardetto/solana-go"
)

// Store is the uniform interface the swap engine and liquidity manager use
// to read and mutate ticks, regardless of whether the underlying array is
// laid out Fixed (dense, O(1)) or Dynamic (sparse bitmap, O(record) writes).
type Store interface {
	IsVariableSize() bool
	StartTickIndex() int32
	Whirlpool() solana.PublicKey

	GetTick(tickIndex int32, tickSpacing uint16) (Tick, error)
	UpdateTick(tickIndex int32, tickSpacing uint16, update TickUpdate) error
	GetNextInitTickIndex(tickIndex int32, tickSpacing uint16, aToB bool) (int32, bool, error)

	InSearchRange(tickIndex int32, tickSpacing uint16, shifted bool) bool
	CheckInArrayBounds(tickIndex int32, tickSpacing uint16) bool
	IsMinTickArray() bool
	IsMaxTickArray(tickSpacing uint16) bool
	TickOffset(tickIndex int32, tickSpacing uint16) (int32, error)
}

// inSearchRange implements TickArrayType::in_search_range: the array is
// responsible for the half-open window [start, start+88*spacing), shifted
// one spacing to the left for b->a searches so the rightmost tick of the
// previous array can be the next init tick of this one.
func inSearchRange(startTickIndex int32, tickIndex int32, tickSpacing uint16, shifted bool) bool {
	lower := startTickIndex
	upper := startTickIndex + TickArraySize*int32(tickSpacing)
	if shifted {
		lower -= int32(tickSpacing)
		upper -= int32(tickSpacing)
	}
	return tickIndex >= lower && tickIndex < upper
}

func isMinTickArray(startTickIndex int32) bool {
	return startTickIndex <= MinTickIndex
}

func isMaxTickArray(startTickIndex int32, tickSpacing uint16) bool {
	return startTickIndex+TickArraySize*int32(tickSpacing) > MaxTickIndex
}

// tickOffset computes the floor-divided offset of tickIndex within the
// array, matching Rust's explicit floor-division (Go's integer division
// truncates toward zero, so negative numerators need the same correction
// the reference implementation applies).
func tickOffset(tickIndex, startTickIndex int32, tickSpacing uint16) int32 {
	lhs := tickIndex - startTickIndex
	rhs := int32(tickSpacing)
	d := lhs / rhs
	r := lhs % rhs
	if r < 0 {
		d--
	}
	return d
}

func checkTickSpacing(tickSpacing uint16) error {
	if tickSpacing == 0 {
		return errs.New(errs.InvalidTickSpacing, "tick spacing must be non-zero")
	}
	return nil
}

// popcountMask64 counts set bits in the low n bits of a uint64 bitmap word.
func popcountMask64(word uint64, n uint) int {
	if n == 0 {
		return 0
	}
	mask := uint64((1 << n) - 1)
	if n == 64 {
		mask = ^uint64(0)
	}
	return bits.OnesCount64(word & mask)
}
