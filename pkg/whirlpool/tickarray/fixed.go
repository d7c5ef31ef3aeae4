package tickarray

import (
	"whirlsim/pkg/whirlpool/errs"

	"github.com/gagliardetto/solana-go"
)

// Fixed is the dense tick-array layout: a fixed 88-element array of equal-
// width tick records, giving O(1) get/update at the cost of always paying
// for 88 records regardless of how sparse the initialized set is.
type Fixed struct {
	startTickIndex int32
	whirlpool      solana.PublicKey
	ticks          [TickArraySize]Tick
}

// NewFixed allocates an all-uninitialized Fixed tick array bound to whirlpool
// starting at startTickIndex.
func NewFixed(whirlpool solana.PublicKey, startTickIndex int32) *Fixed {
	return &Fixed{startTickIndex: startTickIndex, whirlpool: whirlpool}
}

func (f *Fixed) IsVariableSize() bool        { return false }
func (f *Fixed) StartTickIndex() int32       { return f.startTickIndex }
func (f *Fixed) Whirlpool() solana.PublicKey { return f.whirlpool }

func (f *Fixed) InSearchRange(tickIndex int32, tickSpacing uint16, shifted bool) bool {
	return inSearchRange(f.startTickIndex, tickIndex, tickSpacing, shifted)
}

func (f *Fixed) CheckInArrayBounds(tickIndex int32, tickSpacing uint16) bool {
	return f.InSearchRange(tickIndex, tickSpacing, false)
}

func (f *Fixed) IsMinTickArray() bool { return isMinTickArray(f.startTickIndex) }

func (f *Fixed) IsMaxTickArray(tickSpacing uint16) bool {
	return isMaxTickArray(f.startTickIndex, tickSpacing)
}

func (f *Fixed) TickOffset(tickIndex int32, tickSpacing uint16) (int32, error) {
	if err := checkTickSpacing(tickSpacing); err != nil {
		return 0, err
	}
	return tickOffset(tickIndex, f.startTickIndex, tickSpacing), nil
}

func (f *Fixed) GetTick(tickIndex int32, tickSpacing uint16) (Tick, error) {
	if !f.CheckInArrayBounds(tickIndex, tickSpacing) || !CheckIsUsableTick(tickIndex, tickSpacing) {
		return Tick{}, errs.New(errs.TickNotFound, "tick %d not in array starting at %d", tickIndex, f.startTickIndex)
	}
	off, err := f.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return Tick{}, err
	}
	if off < 0 || off >= TickArraySize {
		return Tick{}, errs.New(errs.TickArrayIndexOutOfBounds, "offset %d out of bounds", off)
	}
	return f.ticks[off], nil
}

func (f *Fixed) UpdateTick(tickIndex int32, tickSpacing uint16, update TickUpdate) error {
	if !f.CheckInArrayBounds(tickIndex, tickSpacing) || !CheckIsUsableTick(tickIndex, tickSpacing) {
		return errs.New(errs.TickNotFound, "tick %d not in array starting at %d", tickIndex, f.startTickIndex)
	}
	off, err := f.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return err
	}
	if off < 0 || off >= TickArraySize {
		return errs.New(errs.TickArrayIndexOutOfBounds, "offset %d out of bounds", off)
	}
	f.ticks[off].Apply(update)
	return nil
}

func (f *Fixed) GetNextInitTickIndex(tickIndex int32, tickSpacing uint16, aToB bool) (int32, bool, error) {
	if !f.InSearchRange(tickIndex, tickSpacing, !aToB) {
		return 0, false, errs.New(errs.InvalidTickArraySequence, "tick %d outside search range", tickIndex)
	}
	curr, err := f.TickOffset(tickIndex, tickSpacing)
	if err != nil {
		return 0, false, err
	}
	if !aToB {
		curr++
	}
	for curr >= 0 && curr < TickArraySize {
		if f.ticks[curr].Initialized {
			return curr*int32(tickSpacing) + f.startTickIndex, true, nil
		}
		if aToB {
			curr--
		} else {
			curr++
		}
	}
	return 0, false, nil
}
