// Package sequencer implements the swap engine's view of a bounded run of
// tick-array accounts: a Sequence composing up to three Store values in
// swap-direction order (mirroring util/swap_tick_sequence.rs's
// SwapTickSequence), plus the sparse-candidate builder that derives the
// three expected start_tick_indexes for a swap and admits an
// uninitialized-but-PDA-matching account as a synthetic empty array
// (mirroring the pinocchio port's SparseSwapTickSequenceBuilder).
package sequencer

import (
	"github.com/gagliardetto/solana-go"

	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/tickarray"
)

// maxTraversableTickArrays is the number of arrays a single swap can walk:
// the fixed three the host always supplies.
const maxTraversableTickArrays = 3

// Sequence is a bounded, ordered run of tick-array stores a single swap
// walks across.
type Sequence struct {
	arrays []tickarray.Store
}

// New builds a sequence directly from already-resolved stores in
// swap-direction order. Nil entries (an omitted second or third array) are
// dropped; used by callers that already know their arrays are in order
// (e.g. tests, or a caller bypassing the sparse candidate builder).
func New(arrays ...tickarray.Store) (*Sequence, error) {
	var out []tickarray.Store
	for _, a := range arrays {
		if a != nil {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, errs.New(errs.InvalidTickArraySequence, "no tick arrays supplied")
	}
	return &Sequence{arrays: out}, nil
}

// Len reports how many arrays are in the sequence.
func (s *Sequence) Len() int { return len(s.arrays) }

// GetTick mirrors SwapTickSequence::get_tick.
func (s *Sequence) GetTick(arrayIndex int, tickIndex int32, tickSpacing uint16) (tickarray.Tick, error) {
	if arrayIndex < 0 || arrayIndex >= len(s.arrays) {
		return tickarray.Tick{}, errs.New(errs.TickArrayIndexOutOfBounds, "array index %d out of bounds", arrayIndex)
	}
	return s.arrays[arrayIndex].GetTick(tickIndex, tickSpacing)
}

// UpdateTick mirrors SwapTickSequence::update_tick.
func (s *Sequence) UpdateTick(arrayIndex int, tickIndex int32, tickSpacing uint16, update tickarray.TickUpdate) error {
	if arrayIndex < 0 || arrayIndex >= len(s.arrays) {
		return errs.New(errs.TickArrayIndexOutOfBounds, "array index %d out of bounds", arrayIndex)
	}
	return s.arrays[arrayIndex].UpdateTick(tickIndex, tickSpacing, update)
}

// GetNextInitializedTickIndex mirrors SwapTickSequence::get_next_initialized_tick_index:
// walks forward through the sequence's remaining arrays, starting the
// search at tickIndex in array startArrayIndex, until an initialized tick
// is found, the known tick universe's edge is reached (clamped to
// MIN/MAX_TICK_INDEX), or the last array in the sequence is exhausted (in
// which case that array's own boundary tick is returned so the swap loop
// can detect it has run out of supplied tick arrays).
func (s *Sequence) GetNextInitializedTickIndex(tickIndex int32, tickSpacing uint16, aToB bool, startArrayIndex int) (int, int32, error) {
	ticksInArray := int32(tickarray.TickArraySize) * int32(tickSpacing)
	searchIndex := tickIndex
	arrayIndex := startArrayIndex

	for {
		if arrayIndex < 0 || arrayIndex >= len(s.arrays) {
			return 0, 0, errs.New(errs.TickArraySequenceInvalidIndex, "array index %d out of sequence", arrayIndex)
		}
		nextArray := s.arrays[arrayIndex]

		nextIndex, found, err := nextArray.GetNextInitTickIndex(searchIndex, tickSpacing, aToB)
		if err != nil {
			return 0, 0, err
		}
		if found {
			return arrayIndex, nextIndex, nil
		}

		if aToB && nextArray.IsMinTickArray() {
			return arrayIndex, tickarray.MinTickIndex, nil
		}
		if !aToB && nextArray.IsMaxTickArray(tickSpacing) {
			return arrayIndex, tickarray.MaxTickIndex, nil
		}

		if arrayIndex+1 == len(s.arrays) {
			if aToB {
				return arrayIndex, nextArray.StartTickIndex(), nil
			}
			return arrayIndex, nextArray.StartTickIndex() + ticksInArray - 1, nil
		}

		if aToB {
			searchIndex = nextArray.StartTickIndex() - 1
		} else {
			searchIndex = nextArray.StartTickIndex() + ticksInArray - 1
		}
		arrayIndex++
	}
}

// Candidate is a tick-array account the host found while deriving the PDAs
// for a swap. Store is nil when the account exists (its PDA matches an
// expected start_tick_index) but holds no initialized tick-array data yet.
type Candidate struct {
	StartTickIndex int32
	Store          tickarray.Store
}

// floorDivInt32 is Euclidean floor division: Go's native / truncates toward
// zero, which is wrong for negative tick indexes.
func floorDivInt32(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ExpectedStartTickIndexes mirrors get_start_tick_indexes: the three
// start_tick_index values a swap beginning at tickCurrentIndex in
// direction aToB would draw its tick arrays from. For b_to_a, the window
// shifts one array forward when the current tick sits within one
// tick_spacing of the top of its array's range (the "shifted" case), so the
// search isn't immediately starved at the array boundary.
func ExpectedStartTickIndexes(tickCurrentIndex int32, tickSpacing uint16, aToB bool) []int32 {
	ticksInArray := int32(tickarray.TickArraySize) * int32(tickSpacing)
	base := floorDivInt32(tickCurrentIndex, ticksInArray) * ticksInArray

	var offsets [3]int32
	if aToB {
		offsets = [3]int32{0, -1, -2}
	} else {
		shifted := tickCurrentIndex+int32(tickSpacing) >= base+ticksInArray
		if shifted {
			offsets = [3]int32{1, 2, 3}
		} else {
			offsets = [3]int32{0, 1, 2}
		}
	}

	out := make([]int32, 0, maxTraversableTickArrays)
	for _, o := range offsets {
		start := base + o*ticksInArray
		if tickarray.CheckIsValidStartTick(start, tickSpacing) {
			out = append(out, start)
		}
	}
	return out
}

// BuildSequence mirrors SparseSwapTickSequenceBuilder::try_build: dedupes
// candidates by start_tick_index (their PDA's unique key), then walks the
// expected start_tick_indexes for this swap direction in order, consuming a
// matching candidate at each step. A candidate whose Store is nil (the
// account exists but was never initialized) is admitted as a synthetic,
// all-uninitialized Fixed array rooted at that start -- sparse regions can
// be swapped through without ever having been written to. The walk stops at
// the first expected start with no matching candidate at all; if nothing
// was found, the swap has no valid tick-array sequence to begin from.
func BuildSequence(whirlpool solana.PublicKey, tickCurrentIndex int32, tickSpacing uint16, aToB bool, candidates []Candidate) (*Sequence, error) {
	byStart := make(map[int32]Candidate, len(candidates))
	for _, c := range candidates {
		byStart[c.StartTickIndex] = c
	}

	expected := ExpectedStartTickIndexes(tickCurrentIndex, tickSpacing, aToB)

	var arrays []tickarray.Store
	for _, want := range expected {
		c, ok := byStart[want]
		if !ok {
			break
		}
		if c.Store != nil {
			arrays = append(arrays, c.Store)
		} else {
			arrays = append(arrays, tickarray.NewFixed(whirlpool, want))
		}
	}

	if len(arrays) == 0 {
		return nil, errs.New(errs.InvalidTickArraySequence, "no tick array found for swap starting at tick %d", tickCurrentIndex)
	}
	return &Sequence{arrays: arrays}, nil
}
