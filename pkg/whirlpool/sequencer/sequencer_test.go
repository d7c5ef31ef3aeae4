package sequencer

import (
	"testing"

	"github.com/gagliardetto/solana-go"

	"whirlsim/pkg/whirlpool/tickarray"
)

func TestExpectedStartTickIndexes(t *testing.T) {
	cases := []struct {
		name       string
		aToB       bool
		tickSpacing uint16
		tickIndex  int32
		want       []int32
	}{
		{"a_to_b", true, 1, 0, []int32{0, -88, -176}},
		{"a_to_b_not_shifted", true, 1, -1, []int32{-88, -176, -264}},
		{"a_to_b_only_2_ta", true, 1, -443608, []int32{-443608, -443696}},
		{"a_to_b_only_1_ta", true, 1, -443635, []int32{-443696}},
		{"b_to_a_not_shifted", false, 1, 86, []int32{0, 88, 176}},
		{"b_to_a_shifted", false, 1, 87, []int32{88, 176, 264}},
		{"b_to_a_only_2_ta", false, 1, 443600, []int32{443520, 443608}},
		{"b_to_a_only_1_ta", false, 1, 443608, []int32{443608}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ExpectedStartTickIndexes(c.tickIndex, c.tickSpacing, c.aToB)
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestBuildSequence_AdmitsUninitializedAsSyntheticEmpty(t *testing.T) {
	whirlpool := solana.PublicKey{1}
	candidates := []Candidate{
		{StartTickIndex: 0, Store: tickarray.NewFixed(whirlpool, 0)},
		{StartTickIndex: -88, Store: nil}, // account exists, never initialized
		{StartTickIndex: -176, Store: tickarray.NewFixed(whirlpool, -176)},
	}

	seq, err := BuildSequence(whirlpool, 0, 1, true, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if seq.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", seq.Len())
	}

	// the synthetic array at -88 has no initialized ticks, so a search
	// starting there finds nothing and GetNextInitializedTickIndex must
	// fall through to array 2.
	idx, found, err := seq.arrays[1].GetNextInitTickIndex(-89, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected no initialized tick in synthetic array, found %d", idx)
	}
}

func TestBuildSequence_FailsWithNoMatchingCandidate(t *testing.T) {
	whirlpool := solana.PublicKey{1}
	_, err := BuildSequence(whirlpool, 0, 1, true, []Candidate{
		{StartTickIndex: 5000, Store: tickarray.NewFixed(whirlpool, 5000)},
	})
	if err == nil {
		t.Fatal("expected InvalidTickArraySequence")
	}
}

func TestGetNextInitializedTickIndex_FallsThroughToMinTick(t *testing.T) {
	whirlpool := solana.PublicKey{1}
	only := tickarray.NewFixed(whirlpool, -443696)
	seq, err := New(only)
	if err != nil {
		t.Fatal(err)
	}
	arrIdx, tick, err := seq.GetNextInitializedTickIndex(-443636, 1, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if arrIdx != 0 || tick != tickarray.MinTickIndex {
		t.Fatalf("got (%d, %d), want (0, %d)", arrIdx, tick, tickarray.MinTickIndex)
	}
}
