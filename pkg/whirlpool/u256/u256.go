// Package u256 implements a 256-bit unsigned integer sufficient to make the
// 128x128 intermediate products used throughout the swap math exact. It is
// the sole widening-multiply primitive in this module: any multiplication of
// two Q64.64 (or wider) quantities that can exceed 128 bits routes through
// here rather than through a native overflow-prone multiply.
package u256

import (
	"math/bits"

	"whirlsim/pkg/whirlpool/errs"

	"lukechampine.com/uint128"
)

// Int is a 256-bit unsigned integer stored as four 64-bit limbs,
// little-endian (w[0] is the least-significant limb). All arithmetic is
// modular 2^256: overflow wraps rather than failing, matching the Rust
// U256Muldiv this is modeled on.
type Int struct {
	w [4]uint64
}

// Zero is the additive identity.
var Zero = Int{}

// FromUint128 widens a 128-bit value into the low two limbs.
func FromUint128(v uint128.Uint128) Int {
	return Int{w: [4]uint64{v.Lo, v.Hi, 0, 0}}
}

// FromU64 widens a single 64-bit value.
func FromU64(v uint64) Int {
	return Int{w: [4]uint64{v, 0, 0, 0}}
}

// MulU256 is the fundamental widening multiply: the exact 256-bit product of
// two 128-bit operands, computed as four 64x64 partial products combined
// with carry propagation via math/bits (schoolbook, bounded to the 256-bit
// horizon; there is no overflow to discard since 128x128 always fits in
// 256 bits).
func MulU256(a, b uint128.Uint128) Int {
	al, ah := a.Lo, a.Hi
	bl, bh := b.Lo, b.Hi

	// r = al*bl + (al*bh + ah*bl)<<64 + ah*bh<<128
	r0hi, r0 := bits.Mul64(al, bl)
	r1hi, r1 := bits.Mul64(al, bh)
	r2hi, r2 := bits.Mul64(ah, bl)
	r3hi, r3 := bits.Mul64(ah, bh)

	var out Int
	out.w[0] = r0

	mid, c1 := bits.Add64(r0hi, r1, 0)
	mid, c2 := bits.Add64(mid, r2, 0)
	out.w[1] = mid

	high, c3 := bits.Add64(r1hi, r2hi, c1)
	high, c4 := bits.Add64(high, r3, c2)
	out.w[2] = high

	top, _ := bits.Add64(r3hi, c3+c4, 0)
	out.w[3] = top

	return out
}

// Add returns a+b mod 2^256.
func (a Int) Add(b Int) Int {
	var r Int
	var carry uint64
	for i := 0; i < 4; i++ {
		r.w[i], carry = bits.Add64(a.w[i], b.w[i], carry)
	}
	return r
}

// Sub returns a-b mod 2^256.
func (a Int) Sub(b Int) Int {
	var r Int
	var borrow uint64
	for i := 0; i < 4; i++ {
		r.w[i], borrow = bits.Sub64(a.w[i], b.w[i], borrow)
	}
	return r
}

// IsZero reports whether the value is zero.
func (a Int) IsZero() bool {
	return a.w[0] == 0 && a.w[1] == 0 && a.w[2] == 0 && a.w[3] == 0
}

// Cmp returns -1, 0, or 1 comparing a to b.
func (a Int) Cmp(b Int) int {
	for i := 3; i >= 0; i-- {
		if a.w[i] < b.w[i] {
			return -1
		}
		if a.w[i] > b.w[i] {
			return 1
		}
	}
	return 0
}

func (a Int) Lt(b Int) bool  { return a.Cmp(b) < 0 }
func (a Int) Gt(b Int) bool  { return a.Cmp(b) > 0 }
func (a Int) Lte(b Int) bool { return a.Cmp(b) <= 0 }
func (a Int) Gte(b Int) bool { return a.Cmp(b) >= 0 }

// GetAddInverse returns the additive inverse of a modulo 2^256 (i.e.
// Zero.Sub(a)), the two's-complement-style negation.
func (a Int) GetAddInverse() Int {
	return Zero.Sub(a)
}

// numWords returns the number of non-zero limbs counting from the top.
func (a Int) numWords() int {
	for i := 3; i >= 0; i-- {
		if a.w[i] != 0 {
			return i + 1
		}
	}
	return 0
}

// ToUint128 downcasts to a 128-bit value, failing NumberDownCastError if the
// upper 128 bits are non-zero.
func (a Int) ToUint128() (uint128.Uint128, error) {
	if a.w[2] != 0 || a.w[3] != 0 {
		return uint128.Zero, errs.New(errs.NumberDownCastError, "u256 value exceeds 128 bits")
	}
	return uint128.New(a.w[0], a.w[1]), nil
}

// Lsh shifts left by n bits (0 <= n < 256), discarding bits shifted out past
// the top (modular semantics).
func (a Int) Lsh(n uint) Int {
	if n == 0 {
		return a
	}
	if n >= 256 {
		return Zero
	}
	wordShift := n / 64
	bitShift := n % 64
	var r Int
	for i := 3; i >= 0; i-- {
		srcIdx := i - int(wordShift)
		if srcIdx < 0 {
			continue
		}
		v := a.w[srcIdx] << bitShift
		if bitShift > 0 && srcIdx-1 >= 0 {
			v |= a.w[srcIdx-1] >> (64 - bitShift)
		}
		r.w[i] = v
	}
	return r
}

// Rsh shifts right by n bits (0 <= n < 256).
func (a Int) Rsh(n uint) Int {
	if n == 0 {
		return a
	}
	if n >= 256 {
		return Zero
	}
	wordShift := n / 64
	bitShift := n % 64
	var r Int
	for i := 0; i < 4; i++ {
		srcIdx := i + int(wordShift)
		if srcIdx > 3 {
			continue
		}
		v := a.w[srcIdx] >> bitShift
		if bitShift > 0 && srcIdx+1 <= 3 {
			v |= a.w[srcIdx+1] << (64 - bitShift)
		}
		r.w[i] = v
	}
	return r
}

// DivRem divides a by b, returning quotient and remainder. Fails with
// NumericError on division by zero.
//
// Special cases short-circuit per the documented contract: zero dividend,
// dividend smaller than the divisor, a single-word divisor, and the case
// where both operands fit in 128 bits (delegated to native uint128
// division). The remaining general multi-word-divisor case uses a binary
// shift-and-subtract long division rather than a literal port of Knuth
// Algorithm D's qhat/rhat candidate-correction loop: it is asymptotically
// slower (one iteration per bit instead of per word) but far easier to
// verify by inspection, which matters more here than raw division speed.
func (a Int) DivRem(b Int) (q, r Int, err error) {
	if b.IsZero() {
		return Zero, Zero, errs.New(errs.NumericError, "division by zero")
	}
	if a.IsZero() {
		return Zero, Zero, nil
	}
	if a.Lt(b) {
		return Zero, a, nil
	}
	if b.numWords() <= 2 && a.numWords() <= 2 {
		au, _ := a.ToUint128()
		bu, _ := b.ToUint128()
		qu := au.Div(bu)
		ru := au.Mod(bu)
		return FromUint128(qu), FromUint128(ru), nil
	}
	if b.numWords() == 1 {
		return a.divRemSingleWord(b.w[0])
	}
	return a.divRemBinary(b)
}

// divRemSingleWord divides by a divisor that fits in one 64-bit limb using a
// simple top-down long division over limbs, each step a 128-by-64 divide via
// bits.Div64.
func (a Int) divRemSingleWord(d uint64) (q, r Int, err error) {
	var quotient Int
	var rem uint64
	for i := 3; i >= 0; i-- {
		quotient.w[i], rem = bits.Div64(rem, a.w[i], d)
	}
	return quotient, FromU64(rem), nil
}

// divRemBinary performs schoolbook binary long division (shift-and-subtract,
// one bit per iteration) for the general multi-word-divisor case.
func (a Int) divRemBinary(b Int) (q, r Int, err error) {
	var quotient Int
	var remainder Int
	for i := 255; i >= 0; i-- {
		remainder = remainder.Lsh(1)
		if a.bit(uint(i)) {
			remainder.w[0] |= 1
		}
		if remainder.Gte(b) {
			remainder = remainder.Sub(b)
			quotient = quotient.setBit(uint(i))
		}
	}
	return quotient, remainder, nil
}

func (a Int) bit(i uint) bool {
	word := i / 64
	off := i % 64
	return a.w[word]&(1<<off) != 0
}

func (a Int) setBit(i uint) Int {
	word := i / 64
	off := i % 64
	a.w[word] |= 1 << off
	return a
}

// MulDivFloor computes floor(a*b/denom) for 128-bit a, b, denom, routing the
// intermediate product through Int so it never overflows 128 bits. Fails
// NumericError if denom is zero, NumberDownCastError if the quotient does
// not fit back into 128 bits.
func MulDivFloor(a, b, denom uint128.Uint128) (uint128.Uint128, error) {
	prod := MulU256(a, b)
	q, _, err := prod.DivRem(FromUint128(denom))
	if err != nil {
		return uint128.Zero, err
	}
	return q.ToUint128()
}

// MulDivCeil computes ceil(a*b/denom).
func MulDivCeil(a, b, denom uint128.Uint128) (uint128.Uint128, error) {
	prod := MulU256(a, b)
	q, r, err := prod.DivRem(FromUint128(denom))
	if err != nil {
		return uint128.Zero, err
	}
	if !r.IsZero() {
		q = q.Add(FromU64(1))
	}
	return q.ToUint128()
}
