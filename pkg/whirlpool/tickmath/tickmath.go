// Package tickmath implements the fixed-point price/tick conversions and
// amount-delta formulas that the swap engine and liquidity manager build on:
// sqrt_price_from_tick and its inverse, the token-amount-from-liquidity
// formulas, and the next-sqrt-price-from-input/output advance used inside a
// single swap step. All prices are Q64.64 (64 integer bits, 64 fractional
// bits) stored in a u128, matching sqrt(1.0001)^i.
package tickmath

import (
	"whirlsim/pkg/whirlpool/errs"
	"whirlsim/pkg/whirlpool/u256"

	cosmath "cosmossdk.io/math"
	"lukechampine.com/uint128"
)

const (
	MinTickIndex = -443636
	MaxTickIndex = 443636

	// U64Resolution is the number of fractional bits in a Q64.64 value.
	U64Resolution = 64
)

var (
	maxUint128Big, _ = cosmath.NewIntFromString("340282366920938463463374607431768211455")

	maxSqrtPriceX64, _ = cosmath.NewIntFromString("79226673515401279992447579055")
	minSqrtPriceX64, _ = cosmath.NewIntFromString("4295048016")

	logB2X32, _               = cosmath.NewIntFromString("59543866431248")
	logBPErrMarginLowerX64, _ = cosmath.NewIntFromString("184467440737095516")
	logBPErrMarginUpperX64, _ = cosmath.NewIntFromString("15793534762490258745")

	bitPrecision = 14
)

// bitFactor is one entry of the product-of-factors-keyed-by-set-bits table
// used by SqrtPriceFromTick. Each factor is the Q64.64 value of
// sqrt(1.0001)^(-2^k) for k=1..18 (k=0's base case is handled separately).
type bitFactor struct {
	mask   int32
	factor string
}

var bitFactors = []bitFactor{
	{0x2, "18444899583751176192"},
	{0x4, "18443055278223355904"},
	{0x8, "18439367220385607680"},
	{0x10, "18431993317065453568"},
	{0x20, "18417254355718170624"},
	{0x40, "18387811781193609216"},
	{0x80, "18329067761203558400"},
	{0x100, "18212142134806163456"},
	{0x200, "17980523815641700352"},
	{0x400, "17526086738831433728"},
	{0x800, "16651378430235570176"},
	{0x1000, "15030750278694412288"},
	{0x2000, "12247334978884435968"},
	{0x4000, "8131365268886854656"},
	{0x8000, "3584323654725218816"},
	{0x10000, "696457651848324352"},
	{0x20000, "26294789957507116"},
	{0x40000, "37481735321082"},
}

// MinSqrtPrice is the Q64.64 sqrt price corresponding to MinTickIndex.
func MinSqrtPrice() uint128.Uint128 { return mustUint128FromString("4295048016") }

// MaxSqrtPrice is the Q64.64 sqrt price corresponding to MaxTickIndex.
func MaxSqrtPrice() uint128.Uint128 { return mustUint128FromString("79226673515401279992447579055") }

// SqrtPriceFromTick maps an integer tick to a Q64.64 square-root price:
// sqrt(1.0001)^i, computed as a product of precomputed factors keyed by the
// set bits of |i|, then inverted (u128::MAX / ratio) if i is positive.
func SqrtPriceFromTick(tick int32) (uint128.Uint128, error) {
	if tick < MinTickIndex || tick > MaxTickIndex {
		return uint128.Zero, errs.New(errs.InvalidTickIndex, "tick %d out of bounds", tick)
	}

	tickAbs := tick
	if tick < 0 {
		tickAbs = -tick
	}

	var ratio uint128.Uint128
	if tickAbs&0x1 != 0 {
		ratio = mustUint128FromString("18445821805675395072")
	} else {
		ratio = mustUint128FromString("18446744073709551616")
	}

	for _, bf := range bitFactors {
		if tickAbs&bf.mask != 0 {
			mulBy := mustUint128FromString(bf.factor)
			ratio = mulRightShift64(ratio, mulBy)
		}
	}

	if tick > 0 {
		// reciprocal: u128::MAX / ratio, matching the pack's approximation
		// of the true 2^128/ratio reciprocal (close enough at this
		// precision; ratio never divides u128::MAX+1 exactly here anyway).
		maxU128 := uint128.Max
		ratio = maxU128.Div(ratio)
	}

	return ratio, nil
}

// mulRightShift64 computes floor(val*mulBy / 2^64) by routing the product
// through the 256-bit widening multiply and shifting right 64 bits.
func mulRightShift64(val, mulBy uint128.Uint128) uint128.Uint128 {
	prod := u256.MulU256(val, mulBy)
	shifted := prod.Rsh(64)
	out, _ := shifted.ToUint128()
	return out
}

func mustUint128FromString(s string) uint128.Uint128 {
	v, err := uint128.FromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// TickFromSqrtPrice is the floor of the inverse of SqrtPriceFromTick: the
// largest tick i such that sqrt_price_from_tick(i) <= p. Implemented via a
// base-2 logarithm binary search (MSB + iterative squaring for the
// fractional bits), matching the Whirlpool/Raydium family's derivation of
// tick from sqrt price, with arithmetic carried in cosmossdk.io/math's
// arbitrary-precision Int for the intermediate signed-shift bookkeeping.
func TickFromSqrtPrice(sqrtPrice uint128.Uint128) (int32, error) {
	p := cosmath.NewIntFromBigInt(sqrtPrice.Big())
	if p.GT(maxSqrtPriceX64) || p.LT(minSqrtPriceX64) {
		return 0, errs.New(errs.SqrtPriceOutOfBounds, "sqrt price %s out of bounds", p.String())
	}

	msb := p.BigInt().BitLen() - 1
	log2pIntegerX32 := cosmath.NewInt(int64(msb - 64)).Mul(cosmath.NewInt(1 << 32))

	var r cosmath.Int
	if msb >= 64 {
		r = p.Quo(cosmath.NewInt(1).Mul(cosmath.NewInt(2).Power(uint64(msb - 63))))
	} else {
		r = p.Mul(cosmath.NewInt(2).Power(uint64(63 - msb)))
	}

	bit := cosmath.NewIntFromUint64(0x8000000000000000)
	precision := 0
	log2pFractionX64 := cosmath.ZeroInt()

	two := cosmath.NewInt(2)
	for bit.GT(cosmath.ZeroInt()) && precision < bitPrecision {
		r = r.Mul(r)
		rMoreThanTwo := r.Quo(two.Power(127))
		shiftAmt := uint64(63 + rMoreThanTwo.Int64())
		r = r.Quo(two.Power(shiftAmt))
		log2pFractionX64 = log2pFractionX64.Add(bit.Mul(rMoreThanTwo))
		bit = bit.Quo(two)
		precision++
	}

	log2pFractionX32 := log2pFractionX64.Quo(two.Power(32))
	log2pX32 := log2pIntegerX32.Add(log2pFractionX32)
	logbpX64 := log2pX32.Mul(logB2X32)

	floorDiv64 := func(x cosmath.Int) cosmath.Int {
		d := two.Power(64)
		q := x.Quo(d)
		if x.IsNegative() && !q.Mul(d).Equal(x) {
			q = q.SubRaw(1)
		}
		return q
	}
	tickLow32 := floorDiv64(logbpX64.Sub(logBPErrMarginLowerX64))
	tickHigh32 := floorDiv64(logbpX64.Add(logBPErrMarginUpperX64))

	tickLow := int32(tickLow32.Int64())
	tickHigh := int32(tickHigh32.Int64())

	if tickLow == tickHigh {
		return tickLow, nil
	}

	derivedHigh, err := SqrtPriceFromTick(tickHigh)
	if err != nil {
		return 0, err
	}
	if cosmath.NewIntFromBigInt(derivedHigh.Big()).LTE(p) {
		return tickHigh, nil
	}
	return tickLow, nil
}

// AmountDeltaA computes the amount of token A backing liquidity L over the
// range [sqrtPriceA, sqrtPriceB] (order-independent): ceil_or_floor(L *
// (sqrtPb - sqrtPa) * 2^64 / (sqrtPa * sqrtPb)).
func AmountDeltaA(sqrtPriceA, sqrtPriceB uint128.Uint128, liquidity uint128.Uint128, roundUp bool) (uint64, error) {
	lo, hi := sqrtPriceA, sqrtPriceB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	if lo.IsZero() {
		return 0, errs.New(errs.SqrtPriceOutOfBounds, "sqrt price must be positive")
	}

	diff := hi.Sub(lo)
	numerator := u256.MulU256(liquidity, diff).Lsh(U64Resolution)
	denominator := u256.MulU256(lo, hi)

	q, r, err := numerator.DivRem(denominator)
	if err != nil {
		return 0, err
	}
	if roundUp && !r.IsZero() {
		q = q.Add(u256.FromU64(1))
	}
	res, err := q.ToUint128()
	if err != nil {
		return 0, err
	}
	return downcastU64(res)
}

// AmountDeltaB computes the amount of token B backing liquidity L over the
// range [sqrtPriceA, sqrtPriceB]: ceil_or_floor(L * (sqrtPb - sqrtPa) / 2^64).
func AmountDeltaB(sqrtPriceA, sqrtPriceB uint128.Uint128, liquidity uint128.Uint128, roundUp bool) (uint64, error) {
	lo, hi := sqrtPriceA, sqrtPriceB
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	diff := hi.Sub(lo)
	prod := u256.MulU256(liquidity, diff)
	if roundUp {
		res, err := ceilDivByU128(prod, uint128.From64(1).Lsh(U64Resolution))
		if err != nil {
			return 0, err
		}
		return downcastU64(res)
	}
	shifted := prod.Rsh(U64Resolution)
	res, err := shifted.ToUint128()
	if err != nil {
		return 0, err
	}
	return downcastU64(res)
}

func downcastU64(v uint128.Uint128) (uint64, error) {
	if v.Hi != 0 {
		return 0, errs.New(errs.NumberDownCastError, "amount exceeds u64")
	}
	return v.Lo, nil
}

func ceilDivByU128(num u256.Int, den uint128.Uint128) (uint128.Uint128, error) {
	q, r, err := num.DivRem(u256.FromUint128(den))
	if err != nil {
		return uint128.Zero, err
	}
	if !r.IsZero() {
		q = q.Add(u256.FromU64(1))
	}
	return q.ToUint128()
}

// NextSqrtPriceFromInput advances sqrt price by consuming an exact input
// amount of one token. a_to_b selects which token is the input: when true,
// input is token A and price decreases; otherwise input is token B and
// price increases.
func NextSqrtPriceFromInput(sqrtPrice uint128.Uint128, liquidity uint128.Uint128, amountIn uint64, aToB bool) (uint128.Uint128, error) {
	if sqrtPrice.IsZero() || liquidity.IsZero() {
		return uint128.Zero, errs.New(errs.NumericError, "sqrt price and liquidity must be positive")
	}
	if amountIn == 0 {
		return sqrtPrice, nil
	}
	if aToB {
		return nextSqrtPriceFromAmountARoundingUp(sqrtPrice, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmountBRoundingDown(sqrtPrice, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput advances sqrt price by producing an exact output
// amount of the other token.
func NextSqrtPriceFromOutput(sqrtPrice uint128.Uint128, liquidity uint128.Uint128, amountOut uint64, aToB bool) (uint128.Uint128, error) {
	if sqrtPrice.IsZero() || liquidity.IsZero() {
		return uint128.Zero, errs.New(errs.NumericError, "sqrt price and liquidity must be positive")
	}
	if aToB {
		return nextSqrtPriceFromAmountBRoundingDown(sqrtPrice, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmountARoundingUp(sqrtPrice, liquidity, amountOut, false)
}

func nextSqrtPriceFromAmountARoundingUp(sqrtPrice uint128.Uint128, liquidity uint128.Uint128, amount uint64, add bool) (uint128.Uint128, error) {
	if amount == 0 {
		return sqrtPrice, nil
	}
	numerator1 := u256.FromUint128(liquidity).Lsh(U64Resolution)

	if add {
		amountTimesPrice := u256.MulU256(uint128.From64(amount), sqrtPrice)
		denominator := numerator1.Add(amountTimesPrice)
		if denominator.Gte(numerator1) {
			denU128, err := denominator.ToUint128()
			if err == nil {
				return u256.MulDivCeil(liquidityLsh64ToU128(liquidity), sqrtPrice, denU128)
			}
			// denominator exceeds 128 bits: fall through to the two-step form.
		}
		num1U128, err := numerator1.ToUint128()
		if err != nil {
			return uint128.Zero, err
		}
		temp := num1U128.Div(sqrtPrice)
		temp = temp.Add64(amount)
		res, err := u256.MulDivCeil(num1U128, uint128.From64(1), temp)
		return res, err
	}

	amountTimesPrice := u256.MulU256(uint128.From64(amount), sqrtPrice)
	num1U128, err := numerator1.ToUint128()
	if err != nil {
		return uint128.Zero, err
	}
	amtU128, err := amountTimesPrice.ToUint128()
	if err != nil {
		return uint128.Zero, err
	}
	if num1U128.Cmp(amtU128) <= 0 {
		return uint128.Zero, errs.New(errs.NumericError, "liquidity insufficient for output amount")
	}
	denominator := num1U128.Sub(amtU128)
	return u256.MulDivCeil(num1U128, sqrtPrice, denominator)
}

func liquidityLsh64ToU128(liquidity uint128.Uint128) uint128.Uint128 {
	shifted := u256.FromUint128(liquidity).Lsh(U64Resolution)
	v, err := shifted.ToUint128()
	if err != nil {
		// caller guarantees liquidity stays within range where this fits;
		// this path should be unreachable on valid pool state.
		return uint128.Max
	}
	return v
}

func nextSqrtPriceFromAmountBRoundingDown(sqrtPrice uint128.Uint128, liquidity uint128.Uint128, amount uint64, add bool) (uint128.Uint128, error) {
	deltaY := u256.FromUint128(uint128.From64(amount)).Lsh(U64Resolution)
	if add {
		q, _, err := deltaY.DivRem(u256.FromUint128(liquidity))
		if err != nil {
			return uint128.Zero, err
		}
		qU128, err := q.ToUint128()
		if err != nil {
			return uint128.Zero, err
		}
		return sqrtPrice.Add(qU128), nil
	}
	amountDivLiquidity, err := ceilDivByU128(deltaY, liquidity)
	if err != nil {
		return uint128.Zero, err
	}
	if sqrtPrice.Cmp(amountDivLiquidity) <= 0 {
		return uint128.Zero, errs.New(errs.NumericError, "sqrt price must exceed amount/liquidity")
	}
	return sqrtPrice.Sub(amountDivLiquidity), nil
}
