// Package errs defines the stable error taxonomy used across the whirlpool
// engine. Every fallible operation in pkg/whirlpool returns a *Error wrapping
// one of the Code constants below so that a host can map failures back onto
// a stable ABI without parsing message strings.
package errs

import "fmt"

// Code is a stable, ABI-facing error identifier.
type Code string

const (
	InvalidTickIndex                Code = "InvalidTickIndex"
	InvalidStartTick                Code = "InvalidStartTick"
	InvalidTickSpacing               Code = "InvalidTickSpacing"
	TickNotFound                    Code = "TickNotFound"
	TickArrayIndexOutOfBounds       Code = "TickArrayIndexOutOfBounds"
	TickArraySequenceInvalidIndex   Code = "TickArraySequenceInvalidIndex"
	InvalidTickArraySequence        Code = "InvalidTickArraySequence"
	DifferentWhirlpoolTickArrayAccount Code = "DifferentWhirlpoolTickArrayAccount"
	LiquidityZero                   Code = "LiquidityZero"
	LiquidityTooHigh                Code = "LiquidityTooHigh"
	LiquidityOverflow               Code = "LiquidityOverflow"
	LiquidityUnderflow              Code = "LiquidityUnderflow"
	LiquidityNetError                Code = "LiquidityNetError"
	TokenMaxExceeded                Code = "TokenMaxExceeded"
	TokenMinSubceeded               Code = "TokenMinSubceeded"
	AmountOutBelowMinimum           Code = "AmountOutBelowMinimum"
	AmountInAboveMaximum            Code = "AmountInAboveMaximum"
	ZeroTradableAmount              Code = "ZeroTradableAmount"
	SqrtPriceOutOfBounds            Code = "SqrtPriceOutOfBounds"
	InvalidSqrtPriceLimitDirection  Code = "InvalidSqrtPriceLimitDirection"
	PartialFillError                Code = "PartialFillError"
	FeeRateMaxExceeded               Code = "FeeRateMaxExceeded"
	ProtocolFeeRateMaxExceeded       Code = "ProtocolFeeRateMaxExceeded"
	InvalidRewardIndex               Code = "InvalidRewardIndex"
	RewardVaultAmountInsufficient   Code = "RewardVaultAmountInsufficient"
	InvalidTimestamp                 Code = "InvalidTimestamp"
	MultiplicationOverflow           Code = "MultiplicationOverflow"
	NumberDownCastError              Code = "NumberDownCastError"
	InvalidAdaptiveFeeConstants      Code = "InvalidAdaptiveFeeConstants"
	NumericError                     Code = "NumericError"
	InvalidTokenMintOrder            Code = "InvalidTokenMintOrder"
	ClosePositionNotEmpty            Code = "ClosePositionNotEmpty"
	InvalidIntermediaryMint          Code = "InvalidIntermediaryMint"
	DuplicateTwoHopPool              Code = "DuplicateTwoHopPool"
)

// Error is the concrete error type returned by the engine. It wraps an
// underlying cause (if any) while preserving the stable Code for ABI
// translation at the host boundary.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, errs.New(Code)) style checks against the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds a bare error for the given code.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Sentinel builds a zero-context error carrying only the code, used for
// errors.Is-style comparisons: errors.Is(err, errs.Sentinel(errs.TickNotFound)).
func Sentinel(code Code) *Error {
	return &Error{Code: code}
}
