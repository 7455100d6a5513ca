// Package trading defines the error taxonomy shared by the settlement
// path and its callers. Every fatal condition carries a structured code
// the gateway can surface to API clients.
package trading

import (
	"errors"
	"fmt"
)

// Code identifies an error class on the trading path.
type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance Code = "INSUFFICIENT_ALLOWANCE"
	CodeTokenNotFound         Code = "TOKEN_NOT_FOUND"
	CodeTokenNotRegistered    Code = "TOKEN_NOT_REGISTERED"
	CodeOnchainUnavailable    Code = "ONCHAIN_UNAVAILABLE"
	CodeWalletKeyMismatch     Code = "WALLET_KEY_MISMATCH"
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"
	CodeSlippageExceeded      Code = "SLIPPAGE_EXCEEDED"
	CodeTradingPaused         Code = "TRADING_PAUSED"
	CodeDuplicateSubmission   Code = "DUPLICATE_SUBMISSION"
	CodeTransactionReverted   Code = "TRANSACTION_REVERTED"
	CodeInternal              Code = "INTERNAL_ERROR"
)

// Error is a trading-path error with a structured code. Message is safe
// to surface to callers; Err holds the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a trading error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a trading error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a trading error around an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the trading code from err, or CodeInternal if err is
// not a trading error.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given trading code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
