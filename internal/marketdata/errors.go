package marketdata

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Callers branch on the class, never on message text.
type ErrorClass string

const (
	ErrClassRateLimit   ErrorClass = "rate_limit"
	ErrClassProvider    ErrorClass = "provider"
	ErrClassBadSymbol   ErrorClass = "bad_symbol"
	ErrClassUnavailable ErrorClass = "unavailable"
	ErrClassStale       ErrorClass = "stale"
)

type Error struct {
	Class   ErrorClass
	Symbol  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Class, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Class, e.Symbol, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newRateLimitError(symbol, msg string) *Error {
	return &Error{Class: ErrClassRateLimit, Symbol: symbol, Message: msg}
}

func newProviderError(symbol, msg string, err error) *Error {
	return &Error{Class: ErrClassProvider, Symbol: symbol, Message: msg, Err: err}
}

func newBadSymbolError(symbol, msg string) *Error {
	return &Error{Class: ErrClassBadSymbol, Symbol: symbol, Message: msg}
}

func newUnavailableError(symbol, msg string, err error) *Error {
	return &Error{Class: ErrClassUnavailable, Symbol: symbol, Message: msg, Err: err}
}

func newStaleError(symbol string, age time.Duration) *Error {
	return &Error{Class: ErrClassStale, Symbol: symbol,
		Message: fmt.Sprintf("data %s old", age.Round(time.Second))}
}

func classOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrClassProvider
}

// IsRateLimit reports whether the error is a rate limit or budget rejection.
func IsRateLimit(err error) bool { return classOf(err) == ErrClassRateLimit }

// IsUnavailable reports whether the symbol has no usable value right now.
func IsUnavailable(err error) bool {
	c := classOf(err)
	return c == ErrClassUnavailable || c == ErrClassStale
}

// IsBadSymbol reports whether the symbol itself was rejected.
func IsBadSymbol(err error) bool { return classOf(err) == ErrClassBadSymbol }
