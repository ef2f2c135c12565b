package advisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"options-trading-bot/internal/advisor/anthropic"
)

// FailureClass drives the retry policy. Every advisory failure lands in
// exactly one class.
type FailureClass string

const (
	// FailTransient covers timeouts, connection failures and 5xx responses.
	FailTransient FailureClass = "transient"
	// FailRateLimited covers 429 and overloaded responses.
	FailRateLimited FailureClass = "rate_limited"
	// FailSchema means the service answered but the payload did not satisfy
	// the expected schema. Retrying the same prompt rarely helps.
	FailSchema FailureClass = "schema_violation"
	// FailAuth covers credential, permission and request-construction
	// errors. Never retried; these propagate to the caller.
	FailAuth FailureClass = "auth"
	// FailBudget means the daily advisory query budget is spent.
	FailBudget FailureClass = "budget_exhausted"
)

type AdvisoryError struct {
	Class   FailureClass
	Message string
	Err     error
}

func (e *AdvisoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advisory %s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("advisory %s: %s", e.Class, e.Message)
}

func (e *AdvisoryError) Unwrap() error { return e.Err }

func newSchemaError(msg string, err error) *AdvisoryError {
	return &AdvisoryError{Class: FailSchema, Message: msg, Err: err}
}

func newBudgetError() *AdvisoryError {
	return &AdvisoryError{Class: FailBudget, Message: "daily advisory query budget exhausted"}
}

// ClassOf maps any error onto a failure class. API errors classify by
// status; unrecognized errors are treated as transient, the only safe
// default for a network boundary.
func ClassOf(err error) FailureClass {
	var ae *AdvisoryError
	if errors.As(err, &ae) {
		return ae.Class
	}
	switch status := anthropic.StatusOf(err); {
	case status == http.StatusTooManyRequests:
		return FailRateLimited
	case status >= 500:
		return FailTransient
	case status >= 400:
		return FailAuth
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return FailTransient
	}
	return FailTransient
}
