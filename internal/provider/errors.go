package provider

import (
	"errors"
	"fmt"
)

// Error kinds the orchestrator switches on to decide retry, skip, or
// abort behavior for a single product fetch.
var (
	// ErrTransient covers network errors, 5xx responses, and timeouts —
	// safe to retry with backoff.
	ErrTransient = errors.New("provider: transient error")
	// ErrMalformed covers a response that parses but fails basic shape
	// checks (missing required fields, wrong types).
	ErrMalformed = errors.New("provider: malformed response")
	// ErrIntegrity covers a response that parses but whose envelope
	// reports an error. Decoded products are not checked against domain
	// invariants such as a non-negative price or a non-empty ASIN.
	ErrIntegrity = errors.New("provider: integrity violation")
	// ErrBudgetExceeded is returned when the local budget.Tracker
	// refuses the call before it is even attempted.
	ErrBudgetExceeded = errors.New("provider: budget exceeded")
	// ErrFatal covers auth failures and other errors that should abort
	// the run rather than being retried or skipped.
	ErrFatal = errors.New("provider: fatal error")
)

// FetchError wraps a per-product failure with its classification.
type FetchError struct {
	ProductID string
	Kind      error
	Cause     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v: %v", e.ProductID, e.Kind, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Kind }

func newFetchError(productID string, kind, cause error) *FetchError {
	return &FetchError{ProductID: productID, Kind: kind, Cause: cause}
}
