package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMalformedBody marks a 2xx response whose body is unusable. Failures
	// with ReasonMalformedBody wrap it.
	ErrMalformedBody = errors.New("malformed body")

	// ErrBodyTooLarge marks a response body above the configured limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ReasonMalformedBody is the transport error reason for 2xx bodies that are
// not valid JSON or not shaped as expected.
const ReasonMalformedBody = "malformed body"

// UpstreamFailure carries a non-success Result through error returns.
type UpstreamFailure struct {
	Result Result
	Err    error
}

// Error implements the error interface.
func (e *UpstreamFailure) Error() string {
	switch e.Result.Kind {
	case KindUpstreamError:
		return fmt.Sprintf("PNCP upstream error (status %d)", e.Result.StatusCode)
	case KindTimeout:
		return "PNCP upstream timeout"
	case KindTransportError:
		if e.Err != nil {
			return fmt.Sprintf("PNCP transport error: %v", e.Err)
		}
		return fmt.Sprintf("PNCP transport error: %s", e.Result.Reason)
	default:
		return fmt.Sprintf("PNCP %s", e.Result.Kind)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamFailure) Unwrap() error {
	return e.Err
}

// AsResult extracts the failed Result from err, if it carries one.
func AsResult(err error) (Result, bool) {
	var failure *UpstreamFailure
	if errors.As(err, &failure) {
		return failure.Result, true
	}
	return Result{}, false
}
