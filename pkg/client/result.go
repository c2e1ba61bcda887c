package client

import (
	"encoding/json"
	"fmt"
)

// ResultKind classifies a completed upstream attempt.
type ResultKind string

const (
	// KindSuccess is a 2xx response with a valid JSON body.
	KindSuccess ResultKind = "success"

	// KindUpstreamError is a non-2xx response. Status and body are preserved.
	KindUpstreamError ResultKind = "upstream_error"

	// KindTransportError is a network failure or an unusable 2xx body.
	KindTransportError ResultKind = "transport_error"

	// KindTimeout is an attempt that exceeded its deadline.
	KindTimeout ResultKind = "timeout"
)

// Result is the outcome of exactly one upstream attempt. Kind selects which
// of the other fields are meaningful.
type Result struct {
	Kind ResultKind

	// Body is the JSON payload for KindSuccess and the raw response body
	// (not necessarily JSON) for KindUpstreamError.
	Body []byte

	// StatusCode is set for KindSuccess and KindUpstreamError.
	StatusCode int

	// Reason describes a KindTransportError.
	Reason string
}

// Success builds a KindSuccess result.
func Success(status int, body json.RawMessage) Result {
	return Result{Kind: KindSuccess, StatusCode: status, Body: body}
}

// UpstreamError builds a KindUpstreamError result.
func UpstreamError(status int, body []byte) Result {
	return Result{Kind: KindUpstreamError, StatusCode: status, Body: body}
}

// TransportError builds a KindTransportError result.
func TransportError(reason string) Result {
	return Result{Kind: KindTransportError, Reason: reason}
}

// Timeout builds a KindTimeout result.
func Timeout() Result {
	return Result{Kind: KindTimeout}
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

// Retryable reports whether the attempt may be repeated. Only timeouts and
// transport errors qualify; any upstream answer, 4xx or 5xx, is final.
func (r Result) Retryable() bool {
	return r.Kind == KindTimeout || r.Kind == KindTransportError
}

// Err returns nil for a success and an *UpstreamFailure otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	failure := &UpstreamFailure{Result: r}
	if r.Kind == KindTransportError && r.Reason == ReasonMalformedBody {
		failure.Err = ErrMalformedBody
	}
	return failure
}

// String renders the result for logs.
func (r Result) String() string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("success (status %d, %d bytes)", r.StatusCode, len(r.Body))
	case KindUpstreamError:
		return fmt.Sprintf("upstream error (status %d)", r.StatusCode)
	case KindTransportError:
		return fmt.Sprintf("transport error: %s", r.Reason)
	case KindTimeout:
		return "timeout"
	default:
		return string(r.Kind)
	}
}
