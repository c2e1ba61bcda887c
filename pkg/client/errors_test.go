package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestResult_Retryable(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"success should not retry", Success(200, []byte(`{}`)), false},
		{"client error should not retry", UpstreamError(404, nil), false},
		{"server error should not retry", UpstreamError(503, nil), false},
		{"transport error should retry", TransportError("connection refused"), true},
		{"timeout should retry", Timeout(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Retryable(); got != tt.expected {
				t.Errorf("Retryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUpstreamFailure_Error(t *testing.T) {
	tests := []struct {
		name     string
		failure  *UpstreamFailure
		expected string
	}{
		{
			name:     "upstream error",
			failure:  &UpstreamFailure{Result: UpstreamError(503, []byte("down"))},
			expected: "PNCP upstream error (status 503)",
		},
		{
			name:     "timeout",
			failure:  &UpstreamFailure{Result: Timeout()},
			expected: "PNCP upstream timeout",
		},
		{
			name:     "transport error",
			failure:  &UpstreamFailure{Result: TransportError("connection refused")},
			expected: "PNCP transport error: connection refused",
		},
		{
			name: "transport error with wrapped error",
			failure: &UpstreamFailure{
				Result: TransportError(ReasonMalformedBody),
				Err:    ErrMalformedBody,
			},
			expected: "PNCP transport error: malformed body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.failure.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUpstreamFailure_Unwrap(t *testing.T) {
	failure := &UpstreamFailure{Result: TransportError(ReasonMalformedBody), Err: ErrMalformedBody}

	if !errors.Is(failure, ErrMalformedBody) {
		t.Error("errors.Is should work with wrapped error")
	}

	nilWrapped := &UpstreamFailure{Result: Timeout()}
	if nilWrapped.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", nilWrapped.Unwrap())
	}
}

func TestResult_Err(t *testing.T) {
	if err := Success(200, []byte(`{}`)).Err(); err != nil {
		t.Errorf("Success.Err() = %v, want nil", err)
	}

	err := fmt.Errorf("fetch: %w", UpstreamError(503, []byte(`{"message":"down"}`)).Err())
	result, ok := AsResult(err)
	if !ok {
		t.Fatal("AsResult should find the wrapped failure")
	}
	if result.Kind != KindUpstreamError || result.StatusCode != 503 {
		t.Errorf("AsResult() = %+v", result)
	}

	if _, ok := AsResult(errors.New("plain")); ok {
		t.Error("AsResult should not match a plain error")
	}
}

func TestResult_Err_MalformedBody(t *testing.T) {
	err := TransportError(ReasonMalformedBody).Err()
	if !errors.Is(err, ErrMalformedBody) {
		t.Errorf("errors.Is(%v, ErrMalformedBody) = false", err)
	}
	if err.Error() != "PNCP transport error: malformed body" {
		t.Errorf("Error() = %q", err.Error())
	}

	if errors.Is(TransportError("connection refused").Err(), ErrMalformedBody) {
		t.Error("only malformed bodies should wrap ErrMalformedBody")
	}
}
