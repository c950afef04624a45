package breaker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"401", &TransportError{StatusCode: 401}, KindAuthFailed},
		{"403", &TransportError{StatusCode: 403}, KindAuthFailed},
		{"404", &TransportError{StatusCode: 404}, KindDocumentNotFound},
		{"429", &TransportError{StatusCode: 429}, KindRateLimitExceeded},
		{"500", &TransportError{StatusCode: 500}, KindAPIUnavailable},
		{"503 wrapped", fmt.Errorf("index: %w", &TransportError{StatusCode: 503}), KindAPIUnavailable},
		{"400 falls through", &TransportError{StatusCode: 400, Code: "bad_request"}, KindProcessingFailed},
		{"conn refused code", &TransportError{Code: CodeConnRefused}, KindNetworkError},
		{"dns code", &TransportError{Code: CodeNotFound}, KindNetworkError},
		{"timeout flag", &TransportError{Timeout: true}, KindTimeout},
		{"invalid response", fmt.Errorf("decode: %w", ErrInvalidResponse), KindInvalidResponse},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"dns error", &net.DNSError{Err: "no such host", Name: "vendor.invalid"}, KindNetworkError},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("unreachable")}, KindNetworkError},
		{"syscall refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), KindNetworkError},
		{"unknown", errors.New("boom"), KindProcessingFailed},
		{"already classified", &Error{Kind: KindRateLimitExceeded}, KindRateLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestClassify_KeepsStatusCode(t *testing.T) {
	err := Classify(&TransportError{StatusCode: 503, Code: "overloaded"})
	assert.Equal(t, 503, err.StatusCode)
	assert.Contains(t, err.Error(), "API_UNAVAILABLE")
	assert.Contains(t, err.Error(), "status 503")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "overloaded", te.Code)
}

func TestKind_Permanent(t *testing.T) {
	permanent := []Kind{KindAuthFailed, KindInvalidResponse, KindDocumentNotFound}
	transient := []Kind{KindAPIUnavailable, KindRateLimitExceeded, KindProcessingFailed, KindTimeout, KindNetworkError}

	for _, k := range permanent {
		assert.True(t, k.Permanent(), k)
	}
	for _, k := range transient {
		assert.False(t, k.Permanent(), k)
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("search: %w", &Error{Kind: KindTimeout})
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(nil, KindTimeout))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
