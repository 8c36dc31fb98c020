package claimerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindNoActiveCertificate, "facility %d", 2)

	assert.ErrorIs(t, err, ErrNoActiveCertificate)
	assert.NotErrorIs(t, err, ErrAmbiguousCertificate)

	wrapped := fmt.Errorf("sign: %w", err)
	assert.ErrorIs(t, wrapped, ErrNoActiveCertificate)
	assert.Equal(t, KindNoActiveCertificate, KindOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindTransientSubmission, cause, "attempt %d", 1)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransientSubmission)
	assert.Equal(t, "TransientSubmissionError: attempt 1: dial tcp: refused", err.Error())
}

func TestNestedKindsBothMatch(t *testing.T) {
	low := New(KindLowConfidenceMapping, "best candidate 0.41")
	err := Wrap(KindMappingNotFound, low, "LAB-X")

	assert.ErrorIs(t, err, ErrMappingNotFound)
	assert.ErrorIs(t, err, ErrLowConfidenceMapping)
	assert.Equal(t, KindMappingNotFound, KindOf(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrMappingNotFound, http.StatusNotFound},
		{ErrUnknownServiceCode, http.StatusNotFound},
		{ErrInvalidFacility, http.StatusNotFound},
		{ErrNoActiveCertificate, http.StatusNotFound},
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidPayload, http.StatusBadRequest},
		{ErrExpiredCertificate, http.StatusBadRequest},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{ErrAmbiguousCertificate, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(KindOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.True(t, IsRetryable(ErrTransientSubmission))
	assert.False(t, IsRetryable(ErrPermanentSubmission))
	assert.False(t, IsRetryable(errors.New("plain")))
}
