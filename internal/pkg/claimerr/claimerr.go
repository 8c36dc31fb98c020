// Package claimerr holds the typed failures the claim pipeline reports to its
// callers. Every error carries a Kind so HTTP handlers and the workflow caller
// can tell retryable-by-caller conditions from terminal business rejections.
package claimerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names a failure class. The string form is what the HTTP surface
// returns in the "error" field.
type Kind string

const (
	KindMappingNotFound      Kind = "MappingNotFoundError"
	KindLowConfidenceMapping Kind = "LowConfidenceMappingError"
	KindUnknownServiceCode   Kind = "UnknownServiceCodeError"
	KindInvalidFacility      Kind = "InvalidFacilityError"
	KindNoActiveCertificate  Kind = "NoActiveCertificateError"
	KindAmbiguousCertificate Kind = "AmbiguousCertificateError"
	KindExpiredCertificate   Kind = "ExpiredCertificateError"
	KindTransientSubmission  Kind = "TransientSubmissionError"
	KindPermanentSubmission  Kind = "PermanentSubmissionError"
	KindServiceUnavailable   Kind = "ServiceUnavailableError"
	KindNotFound             Kind = "NotFoundError"
	KindInvalidPayload       Kind = "InvalidPayloadError"
	KindInternal             Kind = "InternalError"
)

// Error is the concrete pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrMappingNotFound      = &Error{Kind: KindMappingNotFound}
	ErrLowConfidenceMapping = &Error{Kind: KindLowConfidenceMapping}
	ErrUnknownServiceCode   = &Error{Kind: KindUnknownServiceCode}
	ErrInvalidFacility      = &Error{Kind: KindInvalidFacility}
	ErrNoActiveCertificate  = &Error{Kind: KindNoActiveCertificate}
	ErrAmbiguousCertificate = &Error{Kind: KindAmbiguousCertificate}
	ErrExpiredCertificate   = &Error{Kind: KindExpiredCertificate}
	ErrTransientSubmission  = &Error{Kind: KindTransientSubmission}
	ErrPermanentSubmission  = &Error{Kind: KindPermanentSubmission}
	ErrServiceUnavailable   = &Error{Kind: KindServiceUnavailable}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidPayload       = &Error{Kind: KindInvalidPayload}
)

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientSubmission, KindServiceUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps a failure to the status code used across all endpoints.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMappingNotFound, KindLowConfidenceMapping, KindUnknownServiceCode,
		KindInvalidFacility, KindNoActiveCertificate, KindNotFound:
		return http.StatusNotFound
	case KindInvalidPayload, KindExpiredCertificate, KindPermanentSubmission:
		return http.StatusBadRequest
	case KindServiceUnavailable, KindTransientSubmission:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
