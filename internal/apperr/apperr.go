// Package apperr defines the closed set of error kinds used throughout
// voicereceptiond to classify failures for logging, metrics, and HTTP/webhook
// responses.
//
// Every error that crosses a component boundary should be (or wrap) an
// [Error] so that callers can branch on [Error.Kind] instead of matching on
// error strings. Use [Wrap] to attach a kind to an underlying error, and
// [errors.As] to recover it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for metrics and response-mapping purposes.
type Kind string

const (
	// KindUnknownTenant indicates a tenant ID or phone number did not resolve
	// to a registered tenant.
	KindUnknownTenant Kind = "unknown_tenant"

	// KindTenantSuspended indicates the tenant exists but is not in an active
	// status.
	KindTenantSuspended Kind = "tenant_suspended"

	// KindSignatureInvalid indicates a webhook request failed HMAC
	// signature verification.
	KindSignatureInvalid Kind = "signature_invalid"

	// KindDuplicateWebhook indicates a webhook delivery was already
	// processed (idempotency key collision).
	KindDuplicateWebhook Kind = "duplicate_webhook"

	// KindAdmissionRejected indicates the coordinator refused to admit a new
	// call because the tenant's concurrency limit was reached.
	KindAdmissionRejected Kind = "admission_rejected"

	// KindAuthExpired indicates a calendar OAuth token could not be
	// refreshed and the tenant must re-authorize.
	KindAuthExpired Kind = "auth_expired"

	// KindPermissionDenied indicates a privileged operation was attempted
	// without the required credential.
	KindPermissionDenied Kind = "permission_denied"

	// KindUpstreamError indicates a downstream provider (calendar, STT, LLM,
	// TTS) returned an error after retries were exhausted.
	KindUpstreamError Kind = "upstream_error"

	// KindInvalidArgument indicates caller-supplied input (tool arguments,
	// booking fields) failed validation.
	KindInvalidArgument Kind = "invalid_argument"

	// KindLLMTransient indicates an LLM call failed in a way that is safe to
	// retry (rate limit, timeout, 5xx).
	KindLLMTransient Kind = "llm_transient"

	// KindInternal indicates an unexpected internal failure with no more
	// specific classification.
	KindInternal Kind = "internal"
)

// Error is a classified application error. It wraps an underlying cause and
// exposes a stable [Kind] for programmatic handling.
type Error struct {
	kind string
	msg  string
	err  error
}

// New creates an [Error] of the given kind with a formatted message and no
// wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: string(kind), msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to err, producing an [Error] that satisfies
// errors.Is/errors.As against both the new Error and the original err via
// Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: string(kind), msg: fmt.Sprintf(format, args...), err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any, enabling errors.Is/errors.As to
// see through to it.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return Kind(e.kind)
}

// KindOf extracts the [Kind] of err if it is (or wraps) an [*Error].
// Returns [KindInternal] if err does not carry a classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return KindInternal
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
