// Package apierr defines the typed error kinds used across the pipeline,
// matching the classification table in spec.md §7. Components return
// these (wrapped with errors.New/fmt.Errorf %w as needed) rather than ad
// hoc string errors, so callers can branch with errors.As/errors.Is.
package apierr

import "fmt"

// Kind is one of the named error kinds from the error-handling design.
// Values are stable strings so they are safe to log and compare.
type Kind string

const (
	KindInvalidTransition  Kind = "invalid_transition"
	KindAlreadyExists      Kind = "already_exists"
	KindTimeout            Kind = "timeout"
	KindRateLimited        Kind = "rate_limited"
	KindQuotaExhausted     Kind = "quota_exhausted"
	KindAuthFailed         Kind = "auth_failed"
	KindBadInput           Kind = "bad_input"
	KindTransient          Kind = "transient"
	KindPermanent          Kind = "permanent"
	KindEncryptionKeyMissing Kind = "encryption_key_missing"
	KindDecryptionFailed   Kind = "decryption_failed"
)

// Error is the module's single error type. Status is an optional HTTP
// status code (set by the board client).
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func NewHTTP(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apierr.New(apierr.KindTimeout, nil)) match any
// *Error with the same Kind, regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the error's policy is "leave ledger as-is
// and retry with backoff" per spec.md §4.6 step 6.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindQuotaExhausted, KindTransient:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
