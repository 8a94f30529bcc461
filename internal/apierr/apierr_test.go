package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageWithCause(t *testing.T) {
	e := New(KindTimeout, errors.New("context deadline exceeded"))
	want := "timeout: context deadline exceeded"
	if got := e.Error(); got != want {
		t.Fatalf("Error(): want=%q got=%q", want, got)
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	e := New(KindBadInput, nil)
	if got := e.Error(); got != "bad_input" {
		t.Fatalf("Error(): want=%q got=%q", "bad_input", got)
	}
}

func TestErrorNilReceiver(t *testing.T) {
	var e *Error
	if got := e.Error(); got != "" {
		t.Fatalf("Error() on nil receiver: want=%q got=%q", "", got)
	}
	if e.Retryable() {
		t.Fatalf("Retryable() on nil receiver: want=false got=true")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(KindTransient, cause)
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is(e, cause): want=true got=false")
	}
}

func TestIsMatchesOnKindRegardlessOfCause(t *testing.T) {
	a := New(KindRateLimited, errors.New("429 from provider A"))
	b := New(KindRateLimited, errors.New("429 from provider B"))
	if !errors.Is(a, b) {
		t.Fatalf("errors.Is(a, b) with matching kinds: want=true got=false")
	}

	c := New(KindQuotaExhausted, errors.New("quota"))
	if errors.Is(a, c) {
		t.Fatalf("errors.Is(a, c) with differing kinds: want=false got=true")
	}
}

func TestIsRejectsNonErrorTargets(t *testing.T) {
	e := New(KindTimeout, nil)
	if e.Is(errors.New("plain")) {
		t.Fatalf("Is(plain error): want=false got=true")
	}
}

func TestRetryableKinds(t *testing.T) {
	retryable := []Kind{KindTimeout, KindRateLimited, KindQuotaExhausted, KindTransient}
	for _, k := range retryable {
		if !New(k, nil).Retryable() {
			t.Fatalf("Retryable() for kind %q: want=true got=false", k)
		}
	}

	permanent := []Kind{KindInvalidTransition, KindAlreadyExists, KindAuthFailed, KindBadInput, KindPermanent, KindEncryptionKeyMissing, KindDecryptionFailed}
	for _, k := range permanent {
		if New(k, nil).Retryable() {
			t.Fatalf("Retryable() for kind %q: want=false got=true", k)
		}
	}
}

func TestKindOfUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := New(KindAuthFailed, errors.New("token expired"))
	wrapped := fmt.Errorf("refresh credentials: %w", inner)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatalf("KindOf(wrapped): want ok=true got=false")
	}
	if kind != KindAuthFailed {
		t.Fatalf("KindOf(wrapped): want=%q got=%q", KindAuthFailed, kind)
	}
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	if ok {
		t.Fatalf("KindOf(plain): want ok=false got=true")
	}
}

func TestKindOfReturnsFalseForNilError(t *testing.T) {
	_, ok := KindOf(nil)
	if ok {
		t.Fatalf("KindOf(nil): want ok=false got=true")
	}
}

func TestNewHTTPCarriesStatus(t *testing.T) {
	e := NewHTTP(KindAuthFailed, 401, errors.New("bad token"))
	if e.Status != 401 {
		t.Fatalf("Status: want=401 got=%d", e.Status)
	}
	if e.Kind != KindAuthFailed {
		t.Fatalf("Kind: want=%q got=%q", KindAuthFailed, e.Kind)
	}
}
