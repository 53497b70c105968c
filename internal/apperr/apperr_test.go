package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("KindOf(plain) = %v, want KindInternal", got)
	}
	if got := KindOf(New(KindNotFound, "missing")); got != KindNotFound {
		t.Fatalf("KindOf = %v, want KindNotFound", got)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler context: %w", New(KindRateLimited, "too many requests"))
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("kind lost through wrapping: %v", err)
	}
	if MessageOf(err) != "too many requests" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}
}

func TestInternalKeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Internal(cause)

	if !errors.Is(err, cause) {
		t.Fatal("Internal should wrap its cause")
	}
	// The client-safe message never leaks the cause.
	if MessageOf(err) != "internal server error" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}
	// Error() keeps the detail for logs.
	if err.Error() != "internal server error: pq: connection reset" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrapCarriesKindAndCause(t *testing.T) {
	cause := errors.New("smtp dial timeout")
	err := Wrap(KindEmailDelivery, "could not send login email", cause)

	if !IsKind(err, KindEmailDelivery) {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable with errors.Is")
	}
}

func TestMessageOfPlainError(t *testing.T) {
	if got := MessageOf(errors.New("raw sql error")); got != "internal server error" {
		t.Fatalf("MessageOf = %q, want the generic message", got)
	}
}
