package errors

import (
	stderrs "errors"
	"fmt"
	"testing"
)

func TestErrorTypeAndMethods(t *testing.T) {
	// nil *Error should render "<nil>"
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("nil *Error render = %q, want <nil>", e.Error())
	}

	e1 := New(ErrorCodeValidation, "bad stuff")
	if CodeOf(e1) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e1))
	}
	e2 := Newf(ErrorCodeConflict, "busy job %s", "POSITIONS")
	if got := e2.Error(); got != "busy job POSITIONS" {
		t.Fatalf("Newf render = %q", got)
	}

	// Wrap keeps the original reachable via Unwrap/Root
	orig := stderrs.New("root cause")
	w := Wrap(orig, ErrorCodeDB, "copy batch")
	if !stderrs.Is(w, orig) {
		t.Fatalf("wrapped error should match original via errors.Is")
	}
	if Root(w) != orig {
		t.Fatalf("Root should unwrap to the original error")
	}
	if CodeOf(w) != ErrorCodeDB {
		t.Fatalf("CodeOf(wrap) = %v", CodeOf(w))
	}
}

func TestCodeOfDefaultsToUnknown(t *testing.T) {
	if CodeOf(nil) != ErrorCodeUnknown {
		t.Fatalf("CodeOf(nil) should be unknown")
	}
	if CodeOf(fmt.Errorf("plain")) != ErrorCodeUnknown {
		t.Fatalf("CodeOf(plain) should be unknown")
	}
	if !IsCode(Conflictf("x"), ErrorCodeConflict) {
		t.Fatalf("IsCode should match Conflictf")
	}
}

func TestConstructorShortcuts(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{NotFoundf("task %d", 1), ErrorCodeNotFound},
		{InvalidArgf("drone id"), ErrorCodeInvalidArgument},
		{Validationf("priority"), ErrorCodeValidation},
		{DuplicateKeyf("batch id"), ErrorCodeDuplicateKey},
		{DBf("scan"), ErrorCodeDB},
		{Conflictf("already running"), ErrorCodeConflict},
		{Unavailablef("clickhouse down"), ErrorCodeUnavailable},
		{Internalf("wat"), ErrorCodeUnknown},
	}
	for _, c := range cases {
		if CodeOf(c.err) != c.want {
			t.Fatalf("CodeOf(%v) = %v, want %v", c.err, CodeOf(c.err), c.want)
		}
	}
}

func TestWithFieldAndOp(t *testing.T) {
	e := WithOp(WithField(Validationf("too big"), "priority"), "enqueue")
	pe, ok := As(e)
	if !ok {
		t.Fatalf("As should find *Error")
	}
	if pe.Field() != "priority" || pe.Op() != "enqueue" {
		t.Fatalf("field/op = %q/%q", pe.Field(), pe.Op())
	}
}

func TestRetryableUnavailable(t *testing.T) {
	if !Retryable(Unavailablef("gateway 503")) {
		t.Fatalf("unavailable errors should be retryable")
	}
	if Retryable(Conflictf("duplicate batch")) {
		t.Fatalf("conflicts should not be retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
}
