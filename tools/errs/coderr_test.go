package errs

import (
	"io"
	"strings"
	"testing"
)

func TestCodeErrorWrapMsg(t *testing.T) {
	err := ErrArgs.WrapMsg("user_id required", "field", "user_id")
	if !ErrArgs.Is(err) {
		t.Fatalf("ErrArgs.Is(%v) = false", err)
	}
	if ErrUnauthorized.Is(err) {
		t.Fatalf("ErrUnauthorized should not match %v", err)
	}
	if got := Code(err); got != ArgsError {
		t.Errorf("Code = %d, want %d", got, ArgsError)
	}
	if !strings.Contains(err.Error(), "field=user_id") {
		t.Errorf("detail missing from %q", err.Error())
	}
	// the package-level value must stay untouched
	if ErrArgs.Detail != "" {
		t.Errorf("WrapMsg mutated ErrArgs: %q", ErrArgs.Detail)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := WrapMsg(io.EOF, "read frame", "user", "alice")
	if Cause(err) != io.EOF {
		t.Fatalf("Cause = %v", Cause(err))
	}
	if !strings.HasPrefix(err.Error(), "read frame, user=alice") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if Wrap(nil) != nil || WrapMsg(nil, "x") != nil {
		t.Error("wrapping nil must return nil")
	}
	if Code(io.EOF) != ServerInternalError {
		t.Error("plain errors map to ServerInternalError")
	}
}

func TestErrPanic(t *testing.T) {
	if ErrPanic(nil) != nil {
		t.Fatal("nil recover value must give nil error")
	}
	err := ErrPanic("boom")
	if !ErrInternal.Is(err) || !strings.Contains(err.Error(), "boom") {
		t.Errorf("unexpected panic error %v", err)
	}
}
