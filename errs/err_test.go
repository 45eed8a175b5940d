package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErr(t *testing.T) {
	err := Configuration.Printf("duplicate method %q", "SayHello")
	if !errors.Is(err, Configuration) {
		t.Fatalf("errors.Is(%v, Configuration) = false", err)
	}
	if errors.Is(err, Schema) {
		t.Fatalf("configuration error matched Schema")
	}
	wrapped := fmt.Errorf("setup: %w", err)
	if !IsCode(wrapped, ErrCode_Configuration) {
		t.Fatalf("IsCode lost code through wrapping")
	}
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(cause)
	if err.Code() != ErrCode_Unknown {
		t.Fatalf("code = %d", err.Code())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if WrapError(nil) != nil {
		t.Fatalf("WrapError(nil) != nil")
	}
}

func TestToStatus(t *testing.T) {
	verr := &ValidationError{
		Message:    "HelloRequest",
		Violations: []Violation{{Field: "name", Rule: "required", Reason: "name is required"}},
	}
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", verr, codes.InvalidArgument},
		{"wrapped validation", fmt.Errorf("decode: %w", verr), codes.InvalidArgument},
		{"status passthrough", status.Error(codes.NotFound, "nope"), codes.NotFound},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"plain", errors.New("boom"), codes.Internal},
		{"code error", Internal.Printf("x"), codes.Internal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := status.Code(ToStatus(c.err))
			if got != c.code {
				t.Fatalf("code = %v, want %v", got, c.code)
			}
		})
	}
	if ToStatus(nil) != nil {
		t.Fatalf("ToStatus(nil) != nil")
	}

	vs := FieldViolations(ToStatus(verr))
	if len(vs) != 1 || vs[0].Field != "name" {
		t.Fatalf("violations = %+v", vs)
	}
	if !errors.Is(verr, Validation) {
		t.Fatalf("ValidationError does not match Validation")
	}
}
