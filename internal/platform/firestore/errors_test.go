package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesCodes(t *testing.T) {
	cases := []struct {
		code  codes.Code
		check func(*Error) bool
	}{
		{codes.NotFound, (*Error).IsNotFound},
		{codes.AlreadyExists, (*Error).IsConflict},
		{codes.Unavailable, (*Error).IsUnavailable},
		{codes.PermissionDenied, (*Error).IsPermissionDenied},
	}
	for _, tc := range cases {
		err := WrapError("matches.update", status.Error(tc.code, "boom"))
		var fsErr *Error
		if !errors.As(err, &fsErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if !tc.check(fsErr) {
			t.Fatalf("%s: classification missing", tc.code)
		}
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}
