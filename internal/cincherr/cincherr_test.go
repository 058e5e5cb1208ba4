package cincherr

import (
	"errors"
	"testing"
)

func TestIsKind(t *testing.T) {
	err := New(NotFound, "branch.Get", "branch not found")
	if !Is(err, NotFound) {
		t.Fatal("expected Is to match NotFound")
	}
	if Is(err, AlreadyExists) {
		t.Fatal("expected Is not to match AlreadyExists")
	}
}

func TestWrapPreservesKind(t *testing.T) {
	inner := New(MergeConflict, "branchops.merge", "conflicting change ids")
	wrapped := Wrap("branchops.Merge", inner)
	if wrapped.Kind != MergeConflict {
		t.Fatalf("expected wrapped Kind to stay MergeConflict, got %s", wrapped.Kind)
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("expected errors.Is self-match")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap("op", nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := WrapKind(Storage, "pool.open", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
