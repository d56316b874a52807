package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{NotFoundError{Collection: CollectionAssets, ID: "a1"}, ErrNotFound},
		{TransitionError{Entity: "asset", ID: "a1", From: "DISPOSED", To: "AVAILABLE"}, ErrInvalidTransition},
		{NewNegativeStockError("c1", 1, -2), ErrNegativeStock},
		{NewInsufficientStockError("c1", 2, 3), ErrInsufficientStock},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Errorf("%v does not unwrap to %v", tc.err, tc.kind)
		}
	}
}

func TestStockErrorMessage(t *testing.T) {
	err := NewNegativeStockError("c1", 1, -2)
	if err.Requested != 2 || err.Available != 1 {
		t.Fatalf("unexpected fields %+v", err)
	}
	want := "stock would become negative: c1 has 1, needs 2"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestDescribeDistinguishesEveryKind(t *testing.T) {
	kinds := []error{
		ErrInvalidTransition, ErrNotIssuable, ErrNegativeStock, ErrInsufficientStock,
		ErrMissingReason, ErrNotCancellable, ErrNotFound, ErrNotAConsumable,
		ErrNotAnAsset, ErrNotRequester, ErrInvalidRequest, ErrVersionConflict,
		ErrMissingActor, ErrMissingTenant,
	}
	seen := make(map[string]error, len(kinds))
	for _, kind := range kinds {
		msg := Describe(kind)
		if msg == "" || msg == kind.Error() {
			t.Errorf("no dedicated message for %v", kind)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("%v and %v share message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}
	if Describe(nil) != "" {
		t.Errorf("nil error should describe as empty")
	}
	if got := Describe(errors.New("boom")); got != "boom" {
		t.Errorf("unknown error described as %q", got)
	}
}

func TestDescribeNotFoundDiffersFromInvalidTransition(t *testing.T) {
	nf := Describe(NotFoundError{Collection: CollectionAssets, ID: "x"})
	it := Describe(TransitionError{Entity: "asset", ID: "x", From: "A", To: "B"})
	if nf == it {
		t.Fatalf("not found and invalid transition must differ")
	}
}
