package domain

import "testing"

var allowedPairs = map[[2]AvailableStatus]bool{
	{StatusAwaitingDeploy, StatusAvailable}:      true,
	{StatusAvailable, StatusReserved}:            true,
	{StatusAvailable, StatusInUse}:               true,
	{StatusAvailable, StatusMaintenance}:         true,
	{StatusAvailable, StatusRetired}:             true,
	{StatusReserved, StatusAvailable}:            true,
	{StatusReserved, StatusInUse}:                true,
	{StatusInUse, StatusAvailable}:               true,
	{StatusInUse, StatusAwaitingReturn}:          true,
	{StatusInUse, StatusRepairRequired}:          true,
	{StatusAwaitingReturn, StatusAvailable}:      true,
	{StatusAwaitingReturn, StatusRepairRequired}: true,
	{StatusMaintenance, StatusAvailable}:         true,
	{StatusMaintenance, StatusOutForService}:     true,
	{StatusRepairRequired, StatusMaintenance}:    true,
	{StatusRepairRequired, StatusRetired}:        true,
	{StatusOutForService, StatusMaintenance}:     true,
	{StatusOutForService, StatusAvailable}:       true,
	{StatusRetired, StatusDisposed}:              true,
}

func TestCanTransitionMatchesTableForEveryPair(t *testing.T) {
	statuses := AvailableStatuses()
	if len(statuses) != 10 {
		t.Fatalf("expected 10 statuses, got %d", len(statuses))
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowedPairs[[2]AvailableStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionRejectsUnknownStates(t *testing.T) {
	if CanTransition("BOGUS", StatusAvailable) {
		t.Fatalf("unknown from state accepted")
	}
	if CanTransition(StatusAvailable, "BOGUS") {
		t.Fatalf("unknown to state accepted")
	}
	if ValidAvailableStatus("BOGUS") {
		t.Fatalf("unknown status reported valid")
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !IsTerminalStatus(StatusDisposed) {
		t.Fatalf("DISPOSED must be terminal")
	}
	if IsTerminalStatus(StatusRetired) {
		t.Fatalf("RETIRED still moves to DISPOSED")
	}
	if got := AllowedTransitions(StatusRetired); len(got) != 1 || got[0] != StatusDisposed {
		t.Fatalf("RETIRED transitions = %v", got)
	}
	for _, to := range AvailableStatuses() {
		if CanTransition(StatusDisposed, to) {
			t.Fatalf("DISPOSED -> %s allowed", to)
		}
	}
}

func TestRequestTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{RequestPending, RequestApproved, true},
		{RequestPending, RequestDenied, true},
		{RequestPending, RequestFulfilled, true},
		{RequestPending, RequestCancelled, true},
		{RequestApproved, RequestFulfilled, true},
		{RequestApproved, RequestCancelled, true},
		{RequestApproved, RequestDenied, false},
		{RequestDenied, RequestApproved, false},
		{RequestCancelled, RequestPending, false},
		{RequestFulfilled, RequestCancelled, false},
	}
	for _, tc := range cases {
		if got := CanTransitionRequest(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	for _, s := range []RequestStatus{RequestDenied, RequestCancelled, RequestFulfilled} {
		if !IsTerminalRequest(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	if IsTerminalRequest(RequestPending) || IsTerminalRequest(RequestApproved) {
		t.Errorf("open states reported terminal")
	}
}

func TestDeriveStockStatus(t *testing.T) {
	cases := []struct {
		stock, min int
		want       StockStatus
	}{
		{-3, 5, StockOutOfStock},
		{0, 0, StockOutOfStock},
		{0, 5, StockOutOfStock},
		{1, 5, StockLow},
		{5, 5, StockLow},
		{4, 5, StockLow},
		{6, 5, StockInStock},
		{1, 0, StockInStock},
		{10, 5, StockInStock},
	}
	for _, tc := range cases {
		if got := DeriveStockStatus(tc.stock, tc.min); got != tc.want {
			t.Errorf("DeriveStockStatus(%d, %d) = %s, want %s", tc.stock, tc.min, got, tc.want)
		}
	}
}

func TestDeriveStockStatusIsDeterministic(t *testing.T) {
	for stock := -2; stock <= 12; stock++ {
		for min := 0; min <= 10; min++ {
			first := DeriveStockStatus(stock, min)
			for i := 0; i < 3; i++ {
				if again := DeriveStockStatus(stock, min); again != first {
					t.Fatalf("non deterministic for (%d,%d)", stock, min)
				}
			}
			switch {
			case stock <= 0 && first != StockOutOfStock:
				t.Fatalf("(%d,%d) want OUT_OF_STOCK got %s", stock, min, first)
			case stock > 0 && stock <= min && first != StockLow:
				t.Fatalf("(%d,%d) want LOW_STOCK got %s", stock, min, first)
			case stock > min && stock > 0 && first != StockInStock:
				t.Fatalf("(%d,%d) want IN_STOCK got %s", stock, min, first)
			}
		}
	}
}

func TestQuantitiesPreservesFirstSeenOrder(t *testing.T) {
	req := AssetRequest{RequestedItems: []string{"b", "a", "b", "c", "b"}}
	order, counts := req.Quantities()
	if len(order) != 3 || order[0] != "b" || order[1] != "a" || order[2] != "c" {
		t.Fatalf("unexpected order %v", order)
	}
	if counts["b"] != 3 || counts["a"] != 1 || counts["c"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
