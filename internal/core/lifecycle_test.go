package core

import (
	"assetflow/pkg/domain"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestFullAssetLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.asset(t, "a1", domain.StatusAwaitingDeploy, "")

	if _, err := h.assets.TransitionStatus(ctx, tenant, "a1", domain.StatusAvailable, admin, "unboxed"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	issued, err := h.assets.Issue(ctx, tenant, "a1", alice, admin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.AvailableStatus != domain.StatusInUse || issued.Custodian() != alice {
		t.Fatalf("issued asset = %s/%q", issued.AvailableStatus, issued.Custodian())
	}
	for _, to := range []domain.AvailableStatus{
		domain.StatusAwaitingReturn,
		domain.StatusAvailable,
		domain.StatusRetired,
		domain.StatusDisposed,
	} {
		if _, err := h.assets.TransitionStatus(ctx, tenant, "a1", to, admin, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	for _, to := range domain.AvailableStatuses() {
		_, err := h.assets.TransitionStatus(ctx, tenant, "a1", to, admin, "")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("transition out of DISPOSED to %s: %v", to, err)
		}
	}

	want := []domain.EventType{
		domain.EventCreated,
		domain.EventStatusChanged,
		domain.EventAssigned,
		domain.EventStatusChanged,
		domain.EventStatusChanged,
		domain.EventStatusChanged,
		domain.EventStatusChanged,
	}
	if got := eventTypes(h.events(t, "a1")); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTransitionStatusRejectsIllegalMoveWithoutWriting(t *testing.T) {
	h := newHarness(t)
	before := h.asset(t, "a1", domain.StatusAwaitingDeploy, "")

	_, err := h.assets.TransitionStatus(context.Background(), tenant, "a1", domain.StatusInUse, admin, "")
	var te domain.TransitionError
	if !errors.As(err, &te) || te.From != string(domain.StatusAwaitingDeploy) || te.To != string(domain.StatusInUse) {
		t.Fatalf("expected transition error, got %v", err)
	}
	after := h.reload(t, "a1")
	if after.Version != before.Version || after.AvailableStatus != domain.StatusAwaitingDeploy {
		t.Fatalf("asset changed: %+v", after)
	}
	if n := len(h.events(t, "a1")); n != 1 {
		t.Fatalf("expected only the CREATED event, got %d", n)
	}
}

func TestTransitionStatusRejectsConsumable(t *testing.T) {
	h := newHarness(t)
	h.consumable(t, "c1", 3, 1)
	_, err := h.assets.TransitionStatus(context.Background(), tenant, "c1", domain.StatusRetired, admin, "")
	if !errors.Is(err, domain.ErrNotAnAsset) {
		t.Fatalf("expected ErrNotAnAsset, got %v", err)
	}
}

func TestCreateAssetValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   NewAsset
		want error
	}{
		{"missing name", NewAsset{ItemType: domain.ItemTypeAsset}, domain.ErrInvalidRequest},
		{"unknown type", NewAsset{Name: "x", ItemType: "GADGET"}, domain.ErrInvalidRequest},
		{"in use at creation", NewAsset{Name: "x", ItemType: domain.ItemTypeAsset, AvailableStatus: domain.StatusInUse}, domain.ErrInvalidRequest},
		{"asset with stock", NewAsset{Name: "x", ItemType: domain.ItemTypeAsset, CurrentStock: 4}, domain.ErrNotAConsumable},
		{"consumable with status", NewAsset{Name: "x", ItemType: domain.ItemTypeConsumable, AvailableStatus: domain.StatusAvailable}, domain.ErrNotAnAsset},
		{"negative stock", NewAsset{Name: "x", ItemType: domain.ItemTypeConsumable, CurrentStock: -1}, domain.ErrNegativeStock},
		{"bad condition", NewAsset{Name: "x", ItemType: domain.ItemTypeAsset, Condition: "SHINY"}, domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.assets.CreateAsset(ctx, tenant, tc.in, admin); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := h.assets.CreateAsset(ctx, tenant, NewAsset{Name: "x", ItemType: domain.ItemTypeAsset}, ""); !errors.Is(err, domain.ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}
	if _, err := h.assets.CreateAsset(ctx, "", NewAsset{Name: "x", ItemType: domain.ItemTypeAsset}, admin); !errors.Is(err, domain.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestCreateConsumableDerivesStatus(t *testing.T) {
	h := newHarness(t)
	c := h.consumable(t, "c1", 2, 5)
	if c.Status != domain.StockLow || c.AvailableStatus != "" || c.CurrentCondition != domain.ConditionNew {
		t.Fatalf("consumable = %+v", c)
	}
}

func TestAdjustStockDerivesStatus(t *testing.T) {
	cases := []struct {
		name  string
		stock int
		delta int
		want  domain.StockStatus
	}{
		{"replenish", 5, 10, domain.StockInStock},
		{"down to minimum", 10, -5, domain.StockLow},
		{"empty", 3, -3, domain.StockOutOfStock},
		{"zero delta", 8, 0, domain.StockInStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.consumable(t, "c1", tc.stock, 5)
			got, err := h.assets.AdjustStock(context.Background(), tenant, "c1", tc.delta, admin, "count")
			if err != nil {
				t.Fatalf("adjust: %v", err)
			}
			if got.CurrentStock != tc.stock+tc.delta || got.Status != tc.want {
				t.Fatalf("stock %d status %s, want %d %s", got.CurrentStock, got.Status, tc.stock+tc.delta, tc.want)
			}
			evs := h.events(t, "c1")
			last := evs[len(evs)-1]
			if last.EventType != domain.EventStockAdjusted || last.ActorStaffID != admin || last.Note != "count" {
				t.Fatalf("last event = %+v", last)
			}
		})
	}
}

func TestAdjustStockRejectsNegative(t *testing.T) {
	h := newHarness(t)
	h.consumable(t, "c1", 2, 1)
	_, err := h.assets.AdjustStock(context.Background(), tenant, "c1", -3, admin, "")
	var se domain.StockError
	if !errors.Is(err, domain.ErrNegativeStock) || !errors.As(err, &se) || se.Available != 2 || se.Requested != 3 {
		t.Fatalf("expected negative stock error, got %v", err)
	}
	if got := h.reload(t, "c1"); got.CurrentStock != 2 || got.Version != 1 {
		t.Fatalf("consumable changed: %+v", got)
	}
	if n := len(h.events(t, "c1")); n != 1 {
		t.Fatalf("expected no STOCK_ADJUSTED event, got %d events", n)
	}
}

func TestAdjustStockRejectsPhysicalAsset(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", "", "")
	if _, err := h.assets.AdjustStock(context.Background(), tenant, "a1", 1, admin, ""); !errors.Is(err, domain.ErrNotAConsumable) {
		t.Fatalf("expected ErrNotAConsumable, got %v", err)
	}
}

func TestConcurrentAdjustStockSerialises(t *testing.T) {
	h := newHarness(t)
	h.consumable(t, "c1", 1, 0)
	errs := adjustConcurrently(t, h.assets, h.assets)
	assertOneWinner(t, errs)
	if got := h.reload(t, "c1"); got.CurrentStock != 0 {
		t.Fatalf("stock = %d, want 0", got.CurrentStock)
	}
	if h.assets.locks.size() != 0 {
		t.Fatalf("lock entries leaked: %d", h.assets.locks.size())
	}
}

// Two engines over one store do not share a keyed mutex, so only the
// version precondition keeps the stock from going negative.
func TestConcurrentAdjustStockAcrossEngines(t *testing.T) {
	h := newHarness(t)
	h.consumable(t, "c1", 1, 0)
	other := NewAssetLifecycle(h.store, WithClock(h.clock))
	errs := adjustConcurrently(t, h.assets, other)
	assertOneWinner(t, errs)
	if got := h.reload(t, "c1"); got.CurrentStock != 0 {
		t.Fatalf("stock = %d, want 0", got.CurrentStock)
	}
	adjusted := 0
	for _, ev := range h.events(t, "c1") {
		if ev.EventType == domain.EventStockAdjusted {
			adjusted++
		}
	}
	if adjusted != 1 {
		t.Fatalf("expected one STOCK_ADJUSTED event, got %d", adjusted)
	}
}

func adjustConcurrently(t *testing.T, a, b *AssetLifecycle) []error {
	t.Helper()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i, engine := range []*AssetLifecycle{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = engine.AdjustStock(context.Background(), tenant, "c1", -1, admin, "")
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func assertOneWinner(t *testing.T, errs []error) {
	t.Helper()
	ok, negative := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrNegativeStock):
			negative++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || negative != 1 {
		t.Fatalf("successes=%d negative=%d, want 1/1", ok, negative)
	}
}

func TestCanIssueAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.asset(t, "ready", domain.StatusAvailable, alice)
	h.asset(t, "nobody", domain.StatusAvailable, "")
	h.asset(t, "boxed", domain.StatusAwaitingDeploy, alice)
	h.asset(t, "held", domain.StatusAvailable, alice)
	if _, err := h.assets.TransitionStatus(ctx, tenant, "held", domain.StatusReserved, admin, ""); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h.consumable(t, "c1", 4, 1)

	cases := []struct {
		id   string
		want error
	}{
		{"ready", nil},
		{"held", nil},
		{"nobody", domain.ErrNotIssuable},
		{"boxed", domain.ErrNotIssuable},
		{"c1", domain.ErrNotIssuable},
		{"missing", domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			err := h.assets.CanIssueAsset(ctx, tenant, tc.id)
			if tc.want == nil && err != nil {
				t.Fatalf("expected issuable, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIssueUsesExistingCustodian(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", domain.StatusAvailable, bob)
	got, err := h.assets.Issue(context.Background(), tenant, "a1", "", admin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.Custodian() != bob {
		t.Fatalf("custodian = %q", got.Custodian())
	}
	evs := h.events(t, "a1")
	if last := evs[len(evs)-1]; last.EventType != domain.EventAssigned || last.FromValue != bob || last.ToValue != bob {
		t.Fatalf("assigned event = %+v", last)
	}
}

func TestIssueWithoutCustodianFails(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", domain.StatusAvailable, "")
	if _, err := h.assets.Issue(context.Background(), tenant, "a1", "  ", admin); !errors.Is(err, domain.ErrNotIssuable) {
		t.Fatalf("expected ErrNotIssuable, got %v", err)
	}
	if got := h.reload(t, "a1"); got.AvailableStatus != domain.StatusAvailable {
		t.Fatalf("status = %s", got.AvailableStatus)
	}
}

func TestReturnRoutesByCondition(t *testing.T) {
	cases := []struct {
		condition domain.Condition
		want      domain.AvailableStatus
	}{
		{domain.ConditionGood, domain.StatusAvailable},
		{"", domain.StatusAvailable},
		{domain.ConditionDamaged, domain.StatusRepairRequired},
		{domain.ConditionScrap, domain.StatusRepairRequired},
	}
	for _, tc := range cases {
		t.Run(string(tc.want)+"/"+string(tc.condition), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.asset(t, "a1", domain.StatusAvailable, "")
			if _, err := h.assets.Issue(ctx, tenant, "a1", alice, admin); err != nil {
				t.Fatalf("issue: %v", err)
			}
			got, err := h.assets.Return(ctx, tenant, "a1", tc.condition, admin, "desk drop-off")
			if err != nil {
				t.Fatalf("return: %v", err)
			}
			if got.AvailableStatus != tc.want || got.CustodianStaffID != nil {
				t.Fatalf("returned asset %s custodian %v", got.AvailableStatus, got.CustodianStaffID)
			}
			evs := h.events(t, "a1")
			if last := evs[len(evs)-1]; last.EventType != domain.EventReturned {
				t.Fatalf("last event = %s", last.EventType)
			}
		})
	}
}

func TestReturnRequiresHeldAsset(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", domain.StatusAvailable, "")
	if _, err := h.assets.Return(context.Background(), tenant, "a1", "", admin, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestConditionAndLocationChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.asset(t, "a1", domain.StatusAvailable, "")

	if _, err := h.assets.ChangeCondition(ctx, tenant, "a1", domain.ConditionFair, admin, "scratched lid"); err != nil {
		t.Fatalf("condition: %v", err)
	}
	if _, err := h.assets.ChangeCondition(ctx, tenant, "a1", "BROKEN", admin, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid condition, got %v", err)
	}
	if _, err := h.assets.Relocate(ctx, tenant, "a1", " ", admin, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected location required, got %v", err)
	}
	got, err := h.assets.Relocate(ctx, tenant, "a1", "Warehouse 2", admin, "")
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if got.CurrentCondition != domain.ConditionFair || got.Location != "Warehouse 2" {
		t.Fatalf("asset = %+v", got)
	}
	evs := h.events(t, "a1")
	if len(evs) != 3 || evs[1].EventType != domain.EventConditionChanged || evs[2].EventType != domain.EventLocationChanged {
		t.Fatalf("events = %v", eventTypes(evs))
	}
	if evs[2].FromValue != "HQ" || evs[2].ToValue != "Warehouse 2" {
		t.Fatalf("location event = %+v", evs[2])
	}
}

func TestRetireAndDispose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.asset(t, "a1", domain.StatusAvailable, alice)

	if _, err := h.assets.Dispose(ctx, tenant, "a1", admin, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("dispose before retire: %v", err)
	}
	retired, err := h.assets.Retire(ctx, tenant, "a1", admin, "end of life")
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if retired.CustodianStaffID != nil {
		t.Fatalf("retired asset keeps custodian %q", retired.Custodian())
	}
	if _, err := h.assets.Dispose(ctx, tenant, "a1", admin, "recycled"); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, err := h.assets.Relocate(ctx, tenant, "a1", "Skip", admin, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("relocate disposed: %v", err)
	}
	got := eventTypes(h.events(t, "a1"))
	want := []domain.EventType{domain.EventCreated, domain.EventRetired, domain.EventDisposed}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	h := newHarness(t)
	h.consumable(t, "c1", 5, 1)
	h.store.setFailCreate(func(c domain.Collection) error {
		if c == domain.CollectionEvents {
			return errInjected
		}
		return nil
	})
	got, err := h.assets.AdjustStock(context.Background(), tenant, "c1", -2, admin, "")
	if err != nil {
		t.Fatalf("adjust with failing audit: %v", err)
	}
	if got.CurrentStock != 3 {
		t.Fatalf("stock = %d", got.CurrentStock)
	}
	h.store.setFailCreate(nil)
	if n := len(h.events(t, "c1")); n != 1 {
		t.Fatalf("expected only the CREATED event, got %d", n)
	}
}

func TestTenantIsolation(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", domain.StatusAvailable, "")
	if _, err := h.assets.GetAsset(context.Background(), "org-2", "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := h.assets.TransitionStatus(context.Background(), "org-2", "a1", domain.StatusReserved, admin, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestListAssetsFiltersByType(t *testing.T) {
	h := newHarness(t)
	h.asset(t, "a1", "", "")
	h.consumable(t, "c1", 1, 0)
	h.consumable(t, "c2", 9, 0)
	got, err := h.assets.ListAssets(context.Background(), tenant, domain.Query{
		Filters: []domain.Filter{domain.Where("item_type", domain.OpEq, domain.ItemTypeConsumable)},
		OrderBy: []domain.Order{{Field: "current_stock", Desc: true}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("list = %+v", got)
	}
}
