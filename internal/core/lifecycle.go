package core

import (
	"assetflow/pkg/domain"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// AssetLifecycle owns the availableStatus state machine of physical assets
// and the stock invariant of consumables. Every successful mutation appends
// exactly one audit event.
type AssetLifecycle struct {
	store domain.DocumentStore
	opts  options
	locks *keyedMutex
}

// NewAssetLifecycle constructs the engine over store.
func NewAssetLifecycle(store domain.DocumentStore, opts ...Option) *AssetLifecycle {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AssetLifecycle{store: store, opts: o, locks: newKeyedMutex()}
}

// Store returns the backing document store.
func (l *AssetLifecycle) Store() domain.DocumentStore { return l.store }

// NewAsset describes an item to register.
type NewAsset struct {
	ID               string // optional; generated when empty
	Name             string
	ItemType         domain.ItemType
	AvailableStatus  domain.AvailableStatus // physical only; AVAILABLE when empty
	Condition        domain.Condition       // NEW when empty
	CustodianStaffID string
	Location         string
	CurrentStock     int // consumable only
	MinimumStock     int // consumable only
}

func requireScope(tenant, actor string) error {
	if tenant == "" {
		return domain.ErrMissingTenant
	}
	if strings.TrimSpace(actor) == "" {
		return domain.ErrMissingActor
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// CreateAsset registers a new item. The item type is fixed from here on and
// a consumable's stock status is derived, never taken from input.
func (l *AssetLifecycle) CreateAsset(ctx context.Context, tenant string, in NewAsset, actor string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "create_asset", func(ctx context.Context) (domain.Asset, error) {
		if err := requireScope(tenant, actor); err != nil {
			return domain.Asset{}, err
		}
		asset, ev, err := l.buildAsset(in)
		if err != nil {
			return domain.Asset{}, err
		}
		fields, err := toFields(asset)
		if err != nil {
			return domain.Asset{}, err
		}
		doc, err := l.store.Create(ctx, tenant, domain.CollectionAssets, in.ID, fields)
		if err != nil {
			return domain.Asset{}, fmt.Errorf("create asset: %w", err)
		}
		created, err := decodeAsset(doc)
		if err != nil {
			return domain.Asset{}, err
		}
		ev.AssetID, ev.ActorStaffID = created.ID, actor
		l.appendEvent(ctx, tenant, ev)
		return created, nil
	})
}

func (l *AssetLifecycle) buildAsset(in NewAsset) (domain.Asset, domain.AssetEvent, error) {
	now := l.opts.clock.Now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Asset{}, domain.AssetEvent{}, invalid("asset name required")
	}
	condition := in.Condition
	if condition == "" {
		condition = domain.ConditionNew
	}
	if !domain.ValidCondition(condition) {
		return domain.Asset{}, domain.AssetEvent{}, invalid("unknown condition %q", condition)
	}
	asset := domain.Asset{
		Name:             name,
		ItemType:         in.ItemType,
		CurrentCondition: condition,
		Location:         strings.TrimSpace(in.Location),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	ev := domain.AssetEvent{EventType: domain.EventCreated, Note: name, OccurredAt: now}
	switch in.ItemType {
	case domain.ItemTypeAsset:
		status := in.AvailableStatus
		if status == "" {
			status = domain.StatusAvailable
		}
		if status != domain.StatusAvailable && status != domain.StatusAwaitingDeploy {
			return domain.Asset{}, domain.AssetEvent{}, invalid("new assets start AVAILABLE or AWAITING_DEPLOY, not %q", status)
		}
		if in.CurrentStock != 0 || in.MinimumStock != 0 {
			return domain.Asset{}, domain.AssetEvent{}, fmt.Errorf("%w: stock levels apply to consumables", domain.ErrNotAConsumable)
		}
		asset.AvailableStatus = status
		if c := strings.TrimSpace(in.CustodianStaffID); c != "" {
			asset.CustodianStaffID = &c
		}
		ev.ToValue = string(status)
	case domain.ItemTypeConsumable:
		if in.AvailableStatus != "" || in.CustodianStaffID != "" {
			return domain.Asset{}, domain.AssetEvent{}, fmt.Errorf("%w: consumables have no lifecycle status or custodian", domain.ErrNotAnAsset)
		}
		if in.CurrentStock < 0 {
			return domain.Asset{}, domain.AssetEvent{}, domain.NewNegativeStockError(in.ID, 0, in.CurrentStock)
		}
		if in.MinimumStock < 0 {
			return domain.Asset{}, domain.AssetEvent{}, invalid("minimum stock must not be negative")
		}
		asset.CurrentStock = in.CurrentStock
		asset.MinimumStock = in.MinimumStock
		asset.Status = domain.DeriveStockStatus(in.CurrentStock, in.MinimumStock)
		ev.ToValue = strconv.Itoa(in.CurrentStock)
	default:
		return domain.Asset{}, domain.AssetEvent{}, invalid("unknown item type %q", in.ItemType)
	}
	return asset, ev, nil
}

// GetAsset loads one item.
func (l *AssetLifecycle) GetAsset(ctx context.Context, tenant, id string) (domain.Asset, error) {
	if tenant == "" {
		return domain.Asset{}, domain.ErrMissingTenant
	}
	return l.load(ctx, tenant, id)
}

// ListAssets runs q over the tenant's items.
func (l *AssetLifecycle) ListAssets(ctx context.Context, tenant string, q domain.Query) ([]domain.Asset, error) {
	docs, err := l.store.List(ctx, tenant, domain.CollectionAssets, q)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	out := make([]domain.Asset, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAsset(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Events returns the audit trail of one asset, oldest first.
func (l *AssetLifecycle) Events(ctx context.Context, tenant, assetID string) ([]domain.AssetEvent, error) {
	if tenant == "" {
		return nil, domain.ErrMissingTenant
	}
	return listEvents(ctx, l.store, tenant, assetID)
}

// TransitionStatus moves a physical asset along the transition table.
func (l *AssetLifecycle) TransitionStatus(ctx context.Context, tenant, assetID string, to domain.AvailableStatus, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "transition_status", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "transition_status", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			return transitionChange(a, to, note)
		})
	})
}

func transitionChange(a *domain.Asset, to domain.AvailableStatus, note string) (domain.AssetEvent, error) {
	if a.IsConsumable() {
		return domain.AssetEvent{}, fmt.Errorf("%w: %s", domain.ErrNotAnAsset, a.ID)
	}
	from := a.AvailableStatus
	if !domain.CanTransition(from, to) {
		return domain.AssetEvent{}, domain.TransitionError{Entity: "asset", ID: a.ID, From: string(from), To: string(to)}
	}
	a.AvailableStatus = to
	return domain.AssetEvent{EventType: domain.EventStatusChanged, FromValue: string(from), ToValue: string(to), Note: note}, nil
}

// AdjustStock applies delta to a consumable's stock and re-derives its
// status. A result below zero fails with ErrNegativeStock and writes
// nothing.
func (l *AssetLifecycle) AdjustStock(ctx context.Context, tenant, consumableID string, delta int, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "adjust_stock", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "adjust_stock", tenant, consumableID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			return stockChange(a, delta, note)
		})
	})
}

func stockChange(a *domain.Asset, delta int, note string) (domain.AssetEvent, error) {
	if !a.IsConsumable() {
		return domain.AssetEvent{}, fmt.Errorf("%w: %s", domain.ErrNotAConsumable, a.ID)
	}
	old := a.CurrentStock
	next := old + delta
	if next < 0 {
		return domain.AssetEvent{}, domain.NewNegativeStockError(a.ID, old, delta)
	}
	a.CurrentStock = next
	a.Status = domain.DeriveStockStatus(next, a.MinimumStock)
	return domain.AssetEvent{
		EventType: domain.EventStockAdjusted,
		FromValue: strconv.Itoa(old),
		ToValue:   strconv.Itoa(next),
		Note:      note,
	}, nil
}

// CanIssueAsset reports whether the asset could be handed out as it stands:
// AVAILABLE or RESERVED with a custodian already set.
func (l *AssetLifecycle) CanIssueAsset(ctx context.Context, tenant, assetID string) error {
	_, err := instrument(ctx, &l.opts, "can_issue_asset", func(ctx context.Context) (struct{}, error) {
		if tenant == "" {
			return struct{}{}, domain.ErrMissingTenant
		}
		a, err := l.load(ctx, tenant, assetID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, checkIssuable(a, a.Custodian())
	})
	return err
}

func checkIssuable(a domain.Asset, custodian string) error {
	switch {
	case a.IsConsumable():
		return fmt.Errorf("%w: %s is a consumable, approve a request instead", domain.ErrNotIssuable, a.ID)
	case !domain.IsIssuableStatus(a.AvailableStatus):
		return fmt.Errorf("%w: %s is %s", domain.ErrNotIssuable, a.ID, a.AvailableStatus)
	case strings.TrimSpace(custodian) == "":
		return fmt.Errorf("%w: %s has no custodian", domain.ErrNotIssuable, a.ID)
	}
	return nil
}

// Issue hands a physical asset to custodianID, or to its current custodian
// when custodianID is empty.
func (l *AssetLifecycle) Issue(ctx context.Context, tenant, assetID, custodianID, actor string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "issue_asset", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "issue_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			return issueChange(a, custodianID, "")
		})
	})
}

func issueChange(a *domain.Asset, custodianID, note string) (domain.AssetEvent, error) {
	previous := a.Custodian()
	custodian := strings.TrimSpace(custodianID)
	if custodian == "" {
		custodian = previous
	}
	if err := checkIssuable(*a, custodian); err != nil {
		return domain.AssetEvent{}, err
	}
	a.AvailableStatus = domain.StatusInUse
	a.CustodianStaffID = &custodian
	return domain.AssetEvent{EventType: domain.EventAssigned, FromValue: previous, ToValue: custodian, Note: note}, nil
}

// Return takes an asset back from its custodian. Damaged or scrapped
// returns go to REPAIR_REQUIRED, everything else to AVAILABLE. An empty
// condition keeps the recorded one.
func (l *AssetLifecycle) Return(ctx context.Context, tenant, assetID string, condition domain.Condition, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "return_asset", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "return_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			if a.IsConsumable() {
				return domain.AssetEvent{}, fmt.Errorf("%w: %s", domain.ErrNotAnAsset, a.ID)
			}
			if condition != "" && !domain.ValidCondition(condition) {
				return domain.AssetEvent{}, invalid("unknown condition %q", condition)
			}
			if condition != "" {
				a.CurrentCondition = condition
			}
			to := domain.StatusAvailable
			if a.CurrentCondition == domain.ConditionDamaged || a.CurrentCondition == domain.ConditionScrap {
				to = domain.StatusRepairRequired
			}
			from := a.AvailableStatus
			if (from != domain.StatusInUse && from != domain.StatusAwaitingReturn) || !domain.CanTransition(from, to) {
				return domain.AssetEvent{}, domain.TransitionError{Entity: "asset", ID: a.ID, From: string(from), To: string(to)}
			}
			a.AvailableStatus = to
			a.CustodianStaffID = nil
			msg := fmt.Sprintf("returned in %s condition", a.CurrentCondition)
			if note != "" {
				msg += ": " + note
			}
			return domain.AssetEvent{EventType: domain.EventReturned, FromValue: string(from), ToValue: string(to), Note: msg}, nil
		})
	})
}

func errDisposed(a *domain.Asset) error {
	return fmt.Errorf("%w: %s is disposed", domain.ErrInvalidTransition, a.ID)
}

// ChangeCondition records a new condition grade.
func (l *AssetLifecycle) ChangeCondition(ctx context.Context, tenant, assetID string, condition domain.Condition, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "change_condition", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "change_condition", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			if a.AvailableStatus == domain.StatusDisposed {
				return domain.AssetEvent{}, errDisposed(a)
			}
			if !domain.ValidCondition(condition) {
				return domain.AssetEvent{}, invalid("unknown condition %q", condition)
			}
			from := a.CurrentCondition
			a.CurrentCondition = condition
			return domain.AssetEvent{EventType: domain.EventConditionChanged, FromValue: string(from), ToValue: string(condition), Note: note}, nil
		})
	})
}

// Relocate records a new location.
func (l *AssetLifecycle) Relocate(ctx context.Context, tenant, assetID, location, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "relocate_asset", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "relocate_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			if a.AvailableStatus == domain.StatusDisposed {
				return domain.AssetEvent{}, errDisposed(a)
			}
			to := strings.TrimSpace(location)
			if to == "" {
				return domain.AssetEvent{}, invalid("location required")
			}
			from := a.Location
			a.Location = to
			return domain.AssetEvent{EventType: domain.EventLocationChanged, FromValue: from, ToValue: to, Note: note}, nil
		})
	})
}

// Retire takes a physical asset out of service along a legal transition.
func (l *AssetLifecycle) Retire(ctx context.Context, tenant, assetID, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "retire_asset", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "retire_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			ev, err := transitionChange(a, domain.StatusRetired, note)
			if err != nil {
				return ev, err
			}
			a.CustodianStaffID = nil
			ev.EventType = domain.EventRetired
			return ev, nil
		})
	})
}

// Dispose is the final step for a retired asset.
func (l *AssetLifecycle) Dispose(ctx context.Context, tenant, assetID, actor, note string) (domain.Asset, error) {
	return instrument(ctx, &l.opts, "dispose_asset", func(ctx context.Context) (domain.Asset, error) {
		return l.mutate(ctx, "dispose_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			ev, err := transitionChange(a, domain.StatusDisposed, note)
			if err != nil {
				return ev, err
			}
			ev.EventType = domain.EventDisposed
			return ev, nil
		})
	})
}

// assetChange validates and applies one mutation to a copy of the stored
// asset and returns the event documenting it.
type assetChange func(a *domain.Asset) (domain.AssetEvent, error)

func (l *AssetLifecycle) mutate(ctx context.Context, op, tenant, assetID, actor string, change assetChange) (domain.Asset, error) {
	if err := requireScope(tenant, actor); err != nil {
		return domain.Asset{}, err
	}
	unlock := l.locks.Lock(lockKey(tenant, "asset", assetID))
	defer unlock()
	return l.mutateLocked(ctx, op, tenant, assetID, actor, change)
}

// mutateLocked expects the caller to hold the asset's key. The stored
// version guards the write against other processes; on conflict the asset
// is re-read and the change re-validated.
func (l *AssetLifecycle) mutateLocked(ctx context.Context, op, tenant, assetID, actor string, change assetChange) (domain.Asset, error) {
	for attempt := 0; ; attempt++ {
		current, err := l.load(ctx, tenant, assetID)
		if err != nil {
			return domain.Asset{}, err
		}
		next := current
		ev, err := change(&next)
		if err != nil {
			return domain.Asset{}, err
		}
		saved, err := l.save(ctx, tenant, next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < l.opts.maxRetries {
			l.opts.conflict(op)
			l.opts.logger.Debug("version conflict, retrying",
				zap.String("operation", op),
				zap.String("asset_id", assetID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return domain.Asset{}, err
		}
		ev.AssetID, ev.ActorStaffID = assetID, actor
		l.appendEvent(ctx, tenant, ev)
		return saved, nil
	}
}

func (l *AssetLifecycle) load(ctx context.Context, tenant, assetID string) (domain.Asset, error) {
	doc, err := l.store.Get(ctx, tenant, domain.CollectionAssets, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	return decodeAsset(doc)
}

// save writes the full asset body if the stored version is still version.
func (l *AssetLifecycle) save(ctx context.Context, tenant string, a domain.Asset, version int64) (domain.Asset, error) {
	a.UpdatedAt = l.opts.clock.Now()
	fields, err := toFields(a)
	if err != nil {
		return domain.Asset{}, err
	}
	doc, err := l.store.Update(ctx, tenant, domain.CollectionAssets, a.ID, fields, domain.IfVersion(version))
	if err != nil {
		return domain.Asset{}, err
	}
	return decodeAsset(doc)
}
