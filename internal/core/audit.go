package core

import (
	"assetflow/pkg/domain"
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// eventID returns a time-ordered id so that events sharing a timestamp keep
// their write order.
func eventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// appendEvent writes one audit event. Failures are logged and dropped: the
// state change it documents has already been committed.
func (l *AssetLifecycle) appendEvent(ctx context.Context, tenant string, ev domain.AssetEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = l.opts.clock.Now()
	}
	err := func() error {
		fields, err := toFields(ev)
		if err != nil {
			return err
		}
		_, err = l.store.Create(ctx, tenant, domain.CollectionEvents, eventID(), fields)
		return err
	}()
	if err != nil {
		l.opts.logger.Warn("audit event dropped",
			zap.String("tenant", tenant),
			zap.String("asset_id", ev.AssetID),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err))
		return
	}
	l.opts.logger.Debug("audit event",
		zap.String("tenant", tenant),
		zap.String("asset_id", ev.AssetID),
		zap.String("event_type", string(ev.EventType)),
		zap.String("from", ev.FromValue),
		zap.String("to", ev.ToValue))
}

// listEvents returns audit events oldest first; an empty assetID selects
// the whole tenant trail.
func listEvents(ctx context.Context, store domain.DocumentStore, tenant, assetID string) ([]domain.AssetEvent, error) {
	q := domain.Query{OrderBy: []domain.Order{{Field: "occurred_at"}}}
	if assetID != "" {
		q.Filters = []domain.Filter{domain.Where("asset_id", domain.OpEq, assetID)}
	}
	docs, err := store.List(ctx, tenant, domain.CollectionEvents, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]domain.AssetEvent, 0, len(docs))
	for _, doc := range docs {
		ev, err := decodeEvent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
