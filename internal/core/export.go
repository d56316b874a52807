package core

import (
	"assetflow/internal/blob"
	"assetflow/pkg/domain"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Receipt is the hand-off document written for each issued asset.
type Receipt struct {
	Tenant            string           `json:"tenant"`
	IssueID           string           `json:"issue_id"`
	RequestID         string           `json:"request_id"`
	AssetID           string           `json:"asset_id"`
	AssetName         string           `json:"asset_name"`
	CustodianStaffID  string           `json:"custodian_staff_id"`
	IssuedBy          string           `json:"issued_by"`
	PreIssueCondition domain.Condition `json:"pre_issue_condition"`
	Accessories       []string         `json:"accessories"`
	Notes             string           `json:"notes,omitempty"`
	DueDate           time.Time        `json:"due_date"`
	IssuedAt          time.Time        `json:"issued_at"`
}

// ReceiptKey is where the receipt for one asset of a request is stored.
func ReceiptKey(tenant, requestID, assetID string) string {
	return path.Join("receipts", tenant, requestID, assetID+".json")
}

// writeReceipt stores the hand-off receipt when a receipt store is
// configured. Like audit events, a failed write is logged and dropped.
func (w *RequestWorkflow) writeReceipt(ctx context.Context, tenant string, is domain.AssetIssue, a domain.Asset) {
	if w.opts.receipts == nil {
		return
	}
	key := ReceiptKey(tenant, is.RequestID, is.AssetID)
	_, err := blob.PutJSON(ctx, w.opts.receipts, key, Receipt{
		Tenant:            tenant,
		IssueID:           is.ID,
		RequestID:         is.RequestID,
		AssetID:           is.AssetID,
		AssetName:         a.Name,
		CustodianStaffID:  is.CustodianStaffID,
		IssuedBy:          is.IssuedBy,
		PreIssueCondition: is.PreIssueCondition,
		Accessories:       is.Accessories,
		Notes:             is.Notes,
		DueDate:           is.DueDate,
		IssuedAt:          is.IssuedAt,
	}, map[string]string{"request-id": is.RequestID, "asset-id": is.AssetID})
	if err != nil {
		w.opts.logger.Warn("receipt not written",
			zap.String("tenant", tenant),
			zap.String("key", key),
			zap.Error(err))
	}
}

// Exporter copies audit trails to object storage as JSON lines.
type Exporter struct {
	store domain.DocumentStore
	blobs blob.Store
	opts  options
}

// NewExporter writes exports of store's audit trail into blobs.
func NewExporter(store domain.DocumentStore, blobs blob.Store, opts ...Option) *Exporter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Exporter{store: store, blobs: blobs, opts: o}
}

// ExportEvents writes the audit trail of assetID, or of the whole tenant
// when assetID is empty, and returns the stored object.
func (e *Exporter) ExportEvents(ctx context.Context, tenant, assetID string) (blob.Info, error) {
	return instrument(ctx, &e.opts, "export_events", func(ctx context.Context) (blob.Info, error) {
		if tenant == "" {
			return blob.Info{}, domain.ErrMissingTenant
		}
		events, err := listEvents(ctx, e.store, tenant, assetID)
		if err != nil {
			return blob.Info{}, err
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, ev := range events {
			if err := enc.Encode(exportedEvent{ID: ev.ID, AssetEvent: ev}); err != nil {
				return blob.Info{}, fmt.Errorf("encode event %s: %w", ev.ID, err)
			}
		}
		scope := assetID
		if scope == "" {
			scope = "all"
		}
		key := path.Join("exports", tenant, fmt.Sprintf("events-%s-%d.jsonl", scope, e.opts.clock.Now().Unix()))
		info, err := e.blobs.Put(ctx, key, &buf, blob.PutOptions{
			ContentType: "application/x-ndjson",
			Metadata:    map[string]string{"tenant": tenant, "events": strconv.Itoa(len(events))},
		})
		if err != nil {
			return blob.Info{}, fmt.Errorf("export events: %w", err)
		}
		e.opts.logger.Info("audit trail exported",
			zap.String("tenant", tenant),
			zap.String("key", info.Key),
			zap.Int("events", len(events)))
		return info, nil
	})
}

// exportedEvent adds the event id, which AssetEvent keeps out of its body.
type exportedEvent struct {
	ID string `json:"id"`
	domain.AssetEvent
}
