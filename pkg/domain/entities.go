// Package domain defines the persistent entities, lifecycle tables, value
// types and error taxonomy used by assetflow.
package domain

import "time"

// ItemType distinguishes individually tracked assets from stock-tracked
// consumables. It is fixed when the item is created.
type ItemType string

// Supported item types.
const (
	ItemTypeAsset      ItemType = "ASSET"
	ItemTypeConsumable ItemType = "CONSUMABLE"
)

// AvailableStatus is the lifecycle state of a physical asset.
type AvailableStatus string

// Physical asset lifecycle states.
const (
	StatusAwaitingDeploy AvailableStatus = "AWAITING_DEPLOY"
	StatusAvailable      AvailableStatus = "AVAILABLE"
	StatusReserved       AvailableStatus = "RESERVED"
	StatusInUse          AvailableStatus = "IN_USE"
	StatusAwaitingReturn AvailableStatus = "AWAITING_RETURN"
	StatusMaintenance    AvailableStatus = "MAINTENANCE"
	StatusRepairRequired AvailableStatus = "REPAIR_REQUIRED"
	StatusOutForService  AvailableStatus = "OUT_FOR_SERVICE"
	StatusRetired        AvailableStatus = "RETIRED"
	StatusDisposed       AvailableStatus = "DISPOSED"
)

// Condition grades the physical state of an item.
type Condition string

// Item conditions, best to worst.
const (
	ConditionNew     Condition = "NEW"
	ConditionLikeNew Condition = "LIKE_NEW"
	ConditionGood    Condition = "GOOD"
	ConditionFair    Condition = "FAIR"
	ConditionPoor    Condition = "POOR"
	ConditionDamaged Condition = "DAMAGED"
	ConditionScrap   Condition = "SCRAP"
)

// StockStatus is derived from a consumable's stock level. It is never
// accepted from callers; see DeriveStockStatus.
type StockStatus string

// Consumable stock states.
const (
	StockInStock    StockStatus = "IN_STOCK"
	StockLow        StockStatus = "LOW_STOCK"
	StockOutOfStock StockStatus = "OUT_OF_STOCK"
)

// RequestStatus is the state of an asset request.
type RequestStatus string

// Request workflow states.
const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestDenied    RequestStatus = "DENIED"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestFulfilled RequestStatus = "FULFILLED"
)

// Decision is an admin verdict on a pending request.
type Decision string

// Admin decisions.
const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
)

// EventType classifies an audit event.
type EventType string

// Audit event types.
const (
	EventCreated          EventType = "CREATED"
	EventStatusChanged    EventType = "STATUS_CHANGED"
	EventConditionChanged EventType = "CONDITION_CHANGED"
	EventAssigned         EventType = "ASSIGNED"
	EventReturned         EventType = "RETURNED"
	EventLocationChanged  EventType = "LOCATION_CHANGED"
	EventRetired          EventType = "RETIRED"
	EventDisposed         EventType = "DISPOSED"
	EventStockAdjusted    EventType = "STOCK_ADJUSTED"
)

// Asset is a physical or consumable item.
type Asset struct {
	ID               string          `json:"-"`
	Version          int64           `json:"-"`
	Name             string          `json:"name"`
	ItemType         ItemType        `json:"item_type"`
	AvailableStatus  AvailableStatus `json:"available_status,omitempty"`
	CurrentCondition Condition       `json:"current_condition"`
	CustodianStaffID *string         `json:"custodian_staff_id"`
	Location         string          `json:"location,omitempty"`
	CurrentStock     int             `json:"current_stock"`
	MinimumStock     int             `json:"minimum_stock"`
	Status           StockStatus     `json:"status,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsConsumable reports whether the item is stock tracked.
func (a Asset) IsConsumable() bool { return a.ItemType == ItemTypeConsumable }

// Custodian returns the custodian staff id or the empty string.
func (a Asset) Custodian() string {
	if a.CustodianStaffID == nil {
		return ""
	}
	return *a.CustodianStaffID
}

// AssetRequest asks for one or more items on behalf of a staff member.
type AssetRequest struct {
	ID                 string        `json:"-"`
	Version            int64         `json:"-"`
	RequesterStaffID   string        `json:"requester_staff_id"`
	RequestedItems     []string      `json:"requested_items"`
	Status             RequestStatus `json:"status"`
	IssueDate          time.Time     `json:"issue_date"`
	ExpectedReturnDate time.Time     `json:"expected_return_date"`
	Purpose            string        `json:"purpose"`
	DecidedBy          string        `json:"decided_by,omitempty"`
	DecidedAt          *time.Time    `json:"decided_at,omitempty"`
	CancelledBy        string        `json:"cancelled_by,omitempty"`
	CancelReason       string        `json:"cancel_reason,omitempty"`
	ResubmittedFrom    string        `json:"resubmitted_from,omitempty"`
	ReservedItems      []string      `json:"reserved_items,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Quantities folds RequestedItems into per-item counts, preserving the order
// in which each id first appears.
func (r AssetRequest) Quantities() ([]string, map[string]int) {
	counts := make(map[string]int, len(r.RequestedItems))
	var order []string
	for _, id := range r.RequestedItems {
		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}
		counts[id]++
	}
	return order, counts
}

// AssetIssue records a single physical hand-off. Only the acknowledgement
// fields change after creation.
type AssetIssue struct {
	ID                      string     `json:"-"`
	Version                 int64      `json:"-"`
	RequestID               string     `json:"request_id"`
	AssetID                 string     `json:"asset_id"`
	CustodianStaffID        string     `json:"custodian_staff_id"`
	IssuedBy                string     `json:"issued_by"`
	PreIssueCondition       Condition  `json:"pre_issue_condition"`
	Accessories             []string   `json:"accessories"`
	Notes                   string     `json:"notes,omitempty"`
	DueDate                 time.Time  `json:"due_date"`
	IssuedAt                time.Time  `json:"issued_at"`
	AcknowledgedByRequester bool       `json:"acknowledged_by_requester"`
	AcknowledgedAt          *time.Time `json:"acknowledged_at,omitempty"`
}

// AssetEvent is an append-only audit record.
type AssetEvent struct {
	ID           string    `json:"-"`
	AssetID      string    `json:"asset_id"`
	EventType    EventType `json:"event_type"`
	FromValue    string    `json:"from_value"`
	ToValue      string    `json:"to_value"`
	ActorStaffID string    `json:"actor_staff_id"`
	Note         string    `json:"note,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
