package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Use errors.Is to classify.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotIssuable       = errors.New("asset not issuable")
	ErrNegativeStock     = errors.New("stock would become negative")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMissingReason     = errors.New("reason required")
	ErrNotCancellable    = errors.New("request not cancellable")
	ErrNotFound          = errors.New("not found")
	ErrNotAConsumable    = errors.New("item is not a consumable")
	ErrNotAnAsset        = errors.New("item is not a physical asset")
	ErrNotRequester      = errors.New("actor is not the requester")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrVersionConflict   = errors.New("version conflict")
	ErrMissingActor      = errors.New("actor required")
	ErrMissingTenant     = errors.New("tenant required")
)

// NotFoundError identifies the missing document.
type NotFoundError struct {
	Collection Collection
	ID         string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

// Unwrap allows errors.Is(err, ErrNotFound).
func (e NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError describes a rejected state change.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot move %s %s from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

// StockError describes a stock shortfall on one consumable line.
type StockError struct {
	AssetID   string
	Available int
	Requested int
	kind      error
}

// NewNegativeStockError reports that applying delta to available goes below zero.
func NewNegativeStockError(assetID string, available, delta int) StockError {
	return StockError{AssetID: assetID, Available: available, Requested: -delta, kind: ErrNegativeStock}
}

// NewInsufficientStockError reports an unsatisfiable approval line.
func NewInsufficientStockError(assetID string, available, requested int) StockError {
	return StockError{AssetID: assetID, Available: available, Requested: requested, kind: ErrInsufficientStock}
}

func (e StockError) Error() string {
	return fmt.Sprintf("%v: %s has %d, needs %d", e.kind, e.AssetID, e.Available, e.Requested)
}

func (e StockError) Unwrap() error { return e.kind }

// Describe renders an actionable message for each error kind. Unknown errors
// fall through to their own text.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Nothing matches that id (%v). Check the id and tenant and try again.", err)
	case errors.Is(err, ErrInvalidTransition):
		return fmt.Sprintf("That action is not allowed from the current state (%v). Pick a different action.", err)
	case errors.Is(err, ErrNotIssuable):
		return fmt.Sprintf("The asset cannot be issued now (%v). It must be AVAILABLE or RESERVED and have a custodian.", err)
	case errors.Is(err, ErrNegativeStock):
		return fmt.Sprintf("The adjustment would take stock below zero (%v). Use a smaller quantity or replenish first.", err)
	case errors.Is(err, ErrInsufficientStock):
		return fmt.Sprintf("Not enough stock to approve this request (%v). Replenish stock or deny the request.", err)
	case errors.Is(err, ErrMissingReason):
		return "A reason is required for this action. Provide one and retry."
	case errors.Is(err, ErrNotCancellable):
		return fmt.Sprintf("Only PENDING or APPROVED requests can be cancelled (%v).", err)
	case errors.Is(err, ErrNotAConsumable):
		return fmt.Sprintf("Stock adjustments apply only to consumables (%v).", err)
	case errors.Is(err, ErrNotAnAsset):
		return fmt.Sprintf("Status changes apply only to physical assets (%v).", err)
	case errors.Is(err, ErrNotRequester):
		return "Only the staff member who made the request can do this."
	case errors.Is(err, ErrInvalidRequest):
		return fmt.Sprintf("The request is malformed (%v). Fix the input and resubmit.", err)
	case errors.Is(err, ErrVersionConflict):
		return "The record changed while you were working on it. Reload and retry."
	case errors.Is(err, ErrMissingActor):
		return "An acting staff id is required for this action."
	case errors.Is(err, ErrMissingTenant):
		return "A tenant (organization) id is required."
	default:
		return err.Error()
	}
}
