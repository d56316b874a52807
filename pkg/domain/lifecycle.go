package domain

import "sort"

// assetTransitions lists, for each physical asset state, the states it may
// move to in a single step. DISPOSED has no outgoing transitions.
var assetTransitions = map[AvailableStatus]map[AvailableStatus]struct{}{
	StatusAwaitingDeploy: toSet(StatusAvailable),
	StatusAvailable:      toSet(StatusReserved, StatusInUse, StatusMaintenance, StatusRetired),
	StatusReserved:       toSet(StatusAvailable, StatusInUse),
	StatusInUse:          toSet(StatusAvailable, StatusAwaitingReturn, StatusRepairRequired),
	StatusAwaitingReturn: toSet(StatusAvailable, StatusRepairRequired),
	StatusMaintenance:    toSet(StatusAvailable, StatusOutForService),
	StatusRepairRequired: toSet(StatusMaintenance, StatusRetired),
	StatusOutForService:  toSet(StatusMaintenance, StatusAvailable),
	StatusRetired:        toSet(StatusDisposed),
	StatusDisposed:       {},
}

var requestTransitions = map[RequestStatus]map[RequestStatus]struct{}{
	RequestPending:   toSet(RequestApproved, RequestDenied, RequestCancelled, RequestFulfilled),
	RequestApproved:  toSet(RequestFulfilled, RequestCancelled),
	RequestDenied:    {},
	RequestCancelled: {},
	RequestFulfilled: {},
}

var conditions = toSet(
	ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair,
	ConditionPoor, ConditionDamaged, ConditionScrap,
)

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ValidAvailableStatus reports whether s is a known physical asset state.
func ValidAvailableStatus(s AvailableStatus) bool {
	_, ok := assetTransitions[s]
	return ok
}

// ValidCondition reports whether c is a known condition grade.
func ValidCondition(c Condition) bool {
	_, ok := conditions[c]
	return ok
}

// CanTransition reports whether a physical asset may move from one state to
// another in a single step.
func CanTransition(from, to AvailableStatus) bool {
	allowed, ok := assetTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// AllowedTransitions returns the sorted set of states reachable from s.
func AllowedTransitions(s AvailableStatus) []AvailableStatus {
	out := make([]AvailableStatus, 0, len(assetTransitions[s]))
	for to := range assetTransitions[s] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AvailableStatuses returns every physical asset state in sorted order.
func AvailableStatuses() []AvailableStatus {
	out := make([]AvailableStatus, 0, len(assetTransitions))
	for s := range assetTransitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminalStatus reports whether no transition leaves s.
func IsTerminalStatus(s AvailableStatus) bool {
	allowed, ok := assetTransitions[s]
	return ok && len(allowed) == 0
}

// CanTransitionRequest reports whether a request may move between states.
func CanTransitionRequest(from, to RequestStatus) bool {
	allowed, ok := requestTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminalRequest reports whether the request status admits no transition.
func IsTerminalRequest(s RequestStatus) bool {
	allowed, ok := requestTransitions[s]
	return ok && len(allowed) == 0
}

// IsIssuableStatus reports whether a physical asset in state s may be handed
// out.
func IsIssuableStatus(s AvailableStatus) bool {
	return s == StatusAvailable || s == StatusReserved
}

// DeriveStockStatus computes a consumable's status from its stock level.
// Every stock write goes through this function.
func DeriveStockStatus(stock, minimum int) StockStatus {
	switch {
	case stock <= 0:
		return StockOutOfStock
	case stock <= minimum:
		return StockLow
	default:
		return StockInStock
	}
}
