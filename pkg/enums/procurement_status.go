package enums

import "fmt"

// ProcurementStatus tracks the lifecycle of a group procurement.
type ProcurementStatus string

const (
	ProcurementStatusDraft     ProcurementStatus = "draft"
	ProcurementStatusActive    ProcurementStatus = "active"
	ProcurementStatusStopped   ProcurementStatus = "stopped"
	ProcurementStatusPayment   ProcurementStatus = "payment"
	ProcurementStatusCompleted ProcurementStatus = "completed"
	ProcurementStatusCancelled ProcurementStatus = "cancelled"
)

var validProcurementStatuses = []ProcurementStatus{
	ProcurementStatusDraft,
	ProcurementStatusActive,
	ProcurementStatusStopped,
	ProcurementStatusPayment,
	ProcurementStatusCompleted,
	ProcurementStatusCancelled,
}

// Allowed status transitions. Cancellation is reachable from every
// non-terminal status.
var procurementTransitions = map[ProcurementStatus][]ProcurementStatus{
	ProcurementStatusDraft:   {ProcurementStatusActive, ProcurementStatusCancelled},
	ProcurementStatusActive:  {ProcurementStatusStopped, ProcurementStatusCancelled},
	ProcurementStatusStopped: {ProcurementStatusPayment, ProcurementStatusActive, ProcurementStatusCancelled},
	ProcurementStatusPayment: {ProcurementStatusCompleted, ProcurementStatusCancelled},
}

// String implements fmt.Stringer.
func (p ProcurementStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProcurementStatus.
func (p ProcurementStatus) IsValid() bool {
	for _, candidate := range validProcurementStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the procurement can no longer change status.
func (p ProcurementStatus) IsTerminal() bool {
	return p == ProcurementStatusCompleted || p == ProcurementStatusCancelled
}

// AcceptsJoins reports whether participants may join or leave.
func (p ProcurementStatus) AcceptsJoins() bool {
	return p == ProcurementStatusActive
}

// CanTransitionTo reports whether the transition is allowed.
func (p ProcurementStatus) CanTransitionTo(next ProcurementStatus) bool {
	for _, candidate := range procurementTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseProcurementStatus converts raw input into a ProcurementStatus.
func ParseProcurementStatus(value string) (ProcurementStatus, error) {
	for _, candidate := range validProcurementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid procurement status %q", value)
}
