package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateProcurement OutboxAggregateType = "procurement"
	AggregateParticipant OutboxAggregateType = "participant"
	AggregateTransaction OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateProcurement,
	AggregateParticipant,
	AggregateTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentSucceeded    OutboxEventType = "payment.succeeded"
	EventPaymentCancelled    OutboxEventType = "payment.cancelled"
	EventPaymentRefunded     OutboxEventType = "payment.refunded"
	EventProcurementStopped  OutboxEventType = "procurement.stopped"
	EventProcurementStatus   OutboxEventType = "procurement.status_changed"
	EventParticipantJoined   OutboxEventType = "participant.joined"
	EventParticipantLeft     OutboxEventType = "participant.left"
	EventParticipantCharged  OutboxEventType = "participant.charged"
	EventParticipantRefunded OutboxEventType = "participant.refunded"
	EventBonusGranted        OutboxEventType = "bonus.granted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentSucceeded,
	EventPaymentCancelled,
	EventPaymentRefunded,
	EventProcurementStopped,
	EventProcurementStatus,
	EventParticipantJoined,
	EventParticipantLeft,
	EventParticipantCharged,
	EventParticipantRefunded,
	EventBonusGranted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
