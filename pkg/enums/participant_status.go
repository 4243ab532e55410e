package enums

import "fmt"

// ParticipantStatus tracks a participant inside a procurement.
type ParticipantStatus string

const (
	ParticipantStatusPending   ParticipantStatus = "pending"
	ParticipantStatusConfirmed ParticipantStatus = "confirmed"
	ParticipantStatusPaid      ParticipantStatus = "paid"
	ParticipantStatusDelivered ParticipantStatus = "delivered"
	ParticipantStatusCancelled ParticipantStatus = "cancelled"
)

var validParticipantStatuses = []ParticipantStatus{
	ParticipantStatusPending,
	ParticipantStatusConfirmed,
	ParticipantStatusPaid,
	ParticipantStatusDelivered,
	ParticipantStatusCancelled,
}

// IsValid reports whether the value is a known ParticipantStatus.
func (p ParticipantStatus) IsValid() bool {
	for _, candidate := range validParticipantStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseParticipantStatus converts raw input into a ParticipantStatus.
func ParseParticipantStatus(value string) (ParticipantStatus, error) {
	for _, candidate := range validParticipantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid participant status %q", value)
}
