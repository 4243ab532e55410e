package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// PaymentEvent notifies adapters about a terminal payment status.
type PaymentEvent struct {
	PaymentID uuid.UUID             `json:"paymentId"`
	UserID    uuid.UUID             `json:"userId"`
	OrderID   string                `json:"orderId"`
	Provider  enums.PaymentProvider `json:"provider"`
	Status    enums.PaymentStatus   `json:"status"`
	Amount    decimal.Decimal       `json:"amount"`
}

// ProcurementStoppedEvent fires when a procurement crosses its stop
// threshold or an organizer stops it manually.
type ProcurementStoppedEvent struct {
	ProcurementID uuid.UUID       `json:"procurementId"`
	OrganizerID   uuid.UUID       `json:"organizerId"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Reason        string          `json:"reason"`
}

// ProcurementStatusEvent fires on every organizer-driven status change.
type ProcurementStatusEvent struct {
	ProcurementID uuid.UUID               `json:"procurementId"`
	From          enums.ProcurementStatus `json:"from"`
	To            enums.ProcurementStatus `json:"to"`
}

// ParticipantEvent covers join, leave, charge and refund notifications.
type ParticipantEvent struct {
	ParticipantID uuid.UUID       `json:"participantId"`
	ProcurementID uuid.UUID       `json:"procurementId"`
	UserID        uuid.UUID       `json:"userId"`
	Quantity      int             `json:"quantity"`
	Contribution  decimal.Decimal `json:"contribution"`
}

// BonusGrantedEvent fires when an admin credits a user balance.
type BonusGrantedEvent struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}
