package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// PaymentDTO is the transport shape of a payment.
type PaymentDTO struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	ProcurementID   *uuid.UUID            `json:"procurement_id,omitempty"`
	OrderID         string                `json:"order_id"`
	ExternalID      *string               `json:"external_id,omitempty"`
	Provider        enums.PaymentProvider `json:"provider"`
	Type            enums.PaymentType     `json:"type"`
	Status          enums.PaymentStatus   `json:"status"`
	Amount          decimal.Decimal       `json:"amount"`
	ConfirmationURL *string               `json:"confirmation_url,omitempty"`
	FailureReason   *string               `json:"failure_reason,omitempty"`
	SucceededAt     *time.Time            `json:"succeeded_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func FromModel(p *models.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:              p.ID,
		UserID:          p.UserID,
		ProcurementID:   p.ProcurementID,
		OrderID:         p.OrderID,
		ExternalID:      p.ExternalID,
		Provider:        p.Provider,
		Type:            p.Type,
		Status:          p.Status,
		Amount:          p.Amount,
		ConfirmationURL: p.ConfirmationURL,
		FailureReason:   p.FailureReason,
		SucceededAt:     p.SucceededAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
