package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// TransactionDTO is the transport shape of one ledger entry.
type TransactionDTO struct {
	ID            uuid.UUID             `json:"id"`
	UserID        uuid.UUID             `json:"user_id"`
	PaymentID     *uuid.UUID            `json:"payment_id,omitempty"`
	ProcurementID *uuid.UUID            `json:"procurement_id,omitempty"`
	Type          enums.TransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	Description   string                `json:"description,omitempty"`
	Metadata      json.RawMessage       `json:"metadata,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// SummaryDTO is the per-user roll-up of balance and type totals.
type SummaryDTO struct {
	UserID  uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	ByType  []TypeTotal     `json:"by_type"`
}

func FromModel(t *models.Transaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	return &TransactionDTO{
		ID:            t.ID,
		UserID:        t.UserID,
		PaymentID:     t.PaymentID,
		ProcurementID: t.ProcurementID,
		Type:          t.Type,
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt,
	}
}
