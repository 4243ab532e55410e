package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Transaction is an immutable ledger entry. Amount is signed: credits
// are positive, debits negative. BalanceAfter snapshots the user
// balance at commit time so history never needs replaying.
type Transaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	PaymentID     *uuid.UUID            `gorm:"column:payment_id;type:uuid;index"`
	ProcurementID *uuid.UUID            `gorm:"column:procurement_id;type:uuid;index"`
	Type          enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Description   string                `gorm:"column:description;not null;default:''"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
