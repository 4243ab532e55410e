package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Payment tracks a provider-side payment intent. OrderID is the
// correlation key we mint before calling the provider; ExternalID is
// the provider's own id, learned from the create response or the
// first webhook.
type Payment struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	ProcurementID   *uuid.UUID            `gorm:"column:procurement_id;type:uuid;index"`
	OrderID         string                `gorm:"column:order_id;not null;uniqueIndex"`
	ExternalID      *string               `gorm:"column:external_id;uniqueIndex"`
	Provider        enums.PaymentProvider `gorm:"column:provider;type:payment_provider_enum;not null"`
	Type            enums.PaymentType     `gorm:"column:type;type:payment_type_enum;not null"`
	Status          enums.PaymentStatus   `gorm:"column:status;type:payment_status_enum;not null;default:'pending'"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	ConfirmationURL *string               `gorm:"column:confirmation_url"`
	FailureReason   *string               `gorm:"column:failure_reason"`
	SucceededAt     *time.Time            `gorm:"column:succeeded_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
