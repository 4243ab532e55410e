package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Procurement is a group purchase. CurrentAmount is a derived roll-up
// of active participant contributions and is recomputed in full on
// every membership change, never incremented. TargetAmount is the goal
// the progress read model is computed against; StopAtAmount is the
// optional hard cutoff at which joining closes.
type Procurement struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID     uuid.UUID               `gorm:"column:organizer_id;type:uuid;not null;index"`
	SupplierID      *uuid.UUID              `gorm:"column:supplier_id;type:uuid;index"`
	CategoryID      *uuid.UUID              `gorm:"column:category_id;type:uuid;index"`
	Title           string                  `gorm:"column:title;not null"`
	Description     string                  `gorm:"column:description;not null;default:''"`
	City            string                  `gorm:"column:city;not null;default:''"`
	Status          enums.ProcurementStatus `gorm:"column:status;type:procurement_status_enum;not null;default:'draft'"`
	TargetAmount    decimal.Decimal         `gorm:"column:target_amount;type:numeric(12,2);not null"`
	Unit            string                  `gorm:"column:unit;not null;default:'units'"`
	PricePerUnit    decimal.NullDecimal     `gorm:"column:price_per_unit;type:numeric(10,2)"`
	CurrentAmount   decimal.Decimal         `gorm:"column:current_amount;type:numeric(12,2);not null;default:0"`
	StopAtAmount    decimal.NullDecimal     `gorm:"column:stop_at_amount;type:numeric(12,2)"`
	Deadline        *time.Time              `gorm:"column:deadline"`
	PaymentDeadline *time.Time              `gorm:"column:payment_deadline"`
	IsFeatured      bool                    `gorm:"column:is_featured;not null;default:false"`
	StoppedAt       *time.Time              `gorm:"column:stopped_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
