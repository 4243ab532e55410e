package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Participant links a user to a procurement. Leaving is a soft delete:
// IsActive flips to false and the row stays for history. A partial
// unique index guarantees at most one active row per (procurement, user).
type Participant struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProcurementID uuid.UUID               `gorm:"column:procurement_id;type:uuid;not null;index"`
	UserID        uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Quantity      int                     `gorm:"column:quantity;not null;default:1"`
	Contribution  decimal.Decimal         `gorm:"column:contribution;type:numeric(12,2);not null"`
	Status        enums.ParticipantStatus `gorm:"column:status;type:participant_status_enum;not null;default:'pending'"`
	Notes         string                  `gorm:"column:notes;not null;default:''"`
	IsActive      bool                    `gorm:"column:is_active;not null;default:true"`
	JoinedAt      time.Time               `gorm:"column:joined_at;autoCreateTime"`
	LeftAt        *time.Time              `gorm:"column:left_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
