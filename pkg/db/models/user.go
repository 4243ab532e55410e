package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// User represents the canonical identity entity. Users arrive via
// messenger adapters, keyed by platform plus external id.
type User struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Platform   enums.Platform  `gorm:"column:platform;type:platform_enum;not null;uniqueIndex:idx_users_platform_external"`
	ExternalID string          `gorm:"column:external_id;not null;uniqueIndex:idx_users_platform_external"`
	Username   *string         `gorm:"column:username"`
	FirstName  string          `gorm:"column:first_name;not null;default:''"`
	LastName   string          `gorm:"column:last_name;not null;default:''"`
	Role       enums.UserRole  `gorm:"column:role;type:user_role_enum;not null;default:'member'"`
	Balance    decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
