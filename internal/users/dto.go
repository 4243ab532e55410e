package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// UserDTO is the transport shape of a user.
type UserDTO struct {
	ID         uuid.UUID       `json:"id"`
	Platform   enums.Platform  `json:"platform"`
	ExternalID string          `json:"external_id"`
	Username   *string         `json:"username,omitempty"`
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Role       enums.UserRole  `json:"role"`
	Balance    decimal.Decimal `json:"balance"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// IdentifyInput carries the adapter-provided identity used to resolve
// or register a user.
type IdentifyInput struct {
	Platform   enums.Platform
	ExternalID string
	Username   *string
	FirstName  string
	LastName   string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:         u.ID,
		Platform:   u.Platform,
		ExternalID: u.ExternalID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		Balance:    u.Balance,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (in IdentifyInput) toModel() *models.User {
	return &models.User{
		Platform:   in.Platform,
		ExternalID: in.ExternalID,
		Username:   in.Username,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Role:       enums.UserRoleMember,
		Balance:    decimal.Zero,
		IsActive:   true,
	}
}
