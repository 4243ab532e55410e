package procurements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// ProcurementDTO is the transport shape of a procurement. Progress,
// DaysLeft and ParticipantCount are derived on read and never stored.
type ProcurementDTO struct {
	ID               uuid.UUID               `json:"id"`
	OrganizerID      uuid.UUID               `json:"organizer_id"`
	SupplierID       *uuid.UUID              `json:"supplier_id,omitempty"`
	CategoryID       *uuid.UUID              `json:"category_id,omitempty"`
	Title            string                  `json:"title"`
	Description      string                  `json:"description,omitempty"`
	City             string                  `json:"city,omitempty"`
	Status           enums.ProcurementStatus `json:"status"`
	TargetAmount     decimal.Decimal         `json:"target_amount"`
	Unit             string                  `json:"unit"`
	PricePerUnit     *decimal.Decimal        `json:"price_per_unit,omitempty"`
	CurrentAmount    decimal.Decimal         `json:"current_amount"`
	StopAtAmount     *decimal.Decimal        `json:"stop_at_amount,omitempty"`
	Deadline         *time.Time              `json:"deadline,omitempty"`
	PaymentDeadline  *time.Time              `json:"payment_deadline,omitempty"`
	IsFeatured       bool                    `json:"is_featured"`
	StoppedAt        *time.Time              `json:"stopped_at,omitempty"`
	Progress         *float64                `json:"progress,omitempty"`
	DaysLeft         *int                    `json:"days_left,omitempty"`
	ParticipantCount int64                   `json:"participant_count"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// UserProcurementDTO decorates a procurement with the caller's own
// pledge.
type UserProcurementDTO struct {
	ProcurementDTO
	MyQuantity int             `json:"my_quantity"`
	MyAmount   decimal.Decimal `json:"my_amount"`
}

// UserProcurementsDTO splits the caller's procurements by relation.
type UserProcurementsDTO struct {
	Organized     []ProcurementDTO     `json:"organized"`
	Participating []UserProcurementDTO `json:"participating"`
}

// ParticipantDTO is the transport shape of a pledge.
type ParticipantDTO struct {
	ID            uuid.UUID               `json:"id"`
	ProcurementID uuid.UUID               `json:"procurement_id"`
	UserID        uuid.UUID               `json:"user_id"`
	Quantity      int                     `json:"quantity"`
	Contribution  decimal.Decimal         `json:"contribution"`
	Status        enums.ParticipantStatus `json:"status"`
	Notes         string                  `json:"notes,omitempty"`
	IsActive      bool                    `json:"is_active"`
	JoinedAt      time.Time               `json:"joined_at"`
	LeftAt        *time.Time              `json:"left_at,omitempty"`
}

// CreateInput holds the data required to open a procurement.
// PricePerUnit is optional: without it participants pledge a free-form
// amount on join.
type CreateInput struct {
	OrganizerID     uuid.UUID
	SupplierID      *uuid.UUID
	CategoryID      *uuid.UUID
	Title           string
	Description     string
	City            string
	TargetAmount    decimal.Decimal
	Unit            string
	PricePerUnit    *decimal.Decimal
	StopAtAmount    *decimal.Decimal
	Deadline        *time.Time
	PaymentDeadline *time.Time
	IsFeatured      bool
}

func FromModel(p *models.Procurement, participantCount int64, now time.Time) *ProcurementDTO {
	if p == nil {
		return nil
	}
	dto := &ProcurementDTO{
		ID:               p.ID,
		OrganizerID:      p.OrganizerID,
		SupplierID:       p.SupplierID,
		CategoryID:       p.CategoryID,
		Title:            p.Title,
		Description:      p.Description,
		City:             p.City,
		Status:           p.Status,
		TargetAmount:     p.TargetAmount,
		Unit:             p.Unit,
		CurrentAmount:    p.CurrentAmount,
		Deadline:         p.Deadline,
		PaymentDeadline:  p.PaymentDeadline,
		IsFeatured:       p.IsFeatured,
		StoppedAt:        p.StoppedAt,
		ParticipantCount: participantCount,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.PricePerUnit.Valid {
		price := p.PricePerUnit.Decimal
		dto.PricePerUnit = &price
	}
	if p.StopAtAmount.Valid {
		stopAt := p.StopAtAmount.Decimal
		dto.StopAtAmount = &stopAt
	}
	// Progress tracks the goal, not the cutoff.
	if p.TargetAmount.IsPositive() {
		ratio, _ := p.CurrentAmount.Div(p.TargetAmount).Mul(decimal.NewFromInt(100)).Float64()
		if ratio > 100 {
			ratio = 100
		}
		dto.Progress = &ratio
	}
	if p.Deadline != nil {
		days := 0
		if remaining := p.Deadline.Sub(now); remaining > 0 {
			days = int(remaining.Hours() / 24)
		}
		dto.DaysLeft = &days
	}
	return dto
}

func ParticipantFromModel(p *models.Participant) *ParticipantDTO {
	if p == nil {
		return nil
	}
	return &ParticipantDTO{
		ID:            p.ID,
		ProcurementID: p.ProcurementID,
		UserID:        p.UserID,
		Quantity:      p.Quantity,
		Contribution:  p.Contribution,
		Status:        p.Status,
		Notes:         p.Notes,
		IsActive:      p.IsActive,
		JoinedAt:      p.JoinedAt,
		LeftAt:        p.LeftAt,
	}
}
