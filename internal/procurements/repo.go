package procurements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

// ListFilter narrows procurement list queries. Search matches title and
// city case-insensitively.
type ListFilter struct {
	Status      *enums.ProcurementStatus
	CategoryID  *uuid.UUID
	OrganizerID *uuid.UUID
	City        string
	Search      string
	ActiveOnly  bool
}

// Repository manages persistence for procurements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, procurement *models.Procurement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Procurement, error)
	// LockByID loads a procurement under FOR UPDATE; membership changes
	// serialize on this lock.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Procurement, error)
	Update(ctx context.Context, procurement *models.Procurement) error
	List(ctx context.Context, filter ListFilter, p pagination.Params) ([]models.Procurement, int64, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Procurement, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Procurement, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.ProcurementStatus, stoppedAt *time.Time) error
	SetCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a procurements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, procurement *models.Procurement) error {
	return r.db.WithContext(ctx).Create(procurement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Procurement, error) {
	var procurement models.Procurement
	if err := r.db.WithContext(ctx).First(&procurement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &procurement, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Procurement, error) {
	var procurement models.Procurement
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		First(&procurement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &procurement, nil
}

func (r *repository) Update(ctx context.Context, procurement *models.Procurement) error {
	return r.db.WithContext(ctx).Save(procurement).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]models.Procurement, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Procurement{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ActiveOnly {
		query = query.Where("status = ?", enums.ProcurementStatusActive)
	}
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.OrganizerID != nil {
		query = query.Where("organizer_id = ?", *filter.OrganizerID)
	}
	if filter.City != "" {
		query = query.Where("LOWER(city) = LOWER(?)", filter.City)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("title LIKE ? OR city LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var procurements []models.Procurement
	if err := query.
		Order("created_at DESC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&procurements).Error; err != nil {
		return nil, 0, err
	}
	return procurements, total, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]models.Procurement, error) {
	var procurements []models.Procurement
	if err := r.db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Find(&procurements).Error; err != nil {
		return nil, err
	}
	return procurements, nil
}

func (r *repository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Procurement, error) {
	var procurements []models.Procurement
	if err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.procurement_id = procurements.id").
		Where("participants.user_id = ? AND participants.is_active = ?", userID, true).
		Order("procurements.created_at DESC").
		Find(&procurements).Error; err != nil {
		return nil, err
	}
	return procurements, nil
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.ProcurementStatus, stoppedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if stoppedAt != nil {
		updates["stopped_at"] = *stoppedAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Procurement{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) SetCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Procurement{}).
		Where("id = ?", id).
		UpdateColumn("current_amount", amount).Error
}
