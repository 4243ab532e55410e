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
)

// ParticipantsRepository manages persistence for procurement
// participants. Leaving never deletes rows: is_active flips off and the
// partial unique index keeps one active row per (procurement, user).
type ParticipantsRepository interface {
	WithTx(tx *gorm.DB) ParticipantsRepository
	Create(ctx context.Context, participant *models.Participant) error
	FindActive(ctx context.Context, procurementID, userID uuid.UUID) (*models.Participant, error)
	LockActive(ctx context.Context, procurementID, userID uuid.UUID) (*models.Participant, error)
	ListActive(ctx context.Context, procurementID uuid.UUID) ([]models.Participant, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Participant, error)
	Deactivate(ctx context.Context, id uuid.UUID, leftAt time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status enums.ParticipantStatus) error
	// SumActiveContributions recomputes the roll-up from scratch.
	SumActiveContributions(ctx context.Context, procurementID uuid.UUID) (decimal.Decimal, error)
	CountActive(ctx context.Context, procurementID uuid.UUID) (int64, error)
}

type participantsRepository struct {
	db *gorm.DB
}

// NewParticipantsRepository returns a participants repository bound to
// the provided database.
func NewParticipantsRepository(db *gorm.DB) ParticipantsRepository {
	return &participantsRepository{db: db}
}

func (r *participantsRepository) WithTx(tx *gorm.DB) ParticipantsRepository {
	if tx == nil {
		return r
	}
	return &participantsRepository{db: tx}
}

func (r *participantsRepository) Create(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *participantsRepository) FindActive(ctx context.Context, procurementID, userID uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	if err := r.db.WithContext(ctx).
		Where("procurement_id = ? AND user_id = ? AND is_active = ?", procurementID, userID, true).
		First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantsRepository) LockActive(ctx context.Context, procurementID, userID uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("procurement_id = ? AND user_id = ? AND is_active = ?", procurementID, userID, true).
		First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantsRepository) ListActive(ctx context.Context, procurementID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	if err := r.db.WithContext(ctx).
		Where("procurement_id = ? AND is_active = ?", procurementID, true).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantsRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantsRepository) Deactivate(ctx context.Context, id uuid.UUID, leftAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active": false,
			"status":    enums.ParticipantStatusCancelled,
			"left_at":   leftAt,
		}).Error
}

func (r *participantsRepository) SetStatus(ctx context.Context, id uuid.UUID, status enums.ParticipantStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}

func (r *participantsRepository) SumActiveContributions(ctx context.Context, procurementID uuid.UUID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Select("COALESCE(SUM(contribution), 0) AS total").
		Where("procurement_id = ? AND is_active = ?", procurementID, true).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *participantsRepository) CountActive(ctx context.Context, procurementID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("procurement_id = ? AND is_active = ?", procurementID, true).
		Count(&count).Error
	return count, err
}
