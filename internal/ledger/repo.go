package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

// ListFilter narrows transaction history queries.
type ListFilter struct {
	Type          *enums.TransactionType
	ProcurementID *uuid.UUID
}

// TypeTotal is one row of the per-type roll-up.
type TypeTotal struct {
	Type  enums.TransactionType `json:"type"`
	Total decimal.Decimal       `json:"total"`
	Count int64                 `json:"count"`
}

// Repository manages persistence for ledger transactions. Entries are
// append-only: there is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	ExistsForPayment(ctx context.Context, paymentID uuid.UUID, txType enums.TransactionType) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, p pagination.Params) ([]models.Transaction, int64, error)
	SumByType(ctx context.Context, userID uuid.UUID) ([]TypeTotal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ExistsForPayment(ctx context.Context, paymentID uuid.UUID, txType enums.TransactionType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("payment_id = ? AND type = ?", paymentID, txType).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, p pagination.Params) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("user_id = ?", userID)
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ProcurementID != nil {
		query = query.Where("procurement_id = ?", *filter.ProcurementID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at DESC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *repository) SumByType(ctx context.Context, userID uuid.UUID) ([]TypeTotal, error) {
	var totals []TypeTotal
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("type").
		Order("type ASC").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
