package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/money"
	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

// ErrInsufficientFunds signals a debit that would take the balance
// below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ApplyInput describes one balance movement. Amount is a positive
// magnitude; the entry type decides the sign.
type ApplyInput struct {
	UserID        uuid.UUID
	Type          enums.TransactionType
	Amount        decimal.Decimal
	PaymentID     *uuid.UUID
	ProcurementID *uuid.UUID
	Description   string
	Metadata      json.RawMessage
}

// Service owns the append-only transaction ledger and the user balance
// it projects. Apply runs inside the caller's transaction so a balance
// movement commits atomically with whatever triggered it.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.Transaction, error)
	HasForPayment(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, txType enums.TransactionType) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, p pagination.Params) (*pagination.Page[TransactionDTO], error)
	Summary(ctx context.Context, userID uuid.UUID) (*SummaryDTO, error)
}

type service struct {
	repo      Repository
	usersRepo users.Repository
}

// NewService wires a ledger service with its repositories.
func NewService(repo Repository, usersRepo users.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo, usersRepo: usersRepo}, nil
}

// Apply locks the user row, moves the balance, and appends the entry
// with the resulting balance snapshot. Debits that would overdraw
// return ErrInsufficientFunds and write nothing.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("ledger apply requires a transaction")
	}
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	amount := money.Round(input.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", input.Amount)
	}

	user, err := s.usersRepo.WithTx(tx).LockByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", input.UserID, err)
	}

	signed := amount
	if !input.Type.IsCredit() {
		signed = amount.Neg()
	}
	balanceAfter := user.Balance.Add(signed)
	if balanceAfter.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, user.Balance, amount)
	}

	if err := s.usersRepo.WithTx(tx).UpdateBalance(ctx, user.ID, balanceAfter); err != nil {
		return nil, fmt.Errorf("update balance for %s: %w", user.ID, err)
	}

	txn := &models.Transaction{
		UserID:        input.UserID,
		PaymentID:     input.PaymentID,
		ProcurementID: input.ProcurementID,
		Type:          input.Type,
		Amount:        signed,
		BalanceAfter:  balanceAfter,
		Description:   input.Description,
		Metadata:      input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return txn, nil
}

func (s *service) HasForPayment(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, txType enums.TransactionType) (bool, error) {
	if paymentID == uuid.Nil {
		return false, fmt.Errorf("payment id is required")
	}
	return s.repo.WithTx(tx).ExistsForPayment(ctx, paymentID, txType)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, p pagination.Params) (*pagination.Page[TransactionDTO], error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	p = pagination.Normalize(p)
	txns, total, err := s.repo.ListByUser(ctx, userID, filter, p)
	if err != nil {
		return nil, err
	}
	items := make([]TransactionDTO, 0, len(txns))
	for i := range txns {
		items = append(items, *FromModel(&txns[i]))
	}
	return &pagination.Page[TransactionDTO]{
		Items:  items,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}, nil
}

// Summary rolls transaction history up per type next to the current
// balance.
func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*SummaryDTO, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	user, err := s.usersRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SumByType(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SummaryDTO{
		UserID:  userID,
		Balance: user.Balance,
		ByType:  totals,
	}, nil
}
