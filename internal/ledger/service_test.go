package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

type fakeLedgerRepo struct {
	entries []*models.Transaction
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeLedgerRepo) Create(ctx context.Context, txn *models.Transaction) error {
	txn.ID = uuid.New()
	f.entries = append(f.entries, txn)
	return nil
}

func (f *fakeLedgerRepo) ExistsForPayment(ctx context.Context, paymentID uuid.UUID, txType enums.TransactionType) (bool, error) {
	for _, entry := range f.entries {
		if entry.PaymentID != nil && *entry.PaymentID == paymentID && entry.Type == txType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, p pagination.Params) ([]models.Transaction, int64, error) {
	var out []models.Transaction
	for _, entry := range f.entries {
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeLedgerRepo) SumByType(ctx context.Context, userID uuid.UUID) ([]TypeTotal, error) {
	totals := map[enums.TransactionType]*TypeTotal{}
	for _, entry := range f.entries {
		if entry.UserID != userID {
			continue
		}
		total, ok := totals[entry.Type]
		if !ok {
			total = &TypeTotal{Type: entry.Type, Total: decimal.Zero}
			totals[entry.Type] = total
		}
		total.Total = total.Total.Add(entry.Amount)
		total.Count++
	}
	var out []TypeTotal
	for _, total := range totals {
		out = append(out, *total)
	}
	return out, nil
}

type fakeUsersRepo struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsersRepo) WithTx(tx *gorm.DB) users.Repository { return f }

func (f *fakeUsersRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsersRepo) FindByPlatformExternal(ctx context.Context, platform enums.Platform, externalID string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsersRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeUsersRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	user, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Balance = balance
	return nil
}

func (f *fakeUsersRepo) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	user, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Role = role
	return nil
}

func newLedgerFixture(balance string) (*fakeLedgerRepo, *fakeUsersRepo, uuid.UUID) {
	userID := uuid.New()
	return &fakeLedgerRepo{}, &fakeUsersRepo{
		users: map[uuid.UUID]*models.User{
			userID: {ID: userID, Balance: decimal.RequireFromString(balance)},
		},
	}, userID
}

func TestService_ApplyCredit(t *testing.T) {
	repo, usersRepo, userID := newLedgerFixture("0")
	svc, err := NewService(repo, usersRepo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	paymentID := uuid.New()
	txn, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{
		UserID:    userID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    decimal.RequireFromString("150"),
		PaymentID: &paymentID,
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("credit must stay positive, got %s", txn.Amount)
	}
	if !txn.BalanceAfter.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("balance snapshot wrong: %s", txn.BalanceAfter)
	}
	if !usersRepo.users[userID].Balance.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("user balance not moved: %s", usersRepo.users[userID].Balance)
	}
}

func TestService_ApplyDebitSignsAmount(t *testing.T) {
	repo, usersRepo, userID := newLedgerFixture("500")
	svc, _ := NewService(repo, usersRepo)

	txn, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{
		UserID: userID,
		Type:   enums.TransactionTypeProcurementJoin,
		Amount: decimal.RequireFromString("120.50"),
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("-120.50")) {
		t.Fatalf("debit must be negative, got %s", txn.Amount)
	}
	if !txn.BalanceAfter.Equal(decimal.RequireFromString("379.50")) {
		t.Fatalf("balance snapshot wrong: %s", txn.BalanceAfter)
	}
}

func TestService_ApplyRejectsOverdraft(t *testing.T) {
	repo, usersRepo, userID := newLedgerFixture("100")
	svc, _ := NewService(repo, usersRepo)

	_, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{
		UserID: userID,
		Type:   enums.TransactionTypeProcurementJoin,
		Amount: decimal.RequireFromString("100.01"),
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatal("overdraft must not append an entry")
	}
	if !usersRepo.users[userID].Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatal("overdraft must not move the balance")
	}
}

func TestService_ApplyValidation(t *testing.T) {
	repo, usersRepo, userID := newLedgerFixture("0")
	svc, _ := NewService(repo, usersRepo)

	if _, err := svc.Apply(context.Background(), nil, ApplyInput{UserID: userID, Type: enums.TransactionTypeDeposit, Amount: decimal.NewFromInt(1)}); err == nil {
		t.Fatal("expected nil tx to be rejected")
	}
	if _, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{UserID: userID, Type: "mystery", Amount: decimal.NewFromInt(1)}); err == nil {
		t.Fatal("expected invalid type to be rejected")
	}
	if _, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{UserID: userID, Type: enums.TransactionTypeDeposit, Amount: decimal.Zero}); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
}

func TestService_HasForPayment(t *testing.T) {
	repo, usersRepo, userID := newLedgerFixture("0")
	svc, _ := NewService(repo, usersRepo)

	paymentID := uuid.New()
	if _, err := svc.Apply(context.Background(), &gorm.DB{}, ApplyInput{
		UserID:    userID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    decimal.NewFromInt(10),
		PaymentID: &paymentID,
	}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	found, err := svc.HasForPayment(context.Background(), &gorm.DB{}, paymentID, enums.TransactionTypeDeposit)
	if err != nil || !found {
		t.Fatalf("expected deposit entry for payment, found=%v err=%v", found, err)
	}
	found, err = svc.HasForPayment(context.Background(), &gorm.DB{}, paymentID, enums.TransactionTypeProcurementRefund)
	if err != nil || found {
		t.Fatalf("expected no refund entry, found=%v err=%v", found, err)
	}
}
