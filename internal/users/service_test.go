package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

type fakeRepository struct {
	byIdentity map[string]*models.User
	byID       map[uuid.UUID]*models.User
	createErr  error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byIdentity: make(map[string]*models.User),
		byID:       make(map[uuid.UUID]*models.User),
	}
}

func identityKey(platform enums.Platform, externalID string) string {
	return string(platform) + ":" + externalID
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = uuid.New()
	f.byIdentity[identityKey(user.Platform, user.ExternalID)] = user
	f.byID[user.ID] = user
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByPlatformExternal(ctx context.Context, platform enums.Platform, externalID string) (*models.User, error) {
	if user, ok := f.byIdentity[identityKey(platform, externalID)]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	user, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Balance = balance
	return nil
}

func (f *fakeRepository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	user, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Role = role
	return nil
}

func TestService_IdentifyRegistersMember(t *testing.T) {
	repo := newFakeRepository()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	username := "ivan"
	got, err := svc.Identify(context.Background(), IdentifyInput{
		Platform:   enums.PlatformTelegram,
		ExternalID: "tg-1001",
		Username:   &username,
		FirstName:  "Ivan",
	})
	if err != nil {
		t.Fatalf("Identify error: %v", err)
	}
	if got.Role != enums.UserRoleMember {
		t.Fatalf("new users must be members, got %s", got.Role)
	}
	if !got.Balance.IsZero() {
		t.Fatalf("new users must start with zero balance, got %s", got.Balance)
	}
	if !got.IsActive {
		t.Fatal("new users must be active")
	}
}

func TestService_IdentifyReturnsExisting(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := NewService(repo)

	first, err := svc.Identify(context.Background(), IdentifyInput{
		Platform:   enums.PlatformVK,
		ExternalID: "vk-7",
	})
	if err != nil {
		t.Fatalf("Identify error: %v", err)
	}

	second, err := svc.Identify(context.Background(), IdentifyInput{
		Platform:   enums.PlatformVK,
		ExternalID: "vk-7",
		FirstName:  "Different",
	})
	if err != nil {
		t.Fatalf("Identify error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same identity must resolve to same user: %s vs %s", first.ID, second.ID)
	}
}

func TestService_IdentifyValidation(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := NewService(repo)

	if _, err := svc.Identify(context.Background(), IdentifyInput{Platform: "discord", ExternalID: "x"}); err == nil {
		t.Fatal("expected invalid platform to be rejected")
	}
	if _, err := svc.Identify(context.Background(), IdentifyInput{Platform: enums.PlatformWeb}); err == nil {
		t.Fatal("expected empty external id to be rejected")
	}
}

func TestService_SetRole(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := NewService(repo)

	user, err := svc.Identify(context.Background(), IdentifyInput{
		Platform:   enums.PlatformTelegram,
		ExternalID: "tg-2",
	})
	if err != nil {
		t.Fatalf("Identify error: %v", err)
	}

	updated, err := svc.SetRole(context.Background(), user.ID, enums.UserRoleOrganizer)
	if err != nil {
		t.Fatalf("SetRole error: %v", err)
	}
	if updated.Role != enums.UserRoleOrganizer {
		t.Fatalf("expected organizer, got %s", updated.Role)
	}

	if _, err := svc.SetRole(context.Background(), user.ID, "superuser"); err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
}
