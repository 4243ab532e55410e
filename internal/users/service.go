package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Service resolves and registers users arriving from messenger adapters.
type Service interface {
	Identify(ctx context.Context, input IdentifyInput) (*UserDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*UserDTO, error)
}

type service struct {
	repo Repository
}

// NewService wires a users service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

// Identify returns the existing user for the platform identity or
// registers a new member. Two adapters racing on the same identity both
// get the same row: the loser of the insert re-reads.
func (s *service) Identify(ctx context.Context, input IdentifyInput) (*UserDTO, error) {
	if !input.Platform.IsValid() {
		return nil, fmt.Errorf("invalid platform %q", input.Platform)
	}
	if input.ExternalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	existing, err := s.repo.FindByPlatformExternal(ctx, input.Platform, input.ExternalID)
	if err == nil {
		return FromModel(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := input.toModel()
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, ferr := s.repo.FindByPlatformExternal(ctx, input.Platform, input.ExternalID)
			if ferr != nil {
				return nil, ferr
			}
			return FromModel(existing), nil
		}
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*UserDTO, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}
