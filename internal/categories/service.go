package categories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
)

// CategoryDTO is the transport shape of a category.
type CategoryDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service exposes the category read/create surface used by procurement
// filters.
type Service interface {
	Create(ctx context.Context, name string, description *string) (*CategoryDTO, error)
	List(ctx context.Context) ([]CategoryDTO, error)
}

type service struct {
	repo Repository
}

// NewService wires a categories service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("categories repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, name string, description *string) (*CategoryDTO, error) {
	if name == "" {
		return nil, fmt.Errorf("category name is required")
	}
	category := &models.Category{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	return fromModel(category), nil
}

func (s *service) List(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *fromModel(&rows[i]))
	}
	return out, nil
}

func fromModel(c *models.Category) *CategoryDTO {
	return &CategoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
}
