package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

// Service exposes the payment read side. Writes go through the
// settlement engine so state changes and ledger entries share one
// transaction.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*PaymentDTO, error)
	GetByOrderID(ctx context.Context, orderID string) (*PaymentDTO, error)
	List(ctx context.Context, filter ListFilter, p pagination.Params) (*pagination.Page[PaymentDTO], error)
}

type service struct {
	repo Repository
}

// NewService wires a payments service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PaymentDTO, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(payment), nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID string) (*PaymentDTO, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return FromModel(payment), nil
}

func (s *service) List(ctx context.Context, filter ListFilter, p pagination.Params) (*pagination.Page[PaymentDTO], error) {
	p = pagination.Normalize(p)
	rows, total, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	items := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &pagination.Page[PaymentDTO]{
		Items:  items,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}, nil
}
