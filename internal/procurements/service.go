package procurements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/money"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox/payloads"
	"github.com/groupbuyhq/groupbuy-backend/pkg/pagination"
)

var (
	// ErrForbidden signals a caller without organizer or admin rights.
	ErrForbidden = errors.New("caller may not manage this procurement")
	// ErrInvalidTransition signals a status change outside the table.
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Service owns the procurement aggregate: campaign lifecycle, listing
// read models, and the roll-up recompute the settlement engine leans on.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ProcurementDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProcurementDTO, error)
	List(ctx context.Context, filter ListFilter, p pagination.Params) (*pagination.Page[ProcurementDTO], error)
	UserProcurements(ctx context.Context, userID uuid.UUID) (*UserProcurementsDTO, error)
	CheckAccess(ctx context.Context, procurementID, userID uuid.UUID) (bool, error)
	Participants(ctx context.Context, procurementID uuid.UUID) ([]ParticipantDTO, error)
	UpdateStatus(ctx context.Context, procurementID, actorID uuid.UUID, next enums.ProcurementStatus) (*ProcurementDTO, error)
	// RecomputeRollup re-derives current_amount inside the caller's
	// transaction and auto-stops the procurement once the threshold is
	// crossed. It returns the procurement as of after the recompute.
	RecomputeRollup(ctx context.Context, tx *gorm.DB, procurement *models.Procurement) (*models.Procurement, error)
}

// ServiceParams wires the procurement service dependencies.
type ServiceParams struct {
	DB           *db.Client
	Repo         Repository
	Participants ParticipantsRepository
	Users        users.Repository
	Outbox       *outbox.Service
}

type service struct {
	db           *db.Client
	repo         Repository
	participants ParticipantsRepository
	usersRepo    users.Repository
	outbox       *outbox.Service
}

// NewService validates and wires the procurement service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("procurements repository required")
	}
	if params.Participants == nil {
		return nil, fmt.Errorf("participants repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		db:           params.DB,
		repo:         params.Repo,
		participants: params.Participants,
		usersRepo:    params.Users,
		outbox:       params.Outbox,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ProcurementDTO, error) {
	if input.OrganizerID == uuid.Nil {
		return nil, fmt.Errorf("organizer id is required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	target := money.Round(input.TargetAmount)
	if !target.IsPositive() {
		return nil, fmt.Errorf("target amount must be positive")
	}
	if input.PricePerUnit != nil && !input.PricePerUnit.IsPositive() {
		return nil, fmt.Errorf("price per unit must be positive")
	}
	if input.StopAtAmount != nil && !input.StopAtAmount.IsPositive() {
		return nil, fmt.Errorf("stop threshold must be positive")
	}
	if input.Deadline != nil && !input.Deadline.After(time.Now()) {
		return nil, fmt.Errorf("deadline must be in the future")
	}

	organizer, err := s.usersRepo.FindByID(ctx, input.OrganizerID)
	if err != nil {
		return nil, fmt.Errorf("resolve organizer: %w", err)
	}
	if organizer.Role == enums.UserRoleMember {
		return nil, fmt.Errorf("%w: organizer role required", ErrForbidden)
	}
	if input.SupplierID != nil {
		if _, err := s.usersRepo.FindByID(ctx, *input.SupplierID); err != nil {
			return nil, fmt.Errorf("resolve supplier: %w", err)
		}
	}

	unit := input.Unit
	if unit == "" {
		unit = "units"
	}
	procurement := &models.Procurement{
		OrganizerID:  input.OrganizerID,
		SupplierID:   input.SupplierID,
		CategoryID:   input.CategoryID,
		Title:        input.Title,
		Description:  input.Description,
		City:         input.City,
		Status:       enums.ProcurementStatusDraft,
		TargetAmount: target,
		Unit:         unit,
		IsFeatured:   input.IsFeatured,
	}
	if input.PricePerUnit != nil {
		procurement.PricePerUnit = decimal.NewNullDecimal(money.Round(*input.PricePerUnit))
	}
	if input.StopAtAmount != nil {
		procurement.StopAtAmount = decimal.NewNullDecimal(money.Round(*input.StopAtAmount))
	}
	procurement.Deadline = input.Deadline
	procurement.PaymentDeadline = input.PaymentDeadline

	if err := s.repo.Create(ctx, procurement); err != nil {
		return nil, err
	}
	return FromModel(procurement, 0, time.Now()), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProcurementDTO, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("procurement id is required")
	}
	procurement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.participants.CountActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(procurement, count, time.Now()), nil
}

func (s *service) List(ctx context.Context, filter ListFilter, p pagination.Params) (*pagination.Page[ProcurementDTO], error) {
	p = pagination.Normalize(p)
	rows, total, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	items := make([]ProcurementDTO, 0, len(rows))
	for i := range rows {
		count, err := s.participants.CountActive(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		items = append(items, *FromModel(&rows[i], count, now))
	}
	return &pagination.Page[ProcurementDTO]{
		Items:  items,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	}, nil
}

func (s *service) UserProcurements(ctx context.Context, userID uuid.UUID) (*UserProcurementsDTO, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	now := time.Now()

	organized, err := s.repo.ListByOrganizer(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &UserProcurementsDTO{
		Organized:     make([]ProcurementDTO, 0, len(organized)),
		Participating: []UserProcurementDTO{},
	}
	for i := range organized {
		count, err := s.participants.CountActive(ctx, organized[i].ID)
		if err != nil {
			return nil, err
		}
		out.Organized = append(out.Organized, *FromModel(&organized[i], count, now))
	}

	pledges, err := s.participants.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range pledges {
		procurement, err := s.repo.FindByID(ctx, pledges[i].ProcurementID)
		if err != nil {
			return nil, err
		}
		count, err := s.participants.CountActive(ctx, procurement.ID)
		if err != nil {
			return nil, err
		}
		out.Participating = append(out.Participating, UserProcurementDTO{
			ProcurementDTO: *FromModel(procurement, count, now),
			MyQuantity:     pledges[i].Quantity,
			MyAmount:       pledges[i].Contribution,
		})
	}
	return out, nil
}

// CheckAccess reports whether the user is the organizer or an active
// participant.
func (s *service) CheckAccess(ctx context.Context, procurementID, userID uuid.UUID) (bool, error) {
	procurement, err := s.repo.FindByID(ctx, procurementID)
	if err != nil {
		return false, err
	}
	if procurement.OrganizerID == userID {
		return true, nil
	}
	_, err = s.participants.FindActive(ctx, procurementID, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (s *service) Participants(ctx context.Context, procurementID uuid.UUID) ([]ParticipantDTO, error) {
	if procurementID == uuid.Nil {
		return nil, fmt.Errorf("procurement id is required")
	}
	rows, err := s.participants.ListActive(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	out := make([]ParticipantDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ParticipantFromModel(&rows[i]))
	}
	return out, nil
}

// UpdateStatus applies an organizer or admin driven transition under
// the procurement row lock and queues the status event in the same
// transaction.
func (s *service) UpdateStatus(ctx context.Context, procurementID, actorID uuid.UUID, next enums.ProcurementStatus) (*ProcurementDTO, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("invalid procurement status %q", next)
	}
	actor, err := s.usersRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}

	var updated *models.Procurement
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		procurement, err := s.repo.WithTx(tx).LockByID(ctx, procurementID)
		if err != nil {
			return err
		}
		if procurement.OrganizerID != actorID && actor.Role != enums.UserRoleAdmin {
			return ErrForbidden
		}
		if !procurement.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, procurement.Status, next)
		}

		from := procurement.Status
		var stoppedAt *time.Time
		if next == enums.ProcurementStatusStopped {
			now := time.Now()
			stoppedAt = &now
		}
		if err := s.repo.WithTx(tx).SetStatus(ctx, procurement.ID, next, stoppedAt); err != nil {
			return err
		}
		procurement.Status = next
		if stoppedAt != nil {
			procurement.StoppedAt = stoppedAt
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventProcurementStatus,
			AggregateType: enums.AggregateProcurement,
			AggregateID:   procurement.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: actor.Role},
			Data: payloads.ProcurementStatusEvent{
				ProcurementID: procurement.ID,
				From:          from,
				To:            next,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if next == enums.ProcurementStatusStopped {
			stopEvent := outbox.DomainEvent{
				EventType:     enums.EventProcurementStopped,
				AggregateType: enums.AggregateProcurement,
				AggregateID:   procurement.ID,
				Actor:         &outbox.ActorRef{UserID: actorID, Role: actor.Role},
				Data: payloads.ProcurementStoppedEvent{
					ProcurementID: procurement.ID,
					OrganizerID:   procurement.OrganizerID,
					CurrentAmount: procurement.CurrentAmount,
					Reason:        "manual_stop",
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, stopEvent); err != nil {
				return err
			}
		}
		updated = procurement
		return nil
	})
	if err != nil {
		return nil, err
	}

	count, err := s.participants.CountActive(ctx, updated.ID)
	if err != nil {
		return nil, err
	}
	return FromModel(updated, count, time.Now()), nil
}

// RecomputeRollup sums active contributions from scratch, persists the
// roll-up, and stops the procurement the moment the threshold is met.
func (s *service) RecomputeRollup(ctx context.Context, tx *gorm.DB, procurement *models.Procurement) (*models.Procurement, error) {
	if tx == nil {
		return nil, fmt.Errorf("rollup recompute requires a transaction")
	}
	if procurement == nil {
		return nil, fmt.Errorf("procurement is required")
	}

	total, err := s.participants.WithTx(tx).SumActiveContributions(ctx, procurement.ID)
	if err != nil {
		return nil, err
	}
	total = money.Round(total)
	if err := s.repo.WithTx(tx).SetCurrentAmount(ctx, procurement.ID, total); err != nil {
		return nil, err
	}
	procurement.CurrentAmount = total

	if procurement.Status == enums.ProcurementStatusActive &&
		procurement.StopAtAmount.Valid &&
		total.GreaterThanOrEqual(procurement.StopAtAmount.Decimal) {
		now := time.Now()
		if err := s.repo.WithTx(tx).SetStatus(ctx, procurement.ID, enums.ProcurementStatusStopped, &now); err != nil {
			return nil, err
		}
		procurement.Status = enums.ProcurementStatusStopped
		procurement.StoppedAt = &now

		event := outbox.DomainEvent{
			EventType:     enums.EventProcurementStopped,
			AggregateType: enums.AggregateProcurement,
			AggregateID:   procurement.ID,
			Data: payloads.ProcurementStoppedEvent{
				ProcurementID: procurement.ID,
				OrganizerID:   procurement.OrganizerID,
				CurrentAmount: total,
				Reason:        "stop_threshold",
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	return procurement, nil
}
