package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/metrics"
	"github.com/groupbuyhq/groupbuy-backend/pkg/money"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox/payloads"
	"github.com/groupbuyhq/groupbuy-backend/pkg/redis"
)

var (
	// ErrJoinClosed signals a procurement that no longer accepts
	// membership changes (wrong status or past deadline).
	ErrJoinClosed = errors.New("procurement does not accept membership changes")
	// ErrAlreadyJoined signals a second active pledge for the same user.
	ErrAlreadyJoined = errors.New("user already participates in this procurement")
	// ErrNotParticipant signals a leave/charge/refund without an active pledge.
	ErrNotParticipant = errors.New("user has no active pledge in this procurement")
	// ErrNoProviders signals that every configured provider refused or
	// failed the deposit request.
	ErrNoProviders = errors.New("no payment provider available")
	// ErrWrongPhase signals a pledge settlement operation outside the
	// payment phase.
	ErrWrongPhase = errors.New("procurement is not in the payment phase")
)

// Webhook reconcile outcomes, used as the metric label and returned to
// the controller for logging.
const (
	OutcomeApplied    = metrics.WebhookOutcomeApplied
	OutcomeDuplicate  = metrics.WebhookOutcomeDuplicate
	OutcomeUnmatched  = metrics.WebhookOutcomeUnmatched
	OutcomeBadPayload = metrics.WebhookOutcomeBadPayload
	OutcomeRejected   = metrics.WebhookOutcomeRejected
)

// JoinInput is a pledge request. Amount is required only when the
// procurement has no fixed unit price; with a price set the
// contribution is derived server-side and Amount is ignored.
type JoinInput struct {
	ProcurementID uuid.UUID
	UserID        uuid.UUID
	Quantity      int
	Amount        *decimal.Decimal
	Notes         string
}

// DepositInput asks the engine for a top-up link.
type DepositInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	ProcurementID *uuid.UUID
	Description   string
}

// DepositResult is the engine's answer to a deposit request.
// ManualConfirmation flips on when every provider was unavailable and
// the payment was persisted for later manual or reconciler handling.
type DepositResult struct {
	Payment            *payments.PaymentDTO `json:"payment"`
	ManualConfirmation bool                 `json:"manual_confirmation"`
}

// Engine serializes every money-moving operation of the platform. It is
// the only writer of payment status, participant membership, and user
// balances; each operation is one database transaction.
type Engine struct {
	db           *db.Client
	logg         *logger.Logger
	payments     payments.Repository
	procs        procurements.Repository
	procSvc      procurements.Service
	participants procurements.ParticipantsRepository
	usersRepo    users.Repository
	ledger       ledger.Service
	outbox       *outbox.Service
	gateways     *gateway.Selector
	webhooks     redis.WebhookGuard
	webhookStats *metrics.WebhookMetrics

	returnURL       string
	webhookTTL      time.Duration
	allowUnverified bool
}

// EngineParams wires the settlement engine dependencies.
type EngineParams struct {
	DB             *db.Client
	Logger         *logger.Logger
	Payments       payments.Repository
	Procurements   procurements.Repository
	ProcurementSvc procurements.Service
	Participants   procurements.ParticipantsRepository
	Users          users.Repository
	Ledger         ledger.Service
	Outbox         *outbox.Service
	Gateways       *gateway.Selector
	Webhooks       redis.WebhookGuard
	WebhookMetrics *metrics.WebhookMetrics

	ReturnURL               string
	WebhookDedupeTTL        time.Duration
	AllowUnverifiedWebhooks bool
}

// NewEngine validates and wires the settlement engine.
func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("db client required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Procurements == nil:
		return nil, fmt.Errorf("procurements repository required")
	case params.ProcurementSvc == nil:
		return nil, fmt.Errorf("procurements service required")
	case params.Participants == nil:
		return nil, fmt.Errorf("participants repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway selector required")
	case params.Webhooks == nil:
		return nil, fmt.Errorf("webhook guard required")
	}
	if params.WebhookDedupeTTL <= 0 {
		params.WebhookDedupeTTL = 48 * time.Hour
	}
	return &Engine{
		db:              params.DB,
		logg:            params.Logger,
		payments:        params.Payments,
		procs:           params.Procurements,
		procSvc:         params.ProcurementSvc,
		participants:    params.Participants,
		usersRepo:       params.Users,
		ledger:          params.Ledger,
		outbox:          params.Outbox,
		gateways:        params.Gateways,
		webhooks:        params.Webhooks,
		webhookStats:    params.WebhookMetrics,
		returnURL:       params.ReturnURL,
		webhookTTL:      params.WebhookDedupeTTL,
		allowUnverified: params.AllowUnverifiedWebhooks,
	}, nil
}

// Join adds a pledge to an active procurement. The procurement row lock
// serializes concurrent joins; the roll-up is recomputed in full before
// commit. Joining never touches the ledger.
func (e *Engine) Join(ctx context.Context, input JoinInput) (*procurements.ParticipantDTO, error) {
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	user, err := e.usersRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	var participant *models.Participant
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		procurement, err := e.procs.WithTx(tx).LockByID(ctx, input.ProcurementID)
		if err != nil {
			return err
		}
		if !procurement.Status.AcceptsJoins() {
			return fmt.Errorf("%w: status %s", ErrJoinClosed, procurement.Status)
		}
		now := time.Now()
		if procurement.Deadline != nil && !now.Before(*procurement.Deadline) {
			return fmt.Errorf("%w: deadline passed", ErrJoinClosed)
		}

		var contribution decimal.Decimal
		switch {
		case procurement.PricePerUnit.Valid:
			contribution = money.Round(procurement.PricePerUnit.Decimal.Mul(decimal.NewFromInt(int64(input.Quantity))))
		case input.Amount != nil && input.Amount.IsPositive():
			contribution = money.Round(*input.Amount)
		default:
			return fmt.Errorf("amount is required to join a procurement without a unit price")
		}

		participant = &models.Participant{
			ProcurementID: procurement.ID,
			UserID:        user.ID,
			Quantity:      input.Quantity,
			Contribution:  contribution,
			Status:        enums.ParticipantStatusConfirmed,
			Notes:         input.Notes,
			IsActive:      true,
		}
		if err := e.participants.WithTx(tx).Create(ctx, participant); err != nil {
			if db.IsUniqueViolation(err, "") {
				return ErrAlreadyJoined
			}
			return err
		}

		if _, err := e.procSvc.RecomputeRollup(ctx, tx, procurement); err != nil {
			return err
		}

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantJoined,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: user.Role},
			Data: payloads.ParticipantEvent{
				ParticipantID: participant.ID,
				ProcurementID: procurement.ID,
				UserID:        user.ID,
				Quantity:      participant.Quantity,
				Contribution:  participant.Contribution,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return procurements.ParticipantFromModel(participant), nil
}

// Leave soft-deletes the caller's pledge and recomputes the roll-up.
// The only precondition is an active pledge: participants may leave a
// stopped procurement, and the recompute never re-opens one.
func (e *Engine) Leave(ctx context.Context, procurementID, userID uuid.UUID) error {
	user, err := e.usersRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	return e.db.WithTx(ctx, func(tx *gorm.DB) error {
		procurement, err := e.procs.WithTx(tx).LockByID(ctx, procurementID)
		if err != nil {
			return err
		}

		participant, err := e.participants.WithTx(tx).LockActive(ctx, procurementID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipant
			}
			return err
		}
		if err := e.participants.WithTx(tx).Deactivate(ctx, participant.ID, time.Now()); err != nil {
			return err
		}

		if _, err := e.procSvc.RecomputeRollup(ctx, tx, procurement); err != nil {
			return err
		}

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantLeft,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: user.Role},
			Data: payloads.ParticipantEvent{
				ParticipantID: participant.ID,
				ProcurementID: procurementID,
				UserID:        userID,
				Quantity:      participant.Quantity,
				Contribution:  participant.Contribution,
			},
			Version: 1,
		})
	})
}

// RequestDeposit asks the providers, in configured order, for a payment
// link. Providers answering ErrUnavailable are skipped; a definitive
// rejection aborts. When nobody answers the payment row is still
// persisted so the money trail survives the outage.
func (e *Engine) RequestDeposit(ctx context.Context, input DepositInput) (*DepositResult, error) {
	amount := money.Round(input.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	user, err := e.usersRepo.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	orderID := "gb-" + uuid.NewString()
	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Balance top-up %s RUB", money.String(amount))
	}
	req := gateway.DepositRequest{
		OrderID:     orderID,
		UserID:      user.ID,
		Amount:      amount,
		Description: description,
		ReturnURL:   e.returnURL,
	}

	var link *gateway.DepositLink
	var chosen gateway.Provider
	for _, provider := range e.gateways.Ordered() {
		link, err = provider.CreateDepositLink(ctx, req)
		if err == nil {
			chosen = provider
			break
		}
		if errors.Is(err, gateway.ErrUnavailable) {
			logCtx := e.logg.WithProvider(ctx, string(provider.Name()))
			e.logg.Warn(logCtx, "payment provider unavailable, trying next")
			continue
		}
		return nil, fmt.Errorf("create deposit via %s: %w", provider.Name(), err)
	}

	payment := &models.Payment{
		UserID:        user.ID,
		ProcurementID: input.ProcurementID,
		OrderID:       orderID,
		Type:          enums.PaymentTypeDeposit,
		Status:        enums.PaymentStatusPending,
		Amount:        amount,
	}
	manual := false
	if chosen != nil {
		payment.Provider = chosen.Name()
		if link.ExternalID != "" {
			externalID := link.ExternalID
			payment.ExternalID = &externalID
		}
		if link.ConfirmationURL != "" {
			confirmationURL := link.ConfirmationURL
			payment.ConfirmationURL = &confirmationURL
		}
		payment.Status = link.Status
	} else {
		// Degraded mode: keep the request, flag for manual follow-up.
		payment.Provider = e.gateways.Ordered()[0].Name()
		manual = true
		logCtx := e.logg.WithUserID(ctx, user.ID.String())
		e.logg.Warn(logCtx, "all payment providers unavailable, deposit persisted for manual confirmation")
	}

	if err := e.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	return &DepositResult{
		Payment:            payments.FromModel(payment),
		ManualConfirmation: manual,
	}, nil
}

// Bonus credits a user balance through the ledger, producing a bonus
// entry and an outbox event in the same transaction.
func (e *Engine) Bonus(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, actor *outbox.ActorRef) (*ledger.TransactionDTO, error) {
	var dto *ledger.TransactionDTO
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := e.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:      userID,
			Type:        enums.TransactionTypeBonus,
			Amount:      amount,
			Description: description,
		})
		if err != nil {
			return err
		}
		dto = ledger.FromModel(txn)
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBonusGranted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         actor,
			Data: payloads.BonusGrantedEvent{
				TransactionID: txn.ID,
				UserID:        userID,
				Amount:        txn.Amount,
				Description:   description,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// ChargeParticipant debits a participant's balance for their pledge
// once the procurement reached the payment phase.
func (e *Engine) ChargeParticipant(ctx context.Context, procurementID, userID uuid.UUID, actor *outbox.ActorRef) (*ledger.TransactionDTO, error) {
	var dto *ledger.TransactionDTO
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		procurement, err := e.procs.WithTx(tx).LockByID(ctx, procurementID)
		if err != nil {
			return err
		}
		if procurement.Status != enums.ProcurementStatusPayment {
			return fmt.Errorf("%w: status %s", ErrWrongPhase, procurement.Status)
		}

		participant, err := e.participants.WithTx(tx).LockActive(ctx, procurementID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipant
			}
			return err
		}
		if participant.Status == enums.ParticipantStatusPaid {
			return fmt.Errorf("participant already paid")
		}

		txn, err := e.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:        userID,
			Type:          enums.TransactionTypeProcurementJoin,
			Amount:        participant.Contribution,
			ProcurementID: &procurementID,
			Description:   fmt.Sprintf("Charge for %s", procurement.Title),
		})
		if err != nil {
			return err
		}
		dto = ledger.FromModel(txn)

		if err := e.participants.WithTx(tx).SetStatus(ctx, participant.ID, enums.ParticipantStatusPaid); err != nil {
			return err
		}

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantCharged,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			Actor:         actor,
			Data: payloads.ParticipantEvent{
				ParticipantID: participant.ID,
				ProcurementID: procurementID,
				UserID:        userID,
				Quantity:      participant.Quantity,
				Contribution:  participant.Contribution,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// RefundParticipant returns a charged pledge to the participant's
// balance. Only paid participants can be refunded.
func (e *Engine) RefundParticipant(ctx context.Context, procurementID, userID uuid.UUID, actor *outbox.ActorRef) (*ledger.TransactionDTO, error) {
	var dto *ledger.TransactionDTO
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		procurement, err := e.procs.WithTx(tx).LockByID(ctx, procurementID)
		if err != nil {
			return err
		}

		participant, err := e.participants.WithTx(tx).LockActive(ctx, procurementID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipant
			}
			return err
		}
		if participant.Status != enums.ParticipantStatusPaid {
			return fmt.Errorf("participant is not paid, nothing to refund")
		}

		txn, err := e.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:        userID,
			Type:          enums.TransactionTypeProcurementRefund,
			Amount:        participant.Contribution,
			ProcurementID: &procurementID,
			Description:   fmt.Sprintf("Refund for %s", procurement.Title),
		})
		if err != nil {
			return err
		}
		dto = ledger.FromModel(txn)

		if err := e.participants.WithTx(tx).SetStatus(ctx, participant.ID, enums.ParticipantStatusConfirmed); err != nil {
			return err
		}

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantRefunded,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			Actor:         actor,
			Data: payloads.ParticipantEvent{
				ParticipantID: participant.ID,
				ProcurementID: procurementID,
				UserID:        userID,
				Quantity:      participant.Quantity,
				Contribution:  participant.Contribution,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}
