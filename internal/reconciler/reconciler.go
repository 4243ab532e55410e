package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/metrics"
)

const (
	jobName  = "payment_reconciler"
	lockName = "payment-reconciler"
)

// StatusPoller is the slice of the settlement engine the reconciler
// drives: it asks the issuing provider for the current payment state
// and settles terminal transitions.
type StatusPoller interface {
	PollStatus(ctx context.Context, paymentID uuid.UUID) (*payments.PaymentDTO, error)
}

// PendingLister finds payments stuck in a non-terminal state.
type PendingLister interface {
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

// LockManager serializes sweeps across replicas.
type LockManager interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type ServiceParams struct {
	Config  config.ReconcilerConfig
	Logger  *logger.Logger
	Poller  StatusPoller
	Pending PendingLister
	Locks   LockManager
	Metrics *metrics.JobMetrics
}

// Service sweeps aged pending payments against their providers so
// dropped webhooks cannot strand money.
type Service struct {
	cfg     config.ReconcilerConfig
	logg    *logger.Logger
	poller  StatusPoller
	pending PendingLister
	locks   LockManager
	metrics *metrics.JobMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Poller == nil {
		return nil, errors.New("status poller is required")
	}
	if params.Pending == nil {
		return nil, errors.New("pending lister is required")
	}
	if params.Config.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if params.Config.BatchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	return &Service{
		cfg:     params.Config,
		logg:    params.Logger,
		poller:  params.Poller,
		pending: params.Pending,
		locks:   params.Locks,
		metrics: params.Metrics,
	}, nil
}

// Run sweeps on a fixed interval until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "reconciler context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "reconciler sweep failed", err)
			}
		}
	}
}

// Sweep polls one batch of aged pending payments. Per-payment provider
// failures are logged and skipped; the sweep keeps going.
func (s *Service) Sweep(ctx context.Context) error {
	if s.locks != nil {
		acquired, err := s.locks.AcquireLock(ctx, lockName, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), lockName); err != nil {
				s.logg.Error(ctx, "release reconciler lock", err)
			}
		}()
	}

	start := time.Now()
	cutoff := start.Add(-s.cfg.PendingAge)
	batch, err := s.pending.ListPending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.metrics.IncFailure(jobName)
		return err
	}

	var failed int
	for i := range batch {
		payment := &batch[i]
		if _, err := s.poller.PollStatus(ctx, payment.ID); err != nil {
			failed++
			pollCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
			s.logg.Error(pollCtx, "reconcile poll failed", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	s.metrics.ObserveDuration(jobName, time.Since(start))
	if failed > 0 {
		s.metrics.IncFailure(jobName)
	} else {
		s.metrics.IncSuccess(jobName)
	}

	if len(batch) > 0 {
		sweepCtx := s.logg.WithFields(ctx, map[string]any{
			"swept":  len(batch),
			"failed": failed,
		})
		s.logg.Info(sweepCtx, "reconciler sweep complete")
	}
	return nil
}
