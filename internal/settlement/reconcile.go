package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db/models"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox/payloads"
)

// ReconcileWebhook is the single entry point for provider webhooks. It
// verifies the signature, normalizes the event, gates replays through
// redis, and applies the transition atomically. The returned outcome is
// the metric label that was recorded.
func (e *Engine) ReconcileWebhook(ctx context.Context, providerName enums.PaymentProvider, body []byte, signature string) (string, error) {
	provider, ok := e.gateways.ByName(providerName)
	if !ok {
		return e.outcome(providerName, OutcomeRejected), fmt.Errorf("unknown provider %s", providerName)
	}

	if !provider.VerifyWebhookSignature(body, signature) {
		if !e.allowUnverified {
			return e.outcome(providerName, OutcomeRejected), fmt.Errorf("webhook signature verification failed")
		}
		e.logg.Warn(e.logg.WithProvider(ctx, string(providerName)), "accepting unverified webhook")
	}

	event, err := provider.ParseWebhookEvent(body)
	if err != nil {
		return e.outcome(providerName, OutcomeBadPayload), fmt.Errorf("parse webhook: %w", err)
	}

	first, err := e.webhooks.CheckAndMarkWebhook(ctx, string(providerName), event.EventID, e.webhookTTL)
	if err != nil {
		return e.outcome(providerName, OutcomeRejected), fmt.Errorf("webhook dedupe: %w", err)
	}
	if !first {
		return e.outcome(providerName, OutcomeDuplicate), nil
	}

	payment, err := e.resolvePayment(ctx, event)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown correlation: acknowledged, logged, counted. The
			// provider must not retry forever against a payment we never
			// created.
			logCtx := e.logg.WithFields(ctx, map[string]any{
				"provider":       providerName,
				"event_id":       event.EventID,
				"order_id":       event.OrderID,
				"correlation_id": event.CorrelationID,
			})
			e.logg.Warn(logCtx, "webhook does not match any payment")
			return e.outcome(providerName, OutcomeUnmatched), nil
		}
		e.unmark(ctx, providerName, event.EventID)
		return e.outcome(providerName, OutcomeRejected), err
	}

	if err := e.applyEvent(ctx, payment.ID, event); err != nil {
		// Release the dedupe mark so the provider's retry gets another go.
		e.unmark(ctx, providerName, event.EventID)
		return e.outcome(providerName, OutcomeRejected), err
	}
	return e.outcome(providerName, OutcomeApplied), nil
}

// PollStatus fetches the provider-side state of one payment and applies
// the standard transition path. The reconciler calls this for payments
// stuck pending.
func (e *Engine) PollStatus(ctx context.Context, paymentID uuid.UUID) (*payments.PaymentDTO, error) {
	payment, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payments.FromModel(payment), nil
	}
	if payment.ExternalID == nil {
		return nil, fmt.Errorf("payment %s has no external id to poll", paymentID)
	}

	provider, ok := e.gateways.ByName(payment.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", payment.Provider)
	}
	status, err := provider.GetPaymentStatus(ctx, *payment.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", payment.Provider, err)
	}

	kind, final := kindForStatus(status.Status)
	if !final {
		return payments.FromModel(payment), nil
	}
	event := &gateway.Event{
		Provider:      payment.Provider,
		EventID:       fmt.Sprintf("poll:%s:%s", payment.ID, status.Status),
		Kind:          kind,
		CorrelationID: *payment.ExternalID,
		OrderID:       payment.OrderID,
		Amount:        status.Amount,
		RawStatus:     string(status.Status),
	}
	if err := e.applyEvent(ctx, payment.ID, event); err != nil {
		return nil, err
	}
	updated, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return payments.FromModel(updated), nil
}

// resolvePayment correlates an event to a payment row: the merchant
// order id is authoritative, the provider's payment id is the fallback.
func (e *Engine) resolvePayment(ctx context.Context, event *gateway.Event) (*models.Payment, error) {
	if event.OrderID != "" {
		payment, err := e.payments.FindByOrderID(ctx, event.OrderID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if event.CorrelationID != "" {
		return e.payments.FindByExternalID(ctx, event.CorrelationID)
	}
	return nil, gorm.ErrRecordNotFound
}

// applyEvent performs the atomic payment transition: payment row,
// balance, ledger entry and outbox event commit or roll back together.
// Replays against a terminal payment are no-ops.
func (e *Engine) applyEvent(ctx context.Context, paymentID uuid.UUID, event *gateway.Event) error {
	return e.db.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := e.payments.WithTx(tx).LockByID(ctx, paymentID)
		if err != nil {
			return err
		}

		switch event.Kind {
		case gateway.EventPaymentSucceeded:
			return e.applySucceeded(ctx, tx, payment, event)
		case gateway.EventPaymentCancelled:
			return e.applyCancelled(ctx, tx, payment, event)
		case gateway.EventRefundSucceeded:
			return e.applyRefunded(ctx, tx, payment, event)
		default:
			return fmt.Errorf("unsupported event kind %s", event.Kind)
		}
	})
}

func (e *Engine) applySucceeded(ctx context.Context, tx *gorm.DB, payment *models.Payment, event *gateway.Event) error {
	if payment.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	payment.Status = enums.PaymentStatusSucceeded
	payment.SucceededAt = &now
	if payment.ExternalID == nil && event.CorrelationID != "" {
		externalID := event.CorrelationID
		payment.ExternalID = &externalID
	}
	if err := e.payments.WithTx(tx).Update(ctx, payment); err != nil {
		return err
	}

	// Credit exactly once even if the event somehow arrives twice.
	credited, err := e.ledger.HasForPayment(ctx, tx, payment.ID, enums.TransactionTypeDeposit)
	if err != nil {
		return err
	}
	if !credited && payment.Type == enums.PaymentTypeDeposit {
		if _, err := e.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:      payment.UserID,
			Type:        enums.TransactionTypeDeposit,
			Amount:      payment.Amount,
			PaymentID:   &payment.ID,
			Description: fmt.Sprintf("Deposit via %s", payment.Provider),
		}); err != nil {
			return err
		}
	}

	return e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentEvent{
			PaymentID: payment.ID,
			UserID:    payment.UserID,
			OrderID:   payment.OrderID,
			Provider:  payment.Provider,
			Status:    payment.Status,
			Amount:    payment.Amount,
		},
		Version: 1,
	})
}

func (e *Engine) applyCancelled(ctx context.Context, tx *gorm.DB, payment *models.Payment, event *gateway.Event) error {
	if payment.Status.IsTerminal() {
		return nil
	}

	payment.Status = enums.PaymentStatusCancelled
	if event.RawStatus != "" {
		reason := event.RawStatus
		payment.FailureReason = &reason
	}
	if payment.ExternalID == nil && event.CorrelationID != "" {
		externalID := event.CorrelationID
		payment.ExternalID = &externalID
	}
	if err := e.payments.WithTx(tx).Update(ctx, payment); err != nil {
		return err
	}

	return e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCancelled,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentEvent{
			PaymentID: payment.ID,
			UserID:    payment.UserID,
			OrderID:   payment.OrderID,
			Provider:  payment.Provider,
			Status:    payment.Status,
			Amount:    payment.Amount,
		},
		Version: 1,
	})
}

// applyRefunded is the only exit from a terminal state: succeeded may
// move to refunded, nothing else may.
func (e *Engine) applyRefunded(ctx context.Context, tx *gorm.DB, payment *models.Payment, event *gateway.Event) error {
	if payment.Status == enums.PaymentStatusRefunded {
		return nil
	}
	if payment.Status != enums.PaymentStatusSucceeded {
		return fmt.Errorf("refund for payment %s in status %s", payment.ID, payment.Status)
	}

	payment.Status = enums.PaymentStatusRefunded
	if err := e.payments.WithTx(tx).Update(ctx, payment); err != nil {
		return err
	}

	// Providers report the refunded amount on partial refunds; a missing
	// amount means the whole payment went back.
	refunded := payment.Amount
	if event.Amount.Valid && event.Amount.Decimal.IsPositive() {
		refunded = event.Amount.Decimal
	}

	// Take the money back out of the balance, once.
	debited, err := e.ledger.HasForPayment(ctx, tx, payment.ID, enums.TransactionTypeWithdrawal)
	if err != nil {
		return err
	}
	if !debited && payment.Type == enums.PaymentTypeDeposit {
		if _, err := e.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:      payment.UserID,
			Type:        enums.TransactionTypeWithdrawal,
			Amount:      refunded,
			PaymentID:   &payment.ID,
			Description: fmt.Sprintf("Deposit refund via %s", payment.Provider),
		}); err != nil {
			return err
		}
	}

	return e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentEvent{
			PaymentID: payment.ID,
			UserID:    payment.UserID,
			OrderID:   payment.OrderID,
			Provider:  payment.Provider,
			Status:    payment.Status,
			Amount:    refunded,
		},
		Version: 1,
	})
}

func kindForStatus(status enums.PaymentStatus) (gateway.EventKind, bool) {
	switch status {
	case enums.PaymentStatusSucceeded:
		return gateway.EventPaymentSucceeded, true
	case enums.PaymentStatusCancelled:
		return gateway.EventPaymentCancelled, true
	case enums.PaymentStatusRefunded:
		return gateway.EventRefundSucceeded, true
	default:
		return "", false
	}
}

func (e *Engine) outcome(provider enums.PaymentProvider, outcome string) string {
	if e.webhookStats != nil {
		e.webhookStats.Inc(string(provider), outcome)
	}
	return outcome
}

func (e *Engine) unmark(ctx context.Context, provider enums.PaymentProvider, eventID string) {
	if err := e.webhooks.UnmarkWebhook(ctx, string(provider), eventID); err != nil {
		e.logg.Error(ctx, "failed to release webhook dedupe mark", err)
	}
}
