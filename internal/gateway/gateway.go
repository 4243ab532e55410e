package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

// Sentinel errors providers translate their failures into. Unavailable
// triggers fallback to the next configured provider; Rejected does not.
var (
	ErrUnavailable = errors.New("payment provider unavailable")
	ErrRejected    = errors.New("payment provider rejected request")
	ErrNotFound    = errors.New("payment not found at provider")
)

// EventKind is the normalized webhook event taxonomy. Each provider
// maps its own event names onto these.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentCancelled EventKind = "payment_cancelled"
	EventRefundSucceeded  EventKind = "refund_succeeded"
)

// DepositRequest carries everything a provider needs to mint a payment link.
type DepositRequest struct {
	OrderID     string
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	ReturnURL   string
}

// DepositLink is the provider's answer to a deposit request.
type DepositLink struct {
	ExternalID      string
	ConfirmationURL string
	Status          enums.PaymentStatus
}

// Status is a provider-side payment snapshot used by polling and the
// reconciler.
type Status struct {
	ExternalID  string
	Status      enums.PaymentStatus
	Amount      decimal.NullDecimal
	CompletedAt *time.Time
}

// Event is a normalized webhook notification. CorrelationID carries the
// provider's payment id; OrderID carries our merchant order id when the
// provider echoes it back.
type Event struct {
	Provider      enums.PaymentProvider
	EventID       string
	Kind          EventKind
	CorrelationID string
	OrderID       string
	Amount        decimal.NullDecimal
	RawStatus     string
}

// Provider abstracts one external payment gateway.
type Provider interface {
	Name() enums.PaymentProvider
	CreateDepositLink(ctx context.Context, req DepositRequest) (*DepositLink, error)
	GetPaymentStatus(ctx context.Context, externalID string) (*Status, error)
	VerifyWebhookSignature(body []byte, signature string) bool
	ParseWebhookEvent(body []byte) (*Event, error)
}

// Selector holds the configured providers in fallback order.
type Selector struct {
	ordered []Provider
	byName  map[enums.PaymentProvider]Provider
}

// NewSelector builds a selector from providers in the configured order.
func NewSelector(providers ...Provider) (*Selector, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one payment provider is required")
	}
	s := &Selector{
		byName: make(map[enums.PaymentProvider]Provider, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("nil payment provider")
		}
		name := p.Name()
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("duplicate payment provider %s", name)
		}
		s.ordered = append(s.ordered, p)
		s.byName[name] = p
	}
	return s, nil
}

// Ordered returns providers in fallback order.
func (s *Selector) Ordered() []Provider {
	return s.ordered
}

// ByName returns the provider for the given name.
func (s *Selector) ByName(name enums.PaymentProvider) (Provider, bool) {
	p, ok := s.byName[name]
	return p, ok
}
