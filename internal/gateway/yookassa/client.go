package yookassa

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/money"
)

const currencyRUB = "RUB"

// Client talks to the YooKassa payments API.
type Client struct {
	apiURL        string
	shopID        string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient builds a YooKassa client from configuration.
func NewClient(cfg config.YooKassaConfig, timeout time.Duration) (*Client, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("yookassa shop id and secret key are required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		shopID:        cfg.ShopID,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Name implements gateway.Provider.
func (c *Client) Name() enums.PaymentProvider {
	return enums.PaymentProviderYooKassa
}

type amountPayload struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmationPayload struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentPayload struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Amount       amountPayload       `json:"amount"`
	Confirmation confirmationPayload `json:"confirmation"`
	Metadata     map[string]string   `json:"metadata"`
	CapturedAt   *time.Time          `json:"captured_at"`
	// Refund notifications reference the original payment here.
	PaymentID string `json:"payment_id"`
}

// CreateDepositLink creates a redirect payment and returns its
// confirmation URL. The order id rides along in metadata so webhooks
// can be correlated even if the external id is lost.
func (c *Client) CreateDepositLink(ctx context.Context, req gateway.DepositRequest) (*gateway.DepositLink, error) {
	body := map[string]any{
		"amount": amountPayload{
			Value:    money.String(req.Amount),
			Currency: currencyRUB,
		},
		"capture":     true,
		"description": req.Description,
		"confirmation": confirmationPayload{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		"metadata": map[string]string{
			"order_id": req.OrderID,
			"user_id":  req.UserID.String(),
		},
	}

	var payment paymentPayload
	if err := c.do(ctx, http.MethodPost, "/payments", req.OrderID, body, &payment); err != nil {
		return nil, err
	}

	return &gateway.DepositLink{
		ExternalID:      payment.ID,
		ConfirmationURL: payment.Confirmation.ConfirmationURL,
		Status:          mapStatus(payment.Status),
	}, nil
}

// GetPaymentStatus fetches the current payment state by external id.
func (c *Client) GetPaymentStatus(ctx context.Context, externalID string) (*gateway.Status, error) {
	var payment paymentPayload
	if err := c.do(ctx, http.MethodGet, "/payments/"+externalID, "", nil, &payment); err != nil {
		return nil, err
	}

	status := gateway.Status{
		ExternalID:  payment.ID,
		Status:      mapStatus(payment.Status),
		CompletedAt: payment.CapturedAt,
	}
	if amount, err := decimal.NewFromString(payment.Amount.Value); err == nil {
		status.Amount = decimal.NewNullDecimal(amount)
	}
	return &status, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex digest carried in
// the notification header against the shared webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

type webhookNotification struct {
	Type   string         `json:"type"`
	Event  string         `json:"event"`
	Object paymentPayload `json:"object"`
}

// ParseWebhookEvent normalizes a YooKassa notification.
func (c *Client) ParseWebhookEvent(body []byte) (*gateway.Event, error) {
	var note webhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("decode yookassa notification: %w", err)
	}
	if note.Object.ID == "" {
		return nil, fmt.Errorf("yookassa notification missing object id")
	}

	var kind gateway.EventKind
	correlationID := note.Object.ID
	switch note.Event {
	case "payment.succeeded":
		kind = gateway.EventPaymentSucceeded
	case "payment.canceled":
		kind = gateway.EventPaymentCancelled
	case "refund.succeeded":
		kind = gateway.EventRefundSucceeded
		// The object is the refund; the payment id points at the original.
		if note.Object.PaymentID != "" {
			correlationID = note.Object.PaymentID
		}
	default:
		return nil, fmt.Errorf("unsupported yookassa event %q", note.Event)
	}

	event := gateway.Event{
		Provider:      enums.PaymentProviderYooKassa,
		EventID:       note.Object.ID + ":" + note.Event,
		Kind:          kind,
		CorrelationID: correlationID,
		OrderID:       note.Object.Metadata["order_id"],
		RawStatus:     note.Object.Status,
	}
	if amount, err := decimal.NewFromString(note.Object.Amount.Value); err == nil {
		event.Amount = decimal.NewNullDecimal(amount)
	}
	return &event, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotenceKey string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode yookassa request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("build yookassa request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	} else if method != http.MethodGet {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gateway.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: yookassa returned %d", gateway.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: yookassa returned %d: %s", gateway.ErrRejected, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode yookassa response: %w", err)
	}
	return nil
}

func mapStatus(raw string) enums.PaymentStatus {
	switch strings.ToLower(raw) {
	case "pending":
		return enums.PaymentStatusPending
	case "waiting_for_capture":
		return enums.PaymentStatusWaitingForCapture
	case "succeeded":
		return enums.PaymentStatusSucceeded
	case "canceled", "cancelled":
		return enums.PaymentStatusCancelled
	case "refunded":
		return enums.PaymentStatusRefunded
	default:
		return enums.PaymentStatusPending
	}
}
