package tochka

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
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

// Cyclops payment states collapse onto our five statuses.
var statusMap = map[string]enums.PaymentStatus{
	"pending":    enums.PaymentStatusPending,
	"processing": enums.PaymentStatusPending,
	"succeeded":  enums.PaymentStatusSucceeded,
	"completed":  enums.PaymentStatusSucceeded,
	"failed":     enums.PaymentStatusCancelled,
	"cancelled":  enums.PaymentStatusCancelled,
	"refunded":   enums.PaymentStatusRefunded,
}

// Client talks to the Tochka Cyclops nominal-account API. Requests are
// signed with the platform's RSA key; webhooks are verified against the
// bank's public key.
type Client struct {
	apiURL         string
	nominalAccount string
	platformID     string
	privateKey     *rsa.PrivateKey
	publicKey      *rsa.PublicKey
	httpClient     *http.Client
}

// NewClient loads the signing keys and builds a Cyclops client.
func NewClient(cfg config.TochkaConfig, timeout time.Duration) (*Client, error) {
	if cfg.NominalAccount == "" || cfg.PlatformID == "" {
		return nil, fmt.Errorf("tochka nominal account and platform id are required")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("tochka private key path is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	privateKey, err := loadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		publicKey, err = loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		apiURL:         strings.TrimRight(cfg.APIURL, "/"),
		nominalAccount: cfg.NominalAccount,
		platformID:     cfg.PlatformID,
		privateKey:     privateKey,
		publicKey:      publicKey,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

// Name implements gateway.Provider.
func (c *Client) Name() enums.PaymentProvider {
	return enums.PaymentProviderTochka
}

type depositResponse struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	Status     string `json:"status"`
}

// CreateDepositLink asks Cyclops for a deposit payment URL.
func (c *Client) CreateDepositLink(ctx context.Context, req gateway.DepositRequest) (*gateway.DepositLink, error) {
	body := map[string]any{
		"nominalAccountNumber": c.nominalAccount,
		"amount":               money.String(req.Amount),
		"currency":             currencyRUB,
		"orderId":              req.OrderID,
		"description":          req.Description,
		"participant": map[string]string{
			"externalId": req.UserID.String(),
		},
		"returnUrl": req.ReturnURL,
	}

	var resp depositResponse
	if err := c.do(ctx, http.MethodPost, "/payments/deposits", body, &resp); err != nil {
		return nil, err
	}

	return &gateway.DepositLink{
		ExternalID:      resp.PaymentID,
		ConfirmationURL: resp.PaymentURL,
		Status:          mapStatus(resp.Status),
	}, nil
}

type paymentResponse struct {
	PaymentID   string `json:"paymentId"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	CompletedAt string `json:"completedAt"`
}

// GetPaymentStatus fetches and maps the Cyclops payment state.
func (c *Client) GetPaymentStatus(ctx context.Context, externalID string) (*gateway.Status, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+externalID, nil, &resp); err != nil {
		return nil, err
	}

	status := gateway.Status{
		ExternalID: externalID,
		Status:     mapStatus(resp.Status),
	}
	if amount, err := decimal.NewFromString(resp.Amount); err == nil {
		status.Amount = decimal.NewNullDecimal(amount)
	}
	if resp.CompletedAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.CompletedAt); err == nil {
			status.CompletedAt = &ts
		}
	}
	return &status, nil
}

// VerifyWebhookSignature checks the bank's base64 RSA PKCS#1 v1.5
// SHA-256 signature over the raw body. Without a configured public key
// nothing verifies.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.publicKey == nil || signature == "" {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	digest := sha256.Sum256(body)
	return rsa.VerifyPKCS1v15(c.publicKey, crypto.SHA256, digest[:], raw) == nil
}

type webhookNotification struct {
	Event   string          `json:"event"`
	Payment paymentResponse `json:"payment"`
}

// ParseWebhookEvent normalizes a Cyclops notification.
func (c *Client) ParseWebhookEvent(body []byte) (*gateway.Event, error) {
	var note webhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("decode tochka notification: %w", err)
	}
	if note.Payment.PaymentID == "" {
		return nil, fmt.Errorf("tochka notification missing payment id")
	}

	var kind gateway.EventKind
	switch note.Event {
	case "payment.succeeded":
		kind = gateway.EventPaymentSucceeded
	case "payment.failed", "payment.cancelled":
		kind = gateway.EventPaymentCancelled
	case "refund.succeeded":
		kind = gateway.EventRefundSucceeded
	default:
		return nil, fmt.Errorf("unsupported tochka event %q", note.Event)
	}

	event := gateway.Event{
		Provider:      enums.PaymentProviderTochka,
		EventID:       note.Payment.PaymentID + ":" + note.Event,
		Kind:          kind,
		CorrelationID: note.Payment.PaymentID,
		OrderID:       note.Payment.OrderID,
		RawStatus:     note.Payment.Status,
	}
	if amount, err := decimal.NewFromString(note.Payment.Amount); err == nil {
		event.Amount = decimal.NewNullDecimal(amount)
	}
	return &event, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var encoded []byte
	var reader io.Reader
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode tochka request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("build tochka request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("X-Platform-Id", c.platformID)
	if len(encoded) > 0 {
		signature, err := c.signRequest(encoded)
		if err != nil {
			return err
		}
		req.Header.Set("X-Signature", signature)
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
		return fmt.Errorf("%w: tochka returned %d", gateway.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: tochka returned %d: %s", gateway.ErrRejected, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tochka response: %w", err)
	}
	return nil
}

func (c *Client) signRequest(body []byte) (string, error) {
	digest := sha256.Sum256(body)
	signature, err := rsa.SignPKCS1v15(nil, c.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign tochka request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tochka private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("tochka private key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse tochka private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tochka private key is not RSA")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tochka public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("tochka public key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse tochka public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("tochka public key is not RSA")
	}
	return key, nil
}

func mapStatus(raw string) enums.PaymentStatus {
	if mapped, ok := statusMap[strings.ToLower(raw)]; ok {
		return mapped
	}
	return enums.PaymentStatusPending
}
