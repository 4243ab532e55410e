package tochka

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
)

func writeKeyPair(t *testing.T) (privPath, pubPath string, key *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "platform.pem")
	pubPath = filepath.Join(dir, "bank.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o600))

	return privPath, pubPath, key
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *rsa.PrivateKey) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	privPath, pubPath, key := writeKeyPair(t)
	client, err := NewClient(config.TochkaConfig{
		APIURL:         server.URL,
		NominalAccount: "40702810000000000001",
		PlatformID:     "platform-7",
		PrivateKeyPath: privPath,
		PublicKeyPath:  pubPath,
	}, 5*time.Second)
	require.NoError(t, err)
	return client, key
}

func TestCreateDepositLink(t *testing.T) {
	var gotBody map[string]any
	var gotSignature, gotPlatform string

	// Declared up front so the handler closure can verify against the
	// key the client signs with.
	var (
		client *Client
		key    *rsa.PrivateKey
	)
	client, key = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments/deposits", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))
		gotPlatform = r.Header.Get("X-Platform-Id")
		gotSignature = r.Header.Get("X-Signature")

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		// The signature must cover the exact body the bank received.
		sig, err := base64.StdEncoding.DecodeString(gotSignature)
		require.NoError(t, err)
		digest := sha256.Sum256(raw)
		require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))

		json.NewEncoder(w).Encode(map[string]string{
			"paymentId":  "tk-pay-1",
			"paymentUrl": "https://pay.tochka.com/deposit/tk-pay-1",
			"status":     "pending",
		})
	}))

	link, err := client.CreateDepositLink(context.Background(), gateway.DepositRequest{
		OrderID:     "gb-42",
		UserID:      uuid.New(),
		Amount:      decimal.RequireFromString("150"),
		Description: "Deposit 150 RUB",
		ReturnURL:   "https://app.example/return",
	})
	require.NoError(t, err)
	require.Equal(t, "tk-pay-1", link.ExternalID)
	require.Equal(t, "https://pay.tochka.com/deposit/tk-pay-1", link.ConfirmationURL)
	require.Equal(t, enums.PaymentStatusPending, link.Status)

	require.Equal(t, "platform-7", gotPlatform)
	require.Equal(t, "40702810000000000001", gotBody["nominalAccountNumber"])
	require.Equal(t, "150.00", gotBody["amount"])
	require.Equal(t, "gb-42", gotBody["orderId"])
}

func TestGetPaymentStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/tk-pay-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"paymentId":   "tk-pay-1",
			"orderId":     "gb-42",
			"status":      "completed",
			"amount":      "150.00",
			"completedAt": "2026-08-20T10:00:00Z",
		})
	}))

	status, err := client.GetPaymentStatus(context.Background(), "tk-pay-1")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusSucceeded, status.Status)
	require.True(t, status.Amount.Valid)
	require.NotNil(t, status.CompletedAt)
}

func TestGetPaymentStatusMapsErrors(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := client.GetPaymentStatus(context.Background(), "tk-pay-1")
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	client, _ = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	_, err = client.GetPaymentStatus(context.Background(), "missing")
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestStatusMap(t *testing.T) {
	cases := map[string]enums.PaymentStatus{
		"pending":    enums.PaymentStatusPending,
		"processing": enums.PaymentStatusPending,
		"succeeded":  enums.PaymentStatusSucceeded,
		"completed":  enums.PaymentStatusSucceeded,
		"failed":     enums.PaymentStatusCancelled,
		"cancelled":  enums.PaymentStatusCancelled,
		"refunded":   enums.PaymentStatusRefunded,
		"weird":      enums.PaymentStatusPending,
	}
	for raw, want := range cases {
		require.Equal(t, want, mapStatus(raw), raw)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	client, key := newTestClient(t, http.NotFoundHandler())

	body := []byte(`{"event":"payment.succeeded","payment":{"paymentId":"tk-pay-1"}}`)
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(sig)

	require.True(t, client.VerifyWebhookSignature(body, encoded))
	require.False(t, client.VerifyWebhookSignature([]byte(`{"tampered":true}`), encoded))
	require.False(t, client.VerifyWebhookSignature(body, "not-base64!!"))
	require.False(t, client.VerifyWebhookSignature(body, ""))
}

func TestParseWebhookEvent(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	body := []byte(`{
		"event": "payment.succeeded",
		"payment": {
			"paymentId": "tk-pay-1",
			"orderId": "gb-42",
			"status": "succeeded",
			"amount": "99.90"
		}
	}`)

	event, err := client.ParseWebhookEvent(body)
	require.NoError(t, err)
	require.Equal(t, gateway.EventPaymentSucceeded, event.Kind)
	require.Equal(t, enums.PaymentProviderTochka, event.Provider)
	require.Equal(t, "tk-pay-1", event.CorrelationID)
	require.Equal(t, "gb-42", event.OrderID)
	require.True(t, event.Amount.Valid)
}

func TestParseWebhookEventRejectsUnknown(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	_, err := client.ParseWebhookEvent([]byte(`{"event":"account.opened","payment":{"paymentId":"x"}}`))
	require.Error(t, err)

	_, err = client.ParseWebhookEvent([]byte(`{"event":"payment.succeeded","payment":{}}`))
	require.Error(t, err)
}
