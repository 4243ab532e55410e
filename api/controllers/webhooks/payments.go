package webhooks

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
)

const (
	signatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// PaymentWebhook receives provider callbacks. Applied, duplicate and
// unmatched events are all acknowledged with 200 so providers stop
// retrying; bad signatures and payloads are not.
func PaymentWebhook(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerName := strings.TrimSpace(chi.URLParam(r, "provider"))
		provider, err := enums.ParsePaymentProvider(providerName)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		outcome, err := engine.ReconcileWebhook(r.Context(), provider, body, r.Header.Get(signatureHeader))
		ctx := logg.WithFields(r.Context(), map[string]any{
			"provider": string(provider),
			"outcome":  outcome,
		})
		if err != nil {
			logg.Error(ctx, "webhook.rejected", err)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logg.Info(ctx, "webhook.processed")
		responses.WriteSuccess(w, map[string]string{"outcome": outcome})
	}
}
