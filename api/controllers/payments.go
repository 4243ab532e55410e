package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/api/validators"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
)

type depositRequest struct {
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	ProcurementID *uuid.UUID      `json:"procurement_id,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// PaymentDeposit creates a deposit payment and returns the provider
// confirmation link. When every provider is down the payment is still
// persisted and manual_confirmation is set so the caller can route the
// user to support.
func PaymentDeposit(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		result, err := engine.RequestDeposit(r.Context(), settlement.DepositInput{
			UserID:        req.UserID,
			Amount:        req.Amount,
			ProcurementID: req.ProcurementID,
			Description:   req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func PaymentGet(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// PaymentPoll asks the issuing provider for the current status and
// settles the payment if it reached a terminal state.
func PaymentPoll(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := engine.PollStatus(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func PaymentList(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter payments.ListFilter
		if id, err := validators.ParseQueryUUID(r, "user_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if id != uuid.Nil {
			filter.UserID = &id
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown status"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			paymentType, err := enums.ParsePaymentType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown type"))
				return
			}
			filter.Type = &paymentType
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("provider")); raw != "" {
			provider, err := enums.ParsePaymentProvider(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
				return
			}
			filter.Provider = &provider
		}

		page, err := svc.List(r.Context(), filter, p)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
