package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/api/validators"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
)

func TransactionList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter required"))
			return
		}
		p, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter ledger.ListFilter
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown type"))
				return
			}
			filter.Type = &txType
		}
		if id, err := validators.ParseQueryUUID(r, "procurement_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if id != uuid.Nil {
			filter.ProcurementID = &id
		}

		page, err := svc.ListByUser(r.Context(), userID, filter, p)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// TransactionSummary returns the user's balance with per-type totals.
func TransactionSummary(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter required"))
			return
		}
		summary, err := svc.Summary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
