package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/api/validators"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
)

type createProcurementRequest struct {
	OrganizerID     uuid.UUID        `json:"organizer_id" validate:"required"`
	SupplierID      *uuid.UUID       `json:"supplier_id,omitempty"`
	CategoryID      *uuid.UUID       `json:"category_id,omitempty"`
	Title           string           `json:"title" validate:"required,min=1,max=255"`
	Description     string           `json:"description,omitempty"`
	City            string           `json:"city,omitempty"`
	TargetAmount    decimal.Decimal  `json:"target_amount" validate:"required"`
	Unit            string           `json:"unit,omitempty" validate:"omitempty,max=20"`
	PricePerUnit    *decimal.Decimal `json:"price_per_unit,omitempty"`
	StopAtAmount    *decimal.Decimal `json:"stop_at_amount,omitempty"`
	Deadline        *time.Time       `json:"deadline,omitempty"`
	PaymentDeadline *time.Time       `json:"payment_deadline,omitempty"`
	IsFeatured      bool             `json:"is_featured,omitempty"`
}

func ProcurementCreate(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProcurementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		procurement, err := svc.Create(r.Context(), procurements.CreateInput{
			OrganizerID:     req.OrganizerID,
			SupplierID:      req.SupplierID,
			CategoryID:      req.CategoryID,
			Title:           req.Title,
			Description:     req.Description,
			City:            req.City,
			TargetAmount:    req.TargetAmount,
			Unit:            req.Unit,
			PricePerUnit:    req.PricePerUnit,
			StopAtAmount:    req.StopAtAmount,
			Deadline:        req.Deadline,
			PaymentDeadline: req.PaymentDeadline,
			IsFeatured:      req.IsFeatured,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, procurement)
	}
}

func ProcurementList(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := procurements.ListFilter{
			City:       strings.TrimSpace(r.URL.Query().Get("city")),
			Search:     strings.TrimSpace(r.URL.Query().Get("search")),
			ActiveOnly: validators.ParseQueryBool(r, "active_only"),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseProcurementStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown status"))
				return
			}
			filter.Status = &status
		}
		if id, err := validators.ParseQueryUUID(r, "category_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if id != uuid.Nil {
			filter.CategoryID = &id
		}
		if id, err := validators.ParseQueryUUID(r, "organizer_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if id != uuid.Nil {
			filter.OrganizerID = &id
		}

		page, err := svc.List(r.Context(), filter, p)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func ProcurementGet(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		procurement, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, procurement)
	}
}

func ProcurementParticipants(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.Participants(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// ProcurementCheckAccess reports whether the user may see procurement
// internals (organizer or active participant).
func ProcurementCheckAccess(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter required"))
			return
		}
		allowed, err := svc.CheckAccess(r.Context(), id, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"has_access": allowed})
	}
}

type joinRequest struct {
	UserID   uuid.UUID        `json:"user_id" validate:"required"`
	Quantity int              `json:"quantity" validate:"required,gt=0"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Notes    string           `json:"notes,omitempty" validate:"omitempty,max=500"`
}

func ProcurementJoin(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req joinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		participant, err := engine.Join(r.Context(), settlement.JoinInput{
			ProcurementID: id,
			UserID:        req.UserID,
			Quantity:      req.Quantity,
			Amount:        req.Amount,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, participant)
	}
}

type leaveRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

func ProcurementLeave(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req leaveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := engine.Leave(r.Context(), id, req.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "left"})
	}
}

type statusRequest struct {
	ActorID uuid.UUID `json:"actor_id" validate:"required"`
	Status  string    `json:"status" validate:"required"`
}

// ProcurementStatus applies an organizer/admin driven transition.
func ProcurementStatus(svc procurements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParseProcurementStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown status"))
			return
		}
		procurement, err := svc.UpdateStatus(r.Context(), id, req.ActorID, next)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, procurement)
	}
}
