package controllers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/api/validators"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/pkg/auth"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/security"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type adminLoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdminLogin exchanges the configured admin credentials for a bearer
// token. Failures are reported uniformly so the endpoint does not leak
// which half of the credential pair was wrong.
func AdminLogin(cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminLoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if cfg.Admin.Email == "" || cfg.Admin.PasswordHash == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin credentials not configured"))
			return
		}

		emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(cfg.Admin.Email)) == 1
		passwordOK, err := security.VerifyPassword(req.Password, cfg.Admin.PasswordHash)
		if err != nil || !emailOK || !passwordOK {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
			return
		}

		now := time.Now().UTC()
		token, err := auth.MintAccessToken(cfg.JWT, now, auth.AccessTokenPayload{
			Subject: cfg.Admin.Email,
			Role:    enums.UserRoleAdmin,
			JTI:     uuid.NewString(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token"))
			return
		}

		responses.WriteSuccess(w, adminLoginResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   now.Add(time.Duration(cfg.JWT.ExpirationMinutes) * time.Minute),
		})
	}
}

type bonusRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"required,min=1,max=500"`
}

// AdminBonus credits a user's balance outside the payment flow.
func AdminBonus(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req bonusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		txn, err := engine.Bonus(r.Context(), userID, req.Amount, req.Description, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// AdminChargeParticipant debits one participant's contribution during
// the payment phase.
func AdminChargeParticipant(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		procurementID, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := engine.ChargeParticipant(r.Context(), procurementID, userID, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// AdminRefundParticipant reverses a charged participant back to
// confirmed.
func AdminRefundParticipant(engine *settlement.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		procurementID, err := validators.ParseUUIDParam(r, "procurementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := engine.RefundParticipant(r.Context(), procurementID, userID, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
