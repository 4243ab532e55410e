package responses

import (
	"errors"

	"gorm.io/gorm"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
)

// translateDomain maps the sentinel errors the domain services return
// onto API error codes. Services stay free of HTTP concerns; the
// boundary owns the mapping.
func translateDomain(err error) *pkgerrors.Error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "resource not found")
	case errors.Is(err, settlement.ErrJoinClosed):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "procurement does not accept membership changes")
	case errors.Is(err, settlement.ErrAlreadyJoined):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "already participating")
	case errors.Is(err, settlement.ErrNotParticipant):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "not a participant")
	case errors.Is(err, settlement.ErrWrongPhase):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "procurement is not in the payment phase")
	case errors.Is(err, settlement.ErrNoProviders):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "no payment provider available")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "insufficient funds")
	case errors.Is(err, procurements.ErrForbidden):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "not allowed to manage this procurement")
	case errors.Is(err, procurements.ErrInvalidTransition):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "status transition not allowed")
	case errors.Is(err, gateway.ErrRejected):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider rejected the request")
	case errors.Is(err, gateway.ErrUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "conflict detected")
	}
	return nil
}
