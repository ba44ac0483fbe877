package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/readstack/readstack-backend/api/middleware"
	"github.com/readstack/readstack-backend/api/responses"
	"github.com/readstack/readstack-backend/api/validators"
	"github.com/readstack/readstack-backend/internal/loans"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

const defaultExtensionDays = 14

type checkoutRequest struct {
	BookID uuid.UUID `json:"bookId" validate:"required"`
	Days   int       `json:"days,omitempty" validate:"omitempty,min=1"`
}

type renewRequest struct {
	ExtensionDays int `json:"extensionDays,omitempty" validate:"omitempty,min=1"`
}

type checkinRequest struct {
	Condition string `json:"condition" validate:"required,oneof=returned lost damaged"`
}

// LoanCheckout lends an available copy to the authenticated member.
func LoanCheckout(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.Checkout(r.Context(), memberID, req.BookID, req.Days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

// LoanRenew extends the due date of an active loan.
func LoanRenew(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loanID, err := pathUUID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req renewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.ExtensionDays == 0 {
			req.ExtensionDays = defaultExtensionDays
		}

		loan, err := svc.Renew(r.Context(), memberID, loanID, req.ExtensionDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// LoanCheckIn closes out a loan. Members may only return their own
// loans; librarians and admins can check in any copy.
func LoanCheckIn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loanID, err := pathUUID(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		condition, err := enums.ParseCheckinCondition(req.Condition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
			return
		}

		role := middleware.RoleFromContext(r.Context())
		if role == string(enums.MemberRoleMember) {
			loan, err := svc.Get(r.Context(), loanID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if loan.MemberID != memberID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "loan does not belong to member"))
				return
			}
		}

		loan, err := svc.CheckIn(r.Context(), loanID, condition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// LoanList returns the member's loans, optionally only the active ones.
func LoanList(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activeOnly, err := queryBool(r, "activeOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListByMember(r.Context(), memberID, activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
