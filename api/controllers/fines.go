package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/readstack/readstack-backend/api/responses"
	"github.com/readstack/readstack-backend/api/validators"
	"github.com/readstack/readstack-backend/internal/fines"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

type payFineRequest struct {
	// Amount is optional; omitted or empty means pay the full
	// outstanding balance.
	Amount *string `json:"amount,omitempty"`
}

type waiveFineRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// FineList returns the member's fines with the outstanding total.
func FineList(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.ListByMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outstanding, err := svc.OutstandingTotal(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":       items,
			"outstanding": outstanding,
		})
	}
}

// FinePay applies a payment against the member's fine.
func FinePay(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fineID, err := pathUUID(r, "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req payFineRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount := decimal.Zero
		if req.Amount != nil && strings.TrimSpace(*req.Amount) != "" {
			amount, err = decimal.NewFromString(strings.TrimSpace(*req.Amount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
				return
			}
		}

		fine, err := svc.Pay(r.Context(), fines.PayInput{
			FineID:   fineID,
			MemberID: memberID,
			Amount:   amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fine)
	}
}

// FineWaive clears a fine by staff decision.
func FineWaive(svc fines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		librarianID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fineID, err := pathUUID(r, "fineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req waiveFineRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fine, err := svc.Waive(r.Context(), fines.WaiveInput{
			FineID:      fineID,
			LibrarianID: librarianID,
			Reason:      req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fine)
	}
}
