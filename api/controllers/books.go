package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/readstack/readstack-backend/api/responses"
	"github.com/readstack/readstack-backend/api/validators"
	"github.com/readstack/readstack-backend/internal/books"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

type createBookRequest struct {
	ISBN            string   `json:"isbn" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Author          string   `json:"author" validate:"required"`
	Publisher       *string  `json:"publisher,omitempty"`
	PublishedYear   *int     `json:"publishedYear,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	Summary         *string  `json:"summary,omitempty"`
	TotalCopies     int      `json:"totalCopies" validate:"required,min=1"`
	ReplacementCost *string  `json:"replacementCost,omitempty"`
}

type updateBookRequest struct {
	Title           *string  `json:"title,omitempty"`
	Author          *string  `json:"author,omitempty"`
	Publisher       *string  `json:"publisher,omitempty"`
	PublishedYear   *int     `json:"publishedYear,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	Summary         *string  `json:"summary,omitempty"`
	ReplacementCost *string  `json:"replacementCost,omitempty"`
}

type adjustCopiesRequest struct {
	Count int `json:"count" validate:"required"`
}

// BookList returns the catalog with optional search and genre filters.
func BookList(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := books.ListParams{
			Search: strings.TrimSpace(r.URL.Query().Get("search")),
			Genre:  strings.TrimSpace(r.URL.Query().Get("genre")),
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		activeOnly, err := queryBool(r, "activeOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.ActiveOnly = activeOnly

		limit, err := queryLimit(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// BookDetail returns a single catalog entry.
func BookDetail(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		book, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

// BookCreate registers a new title in the catalog.
func BookCreate(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cost, err := parseOptionalAmount(req.ReplacementCost)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := svc.Create(r.Context(), books.CreateBookInput{
			ISBN:            req.ISBN,
			Title:           req.Title,
			Author:          req.Author,
			Publisher:       req.Publisher,
			PublishedYear:   req.PublishedYear,
			Genres:          req.Genres,
			Summary:         req.Summary,
			TotalCopies:     req.TotalCopies,
			ReplacementCost: cost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, book)
	}
}

// BookUpdate patches catalog fields on an existing title.
func BookUpdate(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateBookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cost, err := parseOptionalAmount(req.ReplacementCost)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := svc.Update(r.Context(), id, books.UpdateBookInput{
			Title:           req.Title,
			Author:          req.Author,
			Publisher:       req.Publisher,
			PublishedYear:   req.PublishedYear,
			Genres:          req.Genres,
			Summary:         req.Summary,
			ReplacementCost: cost,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

// BookAdjustCopies adds or removes physical copies. Positive counts add,
// negative counts retire.
func BookAdjustCopies(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustCopiesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch {
		case req.Count > 0:
			err = svc.AddCopies(r.Context(), id, req.Count)
		case req.Count < 0:
			err = svc.RemoveCopies(r.Context(), id, -req.Count)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "count must be non-zero")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// BookDeactivate removes a title from circulation.
func BookDeactivate(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

func parseOptionalAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}
	return &amount, nil
}
