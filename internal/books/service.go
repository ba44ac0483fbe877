package books

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/db/models"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines catalog operations.
type Service interface {
	Create(ctx context.Context, input CreateBookInput) (*models.Book, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Book, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*models.Book, error)
	AddCopies(ctx context.Context, id uuid.UUID, count int) error
	RemoveCopies(ctx context.Context, id uuid.UUID, count int) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// CreateBookInput captures the fields needed to register a title.
type CreateBookInput struct {
	ISBN            string
	Title           string
	Author          string
	Publisher       *string
	PublishedYear   *int
	Genres          []string
	Summary         *string
	TotalCopies     int
	ReplacementCost *decimal.Decimal
}

// UpdateBookInput carries optional catalog updates; nil fields are untouched.
type UpdateBookInput struct {
	Title           *string
	Author          *string
	Publisher       *string
	PublishedYear   *int
	Genres          []string
	Summary         *string
	ReplacementCost *decimal.Decimal
}

// ListParams configures catalog listing.
type ListParams struct {
	Search     string
	Genre      string
	ActiveOnly bool
	Limit      int
	Cursor     string
}

// ListResult wraps returned books and the cursor for the next page.
type ListResult struct {
	Items  []models.Book `json:"items"`
	Cursor string        `json:"cursor"`
}

// NewService builds a catalog service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookInput) (*models.Book, error) {
	isbn := strings.TrimSpace(input.ISBN)
	if isbn == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "isbn required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if strings.TrimSpace(input.Author) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author required")
	}
	if input.TotalCopies < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total copies cannot be negative")
	}
	if input.ReplacementCost != nil && input.ReplacementCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "replacement cost cannot be negative")
	}

	genres := input.Genres
	if genres == nil {
		genres = []string{}
	}

	book := &models.Book{
		ID:              uuid.New(),
		ISBN:            isbn,
		Title:           strings.TrimSpace(input.Title),
		Author:          strings.TrimSpace(input.Author),
		Publisher:       input.Publisher,
		PublishedYear:   input.PublishedYear,
		Genres:          pq.StringArray(genres),
		Summary:         input.Summary,
		TotalCopies:     input.TotalCopies,
		AvailableCopies: input.TotalCopies,
		ReplacementCost: input.ReplacementCost,
		IsActive:        true,
	}

	created, err := s.repo.Create(ctx, book)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "isbn already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create book")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	return book, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listBooksParams{
		Search:     params.Search,
		Genre:      params.Genre,
		ActiveOnly: params.ActiveOnly,
		Limit:      params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*models.Book, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if input.ReplacementCost != nil && input.ReplacementCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "replacement cost cannot be negative")
	}

	updates := map[string]any{}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Author != nil {
		if strings.TrimSpace(*input.Author) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "author cannot be empty")
		}
		updates["author"] = strings.TrimSpace(*input.Author)
	}
	if input.Publisher != nil {
		updates["publisher"] = *input.Publisher
	}
	if input.PublishedYear != nil {
		updates["published_year"] = *input.PublishedYear
	}
	if input.Genres != nil {
		updates["genres"] = pq.StringArray(input.Genres)
	}
	if input.Summary != nil {
		updates["summary"] = *input.Summary
	}
	if input.ReplacementCost != nil {
		updates["replacement_cost"] = *input.ReplacementCost
	}

	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update book")
	}
	return s.Get(ctx, id)
}

// AddCopies grows both the owned total and the available pool.
func (s *service) AddCopies(ctx context.Context, id uuid.UUID, count int) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if count <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "count must be positive")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Exec(`
			UPDATE books
			SET total_copies = total_copies + ?,
				available_copies = available_copies + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, count, count, id)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "add copies")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return nil
	})
}

// RemoveCopies retires idle copies. Copies currently on loan or held cannot be
// removed, so the guard requires that many copies sitting in the pool.
func (s *service) RemoveCopies(ctx context.Context, id uuid.UUID, count int) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if count <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "count must be positive")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Exec(`
			UPDATE books
			SET total_copies = total_copies - ?,
				available_copies = available_copies - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND available_copies >= ?
		`, count, count, id, count)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "remove copies")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "not enough idle copies to remove")
		}
		return nil
	})
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, map[string]any{"is_active": false}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate book")
	}
	return nil
}
