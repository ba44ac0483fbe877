package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
)

// Repository exposes persistence helpers for loans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.BookLoan) (*models.BookLoan, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.BookLoan, error)
	FindActiveByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.BookLoan, error)
	CountActiveByMember(ctx context.Context, memberID uuid.UUID) (int64, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, activeOnly bool) ([]models.BookLoan, error)
	FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]models.BookLoan, error)
	FindOverdueUnnoticed(ctx context.Context) ([]models.BookLoan, error)
	FindDueUnreminded(ctx context.Context, from, to time.Time) ([]models.BookLoan, error)
	UpdateGuarded(ctx context.Context, id uuid.UUID, from enums.LoanStatus, updates map[string]any) (int64, error)
	Renew(ctx context.Context, id uuid.UUID, fromCount int, newDueAt time.Time) (int64, error)
	FlagLoans(ctx context.Context, ids []uuid.UUID, column string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a loans repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.BookLoan) (*models.BookLoan, error) {
	if err := r.db.WithContext(ctx).Create(loan).Error; err != nil {
		return nil, err
	}
	return loan, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BookLoan, error) {
	var loan models.BookLoan
	if err := r.db.WithContext(ctx).Preload("Book").Where("id = ?", id).First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) FindActiveByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.BookLoan, error) {
	var loan models.BookLoan
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND book_id = ?", memberID, bookID).
		Where("status IN ?", []enums.LoanStatus{enums.LoanStatusCheckedOut, enums.LoanStatusOverdue}).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) CountActiveByMember(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("member_id = ?", memberID).
		Where("status IN ?", []enums.LoanStatus{enums.LoanStatusCheckedOut, enums.LoanStatusOverdue}).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID, activeOnly bool) ([]models.BookLoan, error) {
	query := r.db.WithContext(ctx).
		Preload("Book").
		Where("member_id = ?", memberID)
	if activeOnly {
		query = query.Where("status IN ?", []enums.LoanStatus{enums.LoanStatusCheckedOut, enums.LoanStatusOverdue})
	}
	var loans []models.BookLoan
	if err := query.Order("checked_out_at DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// FindOverdueCandidates returns active loans past due, both the ones the sweep
// has yet to flip and the already-overdue ones still accruing.
func (r *repository) FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]models.BookLoan, error) {
	query := r.db.WithContext(ctx).
		Where("due_at < ?", asOf).
		Where("status IN ?", []enums.LoanStatus{enums.LoanStatusCheckedOut, enums.LoanStatusOverdue}).
		Order("due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var loans []models.BookLoan
	if err := query.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) FindOverdueUnnoticed(ctx context.Context) ([]models.BookLoan, error) {
	var loans []models.BookLoan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("status = ? AND notice_sent = ?", enums.LoanStatusOverdue, false).
		Order("member_id ASC, due_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) FindDueUnreminded(ctx context.Context, from, to time.Time) ([]models.BookLoan, error) {
	var loans []models.BookLoan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("status = ? AND reminder_sent = ?", enums.LoanStatusCheckedOut, false).
		Where("due_at >= ? AND due_at <= ?", from, to).
		Order("member_id ASC, due_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// UpdateGuarded applies updates only while the loan holds the expected status.
// Zero rows affected means it transitioned concurrently.
func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, from enums.LoanStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// Renew extends the due date with the renewal count doubling as an optimistic
// version. Zero rows affected means the loan changed under the caller.
func (r *repository) Renew(ctx context.Context, id uuid.UUID, fromCount int, newDueAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("id = ? AND status = ? AND renewal_count = ?", id, enums.LoanStatusCheckedOut, fromCount).
		Updates(map[string]any{
			"due_at":        newDueAt,
			"renewal_count": fromCount + 1,
		})
	return res.RowsAffected, res.Error
}

// FlagLoans sets a boolean marker column on the given loans.
func (r *repository) FlagLoans(ctx context.Context, ids []uuid.UUID, column string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("id IN ?", ids).
		Update(column, true).Error
}
