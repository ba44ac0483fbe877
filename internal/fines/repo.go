package fines

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
)

// Repository exposes persistence helpers for fines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, fine *models.Fine) (*models.Fine, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Fine, error)
	FindOverdueByLoan(ctx context.Context, loanID uuid.UUID) (*models.Fine, error)
	FindByLoanAndType(ctx context.Context, loanID uuid.UUID, fineType enums.FineType) (*models.Fine, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error)
	ListOpenByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateGuarded(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fines repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, fine *models.Fine) (*models.Fine, error) {
	if err := r.db.WithContext(ctx).Create(fine).Error; err != nil {
		return nil, err
	}
	return fine, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&fine).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

// FindOverdueByLoan returns the single unsettled overdue fine attached to the
// loan. Settled overdue fines are skipped so a fresh one can be opened if the
// loan falls overdue again after payment.
func (r *repository) FindOverdueByLoan(ctx context.Context, loanID uuid.UUID) (*models.Fine, error) {
	var fine models.Fine
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND type = ?", loanID, enums.FineTypeOverdue).
		Where("status IN ?", []enums.FineStatus{enums.FineStatusPending, enums.FineStatusPartiallyPaid}).
		First(&fine).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

// FindByLoanAndType returns the unwaived fine of the given type on the loan.
// Waived fines are invisible here so a penalty can be re-assessed after a
// mistaken waiver.
func (r *repository) FindByLoanAndType(ctx context.Context, loanID uuid.UUID, fineType enums.FineType) (*models.Fine, error) {
	var fine models.Fine
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND type = ?", loanID, fineType).
		Where("status <> ?", enums.FineStatusWaived).
		First(&fine).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	var fines []models.Fine
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&fines).Error
	if err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *repository) ListOpenByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	var fines []models.Fine
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Where("status IN ?", []enums.FineStatus{enums.FineStatusPending, enums.FineStatusPartiallyPaid}).
		Order("created_at ASC").
		Find(&fines).Error
	if err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Fine{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateGuarded applies updates only while the fine is still open. Zero rows
// affected means a concurrent payment or waiver settled it first.
func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Fine{}).
		Where("id = ?", id).
		Where("status IN ?", []enums.FineStatus{enums.FineStatusPending, enums.FineStatusPartiallyPaid}).
		Updates(updates)
	return res.RowsAffected, res.Error
}
