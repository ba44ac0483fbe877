package fines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines fine operations.
type Service interface {
	AccrueOverdue(ctx context.Context, tx *gorm.DB, loan *models.BookLoan, book *models.Book, now time.Time) (*models.Fine, error)
	AssessFlat(ctx context.Context, tx *gorm.DB, input AssessInput) (*models.Fine, error)
	Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error)
	Pay(ctx context.Context, input PayInput) (*models.Fine, error)
	Waive(ctx context.Context, input WaiveInput) (*models.Fine, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error)
	OutstandingTotal(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier notifications.Notifier
	policy   config.PolicyConfig
	now      func() time.Time
}

// AssessInput describes a flat fine charged in one shot.
type AssessInput struct {
	LoanID   *uuid.UUID
	MemberID uuid.UUID
	Type     enums.FineType
	Amount   decimal.Decimal
	Reason   string
}

// PayInput applies money against an open fine. MemberID, when set, must match
// the fine's owner. A zero Amount settles the full outstanding balance.
type PayInput struct {
	FineID   uuid.UUID
	MemberID uuid.UUID
	Amount   decimal.Decimal
}

// WaiveInput clears a fine by librarian decision.
type WaiveInput struct {
	FineID      uuid.UUID
	LibrarianID uuid.UUID
	Reason      string
}

// NewService builds a fines service with the required dependencies.
func NewService(repo Repository, tx txRunner, notifier notifications.Notifier, policy config.PolicyConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fines repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}, nil
}

// AccrueOverdue advances the loan's overdue fine up to now, charging the daily
// rate for each full day since the last accrual point. The loan's
// last_accrued_at marker moves with the charge, so replaying a sweep over the
// same window adds nothing.
func (s *service) AccrueOverdue(ctx context.Context, tx *gorm.DB, loan *models.BookLoan, book *models.Book, now time.Time) (*models.Fine, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for accrual")
	}
	if loan == nil || book == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan and book required")
	}

	start := loan.DueAt
	if loan.LastAccruedAt != nil && loan.LastAccruedAt.After(start) {
		start = *loan.LastAccruedAt
	}

	days := int(now.Sub(start) / (24 * time.Hour))
	if days <= 0 {
		return nil, nil
	}
	delta := s.policy.DailyRate().Mul(decimal.NewFromInt(int64(days)))

	cap := s.policy.FallbackCap()
	if book.ReplacementCost != nil {
		cap = *book.ReplacementCost
	}

	repo := s.repo.WithTx(tx)
	accruedTo := start.Add(time.Duration(days) * 24 * time.Hour)

	fine, err := repo.FindOverdueByLoan(ctx, loan.ID)
	switch {
	case err == gorm.ErrRecordNotFound:
		amount := delta
		if amount.GreaterThan(cap) {
			amount = cap
		}
		fine = &models.Fine{
			ID:         uuid.New(),
			LoanID:     &loan.ID,
			MemberID:   loan.MemberID,
			Type:       enums.FineTypeOverdue,
			Status:     enums.FineStatusPending,
			Amount:     amount,
			AmountPaid: decimal.Zero,
			Cap:        &cap,
		}
		if _, err := repo.Create(ctx, fine); err != nil {
			if db.IsUniqueViolation(err, "") {
				return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "overdue fine created concurrently")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create overdue fine")
		}
		if _, err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
			MemberID: loan.MemberID,
			Kind:     enums.NotificationKindFineAssessed,
			Title:    "Overdue fine assessed",
			Body:     fmt.Sprintf("A fine of %s has been assessed for %q.", amount.StringFixed(2), book.Title),
			LoanIDs:  []uuid.UUID{loan.ID},
			Payload:  map[string]any{"fine_id": fine.ID, "amount": amount},
		}); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load overdue fine")
	default:
		newAmount := fine.Amount.Add(delta)
		if newAmount.GreaterThan(cap) {
			newAmount = cap
		}
		if !newAmount.Equal(fine.Amount) {
			affected, err := repo.UpdateGuarded(ctx, fine.ID, map[string]any{"amount": newAmount})
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grow overdue fine")
			}
			if affected == 0 {
				return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "fine settled concurrently")
			}
			fine.Amount = newAmount
		}
	}

	err = tx.WithContext(ctx).Model(&models.BookLoan{}).
		Where("id = ?", loan.ID).
		Update("last_accrued_at", accruedTo).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance accrual marker")
	}
	loan.LastAccruedAt = &accruedTo

	return fine, nil
}

// AssessFlat charges a one-shot fine inside the caller's transaction.
// Re-assessing the same type against the same loan returns the existing fine
// unchanged; only a waiver clears the slot.
func (s *service) AssessFlat(ctx context.Context, tx *gorm.DB, input AssessInput) (*models.Fine, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for assessment")
	}
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if !input.Type.IsValid() || input.Type == enums.FineTypeOverdue {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid flat fine type")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine amount must be positive")
	}

	if input.LoanID != nil {
		existing, err := s.repo.WithTx(tx).FindByLoanAndType(ctx, *input.LoanID, input.Type)
		if err == nil {
			return existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup existing fine")
		}
	}

	var reason *string
	if trimmed := strings.TrimSpace(input.Reason); trimmed != "" {
		reason = &trimmed
	}

	fine := &models.Fine{
		ID:         uuid.New(),
		LoanID:     input.LoanID,
		MemberID:   input.MemberID,
		Type:       input.Type,
		Status:     enums.FineStatusPending,
		Amount:     input.Amount,
		AmountPaid: decimal.Zero,
		Reason:     reason,
	}
	if _, err := s.repo.WithTx(tx).Create(ctx, fine); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fine")
	}

	var loanIDs []uuid.UUID
	if input.LoanID != nil {
		loanIDs = []uuid.UUID{*input.LoanID}
	}
	if _, err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
		MemberID: input.MemberID,
		Kind:     enums.NotificationKindFineAssessed,
		Title:    "Fine assessed",
		Body:     fmt.Sprintf("A %s fine of %s has been added to your account.", input.Type, input.Amount.StringFixed(2)),
		LoanIDs:  loanIDs,
		Payload:  map[string]any{"fine_id": fine.ID, "amount": input.Amount, "type": input.Type},
	}); err != nil {
		return nil, err
	}

	return fine, nil
}

func (s *service) Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	if fineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine id required")
	}
	fine, err := s.repo.FindByID(ctx, fineID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fine")
	}
	return fine, nil
}

// Pay applies a payment to an open fine. A zero amount pays the full
// outstanding balance. Partial payments leave the fine partially_paid;
// covering the balance settles it.
func (s *service) Pay(ctx context.Context, input PayInput) (*models.Fine, error) {
	if input.FineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine id required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must not be negative")
	}

	var paid *models.Fine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		fine, err := repo.FindByID(ctx, input.FineID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "fine not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fine")
		}
		if input.MemberID != uuid.Nil && fine.MemberID != input.MemberID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "fine does not belong to member")
		}
		if fine.Status.IsSettled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fine already settled")
		}

		amount := input.Amount
		if amount.IsZero() {
			amount = fine.Outstanding()
		}
		if amount.GreaterThan(fine.Outstanding()) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds outstanding balance")
		}

		newPaid := fine.AmountPaid.Add(amount)
		updates := map[string]any{
			"amount_paid": newPaid,
			"status":      enums.FineStatusPartiallyPaid,
		}
		if newPaid.Equal(fine.Amount) {
			now := s.now().UTC()
			updates["status"] = enums.FineStatusPaid
			updates["settled_at"] = now
			fine.SettledAt = &now
		}

		affected, err := repo.UpdateGuarded(ctx, fine.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "fine changed concurrently")
		}

		fine.AmountPaid = newPaid
		fine.Status = updates["status"].(enums.FineStatus)
		paid = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Waive settles a fine without payment, recording who cleared it.
func (s *service) Waive(ctx context.Context, input WaiveInput) (*models.Fine, error) {
	if input.FineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fine id required")
	}
	if input.LibrarianID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "librarian id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waive reason required")
	}

	var waived *models.Fine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		fine, err := repo.FindByID(ctx, input.FineID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "fine not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fine")
		}
		if fine.Status.IsSettled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fine already settled")
		}

		now := s.now().UTC()
		affected, err := repo.UpdateGuarded(ctx, fine.ID, map[string]any{
			"status":     enums.FineStatusWaived,
			"waived_by":  input.LibrarianID,
			"reason":     reason,
			"settled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "waive fine")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "fine changed concurrently")
		}

		fine.Status = enums.FineStatusWaived
		fine.WaivedBy = &input.LibrarianID
		fine.Reason = &reason
		fine.SettledAt = &now
		waived = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return waived, nil
}

func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	fines, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list fines")
	}
	return fines, nil
}

// OutstandingTotal sums the unpaid remainder across the member's open fines.
func (s *service) OutstandingTotal(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	if memberID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	open, err := s.repo.ListOpenByMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open fines")
	}
	total := decimal.Zero
	for _, fine := range open {
		total = total.Add(fine.Outstanding())
	}
	return total, nil
}
