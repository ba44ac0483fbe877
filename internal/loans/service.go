package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// entitlementChecker is the slice of the subscriptions service checkout needs.
type entitlementChecker interface {
	EntitlementFor(ctx context.Context, memberID uuid.UUID, at time.Time) (subscriptions.Entitlement, error)
}

// reservationManager is the slice of the reservations service the lifecycle
// consumes. Loans owns the orchestration; reservations never calls back.
type reservationManager interface {
	FulfillHold(ctx context.Context, tx *gorm.DB, memberID, bookID uuid.UUID) (bool, error)
	PromoteNext(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (*models.Reservation, error)
	HasPending(ctx context.Context, bookID uuid.UUID) (bool, error)
}

// fineAssessor is the slice of the fines service invoked on transitions.
type fineAssessor interface {
	AccrueOverdue(ctx context.Context, tx *gorm.DB, loan *models.BookLoan, book *models.Book, now time.Time) (*models.Fine, error)
	AssessFlat(ctx context.Context, tx *gorm.DB, input fines.AssessInput) (*models.Fine, error)
}

// Service defines loan lifecycle operations.
type Service interface {
	Checkout(ctx context.Context, memberID, bookID uuid.UUID, days int) (*models.BookLoan, error)
	Renew(ctx context.Context, memberID, loanID uuid.UUID, extensionDays int) (*models.BookLoan, error)
	CheckIn(ctx context.Context, loanID uuid.UUID, condition enums.CheckinCondition) (*models.BookLoan, error)
	Get(ctx context.Context, loanID uuid.UUID) (*models.BookLoan, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, activeOnly bool) ([]models.BookLoan, error)
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	SendOverdueNotices(ctx context.Context, now time.Time) (int, error)
	SendDueReminders(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo         Repository
	books        books.Repository
	pool         books.CopyPool
	tx           txRunner
	reservations reservationManager
	fines        fineAssessor
	entitlements entitlementChecker
	notifier     notifications.Notifier
	logg         *logger.Logger
	policy       config.PolicyConfig
	now          func() time.Time
}

// NewService builds the loan lifecycle service with the required dependencies.
func NewService(
	repo Repository,
	bookRepo books.Repository,
	pool books.CopyPool,
	tx txRunner,
	reservationSvc reservationManager,
	fineSvc fineAssessor,
	entitlements entitlementChecker,
	notifier notifications.Notifier,
	logg *logger.Logger,
	policy config.PolicyConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("loans repository required")
	}
	if bookRepo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if pool == nil {
		return nil, fmt.Errorf("copy pool required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservations service required")
	}
	if fineSvc == nil {
		return nil, fmt.Errorf("fines service required")
	}
	if entitlements == nil {
		return nil, fmt.Errorf("entitlement checker required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:         repo,
		books:        bookRepo,
		pool:         pool,
		tx:           tx,
		reservations: reservationSvc,
		fines:        fineSvc,
		entitlements: entitlements,
		notifier:     notifier,
		logg:         logg,
		policy:       policy,
		now:          time.Now,
	}, nil
}

// Checkout issues a copy to the member. An AVAILABLE hold for the same book is
// consumed instead of drawing from the pool, since its copy was already set
// aside. Pool races retry a bounded number of times before surfacing.
func (s *service) Checkout(ctx context.Context, memberID, bookID uuid.UUID, days int) (*models.BookLoan, error) {
	if memberID == uuid.Nil || bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member and book ids required")
	}

	now := s.now().UTC()
	entitlement, err := s.entitlements.EntitlementFor(ctx, memberID, now)
	if err != nil {
		return nil, err
	}
	if !entitlement.Active {
		return nil, pkgerrors.New(pkgerrors.CodeEntitlement, "no active subscription")
	}
	if days <= 0 {
		days = entitlement.LoanDays
	}
	if days > entitlement.LoanDays {
		return nil, pkgerrors.New(pkgerrors.CodeEntitlement, "loan period exceeds plan limit")
	}

	active, err := s.repo.CountActiveByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	if active >= int64(entitlement.MaxBooks) {
		return nil, pkgerrors.New(pkgerrors.CodeEntitlement, "borrowing limit reached")
	}

	if _, err := s.repo.FindActiveByMemberAndBook(ctx, memberID, bookID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "member already has this book on loan")
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active loan")
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	if !book.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "book is not in circulation")
	}

	attempts := s.policy.ConcurrencyRetries
	if attempts < 1 {
		attempts = 1
	}

	var created *models.BookLoan
	for attempt := 0; attempt < attempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			fulfilled, err := s.reservations.FulfillHold(ctx, tx, memberID, bookID)
			if err != nil {
				return err
			}
			if !fulfilled {
				current, err := s.books.WithTx(tx).FindByID(ctx, bookID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
				}
				if current.AvailableCopies <= 0 {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "no copies available")
				}
				if err := s.pool.Acquire(ctx, tx, bookID); err != nil {
					return err
				}
			}

			loan := &models.BookLoan{
				ID:           uuid.New(),
				BookID:       bookID,
				MemberID:     memberID,
				Status:       enums.LoanStatusCheckedOut,
				CheckedOutAt: now,
				DueAt:        now.AddDate(0, 0, days),
				MaxRenewals:  entitlement.MaxRenewals,
			}
			if _, err := s.repo.WithTx(tx).Create(ctx, loan); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.New(pkgerrors.CodeConflict, "member already has this book on loan")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
			}
			created = loan
			return nil
		})
		if err == nil {
			return created, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrency) {
			return nil, err
		}
	}
	return nil, err
}

// Renew pushes the due date out. Overdue loans, loans at their renewal limit,
// and books with members waiting in the queue are not renewable.
func (s *service) Renew(ctx context.Context, memberID, loanID uuid.UUID, extensionDays int) (*models.BookLoan, error) {
	if memberID == uuid.Nil || loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member and loan ids required")
	}
	if extensionDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "extension days must be positive")
	}

	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan.MemberID != memberID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "loan does not belong to member")
	}
	if loan.Status == enums.LoanStatusOverdue {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "overdue loans cannot be renewed")
	}
	if loan.Status != enums.LoanStatusCheckedOut {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loan already closed")
	}
	if loan.RenewalCount >= loan.MaxRenewals {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "renewal limit reached")
	}

	waiting, err := s.reservations.HasPending(ctx, loan.BookID)
	if err != nil {
		return nil, err
	}
	if waiting {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "another member is waiting for this book")
	}

	newDueAt := loan.DueAt.AddDate(0, 0, extensionDays)
	affected, err := s.repo.Renew(ctx, loan.ID, loan.RenewalCount, newDueAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew loan")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "loan changed concurrently")
	}

	loan.DueAt = newDueAt
	loan.RenewalCount++
	return loan, nil
}

// CheckIn terminates the loan. A clean return feeds the copy back through the
// hold queue; lost and damaged copies leave circulation and draw penalties.
func (s *service) CheckIn(ctx context.Context, loanID uuid.UUID, condition enums.CheckinCondition) (*models.BookLoan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	if !condition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkin condition")
	}

	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if !loan.Status.IsActive() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loan already closed")
	}

	book := loan.Book
	if book == nil {
		book, err = s.books.FindByID(ctx, loan.BookID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
		}
	}

	now := s.now().UTC()
	newStatus := condition.LoanStatus()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).UpdateGuarded(ctx, loan.ID, loan.Status, map[string]any{
			"status":      newStatus,
			"returned_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close loan")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "loan changed concurrently")
		}

		switch condition {
		case enums.CheckinConditionReturned:
			// settle any outstanding overdue days before the copy moves on,
			// even if the sweep never flipped the status
			if loan.Status == enums.LoanStatusOverdue || loan.DueAt.Before(now) {
				if _, err := s.fines.AccrueOverdue(ctx, tx, loan, book, now); err != nil {
					return err
				}
			}
			if err := s.pool.Release(ctx, tx, loan.BookID); err != nil {
				return err
			}
			if _, err := s.reservations.PromoteNext(ctx, tx, loan.BookID); err != nil {
				return err
			}
		case enums.CheckinConditionLost:
			amount := s.policy.FallbackCap()
			if book.ReplacementCost != nil {
				amount = *book.ReplacementCost
			}
			if _, err := s.fines.AssessFlat(ctx, tx, fines.AssessInput{
				LoanID:   &loan.ID,
				MemberID: loan.MemberID,
				Type:     enums.FineTypeLoss,
				Amount:   amount,
				Reason:   "copy reported lost",
			}); err != nil {
				return err
			}
			if s.policy.ChargeProcessingFee {
				if _, err := s.fines.AssessFlat(ctx, tx, fines.AssessInput{
					LoanID:   &loan.ID,
					MemberID: loan.MemberID,
					Type:     enums.FineTypeProcessing,
					Amount:   s.policy.ProcessingAmount(),
					Reason:   "lost copy processing",
				}); err != nil {
					return err
				}
			}
			if err := s.pool.Remove(ctx, tx, loan.BookID); err != nil {
				return err
			}
		case enums.CheckinConditionDamaged:
			if _, err := s.fines.AssessFlat(ctx, tx, fines.AssessInput{
				LoanID:   &loan.ID,
				MemberID: loan.MemberID,
				Type:     enums.FineTypeDamage,
				Amount:   s.policy.DamageAmount(),
				Reason:   "copy returned damaged",
			}); err != nil {
				return err
			}
			if err := s.pool.Remove(ctx, tx, loan.BookID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	loan.Status = newStatus
	loan.ReturnedAt = &now
	return loan, nil
}

func (s *service) Get(ctx context.Context, loanID uuid.UUID) (*models.BookLoan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	return loan, nil
}

func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID, activeOnly bool) ([]models.BookLoan, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	loans, err := s.repo.ListByMember(ctx, memberID, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return loans, nil
}

// MarkOverdue flips past-due loans to OVERDUE and accrues fines up to now.
// Already-overdue loans accrue only the days elapsed since their last accrual,
// so re-running within the same window charges nothing twice. Per-loan
// failures are logged and skipped.
func (s *service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.FindOverdueCandidates(ctx, now, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find overdue candidates")
	}

	processed := 0
	for i := range candidates {
		loan := candidates[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if loan.Status == enums.LoanStatusCheckedOut {
				affected, err := repo.UpdateGuarded(ctx, loan.ID, enums.LoanStatusCheckedOut, map[string]any{
					"status": enums.LoanStatusOverdue,
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flip loan overdue")
				}
				if affected == 0 {
					return pkgerrors.New(pkgerrors.CodeConcurrency, "loan changed concurrently")
				}
				loan.Status = enums.LoanStatusOverdue
			}

			book, err := s.books.WithTx(tx).FindByID(ctx, loan.BookID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
			}
			_, err = s.fines.AccrueOverdue(ctx, tx, &loan, book, now)
			return err
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "loan_id", loan.ID.String()), "overdue sweep skipped loan: "+err.Error())
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// SendOverdueNotices tells each member about their overdue loans in one
// aggregated notice per member. The notice flag makes replays a no-op.
func (s *service) SendOverdueNotices(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.FindOverdueUnnoticed(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find overdue loans")
	}
	return s.sendAggregated(ctx, overdue, "notice_sent", enums.NotificationKindOverdueNotice,
		"Overdue items", "You have %d overdue loan(s). Return them to stop further fines.")
}

// SendDueReminders warns members about loans due within the configured
// lookahead window, once per loan.
func (s *service) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	to := now.AddDate(0, 0, s.policy.ReminderLookaheadDays)
	due, err := s.repo.FindDueUnreminded(ctx, now, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due loans")
	}
	return s.sendAggregated(ctx, due, "reminder_sent", enums.NotificationKindDueDateReminder,
		"Books due soon", "You have %d loan(s) due in the next few days.")
}

func (s *service) sendAggregated(ctx context.Context, loans []models.BookLoan, flagColumn string, kind enums.NotificationKind, title, bodyFormat string) (int, error) {
	byMember := make(map[uuid.UUID][]uuid.UUID)
	order := make([]uuid.UUID, 0)
	for _, loan := range loans {
		if _, seen := byMember[loan.MemberID]; !seen {
			order = append(order, loan.MemberID)
		}
		byMember[loan.MemberID] = append(byMember[loan.MemberID], loan.ID)
	}

	processed := 0
	for _, memberID := range order {
		loanIDs := byMember[memberID]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).FlagLoans(ctx, loanIDs, flagColumn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag loans")
			}
			_, err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
				MemberID: memberID,
				Kind:     kind,
				Title:    title,
				Body:     fmt.Sprintf(bodyFormat, len(loanIDs)),
				LoanIDs:  loanIDs,
				Payload:  map[string]any{"loan_count": len(loanIDs)},
			})
			return err
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "member_id", memberID.String()), "notice sweep skipped member: "+err.Error())
			}
			continue
		}
		processed += len(loanIDs)
	}
	return processed, nil
}
