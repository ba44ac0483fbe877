package reservations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/notifications"
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

// Service defines hold queue operations.
type Service interface {
	Reserve(ctx context.Context, memberID uuid.UUID, isbn string) (*models.Reservation, error)
	Cancel(ctx context.Context, memberID, reservationID uuid.UUID) error
	PromoteNext(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (*models.Reservation, error)
	FulfillHold(ctx context.Context, tx *gorm.DB, memberID, bookID uuid.UUID) (bool, error)
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
	HasPending(ctx context.Context, bookID uuid.UUID) (bool, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, openOnly bool) ([]models.Reservation, error)
	ListQueue(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error)
}

type service struct {
	repo     Repository
	books    books.Repository
	pool     books.CopyPool
	tx       txRunner
	notifier notifications.Notifier
	logg     *logger.Logger
	policy   config.PolicyConfig
	now      func() time.Time
}

// NewService builds a reservations service with the required dependencies.
func NewService(repo Repository, bookRepo books.Repository, pool books.CopyPool, tx txRunner, notifier notifications.Notifier, logg *logger.Logger, policy config.PolicyConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservations repository required")
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
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:     repo,
		books:    bookRepo,
		pool:     pool,
		tx:       tx,
		notifier: notifier,
		logg:     logg,
		policy:   policy,
		now:      time.Now,
	}, nil
}

// Reserve joins the member to the book's hold queue. Books with free copies
// are rejected; the member should check out directly.
func (s *service) Reserve(ctx context.Context, memberID uuid.UUID, isbn string) (*models.Reservation, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "isbn required")
	}

	book, err := s.books.FindByISBN(ctx, isbn)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	if !book.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "book is not in circulation")
	}
	if book.AvailableCopies > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "book available for checkout")
	}

	var created *models.Reservation
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindOpenByMemberAndBook(ctx, memberID, book.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "member already has a reservation for this book")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing reservation")
		}

		pending, err := repo.CountPending(ctx, book.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count queue")
		}

		reservation := &models.Reservation{
			ID:            uuid.New(),
			BookID:        book.ID,
			MemberID:      memberID,
			Status:        enums.ReservationStatusPending,
			QueuePosition: int(pending) + 1,
			ReservedAt:    s.now().UTC(),
		}
		if _, err := repo.Create(ctx, reservation); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "member already has a reservation for this book")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		created = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel withdraws an open reservation. Cancelling a hold passes the held copy
// to the next waiter before it can rejoin general circulation.
func (s *service) Cancel(ctx context.Context, memberID, reservationID uuid.UUID) error {
	if memberID == uuid.Nil || reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member and reservation ids required")
	}

	reservation, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if reservation.MemberID != memberID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reservation does not belong to member")
	}
	if reservation.Status == enums.ReservationStatusCancelled {
		return nil
	}
	if !reservation.Status.IsOpen() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already closed")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := s.now().UTC()
		affected, err := repo.UpdateGuarded(ctx, reservation.ID, reservation.Status, map[string]any{
			"status":    enums.ReservationStatusCancelled,
			"closed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "reservation changed concurrently")
		}

		switch reservation.Status {
		case enums.ReservationStatusPending:
			if err := repo.CompactQueue(ctx, reservation.BookID, reservation.QueuePosition); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compact queue")
			}
		case enums.ReservationStatusAvailable:
			if _, err := s.promoteHeld(ctx, tx, reservation.BookID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PromoteNext hands a copy that just re-entered the pool to the head of the
// queue. The caller must run it in the same transaction as the release that
// freed the copy. Returns nil when the queue is empty and the copy stays in
// general circulation.
func (s *service) PromoteNext(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (*models.Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for promotion")
	}

	repo := s.repo.WithTx(tx)
	next, err := repo.FindNextPending(ctx, bookID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find next in queue")
	}

	// The freed copy leaves the pool again, parked for this hold.
	if err := s.pool.Acquire(ctx, tx, bookID); err != nil {
		return nil, err
	}
	return s.markAvailable(ctx, tx, next)
}

// promoteHeld moves an already-held copy to the next waiter. With nobody
// waiting the copy returns to the pool.
func (s *service) promoteHeld(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)
	next, err := repo.FindNextPending(ctx, bookID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			if err := s.pool.Release(ctx, tx, bookID); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find next in queue")
	}
	return s.markAvailable(ctx, tx, next)
}

func (s *service) markAvailable(ctx context.Context, tx *gorm.DB, next *models.Reservation) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)

	now := s.now().UTC()
	holdExpiresAt := now.Add(s.policy.HoldWindow)
	affected, err := repo.UpdateGuarded(ctx, next.ID, enums.ReservationStatusPending, map[string]any{
		"status":          enums.ReservationStatusAvailable,
		"available_at":    now,
		"hold_expires_at": holdExpiresAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote reservation")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "reservation changed concurrently")
	}

	if err := repo.CompactQueue(ctx, next.BookID, next.QueuePosition); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compact queue")
	}

	next.Status = enums.ReservationStatusAvailable
	next.AvailableAt = &now
	next.HoldExpiresAt = &holdExpiresAt

	if _, err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
		MemberID: next.MemberID,
		Kind:     enums.NotificationKindReservationAvailable,
		Title:    "Your reserved book is ready",
		Body:     fmt.Sprintf("Pick it up before %s or the hold passes to the next member.", holdExpiresAt.Format(time.RFC1123)),
		Payload:  map[string]any{"reservation_id": next.ID, "book_id": next.BookID, "hold_expires_at": holdExpiresAt},
	}); err != nil {
		return nil, err
	}
	return next, nil
}

// FulfillHold converts the member's AVAILABLE hold into a checkout claim. The
// held copy transfers straight to the loan, so the caller skips the pool
// decrement when this reports true.
func (s *service) FulfillHold(ctx context.Context, tx *gorm.DB, memberID, bookID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for fulfillment")
	}

	repo := s.repo.WithTx(tx)
	hold, err := repo.FindAvailableByMemberAndBook(ctx, memberID, bookID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}

	affected, err := repo.UpdateGuarded(ctx, hold.ID, enums.ReservationStatusAvailable, map[string]any{
		"status":    enums.ReservationStatusFulfilled,
		"closed_at": s.now().UTC(),
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill hold")
	}
	if affected == 0 {
		return false, pkgerrors.New(pkgerrors.CodeConcurrency, "hold changed concurrently")
	}
	return true, nil
}

// ExpireHolds closes unclaimed holds and cascades each freed copy to the next
// waiter, keeping the queue fair. Per-hold failures are logged and skipped so
// one bad row never stalls the sweep.
func (s *service) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.FindExpiredHolds(ctx, now, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired holds")
	}

	processed := 0
	for _, hold := range expired {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			affected, err := repo.UpdateGuarded(ctx, hold.ID, enums.ReservationStatusAvailable, map[string]any{
				"status":    enums.ReservationStatusExpired,
				"closed_at": now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire hold")
			}
			if affected == 0 {
				return pkgerrors.New(pkgerrors.CodeConcurrency, "hold changed concurrently")
			}
			_, err = s.promoteHeld(ctx, tx, hold.BookID)
			return err
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "reservation_id", hold.ID.String()), "hold expiry skipped: "+err.Error())
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// HasPending reports whether anyone is waiting on the book.
func (s *service) HasPending(ctx context.Context, bookID uuid.UUID) (bool, error) {
	count, err := s.repo.CountPending(ctx, bookID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count queue")
	}
	return count > 0, nil
}

func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID, openOnly bool) ([]models.Reservation, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	reservations, err := s.repo.ListByMember(ctx, memberID, openOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	return reservations, nil
}

func (s *service) ListQueue(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	reservations, err := s.repo.ListQueue(ctx, bookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queue")
	}
	return reservations, nil
}
