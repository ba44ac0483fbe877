package loans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/config"
	pkgdb "github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
)

func setupLoansTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	booksDDL := `
CREATE TABLE IF NOT EXISTS books (
  id TEXT PRIMARY KEY,
  isbn TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  author TEXT NOT NULL,
  publisher TEXT,
  published_year INTEGER,
  genres TEXT DEFAULT '{}',
  summary TEXT,
  total_copies INTEGER NOT NULL DEFAULT 0,
  available_copies INTEGER NOT NULL DEFAULT 0,
  replacement_cost NUMERIC,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	loansDDL := `
CREATE TABLE IF NOT EXISTS book_loans (
  id TEXT PRIMARY KEY,
  book_id TEXT NOT NULL,
  member_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'checked_out',
  checked_out_at DATETIME NOT NULL,
  due_at DATETIME NOT NULL,
  returned_at DATETIME,
  renewal_count INTEGER NOT NULL DEFAULT 0,
  max_renewals INTEGER NOT NULL DEFAULT 2,
  last_accrued_at DATETIME,
  reminder_sent INTEGER NOT NULL DEFAULT 0,
  notice_sent INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	finesDDL := `
CREATE TABLE IF NOT EXISTS fines (
  id TEXT PRIMARY KEY,
  loan_id TEXT,
  member_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount NUMERIC NOT NULL,
  amount_paid NUMERIC NOT NULL DEFAULT 0,
  cap NUMERIC,
  reason TEXT,
  waived_by TEXT,
  settled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS fines`).Error)
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS book_loans`).Error)
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS books`).Error)
	require.NoError(t, db.Exec(booksDDL).Error)
	require.NoError(t, db.Exec(loansDDL).Error)
	require.NoError(t, db.Exec(finesDDL).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_book_loans_active_member_book
  ON book_loans (book_id, member_id) WHERE status IN ('checked_out', 'overdue')`).Error)
	return db
}

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type fakeEntitlements struct {
	entitlement subscriptions.Entitlement
	err         error
}

func (f *fakeEntitlements) EntitlementFor(context.Context, uuid.UUID, time.Time) (subscriptions.Entitlement, error) {
	return f.entitlement, f.err
}

type fakeReservations struct {
	holdFor   map[uuid.UUID]bool
	fulfilled []uuid.UUID
	promoted  []uuid.UUID
	pending   bool
}

func (f *fakeReservations) FulfillHold(_ context.Context, _ *gorm.DB, memberID, _ uuid.UUID) (bool, error) {
	if f.holdFor[memberID] {
		f.fulfilled = append(f.fulfilled, memberID)
		return true, nil
	}
	return false, nil
}

func (f *fakeReservations) PromoteNext(_ context.Context, _ *gorm.DB, bookID uuid.UUID) (*models.Reservation, error) {
	f.promoted = append(f.promoted, bookID)
	return nil, nil
}

func (f *fakeReservations) HasPending(context.Context, uuid.UUID) (bool, error) {
	return f.pending, nil
}

type fakeFines struct {
	accrued []uuid.UUID
	flats   []fines.AssessInput
}

func (f *fakeFines) AccrueOverdue(_ context.Context, _ *gorm.DB, loan *models.BookLoan, _ *models.Book, _ time.Time) (*models.Fine, error) {
	f.accrued = append(f.accrued, loan.ID)
	return nil, nil
}

func (f *fakeFines) AssessFlat(_ context.Context, _ *gorm.DB, input fines.AssessInput) (*models.Fine, error) {
	f.flats = append(f.flats, input)
	return &models.Fine{ID: uuid.New()}, nil
}

type fakeNotifier struct {
	sent []notifications.NotifyInput
}

func (f *fakeNotifier) Notify(_ context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	f.sent = append(f.sent, input)
	return &models.Notification{ID: uuid.New()}, nil
}

func (f *fakeNotifier) NotifyTx(_ context.Context, _ *gorm.DB, input notifications.NotifyInput) (*models.Notification, error) {
	f.sent = append(f.sent, input)
	return &models.Notification{ID: uuid.New()}, nil
}

type loanFixture struct {
	svc          Service
	db           *gorm.DB
	entitlements *fakeEntitlements
	reservations *fakeReservations
	fines        *fakeFines
	notifier     *fakeNotifier
}

func loansPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		FineDailyRate:         "0.50",
		FineFallbackCap:       "25.00",
		DamageFee:             "10.00",
		ProcessingFee:         "5.00",
		ChargeProcessingFee:   true,
		ReminderLookaheadDays: 3,
		ConcurrencyRetries:    3,
	}
}

func newLoansFixture(t *testing.T) *loanFixture {
	t.Helper()
	db := setupLoansTestDB(t)
	f := &loanFixture{
		db: db,
		entitlements: &fakeEntitlements{entitlement: subscriptions.Entitlement{
			Active:      true,
			PlanCode:    "plus",
			MaxBooks:    3,
			LoanDays:    14,
			MaxRenewals: 2,
		}},
		reservations: &fakeReservations{holdFor: map[uuid.UUID]bool{}},
		fines:        &fakeFines{},
		notifier:     &fakeNotifier{},
	}
	svc, err := NewService(
		NewRepository(db),
		books.NewRepository(db),
		books.NewCopyPool(),
		sqliteTxRunner{db: db},
		f.reservations,
		f.fines,
		f.entitlements,
		f.notifier,
		nil,
		loansPolicy(),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func seedLoanBook(t *testing.T, db *gorm.DB, total, available int) *models.Book {
	t.Helper()
	book := &models.Book{
		ID:              uuid.New(),
		ISBN:            uuid.NewString(),
		Title:           "Seeded",
		Author:          "Author",
		TotalCopies:     total,
		AvailableCopies: available,
		IsActive:        true,
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

func seedLoan(t *testing.T, db *gorm.DB, memberID, bookID uuid.UUID, status enums.LoanStatus, dueAt time.Time) *models.BookLoan {
	t.Helper()
	loan := &models.BookLoan{
		ID:           uuid.New(),
		BookID:       bookID,
		MemberID:     memberID,
		Status:       status,
		CheckedOutAt: dueAt.AddDate(0, 0, -14),
		DueAt:        dueAt,
		MaxRenewals:  2,
	}
	require.NoError(t, db.Create(loan).Error)
	return loan
}

func TestCheckoutDrawsFromPool(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 2, 2)
	memberID := uuid.New()

	loan, err := f.svc.Checkout(ctx, memberID, book.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusCheckedOut, loan.Status)
	assert.WithinDuration(t, loan.CheckedOutAt.AddDate(0, 0, 14), loan.DueAt, time.Second)
	assert.Equal(t, 2, loan.MaxRenewals)

	var reloaded models.Book
	require.NoError(t, f.db.Where("id = ?", book.ID).First(&reloaded).Error)
	assert.Equal(t, 1, reloaded.AvailableCopies)
}

func TestCheckoutConsumesHold(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)
	memberID := uuid.New()
	f.reservations.holdFor[memberID] = true

	loan, err := f.svc.Checkout(ctx, memberID, book.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusCheckedOut, loan.Status)
	require.Len(t, f.reservations.fulfilled, 1)

	// the held copy transferred straight to the loan
	var reloaded models.Book
	require.NoError(t, f.db.Where("id = ?", book.ID).First(&reloaded).Error)
	assert.Equal(t, 0, reloaded.AvailableCopies)
}

func TestCheckoutEntitlementChecks(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 1)
	memberID := uuid.New()

	f.entitlements.entitlement = subscriptions.Entitlement{}
	_, err := f.svc.Checkout(ctx, memberID, book.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEntitlement))

	f.entitlements.entitlement = subscriptions.Entitlement{Active: true, MaxBooks: 3, LoanDays: 14}
	_, err = f.svc.Checkout(ctx, memberID, book.ID, 30)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEntitlement))

	f.entitlements.entitlement = subscriptions.Entitlement{Active: true, MaxBooks: 1, LoanDays: 14}
	other := seedLoanBook(t, f.db, 1, 1)
	seedLoan(t, f.db, memberID, other.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, 7))
	_, err = f.svc.Checkout(ctx, memberID, book.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEntitlement))
}

func TestCheckoutDuplicateActiveLoan(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 2, 2)
	memberID := uuid.New()

	seedLoan(t, f.db, memberID, book.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, 7))

	_, err := f.svc.Checkout(ctx, memberID, book.ID, 7)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestActiveLoanUniquePerMemberAndBook(t *testing.T) {
	f := newLoansFixture(t)
	book := seedLoanBook(t, f.db, 2, 2)
	memberID := uuid.New()
	dueAt := time.Now().UTC().AddDate(0, 0, 7)
	first := seedLoan(t, f.db, memberID, book.ID, enums.LoanStatusCheckedOut, dueAt)

	// a second open loan for the same pair is rejected at the schema level,
	// catching races the read-then-insert check cannot see
	dup := &models.BookLoan{
		ID:           uuid.New(),
		BookID:       book.ID,
		MemberID:     memberID,
		Status:       enums.LoanStatusOverdue,
		CheckedOutAt: dueAt.AddDate(0, 0, -14),
		DueAt:        dueAt,
		MaxRenewals:  2,
	}
	err := f.db.Create(dup).Error
	require.Error(t, err)
	assert.True(t, pkgdb.IsUniqueViolation(err, ""))

	// closing the loan frees the slot for a fresh checkout
	require.NoError(t, f.db.Model(&models.BookLoan{}).Where("id = ?", first.ID).
		Update("status", enums.LoanStatusReturned).Error)
	_, err = f.svc.Checkout(context.Background(), memberID, book.ID, 7)
	require.NoError(t, err)
}

func TestCheckoutNoCopies(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)

	_, err := f.svc.Checkout(ctx, uuid.New(), book.ID, 7)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	var count int64
	require.NoError(t, f.db.Model(&models.BookLoan{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestCheckoutInactiveBook(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 1)
	require.NoError(t, f.db.Model(&models.Book{}).Where("id = ?", book.ID).Update("is_active", false).Error)

	_, err := f.svc.Checkout(ctx, uuid.New(), book.ID, 7)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestRenewExtendsDueDate(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)
	memberID := uuid.New()
	dueAt := time.Now().UTC().AddDate(0, 0, 5)
	loan := seedLoan(t, f.db, memberID, book.ID, enums.LoanStatusCheckedOut, dueAt)

	renewed, err := f.svc.Renew(ctx, memberID, loan.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed.RenewalCount)
	assert.WithinDuration(t, dueAt.AddDate(0, 0, 7), renewed.DueAt, time.Second)
}

func TestRenewBlockedStates(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)
	memberID := uuid.New()
	dueAt := time.Now().UTC().AddDate(0, 0, 5)

	overdue := seedLoan(t, f.db, memberID, book.ID, enums.LoanStatusOverdue, time.Now().UTC().AddDate(0, 0, -1))
	_, err := f.svc.Renew(ctx, memberID, overdue.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	atLimit := seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, dueAt)
	require.NoError(t, f.db.Model(&models.BookLoan{}).Where("id = ?", atLimit.ID).Update("renewal_count", 2).Error)
	_, err = f.svc.Renew(ctx, memberID, atLimit.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	blocked := seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, dueAt)
	f.reservations.pending = true
	_, err = f.svc.Renew(ctx, memberID, blocked.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	f.reservations.pending = false

	_, err = f.svc.Renew(ctx, uuid.New(), blocked.ID, 7)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	var reloaded models.BookLoan
	require.NoError(t, f.db.Where("id = ?", blocked.ID).First(&reloaded).Error)
	assert.WithinDuration(t, dueAt, reloaded.DueAt, time.Second)
}

func TestCheckInReturnedOnTime(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)
	memberID := uuid.New()
	loan := seedLoan(t, f.db, memberID, book.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, 7))

	returned, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionReturned)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusReturned, returned.Status)
	assert.NotNil(t, returned.ReturnedAt)

	assert.Empty(t, f.fines.accrued)
	require.Len(t, f.reservations.promoted, 1)
	assert.Equal(t, book.ID, f.reservations.promoted[0])

	var reloaded models.Book
	require.NoError(t, f.db.Where("id = ?", book.ID).First(&reloaded).Error)
	assert.Equal(t, 1, reloaded.AvailableCopies)
}

func TestCheckInReturnedOverdueAccrues(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 0)
	loan := seedLoan(t, f.db, uuid.New(), book.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, -3))

	_, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionReturned)
	require.NoError(t, err)
	require.Len(t, f.fines.accrued, 1)
	assert.Equal(t, loan.ID, f.fines.accrued[0])
}

func TestCheckInLostChargesAndRetiresCopy(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 2, 1)
	loan := seedLoan(t, f.db, uuid.New(), book.ID, enums.LoanStatusOverdue, time.Now().UTC().AddDate(0, 0, -3))

	lost, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionLost)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusLost, lost.Status)

	require.Len(t, f.fines.flats, 2)
	assert.Equal(t, enums.FineTypeLoss, f.fines.flats[0].Type)
	assert.True(t, decimal.RequireFromString("25.00").Equal(f.fines.flats[0].Amount))
	assert.Equal(t, enums.FineTypeProcessing, f.fines.flats[1].Type)
	assert.True(t, decimal.RequireFromString("5.00").Equal(f.fines.flats[1].Amount))

	var reloaded models.Book
	require.NoError(t, f.db.Where("id = ?", book.ID).First(&reloaded).Error)
	assert.Equal(t, 1, reloaded.TotalCopies)
	assert.Equal(t, 1, reloaded.AvailableCopies)
}

func TestCheckInLostUsesReplacementCost(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 2, 1)
	cost := decimal.RequireFromString("42.00")
	require.NoError(t, f.db.Model(&models.Book{}).Where("id = ?", book.ID).Update("replacement_cost", cost).Error)
	loan := seedLoan(t, f.db, uuid.New(), book.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, 7))

	_, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionLost)
	require.NoError(t, err)
	require.NotEmpty(t, f.fines.flats)
	assert.True(t, cost.Equal(f.fines.flats[0].Amount))
}

func TestCheckInDamaged(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 2, 1)
	loan := seedLoan(t, f.db, uuid.New(), book.ID, enums.LoanStatusCheckedOut, time.Now().UTC().AddDate(0, 0, 7))

	damaged, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionDamaged)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanStatusDamaged, damaged.Status)

	require.Len(t, f.fines.flats, 1)
	assert.Equal(t, enums.FineTypeDamage, f.fines.flats[0].Type)
	assert.True(t, decimal.RequireFromString("10.00").Equal(f.fines.flats[0].Amount))

	var reloaded models.Book
	require.NoError(t, f.db.Where("id = ?", book.ID).First(&reloaded).Error)
	assert.Equal(t, 1, reloaded.TotalCopies)
}

func TestCheckInClosedLoan(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	book := seedLoanBook(t, f.db, 1, 1)
	loan := seedLoan(t, f.db, uuid.New(), book.ID, enums.LoanStatusReturned, time.Now().UTC())

	_, err := f.svc.CheckIn(ctx, loan.ID, enums.CheckinConditionReturned)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestMarkOverdueFlipsAndAccrues(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pastDue := seedLoan(t, f.db, uuid.New(), seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, now.AddDate(0, 0, -2))
	alreadyOverdue := seedLoan(t, f.db, uuid.New(), seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusOverdue, now.AddDate(0, 0, -5))
	seedLoan(t, f.db, uuid.New(), seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, now.AddDate(0, 0, 7))

	processed, err := f.svc.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Len(t, f.fines.accrued, 2)

	var reloaded models.BookLoan
	require.NoError(t, f.db.Where("id = ?", pastDue.ID).First(&reloaded).Error)
	assert.Equal(t, enums.LoanStatusOverdue, reloaded.Status)

	var reloadedOverdue models.BookLoan
	require.NoError(t, f.db.Where("id = ?", alreadyOverdue.ID).First(&reloadedOverdue).Error)
	assert.Equal(t, enums.LoanStatusOverdue, reloadedOverdue.Status)
}

func TestSendOverdueNoticesAggregatesPerMember(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	memberID := uuid.New()

	seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusOverdue, now.AddDate(0, 0, -2))
	seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusOverdue, now.AddDate(0, 0, -4))

	processed, err := f.svc.SendOverdueNotices(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, enums.NotificationKindOverdueNotice, f.notifier.sent[0].Kind)
	assert.Len(t, f.notifier.sent[0].LoanIDs, 2)

	// notice flags keep replays quiet
	processed, err = f.svc.SendOverdueNotices(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Len(t, f.notifier.sent, 1)
}

func TestSendDueRemindersWindow(t *testing.T) {
	f := newLoansFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	memberID := uuid.New()

	inWindow := seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, now.AddDate(0, 0, 2))
	seedLoan(t, f.db, memberID, seedLoanBook(t, f.db, 1, 0).ID, enums.LoanStatusCheckedOut, now.AddDate(0, 0, 10))

	processed, err := f.svc.SendDueReminders(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, enums.NotificationKindDueDateReminder, f.notifier.sent[0].Kind)
	require.Len(t, f.notifier.sent[0].LoanIDs, 1)
	assert.Equal(t, inWindow.ID, f.notifier.sent[0].LoanIDs[0])

	processed, err = f.svc.SendDueReminders(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

// Wires the real fines engine under the overdue sweep so the last_accrued_at
// handoff is pinned end to end, not just against a fake.
func TestMarkOverdueNoDoubleAccrualAcrossRuns(t *testing.T) {
	db := setupLoansTestDB(t)
	notifier := &fakeNotifier{}
	fineSvc, err := fines.NewService(fines.NewRepository(db), sqliteTxRunner{db: db}, notifier, loansPolicy())
	require.NoError(t, err)
	svc, err := NewService(
		NewRepository(db),
		books.NewRepository(db),
		books.NewCopyPool(),
		sqliteTxRunner{db: db},
		&fakeReservations{holdFor: map[uuid.UUID]bool{}},
		fineSvc,
		&fakeEntitlements{entitlement: subscriptions.Entitlement{Active: true, MaxBooks: 3, LoanDays: 14, MaxRenewals: 2}},
		notifier,
		nil,
		loansPolicy(),
	)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC()
	book := seedLoanBook(t, db, 1, 0)
	loan := seedLoan(t, db, uuid.New(), book.ID, enums.LoanStatusCheckedOut, now.AddDate(0, 0, -4))

	processed, err := svc.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	var fine models.Fine
	require.NoError(t, db.Where("loan_id = ?", loan.ID).First(&fine).Error)
	assert.True(t, decimal.RequireFromString("2.00").Equal(fine.Amount), "got %s", fine.Amount)

	// same day again: the accrual marker blocks a second charge
	_, err = svc.MarkOverdue(ctx, now)
	require.NoError(t, err)
	require.NoError(t, db.Where("loan_id = ?", loan.ID).First(&fine).Error)
	assert.True(t, decimal.RequireFromString("2.00").Equal(fine.Amount), "got %s", fine.Amount)

	// two days later the same fine grows by exactly the elapsed delta
	_, err = svc.MarkOverdue(ctx, now.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.NoError(t, db.Where("loan_id = ?", loan.ID).First(&fine).Error)
	assert.True(t, decimal.RequireFromString("3.00").Equal(fine.Amount), "got %s", fine.Amount)

	var count int64
	require.NoError(t, db.Model(&models.Fine{}).Where("loan_id = ?", loan.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
