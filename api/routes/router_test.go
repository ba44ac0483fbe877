package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/members"
	"github.com/readstack/readstack-backend/internal/notifications"
	subscriptionsvc "github.com/readstack/readstack-backend/internal/subscriptions"
	pkgAuth "github.com/readstack/readstack-backend/pkg/auth"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubMembersService struct{}

func (stubMembersService) Register(ctx context.Context, input members.RegisterInput) (*models.Member, error) {
	panic("unimplemented")
}

func (stubMembersService) Login(ctx context.Context, email, password string) (*members.LoginResult, error) {
	panic("unimplemented")
}

func (stubMembersService) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	panic("unimplemented")
}

func (stubMembersService) List(ctx context.Context, params members.ListParams) (*members.ListResult, error) {
	panic("unimplemented")
}

func (stubMembersService) Update(ctx context.Context, id uuid.UUID, input members.UpdateInput) (*models.Member, error) {
	panic("unimplemented")
}

func (stubMembersService) Deactivate(ctx context.Context, id uuid.UUID) error {
	panic("unimplemented")
}

type stubBooksService struct{}

func (stubBooksService) Create(ctx context.Context, input books.CreateBookInput) (*models.Book, error) {
	panic("unimplemented")
}

func (stubBooksService) Get(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	return &models.Book{ID: id}, nil
}

func (stubBooksService) List(ctx context.Context, params books.ListParams) (*books.ListResult, error) {
	return &books.ListResult{}, nil
}

func (stubBooksService) Update(ctx context.Context, id uuid.UUID, input books.UpdateBookInput) (*models.Book, error) {
	panic("unimplemented")
}

func (stubBooksService) AddCopies(ctx context.Context, id uuid.UUID, count int) error {
	panic("unimplemented")
}

func (stubBooksService) RemoveCopies(ctx context.Context, id uuid.UUID, count int) error {
	panic("unimplemented")
}

func (stubBooksService) Deactivate(ctx context.Context, id uuid.UUID) error {
	panic("unimplemented")
}

type stubLoansService struct {
	sweeps int
}

func (s *stubLoansService) Checkout(ctx context.Context, memberID, bookID uuid.UUID, days int) (*models.BookLoan, error) {
	panic("unimplemented")
}

func (s *stubLoansService) Renew(ctx context.Context, memberID, loanID uuid.UUID, extensionDays int) (*models.BookLoan, error) {
	panic("unimplemented")
}

func (s *stubLoansService) CheckIn(ctx context.Context, loanID uuid.UUID, condition enums.CheckinCondition) (*models.BookLoan, error) {
	panic("unimplemented")
}

func (s *stubLoansService) Get(ctx context.Context, loanID uuid.UUID) (*models.BookLoan, error) {
	panic("unimplemented")
}

func (s *stubLoansService) ListByMember(ctx context.Context, memberID uuid.UUID, activeOnly bool) ([]models.BookLoan, error) {
	return nil, nil
}

func (s *stubLoansService) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	s.sweeps++
	return 3, nil
}

func (s *stubLoansService) SendOverdueNotices(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *stubLoansService) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type stubReservationsService struct{}

func (stubReservationsService) Reserve(ctx context.Context, memberID uuid.UUID, isbn string) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationsService) Cancel(ctx context.Context, memberID, reservationID uuid.UUID) error {
	panic("unimplemented")
}

func (stubReservationsService) PromoteNext(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationsService) FulfillHold(ctx context.Context, tx *gorm.DB, memberID, bookID uuid.UUID) (bool, error) {
	panic("unimplemented")
}

func (stubReservationsService) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (stubReservationsService) HasPending(ctx context.Context, bookID uuid.UUID) (bool, error) {
	panic("unimplemented")
}

func (stubReservationsService) ListByMember(ctx context.Context, memberID uuid.UUID, openOnly bool) ([]models.Reservation, error) {
	return nil, nil
}

func (stubReservationsService) ListQueue(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error) {
	return []models.Reservation{{ID: uuid.New(), BookID: bookID}}, nil
}

type stubFinesService struct{}

func (stubFinesService) AccrueOverdue(ctx context.Context, tx *gorm.DB, loan *models.BookLoan, book *models.Book, now time.Time) (*models.Fine, error) {
	panic("unimplemented")
}

func (stubFinesService) AssessFlat(ctx context.Context, tx *gorm.DB, input fines.AssessInput) (*models.Fine, error) {
	panic("unimplemented")
}

func (stubFinesService) Get(ctx context.Context, fineID uuid.UUID) (*models.Fine, error) {
	panic("unimplemented")
}

func (stubFinesService) Pay(ctx context.Context, input fines.PayInput) (*models.Fine, error) {
	panic("unimplemented")
}

func (stubFinesService) Waive(ctx context.Context, input fines.WaiveInput) (*models.Fine, error) {
	panic("unimplemented")
}

func (stubFinesService) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Fine, error) {
	return nil, nil
}

func (stubFinesService) OutstandingTotal(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type stubSubscriptionsService struct{}

func (stubSubscriptionsService) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return nil, nil
}

func (stubSubscriptionsService) Activate(ctx context.Context, input subscriptionsvc.ActivateInput) (*models.Subscription, error) {
	panic("unimplemented")
}

func (stubSubscriptionsService) Cancel(ctx context.Context, memberID, subscriptionID uuid.UUID) error {
	panic("unimplemented")
}

func (stubSubscriptionsService) Current(ctx context.Context, memberID uuid.UUID) (*models.Subscription, error) {
	return nil, nil
}

func (stubSubscriptionsService) History(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error) {
	return nil, nil
}

func (stubSubscriptionsService) EntitlementFor(ctx context.Context, memberID uuid.UUID, at time.Time) (subscriptionsvc.Entitlement, error) {
	panic("unimplemented")
}

func (stubSubscriptionsService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	panic("unimplemented")
}

func (stubNotificationsService) NotifyTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) (*models.Notification, error) {
	panic("unimplemented")
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, memberID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, loansSvc *stubLoansService) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	if loansSvc == nil {
		loansSvc = &stubLoansService{}
	}
	return NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            stubPinger{},
		Redis:         (*redis.Client)(nil),
		Members:       stubMembersService{},
		Books:         stubBooksService{},
		Loans:         loansSvc,
		Reservations:  stubReservationsService{},
		Fines:         stubFinesService{},
		Subscriptions: stubSubscriptionsService{},
		Notifications: stubNotificationsService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.MemberRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		MemberID: uuid.New(),
		Role:     role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.MemberRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGroupRejectsMembers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	bookID := uuid.New()

	member := httptest.NewRequest(http.MethodGet, "/api/admin/v1/books/"+bookID.String()+"/queue", nil)
	member.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.MemberRoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, member)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member got %d", resp.Code)
	}

	librarian := httptest.NewRequest(http.MethodGet, "/api/admin/v1/books/"+bookID.String()+"/queue", nil)
	librarian.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.MemberRoleLibrarian))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, librarian)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for librarian got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminSweepEndpointRunsSweep(t *testing.T) {
	cfg := testConfig()
	loansSvc := &stubLoansService{}
	router := newTestRouter(cfg, loansSvc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/sweeps/overdue-loans", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.MemberRoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if loansSvc.sweeps != 1 {
		t.Fatalf("expected one sweep invocation, got %d", loansSvc.sweeps)
	}
}
