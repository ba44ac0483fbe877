package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readstack/readstack-backend/api/controllers"
	"github.com/readstack/readstack-backend/api/middleware"
	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/loans"
	"github.com/readstack/readstack-backend/internal/members"
	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/internal/reservations"
	subscriptionsvc "github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/enums"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/redis"
)

// Deps bundles everything the router needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Members       members.Service
	Books         books.Service
	Loans         loans.Service
	Reservations  reservations.Service
	Fines         fines.Service
	Subscriptions subscriptionsvc.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).
			Post("/login", controllers.AuthLogin(deps.Members, logg))
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.AuthRateLimit(registerPolicy, deps.Redis, logg),
				middleware.Idempotency(deps.Redis, logg),
			)
			r.Post("/register", controllers.AuthRegister(deps.Members, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.BookList(deps.Books, logg))
			r.Get("/{bookId}", controllers.BookDetail(deps.Books, logg))
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", controllers.LoanCheckout(deps.Loans, logg))
			r.Get("/", controllers.LoanList(deps.Loans, logg))
			r.Post("/{loanId}/renew", controllers.LoanRenew(deps.Loans, logg))
			r.Post("/{loanId}/checkin", controllers.LoanCheckIn(deps.Loans, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.ReservationCreate(deps.Reservations, logg))
			r.Get("/", controllers.ReservationList(deps.Reservations, logg))
			r.Delete("/{reservationId}", controllers.ReservationCancel(deps.Reservations, logg))
		})

		r.Route("/fines", func(r chi.Router) {
			r.Get("/", controllers.FineList(deps.Fines, logg))
			r.Post("/{fineId}/pay", controllers.FinePay(deps.Fines, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/plans", controllers.SubscriptionPlans(deps.Subscriptions, logg))
			r.Get("/me", controllers.SubscriptionCurrent(deps.Subscriptions, logg))
			r.Get("/history", controllers.SubscriptionHistory(deps.Subscriptions, logg))
			r.Delete("/{subscriptionId}", controllers.SubscriptionCancel(deps.Subscriptions, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, string(enums.MemberRoleLibrarian), string(enums.MemberRoleAdmin)))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/books", func(r chi.Router) {
			r.Post("/", controllers.BookCreate(deps.Books, logg))
			r.Patch("/{bookId}", controllers.BookUpdate(deps.Books, logg))
			r.Post("/{bookId}/copies", controllers.BookAdjustCopies(deps.Books, logg))
			r.Delete("/{bookId}", controllers.BookDeactivate(deps.Books, logg))
			r.Get("/{bookId}/queue", controllers.ReservationQueue(deps.Reservations, logg))
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", controllers.MemberList(deps.Members, logg))
			r.Get("/{memberId}", controllers.MemberDetail(deps.Members, logg))
			r.Patch("/{memberId}", controllers.MemberUpdate(deps.Members, logg))
			r.Delete("/{memberId}", controllers.MemberDeactivate(deps.Members, logg))
		})

		r.Post("/fines/{fineId}/waive", controllers.FineWaive(deps.Fines, logg))

		r.Route("/sweeps", func(r chi.Router) {
			r.Post("/overdue-loans", controllers.AdminRunSweep("overdue-loans", deps.Loans.MarkOverdue, logg))
			r.Post("/overdue-notices", controllers.AdminRunSweep("overdue-notices", deps.Loans.SendOverdueNotices, logg))
			r.Post("/due-reminders", controllers.AdminRunSweep("due-date-reminders", deps.Loans.SendDueReminders, logg))
			r.Post("/reservation-expiry", controllers.AdminRunSweep("reservation-expiry", deps.Reservations.ExpireHolds, logg))
			r.Post("/subscription-expiry", controllers.AdminRunSweep("subscription-expiry", deps.Subscriptions.SweepExpired, logg))
		})
	})

	return r
}
