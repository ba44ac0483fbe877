package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// Entitlement is the borrowing allowance a member currently holds.
type Entitlement struct {
	Active      bool
	PlanCode    string
	MaxBooks    int
	LoanDays    int
	MaxRenewals int
}

// Service defines subscription operations.
type Service interface {
	ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	Activate(ctx context.Context, input ActivateInput) (*models.Subscription, error)
	Cancel(ctx context.Context, memberID, subscriptionID uuid.UUID) error
	Current(ctx context.Context, memberID uuid.UUID) (*models.Subscription, error)
	History(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error)
	EntitlementFor(ctx context.Context, memberID uuid.UUID, at time.Time) (Entitlement, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier notifications.Notifier
	logg     *logger.Logger
	policy   config.PolicyConfig
	freeTier bool
	now      func() time.Time
}

// ActivateInput captures a confirmed plan payment.
type ActivateInput struct {
	MemberID   uuid.UUID
	PlanCode   string
	PaymentRef string
}

// NewService builds a subscriptions service with the required dependencies.
func NewService(repo Repository, tx txRunner, notifier notifications.Notifier, logg *logger.Logger, policy config.PolicyConfig, freeTier bool) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
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
		logg:     logg,
		policy:   policy,
		freeTier: freeTier,
		now:      time.Now,
	}, nil
}

func (s *service) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	plans, err := s.repo.ListPlans(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return plans, nil
}

// Activate records a paid period for the member. Replayed payment events are
// answered with the subscription created the first time.
func (s *service) Activate(ctx context.Context, input ActivateInput) (*models.Subscription, error) {
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	paymentRef := strings.TrimSpace(input.PaymentRef)
	if paymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	if existing, err := s.repo.FindByPaymentRef(ctx, paymentRef); err == nil {
		return existing, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment reference")
	}

	plan, err := s.repo.FindPlanByCode(ctx, input.PlanCode)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is no longer offered")
	}

	now := s.now().UTC()
	var created *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// A still-active period stacks: the new one starts where it ends.
		startsAt := now
		if current, err := repo.FindCurrentByMember(ctx, input.MemberID, now); err == nil {
			startsAt = current.ExpiresAt
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current subscription")
		}

		sub := &models.Subscription{
			ID:         uuid.New(),
			MemberID:   input.MemberID,
			PlanID:     plan.ID,
			PaymentRef: paymentRef,
			StartsAt:   startsAt,
			ExpiresAt:  startsAt.AddDate(0, 0, plan.DurationDays),
		}
		if _, err := repo.Create(ctx, sub); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment reference already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		sub.Plan = plan
		created = sub
		return nil
	})
	if err != nil {
		// A replay can race the first insert past the idempotency read.
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			if existing, lookupErr := s.repo.FindByPaymentRef(ctx, paymentRef); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return created, nil
}

// Cancel stops renewal sweeps from touching the subscription. Open loans and
// reservations are left alone; only new checkouts lose the entitlement.
func (s *service) Cancel(ctx context.Context, memberID, subscriptionID uuid.UUID) error {
	if memberID == uuid.Nil || subscriptionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member and subscription ids required")
	}

	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub.MemberID != memberID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "subscription does not belong to member")
	}
	if sub.CancelledAt != nil {
		return nil
	}

	now := s.now().UTC()
	if !sub.ExpiresAt.After(now) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already expired")
	}

	if err := s.repo.Update(ctx, sub.ID, map[string]any{"cancelled_at": now}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	return nil
}

func (s *service) Current(ctx context.Context, memberID uuid.UUID) (*models.Subscription, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	sub, err := s.repo.FindCurrentByMember(ctx, memberID, s.now().UTC())
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

func (s *service) History(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	subs, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return subs, nil
}

// EntitlementFor resolves the member's borrowing allowance at the given
// instant. Without an active plan the free tier applies when enabled.
func (s *service) EntitlementFor(ctx context.Context, memberID uuid.UUID, at time.Time) (Entitlement, error) {
	if memberID == uuid.Nil {
		return Entitlement{}, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	sub, err := s.repo.FindCurrentByMember(ctx, memberID, at)
	if err == nil {
		plan := sub.Plan
		if plan == nil {
			loaded, planErr := s.repo.FindPlanByID(ctx, sub.PlanID)
			if planErr != nil {
				return Entitlement{}, pkgerrors.Wrap(pkgerrors.CodeDependency, planErr, "load plan")
			}
			plan = loaded
		}
		return Entitlement{
			Active:      true,
			PlanCode:    plan.Code,
			MaxBooks:    plan.MaxBooks,
			LoanDays:    plan.LoanDays,
			MaxRenewals: plan.MaxRenewals,
		}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return Entitlement{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	if s.freeTier {
		return Entitlement{
			Active:      true,
			PlanCode:    "free",
			MaxBooks:    s.policy.FreeTierMaxBooks,
			LoanDays:    s.policy.FreeTierMaxDays,
			MaxRenewals: 0,
		}, nil
	}
	return Entitlement{}, nil
}

// SweepExpired marks lapsed subscriptions as notified and tells the member.
// Safe to replay; the notice flag keeps each lapse to a single notification.
// Per-subscription failures are logged and skipped.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.FindExpiredUnnotified(ctx, now, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired subscriptions")
	}

	processed := 0
	for _, sub := range expired {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Update(ctx, sub.ID, map[string]any{"expired_notice_sent": true}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag expired subscription")
			}
			_, err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
				MemberID: sub.MemberID,
				Kind:     enums.NotificationKindSubscriptionExpired,
				Title:    "Your subscription has expired",
				Body:     "Renew to keep borrowing from the catalog.",
				Payload:  map[string]any{"subscription_id": sub.ID, "expired_at": sub.ExpiresAt},
			})
			return err
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "subscription_id", sub.ID.String()), "expiry sweep skipped subscription: "+err.Error())
			}
			continue
		}
		processed++
	}
	return processed, nil
}
