package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
)

// Repository exposes persistence helpers for plans and subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindPlanByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error)
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Subscription, error)
	FindCurrentByMember(ctx context.Context, memberID uuid.UUID, at time.Time) (*models.Subscription, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error)
	FindExpiredUnnotified(ctx context.Context, asOf time.Time, limit int) ([]models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscriptions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindPlanByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToLower(strings.TrimSpace(code))).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	query := r.db.WithContext(ctx).Model(&models.SubscriptionPlan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var plans []models.SubscriptionPlan
	if err := query.Order("monthly_price ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Preload("Plan").Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("payment_ref = ?", paymentRef).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindCurrentByMember(ctx context.Context, memberID uuid.UUID, at time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("member_id = ? AND starts_at <= ? AND expires_at > ?", memberID, at, at).
		Where("cancelled_at IS NULL OR cancelled_at > ?", at).
		Order("expires_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("member_id = ?", memberID).
		Order("starts_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindExpiredUnnotified(ctx context.Context, asOf time.Time, limit int) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("expires_at <= ? AND expired_notice_sent = ?", asOf, false).
		Where("cancelled_at IS NULL").
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subs []models.Subscription
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
}
