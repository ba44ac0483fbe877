package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription binds a member to a plan for a paid period. PaymentRef is the
// external payment identifier and dedupes replayed activation events.
type Subscription struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID          uuid.UUID         `gorm:"column:member_id;type:uuid;not null;index"`
	PlanID            uuid.UUID         `gorm:"column:plan_id;type:uuid;not null"`
	PaymentRef        string            `gorm:"column:payment_ref;not null;uniqueIndex"`
	StartsAt          time.Time         `gorm:"column:starts_at;not null"`
	ExpiresAt         time.Time         `gorm:"column:expires_at;not null;index"`
	CancelledAt       *time.Time        `gorm:"column:cancelled_at"`
	ExpiredNoticeSent bool              `gorm:"column:expired_notice_sent;not null;default:false"`
	Plan              *SubscriptionPlan `gorm:"foreignKey:PlanID"`
	Member            *Member           `gorm:"foreignKey:MemberID"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the subscription covers the given instant.
func (s Subscription) ActiveAt(t time.Time) bool {
	if s.CancelledAt != nil && !s.CancelledAt.After(t) {
		return false
	}
	return !s.StartsAt.After(t) && s.ExpiresAt.After(t)
}
