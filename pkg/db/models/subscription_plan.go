package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SubscriptionPlan defines an entitlement tier: how many books a member may
// hold at once and for how long.
type SubscriptionPlan struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string          `gorm:"column:code;not null;uniqueIndex"`
	Name         string          `gorm:"column:name;not null"`
	MaxBooks     int             `gorm:"column:max_books;not null"`
	LoanDays     int             `gorm:"column:loan_days;not null"`
	MaxRenewals  int             `gorm:"column:max_renewals;not null;default:2"`
	MonthlyPrice decimal.Decimal `gorm:"column:monthly_price;type:numeric(10,2);not null"`
	DurationDays int             `gorm:"column:duration_days;not null;default:30"`
	Features     pq.StringArray  `gorm:"column:features;type:text[];not null;default:ARRAY[]::text[]"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
