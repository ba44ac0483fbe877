package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/readstack/readstack-backend/pkg/enums"
)

// Fine tracks a monetary penalty against a member. Overdue fines grow through
// accrual until settled or capped; flat fines are assessed once.
type Fine struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LoanID     *uuid.UUID       `gorm:"column:loan_id;type:uuid;index"`
	MemberID   uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	Type       enums.FineType   `gorm:"column:type;not null"`
	Status     enums.FineStatus `gorm:"column:status;not null;default:'pending'"`
	Amount     decimal.Decimal  `gorm:"column:amount;type:numeric(10,2);not null"`
	AmountPaid decimal.Decimal  `gorm:"column:amount_paid;type:numeric(10,2);not null;default:0"`
	Cap        *decimal.Decimal `gorm:"column:cap;type:numeric(10,2)"`
	Reason     *string          `gorm:"column:reason"`
	WaivedBy   *uuid.UUID       `gorm:"column:waived_by;type:uuid"`
	SettledAt  *time.Time       `gorm:"column:settled_at"`
	Loan       *BookLoan        `gorm:"foreignKey:LoanID"`
	Member     *Member          `gorm:"foreignKey:MemberID"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Outstanding returns the unpaid remainder. Settled fines owe nothing, even
// a waived fine whose amount was never paid down.
func (f Fine) Outstanding() decimal.Decimal {
	if f.Status.IsSettled() {
		return decimal.Zero
	}
	return f.Amount.Sub(f.AmountPaid)
}
