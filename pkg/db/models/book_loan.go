package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/readstack/readstack-backend/pkg/enums"
)

// BookLoan records a single borrowing of one copy. LastAccruedAt tracks how far
// overdue fine accrual has progressed so repeated sweeps never double-charge.
type BookLoan struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookID        uuid.UUID        `gorm:"column:book_id;type:uuid;not null;index"`
	MemberID      uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	Status        enums.LoanStatus `gorm:"column:status;not null;default:'checked_out'"`
	CheckedOutAt  time.Time        `gorm:"column:checked_out_at;not null"`
	DueAt         time.Time        `gorm:"column:due_at;not null;index"`
	ReturnedAt    *time.Time       `gorm:"column:returned_at"`
	RenewalCount  int              `gorm:"column:renewal_count;not null;default:0"`
	MaxRenewals   int              `gorm:"column:max_renewals;not null;default:2"`
	LastAccruedAt *time.Time       `gorm:"column:last_accrued_at"`
	ReminderSent  bool             `gorm:"column:reminder_sent;not null;default:false"`
	NoticeSent    bool             `gorm:"column:notice_sent;not null;default:false"`
	Book          *Book            `gorm:"foreignKey:BookID"`
	Member        *Member          `gorm:"foreignKey:MemberID"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
