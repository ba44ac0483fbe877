package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/readstack/readstack-backend/pkg/enums"
)

// Reservation is one entry in a book's hold queue. QueuePosition is unique per
// book among open entries; closed entries keep their last position for audit.
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookID        uuid.UUID               `gorm:"column:book_id;type:uuid;not null;index:idx_reservations_book_status"`
	MemberID      uuid.UUID               `gorm:"column:member_id;type:uuid;not null;index"`
	Status        enums.ReservationStatus `gorm:"column:status;not null;default:'pending';index:idx_reservations_book_status"`
	QueuePosition int                     `gorm:"column:queue_position;not null"`
	ReservedAt    time.Time               `gorm:"column:reserved_at;not null"`
	AvailableAt   *time.Time              `gorm:"column:available_at"`
	HoldExpiresAt *time.Time              `gorm:"column:hold_expires_at;index"`
	ClosedAt      *time.Time              `gorm:"column:closed_at"`
	Book          *Book                   `gorm:"foreignKey:BookID"`
	Member        *Member                 `gorm:"foreignKey:MemberID"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
