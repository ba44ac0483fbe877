package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/readstack/readstack-backend/pkg/db/types"
	"github.com/readstack/readstack-backend/pkg/enums"
)

// Notification is a member-facing message produced by the lifecycle engine.
// LoanIDs lets an aggregated overdue notice reference every loan it covers.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID  uuid.UUID              `gorm:"column:member_id;type:uuid;not null;index"`
	Kind      enums.NotificationKind `gorm:"column:kind;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Body      string                 `gorm:"column:body;not null"`
	LoanIDs   dbtypes.UUIDArray      `gorm:"column:loan_ids;type:uuid[];not null;default:ARRAY[]::uuid[]"`
	Payload   json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
