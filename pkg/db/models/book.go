package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Book represents a title in the catalog together with its copy pool.
// AvailableCopies is only ever mutated through guarded updates so concurrent
// checkouts cannot drive it negative.
type Book struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ISBN            string           `gorm:"column:isbn;not null;uniqueIndex"`
	Title           string           `gorm:"column:title;not null"`
	Author          string           `gorm:"column:author;not null"`
	Publisher       *string          `gorm:"column:publisher"`
	PublishedYear   *int             `gorm:"column:published_year"`
	Genres          pq.StringArray   `gorm:"column:genres;type:text[];not null;default:ARRAY[]::text[]"`
	Summary         *string          `gorm:"column:summary"`
	TotalCopies     int              `gorm:"column:total_copies;not null;default:0"`
	AvailableCopies int              `gorm:"column:available_copies;not null;default:0"`
	ReplacementCost *decimal.Decimal `gorm:"column:replacement_cost;type:numeric(10,2)"`
	IsActive        bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
