package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
)

// Repository exposes persistence helpers for the hold queues.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindOpenByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.Reservation, error)
	FindAvailableByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.Reservation, error)
	FindNextPending(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error)
	CountPending(ctx context.Context, bookID uuid.UUID) (int64, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, openOnly bool) ([]models.Reservation, error)
	ListQueue(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error)
	FindExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]models.Reservation, error)
	UpdateGuarded(ctx context.Context, id uuid.UUID, from enums.ReservationStatus, updates map[string]any) (int64, error)
	CompactQueue(ctx context.Context, bookID uuid.UUID, removedPosition int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reservations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error) {
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		return nil, err
	}
	return reservation, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindOpenByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND book_id = ?", memberID, bookID).
		Where("status IN ?", []enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusAvailable}).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindAvailableByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND book_id = ? AND status = ?", memberID, bookID, enums.ReservationStatusAvailable).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindNextPending returns the head of the queue, FIFO by reservation time with
// the id as tie-breaker.
func (r *repository) FindNextPending(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusPending).
		Order("reserved_at ASC, id ASC").
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) CountPending(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusPending).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID, openOnly bool) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Preload("Book").
		Where("member_id = ?", memberID)
	if openOnly {
		query = query.Where("status IN ?", []enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusAvailable})
	}
	var reservations []models.Reservation
	if err := query.Order("reserved_at DESC").Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) ListQueue(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Where("status IN ?", []enums.ReservationStatus{enums.ReservationStatusPending, enums.ReservationStatusAvailable}).
		Order("queue_position ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) FindExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND hold_expires_at < ?", enums.ReservationStatusAvailable, asOf).
		Order("hold_expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var reservations []models.Reservation
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// UpdateGuarded applies updates only while the reservation still holds the
// expected status. Zero rows affected means it transitioned concurrently.
func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, from enums.ReservationStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// CompactQueue shifts pending entries up after one leaves the queue, keeping
// positions a contiguous ascending run.
func (r *repository) CompactQueue(ctx context.Context, bookID uuid.UUID, removedPosition int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE reservations
		SET queue_position = queue_position - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE book_id = ? AND status = ? AND queue_position > ?
	`, bookID, enums.ReservationStatusPending, removedPosition).Error
}
