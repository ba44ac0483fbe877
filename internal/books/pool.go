package books

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
)

// CopyPool mutates a book's available copy count with guarded updates so the
// counter can never go negative or exceed the owned total.
type CopyPool interface {
	Acquire(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error
	Remove(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error
}

type copyPoolImpl struct{}

// NewCopyPool exposes the default copy pool implementation.
func NewCopyPool() CopyPool {
	return copyPoolImpl{}
}

// Acquire takes one available copy. Zero rows affected means another
// transaction drained the pool between the caller's read and this write.
func (copyPoolImpl) Acquire(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for copy acquire")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE books
		SET available_copies = available_copies - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_copies > 0
	`, bookID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "acquire copy")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "copy pool changed concurrently")
	}
	return nil
}

// Release returns one copy to the pool.
func (copyPoolImpl) Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for copy release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE books
		SET available_copies = available_copies + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND available_copies < total_copies
	`, bookID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release copy")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "copy pool changed concurrently")
	}
	return nil
}

// Remove retires a copy that left circulation for good. The guard holds
// because the retired copy was out on loan, keeping available below total.
func (copyPoolImpl) Remove(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for copy removal")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE books
		SET total_copies = total_copies - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND total_copies > available_copies
	`, bookID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "remove copy")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "copy pool changed concurrently")
	}
	return nil
}
