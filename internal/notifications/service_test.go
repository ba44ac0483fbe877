package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	notifications := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  member_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  loan_ids TEXT DEFAULT '{}',
  payload TEXT,
  read_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS notifications`).Error)
	require.NoError(t, db.Exec(notifications).Error)
	return db
}

type capturingPublisher struct {
	published []*models.Notification
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, n *models.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

func newNotificationsService(t *testing.T, publisher Publisher) (Service, *gorm.DB) {
	t.Helper()
	db := setupNotificationsTestDB(t)
	svc, err := NewService(NewRepository(db), publisher, nil)
	require.NoError(t, err)
	return svc, db
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	publisher := &capturingPublisher{}
	svc, db := newNotificationsService(t, publisher)
	ctx := context.Background()

	memberID := uuid.New()
	loanID := uuid.New()
	created, err := svc.Notify(ctx, NotifyInput{
		MemberID: memberID,
		Kind:     enums.NotificationKindOverdueNotice,
		Title:    "Overdue items",
		Body:     "You have 1 overdue loan.",
		LoanIDs:  []uuid.UUID{loanID},
		Payload:  map[string]any{"loan_count": 1},
	})
	require.NoError(t, err)

	var stored models.Notification
	require.NoError(t, db.Where("id = ?", created.ID).First(&stored).Error)
	assert.Equal(t, memberID, stored.MemberID)
	require.Len(t, stored.LoanIDs, 1)
	assert.Equal(t, loanID, stored.LoanIDs[0])

	require.Len(t, publisher.published, 1)
	assert.Equal(t, created.ID, publisher.published[0].ID)
}

func TestNotifySurvivesPublisherFailure(t *testing.T) {
	publisher := &capturingPublisher{err: assert.AnError}
	svc, db := newNotificationsService(t, publisher)
	ctx := context.Background()

	created, err := svc.Notify(ctx, NotifyInput{
		MemberID: uuid.New(),
		Kind:     enums.NotificationKindFineAssessed,
		Title:    "Fine assessed",
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", created.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestNotifyValidation(t *testing.T) {
	svc, _ := newNotificationsService(t, nil)
	ctx := context.Background()

	_, err := svc.Notify(ctx, NotifyInput{Kind: enums.NotificationKindOverdueNotice, Title: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Notify(ctx, NotifyInput{MemberID: uuid.New(), Kind: "bogus", Title: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Notify(ctx, NotifyInput{MemberID: uuid.New(), Kind: enums.NotificationKindOverdueNotice, Title: "  "})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListAndMarkRead(t *testing.T) {
	svc, _ := newNotificationsService(t, nil)
	ctx := context.Background()
	memberID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Notify(ctx, NotifyInput{
			MemberID: memberID,
			Kind:     enums.NotificationKindDueDateReminder,
			Title:    "Due soon",
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := svc.List(ctx, ListParams{MemberID: memberID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 3)

	require.NoError(t, svc.MarkRead(ctx, memberID, list.Items[0].ID))

	list, err = svc.List(ctx, ListParams{MemberID: memberID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)

	err = svc.MarkRead(ctx, memberID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	count, err := svc.MarkAllRead(ctx, memberID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
