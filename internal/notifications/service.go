package notifications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/pkg/db/models"
	dbtypes "github.com/readstack/readstack-backend/pkg/db/types"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/pagination"
)

// Publisher fans a persisted notification out to delivery channels handled
// outside this service. A nil publisher keeps notifications in-app only.
type Publisher interface {
	Publish(ctx context.Context, notification *models.Notification) error
}

// Notifier is the narrow surface other domains use to emit notifications.
type Notifier interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	NotifyTx(ctx context.Context, tx *gorm.DB, input NotifyInput) (*models.Notification, error)
}

// Service defines notification operations.
type Service interface {
	Notifier
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, memberID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error)
}

type service struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
	now       func() time.Time
}

// NotifyInput captures a notification to record for a member.
type NotifyInput struct {
	MemberID uuid.UUID
	Kind     enums.NotificationKind
	Title    string
	Body     string
	LoanIDs  []uuid.UUID
	Payload  any
}

// ListParams configures pagination for notifications.
type ListParams struct {
	MemberID   uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies. publisher and logg may be nil.
func NewService(repo Repository, publisher Publisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{
		repo:      repo,
		publisher: publisher,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	return s.notify(ctx, s.repo, input)
}

// NotifyTx records the notification inside the caller's transaction so it
// commits or rolls back with the state change that triggered it.
func (s *service) NotifyTx(ctx context.Context, tx *gorm.DB, input NotifyInput) (*models.Notification, error) {
	return s.notify(ctx, s.repo.WithTx(tx), input)
}

func (s *service) notify(ctx context.Context, repo Repository, input NotifyInput) (*models.Notification, error) {
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification kind")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}

	var payload json.RawMessage
	if input.Payload != nil {
		raw, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payload")
		}
		payload = raw
	}

	loanIDs := dbtypes.UUIDArray{}
	if len(input.LoanIDs) > 0 {
		loanIDs = dbtypes.UUIDArray(input.LoanIDs)
	}

	notification := &models.Notification{
		ID:       uuid.New(),
		MemberID: input.MemberID,
		Kind:     input.Kind,
		Title:    strings.TrimSpace(input.Title),
		Body:     input.Body,
		LoanIDs:  loanIDs,
		Payload:  payload,
	}

	if err := repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	// Delivery is best-effort; the in-app record is the source of truth.
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notification); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "notification_id", notification.ID.String()), "notification fan-out failed")
		}
	}

	return notification, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	query := listNotificationsParams{
		MemberID:   params.MemberID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, memberID, notificationID uuid.UUID) error {
	if memberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, memberID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	if memberID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	count, err := s.repo.MarkAllRead(ctx, memberID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
