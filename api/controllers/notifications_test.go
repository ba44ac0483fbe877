package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
)

type testNotificationsService struct {
	markReadFn    func(ctx context.Context, memberID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, memberID uuid.UUID) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *testNotificationsService) Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	return nil, nil
}

func (s *testNotificationsService) NotifyTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) (*models.Notification, error) {
	return nil, nil
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, memberID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, memberID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, memberID)
	}
	return 0, nil
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	memberID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, mid, nid uuid.UUID) error {
			called = true
			if mid != memberID {
				t.Fatalf("unexpected member %s", mid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", "", memberID, enums.MemberRoleMember)
	req = addRouteParam(req, "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
}

func TestMarkNotificationReadMissingCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", nil)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	req := authedRequest(http.MethodPost, "/api/v1/notifications/invalid/read", "", uuid.New(), enums.MemberRoleMember)
	req = addRouteParam(req, "notificationId", "invalid")
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsReadSuccess(t *testing.T) {
	memberID := uuid.New()
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, mid uuid.UUID) (int64, error) {
			if mid != memberID {
				t.Fatalf("unexpected member %s", mid)
			}
			return 5, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/notifications/read-all", "", memberID, enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["updated"] != 5 {
		t.Fatalf("expected updated=5 got %v", envelope.Data["updated"])
	}
}

func TestListNotificationsForwardsFilters(t *testing.T) {
	memberID := uuid.New()
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			if params.MemberID != memberID {
				t.Fatalf("unexpected member %s", params.MemberID)
			}
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			if !params.UnreadOnly {
				t.Fatal("expected unreadOnly filter")
			}
			return &notifications.ListResult{}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/notifications?limit=10&unreadOnly=true", "", memberID, enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
