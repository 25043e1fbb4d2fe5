package service

import (
	"context"
	"strings"

	"workhub/server/common/apperr"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

type NotificationStore interface {
	NotificationWriter
	ListNotifications(ctx context.Context, q domain.NotificationQuery) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, companyID, id string) (domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID, companyID string) (int64, error)
	CountUnreadNotifications(ctx context.Context, userID, companyID string) (int64, error)
}

type MemberLister interface {
	ListCompanyMembers(ctx context.Context, companyID string) ([]string, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type NotificationService struct {
	store      NotificationStore
	members    MemberLister
	dispatcher *Dispatcher
}

func NewNotificationService(store NotificationStore, members MemberLister, dispatcher *Dispatcher) *NotificationService {
	return &NotificationService{store: store, members: members, dispatcher: dispatcher}
}

type ListOptions struct {
	ProjectID  string
	UnreadOnly bool
	Limit      int
}

func (s *NotificationService) List(ctx context.Context, userID, companyID string, opts ListOptions) ([]domain.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListNotifications(ctx, domain.NotificationQuery{
		UserID:     userID,
		CompanyID:  companyID,
		ProjectID:  strings.TrimSpace(opts.ProjectID),
		UnreadOnly: opts.UnreadOnly,
		Limit:      limit,
	})
}

// Backlog returns every notification replayed on connect, newest first.
func (s *NotificationService) Backlog(ctx context.Context, userID, companyID string) ([]domain.Notification, error) {
	return s.store.ListNotifications(ctx, domain.NotificationQuery{
		UserID:       userID,
		CompanyID:    companyID,
		ExcludeTypes: domain.BacklogExcluded(),
	})
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, companyID, id string) (domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Notification{}, apperr.Validation("notification id is required")
	}
	return s.store.MarkNotificationRead(ctx, userID, companyID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID, companyID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID, companyID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID, companyID string) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID, companyID)
}

// Announce fans a system announcement out to every member of companyID, one
// record per member. It stops at the first persistence failure and reports
// how many records were written before it.
func (s *NotificationService) Announce(ctx context.Context, companyID, actorID, message string) (int, error) {
	if strings.TrimSpace(message) == "" {
		return 0, apperr.Validation("message is required")
	}
	members, err := s.members.ListCompanyMembers(ctx, companyID)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, userID := range members {
		_, err := s.dispatcher.Dispatch(ctx, domain.DispatchInput{
			UserID:    userID,
			Message:   message,
			Type:      domain.NotificationSystemAnnouncement,
			CompanyID: companyID,
			CreatedBy: actorID,
		})
		if err != nil {
			return sent, err
		}
		sent++
	}
	commonlog.Infof("event=notify_announce action=fanout status=ok company_id=%s actor_id=%s fanout_count=%d", companyID, actorID, sent)
	return sent, nil
}
