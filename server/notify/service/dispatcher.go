package service

import (
	"context"
	"strings"

	"workhub/server/common/apperr"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

type NotificationWriter interface {
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
}

// NotificationEvents receives a copy of every persisted notification.
type NotificationEvents interface {
	NotificationCreated(ctx context.Context, n domain.Notification) error
}

// Dispatcher is the single write path for notifications: the record is
// persisted first, then pushed to the recipient if they are connected.
type Dispatcher struct {
	store  NotificationWriter
	hub    *Hub
	events NotificationEvents
}

func NewDispatcher(store NotificationWriter, hub *Hub) *Dispatcher {
	return &Dispatcher{store: store, hub: hub}
}

// UseEvents attaches a downstream publisher. Publishing is best effort.
func (d *Dispatcher) UseEvents(events NotificationEvents) {
	d.events = events
}

func (d *Dispatcher) Dispatch(ctx context.Context, in domain.DispatchInput) (domain.Notification, error) {
	if err := validateDispatch(in); err != nil {
		dispatchTotal.WithLabelValues(string(in.Type), "invalid").Inc()
		return domain.Notification{}, err
	}

	n, err := d.store.CreateNotification(ctx, domain.Notification{
		UserID:    strings.TrimSpace(in.UserID),
		CompanyID: strings.TrimSpace(in.CompanyID),
		ProjectID: in.ProjectID,
		Message:   in.Message,
		Type:      in.Type,
		CreatedBy: strings.TrimSpace(in.CreatedBy),
	})
	if err != nil {
		dispatchTotal.WithLabelValues(string(in.Type), "failed").Inc()
		commonlog.Errorf("event=notify_dispatch action=persist status=failed user_id=%s company_id=%s type=%s error=%v", in.UserID, in.CompanyID, in.Type, err)
		return domain.Notification{}, err
	}
	dispatchTotal.WithLabelValues(string(n.Type), "ok").Inc()

	d.push(ctx, n)

	if d.events != nil {
		if err := d.events.NotificationCreated(ctx, n); err != nil {
			commonlog.Warnf("event=notify_dispatch action=publish status=failed notification_id=%s error=%v", n.ID, err)
		}
	}
	return n, nil
}

func (d *Dispatcher) push(ctx context.Context, n domain.Notification) {
	if d.hub == nil {
		return
	}
	delivery, err := d.hub.Deliver(ctx, n.UserID, domain.Event{Name: domain.EventNewNotification, Data: n.Push()})
	if err != nil {
		pushTotal.WithLabelValues("failed").Inc()
		commonlog.Warnf("event=notify_dispatch action=push status=failed notification_id=%s user_id=%s error=%v", n.ID, n.UserID, err)
		return
	}
	pushTotal.WithLabelValues(string(delivery)).Inc()
	commonlog.Debugf("event=notify_dispatch action=push status=ok notification_id=%s user_id=%s delivery=%s", n.ID, n.UserID, delivery)
}

func validateDispatch(in domain.DispatchInput) error {
	switch {
	case !in.Type.Valid():
		return apperr.Validation("unknown notification type %q", in.Type)
	case strings.TrimSpace(in.Message) == "":
		return apperr.Validation("message is required")
	case strings.TrimSpace(in.UserID) == "":
		return apperr.Validation("userId is required")
	case strings.TrimSpace(in.CompanyID) == "":
		return apperr.Validation("companyId is required")
	case strings.TrimSpace(in.CreatedBy) == "":
		return apperr.Validation("createdBy is required")
	}
	return nil
}
