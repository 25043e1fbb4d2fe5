package domain

import "time"

type NotificationType string

const (
	NotificationUserJoined           NotificationType = "user_joined"
	NotificationInviteAccepted       NotificationType = "invite_accepted"
	NotificationTaskAssigned         NotificationType = "task_assigned"
	NotificationNewComment           NotificationType = "new_comment"
	NotificationProjectAssigned      NotificationType = "project_assigned"
	NotificationTaskStatusChanged    NotificationType = "task_status_changed"
	NotificationProjectStatusChanged NotificationType = "project_status_changed"
	NotificationProjectRestored      NotificationType = "project_restored"
	NotificationRoleChanged          NotificationType = "role_changed"
	NotificationSystemAnnouncement   NotificationType = "system_announcement"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationUserJoined,
		NotificationInviteAccepted,
		NotificationTaskAssigned,
		NotificationNewComment,
		NotificationProjectAssigned,
		NotificationTaskStatusChanged,
		NotificationProjectStatusChanged,
		NotificationProjectRestored,
		NotificationRoleChanged,
		NotificationSystemAnnouncement:
		return true
	}
	return false
}

// InBacklog reports whether records of this type are replayed to a client
// when it connects. Announcements are only read through the inbox API.
func (t NotificationType) InBacklog() bool {
	switch t {
	case NotificationSystemAnnouncement:
		return false
	case NotificationUserJoined,
		NotificationInviteAccepted,
		NotificationTaskAssigned,
		NotificationNewComment,
		NotificationProjectAssigned,
		NotificationTaskStatusChanged,
		NotificationProjectStatusChanged,
		NotificationProjectRestored,
		NotificationRoleChanged:
		return true
	}
	return false
}

// BacklogExcluded lists the types left out of the connect-time replay.
func BacklogExcluded() []NotificationType {
	return []NotificationType{NotificationSystemAnnouncement}
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	CompanyID string           `json:"companyId"`
	ProjectID *string          `json:"projectId,omitempty"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedBy string           `json:"createdBy"`
	CreatedAt time.Time        `json:"createdAt"`
}

type DispatchInput struct {
	UserID    string           `json:"userId"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CompanyID string           `json:"companyId"`
	ProjectID *string          `json:"projectId,omitempty"`
	CreatedBy string           `json:"createdBy"`
}

// PushPayload is the body of a newNotification frame.
type PushPayload struct {
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
	Read      bool             `json:"read"`
}

func (n Notification) Push() PushPayload {
	return PushPayload{Message: n.Message, Type: n.Type, CreatedAt: n.CreatedAt, Read: n.Read}
}

type NotificationQuery struct {
	UserID       string
	CompanyID    string
	ProjectID    string
	ExcludeTypes []NotificationType
	UnreadOnly   bool
	Limit        int
}

const (
	EventInitialNotifications = "initialNotifications"
	EventNewNotification      = "newNotification"
	EventError                = "error"
)

// Event is the frame written to a realtime connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// ErrorCodeInternal is sent when the server cannot complete a connection it
// already accepted.
const ErrorCodeInternal = "internal_error"

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
