package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workhub/server/common/apperr"
	"workhub/server/notify/domain"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, company_id, project_id, message, type, read, created_by, created_at`

func (r *NotificationRepository) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications(id, user_id, company_id, project_id, message, type, read, created_by)
		VALUES($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING read, created_at
	`, n.ID, n.UserID, n.CompanyID, n.ProjectID, n.Message, n.Type, n.CreatedBy).Scan(&n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, q domain.NotificationQuery) ([]domain.Notification, error) {
	where := []string{"user_id=$1", "company_id=$2"}
	args := []any{q.UserID, q.CompanyID}
	if q.ProjectID != "" {
		args = append(args, q.ProjectID)
		where = append(where, fmt.Sprintf("project_id=$%d", len(args)))
	}
	if len(q.ExcludeTypes) > 0 {
		excluded := make([]string, 0, len(q.ExcludeTypes))
		for _, t := range q.ExcludeTypes {
			excluded = append(excluded, string(t))
		}
		args = append(args, excluded)
		where = append(where, fmt.Sprintf("NOT (type = ANY($%d))", len(args)))
	}
	if q.UnreadOnly {
		where = append(where, "read=FALSE")
	}
	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var item domain.Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.CompanyID, &item.ProjectID, &item.Message, &item.Type, &item.Read, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkNotificationRead sets read on a record owned by userID in companyID.
// Marking an already read record is a no-op.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, userID, companyID, id string) (domain.Notification, error) {
	var item domain.Notification
	err := r.db.QueryRow(ctx, `
		UPDATE notifications SET read=TRUE
		WHERE id=$1 AND user_id=$2 AND company_id=$3
		RETURNING `+notificationColumns, id, userID, companyID).
		Scan(&item.ID, &item.UserID, &item.CompanyID, &item.ProjectID, &item.Message, &item.Type, &item.Read, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, apperr.NotFound("notification %s", id)
		}
		return domain.Notification{}, err
	}
	return item, nil
}

func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, userID, companyID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND company_id=$2 AND read=FALSE`, userID, companyID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, userID, companyID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND company_id=$2 AND read=FALSE`, userID, companyID).Scan(&count)
	return count, err
}
