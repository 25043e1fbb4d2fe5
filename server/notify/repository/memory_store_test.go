package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/common/apperr"
	"workhub/server/notify/domain"
)

type tickClock struct{ t time.Time }

func (c *tickClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore() *MemoryStore {
	clock := &tickClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryStore().WithClock(clock.now)
}

func notification(userID, companyID string, typ domain.NotificationType, msg string) domain.Notification {
	return domain.Notification{UserID: userID, CompanyID: companyID, Type: typ, Message: msg, CreatedBy: "actor"}
}

func TestListNotificationsScopesAndOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	project := "p1"

	_, err := s.CreateNotification(ctx, notification("u1", "c1", domain.NotificationTaskAssigned, "first"))
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, notification("u1", "c2", domain.NotificationTaskAssigned, "other tenant"))
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, notification("u1", "c1", domain.NotificationSystemAnnouncement, "announcement"))
	require.NoError(t, err)
	withProject := notification("u1", "c1", domain.NotificationNewComment, "third")
	withProject.ProjectID = &project
	_, err = s.CreateNotification(ctx, withProject)
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, notification("u2", "c1", domain.NotificationTaskAssigned, "someone else"))
	require.NoError(t, err)

	items, err := s.ListNotifications(ctx, domain.NotificationQuery{UserID: "u1", CompanyID: "c1", ExcludeTypes: domain.BacklogExcluded()})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "third", items[0].Message)
	assert.Equal(t, "first", items[1].Message)

	items, err = s.ListNotifications(ctx, domain.NotificationQuery{UserID: "u1", CompanyID: "c1", ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "third", items[0].Message)

	items, err = s.ListNotifications(ctx, domain.NotificationQuery{UserID: "u1", CompanyID: "c1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "third", items[0].Message)
}

func TestCreateNotificationIsUnread(t *testing.T) {
	s := newStore()
	n := notification("u1", "c1", domain.NotificationRoleChanged, "promoted")
	n.Read = true

	created, err := s.CreateNotification(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, created.Read)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestMarkReadIsMonotonicAndScoped(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	created, err := s.CreateNotification(ctx, notification("u1", "c1", domain.NotificationTaskAssigned, "task"))
	require.NoError(t, err)

	_, err = s.MarkNotificationRead(ctx, "u2", "c1", created.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	read, err := s.MarkNotificationRead(ctx, "u1", "c1", created.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	read, err = s.MarkNotificationRead(ctx, "u1", "c1", created.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	count, err := s.CountUnreadNotifications(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for i := 0; i < 3; i++ {
		_, err := s.CreateNotification(ctx, notification("u1", "c1", domain.NotificationNewComment, "comment"))
		require.NoError(t, err)
	}
	_, err := s.CreateNotification(ctx, notification("u1", "c2", domain.NotificationNewComment, "comment"))
	require.NoError(t, err)

	updated, err := s.MarkAllNotificationsRead(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated)

	count, err := s.CountUnreadNotifications(ctx, "u1", "c2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUsersAndMemberships(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	user, err := s.CreateUser(ctx, domain.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, domain.User{Name: "Ann 2", Email: "ANN@example.com", PasswordHash: "x"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	company, err := s.CreateCompany(ctx, domain.Company{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, company.ID, user.ID, domain.RoleMember))
	require.NoError(t, s.AddMember(ctx, company.ID, user.ID, domain.RoleAdmin))
	assert.True(t, errors.Is(s.AddMember(ctx, "missing", user.ID, domain.RoleAdmin), apperr.ErrNotFound))

	loaded, err := s.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, loaded.Memberships, 1)
	assert.Equal(t, domain.RoleAdmin, loaded.Memberships[0].Role)

	members, err := s.ListCompanyMembers(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, members)

	require.NoError(t, s.RemoveMember(ctx, company.ID, user.ID))
	loaded, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Memberships)
}

func TestRefreshTokenStorage(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	user, err := s.CreateUser(ctx, domain.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	expires := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRefreshToken(ctx, user.ID, "r1", expires))
	require.NoError(t, s.SaveRefreshToken(ctx, user.ID, "r2", expires))

	loaded, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "r2", loaded.RefreshToken)

	cleared, err := s.ClearRefreshTokenIfMatch(ctx, user.ID, "r1")
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = s.ClearRefreshTokenIfMatch(ctx, user.ID, "r2")
	require.NoError(t, err)
	assert.True(t, cleared)

	loaded, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.RefreshToken)
	assert.Nil(t, loaded.RefreshTokenExpires)
}
