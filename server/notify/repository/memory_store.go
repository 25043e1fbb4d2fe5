package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"workhub/server/common/apperr"
	"workhub/server/notify/domain"
)

// MemoryStore keeps users, memberships and notifications in process memory.
// It serves STORE_DRIVER=memory and the package tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	seq           int64
	users         map[string]domain.User
	emails        map[string]string
	companies     map[string]domain.Company
	members       map[string][]domain.Membership // keyed by user id
	notifications []storedNotification
}

type storedNotification struct {
	domain.Notification
	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		users:     map[string]domain.User{},
		emails:    map[string]string{},
		companies: map[string]domain.Company{},
		members:   map[string][]domain.Membership{},
	}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) CreateNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Read = false
	n.CreatedAt = s.now().UTC()
	s.seq++
	s.notifications = append(s.notifications, storedNotification{Notification: n, seq: s.seq})
	return n, nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, q domain.NotificationQuery) ([]domain.Notification, error) {
	excluded := map[domain.NotificationType]struct{}{}
	for _, t := range q.ExcludeTypes {
		excluded[t] = struct{}{}
	}

	s.mu.RLock()
	matched := make([]storedNotification, 0)
	for _, n := range s.notifications {
		if n.UserID != q.UserID || n.CompanyID != q.CompanyID {
			continue
		}
		if q.ProjectID != "" && (n.ProjectID == nil || *n.ProjectID != q.ProjectID) {
			continue
		}
		if _, skip := excluded[n.Type]; skip {
			continue
		}
		if q.UnreadOnly && n.Read {
			continue
		}
		matched = append(matched, n)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	items := make([]domain.Notification, 0, len(matched))
	for _, n := range matched {
		items = append(items, n.Notification)
	}
	return items, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, companyID, id string) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID == id && n.UserID == userID && n.CompanyID == companyID {
			n.Read = true
			return n.Notification, nil
		}
	}
	return domain.Notification{}, apperr.NotFound("notification %s", id)
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID, companyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.UserID == userID && n.CompanyID == companyID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID, companyID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && n.CompanyID == companyID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := s.emails[email]; exists {
		return domain.User{}, apperr.Validation("email %s is already registered", user.Email)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Memberships = nil
	s.users[user.ID] = user
	s.emails[email] = user.ID
	return s.withMemberships(user), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return domain.User{}, apperr.NotFound("user")
	}
	return s.withMemberships(s.users[id]), nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, apperr.NotFound("user")
	}
	return s.withMemberships(user), nil
}

// withMemberships returns a copy safe to hand out; the caller holds s.mu.
func (s *MemoryStore) withMemberships(user domain.User) domain.User {
	user.Memberships = append([]domain.Membership{}, s.members[user.ID]...)
	if user.ActiveCompanyID != nil {
		id := *user.ActiveCompanyID
		user.ActiveCompanyID = &id
	}
	if user.RefreshTokenExpires != nil {
		exp := *user.RefreshTokenExpires
		user.RefreshTokenExpires = &exp
	}
	return user
}

func (s *MemoryStore) updateUser(userID string, fn func(u *domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	fn(&user)
	user.UpdatedAt = s.now().UTC()
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) SetActiveCompany(_ context.Context, userID, companyID string) error {
	return s.updateUser(userID, func(u *domain.User) {
		id := companyID
		u.ActiveCompanyID = &id
	})
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	return s.updateUser(userID, func(u *domain.User) {
		exp := expiresAt
		u.RefreshToken = token
		u.RefreshTokenExpires = &exp
	})
}

func (s *MemoryStore) ClearRefreshToken(_ context.Context, userID string) error {
	err := s.updateUser(userID, func(u *domain.User) {
		u.RefreshToken = ""
		u.RefreshTokenExpires = nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func (s *MemoryStore) ClearRefreshTokenIfMatch(_ context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.RefreshToken == "" || user.RefreshToken != token {
		return false, nil
	}
	user.RefreshToken = ""
	user.RefreshTokenExpires = nil
	user.UpdatedAt = s.now().UTC()
	s.users[userID] = user
	return true, nil
}

func (s *MemoryStore) ListCompanyMembers(_ context.Context, companyID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type joined struct {
		userID string
		at     time.Time
	}
	found := make([]joined, 0)
	for userID, memberships := range s.members {
		for _, m := range memberships {
			if m.CompanyID == companyID {
				found = append(found, joined{userID: userID, at: m.JoinedAt})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].at.Equal(found[j].at) {
			return found[i].at.Before(found[j].at)
		}
		return found[i].userID < found[j].userID
	})
	ids := make([]string, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.userID)
	}
	return ids, nil
}

func (s *MemoryStore) CreateCompany(_ context.Context, company domain.Company) (domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	company.CreatedAt = s.now().UTC()
	s.companies[company.ID] = company
	return company, nil
}

func (s *MemoryStore) AddMember(_ context.Context, companyID, userID string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[companyID]; !ok {
		return apperr.NotFound("company or user")
	}
	if _, ok := s.users[userID]; !ok {
		return apperr.NotFound("company or user")
	}
	memberships := s.members[userID]
	for i := range memberships {
		if memberships[i].CompanyID == companyID {
			memberships[i].Role = role
			return nil
		}
	}
	s.members[userID] = append(memberships, domain.Membership{CompanyID: companyID, Role: role, JoinedAt: s.now().UTC()})
	return nil
}

// RemoveMember drops a membership. Company administration lives outside this
// service; the store exposes it so membership changes can be exercised.
func (s *MemoryStore) RemoveMember(_ context.Context, companyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	memberships := s.members[userID]
	for i := range memberships {
		if memberships[i].CompanyID == companyID {
			s.members[userID] = append(memberships[:i], memberships[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("membership")
}
