package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	commonauth "workhub/server/common/auth"
	"workhub/server/notify/domain"
	"workhub/server/notify/repository"
)

type fakeHandle struct {
	id     string
	userID string
	err    error

	mu     sync.Mutex
	events []domain.Event
}

func newFakeHandle(userID string) *fakeHandle {
	return &fakeHandle{id: uuid.NewString(), userID: userID}
}

func (h *fakeHandle) ID() string     { return h.id }
func (h *fakeHandle) UserID() string { return h.userID }

func (h *fakeHandle) Send(event domain.Event) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *fakeHandle) received() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event{}, h.events...)
}

type failingWriter struct{}

func (failingWriter) CreateNotification(context.Context, domain.Notification) (domain.Notification, error) {
	return domain.Notification{}, errors.New("connection refused")
}

type recordingEvents struct {
	mu    sync.Mutex
	items []domain.Notification
	err   error
}

func (r *recordingEvents) NotificationCreated(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return r.err
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture wires the services against a MemoryStore the way app.NewServer
// does against postgres.
type fixture struct {
	clock         *testClock
	store         *repository.MemoryStore
	tokens        *commonauth.Service
	hub           *Hub
	dispatcher    *Dispatcher
	notifications *NotificationService
	auth          *AuthService
}

func newFixture() *fixture {
	clock := newTestClock()
	store := repository.NewMemoryStore()
	tokens := commonauth.NewService("test-access-secret-0123456789abcdef", "test-refresh-secret-0123456789abcde").WithClock(clock.now)
	hub := NewHub(NewLocalRegistry())
	dispatcher := NewDispatcher(store, hub)
	return &fixture{
		clock:         clock,
		store:         store,
		tokens:        tokens,
		hub:           hub,
		dispatcher:    dispatcher,
		notifications: NewNotificationService(store, store, dispatcher),
		auth:          NewAuthService(store, tokens).WithClock(clock.now).WithPasswordCost(4),
	}
}

func (f *fixture) company(name string) string {
	c, err := f.store.CreateCompany(context.Background(), domain.Company{Name: name})
	if err != nil {
		panic(err)
	}
	return c.ID
}

func (f *fixture) user(email string) domain.User {
	u, err := f.auth.Register(context.Background(), "User "+email, email, "correct-horse")
	if err != nil {
		panic(err)
	}
	return u
}

func (f *fixture) member(companyID, userID string, role domain.Role) {
	if err := f.store.AddMember(context.Background(), companyID, userID, role); err != nil {
		panic(err)
	}
}
