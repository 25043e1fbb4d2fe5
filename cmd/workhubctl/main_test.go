package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/common/infra/notifyclient"
	"workhub/server/notify/app"
	"workhub/server/notify/domain"
	"workhub/server/notify/repository"
)

func useMemoryStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	t.Setenv("NOTIFY_USE_REDIS", "false")
	mem := repository.NewMemoryStore()
	orig := storeFactory
	storeFactory = func(context.Context, app.Config) (adminStore, func(), error) {
		return mem, func() {}, nil
	}
	t.Cleanup(func() { storeFactory = orig })
	return mem
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnnounceCommand(t *testing.T) {
	mem := useMemoryStore(t)
	ctx := context.Background()
	company, err := mem.CreateCompany(ctx, domain.Company{Name: "Acme"})
	require.NoError(t, err)
	var ids []string
	for _, email := range []string{"a@acme.io", "b@acme.io"} {
		u, err := mem.CreateUser(ctx, domain.User{Name: email, Email: email, PasswordHash: "x"})
		require.NoError(t, err)
		require.NoError(t, mem.AddMember(ctx, company.ID, u.ID, domain.RoleMember))
		ids = append(ids, u.ID)
	}

	out, err := execute(t, "announce", "--company", company.ID, "--actor", ids[0], "-m", "Release tonight")
	require.NoError(t, err)
	assert.Contains(t, out, "announcement sent to 2 members")

	for _, id := range ids {
		items, err := mem.ListNotifications(ctx, domain.NotificationQuery{UserID: id, CompanyID: company.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, domain.NotificationSystemAnnouncement, items[0].Type)
	}
}

func TestCompanyCommands(t *testing.T) {
	mem := useMemoryStore(t)
	ctx := context.Background()
	u, err := mem.CreateUser(ctx, domain.User{Name: "Ann", Email: "ann@acme.io", PasswordHash: "x"})
	require.NoError(t, err)

	out, err := execute(t, "company", "create", "--name", "Acme")
	require.NoError(t, err)
	companyID := strings.TrimSpace(out)
	require.NotEmpty(t, companyID)

	_, err = execute(t, "company", "add-member", "--company", companyID, "--user", u.ID, "--role", "owner")
	assert.Error(t, err)

	_, err = execute(t, "company", "add-member", "--company", companyID, "--user", u.ID, "--role", "admin")
	require.NoError(t, err)
	members, err := mem.ListCompanyMembers(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, members)
}

func TestDispatchCommandPostsToNotifyd(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "k")
	var got notifyclient.DispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get(notifyclient.KeyHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"n1","userId":"u1"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "dispatch", "--endpoint", srv.URL, "--user", "u1", "--company", "c1",
		"--actor", "u2", "--type", "task_assigned", "--project", "p1", "-m", "Review the draft")
	require.NoError(t, err)
	assert.Contains(t, out, "notification n1 created for u1")
	assert.Equal(t, "c1", got.CompanyID)
	assert.Equal(t, "task_assigned", got.Type)
	require.NotNil(t, got.ProjectID)
	assert.Equal(t, "p1", *got.ProjectID)
}
