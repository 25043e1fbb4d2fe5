package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/common/apperr"
	commonauth "workhub/server/common/auth"
	"workhub/server/notify/domain"
)

func TestRegisterValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "", "a@b.io", "long-enough")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.auth.Register(ctx, "Ann", "not-an-email", "long-enough")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.auth.Register(ctx, "Ann", "a@b.io", "short")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	user, err := f.auth.Register(ctx, "Ann", " Ann@B.io ", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, "ann@b.io", user.Email)
	assert.Nil(t, user.ActiveCompanyID)
}

func TestLoginWithoutActiveCompany(t *testing.T) {
	f := newFixture()
	f.user("ann@acme.io")

	session, err := f.auth.Login(context.Background(), "ann@acme.io", "correct-horse")
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.False(t, claims.HasTenant())
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, f.clock.now().Add(7*24*time.Hour), session.RefreshExpiresAt)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture()
	f.user("ann@acme.io")

	_, err := f.auth.Login(context.Background(), "ann@acme.io", "wrong-password")
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
	_, err = f.auth.Login(context.Background(), "nobody@acme.io", "correct-horse")
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
}

func TestLoginUsesStoredActiveCompany(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	company := f.company("Acme")
	user := f.user("ann@acme.io")
	f.member(company, user.ID, domain.RoleEditor)
	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, company))

	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, company, claims.TenantID)
	assert.Equal(t, string(domain.RoleEditor), claims.Role)
}

func TestSwitchThenRefreshCarriesNewTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c1 := f.company("Acme")
	c2 := f.company("Globex")
	user := f.user("ann@acme.io")
	f.member(c1, user.ID, domain.RoleMember)
	f.member(c2, user.ID, domain.RoleAdmin)
	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, c1))

	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)
	old := session.AccessToken

	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, c2))

	// The old token still names the previous tenant until it expires.
	claims, err := f.tokens.ParseAccessToken(old)
	require.NoError(t, err)
	assert.Equal(t, c1, claims.TenantID)

	refreshed, err := f.auth.RefreshWithCredential(ctx, session.RefreshToken)
	require.NoError(t, err)
	claims, err = f.tokens.ParseAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, c2, claims.TenantID)
	assert.Equal(t, string(domain.RoleAdmin), claims.Role)
	assert.Empty(t, refreshed.RefreshToken)
}

func TestSwitchCompanyRequiresMembership(t *testing.T) {
	f := newFixture()
	company := f.company("Acme")
	user := f.user("ann@acme.io")

	err := f.auth.SwitchCompany(context.Background(), user.ID, company)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	me, err := f.auth.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, me.ActiveCompanyID)
}

func TestRefreshWithExpiredAccessTokenRederivesTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c1 := f.company("Acme")
	c2 := f.company("Globex")
	user := f.user("ann@acme.io")
	f.member(c1, user.ID, domain.RoleAdmin)
	f.member(c2, user.ID, domain.RoleMember)
	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, c1))

	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	f.clock.advance(20 * time.Minute)
	_, err = f.tokens.ParseAccessToken(session.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenExpired))

	// Membership changes while the token is expired.
	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, c2))

	refreshed, err := f.auth.RefreshWithAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, c2, claims.TenantID)
	assert.Equal(t, string(domain.RoleMember), claims.Role)
}

func TestRefreshWithAccessTokenDropsRevokedMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	company := f.company("Acme")
	user := f.user("ann@acme.io")
	f.member(company, user.ID, domain.RoleEditor)
	require.NoError(t, f.auth.SwitchCompany(ctx, user.ID, company))
	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.store.RemoveMember(ctx, company, user.ID))

	refreshed, err := f.auth.RefreshWithAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.False(t, claims.HasTenant())
}

func TestRefreshWithForgedAccessTokenFails(t *testing.T) {
	f := newFixture()
	_, err := f.auth.RefreshWithAccessToken(context.Background(), "not.a.token")
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
}

func TestRefreshMismatchKeepsStoredCredential(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := f.user("ann@acme.io")

	first, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)
	second, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	_, err = f.auth.RefreshWithCredential(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
	assert.False(t, errors.Is(err, apperr.ErrTokenExpired))

	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, second.RefreshToken, stored.RefreshToken)

	_, err = f.auth.RefreshWithCredential(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshExpiredCredentialIsCleared(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := f.user("ann@acme.io")
	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	f.clock.advance(7*24*time.Hour + time.Minute)

	_, err = f.auth.RefreshWithCredential(ctx, session.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
	assert.False(t, errors.Is(err, apperr.ErrTokenExpired))

	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
}

func TestRefreshForDeletedUserFails(t *testing.T) {
	f := newFixture()
	token, _, err := f.tokens.IssueRefreshToken("ghost")
	require.NoError(t, err)

	_, err = f.auth.RefreshWithCredential(context.Background(), token)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
}

func TestLogoutClearsCurrentCredentialOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := f.user("ann@acme.io")
	first, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)
	second, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, first.RefreshToken))
	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, second.RefreshToken, stored.RefreshToken)

	require.NoError(t, f.auth.Logout(ctx, second.RefreshToken))
	stored, err = f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)

	_, err = f.auth.RefreshWithCredential(ctx, second.RefreshToken)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))

	assert.NoError(t, f.auth.Logout(ctx, ""))
	assert.NoError(t, f.auth.Logout(ctx, "garbage"))
}

func TestRefreshWithAccessTokenRequiresLiveSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.user("ann@acme.io")
	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, session.RefreshToken))
	f.clock.advance(30 * 24 * time.Hour)

	_, err = f.auth.RefreshWithAccessToken(ctx, session.AccessToken)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
}

func TestRefreshWithAccessTokenAfterSessionExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := f.user("ann@acme.io")
	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	f.clock.advance(commonauth.RefreshTokenTTL + time.Minute)

	_, err = f.auth.RefreshWithAccessToken(ctx, session.AccessToken)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))
	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
}

func TestLogoutWithAccessToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := f.user("ann@acme.io")
	session, err := f.auth.Login(ctx, "ann@acme.io", "correct-horse")
	require.NoError(t, err)

	f.clock.advance(20 * time.Minute)
	require.NoError(t, f.auth.LogoutWithAccessToken(ctx, session.AccessToken))

	stored, err := f.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
	_, err = f.auth.RefreshWithCredential(ctx, session.RefreshToken)
	assert.True(t, errors.Is(err, apperr.ErrAuthentication))

	assert.NoError(t, f.auth.LogoutWithAccessToken(ctx, "not.a.token"))
}
