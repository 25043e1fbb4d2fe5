package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"workhub/server/common/apperr"
	commonauth "workhub/server/common/auth"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	SetActiveCompany(ctx context.Context, userID, companyID string) error
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID string) error
	ClearRefreshTokenIfMatch(ctx context.Context, userID, token string) (bool, error)
}

const minPasswordLength = 8

// Session is the result of a login or refresh. RefreshToken is only set by
// Login; refresh never rotates the credential.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             domain.User
}

type AuthService struct {
	users        UserStore
	tokens       *commonauth.Service
	now          func() time.Time
	passwordCost int
}

func NewAuthService(users UserStore, tokens *commonauth.Service) *AuthService {
	return &AuthService{users: users, tokens: tokens, now: time.Now, passwordCost: bcrypt.DefaultCost}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) WithPasswordCost(cost int) *AuthService {
	s.passwordCost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case name == "":
		return domain.User{}, apperr.Validation("name is required")
	case !strings.Contains(email, "@"):
		return domain.User{}, apperr.Validation("a valid email is required")
	case len(password) < minPasswordLength:
		return domain.User{}, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.CreateUser(ctx, domain.User{Name: name, Email: email, PasswordHash: string(hash)})
	if err != nil {
		return domain.User{}, err
	}
	commonlog.Infof("event=auth action=register status=ok user_id=%s", user.ID)
	return user, nil
}

// Login verifies credentials and mints an access token for the user's
// stored active company. The new refresh credential replaces any earlier one.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Session{}, apperr.Authentication("invalid credentials")
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		commonlog.Infof("event=auth action=login status=rejected user_id=%s", user.ID)
		return Session{}, apperr.Authentication("invalid credentials")
	}

	access, err := s.issueAccess(user)
	if err != nil {
		return Session{}, err
	}
	refresh, expiresAt, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.users.SaveRefreshToken(ctx, user.ID, refresh, expiresAt); err != nil {
		return Session{}, err
	}
	user.RefreshToken = refresh
	user.RefreshTokenExpires = &expiresAt
	commonlog.Infof("event=auth action=login status=ok user_id=%s", user.ID)
	return Session{AccessToken: access, RefreshToken: refresh, RefreshExpiresAt: expiresAt, User: user}, nil
}

// RefreshWithCredential mints a new access token from the refresh cookie.
// The credential must verify, be unexpired and equal the stored one. An
// expired credential is cleared if it is still the stored one; a mismatch is
// rejected without touching the stored credential.
func (s *AuthService) RefreshWithCredential(ctx context.Context, refreshToken string) (Session, error) {
	session, err := s.refreshWithCredential(ctx, refreshToken)
	s.recordRefresh("credential", err)
	return session, err
}

func (s *AuthService) refreshWithCredential(ctx context.Context, refreshToken string) (Session, error) {
	userID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, apperr.ErrTokenExpired) {
			s.clearExpired(ctx, refreshToken)
			return Session{}, apperr.Authentication("refresh token expired")
		}
		return Session{}, apperr.Authentication("invalid refresh token")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		commonlog.Warnf("event=auth action=refresh status=rejected reason=mismatch user_id=%s", user.ID)
		return Session{}, apperr.Authentication("refresh token mismatch")
	}
	if user.RefreshTokenExpires != nil && !s.now().Before(*user.RefreshTokenExpires) {
		s.clearExpired(ctx, refreshToken)
		return Session{}, apperr.Authentication("refresh token expired")
	}

	access, err := s.issueAccess(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, User: user}, nil
}

func (s *AuthService) clearExpired(ctx context.Context, refreshToken string) {
	userID, err := s.tokens.ParseExpiredRefreshToken(refreshToken)
	if err != nil {
		return
	}
	cleared, err := s.users.ClearRefreshTokenIfMatch(ctx, userID, refreshToken)
	if err != nil {
		commonlog.Errorf("event=auth action=clear_refresh status=failed user_id=%s error=%v", userID, err)
		return
	}
	if cleared {
		commonlog.Infof("event=auth action=clear_refresh status=ok reason=expired user_id=%s", userID)
	}
}

// RefreshWithAccessToken mints a new access token from a correctly signed,
// possibly expired, access token. Only the user id is taken from the token;
// tenant and role are re-derived from the user's current state. The user must
// still hold an unexpired refresh credential, so logout ends this path too.
func (s *AuthService) RefreshWithAccessToken(ctx context.Context, accessToken string) (Session, error) {
	session, err := s.refreshWithAccessToken(ctx, accessToken)
	s.recordRefresh("access_token", err)
	return session, err
}

func (s *AuthService) refreshWithAccessToken(ctx context.Context, accessToken string) (Session, error) {
	claims, err := s.tokens.ParseExpiredAccessToken(accessToken)
	if err != nil {
		return Session{}, apperr.Authentication("invalid access token")
	}
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return Session{}, err
	}
	if user.RefreshToken == "" {
		commonlog.Warnf("event=auth action=refresh status=rejected reason=no_session user_id=%s", user.ID)
		return Session{}, apperr.Authentication("no active session")
	}
	if user.RefreshTokenExpires != nil && !s.now().Before(*user.RefreshTokenExpires) {
		s.clearExpired(ctx, user.RefreshToken)
		return Session{}, apperr.Authentication("session expired")
	}
	access, err := s.issueAccess(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, User: user}, nil
}

func (s *AuthService) recordRefresh(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	refreshTotal.WithLabelValues(mode, result).Inc()
}

// Logout clears the stored refresh credential when refreshToken is still the
// current one. It never fails on a bad or missing credential.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	userID, err := s.tokens.ParseExpiredRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if _, err := s.users.ClearRefreshTokenIfMatch(ctx, userID, refreshToken); err != nil {
		return err
	}
	commonlog.Infof("event=auth action=logout status=ok user_id=%s", userID)
	return nil
}

// LogoutWithAccessToken clears the stored refresh credential of the user a
// correctly signed, possibly expired, access token belongs to. It is the
// logout path for clients that no longer hold the refresh cookie.
func (s *AuthService) LogoutWithAccessToken(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ParseExpiredAccessToken(accessToken)
	if err != nil {
		return nil
	}
	if err := s.users.ClearRefreshToken(ctx, claims.UserID); err != nil {
		return err
	}
	commonlog.Infof("event=auth action=logout status=ok mode=access_token user_id=%s", claims.UserID)
	return nil
}

// SwitchCompany sets the user's active company. It does not mint a token;
// the client refreshes afterwards to pick up the new tenant and role.
func (s *AuthService) SwitchCompany(ctx context.Context, userID, companyID string) error {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return apperr.Validation("companyId is required")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := user.MembershipIn(companyID); !ok {
		return apperr.Authorization("user is not a member of company %s", companyID)
	}
	if err := s.users.SetActiveCompany(ctx, userID, companyID); err != nil {
		return err
	}
	commonlog.Infof("event=auth action=switch_company status=ok user_id=%s company_id=%s", userID, companyID)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) loadUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.User{}, apperr.Authentication("user no longer exists")
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *AuthService) issueAccess(user domain.User) (string, error) {
	companyID, role := user.ActiveContext()
	return s.tokens.IssueAccessToken(user.ID, companyID, string(role))
}
