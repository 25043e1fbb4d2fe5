package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"workhub/server/common/apperr"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the access token payload. TenantID and Role are empty for a user
// without an active company.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasTenant() bool {
	return strings.TrimSpace(c.TenantID) != ""
}

type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewService(accessSecret, refreshSecret string) *Service {
	return &Service{accessSecret: []byte(accessSecret), refreshSecret: []byte(refreshSecret), now: time.Now}
}

// WithClock swaps the time source used for issuing and validating tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) IssueAccessToken(userID, tenantID, role string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.accessSecret)
}

// ParseAccessToken verifies signature and expiry. An expired but otherwise
// valid token yields apperr.ErrTokenExpired.
func (s *Service) ParseAccessToken(token string) (*Claims, error) {
	return s.parseAccess(token, true)
}

// ParseExpiredAccessToken verifies only the signature. It exists to recover
// the caller identity on the refresh path; the tenant and role claims of the
// result must not be trusted.
func (s *Service) ParseExpiredAccessToken(token string) (*Claims, error) {
	return s.parseAccess(token, false)
}

func (s *Service) ParseAuthContext(token string) (string, string, string, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return "", "", "", err
	}
	return claims.UserID, claims.TenantID, claims.Role, nil
}

func (s *Service) parseAccess(token string, validate bool) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(token, claims, s.accessSecret, validate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, apperr.Authentication("token has no user")
	}
	return claims, nil
}

// IssueRefreshToken returns a signed refresh credential and its absolute expiry.
func (s *Service) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(RefreshTokenTTL)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseRefreshToken returns the user id the credential was issued to.
func (s *Service) ParseRefreshToken(token string) (string, error) {
	return s.parseRefresh(token, true)
}

// ParseExpiredRefreshToken returns the subject of a correctly signed refresh
// credential regardless of its expiry.
func (s *Service) ParseExpiredRefreshToken(token string) (string, error) {
	return s.parseRefresh(token, false)
}

func (s *Service) parseRefresh(token string, validate bool) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if err := s.parse(token, claims, s.refreshSecret, validate); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.Authentication("refresh token has no subject")
	}
	return claims.Subject, nil
}

func (s *Service) parse(token string, claims jwt.Claims, secret []byte, validate bool) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Authentication("token is empty")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if validate {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", apperr.ErrAuthentication, err)
	}
	if !parsed.Valid {
		return apperr.Authentication("invalid token")
	}
	return nil
}
