package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workhub/server/common/apperr"
	"workhub/server/common/transport/httpresp"
)

const (
	ContextAccessToken = "auth_access_token"
	ContextUserID      = "auth_user_id"
	ContextTenantID    = "auth_tenant_id"
	ContextRole        = "auth_role"
)

type tokenAuth interface {
	ParseAuthContext(token string) (userID, tenantID, role string, err error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeMissingToken, httpresp.ErrMissingBearerToken))
			return
		}
		userID, tenantID, role, err := auth.ParseAuthContext(token)
		if err != nil {
			if errors.Is(err, apperr.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeTokenExpired, httpresp.ErrTokenExpired))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeInvalidToken, httpresp.ErrInvalidToken))
			return
		}
		c.Set(ContextAccessToken, token)
		c.Set(ContextUserID, userID)
		c.Set(ContextTenantID, tenantID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// RequireTenant rejects tokens minted for a user without an active company.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetString(ContextTenantID)) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewCodedErrorResponse(httpresp.CodeNoActiveCompany, httpresp.ErrNoActiveCompany))
			return
		}
		c.Next()
	}
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[strings.TrimSpace(role)] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewCodedErrorResponse(httpresp.CodeForbidden, httpresp.ErrForbidden))
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewCodedErrorResponse(httpresp.CodeForbidden, httpresp.ErrInsufficientRole))
			return
		}
		c.Next()
	}
}
