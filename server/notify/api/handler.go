package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workhub/server/common/apperr"
	commonauth "workhub/server/common/auth"
	"workhub/server/common/middleware"
	"workhub/server/common/transport/httpresp"
	"workhub/server/notify/domain"
	"workhub/server/notify/service"
)

const (
	RefreshCookieName = "refreshToken"
	internalKeyHeader = "X-Internal-Key"
)

type Options struct {
	SecureCookies  bool
	InternalAPIKey string
	// Ready reports backing store health for /health. Optional.
	Ready func(ctx context.Context) error
}

type Handler struct {
	auth          *service.AuthService
	notifications *service.NotificationService
	dispatcher    *service.Dispatcher
	gateway       *service.Gateway
	tokens        *commonauth.Service
	opts          Options
}

func NewHandler(auth *service.AuthService, notifications *service.NotificationService, dispatcher *service.Dispatcher, gateway *service.Gateway, tokens *commonauth.Service, opts Options) *Handler {
	return &Handler{auth: auth, notifications: notifications, dispatcher: dispatcher, gateway: gateway, tokens: tokens, opts: opts}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.ws)

	public := r.Group("/api/v1/auth")
	{
		public.POST("/register", h.register)
		public.POST("/login", h.login)
		public.POST("/refresh", h.refresh)
		public.POST("/logout", h.logout)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.tokens))
	{
		api.GET("/auth/me", h.me)
		api.POST("/companies/switch", h.switchCompany)

		notifications := api.Group("/notifications")
		notifications.Use(middleware.RequireTenant())
		notifications.GET("", h.listNotifications)
		notifications.GET("/unread-count", h.unreadCount)
		notifications.PATCH("/read-all", h.markAllRead)
		notifications.PATCH("/:id/read", h.markRead)
		notifications.POST("/announcements", middleware.RequireRoles(string(domain.RoleAdmin)), h.announce)
	}

	if strings.TrimSpace(h.opts.InternalAPIKey) != "" {
		internal := r.Group("/api/internal/v1")
		internal.Use(h.internalOnly)
		internal.POST("/notifications/dispatch", h.dispatch)
	}
}

func (h *Handler) health(c *gin.Context) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) internalOnly(c *gin.Context) {
	key := c.GetHeader(internalKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.opts.InternalAPIKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeInvalidToken, httpresp.ErrUnauthorized))
		return
	}
	c.Next()
}

func writeError(c *gin.Context, err error) {
	status, body := httpresp.StatusFor(err)
	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httpresp.NewCodedErrorResponse(httpresp.CodeValidation, err.Error()))
}

func actorFromContext(c *gin.Context) (string, string, error) {
	userID := strings.TrimSpace(c.GetString(middleware.ContextUserID))
	if userID == "" {
		return "", "", errors.New("missing auth context")
	}
	return strings.TrimSpace(c.GetString(middleware.ContextTenantID)), userID, nil
}

type sessionResponse struct {
	AccessToken string      `json:"accessToken"`
	User        domain.User `json:"user"`
}

type userResponse struct {
	User domain.User `json:"user"`
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, token, maxAge, "/", "", h.opts.SecureCookies, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	h.setRefreshCookie(c, "", -1)
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse{User: user})
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setRefreshCookie(c, session.RefreshToken, int(commonauth.RefreshTokenTTL.Seconds()))
	c.JSON(http.StatusOK, sessionResponse{AccessToken: session.AccessToken, User: session.User})
}

// refresh prefers the refresh cookie. Without one it accepts a correctly
// signed, possibly expired, bearer token.
func (h *Handler) refresh(c *gin.Context) {
	var (
		session service.Session
		err     error
	)
	if cookie, cerr := c.Cookie(RefreshCookieName); cerr == nil && strings.TrimSpace(cookie) != "" {
		session, err = h.auth.RefreshWithCredential(c.Request.Context(), cookie)
		if errors.Is(err, apperr.ErrAuthentication) {
			h.clearRefreshCookie(c)
		}
	} else if token, ok := middleware.BearerToken(c); ok {
		session, err = h.auth.RefreshWithAccessToken(c.Request.Context(), token)
	} else {
		c.JSON(http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeSessionInvalid, httpresp.ErrSessionInvalid))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{AccessToken: session.AccessToken, User: session.User})
}

// logout clears the stored credential named by the refresh cookie, or without
// a cookie the credential of the bearer token's user.
func (h *Handler) logout(c *gin.Context) {
	var err error
	if cookie, cerr := c.Cookie(RefreshCookieName); cerr == nil && strings.TrimSpace(cookie) != "" {
		err = h.auth.Logout(c.Request.Context(), cookie)
	} else if token, ok := middleware.BearerToken(c); ok {
		err = h.auth.LogoutWithAccessToken(c.Request.Context(), token)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, httpresp.NewMessageResponse("logged out"))
}

func (h *Handler) me(c *gin.Context) {
	_, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	user, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{User: user})
}

func (h *Handler) switchCompany(c *gin.Context) {
	_, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		CompanyID string `json:"companyId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.auth.SwitchCompany(c.Request.Context(), userID, req.CompanyID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewMessageResponse("active company switched"))
}

func (h *Handler) listNotifications(c *gin.Context) {
	companyID, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	items, err := h.notifications.List(c.Request.Context(), userID, companyID, service.ListOptions{
		ProjectID:  c.Query("project_id"),
		UnreadOnly: unread,
		Limit:      limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) unreadCount(c *gin.Context) {
	companyID, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	count, err := h.notifications.UnreadCount(c.Request.Context(), userID, companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(count))
}

func (h *Handler) markRead(c *gin.Context) {
	companyID, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	item, err := h.notifications.MarkRead(c.Request.Context(), userID, companyID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) markAllRead(c *gin.Context) {
	companyID, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	count, err := h.notifications.MarkAllRead(c.Request.Context(), userID, companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(count))
}

func (h *Handler) announce(c *gin.Context) {
	companyID, userID, err := actorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sent, err := h.notifications.Announce(c.Request.Context(), companyID, userID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewCountResponse(int64(sent)))
}

func (h *Handler) dispatch(c *gin.Context) {
	var req struct {
		UserID    string                  `json:"userId" binding:"required"`
		Message   string                  `json:"message" binding:"required"`
		Type      domain.NotificationType `json:"type" binding:"required"`
		CompanyID string                  `json:"companyId" binding:"required"`
		ProjectID *string                 `json:"projectId"`
		CreatedBy string                  `json:"createdBy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	n, err := h.dispatcher.Dispatch(c.Request.Context(), domain.DispatchInput{
		UserID:    req.UserID,
		Message:   req.Message,
		Type:      req.Type,
		CompanyID: req.CompanyID,
		ProjectID: req.ProjectID,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}
