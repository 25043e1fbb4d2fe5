package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workhub/server/common/apperr"
	commonauth "workhub/server/common/auth"
	"workhub/server/common/transport/httpresp"
	"workhub/server/notify/domain"
	"workhub/server/notify/service"
)

// ws accepts a realtime connection. A token in the url is checked before the
// upgrade and rejected with a JSON error; otherwise the first frame must
// carry it and a failure is reported in-band before the socket is closed.
func (h *Handler) ws(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}

	var claims *commonauth.Claims
	if token != "" {
		var err error
		claims, err = h.gateway.Authenticate(token)
		if err != nil {
			status, body := handshakeFailure(err)
			c.JSON(status, body)
			return
		}
	}

	conn, err := h.gateway.Upgrade(c.Writer, c.Request)
	if err != nil {
		return
	}

	if claims == nil {
		token, err := h.gateway.ReadAuthToken(conn)
		if err == nil {
			claims, err = h.gateway.Authenticate(token)
		}
		if err != nil {
			_, body := handshakeFailure(err)
			h.gateway.Reject(conn, domain.ErrorPayload{Code: body.Code, Message: body.Error}, service.CloseCodeFor(err))
			return
		}
	}
	h.gateway.Serve(c.Request.Context(), conn, claims)
}

func handshakeFailure(err error) (int, httpresp.ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrMissingToken):
		return http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeMissingToken, httpresp.ErrMissingBearerToken)
	case errors.Is(err, apperr.ErrTokenExpired):
		return http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeTokenExpired, httpresp.ErrTokenExpired)
	case errors.Is(err, service.ErrNoActiveCompany):
		return http.StatusForbidden, httpresp.NewCodedErrorResponse(httpresp.CodeNoActiveCompany, httpresp.ErrNoActiveCompany)
	default:
		return http.StatusUnauthorized, httpresp.NewCodedErrorResponse(httpresp.CodeInvalidToken, httpresp.ErrInvalidToken)
	}
}
