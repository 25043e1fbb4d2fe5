package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"workhub/server/common/apperr"
	commonauth "workhub/server/common/auth"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

type accessTokenParser interface {
	ParseAccessToken(token string) (*commonauth.Claims, error)
}

type backlogSource interface {
	Backlog(ctx context.Context, userID, companyID string) ([]domain.Notification, error)
}

type GatewayConfig struct {
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	AllowedOrigins   []string
}

// Gateway accepts realtime client connections. A connection is admitted
// only with a valid access token carrying an active company; it is then
// registered, sent its backlog once, and kept alive with pings until it
// drops.
type Gateway struct {
	tokens   accessTokenParser
	hub      *Hub
	backlog  backlogSource
	cfg      GatewayConfig
	upgrader websocket.Upgrader
}

func NewGateway(tokens accessTokenParser, hub *Hub, backlog backlogSource, cfg GatewayConfig) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	g := &Gateway{tokens: tokens, hub: hub, backlog: backlog, cfg: cfg}
	g.upgrader = websocket.Upgrader{CheckOrigin: g.checkOrigin}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

var (
	ErrMissingToken    = apperr.Authentication("access token is required")
	ErrInvalidToken    = apperr.Authentication("invalid access token")
	ErrNoActiveCompany = apperr.Authorization("no active company")
)

// Authenticate admits a handshake token. Failures are ErrMissingToken,
// apperr.ErrTokenExpired, ErrInvalidToken or ErrNoActiveCompany.
func (g *Gateway) Authenticate(token string) (*commonauth.Claims, error) {
	claims, err := g.authenticate(token)
	if err != nil {
		handshakeTotal.WithLabelValues(handshakeResult(err)).Inc()
	}
	return claims, err
}

func (g *Gateway) authenticate(token string) (*commonauth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := g.tokens.ParseAccessToken(token)
	if err != nil {
		if errors.Is(err, apperr.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !claims.HasTenant() {
		return nil, ErrNoActiveCompany
	}
	return claims, nil
}

func handshakeResult(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, apperr.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrNoActiveCompany):
		return "no_active_company"
	default:
		return "invalid_token"
	}
}

// CloseCodeFor is the websocket close code for a handshake failure after
// the upgrade.
func CloseCodeFor(err error) int {
	if errors.Is(err, apperr.ErrAuthorization) {
		return CloseForbidden
	}
	return CloseUnauthorized
}

func (g *Gateway) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handshakeTotal.WithLabelValues("upgrade_failed").Inc()
		commonlog.Warnf("event=notify_gateway action=upgrade status=failed error=%v", err)
		return nil, err
	}
	return ws, nil
}

type authFrame struct {
	Token string `json:"token"`
}

// ReadAuthToken reads the {"token": ...} frame a client sends when it did
// not pass the token in the url. It waits at most HandshakeTimeout.
func (g *Gateway) ReadAuthToken(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		handshakeTotal.WithLabelValues("missing_token").Inc()
		return "", ErrMissingToken
	}
	var frame authFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		handshakeTotal.WithLabelValues("invalid_token").Inc()
		return "", ErrInvalidToken
	}
	return frame.Token, nil
}

// Reject sends an error frame and closes an upgraded connection.
func (g *Gateway) Reject(ws *websocket.Conn, payload domain.ErrorPayload, closeCode int) {
	conn := NewWSConn(ws, "", "", "")
	_ = conn.Send(domain.Event{Name: domain.EventError, Data: payload})
	conn.CloseWith(closeCode, payload.Code)
}

// Serve registers an authenticated connection, replays its backlog and
// blocks until the client goes away.
func (g *Gateway) Serve(ctx context.Context, ws *websocket.Conn, claims *commonauth.Claims) {
	handshakeTotal.WithLabelValues("ok").Inc()
	conn := NewWSConn(ws, claims.UserID, claims.TenantID, claims.Role)
	registry := g.hub.Registry()

	// Register before reading the backlog so a dispatch racing the replay is
	// either in the backlog or pushed live.
	if previous := registry.Register(conn); previous != nil {
		commonlog.Infof("event=notify_gateway action=register status=superseded user_id=%s previous_conn_id=%s conn_id=%s", conn.UserID(), previous.ID(), conn.ID())
	}
	defer func() {
		removed := registry.Unregister(conn)
		_ = conn.Close()
		commonlog.Infof("event=notify_gateway action=disconnect user_id=%s conn_id=%s unregistered=%t", conn.UserID(), conn.ID(), removed)
	}()
	commonlog.Infof("event=notify_gateway action=connect status=ok user_id=%s company_id=%s conn_id=%s", conn.UserID(), conn.TenantID(), conn.ID())

	items, err := g.backlog.Backlog(ctx, conn.UserID(), conn.TenantID())
	if err != nil {
		commonlog.Errorf("event=notify_gateway action=backlog status=failed user_id=%s error=%v", conn.UserID(), err)
		_ = conn.Send(domain.Event{Name: domain.EventError, Data: domain.ErrorPayload{Code: domain.ErrorCodeInternal, Message: "notifications are unavailable"}})
		return
	}
	if err := conn.Send(domain.Event{Name: domain.EventInitialNotifications, Data: items}); err != nil {
		return
	}

	readWait := 3 * g.cfg.PingInterval
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	defer close(done)
	go g.keepalive(conn, done)

	for {
		// Clients send nothing after the handshake; reads only surface
		// control frames and disconnects.
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				commonlog.Debugf("event=notify_gateway action=read status=closed user_id=%s error=%v", conn.UserID(), err)
			}
			return
		}
	}
}

func (g *Gateway) keepalive(conn *WSConn, done <-chan struct{}) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
