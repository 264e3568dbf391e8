package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client control messages.
const (
	ControlJoinRoom  = "join_room"
	ControlLeaveRoom = "leave_room"
)

type controlMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// Authenticator resolves a bearer token to an identity. It returns
// common.ErrTokenExpired or common.ErrInvalidToken on failure.
type Authenticator func(token string) (Identity, error)

// Handler upgrades authenticated requests to websocket connections served by a Hub.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the /ws endpoint. An empty allowedOrigins accepts any origin.
func NewHandler(hub *Hub, auth Authenticator, allowedOrigins []string, logger logging.Logger) *Handler {
	return &Handler{
		hub:    hub,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// TokenFromRequest reads the session token from the token query parameter
// or, failing that, from a bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get(common.TokenQueryParam); t != "" {
		return t
	}
	h := r.Header.Get(common.AuthorizationHeaderName)
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		http.Error(w, "Authentication token required", http.StatusUnauthorized)
		return
	}

	id, err := h.auth(token)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, common.ErrTokenExpired) {
			msg = "Token expired"
		}
		http.Error(w, msg, http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := NewClient(id)
	if !h.hub.Register(c) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	go h.writePump(ws, c)
	go h.readPump(ws, c)
}

// readPump handles control messages until the peer goes away.
func (h *Handler) readPump(ws *websocket.Conn, c *Client) {
	defer func() {
		h.hub.Unregister(c)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(context.Background(), "websocket read failed", "user_id", c.UserID, "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug(context.Background(), "ignoring malformed client message", "user_id", c.UserID)
			continue
		}

		switch msg.Type {
		case ControlJoinRoom:
			if h.hub.Join(c, msg.Room) {
				h.logger.Info(context.Background(), "joined room", "user_id", c.UserID, "room", msg.Room)
			}
		case ControlLeaveRoom:
			h.hub.Leave(c, msg.Room)
		default:
			h.logger.Debug(context.Background(), "ignoring unknown client message", "user_id", c.UserID, "type", msg.Type)
		}
	}
}

// writePump is the only writer of ws.
func (h *Handler) writePump(ws *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
