package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Authenticator maps a bearer token to a subject.
type Authenticator interface {
	Authenticate(token string) (subject string, err error)
}

// Handler upgrades HTTP requests to hub clients.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. A nil auth accepts every connection.
// checkOrigin may be nil to accept any origin.
func NewHandler(hub *Hub, auth Authenticator, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP handles the HTTP request and upgrades to WebSocket. Browsers
// cannot set headers on a websocket request, so the token may also come
// from the token query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if h.auth != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}
		s, err := h.auth.Authenticate(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		subject = s
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, subject)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
	client.logger.WithField("subject", subject).Info("WebSocket client connected")
}
