package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"
)

// Handler upgrades an authenticated request and subscribes the connection to
// the caller's own channel. Clients cannot subscribe to other users.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		client := NewClient(conn)
		h.hub.Subscribe(UserChannel(userID), client)
		go h.writer(client)
		h.reader(client)
	}).ServeHTTP(c.Writer, c.Request)
}

// reader only watches for the peer going away; inbound frames are ignored.
func (h *Handler) reader(client *Client) {
	defer func() {
		h.hub.UnsubscribeAll(client)
		client.close()
		_ = client.conn.Close()
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(client.conn, &raw); err != nil {
			return
		}
	}
}

func (h *Handler) writer(client *Client) {
	for payload := range client.out {
		if err := websocket.Message.Send(client.conn, string(payload)); err != nil {
			return
		}
	}
}
