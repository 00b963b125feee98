package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// MessageSender is what the read pump needs from the service: the socket
// send path and the REST send path share one implementation.
type MessageSender interface {
	SendMessage(ctx context.Context, senderID int, req SendRequest) (*Message, error)
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	SessionID string
	UserID    int
	Username  string
	Send      chan Event

	hub    *Hub
	conn   *websocket.Conn
	sender MessageSender
}

func NewClient(hub *Hub, conn *websocket.Conn, sender MessageSender, userID int, username string) *Client {
	return &Client{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Username:  username,
		Send:      make(chan Event, 64),
		hub:       hub,
		conn:      conn,
		sender:    sender,
	}
}

// wsFrame is what the browser writes to us. Frames carrying content are
// message sends; "subscribe" frames exist for clients that track an active
// conversation locally and need no server-side state.
type wsFrame struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id"`
	OtherUserID    int    `json:"other_user_id"`
	Content        string `json:"content"`
}

// ReadPump pumps inbound frames from the websocket into the service.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read [%s]: %v", c.SessionID, err)
			}
			break
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("ws frame [%s]: %v", c.SessionID, err)
			continue
		}

		switch frame.Type {
		case "subscribe":
			// Active-conversation filtering happens client-side; nothing to do.
		case "", "message":
			req := SendRequest{
				ConversationID: frame.ConversationID,
				OtherUserID:    frame.OtherUserID,
				Content:        frame.Content,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := c.sender.SendMessage(ctx, c.UserID, req); err != nil {
				log.Printf("ws send [%s]: %v", c.SessionID, err)
			}
			cancel()
		}
	}
}

// WritePump pumps events from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
