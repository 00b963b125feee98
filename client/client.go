// Package client is the Go SDK for the furriends chat service. It mirrors
// what the web client keeps in memory: an ordered message buffer for the
// open conversation, a chat list with unread badges, and a realtime sync
// loop that folds change-feed events into both.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"furriends-chat/internal/chat"
	"furriends-chat/internal/user"
)

// ErrorReporter receives every failure a user could act on. One reporter,
// every path: no mix of alerts, logs and silence.
type ErrorReporter interface {
	ReportError(op string, err error)
}

type logReporter struct{}

func (logReporter) ReportError(op string, err error) {
	log.Printf("chat client: %s: %v", op, err)
}

// Client is the shared session handle: one HTTP client, one base URL, one
// token. Inject it everywhere instead of constructing per call site.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	userID   int
	username string
	reporter ErrorReporter
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     http.DefaultClient,
		reporter: logReporter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithReporter(r ErrorReporter) Option {
	return func(c *Client) { c.reporter = r }
}

func (c *Client) UserID() int { return c.userID }

func (c *Client) report(op string, err error) {
	if c.reporter != nil {
		c.reporter.ReportError(op, err)
	}
}

// wsURL derives the websocket endpoint from the base URL.
func (c *Client) wsURL() string {
	u := c.baseURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws?token=" + url.QueryEscape(c.token)
}

// Register creates an account. Errors are returned; registration happens
// before a session exists, so nothing is reported.
func (c *Client) Register(ctx context.Context, username, password, displayName string) error {
	body := map[string]string{
		"username":     username,
		"password":     password,
		"display_name": displayName,
	}
	return c.do(ctx, http.MethodPost, "/register", body, nil)
}

// Login authenticates and stores the session token on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	var res struct {
		AccessToken string `json:"access_token"`
		ID          int    `json:"id"`
		Username    string `json:"username"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", body, &res); err != nil {
		return err
	}
	c.token = res.AccessToken
	c.userID = res.ID
	c.username = res.Username
	return nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]user.Profile, error) {
	var profiles []user.Profile
	err := c.do(ctx, http.MethodGet, "/api/users/search?q="+url.QueryEscape(query), nil, &profiles)
	return profiles, err
}

// StartConversation finds or creates the thread with the target user and
// returns its id.
func (c *Client) StartConversation(ctx context.Context, targetID int) (int, error) {
	var res struct {
		ConversationID int `json:"conversation_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/conversations",
		map[string]int{"target_id": targetID}, &res)
	return res.ConversationID, err
}

func (c *Client) FetchChatList(ctx context.Context) ([]chat.ChatListEntry, error) {
	var entries []chat.ChatListEntry
	err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &entries)
	return entries, err
}

func (c *Client) FetchHistory(ctx context.Context, conversationID int) ([]chat.Message, error) {
	var msgs []chat.Message
	path := fmt.Sprintf("/api/messages?conversation_id=%d", conversationID)
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

func (c *Client) postSend(ctx context.Context, req chat.SendRequest) (*chat.Message, error) {
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) patchEdit(ctx context.Context, messageID int, content string) (*chat.Message, error) {
	var msg chat.Message
	path := fmt.Sprintf("/api/messages/%d", messageID)
	if err := c.do(ctx, http.MethodPatch, path, chat.EditRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) deleteMessage(ctx context.Context, messageID int) (*chat.Message, error) {
	var msg chat.Message
	path := fmt.Sprintf("/api/messages/%d", messageID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) postMarkRead(ctx context.Context, conversationID int) (int, error) {
	var res struct {
		MarkedRead int `json:"marked_read"`
	}
	path := fmt.Sprintf("/api/conversations/%d/read", conversationID)
	err := c.do(ctx, http.MethodPost, path, nil, &res)
	return res.MarkedRead, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
