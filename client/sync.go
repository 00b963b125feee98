package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"furriends-chat/internal/chat"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Sync owns the realtime subscription for one chat session. It folds
// change-feed events into the message buffer and the chat list, and exposes
// the mutation intents (send, edit, delete, mark-read) with a uniform
// optimistic policy: apply locally right away, reconcile via the idempotent
// realtime echo.
//
// A dropped connection is retried with exponential backoff; every
// (re)connect replays a fresh snapshot so the stores never stay stale.
type Sync struct {
	client   *Client
	Messages *MessageStore
	Chats    *ChatListStore

	mu     sync.Mutex
	active int // open conversation id; 0 when none
	conn   *websocket.Conn

	// Serializes frame writes: the supervisor and Open can both write to the
	// same connection, and gorilla permits only one concurrent writer.
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSync(c *Client) *Sync {
	return &Sync{
		client:   c,
		Messages: NewMessageStore(),
		Chats:    NewChatListStore(),
	}
}

// Start launches the supervised subscription loop. Call Close to tear the
// subscription down with the view.
func (s *Sync) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Close releases the subscription.
func (s *Sync) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sync) run(ctx context.Context) {
	defer close(s.done)

	backoff := initialBackoff
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.client.wsURL(), nil)
		if err != nil {
			s.client.report("subscribe", err)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		s.setConn(conn)
		s.refresh(ctx)
		s.sendSubscribeFrame()

		s.readLoop(ctx, conn)

		s.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Sync) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var event chat.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				s.client.report("realtime", err)
			}
			return
		}
		s.handleEvent(ctx, event)
	}
}

// handleEvent folds one change-feed event into the stores. Message events
// for conversations other than the open one only touch the unread badge.
func (s *Sync) handleEvent(ctx context.Context, event chat.Event) {
	switch event.Type {
	case chat.EventMessageInsert:
		if event.Message == nil {
			return
		}
		active := s.Active()
		if event.Message.ConversationID == active {
			s.Messages.ApplyInsert(*event.Message)
			if event.Message.SenderID != s.client.UserID() {
				// Viewing the conversation counts as reading it: stamp the
				// server too, or the next snapshot refresh resurrects the
				// badge for the very conversation on screen.
				go func() { _ = s.MarkRead(ctx) }()
			}
		} else if event.Message.SenderID != s.client.UserID() {
			s.Chats.IncrementUnread(event.Message.ConversationID)
		}

	case chat.EventMessageUpdate:
		if event.Message == nil {
			return
		}
		if event.Message.ConversationID == s.Active() {
			s.Messages.ApplyUpdate(*event.Message)
		}
		// A read stamp on a counterpart-authored message means this session
		// (possibly another device) marked the conversation read.
		if event.Message.ReadAt != nil && event.Message.SenderID != s.client.UserID() {
			s.Chats.ClearUnread(event.Message.ConversationID)
		}

	case chat.EventConversationUpdate:
		if event.Conversation == nil {
			return
		}
		s.Chats.UpsertFromRealtime(*event.Conversation)
	}
}

// refresh replays a fresh snapshot: the chat list, plus the open
// conversation's history when one is open.
func (s *Sync) refresh(ctx context.Context) {
	entries, err := s.client.FetchChatList(ctx)
	if err != nil {
		s.client.report("chat list refresh", err)
	} else {
		s.Chats.Initialize(entries)
	}

	active := s.Active()
	if active == 0 {
		return
	}
	msgs, err := s.client.FetchHistory(ctx, active)
	if err != nil {
		s.client.report("history refresh", err)
		return
	}
	s.Messages.LoadInitial(active, msgs)
}

// Open selects a conversation: loads its history, marks it read, and points
// the event filter at it.
func (s *Sync) Open(ctx context.Context, conversationID int) error {
	msgs, err := s.client.FetchHistory(ctx, conversationID)
	if err != nil {
		s.client.report("open conversation", err)
		return err
	}

	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()

	s.Messages.LoadInitial(conversationID, msgs)
	s.sendSubscribeFrame()
	return s.MarkRead(ctx)
}

// CloseConversation deselects the open conversation and clears the buffer.
func (s *Sync) CloseConversation() {
	s.mu.Lock()
	s.active = 0
	s.mu.Unlock()
	s.Messages.Reset()
}

func (s *Sync) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Send posts a message to the open conversation and applies it locally; the
// realtime echo is deduplicated by id.
func (s *Sync) Send(ctx context.Context, content string) (*chat.Message, error) {
	return s.sendRequest(ctx, chat.SendRequest{
		ConversationID: s.Active(),
		Content:        content,
	})
}

// SendTo starts (or reuses) the conversation with another user by sending
// the first message.
func (s *Sync) SendTo(ctx context.Context, otherUserID int, content string) (*chat.Message, error) {
	return s.sendRequest(ctx, chat.SendRequest{
		OtherUserID: otherUserID,
		Content:     content,
	})
}

func (s *Sync) sendRequest(ctx context.Context, req chat.SendRequest) (*chat.Message, error) {
	msg, err := s.client.postSend(ctx, req)
	if err != nil {
		s.client.report("send message", err)
		return nil, err
	}

	if msg.ConversationID == s.Active() {
		s.Messages.ApplyInsert(*msg)
	}
	activity := chat.ConversationActivity{ID: msg.ConversationID, UpdatedAt: msg.CreatedAt}
	if other, ok := s.Chats.Other(msg.ConversationID); ok {
		activity.Other = &other
	}
	s.Chats.UpsertFromRealtime(activity)
	return msg, nil
}

// Edit rewrites a message. Empty or whitespace content never reaches the
// network: the "no message received" case is rejected client-side.
func (s *Sync) Edit(ctx context.Context, messageID int, content string) (*chat.Message, error) {
	if isBlank(content) {
		s.client.report("edit message", chat.ErrEmptyContent)
		return nil, chat.ErrEmptyContent
	}

	msg, err := s.client.patchEdit(ctx, messageID, content)
	if err != nil {
		s.client.report("edit message", err)
		return nil, err
	}
	s.Messages.ApplyUpdate(*msg)
	return msg, nil
}

// Delete soft-deletes a message. The entry stays in the buffer; rendering
// gates on the disabled flag.
func (s *Sync) Delete(ctx context.Context, messageID int) error {
	msg, err := s.client.deleteMessage(ctx, messageID)
	if err != nil {
		s.client.report("delete message", err)
		return err
	}
	s.Messages.ApplyUpdate(*msg)
	return nil
}

// MarkRead marks every counterpart message in the open conversation as read
// and zeroes the badge locally; the realtime echo reconciles exact stamps.
func (s *Sync) MarkRead(ctx context.Context) error {
	active := s.Active()
	if active == 0 {
		return nil
	}

	if _, err := s.client.postMarkRead(ctx, active); err != nil {
		s.client.report("mark read", err)
		return err
	}

	now := time.Now()
	for _, msg := range s.Messages.Messages() {
		if msg.SenderID != s.client.UserID() && msg.ReadAt == nil {
			msg.ReadAt = &now
			s.Messages.ApplyUpdate(msg)
		}
	}
	s.Chats.ClearUnread(active)
	return nil
}

func (s *Sync) sendSubscribeFrame() {
	s.mu.Lock()
	conn, active := s.conn, s.active
	s.mu.Unlock()
	if conn == nil {
		return
	}

	frame := map[string]interface{}{"type": "subscribe", "conversation_id": active}
	s.writeMu.Lock()
	err := conn.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		s.client.report("subscribe frame", err)
	}
}

func (s *Sync) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
