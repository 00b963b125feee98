package client

import (
	"sync"

	"furriends-chat/internal/chat"
)

// MessageStore holds the ordered messages of exactly one open conversation,
// or nothing when none is open. The buffer is always a valid chronological
// ordering by creation time; updates never reorder.
type MessageStore struct {
	mu             sync.Mutex
	conversationID int
	messages       []chat.Message
	index          map[int]int // message id -> buffer position
}

func NewMessageStore() *MessageStore {
	return &MessageStore{index: make(map[int]int)}
}

// LoadInitial replaces the buffer wholesale with the fetched history for the
// conversation. Input is expected in ascending creation order.
func (s *MessageStore) LoadInitial(conversationID int, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversationID = conversationID
	s.messages = make([]chat.Message, len(msgs))
	copy(s.messages, msgs)
	s.reindex()
}

// ApplyInsert appends the message, keeping chronological order even when an
// event arrives late. Inserting the same id twice is a no-op.
func (s *MessageStore) ApplyInsert(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conversationID == 0 || m.ConversationID != s.conversationID {
		return false
	}
	if _, exists := s.index[m.ID]; exists {
		return false
	}

	pos := len(s.messages)
	for pos > 0 && s.messages[pos-1].CreatedAt.After(m.CreatedAt) {
		pos--
	}

	s.messages = append(s.messages, chat.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = m
	s.reindex()
	return true
}

// ApplyUpdate replaces the entry with the matching id in place, leaving its
// position unchanged. An unknown id is benign desync, not a failure.
func (s *MessageStore) ApplyUpdate(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[m.ID]
	if !ok {
		return false
	}
	s.messages[pos] = m
	return true
}

// Reset clears the buffer on conversation switch.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversationID = 0
	s.messages = nil
	s.index = make(map[int]int)
}

func (s *MessageStore) ConversationID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Messages returns a snapshot copy of the buffer.
func (s *MessageStore) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get returns the buffered message with the given id.
func (s *MessageStore) Get(id int) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.messages[pos], true
}

func (s *MessageStore) reindex() {
	s.index = make(map[int]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}
