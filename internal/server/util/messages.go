package util

import (
	"sync"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Greeting opens every conversation.
const Greeting = "Здравствуйте! Задайте вопрос о книге."

type Message struct {
	ID      int    `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageStore is the in-memory conversation behind /api/messages. It is
// lost on restart.
type MessageStore struct {
	mu       sync.RWMutex
	nextID   int
	messages []Message
	limit    int
}

// NewMessageStore starts a conversation with the greeting. limit caps the
// stored messages; older ones are dropped first. Zero keeps everything.
func NewMessageStore(limit int) *MessageStore {
	s := &MessageStore{nextID: 1, limit: limit}
	s.Append(RoleAssistant, Greeting)
	return s
}

func (s *MessageStore) Append(role, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Message{ID: s.nextID, Role: role, Content: content}
	s.nextID++
	s.messages = append(s.messages, m)
	if s.limit > 0 && len(s.messages) > s.limit {
		s.messages = append([]Message(nil), s.messages[len(s.messages)-s.limit:]...)
	}
	return m
}

func (s *MessageStore) List() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// History converts the stored messages to chat turns, oldest first.
func (s *MessageStore) History() []ai.ChatMessage {
	return ToChatHistory(s.List())
}

// ToChatHistory skips messages whose role the model does not know and
// messages without content.
func ToChatHistory(messages []Message) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleUser, RoleAssistant:
			out = append(out, ai.ChatMessage{Role: m.Role, Message: m.Content})
		}
	}
	return out
}
