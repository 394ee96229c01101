// Package chat relays dashboard chat messages through a message broker. The gateway keeps
// a bounded window of recent messages for the chat page and holds no other chat state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sevenitynet/reliefboard/model"
)

const (
	// DefaultCapacity is the number of recent messages kept by a Room.
	DefaultCapacity = 100
	// MaxContentLength is the longest message accepted, in characters.
	MaxContentLength = 2000
)

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrMessageTooLong = errors.New("chat: message is too long")
	ErrNoProfile      = errors.New("chat: sender has no profile")
)

// Message is one chat message.
type Message struct {
	ID        string     `json:"id"`
	UserID    model.ID   `json:"userId"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Broker is a publish/subscribe transport.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler func([]byte)) (unsubscribe func() error, err error)
}

// Room publishes messages to a subject and remembers the latest ones received from it.
type Room struct {
	broker   Broker
	subject  string
	capacity int
	logger   *slog.Logger
	now      func() time.Time

	// OnMessage, if set, is called with "out" for every published and "in" for every
	// received message.
	OnMessage func(direction string)

	mu          sync.RWMutex
	recent      []Message
	unsubscribe func() error
}

// NewRoom creates a Room on subject. capacity <= 0 selects DefaultCapacity.
func NewRoom(b Broker, subject string, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Room{
		broker:   b,
		subject:  subject,
		capacity: capacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Start subscribes to the room's subject.
func (r *Room) Start() error {
	unsubscribe, err := r.broker.Subscribe(r.subject, r.receive)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Stop unsubscribes. Recent messages are kept.
func (r *Room) Stop() error {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe == nil {
		return nil
	}
	return unsubscribe()
}

// Post publishes content on behalf of sender. The message shows up in Recent once the
// broker delivers it back.
func (r *Room) Post(ctx context.Context, sender *model.Profile, content string) (Message, error) {
	if sender == nil {
		return Message{}, ErrNoProfile
	}

	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return Message{}, ErrEmptyMessage
	case utf8.RuneCountInString(content) > MaxContentLength:
		return Message{}, ErrMessageTooLong
	}

	msg := Message{
		ID:        uuid.NewString(),
		UserID:    sender.ID,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
		Role:      sender.Role,
		Content:   content,
		Timestamp: r.now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("chat: encode message: %w", err)
	}

	if err := r.broker.Publish(ctx, r.subject, data); err != nil {
		return Message{}, fmt.Errorf("chat: publish: %w", err)
	}

	if r.OnMessage != nil {
		r.OnMessage("out")
	}
	return msg, nil
}

// Recent returns up to n of the latest messages, oldest first. n <= 0 returns all.
func (r *Room) Recent(n int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if n > 0 && n < len(r.recent) {
		start = len(r.recent) - n
	}
	return append([]Message(nil), r.recent[start:]...)
}

func (r *Room) receive(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn("chat: dropping malformed message", "subject", r.subject, "error", err)
		return
	}

	r.mu.Lock()
	r.recent = append(r.recent, msg)
	if over := len(r.recent) - r.capacity; over > 0 {
		r.recent = append(r.recent[:0], r.recent[over:]...)
	}
	r.mu.Unlock()

	if r.OnMessage != nil {
		r.OnMessage("in")
	}
}
