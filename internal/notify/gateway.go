// Package notify pushes learner-facing notifications (auto-advance, course
// completion) over the registered delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Message types pushed to clients.
const (
	TypeLessonCompleted = "lesson_completed"
	TypeLessonAdvanced  = "lesson_advanced"
	TypeCourseCompleted = "course_completed"
)

// Message is a notification addressed to one user.
type Message struct {
	UserID string    `json:"user_id"`
	Type   string    `json:"type"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Channel is the interface each delivery transport must implement.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Gateway routes messages to registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notify channel registered", "channel", name)
}

// Broadcast dispatches a message to every registered channel. Failures of
// individual channels are joined into the returned error.
func (g *Gateway) Broadcast(ctx context.Context, msg Message) error {
	g.mu.RLock()
	channels := make(map[string]Channel, len(g.channels))
	for name, ch := range g.channels {
		channels[name] = ch
	}
	g.mu.RUnlock()

	msg = stamp(msg)
	var errs []error
	for name, ch := range channels {
		if err := ch.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every registered channel.
func (g *Gateway) CloseAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func stamp(msg Message) Message {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	return msg
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (m *MockChannel) Send(_ context.Context, msg Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *MockChannel) Close() error {
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockChannel) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.sent...)
}
