package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/nexowatt-vis/internal/state"
)

// Message types.
const (
	TypeInit   = "init"
	TypeUpdate = "update"
)

// Message is the envelope written to every channel.
type Message struct {
	Type    string                 `json:"type"`
	Payload map[string]state.Entry `json:"payload"`
}

// Channel is one subscriber connection.
//
// Send must not block on the network: implementations queue the frame and
// return ErrSlowConsumer when the queue is full, or ErrChannelClosed once
// the remote end has gone away. Close releases the transport and must be
// safe to call more than once.
type Channel interface {
	ID() string
	Send(data []byte) error
	Close()
}

// Logger is the subset of logging the hub needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Hub owns the registry of open channels.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]Channel
	closed   bool
	logger   Logger
}

// New creates an empty hub. A nil logger discards output.
func New(logger Logger) *Hub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Admit sends ch the init snapshot and then registers it.
//
// Callers must not publish concurrently with Admit for the snapshot to be
// consistent; the mirror engine serialises both. If the init send fails
// the channel is closed and never registered.
func (h *Hub) Admit(ch Channel, snapshot map[string]state.Entry) error {
	if snapshot == nil {
		snapshot = map[string]state.Entry{}
	}
	data, err := json.Marshal(Message{Type: TypeInit, Payload: snapshot})
	if err != nil {
		ch.Close()
		return fmt.Errorf("encoding init snapshot: %w", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch.Close()
		return ErrHubClosed
	}
	// Sending under the lock keeps init ahead of any update for this channel.
	if err := ch.Send(data); err != nil {
		h.mu.Unlock()
		ch.Close()
		return fmt.Errorf("sending init snapshot: %w", err)
	}
	if old, dup := h.channels[ch.ID()]; dup && old != ch {
		defer old.Close()
	}
	h.channels[ch.ID()] = ch
	count := len(h.channels)
	h.mu.Unlock()

	h.logger.Debug("channel admitted", "channel_id", ch.ID(), "channels", count, "keys", len(snapshot))
	return nil
}

// Publish sends a single-key update to every registered channel and
// returns how many accepted it. Channels whose Send fails are evicted.
func (h *Hub) Publish(key string, entry state.Entry) int {
	data, err := json.Marshal(Message{
		Type:    TypeUpdate,
		Payload: map[string]state.Entry{key: entry},
	})
	if err != nil {
		h.logger.Warn("failed to encode update", "key", key, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, ch := range targets {
		if err := ch.Send(data); err != nil {
			h.logger.Debug("channel send failed, evicting", "channel_id", ch.ID(), "error", err)
			h.Evict(ch)
			continue
		}
		delivered++
	}
	return delivered
}

// Evict removes ch from the registry and closes it. Evicting a channel
// that is not registered is a no-op.
func (h *Hub) Evict(ch Channel) {
	h.mu.Lock()
	cur, ok := h.channels[ch.ID()]
	if ok && cur == ch {
		delete(h.channels, ch.ID())
	}
	count := len(h.channels)
	h.mu.Unlock()

	if !ok || cur != ch {
		return
	}
	ch.Close()
	h.logger.Debug("channel evicted", "channel_id", ch.ID(), "channels", count)
}

// Count returns the number of registered channels.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Run blocks until ctx is cancelled, then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close closes every channel and clears the registry. Later Admit calls
// fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]Channel)
	h.closed = true
	h.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	if len(channels) > 0 {
		h.logger.Info("hub closed", "channels", len(channels))
	}
}
