package statestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/mqtt"
	"github.com/nerrad567/nexowatt-vis/internal/state"
)

// ErrNotConnected is returned by WriteValue when the broker is down.
var ErrNotConnected = errors.New("statestore: broker not connected")

// Client is the part of the MQTT client the store uses.
type Client interface {
	SubscribeState(externalID string, handler mqtt.MessageHandler) error
	PublishCommand(externalID string, payload []byte) error
	IsConnected() bool
}

// MQTTStore mirrors retained state topics and publishes commands.
type MQTTStore struct {
	client Client
	now    func() time.Time

	mu         sync.Mutex
	last       map[string]state.Change
	waiters    map[string][]chan struct{}
	handlers   map[string][]func(state.Change)
	subscribed map[string]bool
}

// NewMQTT creates a store over client.
func NewMQTT(client Client) *MQTTStore {
	return &MQTTStore{
		client:     client,
		now:        time.Now,
		last:       make(map[string]state.Change),
		waiters:    make(map[string][]chan struct{}),
		handlers:   make(map[string][]func(state.Change)),
		subscribed: make(map[string]bool),
	}
}

// Subscribe registers fn for changes of externalID.
func (s *MQTTStore) Subscribe(externalID string, fn func(state.Change)) error {
	s.mu.Lock()
	s.handlers[externalID] = append(s.handlers[externalID], fn)
	s.mu.Unlock()
	return s.ensureSubscribed(externalID)
}

func (s *MQTTStore) ensureSubscribed(externalID string) error {
	s.mu.Lock()
	if s.subscribed[externalID] {
		s.mu.Unlock()
		return nil
	}
	s.subscribed[externalID] = true
	s.mu.Unlock()

	if err := s.client.SubscribeState(externalID, s.handler(externalID)); err != nil {
		s.mu.Lock()
		delete(s.subscribed, externalID)
		s.mu.Unlock()
		return fmt.Errorf("subscribing %s: %w", externalID, err)
	}
	return nil
}

func (s *MQTTStore) handler(externalID string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		s.receive(externalID, payload)
		return nil
	}
}

func (s *MQTTStore) receive(externalID string, payload []byte) {
	value, ts := decodePayload(payload, s.now())
	c := state.Change{ExternalID: externalID, Value: value, Timestamp: ts}

	s.mu.Lock()
	s.last[externalID] = c
	waiters := s.waiters[externalID]
	delete(s.waiters, externalID)
	handlers := slices.Clone(s.handlers[externalID])
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, fn := range handlers {
		fn(c)
	}
}

// ReadCurrent returns the last value seen for externalID. If none has
// arrived yet it waits for the retained message until ctx is done, then
// returns an error wrapping state.ErrNoValue.
func (s *MQTTStore) ReadCurrent(ctx context.Context, externalID string) (state.Change, error) {
	if err := s.ensureSubscribed(externalID); err != nil {
		return state.Change{}, err
	}

	s.mu.Lock()
	if c, ok := s.last[externalID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	wait := make(chan struct{})
	s.waiters[externalID] = append(s.waiters[externalID], wait)
	s.mu.Unlock()

	select {
	case <-wait:
		s.mu.Lock()
		c := s.last[externalID]
		s.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		s.dropWaiter(externalID, wait)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return state.Change{}, fmt.Errorf("%s: %w", externalID, state.ErrNoValue)
		}
		return state.Change{}, ctx.Err()
	}
}

func (s *MQTTStore) dropWaiter(externalID string, wait chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[externalID]
	for i, w := range list {
		if w == wait {
			s.waiters[externalID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.waiters[externalID]) == 0 {
		delete(s.waiters, externalID)
	}
}

// WriteValue publishes value to the command topic of externalID.
func (s *MQTTStore) WriteValue(ctx context.Context, externalID string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", externalID, err)
	}
	if err := s.client.PublishCommand(externalID, payload); err != nil {
		return fmt.Errorf("writing %s: %w", externalID, err)
	}
	return nil
}

// Connected reports broker connectivity.
func (s *MQTTStore) Connected() bool {
	return s.client.IsConnected()
}

// Seen returns how many points have delivered at least one value.
func (s *MQTTStore) Seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
