package main

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/nexowatt-vis/internal/infrastructure/mqtt"
	"github.com/nerrad567/nexowatt-vis/internal/statestore"
)

// mqttLink lets the state store exist before the broker connection does.
// Until a client is attached every call reports statestore.ErrNotConnected.
type mqttLink struct {
	client atomic.Pointer[mqtt.Client]
}

func (l *mqttLink) attach(c *mqtt.Client) {
	l.client.Store(c)
}

func (l *mqttLink) SubscribeState(externalID string, handler mqtt.MessageHandler) error {
	c := l.client.Load()
	if c == nil {
		return statestore.ErrNotConnected
	}
	return c.SubscribeState(externalID, handler)
}

func (l *mqttLink) PublishCommand(externalID string, payload []byte) error {
	c := l.client.Load()
	if c == nil {
		return statestore.ErrNotConnected
	}
	return c.PublishCommand(externalID, payload)
}

func (l *mqttLink) IsConnected() bool {
	c := l.client.Load()
	return c != nil && c.IsConnected()
}

// HealthCheck probes the attached client.
func (l *mqttLink) HealthCheck(ctx context.Context) error {
	c := l.client.Load()
	if c == nil {
		return statestore.ErrNotConnected
	}
	return c.HealthCheck(ctx)
}

// SubscriptionCount returns the broker subscriptions held by the client.
func (l *mqttLink) SubscriptionCount() int {
	c := l.client.Load()
	if c == nil {
		return 0
	}
	return c.SubscriptionCount()
}

// Close disconnects the attached client, if any.
func (l *mqttLink) Close() error {
	c := l.client.Swap(nil)
	if c == nil {
		return nil
	}
	return c.Close()
}
