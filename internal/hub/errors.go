package hub

import "errors"

var (
	// ErrChannelClosed is returned by Channel.Send after the channel is closed.
	ErrChannelClosed = errors.New("hub: channel closed")

	// ErrSlowConsumer is returned by Channel.Send when the channel's
	// outbound queue is full.
	ErrSlowConsumer = errors.New("hub: channel send queue full")

	// ErrHubClosed is returned by Admit after Close.
	ErrHubClosed = errors.New("hub: closed")
)
