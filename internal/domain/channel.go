package domain

import "context"

// Channel is the interface for user-facing messaging transports.
type Channel interface {
	Name() ChannelName
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, text string) error
}
