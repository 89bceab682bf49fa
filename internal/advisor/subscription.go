package advisor

import (
	"context"
	"log/slog"
	"sync"

	"cropadvisor/internal/domain"
)

// Subscription is one chat's standing request for weather alerts.
type Subscription struct {
	Channel  domain.ChannelName
	ChatID   string
	Location string
}

// SubscriptionPersister is the write-through backing for the registry.
type SubscriptionPersister interface {
	UpsertSubscription(ctx context.Context, ref domain.ChatRef, location string) error
	DeleteSubscription(ctx context.Context, ref domain.ChatRef) error
}

// SubscriptionRegistry maps (channel, chat) to at most one subscribed
// location; the latest subscription wins. The alert scheduler reads it
// concurrently with adapter-driven writes.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	subs    map[domain.ChatRef]string
	persist SubscriptionPersister
	logger  *slog.Logger
}

// NewSubscriptionRegistry builds a registry seeded with previously persisted
// subscriptions. persist may be nil for a purely in-memory registry.
func NewSubscriptionRegistry(initial map[domain.ChatRef]string, persist SubscriptionPersister, logger *slog.Logger) *SubscriptionRegistry {
	subs := make(map[domain.ChatRef]string, len(initial))
	for ref, loc := range initial {
		subs[ref] = loc
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRegistry{subs: subs, persist: persist, logger: logger}
}

func (r *SubscriptionRegistry) Set(ctx context.Context, ref domain.ChatRef, location string) {
	r.mu.Lock()
	r.subs[ref] = location
	r.mu.Unlock()

	if r.persist != nil {
		if err := r.persist.UpsertSubscription(ctx, ref, location); err != nil {
			r.logger.Warn("subscription persist failed", "chat", ref, "err", err)
		}
	}
}

// Remove drops a chat's subscription. No conversational intent triggers it;
// it exists for operational cleanup.
func (r *SubscriptionRegistry) Remove(ctx context.Context, ref domain.ChatRef) {
	r.mu.Lock()
	delete(r.subs, ref)
	r.mu.Unlock()

	if r.persist != nil {
		if err := r.persist.DeleteSubscription(ctx, ref); err != nil {
			r.logger.Warn("subscription delete failed", "chat", ref, "err", err)
		}
	}
}

// List returns a snapshot of one channel's subscriptions.
func (r *SubscriptionRegistry) List(channel domain.ChannelName) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subscription
	for ref, loc := range r.subs {
		if ref.Channel == channel {
			out = append(out, Subscription{Channel: ref.Channel, ChatID: ref.ChatID, Location: loc})
		}
	}
	return out
}

// All returns a snapshot of every subscription across both channels.
func (r *SubscriptionRegistry) All() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, 0, len(r.subs))
	for ref, loc := range r.subs {
		out = append(out, Subscription{Channel: ref.Channel, ChatID: ref.ChatID, Location: loc})
	}
	return out
}
