package advisor

import (
	"context"
	"log/slog"
	"sync"

	"cropadvisor/internal/domain"
)

// SessionPersister is the write-through backing for session state. Persistence
// failures are logged, never surfaced: the in-memory map is authoritative for
// the process lifetime.
type SessionPersister interface {
	UpsertSession(ctx context.Context, ref domain.ChatRef, lang domain.Language) error
}

// SessionStore holds per-chat language preferences, keyed by (channel, chat)
// so equal-looking IDs on different networks never collide. Entries are
// created lazily and live for the process lifetime.
type SessionStore struct {
	mu      sync.RWMutex
	langs   map[domain.ChatRef]domain.Language
	persist SessionPersister
	logger  *slog.Logger
}

// NewSessionStore builds a store seeded with previously persisted preferences.
// persist may be nil for a purely in-memory store.
func NewSessionStore(initial map[domain.ChatRef]domain.Language, persist SessionPersister, logger *slog.Logger) *SessionStore {
	langs := make(map[domain.ChatRef]domain.Language, len(initial))
	for ref, lang := range initial {
		langs[ref] = lang
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{langs: langs, persist: persist, logger: logger}
}

// Language returns the chat's preference, defaulting to bilingual replies
// until the user picks a language.
func (s *SessionStore) Language(ref domain.ChatRef) domain.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lang, ok := s.langs[ref]; ok {
		return lang
	}
	return domain.LangBoth
}

func (s *SessionStore) SetLanguage(ctx context.Context, ref domain.ChatRef, lang domain.Language) {
	s.mu.Lock()
	s.langs[ref] = lang
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.UpsertSession(ctx, ref, lang); err != nil {
			s.logger.Warn("session persist failed", "chat", ref, "err", err)
		}
	}
}
