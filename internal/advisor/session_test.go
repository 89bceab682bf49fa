package advisor

import (
	"context"
	"errors"
	"testing"

	"cropadvisor/internal/domain"
)

type recordingSessionPersister struct {
	calls []domain.ChatRef
	err   error
}

func (p *recordingSessionPersister) UpsertSession(_ context.Context, ref domain.ChatRef, _ domain.Language) error {
	p.calls = append(p.calls, ref)
	return p.err
}

func TestSessionStore_DefaultsToBilingual(t *testing.T) {
	s := NewSessionStore(nil, nil, nil)

	ref := domain.ChatRef{Channel: domain.ChannelTelegram, ChatID: "42"}
	if got := s.Language(ref); got != domain.LangBoth {
		t.Fatalf("unset chat language = %q, want %q", got, domain.LangBoth)
	}
}

func TestSessionStore_ChannelsDoNotCollide(t *testing.T) {
	s := NewSessionStore(nil, nil, nil)
	ctx := context.Background()

	tg := domain.ChatRef{Channel: domain.ChannelTelegram, ChatID: "12345"}
	wa := domain.ChatRef{Channel: domain.ChannelWhatsApp, ChatID: "12345"}

	s.SetLanguage(ctx, tg, domain.LangHindi)

	if got := s.Language(tg); got != domain.LangHindi {
		t.Fatalf("telegram chat language = %q, want hi", got)
	}
	if got := s.Language(wa); got != domain.LangBoth {
		t.Fatalf("whatsapp chat with equal ID inherited telegram's language: %q", got)
	}
}

func TestSessionStore_SeededFromInitial(t *testing.T) {
	ref := domain.ChatRef{Channel: domain.ChannelWhatsApp, ChatID: "9198"}
	s := NewSessionStore(map[domain.ChatRef]domain.Language{ref: domain.LangEnglish}, nil, nil)

	if got := s.Language(ref); got != domain.LangEnglish {
		t.Fatalf("seeded language = %q, want en", got)
	}
}

func TestSessionStore_PersistFailureDoesNotLoseUpdate(t *testing.T) {
	p := &recordingSessionPersister{err: errors.New("disk full")}
	s := NewSessionStore(nil, p, nil)

	ref := domain.ChatRef{Channel: domain.ChannelTelegram, ChatID: "7"}
	s.SetLanguage(context.Background(), ref, domain.LangHindi)

	if len(p.calls) != 1 {
		t.Fatalf("persister called %d times, want 1", len(p.calls))
	}
	if got := s.Language(ref); got != domain.LangHindi {
		t.Fatalf("in-memory language lost after persist failure: %q", got)
	}
}
