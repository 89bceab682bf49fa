package advisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cropadvisor/internal/domain"
)

type fakeBus struct {
	mu       sync.Mutex
	inbound  chan domain.InboundMessage
	outbound []domain.OutboundMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{inbound: make(chan domain.InboundMessage, 16)}
}

func (b *fakeBus) Publish(msg domain.InboundMessage) { b.inbound <- msg }

func (b *fakeBus) Subscribe() <-chan domain.InboundMessage { return b.inbound }

func (b *fakeBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = append(b.outbound, msg)
}

func (b *fakeBus) OnOutbound(domain.ChannelName, func(domain.OutboundMessage)) {}

func (b *fakeBus) Close() { close(b.inbound) }

func (b *fakeBus) sent() []domain.OutboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OutboundMessage, len(b.outbound))
	copy(out, b.outbound)
	return out
}

type fakeRecommender struct {
	rec *domain.Recommendation
	err error

	mu   sync.Mutex
	args [][3]string
}

func (f *fakeRecommender) Recommend(_ context.Context, soil, season, location string) (*domain.Recommendation, error) {
	f.mu.Lock()
	f.args = append(f.args, [3]string{soil, season, location})
	f.mu.Unlock()
	return f.rec, f.err
}

type fakeVision struct {
	answer string
	err    error
	lang   domain.Language
}

func (f *fakeVision) Analyze(_ context.Context, _ []byte, _ string, lang domain.Language) (string, error) {
	f.lang = lang
	return f.answer, f.err
}

func testLoop(bus domain.MessageBus, rec domain.Recommender, vis domain.VisionAnalyzer) (*Loop, *SessionStore, *SubscriptionRegistry) {
	sessions := NewSessionStore(nil, nil, nil)
	registry := NewSubscriptionRegistry(nil, nil, nil)
	l := NewLoop(LoopConfig{
		Bus:       bus,
		Sessions:  sessions,
		Registry:  registry,
		Recommend: rec,
		Vision:    vis,
	})
	return l, sessions, registry
}

func inboundFrom(channel domain.ChannelName, chatID, text string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  chatID,
		Kind:      domain.KindText,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestHandle_StartSendsWelcomeWithMenu(t *testing.T) {
	bus := newFakeBus()
	l, _, _ := testLoop(bus, &fakeRecommender{}, &fakeVision{})

	l.handle(context.Background(), inboundFrom(domain.ChannelTelegram, "42", "/start"))

	sent := bus.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].Menu != domain.MenuStart {
		t.Errorf("start reply missing menu")
	}
	if !strings.Contains(sent[0].Text, "Welcome to Crop Advisor") {
		t.Errorf("unexpected welcome text: %q", sent[0].Text)
	}
}

func TestHandle_RecommendationRoundTripInHindi(t *testing.T) {
	bus := newFakeBus()
	rec := &fakeRecommender{rec: sampleRec}
	l, sessions, _ := testLoop(bus, rec, &fakeVision{})
	ctx := context.Background()

	ref := domain.ChatRef{Channel: domain.ChannelWhatsApp, ChatID: "9198"}
	sessions.SetLanguage(ctx, ref, domain.LangHindi)

	l.handle(ctx, inboundFrom(domain.ChannelWhatsApp, "9198", "red, Monsoon, Tamil Nadu"))

	if got := rec.args[0]; got != [3]string{"red", "Monsoon", "Tamil Nadu"} {
		t.Fatalf("recommender called with %v", got)
	}
	sent := bus.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "अनुशंसित फसल: मूंगफली") {
		t.Errorf("hindi session should yield hindi-only reply:\n%s", sent[0].Text)
	}
	if strings.Contains(sent[0].Text, "Recommended crop") {
		t.Errorf("hindi reply leaked english labels:\n%s", sent[0].Text)
	}
}

func TestHandle_RecommendationFailureUsesFallbackText(t *testing.T) {
	bus := newFakeBus()
	l, _, _ := testLoop(bus, &fakeRecommender{err: errors.New("connection refused")}, &fakeVision{})

	l.handle(context.Background(), inboundFrom(domain.ChannelTelegram, "42", "loamy, Kharif, Punjab"))

	sent := bus.sent()
	if len(sent) != 1 || sent[0].Text != errRecommendation {
		t.Fatalf("want fixed fallback reply, got %v", sent)
	}
}

func TestHandle_SubscribeRegistersAndConfirms(t *testing.T) {
	bus := newFakeBus()
	l, _, registry := testLoop(bus, &fakeRecommender{}, &fakeVision{})

	l.handle(context.Background(), inboundFrom(domain.ChannelTelegram, "42", "/subscribe Tamil Nadu"))

	subs := registry.All()
	if len(subs) != 1 || subs[0].Location != "Tamil Nadu" {
		t.Fatalf("registry state after subscribe: %v", subs)
	}
	sent := bus.sent()
	if len(sent) != 1 || sent[0].Text != "Subscribed to weather alerts for Tamil Nadu" {
		t.Fatalf("unexpected confirmation: %v", sent)
	}
}

func TestHandle_DiseaseImagePassesSessionLanguage(t *testing.T) {
	bus := newFakeBus()
	vis := &fakeVision{answer: "Leaf rust detected. Apply propiconazole."}
	l, sessions, _ := testLoop(bus, &fakeRecommender{}, vis)
	ctx := context.Background()

	ref := domain.ChatRef{Channel: domain.ChannelTelegram, ChatID: "42"}
	sessions.SetLanguage(ctx, ref, domain.LangHindi)

	l.handle(ctx, domain.InboundMessage{
		Channel:   domain.ChannelTelegram,
		ChatID:    "42",
		Kind:      domain.KindImage,
		ImageData: []byte{0xff, 0xd8},
		ImageMime: "image/jpeg",
		Timestamp: time.Now(),
	})

	if vis.lang != domain.LangHindi {
		t.Errorf("vision called with lang %q, want hi", vis.lang)
	}
	sent := bus.sent()
	if len(sent) != 1 || sent[0].Text != vis.answer {
		t.Fatalf("diagnosis should be relayed verbatim, got %v", sent)
	}
}

func TestHandle_VisionFailureUsesFallbackText(t *testing.T) {
	bus := newFakeBus()
	l, _, _ := testLoop(bus, &fakeRecommender{}, &fakeVision{err: errors.New("timeout")})

	l.handle(context.Background(), domain.InboundMessage{
		Channel:   domain.ChannelWhatsApp,
		ChatID:    "9198",
		Kind:      domain.KindImage,
		ImageData: []byte{1},
		ImageMime: "image/jpeg",
	})

	sent := bus.sent()
	if len(sent) != 1 || sent[0].Text != errVision {
		t.Fatalf("want fixed fallback reply, got %v", sent)
	}
}

func TestHandle_UnrecognizedTextReprompts(t *testing.T) {
	bus := newFakeBus()
	l, _, _ := testLoop(bus, &fakeRecommender{}, &fakeVision{})

	l.handle(context.Background(), inboundFrom(domain.ChannelWhatsApp, "9198", "hello there"))

	sent := bus.sent()
	if len(sent) != 1 || sent[0].Text != promptReenter {
		t.Fatalf("want re-entry prompt, got %v", sent)
	}
}

func TestRun_PreservesOrderWithinChannel(t *testing.T) {
	bus := newFakeBus()
	l, _, _ := testLoop(bus, &fakeRecommender{}, &fakeVision{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	bus.Publish(inboundFrom(domain.ChannelTelegram, "42", "/lang en"))
	bus.Publish(inboundFrom(domain.ChannelTelegram, "42", "/lang hi"))
	bus.Publish(inboundFrom(domain.ChannelTelegram, "42", "/recommend"))

	deadline := time.After(2 * time.Second)
	for len(bus.sent()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for replies, got %v", bus.sent())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	sent := bus.sent()
	want := []string{confirmLangEnglish, confirmLangHindi, promptRecommend}
	for i, text := range want {
		if sent[i].Text != text {
			t.Fatalf("reply %d = %q, want %q", i, sent[i].Text, text)
		}
	}
}
