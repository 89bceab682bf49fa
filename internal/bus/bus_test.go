package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"cropadvisor/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, discardLogger())
	defer b.Close()

	msg := domain.InboundMessage{
		Channel: domain.ChannelTelegram,
		ChatID:  "42",
		Kind:    domain.KindText,
		Text:    "/start",
	}
	b.Publish(msg)

	select {
	case got := <-b.Subscribe():
		if got.ChatID != "42" || got.Text != "/start" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSendOutbound_RoutesToOwningChannel(t *testing.T) {
	b := New(10, discardLogger())
	defer b.Close()

	var tg, wa []string
	b.OnOutbound(domain.ChannelTelegram, func(m domain.OutboundMessage) { tg = append(tg, m.Text) })
	b.OnOutbound(domain.ChannelWhatsApp, func(m domain.OutboundMessage) { wa = append(wa, m.Text) })

	b.SendOutbound(domain.OutboundMessage{Channel: domain.ChannelWhatsApp, ChatID: "9198", Text: "hi"})

	if len(tg) != 0 {
		t.Fatalf("telegram handler received whatsapp traffic: %v", tg)
	}
	if len(wa) != 1 || wa[0] != "hi" {
		t.Fatalf("whatsapp handler got %v", wa)
	}
}

func TestSendOutbound_MissingHandlerIsDropped(t *testing.T) {
	b := New(10, discardLogger())
	defer b.Close()

	// Must not panic.
	b.SendOutbound(domain.OutboundMessage{Channel: domain.ChannelTelegram, Text: "orphan"})
}

func TestPublishAfterClose(t *testing.T) {
	b := New(10, discardLogger())
	b.Close()
	b.Close() // idempotent

	// Must not panic on a closed bus.
	b.Publish(domain.InboundMessage{Channel: domain.ChannelTelegram, Text: "late"})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("closed bus still delivered a message")
	}
}
