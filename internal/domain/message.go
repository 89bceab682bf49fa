package domain

import "time"

// ChannelName identifies one of the two messaging networks.
type ChannelName string

const (
	ChannelTelegram ChannelName = "telegram"
	ChannelWhatsApp ChannelName = "whatsapp"
)

// ChatRef addresses one chat on one network. Chat IDs are only unique within
// a channel, so every session and subscription lookup keys on the pair.
type ChatRef struct {
	Channel ChannelName
	ChatID  string
}

func (r ChatRef) String() string {
	return string(r.Channel) + ":" + r.ChatID
}

// MessageKind classifies the payload of an inbound message.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindButton MessageKind = "button"
)

// InboundMessage is the canonical event produced by a channel adapter.
// Constructed once per provider callback and never mutated downstream.
type InboundMessage struct {
	Channel   ChannelName
	ChatID    string
	SenderID  string
	Kind      MessageKind
	Text      string // text content, or button token for KindButton
	ImageData []byte // raw image bytes for KindImage
	ImageMime string
	Timestamp time.Time
}

func (m InboundMessage) Ref() ChatRef {
	return ChatRef{Channel: m.Channel, ChatID: m.ChatID}
}

// MenuKind selects an adapter-rendered menu attached to an outbound message.
// MenuStart renders the start menu: an inline keyboard on Telegram, nothing
// extra on WhatsApp (the numbered menu is already part of the text).
type MenuKind string

const MenuStart MenuKind = "start"

type OutboundMessage struct {
	Channel ChannelName
	ChatID  string
	Text    string
	Format  string // "" | "markdown"
	Menu    MenuKind
}
