package domain

// MessageBus routes messages between channel adapters and the advisor loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channel ChannelName, handler func(OutboundMessage))
	Close()
}
