package dispatcher

import "github.com/whisperlabs/whisperbot/pkg/zulip"

// Message types the bot dispatches on. Every other kind is filtered out
// before a MessageEvent exists.
const (
	MessageTypePrivate = "private"
	MessageTypeStream  = "stream"
)

// MessageEvent is an immutable snapshot of one inbound chat message. It is
// created per event by ParseMessageEvent, consumed synchronously by one
// dispatch pass, and never stored beyond it.
type MessageEvent struct {
	ID          int64
	SenderID    int64
	SenderEmail string
	Content     string
	Type        string // MessageTypePrivate or MessageTypeStream
	Stream      string // set iff Type == stream
	Topic       string // set iff Type == stream
	IsMeMessage bool

	// Raw carries the original event for handlers needing fields the
	// snapshot doesn't surface.
	Raw zulip.RawEvent
}

// ParseMessageEvent converts a raw queue event into a MessageEvent. It
// returns nil, never an error, for anything that isn't a dispatchable
// message: a non-"message" outer type, a missing nested message, or an
// unrecognized message kind.
func ParseMessageEvent(raw zulip.RawEvent) *MessageEvent {
	if raw.Type != "message" || raw.Message == nil {
		return nil
	}
	msg := raw.Message
	if msg.Type != MessageTypePrivate && msg.Type != MessageTypeStream {
		return nil
	}

	ev := &MessageEvent{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		SenderEmail: msg.SenderEmail,
		Content:     msg.Content,
		Type:        msg.Type,
		IsMeMessage: msg.IsMeMessage,
		Raw:         raw,
	}
	if msg.Type == MessageTypeStream {
		ev.Stream = string(msg.DisplayRecipient)
		ev.Topic = msg.Subject
	}
	return ev
}
