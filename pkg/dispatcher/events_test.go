package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

func TestParseRejectsNonMessageEvents(t *testing.T) {
	for _, typ := range []string{"heartbeat", "reaction", "presence", ""} {
		assert.Nil(t, ParseMessageEvent(zulip.RawEvent{ID: 1, Type: typ}), "type %q", typ)
	}
	// Outer type "message" without a nested message record.
	assert.Nil(t, ParseMessageEvent(zulip.RawEvent{ID: 1, Type: "message"}))
}

func TestParseRejectsUnknownMessageKinds(t *testing.T) {
	raw := zulip.RawEvent{
		Type:    "message",
		Message: &zulip.RawMessage{ID: 1, Type: "channel_op"},
	}
	assert.Nil(t, ParseMessageEvent(raw))
}

func TestParseStreamMessage(t *testing.T) {
	raw := zulip.RawEvent{
		ID:   9,
		Type: "message",
		Message: &zulip.RawMessage{
			ID:               101,
			SenderID:         7,
			SenderEmail:      "ada@example.com",
			Content:          "status?",
			Type:             "stream",
			DisplayRecipient: "general",
			Subject:          "updates",
		},
	}

	ev := ParseMessageEvent(raw)
	require.NotNil(t, ev)
	assert.Equal(t, int64(101), ev.ID)
	assert.Equal(t, int64(7), ev.SenderID)
	assert.Equal(t, "ada@example.com", ev.SenderEmail)
	assert.Equal(t, MessageTypeStream, ev.Type)
	assert.Equal(t, "general", ev.Stream)
	assert.Equal(t, "updates", ev.Topic)
	assert.Equal(t, raw, ev.Raw)
}

func TestParsePrivateMessageHasNoStreamFields(t *testing.T) {
	raw := zulip.RawEvent{
		Type: "message",
		Message: &zulip.RawMessage{
			ID:       102,
			SenderID: 7,
			Type:     "private",
			Content:  "psst",
			// display_recipient for DMs is a user list; the decoded
			// value is empty either way.
			Subject: "should be ignored",
		},
	}

	ev := ParseMessageEvent(raw)
	require.NotNil(t, ev)
	assert.Equal(t, MessageTypePrivate, ev.Type)
	assert.Empty(t, ev.Stream)
	assert.Empty(t, ev.Topic)
}

func TestParseMissingContentIsEmptyString(t *testing.T) {
	raw := zulip.RawEvent{
		Type:    "message",
		Message: &zulip.RawMessage{ID: 103, SenderID: 7, Type: "private"},
	}

	ev := ParseMessageEvent(raw)
	require.NotNil(t, ev)
	assert.Equal(t, "", ev.Content)
}
