// Package features contains the bot's feature handlers: admin controls,
// anonymous posting, and private-stream access grants. Each is a
// self-contained dispatcher.Handler; they share no state and coordinate
// only through the scheduler and the config manager.
package features

import (
	"context"
	"time"

	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

// Messenger is the outbound client surface the features depend on.
// *zulip.Client satisfies it; tests substitute fakes.
type Messenger interface {
	SendPrivateMessage(ctx context.Context, userID int64, content string) (int64, bool)
	SendStreamMessage(ctx context.Context, stream, topic, content string) (int64, bool)
	ReactToMessage(ctx context.Context, messageID int64, emojiName string)
	AddUserSubscriptions(ctx context.Context, userID int64, streams []string)
	SubscribeSelf(ctx context.Context, streams []string) (*zulip.SubscribeResult, error)
	GetUserByID(ctx context.Context, userID int64) (*zulip.User, bool)
}

// Scheduler is the deletion-scheduling surface the features depend on.
type Scheduler interface {
	Schedule(messageID int64, delay time.Duration)
	Pending() int
}
