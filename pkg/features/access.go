package features

import (
	"context"

	"github.com/samber/lo"

	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/dispatcher"
	"github.com/whisperlabs/whisperbot/pkg/logger"
	"github.com/whisperlabs/whisperbot/pkg/utils"
)

const accessGrantedEmoji = "saluting_face"

// PrivateAccess watches configured (stream, topic) threads for trigger
// phrases and subscribes the sender to the matching private stream,
// acknowledging with an emoji reaction.
type PrivateAccess struct {
	client Messenger
	cfgmgr *config.Manager
}

func NewPrivateAccess(client Messenger, cfgmgr *config.Manager) *PrivateAccess {
	return &PrivateAccess{client: client, cfgmgr: cfgmgr}
}

func (f *PrivateAccess) Name() string { return "private_access" }

func (f *PrivateAccess) rules() []config.WatchRule {
	cfg := f.cfgmgr.Get().PrivateAccess
	if !cfg.Enabled {
		return nil
	}
	return cfg.WatchRules
}

// Handles accepts stream messages in any watched (stream, topic) thread.
func (f *PrivateAccess) Handles(_ context.Context, ev *dispatcher.MessageEvent) bool {
	if ev.Type != dispatcher.MessageTypeStream {
		return false
	}
	return lo.SomeBy(f.rules(), func(r config.WatchRule) bool {
		return r.Stream == ev.Stream && r.Topic == ev.Topic
	})
}

func (f *PrivateAccess) Handle(ctx context.Context, ev *dispatcher.MessageEvent) error {
	msgNorm := utils.NormalizePhrase(ev.Content)

	for _, r := range f.rules() {
		if r.Stream != ev.Stream || r.Topic != ev.Topic {
			continue
		}
		if utils.NormalizePhrase(r.Phrase) != msgNorm {
			continue
		}
		logger.InfoCF("private_access", "Phrase matched, granting access", map[string]any{
			"sender_id":     f.loggableUserID(ev.SenderID),
			"target_stream": r.TargetStream,
		})
		f.client.AddUserSubscriptions(ctx, ev.SenderID, []string{r.TargetStream})
		f.client.ReactToMessage(ctx, ev.ID, accessGrantedEmoji)
	}
	return nil
}

// loggableUserID respects the anonymize_user_ids config knob.
func (f *PrivateAccess) loggableUserID(id int64) any {
	if f.cfgmgr.Get().Logging.AnonymizeUserIDs {
		return "redacted"
	}
	return id
}
