package features

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/dispatcher"
	"github.com/whisperlabs/whisperbot/pkg/utils"
)

// cleanupDelay is how soon the original DM and the SEND/CANCEL reply get
// deleted after the flow resolves.
const cleanupDelay = time.Minute

const previewLimit = 500

// pendingAnon tracks one anonymous post awaiting confirmation. No sender
// identity beyond the map key is retained.
type pendingAnon struct {
	originalMessageID int64
	originalContent   string
}

// AnonymousPosting lets users publish to a configured stream via DM, behind
// a SEND/CANCEL confirmation, with the posted message scheduled for
// deletion after a configured delay.
type AnonymousPosting struct {
	client Messenger
	cfgmgr *config.Manager
	sched  Scheduler

	mu      sync.Mutex
	pending map[int64]pendingAnon // keyed by sender id, one slot per sender
}

func NewAnonymousPosting(client Messenger, cfgmgr *config.Manager, sched Scheduler) *AnonymousPosting {
	return &AnonymousPosting{
		client:  client,
		cfgmgr:  cfgmgr,
		sched:   sched,
		pending: make(map[int64]pendingAnon),
	}
}

func (f *AnonymousPosting) Name() string { return "anonymous_posting" }

// Handles accepts every DM while the feature is enabled.
func (f *AnonymousPosting) Handles(_ context.Context, ev *dispatcher.MessageEvent) bool {
	if !f.cfgmgr.Get().AnonymousPosting.Enabled {
		return false
	}
	return ev.Type == dispatcher.MessageTypePrivate
}

func (f *AnonymousPosting) Handle(ctx context.Context, ev *dispatcher.MessageEvent) error {
	cfg := f.cfgmgr.Get().AnonymousPosting

	f.mu.Lock()
	pending, hasPending := f.pending[ev.SenderID]
	if hasPending {
		delete(f.pending, ev.SenderID)
	}
	f.mu.Unlock()

	if hasPending {
		return f.resolvePending(ctx, ev, pending, cfg)
	}
	return f.startFlow(ctx, ev)
}

// resolvePending consumes the sender's pending slot based on their reply.
func (f *AnonymousPosting) resolvePending(
	ctx context.Context,
	ev *dispatcher.MessageEvent,
	pending pendingAnon,
	cfg config.AnonymousPostingConfig,
) error {
	switch utils.NormalizePhrase(ev.Content) {
	case "send":
		content := fmt.Sprintf("Anonymous message:\n\n%s", pending.originalContent)
		anonID, ok := f.client.SendStreamMessage(ctx, cfg.TargetStream, cfg.TargetTopic, content)
		if ok {
			f.sched.Schedule(anonID, time.Duration(cfg.DeleteAfterMinutes)*time.Minute)
		}
		f.sched.Schedule(pending.originalMessageID, cleanupDelay)
		f.sched.Schedule(ev.ID, cleanupDelay)
		f.client.SendPrivateMessage(ctx, ev.SenderID,
			"Your message has been posted anonymously.")
		return nil

	case "cancel":
		f.sched.Schedule(pending.originalMessageID, cleanupDelay)
		f.sched.Schedule(ev.ID, cleanupDelay)
		f.client.SendPrivateMessage(ctx, ev.SenderID,
			"Okay, your message was not posted.")
		return nil

	default:
		// The slot is already cleared; the user must resend their message.
		f.client.SendPrivateMessage(ctx, ev.SenderID,
			"Unknown input. Please start over by sending your message again.")
		return nil
	}
}

// startFlow records the DM as pending and asks for confirmation.
func (f *AnonymousPosting) startFlow(ctx context.Context, ev *dispatcher.MessageEvent) error {
	f.mu.Lock()
	f.pending[ev.SenderID] = pendingAnon{
		originalMessageID: ev.ID,
		originalContent:   ev.Content,
	}
	f.mu.Unlock()

	preview := utils.TruncatePreview(strings.TrimSpace(ev.Content), previewLimit)
	f.client.SendPrivateMessage(ctx, ev.SenderID, fmt.Sprintf(
		"You wrote:\n\n```text\n%s\n```\n\n"+
			"Reply with `SEND` to post anonymously, or `CANCEL` to discard.",
		preview,
	))
	return nil
}

// PendingCount reports how many confirmations are outstanding.
func (f *AnonymousPosting) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
