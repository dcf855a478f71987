package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/dispatcher"
)

// AdminControls exposes runtime configuration commands over DM. Only org
// admins and owners pass the Handles gate, so this handler must be
// registered before any feature that reacts to DM content.
type AdminControls struct {
	client Messenger
	cfgmgr *config.Manager
	sched  Scheduler
}

func NewAdminControls(client Messenger, cfgmgr *config.Manager, sched Scheduler) *AdminControls {
	return &AdminControls{client: client, cfgmgr: cfgmgr, sched: sched}
}

func (f *AdminControls) Name() string { return "admin_controls" }

// Handles accepts DMs starting with "!" from org admins or owners. The
// role check is a live lookup, not a cached list, so demotions take effect
// immediately.
func (f *AdminControls) Handles(ctx context.Context, ev *dispatcher.MessageEvent) bool {
	if ev.Type != dispatcher.MessageTypePrivate {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(ev.Content), "!") {
		return false
	}
	user, ok := f.client.GetUserByID(ctx, ev.SenderID)
	if !ok {
		return false
	}
	return user.IsAdmin || user.IsOwner
}

func (f *AdminControls) Handle(ctx context.Context, ev *dispatcher.MessageEvent) error {
	lines := strings.Split(strings.TrimSpace(ev.Content), "\n")
	if len(lines) == 0 {
		return nil
	}
	cmd := strings.TrimSpace(lines[0])
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))

	switch {
	case strings.HasPrefix(cmd, "!config"):
		f.handleConfig(ctx, cmd, ev)
	case strings.HasPrefix(cmd, "!anon"):
		f.handleAnon(ctx, cmd, ev)
	case strings.HasPrefix(cmd, "!access"):
		f.handleAccess(ctx, cmd, body, ev)
	case strings.HasPrefix(cmd, "!subscribe"):
		f.handleSubscribe(ctx, cmd, ev)
	case strings.HasPrefix(cmd, "!status"):
		f.handleStatus(ctx, ev)
	default:
		f.reply(ctx, ev,
			"Unknown admin command. Supported: !config, !anon, !access, !subscribe, !status")
	}
	return nil
}

func (f *AdminControls) reply(ctx context.Context, ev *dispatcher.MessageEvent, text string) {
	f.client.SendPrivateMessage(ctx, ev.SenderID, text)
}

func (f *AdminControls) handleConfig(ctx context.Context, cmd string, ev *dispatcher.MessageEvent) {
	parts := strings.Fields(cmd)
	if len(parts) != 2 || parts[1] != "show" {
		f.reply(ctx, ev, "Usage: `!config show`")
		return
	}

	// Credentials never live in the runtime config, so the full dump is
	// safe to DM.
	text, err := yaml.Marshal(f.cfgmgr.Get())
	if err != nil {
		f.reply(ctx, ev, fmt.Sprintf("Failed to render config: %v", err))
		return
	}
	f.reply(ctx, ev, fmt.Sprintf("Current config:\n```yaml\n%s```", text))
}

const anonUsage = "Usage:\n" +
	"`!anon show` - Show current settings\n" +
	"`!anon set stream <name>` - Set target stream\n" +
	"`!anon set topic <name>` - Set target topic\n" +
	"`!anon set delete_after_minutes <int>` - Set deletion delay"

func (f *AdminControls) handleAnon(ctx context.Context, cmd string, ev *dispatcher.MessageEvent) {
	parts := strings.Fields(cmd)

	if len(parts) == 2 && parts[1] == "show" {
		anon := f.cfgmgr.Get().AnonymousPosting
		f.reply(ctx, ev, fmt.Sprintf(
			"**Anonymous Posting Configuration:**\n"+
				"• Stream: `%s`\n"+
				"• Topic: `%s`\n"+
				"• Delete after: %d minutes (%d days)",
			anon.TargetStream, anon.TargetTopic,
			anon.DeleteAfterMinutes, anon.DeleteAfterMinutes/60/24,
		))
		return
	}

	if len(parts) != 4 || parts[1] != "set" {
		f.reply(ctx, ev, anonUsage)
		return
	}

	field, value := parts[2], parts[3]
	cfg := f.cfgmgr.Get()
	switch field {
	case "stream":
		cfg.AnonymousPosting.TargetStream = value
	case "topic":
		cfg.AnonymousPosting.TargetTopic = value
	case "delete_after_minutes":
		minutes, err := strconv.Atoi(value)
		if err != nil {
			f.reply(ctx, ev, "delete_after_minutes must be an integer.")
			return
		}
		cfg.AnonymousPosting.DeleteAfterMinutes = minutes
	default:
		f.reply(ctx, ev, fmt.Sprintf(
			"Unknown field `%s`. Allowed: stream, topic, delete_after_minutes.", field))
		return
	}

	if err := f.cfgmgr.Update(cfg); err != nil {
		f.reply(ctx, ev, fmt.Sprintf("Failed to save config: %v", err))
		return
	}
	f.reply(ctx, ev, fmt.Sprintf("Anonymous posting config updated: %s=%s", field, value))
}

const accessUsage = "Usage:\n" +
	"!access add\\n" +
	"  stream: access-requests\\n" +
	"  topic: example-topic\\n" +
	"  phrase: \"I want to play a game\"\\n" +
	"  target_stream: game-room\n\n" +
	"!access remove\\n" +
	"  stream: access-requests\\n" +
	"  topic: example-topic\\n" +
	"  phrase: \"I want to play a game\""

func (f *AdminControls) handleAccess(ctx context.Context, cmd, body string, ev *dispatcher.MessageEvent) {
	parts := strings.Fields(cmd)
	if len(parts) != 2 || (parts[1] != "add" && parts[1] != "remove") {
		f.reply(ctx, ev, accessUsage)
		return
	}
	if body == "" {
		f.reply(ctx, ev, "Please provide YAML body for !access add/remove.")
		return
	}

	var rule config.WatchRule
	if err := yaml.Unmarshal([]byte(body), &rule); err != nil {
		f.reply(ctx, ev, fmt.Sprintf("Failed to parse YAML: %v", err))
		return
	}

	cfg := f.cfgmgr.Get()
	switch parts[1] {
	case "add":
		if rule.Stream == "" || rule.Topic == "" || rule.Phrase == "" || rule.TargetStream == "" {
			f.reply(ctx, ev, "YAML must include: stream, topic, phrase, target_stream.")
			return
		}
		cfg.PrivateAccess.WatchRules = append(cfg.PrivateAccess.WatchRules, rule)
		if err := f.cfgmgr.Update(cfg); err != nil {
			f.reply(ctx, ev, fmt.Sprintf("Failed to save config: %v", err))
			return
		}
		f.reply(ctx, ev, "Access rule added.")

	case "remove":
		if rule.Stream == "" || rule.Topic == "" || rule.Phrase == "" {
			f.reply(ctx, ev, "YAML must include: stream, topic, phrase.")
			return
		}
		before := len(cfg.PrivateAccess.WatchRules)
		cfg.PrivateAccess.WatchRules = lo.Filter(cfg.PrivateAccess.WatchRules,
			func(r config.WatchRule, _ int) bool {
				return r.Stream != rule.Stream || r.Topic != rule.Topic || r.Phrase != rule.Phrase
			})
		if err := f.cfgmgr.Update(cfg); err != nil {
			f.reply(ctx, ev, fmt.Sprintf("Failed to save config: %v", err))
			return
		}
		f.reply(ctx, ev, fmt.Sprintf("Access rules removed: %d.",
			before-len(cfg.PrivateAccess.WatchRules)))
	}
}

func (f *AdminControls) handleSubscribe(ctx context.Context, cmd string, ev *dispatcher.MessageEvent) {
	parts := strings.Fields(cmd)
	if len(parts) < 2 {
		f.reply(ctx, ev,
			"Usage: `!subscribe <stream1> [stream2] [stream3] ...`\n"+
				"Example: `!subscribe general announcements anonymous`")
		return
	}

	result, err := f.client.SubscribeSelf(ctx, parts[1:])
	if err != nil {
		f.reply(ctx, ev, fmt.Sprintf("❌ Failed to subscribe: %v", err))
		return
	}

	var responseParts []string
	for _, streams := range result.Subscribed {
		if len(streams) > 0 {
			responseParts = append(responseParts,
				fmt.Sprintf("✅ Subscribed to: %s", strings.Join(streams, ", ")))
		}
	}
	for _, streams := range result.AlreadySubscribed {
		if len(streams) > 0 {
			responseParts = append(responseParts,
				fmt.Sprintf("ℹ️ Already subscribed to: %s", strings.Join(streams, ", ")))
		}
	}
	if len(responseParts) == 0 {
		responseParts = append(responseParts, "✅ Subscription request completed")
	}
	f.reply(ctx, ev, strings.Join(responseParts, "\n"))
}

func (f *AdminControls) handleStatus(ctx context.Context, ev *dispatcher.MessageEvent) {
	cfg := f.cfgmgr.Get()
	f.reply(ctx, ev, fmt.Sprintf(
		"**Bot Status:**\n"+
			"• Pending deletions: %d\n"+
			"• Anonymous posting: %s\n"+
			"• Private access rules: %d",
		f.sched.Pending(),
		enabledLabel(cfg.AnonymousPosting.Enabled),
		len(cfg.PrivateAccess.WatchRules),
	))
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
