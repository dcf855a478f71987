// Package dispatcher routes parsed message events through an ordered list
// of feature handlers, isolating each handler's failures so one broken
// feature never takes the bot down.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whisperlabs/whisperbot/pkg/logger"
	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

// Handler is one self-contained feature. Handles decides whether the event
// is for this feature; Handle reacts to it. Registration order is part of
// the dispatch contract: the admin handler runs first so privileged
// commands are claimed before content-based features see them.
type Handler interface {
	Name() string
	Handles(ctx context.Context, ev *MessageEvent) bool
	Handle(ctx context.Context, ev *MessageEvent) error
}

type Dispatcher struct {
	handlers []Handler
}

func New() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a handler. No dedup, no removal; order is significant.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch parses the raw event and runs it through every registered
// handler in order. A raw event that isn't a recognized message is a
// silent no-op. Errors and panics out of a handler are logged with the
// handler's identity and a per-dispatch correlation id, then swallowed;
// the remaining handlers still run. One attempt per handler, no retries.
func (d *Dispatcher) Dispatch(ctx context.Context, raw zulip.RawEvent) {
	ev := ParseMessageEvent(raw)
	if ev == nil {
		return
	}

	dispatchID := uuid.NewString()
	for _, h := range d.handlers {
		if err := d.invoke(ctx, h, ev); err != nil {
			logger.ErrorCF("dispatcher", "Handler failed", map[string]any{
				"handler":     h.Name(),
				"dispatch_id": dispatchID,
				"message_id":  ev.ID,
				"error":       err.Error(),
			})
		}
	}
}

// invoke runs one handler with a recover boundary around both Handles and
// Handle, so a panicking feature degrades to a logged error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev *MessageEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !h.Handles(ctx, ev) {
		return nil
	}
	return h.Handle(ctx, ev)
}
