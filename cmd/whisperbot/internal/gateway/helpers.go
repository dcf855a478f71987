package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whisperlabs/whisperbot/cmd/whisperbot/internal"
	"github.com/whisperlabs/whisperbot/pkg/bus"
	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/dispatcher"
	"github.com/whisperlabs/whisperbot/pkg/features"
	"github.com/whisperlabs/whisperbot/pkg/health"
	"github.com/whisperlabs/whisperbot/pkg/logger"
	"github.com/whisperlabs/whisperbot/pkg/scheduler"
	"github.com/whisperlabs/whisperbot/pkg/zulip"
)

func gatewayCmd(debug bool, healthAddr string) error {
	creds, err := config.LoadCredentials()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	cfgmgr := config.NewManager(internal.GetConfigPath())
	cfg, err := cfgmgr.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}
	logger.InfoC("gateway", "Starting whisperbot "+internal.FormatVersion())

	client := zulip.NewClient(creds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if user, ok := client.GetOwnUser(ctx); ok {
		logger.InfoCF("gateway", "Bot authenticated", map[string]any{
			"full_name": user.FullName,
			"email":     user.Email,
			"user_id":   user.UserID,
		})
	} else {
		logger.WarnC("gateway", "Could not retrieve bot user information")
	}

	sched := scheduler.New(client)
	go sched.Run(ctx)

	disp := dispatcher.New()
	// Admin first, so privileged commands are evaluated before the
	// content-based features.
	disp.Register(features.NewAdminControls(client, cfgmgr, sched))
	disp.Register(features.NewAnonymousPosting(client, cfgmgr, sched))
	disp.Register(features.NewPrivateAccess(client, cfgmgr))

	healthServer := health.NewServer(healthAddr)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()

	queue, err := client.Register(ctx)
	if err != nil {
		return fmt.Errorf("registering event queue: %w", err)
	}
	logger.InfoCF("gateway", "Registered event queue", map[string]any{"queue_id": queue.QueueID})
	healthServer.SetReady(true)

	eventBus := bus.NewEventBus()
	go func() {
		defer eventBus.Close()
		for ev := range client.Events(ctx, queue) {
			if err := eventBus.Publish(ctx, ev); err != nil {
				return
			}
		}
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		logger.InfoC("gateway", "Bot is now listening for messages")
		for {
			ev, ok := eventBus.Consume(ctx)
			if !ok {
				return
			}
			logger.DebugCF("gateway", "Received event", map[string]any{"type": ev.Type})
			disp.Dispatch(ctx, ev)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.InfoC("gateway", "Shutting down")
	cancel()
	eventBus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.WarnCF("health", "Health server shutdown error", map[string]any{"error": err.Error()})
	}

	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		logger.WarnC("gateway", "Shutdown timeout exceeded")
	}

	logger.InfoC("gateway", "Gateway stopped")
	return nil
}
