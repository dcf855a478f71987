package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/whisperlabs/whisperbot/cmd/whisperbot/internal"
	"github.com/whisperlabs/whisperbot/cmd/whisperbot/internal/gateway"
	"github.com/whisperlabs/whisperbot/cmd/whisperbot/internal/version"
)

func NewWhisperbotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whisperbot",
		Short:   "whisperbot - Zulip bot for anonymous posting and private-stream access v" + internal.GetVersion(),
		Example: "whisperbot gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewWhisperbotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
