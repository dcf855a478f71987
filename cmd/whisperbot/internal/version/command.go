package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/whisperlabs/whisperbot/cmd/whisperbot/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print whisperbot version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("whisperbot %s (%s)\n", internal.FormatVersion(), runtime.Version())
		},
	}
}
