// Command hailerter tracks per-flow status (ok/degraded/flapping/missing)
// from a stream of JSON status messages on standard input, emitting
// notification lines on standard output (spec §3.2, §4.5-§4.7).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the main-loop root command plus one client subcommand
// per control-protocol command, mirroring daemonshepherd's cmd layout.
func buildRoot() *cobra.Command {
	runFlags := &RunFlags{}
	clientFlags := &ClientFlags{}

	root := &cobra.Command{
		Use:   "hailerter",
		Short: "Track per-flow status from a stream of JSON messages",
		Long: `hailerter reads one JSON status message per line from standard input and
emits a notification line to standard output whenever a tracked flow's
status changes between ok, degraded, flapping, and missing.

Examples:
  hailerter --socket /run/hailerter.sock < messages.jsonl
  hailerter list --socket /run/hailerter.sock
  hailerter mute cpu '{"host":"h1"}' 1h --socket /run/hailerter.sock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(runFlags, clientFlags.Socket)
		},
	}
	registerRunFlags(root, runFlags)
	root.PersistentFlags().StringVar(&clientFlags.Socket, "socket", "/run/hailerter.sock", "control socket path")

	root.AddCommand(
		createListCommand(clientFlags),
		createForgetCommand(clientFlags),
		createListMutedCommand(clientFlags),
		createMuteCommand(clientFlags),
		createUnmuteCommand(clientFlags),
		createResetFlappingCommand(clientFlags),
		createResetReminderCommand(clientFlags),
	)

	return root
}
