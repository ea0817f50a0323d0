// Command daemonshepherd supervises a set of declared processes,
// restarting them on backoff and exposing a control socket for
// start/stop/reload/list operations (spec §3.1, §4.1-§4.4).
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

// buildRoot assembles the supervisor-mode root command plus one client
// subcommand per control-protocol command, mirroring the teacher's
// buildRoot + per-command flag struct layout in cmd/provisr/main.go.
func buildRoot() *cobra.Command {
	serveFlags := &ServeFlags{}
	clientFlags := &ClientFlags{}

	root := &cobra.Command{
		Use:   "daemonshepherd",
		Short: "Supervise a declared set of processes with restart backoff",
		Long: `daemonshepherd supervises the processes declared in a YAML specfile,
restarting crashed daemons on an exponential backoff and applying live
edits to the specfile on SIGHUP or --watch.

Examples:
  daemonshepherd --daemons daemons.yaml --socket /run/daemonshepherd.sock
  daemonshepherd reload --socket /run/daemonshepherd.sock
  daemonshepherd list --socket /run/daemonshepherd.sock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveFlags, clientFlags.Socket)
		},
	}
	registerServeFlags(root, serveFlags)
	root.PersistentFlags().StringVar(&clientFlags.Socket, "socket", "/run/daemonshepherd.sock", "control socket path")

	root.AddCommand(
		createReloadCommand(clientFlags),
		createListCommand(clientFlags),
		createStartCommand(clientFlags),
		createStopCommand(clientFlags),
		createRestartCommand(clientFlags),
		createCancelRestartCommand(clientFlags),
		createListCommandsCommand(clientFlags),
		createCommandCommand(clientFlags),
	)

	return root
}
