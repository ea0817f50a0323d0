package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/seismometer/toolbox/internal/daemonshepherd"
	"github.com/spf13/cobra"
)

// printResult renders a client-mode result as pretty JSON on standard
// output, matching the control protocol's own JSON-line shape rather than
// inventing a separate human-readable table format (spec §6: "the reply is
// rendered").
func printResult(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// clientError prints the control-protocol error to standard error and
// exits the process with status 1 (spec §6: "1 on
// control-protocol error with the error object printed on standard error").
func clientError(err error) error {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
	return nil
}

func createReloadCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the supervisor to re-read its specfile and converge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonshepherd.NewClient(f.Socket).Reload(); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createListCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every supervised daemon and its current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := daemonshepherd.NewClient(f.Socket).List()
			if err != nil {
				return clientError(err)
			}
			return printResult(out)
		},
	}
}

func createStartCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a stopped daemon immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonshepherd.NewClient(f.Socket).Start(args[0]); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createStopCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a running daemon and cancel any pending restart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonshepherd.NewClient(f.Socket).Stop(args[0]); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createRestartCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop and immediately restart a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonshepherd.NewClient(f.Socket).Restart(args[0]); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createCancelRestartCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-restart <name>",
		Short: "Cancel a pending scheduled restart, leaving the daemon stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonshepherd.NewClient(f.Socket).CancelRestart(args[0]); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createListCommandsCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-commands <name>",
		Short: "List the declared admin command names for a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := daemonshepherd.NewClient(f.Socket).ListCommands(args[0])
			if err != nil {
				return clientError(err)
			}
			return printResult(out)
		},
	}
}

func createCommandCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "command <name> <cmd>",
		Short: "Run one of a daemon's declared admin commands",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := daemonshepherd.NewClient(f.Socket).RunCommand(args[0], args[1])
			if err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"output": out})
		},
	}
}
