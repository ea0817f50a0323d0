package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/seismometer/toolbox/internal/hailerter"
	"github.com/spf13/cobra"
)

func printResult(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func clientError(err error) error {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
	return nil
}

// parseLocation unmarshals a command-line location argument, required to
// be a JSON object of string->string (spec §6: "location-json").
func parseLocation(s string) (map[string]string, error) {
	var loc map[string]string
	if err := json.Unmarshal([]byte(s), &loc); err != nil {
		return nil, fmt.Errorf("invalid location JSON %q: %w", s, err)
	}
	return loc, nil
}

func createListCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tracked flow and its current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := hailerter.NewClient(f.Socket).List()
			if err != nil {
				return clientError(err)
			}
			return printResult(out)
		},
	}
}

func createForgetCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <aspect> <location-json>",
		Short: "Remove a flow's record entirely",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return clientError(err)
			}
			if err := hailerter.NewClient(f.Socket).Forget(args[0], loc); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createListMutedCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-muted",
		Short: "List every active mute",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := hailerter.NewClient(f.Socket).ListMuted()
			if err != nil {
				return clientError(err)
			}
			return printResult(out)
		},
	}
}

func createMuteCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mute <aspect> <location-json> <duration>",
		Short: "Suppress notifications for a flow for the given duration",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return clientError(err)
			}
			d := new(time.Duration)
			if err := (&durationValue{d: d}).Set(args[2]); err != nil {
				return clientError(err)
			}
			if err := hailerter.NewClient(f.Socket).Mute(args[0], loc, int(d.Seconds())); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createUnmuteCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unmute <aspect> <location-json>",
		Short: "Clear an active mute early",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return clientError(err)
			}
			if err := hailerter.NewClient(f.Socket).Unmute(args[0], loc); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createResetFlappingCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-flapping <aspect> <location-json>",
		Short: "Clear a flow's flap detector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return clientError(err)
			}
			if err := hailerter.NewClient(f.Socket).ResetFlapping(args[0], loc); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}

func createResetReminderCommand(f *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-reminder <aspect> <location-json>",
		Short: "Zero a flow's last-notified timestamp",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return clientError(err)
			}
			if err := hailerter.NewClient(f.Socket).ResetReminder(args[0], loc); err != nil {
				return clientError(err)
			}
			return printResult(map[string]string{"status": "ok"})
		},
	}
}
