package main

import (
	"github.com/spf13/cobra"
)

// ClientFlags holds the flags shared by every client-mode subcommand: just
// the control socket to dial (spec §6 daemonshepherd client mode).
type ClientFlags struct {
	Socket string
}

// ServeFlags holds the supervisor-mode flags (spec §6 daemonshepherd
// supervisor mode). Socket is shared with ClientFlags via the root
// command's persistent --socket flag rather than declared again here.
type ServeFlags struct {
	DaemonsFile string
	PIDFile     string
	Background  bool
	User        string
	Group       string
	LoggingFile string
	Stderr      bool
	Syslog      bool
	Silent      bool
	Watch       bool
	HTTPAddr    string
	HistoryDB   string
	ChildLogDir string
}

func registerServeFlags(cmd *cobra.Command, f *ServeFlags) {
	cmd.Flags().StringVar(&f.DaemonsFile, "daemons", "", "path to the YAML specfile (required)")
	cmd.Flags().StringVar(&f.PIDFile, "pid-file", "", "write the supervisor's PID to this file")
	cmd.Flags().BoolVar(&f.Background, "background", false, "detach and run in the background")
	cmd.Flags().StringVar(&f.User, "user", "", "drop privileges to this user after binding the control socket")
	cmd.Flags().StringVar(&f.Group, "group", "", "drop privileges to this group after binding the control socket")
	cmd.Flags().StringVar(&f.LoggingFile, "logging", "", "write the supervisor's own log to this file")
	cmd.Flags().BoolVar(&f.Stderr, "stderr", false, "log to standard error (default when no other sink is chosen)")
	cmd.Flags().BoolVar(&f.Syslog, "syslog", false, "log to syslog")
	cmd.Flags().BoolVar(&f.Silent, "silent", false, "discard all log output")
	cmd.Flags().BoolVar(&f.Watch, "watch", false, "reload when the specfile changes on disk, in addition to SIGHUP")
	cmd.Flags().StringVar(&f.HTTPAddr, "http-addr", "", "optional debug/metrics HTTP address (e.g. 127.0.0.1:9100)")
	cmd.Flags().StringVar(&f.HistoryDB, "history-db", "", "optional SQLite file recording daemon lifecycle history")
	cmd.Flags().StringVar(&f.ChildLogDir, "child-log-dir", "", "directory for rotating per-daemon log files (stdout: log)")

	if err := cmd.MarkFlagRequired("daemons"); err != nil {
		panic(err)
	}
}
