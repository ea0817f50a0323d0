package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/seismometer/toolbox/internal/daemonshepherd"
	"github.com/seismometer/toolbox/internal/history"
	"github.com/seismometer/toolbox/internal/logging"
)

// runServe is the supervisor-mode entrypoint (spec §6 daemonshepherd
// supervisor mode). It loads the specfile, binds the control socket,
// optionally detaches to the background, drops privileges, and runs the
// controller loop until a terminating signal or context cancellation.
func runServe(f *ServeFlags, socket string) error {
	if f.Background {
		if err := daemonize(f); err != nil {
			return err
		}
	}

	log := buildLogger(f)

	specs, err := daemonshepherd.LoadFile(f.DaemonsFile)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if f.PIDFile != "" {
		if err := writePIDFile(f.PIDFile, os.Getpid()); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		defer func() { _ = os.Remove(f.PIDFile) }()
	}

	hist, err := history.Open(f.HistoryDB)
	if err != nil {
		return fmt.Errorf("startup: open history db: %w", err)
	}
	defer func() { _ = hist.Close() }()

	reg := prometheus.NewRegistry()
	metrics, err := daemonshepherd.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("startup: register metrics: %w", err)
	}

	var childLog logging.ChildLineConfig
	if f.ChildLogDir != "" {
		childLog = logging.ChildLineConfig{Dir: f.ChildLogDir}
	}

	ctrl, err := daemonshepherd.NewController(specs, daemonshepherd.ControllerOptions{
		SocketPath: socket,
		SpecPath:   f.DaemonsFile,
		History:    hist,
		Metrics:    metrics,
		Log:        log,
		ChildLog:   childLog,
	})
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	// dropPrivileges runs after the control socket is bound, so a
	// privileged bind path (e.g. /run) still works with an unprivileged
	// --user/--group.
	if f.User != "" || f.Group != "" {
		if err := dropPrivileges(f.User, f.Group); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	if f.HTTPAddr != "" {
		srv := daemonshepherd.NewServer(f.HTTPAddr, socket)
		defer func() { _ = srv.Close() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if f.Watch {
		stop, err := watchSpecFile(f.DaemonsFile, log)
		if err != nil {
			log.Warn("specfile watch disabled", "error", err)
		} else {
			defer stop()
		}
	}

	return ctrl.Run(ctx)
}

// buildLogger resolves the supervisor's own log sink from the --logging/
// --stderr/--syslog/--silent shorthands (spec §2.1, §6). Exactly one of
// them is expected; --logging wins if more than one is set, then --syslog,
// then --silent, with plain stderr as the fallback.
func buildLogger(f *ServeFlags) *slog.Logger {
	opts := logging.Options{Level: slog.LevelInfo}
	switch {
	case f.LoggingFile != "":
		opts.Mode = logging.ModeFile
		opts.Path = f.LoggingFile
	case f.Syslog:
		opts.Mode = logging.ModeSyslog
	case f.Silent:
		opts.Mode = logging.ModeSilent
	default:
		opts.Mode = logging.ModeConsole
	}
	return logging.New(opts)
}

// dropPrivileges resolves user/group names (or numeric ids) and switches
// the process's effective and real ids, in group-then-user order so the
// process never briefly holds a user id without the matching group.
func dropPrivileges(userName, groupName string) error {
	gid := -1
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("unknown group %q: %w", groupName, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("group %q: %w", groupName, err)
		}
	}
	uid := -1
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("unknown user %q: %w", userName, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("user %q: %w", userName, err)
		}
		if gid == -1 {
			gid, err = strconv.Atoi(u.Gid)
			if err != nil {
				return fmt.Errorf("user %q: %w", userName, err)
			}
		}
	}
	if gid != -1 {
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid(%d): %w", gid, err)
		}
	}
	if uid != -1 {
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid(%d): %w", uid, err)
		}
	}
	return nil
}

func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

// daemonize re-execs the current binary detached into its own session,
// then exits the foreground process; the re-exec carries --background so
// the check below short-circuits once control passes to the child.
// Adapted from the teacher's cmd/provisr/daemon.go fork-via-re-exec
// pattern (Go has no native fork-and-continue).
func daemonize(f *ServeFlags) error {
	if os.Getppid() == 1 {
		return nil // already running detached under init/systemd
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}

	// #nosec G204 -- os.Args is this same process's own argv, re-exec'd unmodified.
	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if f.LoggingFile != "" {
		logf, err := os.OpenFile(f.LoggingFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("background: open log file: %w", err)
		}
		cmd.Stdout, cmd.Stderr = logf, logf
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	fmt.Printf("daemonshepherd started with pid %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}
