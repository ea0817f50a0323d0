package daemonshepherd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/seismometer/toolbox/internal/envmerge"
	"github.com/seismometer/toolbox/internal/procutil"
)

// signalByName maps the small set of signal names the spec allows in
// stop.signal to their syscall.Signal values (spec §3.1: "signal name such
// as TERM, INT, KILL, HUP, USR1, USR2").
var signalByName = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"INT":  syscall.SIGINT,
	"KILL": syscall.SIGKILL,
	"HUP":  syscall.SIGHUP,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

func resolveSignal(name string) (syscall.Signal, error) {
	if name == "" {
		return syscall.SIGTERM, nil
	}
	if sig, ok := signalByName[strings.ToUpper(name)]; ok {
		return sig, nil
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		return syscall.Signal(n), nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// childState is the lifecycle state of one supervised process, tracked by
// the controller's single event loop (spec §4.2: stopped/running/dying).
type childState int

const (
	childStopped childState = iota
	childRunning
	childDying // stop requested, waiting for exit or kill escalation
)

// Child owns the *exec.Cmd, exit notification channel, and derived runtime
// state for one DaemonSpec. All mutation happens on the controller's
// goroutine; Child itself carries no mutex because it is never touched
// concurrently (c.f. the teacher's mutex-guarded Process — here the
// single-owner event loop removes the need for one).
type Child struct {
	spec DaemonSpec

	state   childState
	cmd     *exec.Cmd
	pid     int
	startAt time.Time

	restartIdx   int // unused; the controller's backoffState tracks the restart index
	restartCount int

	exitCh chan exitResult // closed-over by the goroutine running cmd.Wait

	stdoutPipeW *io.PipeWriter // non-nil only while stdout=log is capturing
	stderrPipeW *io.PipeWriter

	log *slog.Logger
}

// exitResult is delivered on exitCh when the child's process exits.
type exitResult struct {
	name     string
	err      error
	exitCode int
	signal   string
}

// NewChild constructs a Child in the stopped state.
func NewChild(spec DaemonSpec, log *slog.Logger) *Child {
	return &Child{spec: spec, state: childStopped, log: log}
}

// Spec returns the currently effective DaemonSpec.
func (c *Child) Spec() DaemonSpec { return c.spec }

// UpdateSpec replaces the spec in place, used for a "changed" reload entry
// before the child is next restarted with the new definition.
func (c *Child) UpdateSpec(s DaemonSpec) { c.spec = s }

// State reports the child's lifecycle state.
func (c *Child) State() childState { return c.state }

// PID returns the running child's process ID, or 0 if not running.
func (c *Child) PID() int { return c.pid }

// resolvedEnv computes the environment the child process and its
// sub-commands should see: declared Environment replaces the parent
// process's environment entirely; undeclared (nil) inherits it (spec
// §3.1, §9).
func (c *Child) resolvedEnv() envmerge.Set {
	if c.spec.Environment == nil {
		return envmerge.FromSlice(os.Environ())
	}
	return envmerge.FromMap(c.spec.Environment)
}

// Start launches the child process. mirror/mirrorErr are an optional extra
// destination for captured lines when spec.Stdout == StdoutLog (the
// controller's per-daemon rotating file, if configured); they are ignored
// for every other stdout mode.
func (c *Child) Start(mirror, mirrorErr io.Writer, exitCh chan exitResult) error {
	cmd := procutil.BuildCommand(c.spec.StartCommand, c.spec.StartArgv)
	if c.spec.Argv0 != "" {
		cmd.Args[0] = c.spec.Argv0
	}
	if c.spec.Cwd != "" {
		cmd.Dir = c.spec.Cwd
	}
	cmd.Env = c.resolvedEnv().Slice()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	switch c.spec.Stdout {
	case StdoutConsole:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case StdoutLog:
		outR, outW := io.Pipe()
		errR, errW := io.Pipe()
		cmd.Stdout = outW
		cmd.Stderr = errW
		c.stdoutPipeW, c.stderrPipeW = outW, errW
		go c.readLines(outR, mirror)
		go c.readLines(errR, mirrorErr)
	default:
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.startAt = time.Now()
	c.state = childRunning
	c.exitCh = exitCh

	go func() {
		err := cmd.Wait()
		if c.stdoutPipeW != nil {
			_ = c.stdoutPipeW.Close()
		}
		if c.stderrPipeW != nil {
			_ = c.stderrPipeW.Close()
		}
		res := exitResult{name: c.spec.Name, err: err}
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			if ws.Exited() {
				res.exitCode = ws.ExitStatus()
			} else if ws.Signaled() {
				res.signal = ws.Signal().String()
			}
		}
		exitCh <- res
	}()

	return nil
}

// readLines implements the Child-handle readline() contract (spec §4.1):
// it scans r line by line and logs each at info severity under the
// "daemon.<name>" logger channel, additionally mirroring the raw line to
// extra when non-nil. It returns once r reaches EOF, which Start arranges
// by closing the write end after cmd.Wait returns.
func (c *Child) readLines(r io.Reader, extra io.Writer) {
	logger := c.log.With("logger", "daemon."+c.spec.Name)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Info(line)
		if extra != nil {
			_, _ = fmt.Fprintln(extra, line)
		}
	}
}

// RequestStop signals the child to terminate, per spec.Stop: a custom stop
// command wins over a signal, and ProcessGroup controls whether the
// signal targets the whole process group or just the leader.
func (c *Child) RequestStop() error {
	if c.state != childRunning {
		return nil
	}
	c.state = childDying
	if c.spec.Stop.HasCommand() {
		return c.runStopCommand()
	}
	sig, err := resolveSignal(c.spec.Stop.Signal)
	if err != nil {
		return err
	}
	return c.signal(sig, c.spec.Stop.ProcessGroup)
}

// Kill escalates to SIGKILL, always targeting the process group so no
// grandchildren survive (spec §5: "reap via process groups").
func (c *Child) Kill() error {
	if c.pid == 0 {
		return nil
	}
	return syscall.Kill(-c.pid, syscall.SIGKILL)
}

func (c *Child) signal(sig syscall.Signal, group bool) error {
	if c.pid == 0 {
		return nil
	}
	if group {
		return syscall.Kill(-c.pid, sig)
	}
	return syscall.Kill(c.pid, sig)
}

func (c *Child) runStopCommand() error {
	cs := CommandSpec{
		Command:     c.spec.Stop.Command,
		CommandArgv: c.spec.Stop.CommandArgv,
		ProcessGroup: c.spec.Stop.ProcessGroup,
	}
	return c.runOneShot(cs, nil)
}

// RunBeforeStart runs the before-start hook if declared, blocking until it
// completes (spec §3.1: "before-start ... runs synchronously before the
// daemon's own process is started").
func (c *Child) RunBeforeStart() error {
	cs, ok := c.spec.ResolvedCommandSpec(CommandBeforeStart)
	if !ok {
		return nil
	}
	return c.runOneShot(cs, nil)
}

// RunAfterCrash runs the after-crash hook if declared, with the overlay
// environment describing the just-exited process (spec §3.1).
func (c *Child) RunAfterCrash(res exitResult) error {
	cs, ok := c.spec.ResolvedCommandSpec(CommandAfterCrash)
	if !ok {
		return nil
	}
	return c.runOneShot(cs, res.overlay())
}

// RunCommand runs an arbitrary declared admin command by name (spec §4.4
// run_command), returning its combined output.
func (c *Child) RunCommand(name string) ([]byte, error) {
	cs, ok := c.spec.ResolvedCommandSpec(name)
	if !ok {
		return nil, fmt.Errorf("no such command %q", name)
	}
	return c.runOneShotCaptured(cs)
}

// overlay returns the DAEMON_EXIT_CODE (and, for a signal death,
// DAEMON_SIGNAL) environment additions the after-crash hook sees (spec
// §3.1, §9).
func (r exitResult) overlay() map[string]string {
	m := map[string]string{
		"DAEMON_EXIT_CODE": strconv.Itoa(r.exitCode),
	}
	if r.signal != "" {
		m["DAEMON_SIGNAL"] = r.signal
	}
	return m
}

func (c *Child) runOneShot(cs CommandSpec, overlay map[string]string) error {
	_, err := c.runOneShotWith(cs, overlay, false)
	return err
}

func (c *Child) runOneShotCaptured(cs CommandSpec) ([]byte, error) {
	pid := ""
	if c.pid != 0 {
		pid = strconv.Itoa(c.pid)
	}
	return c.runOneShotWith(cs, map[string]string{"DAEMON_PID": pid}, true)
}

func (c *Child) runOneShotWith(cs CommandSpec, overlay map[string]string, capture bool) ([]byte, error) {
	cmd := procutil.BuildCommand(cs.Command, cs.CommandArgv)
	if cs.Argv0 != "" {
		cmd.Args[0] = cs.Argv0
	}
	if cs.Cwd != "" {
		cmd.Dir = cs.Cwd
	}

	env := envmerge.FromSlice(c.resolvedEnv().Slice())
	if cs.Environment != nil {
		env = envmerge.FromMap(cs.Environment)
	}
	for k, v := range overlay {
		env = env.With(k, v)
	}
	cmd.Env = env.Slice()

	if cs.ProcessGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if capture {
		return cmd.CombinedOutput()
	}
	return nil, cmd.Run()
}

// MarkExited transitions the child to stopped and clears its process
// handle. Whether the exit was requested is decided by the caller
// (Controller.handleExit) from State before calling this.
func (c *Child) MarkExited() {
	c.state = childStopped
	c.cmd = nil
	c.pid = 0
	c.stdoutPipeW = nil
	c.stderrPipeW = nil
}

// Uptime returns how long the child has been running as of now.
func (c *Child) Uptime() time.Duration {
	if c.state != childRunning || c.startAt.IsZero() {
		return 0
	}
	return time.Since(c.startAt)
}
