package daemonshepherd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seismometer/toolbox/internal/history"
	"github.com/seismometer/toolbox/internal/logging"
	"github.com/seismometer/toolbox/internal/wire"
)

// pollTick bounds how long the controller's select ever blocks, so it can
// periodically sample child uptimes for backoff resets even with no other
// event pending.
const pollTick = time.Second

// Controller is the single-threaded (single-goroutine) event loop that
// owns every Child, the restart queue, and the control socket. It mirrors
// the shape of the teacher's channel-driven coordination in
// internal/process/manager.go, generalized from "wait on one command's
// exit" to "multiplex many children's exits, a restart queue, a reload
// signal, OS signals, and control-socket requests through one select".
type Controller struct {
	children map[string]*Child
	backoffs map[string]*backoffState
	scheduler *RestartScheduler

	exitCh   chan exitResult
	reqCh    chan wire.Request
	reloadCh chan []DaemonSpec
	sigCh    chan os.Signal

	listener *wire.Listener
	hist     *history.Sink
	metrics  *Metrics
	log      *slog.Logger
	childLog logging.ChildLineConfig

	specPath string
}

// ControllerOptions bundles the dependencies Run needs beyond the initial
// spec set.
type ControllerOptions struct {
	SocketPath string
	SpecPath   string
	History    *history.Sink
	Metrics    *Metrics
	Log        *slog.Logger
	// ChildLog resolves the rotating file a StdoutLog child's output is
	// mirrored to (spec §2.1); zero value means no mirror file, the lines
	// still go to the "daemon.<name>" logger channel.
	ChildLog logging.ChildLineConfig
}

// NewController builds a Controller ready to Run. It does not start any
// children; that happens once Run's initial scheduling pass runs.
func NewController(specs []DaemonSpec, opts ControllerOptions) (*Controller, error) {
	ln, err := wire.Listen(opts.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		children:  make(map[string]*Child, len(specs)),
		backoffs:  make(map[string]*backoffState, len(specs)),
		scheduler: NewRestartScheduler(),
		exitCh:    make(chan exitResult, 8),
		reqCh:     make(chan wire.Request),
		reloadCh:  make(chan []DaemonSpec, 1),
		sigCh:     make(chan os.Signal, 4),
		listener:  ln,
		hist:      opts.History,
		metrics:   opts.Metrics,
		log:       log,
		childLog:  opts.ChildLog,
		specPath:  opts.SpecPath,
	}
	for _, spec := range specs {
		c.children[spec.Name] = NewChild(spec, log)
		c.backoffs[spec.Name] = &backoffState{}
	}
	return c, nil
}

// Run drives the event loop until ctx is cancelled or a fatal error
// occurs. It owns every Child exclusively: nothing outside this goroutine
// may touch child state, which is why Child carries no mutex.
func (c *Controller) Run(ctx context.Context) error {
	defer func() { _ = c.listener.Close() }()

	signal.Notify(c.sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c.sigCh)

	go func() { _ = wire.Serve(c.listener, c.reqCh) }()

	now := time.Now()
	for name, child := range c.children {
		c.scheduler.Schedule(name, child.Spec().StartPriority, now)
	}

	for {
		wait := pollTick
		if due, ok := c.scheduler.NextDue(); ok {
			if d := time.Until(due); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			c.shutdownAll()
			return ctx.Err()

		case sig := <-c.sigCh:
			timer.Stop()
			switch sig {
			case syscall.SIGHUP:
				c.handleReloadFromDisk()
			default:
				c.shutdownAll()
				return nil
			}

		case res := <-c.exitCh:
			timer.Stop()
			c.handleExit(res)

		case specs := <-c.reloadCh:
			timer.Stop()
			c.applyReload(specs)

		case req := <-c.reqCh:
			timer.Stop()
			c.handleRequest(req)

		case <-timer.C:
			c.handleDue(time.Now())
		}
	}
}

// handleDue starts every child whose scheduled time has arrived, and
// samples running children for backoff-reset eligibility.
func (c *Controller) handleDue(now time.Time) {
	for _, name := range c.scheduler.PopDue(now) {
		c.startChild(name)
	}
	for name, child := range c.children {
		if child.State() != childRunning {
			continue
		}
		c.backoffs[name].MaybeReset(child.Spec(), child.Uptime())
	}
}

func (c *Controller) startChild(name string) {
	child, ok := c.children[name]
	if !ok {
		return
	}
	if child.State() != childStopped {
		// Still tearing down from a prior stop/restart; the exit handler
		// re-schedules once it actually reaps.
		c.scheduler.Schedule(name, child.Spec().StartPriority, time.Now().Add(50*time.Millisecond))
		return
	}
	if err := child.RunBeforeStart(); err != nil {
		c.log.Warn("before-start hook failed", "daemon", name, "error", err)
	}
	var out, errOut = c.childOutputWriters(child.Spec())
	if err := child.Start(out, errOut, c.exitCh); err != nil {
		c.log.Error("failed to start daemon", "daemon", name, "error", err)
		c.scheduleRestart(name)
		return
	}
	c.log.Info("daemon started", "daemon", name, "pid", child.PID())
	if c.metrics != nil {
		c.metrics.RecordStart(name)
	}
	c.recordHistory("daemon_start", name, map[string]any{"pid": child.PID()})
}

// childOutputWriters resolves the extra mirror destination for a captured
// child's stdout/stderr lines (spec §4.1 readline(): lines always go to the
// "daemon.<name>" logger channel via Child.Start/readLines; this is only
// the additional rotating lumberjack file per daemon name, used when
// StdoutMode is log and ChildLog.Dir is configured). An unconfigured
// ChildLog (the zero value, as in tests) yields no mirror rather than
// erroring, since "log" without a directory is not a fatal misconfiguration
// worth crashing the supervisor over. Every other StdoutMode has no mirror.
func (c *Controller) childOutputWriters(spec DaemonSpec) (out, errOut io.Writer) {
	if spec.Stdout != StdoutLog {
		return nil, nil
	}
	if w := c.childLog.Writer(spec.Name); w != nil {
		return w, w
	}
	return nil, nil
}

func (c *Controller) handleExit(res exitResult) {
	child, ok := c.children[res.name]
	if !ok {
		return
	}
	requested := child.State() == childDying
	uptime := child.Uptime()
	child.MarkExited()

	c.log.Info("daemon exited", "daemon", res.name, "exit_code", res.exitCode, "signal", res.signal, "requested", requested)
	if c.metrics != nil {
		c.metrics.RecordExit(res.name, requested)
	}
	c.recordHistory("daemon_stop", res.name, map[string]any{"exit_code": res.exitCode, "signal": res.signal})

	if !requested {
		if err := child.RunAfterCrash(res); err != nil {
			c.log.Warn("after-crash hook failed", "daemon", res.name, "error", err)
		}
	}

	if requested {
		return // stopped deliberately (reload removal, admin stop, shutdown): no restart
	}

	b := c.backoffs[res.name]
	b.MaybeReset(child.Spec(), uptime)
	delay := b.Advance(child.Spec())
	c.scheduleRestart2(res.name, delay)
}

func (c *Controller) scheduleRestart(name string) {
	child := c.children[name]
	delay := c.backoffs[name].Advance(child.Spec())
	c.scheduleRestart2(name, delay)
}

func (c *Controller) scheduleRestart2(name string, delaySeconds int) {
	child := c.children[name]
	due := time.Now().Add(time.Duration(delaySeconds) * time.Second)
	c.scheduler.Schedule(name, child.Spec().StartPriority, due)
}

func (c *Controller) recordHistory(kind, subject string, detail map[string]any) {
	if c.hist == nil {
		return
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return
	}
	_ = c.hist.Send(context.Background(), history.Event{Kind: kind, Subject: subject, Detail: b, OccurredAt: time.Now()})
}

// handleReloadFromDisk re-reads the specfile and hands it to applyReload,
// the same function the reloadCh path uses.
func (c *Controller) handleReloadFromDisk() {
	if c.specPath == "" {
		return
	}
	specs, err := LoadFile(c.specPath)
	if err != nil {
		c.log.Error("reload failed: could not parse specfile", "error", err)
		return
	}
	c.applyReload(specs)
}

// applyReload diffs next against the running spec set and converges:
// removed daemons are stopped (and their pending restarts cancelled),
// added daemons are scheduled to start immediately, and changed daemons
// are stopped then replaced so the next start uses the new definition
// (spec §4.3: "always stop the old version fully before starting the new
// one; never run both simultaneously").
func (c *Controller) applyReload(next []DaemonSpec) {
	cur := make([]DaemonSpec, 0, len(c.children))
	for _, child := range c.children {
		cur = append(cur, child.Spec())
	}
	diff := DiffSpecs(cur, next)

	for _, spec := range diff.Removed {
		c.scheduler.Cancel(spec.Name)
		if child, ok := c.children[spec.Name]; ok && child.State() == childRunning {
			_ = child.RequestStop()
		} else {
			delete(c.children, spec.Name)
			delete(c.backoffs, spec.Name)
		}
	}
	for _, spec := range diff.Changed {
		c.scheduler.Cancel(spec.Name)
		child := c.children[spec.Name]
		child.UpdateSpec(spec)
		if child.State() == childRunning {
			_ = child.RequestStop() // startChild re-schedules itself until handleExit has reaped the old process
		}
		c.scheduler.Schedule(spec.Name, spec.StartPriority, time.Now())
	}
	for _, spec := range diff.Added {
		c.children[spec.Name] = NewChild(spec, c.log)
		c.backoffs[spec.Name] = &backoffState{}
		c.scheduler.Schedule(spec.Name, spec.StartPriority, time.Now())
	}

	c.log.Info("reload applied", "added", len(diff.Added), "removed", len(diff.Removed), "changed", len(diff.Changed))
}

// shutdownAll requests every running child to stop and waits briefly for
// them to exit, escalating to SIGKILL for stragglers (spec §5: graceful
// shutdown on SIGINT/SIGTERM).
func (c *Controller) shutdownAll() {
	deadline := time.Now().Add(5 * time.Second)
	pending := 0
	for _, child := range c.children {
		if child.State() == childRunning {
			_ = child.RequestStop()
			pending++
		}
	}
	for pending > 0 && time.Now().Before(deadline) {
		select {
		case res := <-c.exitCh:
			if child, ok := c.children[res.name]; ok {
				child.MarkExited()
			}
			pending--
		case <-time.After(100 * time.Millisecond):
		}
	}
	for _, child := range c.children {
		if child.State() != childStopped {
			_ = child.Kill()
		}
	}
}
