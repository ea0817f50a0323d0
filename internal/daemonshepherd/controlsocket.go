package daemonshepherd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seismometer/toolbox/internal/wire"
)

// controlRequest is the wire shape of every control-socket command (spec
// §4.4, §6). Name and AdminCommand are only present for the commands that
// need them; unused fields are simply omitted by the client.
type controlRequest struct {
	Command      string `json:"command"`
	Name         string `json:"name,omitempty"`
	AdminCommand string `json:"admin_command,omitempty"`
}

type DaemonSummary struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	PID     int    `json:"pid,omitempty"`
	Pending bool   `json:"restart_pending"`
}

func (cs childState) String() string {
	switch cs {
	case childRunning:
		return "running"
	case childDying:
		return "dying"
	default:
		return "stopped"
	}
}

// handleRequest decodes one control-socket line and replies on req.Reply.
// Every reply is exactly one JSON line; callers never see a partial write
// because wire.handleConn owns the actual socket I/O (spec §4.4, §6:
// "one JSON object in, one JSON object out, then the connection closes").
func (c *Controller) handleRequest(req wire.Request) {
	var cr controlRequest
	if err := json.Unmarshal(req.Line, &cr); err != nil {
		req.Reply <- errorReply(fmt.Errorf("malformed request: %w", err))
		return
	}

	switch cr.Command {
	case "reload":
		c.handleReloadFromDisk()
		req.Reply <- okReply(nil)

	case "list":
		req.Reply <- okReply(c.listDaemons())

	case "start":
		req.Reply <- c.cmdStart(cr.Name)

	case "stop":
		req.Reply <- c.cmdStop(cr.Name)

	case "restart":
		req.Reply <- c.cmdRestart(cr.Name)

	case "cancel_restart":
		req.Reply <- c.cmdCancelRestart(cr.Name)

	case "list-commands":
		req.Reply <- c.cmdListCommands(cr.Name)

	case "admin_command":
		req.Reply <- c.cmdAdminCommand(cr.Name, cr.AdminCommand)

	default:
		req.Reply <- errorReply(fmt.Errorf("unknown command %q", cr.Command))
	}
}

func okReply(result any) []byte {
	if result == nil {
		b, _ := json.Marshal(map[string]string{"status": "ok"})
		return b
	}
	b, _ := json.Marshal(map[string]any{"status": "ok", "result": result})
	return b
}

func errorReply(err error) []byte {
	b, _ := json.Marshal(map[string]string{"status": "error", "reason": err.Error()})
	return b
}

func (c *Controller) listDaemons() []DaemonSummary {
	out := make([]DaemonSummary, 0, len(c.children))
	for name, child := range c.children {
		out = append(out, DaemonSummary{
			Name:    name,
			State:   child.State().String(),
			PID:     child.PID(),
			Pending: c.scheduler.Pending(name),
		})
	}
	return out
}

func (c *Controller) cmdStart(name string) []byte {
	child, ok := c.children[name]
	if !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	if child.State() != childStopped {
		return errorReply(fmt.Errorf("daemon %q is already %s", name, child.State()))
	}
	c.scheduler.Schedule(name, child.Spec().StartPriority, time.Now())
	return okReply(nil)
}

func (c *Controller) cmdStop(name string) []byte {
	child, ok := c.children[name]
	if !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	c.scheduler.Cancel(name)
	if b, ok := c.backoffs[name]; ok {
		b.Reset()
	}
	if child.State() == childRunning {
		if err := child.RequestStop(); err != nil {
			return errorReply(err)
		}
	}
	return okReply(nil)
}

func (c *Controller) cmdRestart(name string) []byte {
	child, ok := c.children[name]
	if !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	c.scheduler.Cancel(name)
	if child.State() == childRunning {
		// handleExit's non-requested path would normally apply backoff; a
		// deliberate restart should not count as a crash, so mark it
		// requested and re-schedule immediately once exit is observed by
		// bypassing backoff here and scheduling for "now".
		if err := child.RequestStop(); err != nil {
			return errorReply(err)
		}
		c.scheduler.Schedule(name, child.Spec().StartPriority, time.Now())
		return okReply(nil)
	}
	c.scheduler.Schedule(name, child.Spec().StartPriority, time.Now())
	return okReply(nil)
}

func (c *Controller) cmdCancelRestart(name string) []byte {
	if _, ok := c.children[name]; !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	if !c.scheduler.Cancel(name) {
		return errorReply(fmt.Errorf("daemon %q has no pending restart", name))
	}
	if b, ok := c.backoffs[name]; ok {
		b.Reset()
	}
	return okReply(nil)
}

func (c *Controller) cmdListCommands(name string) []byte {
	child, ok := c.children[name]
	if !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	spec := child.Spec()
	return okReply(spec.ListedCommandNames())
}

func (c *Controller) cmdAdminCommand(name, command string) []byte {
	child, ok := c.children[name]
	if !ok {
		return errorReply(fmt.Errorf("no such daemon %q", name))
	}
	out, err := child.RunCommand(command)
	if err != nil {
		return errorReply(err)
	}
	return okReply(map[string]string{"output": string(out)})
}
