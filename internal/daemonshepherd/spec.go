// Package daemonshepherd implements the process supervisor core: the
// DaemonSpec data model, the child handle, the restart queue, the control
// socket, and the controller event loop (spec §3.1, §4.1-§4.4).
package daemonshepherd

import (
	"fmt"
	"reflect"
)

// StdoutMode selects where a child's captured stdout/stderr goes.
type StdoutMode string

const (
	StdoutConsole StdoutMode = "console"
	StdoutDevNull StdoutMode = "devnull"
	StdoutLog     StdoutMode = "log"
)

// DefaultRestart is the tail-repeating backoff sequence used when a
// DaemonSpec doesn't declare its own (spec §3.1).
var DefaultRestart = []int{0, 5, 15, 30, 60}

// DefaultStartPriority is used when a DaemonSpec doesn't declare one.
const DefaultStartPriority = 10

// Reserved command names within DaemonSpec.Commands. "stop" collides with
// the dedicated stop operation (configured via DaemonSpec.Stop, not
// Commands); "before-start" and "after-crash" are hooks invoked
// automatically by the child handle and restart queue rather than through
// run_command/admin_command.
const (
	CommandBeforeStart = "before-start"
	CommandAfterCrash  = "after-crash"
	commandStopName    = "stop"
)

// StopSpec describes how to stop a child. Command (and CommandArgv) wins
// over Signal when both are present, per spec §3.1.
type StopSpec struct {
	Signal       string // signal name (e.g. "TERM") or number; "" means unset
	ProcessGroup bool
	Command      string
	CommandArgv  []string
}

// HasCommand reports whether a custom stop command was declared.
func (s StopSpec) HasCommand() bool {
	return s.Command != "" || len(s.CommandArgv) > 0
}

// CommandSpec is an administrative sub-command (including the before-start
// and after-crash hooks). Fields left zero inherit from the owning
// DaemonSpec, except Command/CommandArgv/Signal which have no daemon
// analog to inherit from.
type CommandSpec struct {
	User         string
	Group        []string
	Cwd          string
	Environment  map[string]string // nil = inherit daemon's resolved environment
	Argv0        string
	Command      string
	CommandArgv  []string
	Signal       string
	ProcessGroup bool
}

// IsExec reports whether this sub-spec runs a command (as opposed to
// sending a signal, used only for the implicit "stop" shape reused by
// CommandSpec when constructed from a DaemonSpec.Stop).
func (c CommandSpec) IsExec() bool {
	return c.Command != "" || len(c.CommandArgv) > 0
}

// DaemonSpec is the declared configuration of one supervised process
// (spec §3.1). Equality between two DaemonSpecs (via Equal) excludes
// nothing but the Name-keyed map position — Name is itself a field, since
// two same-named specs are compared field-by-field by the reload differ.
type DaemonSpec struct {
	Name          string
	StartCommand  string
	StartArgv     []string
	Argv0         string
	Stop          StopSpec
	Environment   map[string]string // nil = inherit parent env; declared = replaces it
	Cwd           string
	User          string
	Group         []string
	Stdout        StdoutMode
	Restart       []int
	StartPriority int
	Commands      map[string]CommandSpec
}

// ApplyDefaults fills Restart/Stdout when the spec left them unset
// (StartPriority is left as is). Called once after parsing, before the spec is handed to the
// controller, so Equal never has to reason about "unset vs default".
func (d *DaemonSpec) ApplyDefaults() {
	if len(d.Restart) == 0 {
		d.Restart = append([]int(nil), DefaultRestart...)
	}
	if d.StartPriority == 0 {
		// Only filled by the config loader when the YAML field was absent;
		// see daemonFileEntry's use of *int to distinguish 0 from unset.
	}
	if d.Stdout == "" {
		d.Stdout = StdoutConsole
	}
}

// Validate rejects structurally invalid specs: negative restart delays,
// and a "stop" key inside Commands, which collides with the dedicated
// Stop field (spec §3.1: "Reserved names: stop, before-start, after-crash").
func (d *DaemonSpec) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("daemon spec missing name")
	}
	if d.StartCommand == "" && len(d.StartArgv) == 0 {
		return fmt.Errorf("daemon %s: start_command required", d.Name)
	}
	for _, secs := range d.Restart {
		if secs < 0 {
			return fmt.Errorf("daemon %s: restart delays must be non-negative", d.Name)
		}
	}
	if _, bad := d.Commands[commandStopName]; bad {
		return fmt.Errorf("daemon %s: commands.stop is reserved; use the top-level stop field", d.Name)
	}
	return nil
}

// BackoffDelay returns the backoff delay in seconds for the given index,
// clamped to the tail of Restart (the sequence repeats its last value
// indefinitely once exhausted, spec §3.1).
func (d *DaemonSpec) BackoffDelay(idx int) int {
	if len(d.Restart) == 0 {
		return 0
	}
	if idx >= len(d.Restart) {
		idx = len(d.Restart) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return d.Restart[idx]
}

// MaxBackoffIndex is the highest valid index into Restart.
func (d *DaemonSpec) MaxBackoffIndex() int {
	if len(d.Restart) == 0 {
		return 0
	}
	return len(d.Restart) - 1
}

// ResolvedCommandSpec returns the CommandSpec for name with daemon-level
// defaults applied to any zero-valued inheriting fields, plus ok=false if
// name isn't declared.
func (d *DaemonSpec) ResolvedCommandSpec(name string) (CommandSpec, bool) {
	cs, ok := d.Commands[name]
	if !ok {
		return CommandSpec{}, false
	}
	if cs.User == "" {
		cs.User = d.User
	}
	if len(cs.Group) == 0 {
		cs.Group = d.Group
	}
	if cs.Cwd == "" {
		cs.Cwd = d.Cwd
	}
	if cs.Argv0 == "" {
		cs.Argv0 = d.Argv0
	}
	if cs.Environment == nil {
		cs.Environment = d.Environment
	}
	return cs, true
}

// Equal reports whether two specs are structurally identical, excluding no
// fields (Name included) — this is how hot-reload decides a daemon is
// unchanged (spec §4.3, §9 "define value equality over the DaemonSpec
// fields explicitly; do not depend on field ordering in the source YAML").
// reflect.DeepEqual is sufficient here because every field is itself a
// plain comparable-by-value type (strings, ints, slices/maps of such), so
// there is no ordering-sensitive backing representation to normalize.
func (d DaemonSpec) Equal(o DaemonSpec) bool {
	return reflect.DeepEqual(d, o)
}

// ListedCommandNames returns the admin-command names runnable via
// run_command/admin_command: every Commands key except the hooks.
func (d *DaemonSpec) ListedCommandNames() []string {
	out := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		if name == CommandBeforeStart || name == CommandAfterCrash {
			continue
		}
		out = append(out, name)
	}
	return out
}
