package daemonshepherd

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// fileConfig mirrors the YAML specfile shape (spec §6): a top-level
// `defaults` section merged into every daemon, and a `daemons` mapping.
// Loaded the same way the teacher's config.FileConfig loads TOML — a
// fresh viper instance, SetConfigType, Unmarshal — with "toml" swapped
// for "yaml".
type fileConfig struct {
	Defaults *daemonFileEntry            `mapstructure:"defaults"`
	Daemons  map[string]daemonFileEntry  `mapstructure:"daemons"`
}

type stopFileEntry struct {
	Signal       string   `mapstructure:"signal"`
	ProcessGroup bool     `mapstructure:"process_group"`
	Command      string   `mapstructure:"command"`
	CommandArgv  []string `mapstructure:"command_argv"`
}

type commandFileEntry struct {
	User         string            `mapstructure:"user"`
	Group        []string          `mapstructure:"group"`
	Cwd          string            `mapstructure:"cwd"`
	Environment  map[string]string `mapstructure:"environment"`
	Argv0        string            `mapstructure:"argv0"`
	Command      string            `mapstructure:"command"`
	CommandArgv  []string          `mapstructure:"command_argv"`
	Signal       string            `mapstructure:"signal"`
	ProcessGroup bool              `mapstructure:"process_group"`
}

// daemonFileEntry is the per-daemon YAML shape. StartPriority is a pointer
// so the loader can tell "absent" (apply DefaultStartPriority) apart from
// an explicit 0, mirroring the teacher's ProcConfig.Singleton *bool.
type daemonFileEntry struct {
	StartCommand  string                      `mapstructure:"start_command"`
	StartArgv     []string                     `mapstructure:"start_argv"`
	Argv0         string                       `mapstructure:"argv0"`
	Stop          *stopFileEntry               `mapstructure:"stop"`
	Environment   map[string]string            `mapstructure:"environment"`
	Cwd           string                       `mapstructure:"cwd"`
	User          string                       `mapstructure:"user"`
	Group         []string                     `mapstructure:"group"`
	Stdout        string                       `mapstructure:"stdout"`
	Restart       []int                        `mapstructure:"restart"`
	StartPriority *int                         `mapstructure:"start_priority"`
	Commands      map[string]commandFileEntry  `mapstructure:"commands"`
}

// LoadFile parses a YAML specfile at path into a name-sorted slice of
// DaemonSpecs, defaults applied and validated.
func LoadFile(path string) ([]DaemonSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read specfile: %w", err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse specfile: %w", err)
	}
	return fc.toSpecs()
}

func (fc fileConfig) toSpecs() ([]DaemonSpec, error) {
	names := make([]string, 0, len(fc.Daemons))
	for name := range fc.Daemons {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]DaemonSpec, 0, len(names))
	for _, name := range names {
		entry := mergeDefaults(fc.Defaults, fc.Daemons[name])
		spec := entry.toSpec(name)
		spec.ApplyDefaults()
		if entry.StartPriority != nil {
			spec.StartPriority = *entry.StartPriority
		} else {
			spec.StartPriority = DefaultStartPriority
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// mergeDefaults overlays an explicit daemon entry on top of the top-level
// `defaults` section; each field other than Commands that the daemon entry
// left zero-valued falls back to the default's value. Commands are not
// taken from the defaults.
func mergeDefaults(def *daemonFileEntry, entry daemonFileEntry) daemonFileEntry {
	if def == nil {
		return entry
	}
	out := entry
	if out.StartCommand == "" && len(out.StartArgv) == 0 {
		out.StartCommand, out.StartArgv = def.StartCommand, def.StartArgv
	}
	if out.Argv0 == "" {
		out.Argv0 = def.Argv0
	}
	if out.Stop == nil {
		out.Stop = def.Stop
	}
	if out.Environment == nil {
		out.Environment = def.Environment
	}
	if out.Cwd == "" {
		out.Cwd = def.Cwd
	}
	if out.User == "" {
		out.User = def.User
	}
	if len(out.Group) == 0 {
		out.Group = def.Group
	}
	if out.Stdout == "" {
		out.Stdout = def.Stdout
	}
	if len(out.Restart) == 0 {
		out.Restart = def.Restart
	}
	if out.StartPriority == nil {
		out.StartPriority = def.StartPriority
	}
	return out
}

func (e daemonFileEntry) toSpec(name string) DaemonSpec {
	spec := DaemonSpec{
		Name:         name,
		StartCommand: e.StartCommand,
		StartArgv:    e.StartArgv,
		Argv0:        e.Argv0,
		Environment:  e.Environment,
		Cwd:          e.Cwd,
		User:         e.User,
		Group:        e.Group,
		Stdout:       StdoutMode(e.Stdout),
		Restart:      e.Restart,
	}
	if e.Stop != nil {
		spec.Stop = StopSpec{
			Signal:       e.Stop.Signal,
			ProcessGroup: e.Stop.ProcessGroup,
			Command:      e.Stop.Command,
			CommandArgv:  e.Stop.CommandArgv,
		}
	}
	if len(e.Commands) > 0 {
		spec.Commands = make(map[string]CommandSpec, len(e.Commands))
		for cname, c := range e.Commands {
			spec.Commands[cname] = CommandSpec{
				User:         c.User,
				Group:        c.Group,
				Cwd:          c.Cwd,
				Environment:  c.Environment,
				Argv0:        c.Argv0,
				Command:      c.Command,
				CommandArgv:  c.CommandArgv,
				Signal:       c.Signal,
				ProcessGroup: c.ProcessGroup,
			}
		}
	}
	return spec
}

// Diff describes the outcome of comparing a freshly loaded spec set
// against the specs currently running, for hot-reload (spec §4.3).
type Diff struct {
	Added   []DaemonSpec
	Removed []DaemonSpec
	Changed []DaemonSpec // new version; old is looked up by Name by the caller
}

// DiffSpecs computes Diff for reload: removed daemons present in cur but
// absent from next; added daemons the reverse; changed daemons present in
// both but not Equal. Unchanged daemons (present, Equal) appear in
// neither list, per spec: "Unchanged daemons are untouched even if
// currently in backoff."
func DiffSpecs(cur, next []DaemonSpec) Diff {
	curByName := make(map[string]DaemonSpec, len(cur))
	for _, s := range cur {
		curByName[s.Name] = s
	}
	nextByName := make(map[string]DaemonSpec, len(next))
	for _, s := range next {
		nextByName[s.Name] = s
	}

	var d Diff
	for _, s := range next {
		old, existed := curByName[s.Name]
		if !existed {
			d.Added = append(d.Added, s)
			continue
		}
		if !old.Equal(s) {
			d.Changed = append(d.Changed, s)
		}
	}
	for _, s := range cur {
		if _, stillThere := nextByName[s.Name]; !stillThere {
			d.Removed = append(d.Removed, s)
		}
	}
	return d
}
