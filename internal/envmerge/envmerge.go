// Package envmerge builds the environment slice exec.Cmd needs from a
// declared mapping, honoring the rule that a daemon's declared environment
// replaces the parent process's environment rather than merging with it,
// while administrative commands inherit the owning daemon's environment
// and layer a few supervisor-provided variables on top.
package envmerge

import (
	"sort"
	"strings"
)

// Set is an immutable-by-convention K=V overlay, built up with With and
// rendered with Slice. Each With returns a new Set sharing the receiver's
// entries, mirroring the teacher's WithSet-style overlay chaining.
type Set struct {
	vars map[string]string
}

// FromMap builds a Set from a mapping, as read from a DaemonSpec's
// `environment` field. A nil map yields a nil-backed Set (see Slice).
func FromMap(m map[string]string) Set {
	if m == nil {
		return Set{}
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Set{vars: cp}
}

// FromSlice parses "K=V" pairs, as used by administrative-command overlays.
func FromSlice(pairs []string) Set {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			m[k] = kv[i+1:]
		}
	}
	return Set{vars: m}
}

// With returns a new Set with k=v layered over the receiver.
func (s Set) With(k, v string) Set {
	m := make(map[string]string, len(s.vars)+1)
	for kk, vv := range s.vars {
		m[kk] = vv
	}
	m[k] = v
	return Set{vars: m}
}

// IsDeclared reports whether the set was built from an explicit mapping
// (possibly empty) as opposed to an absent `environment` field. Callers use
// this to distinguish "replace with nothing" from "inherit the parent".
func (s Set) IsDeclared() bool { return s.vars != nil }

// Slice renders the set as "K=V" strings in sorted key order, for
// deterministic exec.Cmd.Env and for structural spec-equality comparisons.
func (s Set) Slice() []string {
	if s.vars == nil {
		return nil
	}
	out := make([]string, 0, len(s.vars))
	for k, v := range s.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
