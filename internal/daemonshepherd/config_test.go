package daemonshepherd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpecfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemons.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write specfile: %v", err)
	}
	return path
}

func TestLoadFileBasic(t *testing.T) {
	path := writeSpecfile(t, `
daemons:
  web:
    start_command: "web-server --port 8080"
    stop:
      signal: TERM
  worker:
    start_argv: ["worker", "--queue", "default"]
    start_priority: 0
`)
	specs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	// sorted by name: web, worker
	if specs[0].Name != "web" || specs[1].Name != "worker" {
		t.Fatalf("expected name-sorted order, got %s, %s", specs[0].Name, specs[1].Name)
	}
	if specs[0].StartPriority != DefaultStartPriority {
		t.Fatalf("expected default start priority for web, got %d", specs[0].StartPriority)
	}
	if specs[1].StartPriority != 0 {
		t.Fatalf("expected explicit start_priority 0 preserved for worker, got %d", specs[1].StartPriority)
	}
	if specs[0].Stop.Signal != "TERM" {
		t.Fatalf("expected stop signal TERM, got %q", specs[0].Stop.Signal)
	}
}

func TestLoadFileDefaultsSectionMerges(t *testing.T) {
	path := writeSpecfile(t, `
defaults:
  user: deploy
  restart: [0, 1, 2]
daemons:
  web:
    start_command: "web-server"
  batch:
    start_command: "batch-runner"
    user: batchuser
`)
	specs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	byName := map[string]DaemonSpec{}
	for _, s := range specs {
		byName[s.Name] = s
	}
	if byName["web"].User != "deploy" {
		t.Fatalf("expected web to inherit default user, got %q", byName["web"].User)
	}
	if byName["batch"].User != "batchuser" {
		t.Fatalf("expected batch's explicit user to win, got %q", byName["batch"].User)
	}
	if len(byName["web"].Restart) != 3 {
		t.Fatalf("expected web to inherit default restart sequence, got %v", byName["web"].Restart)
	}
}

func TestLoadFileRejectsInvalidSpec(t *testing.T) {
	path := writeSpecfile(t, `
daemons:
  broken:
    start_command: ""
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error for daemon with no start command")
	}
}

func TestDiffSpecsAddedRemovedChangedUnchanged(t *testing.T) {
	cur := []DaemonSpec{
		{Name: "a", StartCommand: "a-bin"},
		{Name: "b", StartCommand: "b-bin"},
		{Name: "c", StartCommand: "c-bin"},
	}
	next := []DaemonSpec{
		{Name: "a", StartCommand: "a-bin"},          // unchanged
		{Name: "b", StartCommand: "b-bin-v2"},        // changed
		{Name: "d", StartCommand: "d-bin"},           // added
		// "c" removed
	}
	d := DiffSpecs(cur, next)
	if len(d.Added) != 1 || d.Added[0].Name != "d" {
		t.Fatalf("expected d added, got %+v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].Name != "c" {
		t.Fatalf("expected c removed, got %+v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Name != "b" {
		t.Fatalf("expected b changed, got %+v", d.Changed)
	}
}
