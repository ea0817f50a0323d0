package daemonshepherd

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChildStartAndStop(t *testing.T) {
	spec := DaemonSpec{Name: "sleeper", StartCommand: "sleep 30", Stop: StopSpec{Signal: "TERM"}}
	c := NewChild(spec, testLogger())
	exitCh := make(chan exitResult, 1)
	if err := c.Start(nil, nil, exitCh); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != childRunning {
		t.Fatalf("expected running state after start")
	}
	if c.PID() == 0 {
		t.Fatalf("expected nonzero pid after start")
	}
	if err := c.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	select {
	case res := <-exitCh:
		if res.name != "sleeper" {
			t.Fatalf("unexpected exit result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("child did not exit after SIGTERM")
	}
}

func TestChildRunCommandCapturesOutput(t *testing.T) {
	spec := DaemonSpec{
		Name:         "noop",
		StartCommand: "/bin/true",
		Commands: map[string]CommandSpec{
			"echo-hi": {Command: "echo hi"},
		},
	}
	c := NewChild(spec, testLogger())
	out, err := c.RunCommand("echo-hi")
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if string(out) != "hi\n" {
		t.Fatalf("expected captured output %q, got %q", "hi\n", out)
	}
}

func TestChildRunCommandUnknownName(t *testing.T) {
	spec := DaemonSpec{Name: "noop", StartCommand: "/bin/true"}
	c := NewChild(spec, testLogger())
	if _, err := c.RunCommand("missing"); err == nil {
		t.Fatalf("expected error for unknown command name")
	}
}

func TestChildResolvedEnvReplacesWhenDeclared(t *testing.T) {
	spec := DaemonSpec{Name: "web", StartCommand: "/bin/true", Environment: map[string]string{"ONLY": "this"}}
	c := NewChild(spec, testLogger())
	env := c.resolvedEnv().Slice()
	if len(env) != 1 || env[0] != "ONLY=this" {
		t.Fatalf("expected declared environment to fully replace parent env, got %v", env)
	}
}

func TestChildStartStdoutLogRoutesLinesToLoggerAndMirror(t *testing.T) {
	var logBuf, mirrorBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, nil))

	spec := DaemonSpec{Name: "chatty", StartCommand: "printf 'hello\\nworld\\n'", Stdout: StdoutLog}
	c := NewChild(spec, log)
	exitCh := make(chan exitResult, 1)
	if err := c.Start(&mirrorBuf, &mirrorBuf, exitCh); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-exitCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("child did not exit")
	}
	// readLines' goroutines race the exit notification; give them a moment
	// to drain before asserting on the buffers.
	deadline := time.Now().Add(time.Second)
	for mirrorBuf.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if !strings.Contains(mirrorBuf.String(), "hello") || !strings.Contains(mirrorBuf.String(), "world") {
		t.Fatalf("expected both lines mirrored, got %q", mirrorBuf.String())
	}
	if !strings.Contains(logBuf.String(), "daemon.chatty") || !strings.Contains(logBuf.String(), "hello") {
		t.Fatalf("expected lines logged under daemon.chatty channel, got %q", logBuf.String())
	}
}

func TestChildResolvedEnvInheritsWhenUndeclared(t *testing.T) {
	spec := DaemonSpec{Name: "web", StartCommand: "/bin/true"}
	c := NewChild(spec, testLogger())
	env := c.resolvedEnv().Slice()
	if len(env) == 0 {
		t.Fatalf("expected undeclared environment to inherit parent env (non-empty)")
	}
}
