package daemonshepherd

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/seismometer/toolbox/internal/wire"
)

func testController(t *testing.T, specs []DaemonSpec) (*Controller, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	for i := range specs {
		specs[i].ApplyDefaults()
	}
	c, err := NewController(specs, ControllerOptions{
		SocketPath: sock,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)).WithGroup("test"),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, sock
}

func roundTrip(t *testing.T, sock string, req string) string {
	t.Helper()
	out, err := wire.DialAndRoundTrip(sock, []byte(req))
	if err != nil {
		t.Fatalf("round trip %s: %v", req, err)
	}
	return string(out)
}

func TestControllerStartsAndListsDaemon(t *testing.T) {
	specs := []DaemonSpec{{
		Name:         "sleeper",
		StartCommand: "sleep 30",
		Stop:         StopSpec{Signal: "TERM"},
	}}
	c, sock := testController(t, specs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadlineAt := time.Now().Add(2 * time.Second)
	var list string
	for time.Now().Before(deadlineAt) {
		list = roundTrip(t, sock, `{"command":"list"}`)
		if contains(list, `"state":"running"`) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !contains(list, `"state":"running"`) {
		t.Fatalf("expected sleeper to be running, got %s", list)
	}

	reply := roundTrip(t, sock, `{"command":"stop","name":"sleeper"}`)
	if !contains(reply, `"status":"ok"`) {
		t.Fatalf("expected stop to succeed, got %s", reply)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("controller did not shut down in time")
	}
}

func TestControllerUnknownCommandErrors(t *testing.T) {
	specs := []DaemonSpec{{Name: "noop", StartCommand: "/bin/true"}}
	c, sock := testController(t, specs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	reply := roundTrip(t, sock, `{"command":"bogus"}`)
	if !contains(reply, `"status":"error"`) {
		t.Fatalf("expected error reply for unknown command, got %s", reply)
	}
}

func TestControllerCancelRestartWithoutPendingErrors(t *testing.T) {
	specs := []DaemonSpec{{Name: "noop", StartCommand: "/bin/true"}}
	c, sock := testController(t, specs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	time.Sleep(200 * time.Millisecond) // let /bin/true run to completion and its restart get scheduled

	// cancel the pending restart, then cancel again: the second must error.
	_ = roundTrip(t, sock, `{"command":"cancel_restart","name":"noop"}`)
	reply := roundTrip(t, sock, `{"command":"cancel_restart","name":"noop"}`)
	if !contains(reply, `"status":"error"`) {
		t.Fatalf("expected second cancel_restart to error, got %s", reply)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
