package hailerter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/seismometer/toolbox/internal/wire"
)

func testMainLoop(t *testing.T, opts Options) (*MainLoop, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "hailerter.sock")
	ml, err := NewMainLoop(NewTracker(opts), sock, slog.New(slog.NewTextHandler(io.Discard, nil)).WithGroup("test"))
	if err != nil {
		t.Fatalf("NewMainLoop: %v", err)
	}
	return ml, sock
}

func TestMainLoopProcessesStdinAndWritesNotification(t *testing.T) {
	ml, _ := testMainLoop(t, Options{FlapWindow: 4, FlapThreshold: 0.5})

	input := strings.NewReader(`{"time":100,"aspect":"cpu","location":{"host":"h1"},"state":"high","severity":"error"}` + "\n")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ml.Run(ctx, input, &out) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after stdin EOF")
	}

	var n Notification
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatalf("expected one notification line, got empty output")
	}
	if err := json.Unmarshal([]byte(line), &n); err != nil {
		t.Fatalf("unmarshal notification: %v, output=%q", err, out.String())
	}
	if n.Aspect != "cpu" || n.Info.Status != StatusDegraded {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestMainLoopSkipsMalformedLines(t *testing.T) {
	ml, _ := testMainLoop(t, Options{FlapWindow: 4, FlapThreshold: 0.5})

	input := strings.NewReader("not json\n" + `{"time":100,"aspect":"cpu","location":{"host":"h1"},"state":"high","severity":"error"}` + "\n")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ml.Run(ctx, input, &out) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after stdin EOF")
	}

	if !strings.Contains(out.String(), `"status":"degraded"`) {
		t.Fatalf("expected the valid line to still produce a notification, got %q", out.String())
	}
}

func TestMainLoopControlSocketList(t *testing.T) {
	ml, sock := testMainLoop(t, Options{FlapWindow: 4, FlapThreshold: 0.5})

	// stdin stays open (Run returns at EOF) so the socket remains up.
	r, w := io.Pipe()
	var out bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ml.Run(ctx, r, &out) }()
	go func() {
		_, _ = w.Write([]byte(`{"time":100,"aspect":"cpu","location":{"host":"h1"},"state":"high","severity":"error"}` + "\n"))
	}()

	deadline := time.Now().Add(2 * time.Second)
	var reply []byte
	var err error
	for time.Now().Before(deadline) {
		reply, err = wire.DialAndRoundTrip(sock, []byte(`{"command":"list"}`))
		if err == nil && strings.Contains(string(reply), `"Aspect":"cpu"`) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !strings.Contains(string(reply), `"Aspect":"cpu"`) {
		t.Fatalf("expected cpu flow listed, got %s", reply)
	}

	cancel()
	_ = w.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("main loop did not shut down in time")
	}
}

func TestMainLoopSweepEmitsMissingNotification(t *testing.T) {
	ml, _ := testMainLoop(t, Options{FlapWindow: 4, FlapThreshold: 0.5, DefaultInterval: time.Second, Missing: 1})

	r, w := io.Pipe()
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ml.Run(ctx, r, &out) }()

	_, _ = w.Write([]byte(`{"time":` + nowSeconds() + `,"aspect":"cpu","location":{"host":"h1"},"state":"high","severity":"error"}` + "\n"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), `"missing"`) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !strings.Contains(out.String(), `"missing"`) {
		t.Fatalf("expected a missing notification from the sweep tick, got %q", out.String())
	}

	cancel()
	_ = w.Close()
	<-done
}

func nowSeconds() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
