package wire

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestServeOneShotRequestReply(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	reqCh := make(chan Request)
	go func() { _ = Serve(ln, reqCh) }()
	go func() {
		req := <-reqCh
		cmd, err := DecodeCommand(req.Line)
		if err != nil || cmd != "ping" {
			req.Reply <- []byte(`{"status":"error","reason":"bad"}`)
			return
		}
		req.Reply <- []byte(`{"status":"ok"}`)
	}()

	conn, err := net.DialTimeout("unix", sock, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("{\"command\":\"ping\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var reply map[string]string
	if err := json.Unmarshal(line, &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reply["status"] != "ok" {
		t.Fatalf("unexpected reply: %v", reply)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "stale.sock")
	ln1, err := Listen(sock)
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	_ = ln1.ln.Close() // simulate unclean exit: leaves the socket file behind

	ln2, err := Listen(sock)
	if err != nil {
		t.Fatalf("second listen should clean up stale socket file: %v", err)
	}
	_ = ln2.Close()
}

func TestDialAndRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "rt.sock")
	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	reqCh := make(chan Request)
	go func() { _ = Serve(ln, reqCh) }()
	go func() {
		req := <-reqCh
		req.Reply <- []byte(`{"result":[]}`)
	}()

	out, err := DialAndRoundTrip(sock, []byte(`{"command":"list"}`))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if _, ok := v["result"]; !ok {
		t.Fatalf("expected result field, got %v", v)
	}
}
