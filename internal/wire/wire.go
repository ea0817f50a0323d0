// Package wire implements the transport shared by daemonshepherd's and
// hailerter's administrative control sockets: a Unix-domain stream listener
// that accepts a connection, reads exactly one JSON line, hands it to the
// owning event loop for dispatch, writes exactly one JSON reply line back,
// and closes the connection (spec §4.4/§4.7/§6).
package wire

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
)

// Request is one accepted connection's line, handed to the owning loop for
// dispatch. The loop decides the reply shape (the two programs use
// different envelopes) and sends exactly one reply on Reply.
type Request struct {
	Line  []byte
	Reply chan<- []byte
}

// Listener wraps a Unix-domain socket listener bound to a filesystem path,
// unlinking the path on Close as spec §5 requires.
type Listener struct {
	ln   net.Listener
	path string
}

// Listen binds a Unix-domain socket at path, removing a stale socket file
// left over from an unclean previous exit first.
func Listen(path string) (*Listener, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, path: path}, nil
}

// Close closes the listener and unlinks the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}

// Path returns the filesystem path this listener is bound to.
func (l *Listener) Path() string { return l.path }

// Serve runs the accept loop until the listener is closed, sending one
// Request per accepted connection on reqCh. It returns when Accept fails
// (normally because Close was called). It never blocks the caller's event
// loop: all socket I/O happens in per-connection goroutines spawned here,
// matching the child-exit-notification idiom used elsewhere in these
// programs (a short-lived goroutine that can only ever do one blocking
// thing, feeding a channel the owning loop selects on).
func Serve(l *Listener, reqCh chan<- Request) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go handleConn(conn, reqCh)
	}
}

func handleConn(conn net.Conn, reqCh chan<- Request) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}
	reply := make(chan []byte, 1)
	reqCh <- Request{Line: line, Reply: reply}
	out := <-reply
	out = append(out, '\n')
	_, _ = conn.Write(out)
}

// DecodeCommand extracts just the top-level "command" field from a request
// line, for handler-table dispatch, leaving full field decoding to the
// caller's own request struct.
func DecodeCommand(line []byte) (string, error) {
	var probe struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return "", err
	}
	return probe.Command, nil
}

// DialAndRoundTrip is the client-side counterpart: dial path, write req as
// one JSON line (a trailing newline is added if missing), and read back
// exactly one reply line.
// It is used by both CLI clients.
func DialAndRoundTrip(path string, req []byte) ([]byte, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	if len(req) == 0 || req[len(req)-1] != '\n' {
		req = append(req, '\n')
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return line, nil
}
