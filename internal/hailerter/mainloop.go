package hailerter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seismometer/toolbox/internal/history"
	"github.com/seismometer/toolbox/internal/wire"
)

// sweepTick is the fixed one-second sweep cadence (spec §5: "a one-second
// recurring alarm drives hailerter's timeout sweep").
const sweepTick = time.Second

// MainLoop wires a Tracker to stdin/stdout and the control socket,
// implementing the single-threaded cooperative event loop of spec §4.3's
// daemonshepherd analog restated for hailerter in §5: "suspension points
// are exactly the multiplexer call".
type MainLoop struct {
	tracker  *Tracker
	listener *wire.Listener
	log      *slog.Logger
	metrics  *Metrics
	hist     *history.Sink

	lines chan []byte
	errs  chan error
}

// WithMetrics attaches a Prometheus collector set; nil (the default) means
// no metrics are recorded.
func (m *MainLoop) WithMetrics(metrics *Metrics) *MainLoop {
	m.metrics = metrics
	return m
}

// WithHistory attaches a history sink; a nil *history.Sink is safe to pass
// (its Send is a no-op), so this can always be called unconditionally.
func (m *MainLoop) WithHistory(hist *history.Sink) *MainLoop {
	m.hist = hist
	return m
}

// NewMainLoop builds a MainLoop bound to a control socket at socketPath.
func NewMainLoop(tracker *Tracker, socketPath string, log *slog.Logger) (*MainLoop, error) {
	ln, err := wire.Listen(socketPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &MainLoop{
		tracker:  tracker,
		listener: ln,
		log:      log,
		lines:    make(chan []byte, 64),
		errs:     make(chan error, 1),
	}, nil
}

// Run drives the event loop, reading stdin until EOF or ctx cancellation.
// out is where notification lines are written (os.Stdout in production,
// a buffer in tests).
func (m *MainLoop) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() { _ = m.listener.Close() }()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reqCh := make(chan wire.Request)
	go func() { _ = wire.Serve(m.listener, reqCh) }()

	go m.readLines(in)

	ticker := time.NewTicker(sweepTick)
	defer ticker.Stop()

	writer := bufio.NewWriter(out)
	defer func() { _ = writer.Flush() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sigCh:
			return nil

		case line, open := <-m.lines:
			if !open {
				return nil // stdin closed: drain and exit per spec §7 input-line handling
			}
			msg, err := ParseMessage(line)
			if err != nil {
				m.log.Error("malformed input line", "error", err)
				continue
			}
			if m.metrics != nil {
				m.metrics.RecordMessage(msg.HasState())
			}
			notes, err := m.tracker.Process(msg, time.Now())
			if err != nil {
				m.log.Error("failed to process message", "error", err)
				continue
			}
			if err := m.emit(writer, notes); err != nil {
				return mapWriteErr(err) // EPIPE: orderly shutdown, spec §5/§7
			}

		case err := <-m.errs:
			if err != nil {
				m.log.Error("stdin read error", "error", err)
			}
			return err

		case req := <-reqCh:
			m.handleRequest(req)

		case <-ticker.C:
			notes := m.tracker.Sweep(time.Now())
			if m.metrics != nil {
				m.metrics.SetFlowCount(len(m.tracker.flows))
			}
			if err := m.emit(writer, notes); err != nil {
				return mapWriteErr(err)
			}
		}
	}
}

func (m *MainLoop) emit(w *bufio.Writer, notes []Notification) error {
	for _, n := range notes {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.RecordNotification(n.Info.Status)
		}
		m.recordHistory(n)
	}
	if len(notes) > 0 {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MainLoop) recordHistory(n Notification) {
	if m.hist == nil {
		return
	}
	detail, err := json.Marshal(n.Info)
	if err != nil {
		return
	}
	subject := n.Aspect
	if id, err := NewFlowID(n.Aspect, n.Location); err == nil {
		subject = id.String()
	}
	_ = m.hist.Send(context.Background(), history.Event{
		Kind: "flow_notify", Subject: subject, Detail: detail, OccurredAt: time.Unix(n.Time, 0),
	})
}

// mapWriteErr treats EPIPE on stdout as an orderly shutdown signal rather
// than an error to surface (spec §5, §7): Run returns nil for it.
func mapWriteErr(err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func (m *MainLoop) readLines(in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		m.lines <- line
	}
	if err := scanner.Err(); err != nil {
		m.errs <- err
		return
	}
	close(m.lines)
}
