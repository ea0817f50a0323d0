package daemonshepherd

import (
	"container/heap"
	"time"
)

// restartEntry is one pending scheduled (re)start, ordered by due time
// first, then by the daemon's configured start priority, then by name for
// determinism (spec §4.1: "daemons with a lower start_priority value start
// first; ties broken by name").
type restartEntry struct {
	name     string
	priority int
	due      time.Time
	index    int // heap.Interface bookkeeping
}

// restartQueue is a min-heap of pending (re)starts, the idiomatic Go
// analog of provisr's sequential priority-sorted startup pass, generalized
// here to also carry backoff-delayed restarts rather than just the
// initial batch.
type restartQueue []*restartEntry

func (q restartQueue) Len() int { return len(q) }

func (q restartQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].name < q[j].name
}

func (q restartQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *restartQueue) Push(x any) {
	e := x.(*restartEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *restartQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// RestartScheduler tracks the single pending entry per daemon name and
// exposes the operations the controller's event loop needs: schedule,
// cancel, and "pop everything due by now".
type RestartScheduler struct {
	q       restartQueue
	byName  map[string]*restartEntry
}

func NewRestartScheduler() *RestartScheduler {
	s := &RestartScheduler{byName: make(map[string]*restartEntry)}
	heap.Init(&s.q)
	return s
}

// Schedule enqueues (or reschedules) name to start at due with priority.
// Scheduling a name that already has a pending entry replaces it, matching
// "cancel_restart then start" semantics needed by reload and admin
// control (spec §4.4 cancel_restart).
func (s *RestartScheduler) Schedule(name string, priority int, due time.Time) {
	s.Cancel(name)
	e := &restartEntry{name: name, priority: priority, due: due}
	heap.Push(&s.q, e)
	s.byName[name] = e
}

// Cancel removes name's pending entry, if any. Reports whether one existed.
func (s *RestartScheduler) Cancel(name string) bool {
	e, ok := s.byName[name]
	if !ok {
		return false
	}
	heap.Remove(&s.q, e.index)
	delete(s.byName, name)
	return true
}

// Pending reports whether name currently has a scheduled (re)start.
func (s *RestartScheduler) Pending(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// NextDue returns the due time of the earliest pending entry, and false if
// the queue is empty. The controller uses this to compute its select
// deadline.
func (s *RestartScheduler) NextDue() (time.Time, bool) {
	if len(s.q) == 0 {
		return time.Time{}, false
	}
	return s.q[0].due, true
}

// PopDue removes and returns every entry due at or before now, in
// due-then-priority-then-name order.
func (s *RestartScheduler) PopDue(now time.Time) []string {
	var names []string
	for len(s.q) > 0 && !s.q[0].due.After(now) {
		e := heap.Pop(&s.q).(*restartEntry)
		delete(s.byName, e.name)
		names = append(names, e.name)
	}
	return names
}

// backoffState tracks, per daemon, how many consecutive times it has
// crashed without achieving a stable run, so the controller can advance
// or reset BackoffDelay's index (spec §3.1, §9: "a daemon that has been up
// for longer than its current backoff delay resets to index 0").
type backoffState struct {
	idx       int
	lastDelay int // seconds; the delay that scheduled the currently-running attempt
	lastStart time.Time
}

// Advance increments the backoff index, clamped by the spec's
// MaxBackoffIndex, and returns the delay in seconds to wait before the
// next restart attempt. The returned delay is also the one MaybeReset must
// judge the next run's dwell time against, since it is the delay that
// scheduled that run.
func (b *backoffState) Advance(spec DaemonSpec) int {
	delay := spec.BackoffDelay(b.idx)
	b.lastDelay = delay
	if b.idx < spec.MaxBackoffIndex() {
		b.idx++
	}
	return delay
}

// MaybeReset resets the backoff index to 0 if the daemon was up for at
// least as long as the delay that scheduled its current run, treating that
// as a "successful" run that shouldn't count against future crashes. It
// uses lastDelay rather than recomputing from the current idx, since idx
// has already advanced past the value that scheduled this run.
func (b *backoffState) MaybeReset(spec DaemonSpec, uptime time.Duration) {
	threshold := time.Duration(b.lastDelay) * time.Second
	if uptime >= threshold {
		b.idx = 0
	}
}

// Reset zeroes the backoff index and the recorded scheduling delay,
// used when an operator manually stops a daemon or cancels a pending
// restart (spec §4.2 state table: "stop / cancel-restart -> stopped
// (backoff_index = 0)").
func (b *backoffState) Reset() {
	b.idx = 0
	b.lastDelay = 0
}
