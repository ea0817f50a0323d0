package hailerter

import (
	"container/heap"
	"time"
)

// Options bundles the tracker's tunables, all of which come from
// hailerter's CLI flags (spec §6).
type Options struct {
	WarningExpected  bool
	SkipInitialError bool
	RemindInterval   time.Duration // 0 = unset (no reminders)
	DefaultInterval  time.Duration // 0 = unset; used when a message omits `interval`
	Missing          int           // multiplier; 0 = missing detection disabled
	FlapWindow       int
	FlapThreshold    float64
}

// timeoutEntry is one pending missing-detection deadline or missing-state
// reminder (spec §3.2 timeout queue; at most one entry per FlowID).
type timeoutEntry struct {
	id    FlowID
	due   time.Time
	index int
}

type timeoutQueue []*timeoutEntry

func (q timeoutQueue) Len() int            { return len(q) }
func (q timeoutQueue) Less(i, j int) bool  { return q[i].due.Before(q[j].due) }
func (q timeoutQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *timeoutQueue) Push(x any) {
	e := x.(*timeoutEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *timeoutQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// muteEntry is one pending mute expiry (spec §3.2 mute queue).
type muteEntry struct {
	id     FlowID
	expiry time.Time
	index  int
}

type muteQueue []*muteEntry

func (q muteQueue) Len() int           { return len(q) }
func (q muteQueue) Less(i, j int) bool { return q[i].expiry.Before(q[j].expiry) }
func (q muteQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *muteQueue) Push(x any) {
	e := x.(*muteEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *muteQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// MutedEntry describes one active mute, for list_muted (spec §4.7).
type MutedEntry struct {
	Aspect   string
	Location map[string]string
	Expires  time.Time
}

// FlowSummary describes one tracked flow, for list (spec §4.7).
type FlowSummary struct {
	Aspect   string
	Location map[string]string
	Info     Info
}

// Tracker owns the flow map and both priority queues; it is the
// single-owner state the hailerter main loop drives (spec §4.6, §9:
// "the main loop state ... must be owned by a single value").
type Tracker struct {
	opts Options

	flows   map[FlowID]*Flow
	timeout timeoutQueue
	timeoutByID map[FlowID]*timeoutEntry
	mute    muteQueue
	muteByID map[FlowID]*muteEntry
}

// NewTracker constructs an empty Tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		opts:        opts,
		flows:       make(map[FlowID]*Flow),
		timeoutByID: make(map[FlowID]*timeoutEntry),
		muteByID:    make(map[FlowID]*muteEntry),
	}
	heap.Init(&t.timeout)
	heap.Init(&t.mute)
	return t
}

func (t *Tracker) isMuted(id FlowID, now time.Time) bool {
	e, ok := t.muteByID[id]
	if !ok {
		return false
	}
	if !e.expiry.After(now) {
		t.unmuteEntry(id)
		return false
	}
	return true
}

func (t *Tracker) unmuteEntry(id FlowID) {
	e, ok := t.muteByID[id]
	if !ok {
		return
	}
	heap.Remove(&t.mute, e.index)
	delete(t.muteByID, id)
}

func (t *Tracker) rearmTimeout(id FlowID, due time.Time) {
	t.cancelTimeout(id)
	e := &timeoutEntry{id: id, due: due}
	heap.Push(&t.timeout, e)
	t.timeoutByID[id] = e
}

func (t *Tracker) cancelTimeout(id FlowID) bool {
	e, ok := t.timeoutByID[id]
	if !ok {
		return false
	}
	heap.Remove(&t.timeout, e.index)
	delete(t.timeoutByID, id)
	return true
}

// infoFor builds the wire Info payload for a resolved status. The
// internal Status stays "error" on the Flow (spec §3.2); the notification
// label is "degraded" (spec §6).
func infoFor(status Status, state string, severity string) Info {
	switch status {
	case StatusError:
		return Info{Status: StatusDegraded, State: state, Severity: severity}
	default:
		return Info{Status: status, State: state, Severity: severity}
	}
}

// Process applies one input message, returning zero or more notifications
// to emit (spec §4.6 steps 1-8). now is the wall-clock time used to bound
// future-dated messages and to stamp notifications/mutes.
func (t *Tracker) Process(msg Message, now time.Time) ([]Notification, error) {
	if !msg.HasState() {
		return nil, nil // dropped: metrics-only, spec §4.6
	}
	if now.Sub(time.Unix(msg.Time, 0)) < -5*time.Minute {
		return nil, nil // future-dated beyond margin, spec §3.2
	}

	id, err := NewFlowID(msg.Aspect, msg.Location)
	if err != nil {
		return nil, err
	}

	status := msg.ResolvedStatus(t.opts.WarningExpected)
	state := ""
	if msg.State != nil {
		state = *msg.State
	}
	severity := ""
	if msg.Severity != nil {
		severity = *msg.Severity
	} else {
		severity = string(SeverityExpected)
	}

	interval := t.opts.DefaultInterval
	if msg.Interval != nil {
		interval = time.Duration(*msg.Interval) * time.Second
	}
	if interval > 0 && t.opts.Missing > 0 {
		due := time.Unix(msg.Time, 0).Add(interval * time.Duration(t.opts.Missing))
		t.rearmTimeout(id, due)
	}

	flow, exists := t.flows[id]
	if !exists {
		flow = NewFlow(id, msg.Aspect, msg.Location, t.opts.FlapWindow)
		t.flows[id] = flow
	}

	old, ok := flow.Update(status, msg.Time, t.opts.FlapThreshold)
	if !ok {
		return nil, nil // out-of-order, discarded
	}

	newInfo := infoFor(status, state, severity)
	var notifications []Notification

	publish := func(info Info) {
		prev := flow.StatusInfo
		n := Notification{Time: now.Unix(), Aspect: msg.Aspect, Location: msg.Location, Info: info, Previous: prev}
		flow.StatusInfo = &info
		if !t.isMuted(id, now) {
			notifications = append(notifications, n)
		}
		flow.NotificationSent(now.Unix(), false)
	}

	switch {
	case flow.IsFlapping(t.opts.FlapThreshold):
		flappingInfo := Info{Status: StatusFlapping, Window: flow.FlapWindow(), Changes: flow.FlapChanges()}
		if old == StatusFlapping && flow.Notified != 0 {
			if t.opts.RemindInterval == 0 || now.Sub(time.Unix(flow.Notified, 0)) < t.opts.RemindInterval {
				flow.StatusInfo = &flappingInfo
				break
			}
		}
		publish(flappingInfo)

	case status == StatusOK:
		if old != "" && old != StatusOK {
			publish(newInfo)
		} else if old == "" {
			// first-ever ok: stays silent, but the info baseline is still recorded
			flow.StatusInfo = &newInfo
		}

	default: // error
		firstEver := old == ""
		if firstEver && t.opts.SkipInitialError {
			flow.StatusInfo = &newInfo
			flow.NotificationSent(now.Unix(), false)
			break
		}
		if status == old && flow.Notified != 0 { // Notified == 0 after reset_reminder
			if t.opts.RemindInterval == 0 || now.Sub(time.Unix(flow.Notified, 0)) < t.opts.RemindInterval {
				flow.StatusInfo = &newInfo
				break
			}
		}
		publish(newInfo)
	}

	return notifications, nil
}

// Sweep advances the timeout queue: flows whose deadline has passed are
// declared missing, and (unless muted or flapping) a missing notification
// is emitted; reminders re-arm the entry if configured (spec §4.6 sweep).
func (t *Tracker) Sweep(now time.Time) []Notification {
	var notifications []Notification
	for len(t.timeout) > 0 && !t.timeout[0].due.After(now) {
		e := heap.Pop(&t.timeout).(*timeoutEntry)
		delete(t.timeoutByID, e.id)

		flow, ok := t.flows[e.id]
		if !ok {
			continue
		}
		lastSeen := flow.StatusTime
		_, _ = flow.Update(StatusMissing, now.Unix(), t.opts.FlapThreshold)

		if !flow.IsFlapping(t.opts.FlapThreshold) && !t.isMuted(e.id, now) {
			info := Info{Status: StatusMissing, LastSeen: lastSeen}
			prev := flow.StatusInfo
			notifications = append(notifications, Notification{
				Time: now.Unix(), Aspect: flow.Aspect, Location: flow.Location, Info: info, Previous: prev,
			})
			flow.StatusInfo = &info
		}
		flow.NotificationSent(now.Unix(), false)

		if t.opts.RemindInterval > 0 {
			t.rearmTimeout(e.id, now.Add(t.opts.RemindInterval))
		}
	}

	for len(t.mute) > 0 && !t.mute[0].expiry.After(now) {
		e := heap.Pop(&t.mute).(*muteEntry)
		delete(t.muteByID, e.id)
	}

	return notifications
}

// List returns a snapshot of every tracked flow (spec §4.7 list).
func (t *Tracker) List() []FlowSummary {
	out := make([]FlowSummary, 0, len(t.flows))
	for _, f := range t.flows {
		var info Info
		if f.StatusInfo != nil {
			info = *f.StatusInfo
		}
		out = append(out, FlowSummary{Aspect: f.Aspect, Location: f.Location, Info: info})
	}
	return out
}

// Forget removes a flow record entirely (spec §4.7 forget). Per the
// documented design-note decision (b), forgetting a muted flow leaves its
// mute-queue entry intact: the mute is a statement about the identity,
// independent of whether a record currently exists for it.
func (t *Tracker) Forget(id FlowID) bool {
	if _, ok := t.flows[id]; !ok {
		return false
	}
	delete(t.flows, id)
	t.cancelTimeout(id)
	return true
}

// ListMuted returns all active mutes (spec §4.7 list_muted).
func (t *Tracker) ListMuted() []MutedEntry {
	out := make([]MutedEntry, 0, len(t.mute))
	for _, e := range t.mute {
		loc := map[string]string{}
		if f, ok := t.flows[e.id]; ok {
			loc = f.Location
		}
		out = append(out, MutedEntry{Aspect: e.id.Aspect, Location: loc, Expires: e.expiry})
	}
	return out
}

// Mute suppresses notifications for id until now+duration. id need not
// have been seen yet (spec §4.7: "mute may refer to a not-yet-seen flow").
func (t *Tracker) Mute(id FlowID, duration time.Duration, now time.Time) {
	t.unmuteEntry(id)
	e := &muteEntry{id: id, expiry: now.Add(duration)}
	heap.Push(&t.mute, e)
	t.muteByID[id] = e
}

// Unmute clears a mute early. Reports whether one existed.
func (t *Tracker) Unmute(id FlowID) bool {
	if _, ok := t.muteByID[id]; !ok {
		return false
	}
	t.unmuteEntry(id)
	return true
}

// ResetFlapping zeroes the named flow's flap detector (spec §4.7).
func (t *Tracker) ResetFlapping(id FlowID) bool {
	f, ok := t.flows[id]
	if !ok {
		return false
	}
	f.ResetFlapping()
	return true
}

// ResetReminder zeroes the named flow's Notified timestamp, so the next
// non-ok message fires a reminder regardless of --remind-interval timing
// (spec §4.7).
func (t *Tracker) ResetReminder(id FlowID) bool {
	f, ok := t.flows[id]
	if !ok {
		return false
	}
	f.NotificationSent(0, true)
	return true
}
