package hailerter

// StatusFlapping is the derived pseudo-status returned by Flow.Update when
// the flow is (or was, per the rules in spec §4.5) flapping. It is never
// stored in Flow.Status.
const StatusFlapping Status = "flapping"

// flapDetector is a fixed-width circular bit buffer recording, for each of
// the last `window` status transitions, whether that message's status
// differed from the previous one. Push is O(1): it evicts the oldest bit
// and folds the new one into a running ones-count, rather than rescanning
// the window (spec §4.5, §9: "what matters is O(1) update and O(1)
// popcount maintenance").
type flapDetector struct {
	bits   []bool
	pos    int
	filled int
	ones   int
}

func newFlapDetector(window int) *flapDetector {
	if window <= 0 {
		window = 1
	}
	return &flapDetector{bits: make([]bool, window)}
}

// push records one new bit, evicting the oldest once the buffer is full.
func (d *flapDetector) push(bit bool) {
	if d.filled < len(d.bits) {
		d.bits[d.pos] = bit
		if bit {
			d.ones++
		}
		d.filled++
	} else {
		if d.bits[d.pos] {
			d.ones--
		}
		d.bits[d.pos] = bit
		if bit {
			d.ones++
		}
	}
	d.pos = (d.pos + 1) % len(d.bits)
}

// reset clears the buffer to all-zero, used by reset_flapping and by
// Update when a flow goes from missing to missing again (spec §4.5).
func (d *flapDetector) reset() {
	for i := range d.bits {
		d.bits[i] = false
	}
	d.pos, d.filled, d.ones = 0, 0, 0
}

// isFlapping reports whether the one-count exceeds threshold of window,
// per spec §4.5: "flapping iff one_count / flap_window > flap_threshold".
func (d *flapDetector) isFlapping(threshold float64) bool {
	return float64(d.ones)/float64(len(d.bits)) > threshold
}

func (d *flapDetector) window() int { return len(d.bits) }
func (d *flapDetector) changes() int { return d.ones }

// Flow is the per-stream record (spec §3.2).
type Flow struct {
	ID       FlowID
	Aspect   string
	Location map[string]string

	Status     Status // "" until the first accepted message
	StatusTime int64
	StatusInfo *Info // last published info, nil until the first notification
	Notified   int64

	flap *flapDetector
}

// NewFlow constructs a Flow with a flap detector sized to flapWindow.
func NewFlow(id FlowID, aspect string, location map[string]string, flapWindow int) *Flow {
	return &Flow{ID: id, Aspect: aspect, Location: location, flap: newFlapDetector(flapWindow)}
}

// IsFlapping reports the flow's current flapping state.
func (f *Flow) IsFlapping(threshold float64) bool { return f.flap.isFlapping(threshold) }

// FlapWindow and FlapChanges expose the detector's width and current
// one-count for building a flapping Info payload (spec §6).
func (f *Flow) FlapWindow() int  { return f.flap.window() }
func (f *Flow) FlapChanges() int { return f.flap.changes() }

// ResetFlapping zeroes the flap detector without re-notifying (spec §4.7
// reset_flapping).
func (f *Flow) ResetFlapping() { f.flap.reset() }

// Update applies one accepted message's computed status at timestamp,
// implementing the state machine of spec §4.5. ok is false when the
// message must be discarded without mutating anything (out-of-order
// input); old is only meaningful when ok is true.
func (f *Flow) Update(status Status, timestamp int64, flapThreshold float64) (old Status, ok bool) {
	if f.StatusTime != 0 && timestamp < f.StatusTime {
		return statusDiscard, false
	}

	if status == StatusMissing && f.Status == StatusMissing {
		f.flap.reset()
	}

	if f.flap.isFlapping(flapThreshold) {
		old = StatusFlapping
	} else {
		old = f.Status
	}

	f.flap.push(f.Status != "" && status != f.Status)

	f.Status = status
	f.StatusTime = timestamp
	return old, true
}

// NotificationSent stamps Notified. reset=true zeroes it instead, forcing
// the next non-ok message to notify (spec §4.5 notification_sent, §4.7
// reset_reminder).
func (f *Flow) NotificationSent(ts int64, reset bool) {
	if reset {
		f.Notified = 0
		return
	}
	f.Notified = ts
}
