package daemonshepherd

import (
	"testing"
	"time"
)

func TestRestartSchedulerOrdersByDueThenPriorityThenName(t *testing.T) {
	s := NewRestartScheduler()
	base := time.Now()
	s.Schedule("b", 10, base)
	s.Schedule("a", 5, base)
	s.Schedule("c", 10, base)

	names := s.PopDue(base)
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("expected %d due entries, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entry %d: got %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRestartSchedulerPopDueRespectsFutureEntries(t *testing.T) {
	s := NewRestartScheduler()
	now := time.Now()
	s.Schedule("soon", 0, now)
	s.Schedule("later", 0, now.Add(time.Hour))

	due := s.PopDue(now)
	if len(due) != 1 || due[0] != "soon" {
		t.Fatalf("expected only 'soon' due, got %v", due)
	}
	if !s.Pending("later") {
		t.Fatalf("expected 'later' to remain pending")
	}
}

func TestRestartSchedulerCancel(t *testing.T) {
	s := NewRestartScheduler()
	s.Schedule("x", 0, time.Now())
	if !s.Cancel("x") {
		t.Fatalf("expected Cancel to report an existing entry")
	}
	if s.Cancel("x") {
		t.Fatalf("expected second Cancel to report nothing to cancel")
	}
	if s.Pending("x") {
		t.Fatalf("expected x to no longer be pending")
	}
}

func TestRestartSchedulerRescheduleReplaces(t *testing.T) {
	s := NewRestartScheduler()
	now := time.Now()
	s.Schedule("x", 0, now.Add(time.Hour))
	s.Schedule("x", 0, now) // reschedule sooner
	if got, _ := s.NextDue(); !got.Equal(now) {
		t.Fatalf("expected rescheduled due time to take effect")
	}
	due := s.PopDue(now)
	if len(due) != 1 || due[0] != "x" {
		t.Fatalf("expected single x entry, got %v", due)
	}
}

func TestBackoffStateAdvanceClampsAtMax(t *testing.T) {
	spec := DaemonSpec{Restart: []int{0, 5, 15}}
	b := &backoffState{}
	if d := b.Advance(spec); d != 0 {
		t.Fatalf("expected first delay 0, got %d", d)
	}
	if d := b.Advance(spec); d != 5 {
		t.Fatalf("expected second delay 5, got %d", d)
	}
	if d := b.Advance(spec); d != 15 {
		t.Fatalf("expected third delay 15, got %d", d)
	}
	if d := b.Advance(spec); d != 15 {
		t.Fatalf("expected delay to stay clamped at tail value 15, got %d", d)
	}
}

func TestBackoffStateMaybeReset(t *testing.T) {
	spec := DaemonSpec{Restart: []int{0, 5, 15}}
	// idx has already advanced past the 15s delay that scheduled this run;
	// lastDelay records that 15s, which is what MaybeReset must judge against.
	b := &backoffState{idx: 3, lastDelay: 15}
	b.MaybeReset(spec, 20*time.Second) // well beyond the 15s threshold that scheduled this run
	if b.idx != 0 {
		t.Fatalf("expected idx reset to 0 after sustained uptime, got %d", b.idx)
	}
}

func TestBackoffStateMaybeResetDoesNothingOnShortUptime(t *testing.T) {
	spec := DaemonSpec{Restart: []int{0, 5, 15}}
	b := &backoffState{idx: 3, lastDelay: 15}
	b.MaybeReset(spec, time.Second)
	if b.idx != 3 {
		t.Fatalf("expected idx to remain unchanged on short uptime, got %d", b.idx)
	}
}

func TestBackoffStateAdvanceRecordsDelayForMaybeReset(t *testing.T) {
	spec := DaemonSpec{Restart: []int{0, 5, 15}}
	b := &backoffState{idx: 2}
	delay := b.Advance(spec) // scheduled using idx=2 (15s); idx stays clamped at 2, the last index
	if delay != 15 {
		t.Fatalf("expected scheduling delay 15, got %d", delay)
	}
	// A short dwell must not reset, since the run was scheduled with a 15s
	// delay.
	b.MaybeReset(spec, 10*time.Second)
	if b.idx != 2 {
		t.Fatalf("expected idx to remain at 2 for a dwell shorter than the 15s scheduling delay, got %d", b.idx)
	}
	b.MaybeReset(spec, 15*time.Second)
	if b.idx != 0 {
		t.Fatalf("expected idx reset to 0 once dwell reaches the 15s scheduling delay, got %d", b.idx)
	}
}

func TestBackoffStateReset(t *testing.T) {
	b := &backoffState{idx: 2, lastDelay: 15}
	b.Reset()
	if b.idx != 0 || b.lastDelay != 0 {
		t.Fatalf("expected Reset to zero both idx and lastDelay, got idx=%d lastDelay=%d", b.idx, b.lastDelay)
	}
}
