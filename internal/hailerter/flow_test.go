package hailerter

import "testing"

func testFlowID(t *testing.T) FlowID {
	t.Helper()
	id, err := NewFlowID("cpu", map[string]string{"host": "h1"})
	if err != nil {
		t.Fatalf("NewFlowID: %v", err)
	}
	return id
}

func TestCanonicalLocationJSONSortsKeys(t *testing.T) {
	a, err := canonicalLocationJSON(map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if a != `{"a":"1","b":"2"}` {
		t.Fatalf("unexpected canonical JSON: %s", a)
	}
}

func TestFlowIDEqualityAcrossKeyOrder(t *testing.T) {
	id1, _ := NewFlowID("cpu", map[string]string{"host": "h1", "zone": "z1"})
	id2, _ := NewFlowID("cpu", map[string]string{"zone": "z1", "host": "h1"})
	if id1 != id2 {
		t.Fatalf("expected FlowIDs to be equal regardless of map iteration order: %v vs %v", id1, id2)
	}
}

func TestFlowUpdateFirstMessage(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", map[string]string{"host": "h1"}, 4)
	old, ok := f.Update(StatusError, 100, 0.5)
	if !ok {
		t.Fatalf("expected first update to be accepted")
	}
	if old != "" {
		t.Fatalf("expected empty old status on first update, got %q", old)
	}
	if f.Status != StatusError || f.StatusTime != 100 {
		t.Fatalf("expected flow status updated, got %+v", f)
	}
}

func TestFlowUpdateDiscardsOutOfOrder(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", nil, 4)
	f.Update(StatusOK, 100, 0.5)
	_, ok := f.Update(StatusError, 50, 0.5)
	if ok {
		t.Fatalf("expected out-of-order message to be discarded")
	}
	if f.Status != StatusOK || f.StatusTime != 100 {
		t.Fatalf("expected flow to be unmutated by discarded message, got %+v", f)
	}
}

func TestFlowFlapDetection(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", nil, 4)
	// alternate ok/error four times: every push after the first differs.
	statuses := []Status{StatusOK, StatusError, StatusOK, StatusError}
	for i, s := range statuses {
		f.Update(s, int64(100+i), 0.5)
	}
	if !f.IsFlapping(0.5) {
		t.Fatalf("expected flow to be flapping after alternating statuses, changes=%d window=%d", f.FlapChanges(), f.FlapWindow())
	}
}

func TestFlowMissingToMissingResetsFlap(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", nil, 4)
	f.Update(StatusError, 100, 0.5)
	f.Update(StatusMissing, 101, 0.5)
	// second missing-in-a-row should reset the detector first
	f.Update(StatusMissing, 102, 0.5)
	if f.FlapChanges() != 0 {
		t.Fatalf("expected flap detector reset on repeated missing, changes=%d", f.FlapChanges())
	}
}

func TestFlowResetFlappingClearsDetector(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", nil, 2)
	f.Update(StatusOK, 1, 0.1)
	f.Update(StatusError, 2, 0.1)
	if f.FlapChanges() == 0 {
		t.Fatalf("expected some changes recorded before reset")
	}
	f.ResetFlapping()
	if f.FlapChanges() != 0 || f.IsFlapping(0.1) {
		t.Fatalf("expected flap detector cleared after ResetFlapping")
	}
}

func TestFlowNotificationSentAndReset(t *testing.T) {
	f := NewFlow(testFlowID(t), "cpu", nil, 4)
	f.NotificationSent(500, false)
	if f.Notified != 500 {
		t.Fatalf("expected Notified=500, got %d", f.Notified)
	}
	f.NotificationSent(0, true)
	if f.Notified != 0 {
		t.Fatalf("expected Notified reset to 0, got %d", f.Notified)
	}
}
