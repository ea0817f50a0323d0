// Package hailerter implements the stream-tracker core: a per-flow status
// machine (ok/degraded/flapping/missing), its flap detector and timeout
// queues, the control socket, and the stdin/stdout main loop (spec
// §3.2, §4.5-§4.7).
package hailerter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Severity mirrors the optional input field of the same name (spec §3.2).
type Severity string

const (
	SeverityExpected Severity = "expected"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
)

// Status is a flow's computed state. Flapping is never stored on a Flow —
// it is derived at update time from the flap detector (spec §3.2: "status:
// one of {ok, error, missing} (never flapping — flapping is derived)").
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusMissing Status = "missing"

	// StatusDegraded is the wire label an error Flow.Status is rendered as
	// in a notification's info.status (spec §6): the flow's internal
	// status stays "error" (spec §3.2), but the value an operator reads on
	// the wire is "degraded".
	StatusDegraded Status = "degraded"

	// statusDiscard is the update() sentinel for "nothing changed" (spec
	// §4.5); it is never stored and never appears in Info.
	statusDiscard Status = "discard"
)

// Message is one parsed input line (spec §3.2, §6).
type Message struct {
	Time     int64             `json:"time"`
	Aspect   string             `json:"aspect"`
	Location map[string]string  `json:"location"`
	Interval *int               `json:"interval,omitempty"`
	State    *string            `json:"state,omitempty"`
	Severity *string            `json:"severity,omitempty"`
}

// ParseMessage unmarshals one input line. A line that isn't valid JSON at
// all is a parse error; a line that parses but has no `state` field is
// still returned (the caller drops it per spec §4.6 step 2).
func ParseMessage(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("malformed input line: %w", err)
	}
	return m, nil
}

// HasState reports whether the message carries a state field at all;
// state-less messages are dropped without creating or updating a flow.
func (m Message) HasState() bool { return m.State != nil }

// ResolvedStatus computes ok/error from State and Severity per the
// mapping in spec §4.6: severity null/"expected" -> ok; "warning" -> ok
// iff warningExpected, else error; "error" or anything else -> error.
func (m Message) ResolvedStatus(warningExpected bool) Status {
	sev := ""
	if m.Severity != nil {
		sev = *m.Severity
	}
	switch Severity(sev) {
	case "", SeverityExpected:
		return StatusOK
	case SeverityWarning:
		if warningExpected {
			return StatusOK
		}
		return StatusError
	default:
		return StatusError
	}
}

// FlowID identifies a stream: the aspect plus the canonical JSON rendering
// of its location object (spec §3.2: "pair (aspect, canonical JSON of
// location) where canonical JSON has sorted keys and no extraneous
// whitespace").
type FlowID struct {
	Aspect       string
	LocationJSON string
}

// String renders a FlowID as "aspect|canonical-location-json", used as a
// stable map key and for log/debug output.
func (f FlowID) String() string {
	return f.Aspect + "|" + f.LocationJSON
}

// NewFlowID computes the FlowID for a message's (aspect, location) pair.
func NewFlowID(aspect string, location map[string]string) (FlowID, error) {
	canon, err := canonicalLocationJSON(location)
	if err != nil {
		return FlowID{}, err
	}
	return FlowID{Aspect: aspect, LocationJSON: canon}, nil
}

// canonicalLocationJSON renders location with sorted keys and no
// whitespace. encoding/json already sorts map[string]string keys when
// marshaling and emits no insignificant whitespace, but the sort is made
// explicit here (rather than relied upon implicitly) because FlowID
// equality is a correctness-critical identity, not an incidental format.
func canonicalLocationJSON(location map[string]string) (string, error) {
	keys := make([]string, 0, len(location))
	for k := range location {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		vb, err := json.Marshal(location[k])
		if err != nil {
			return "", err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Info is the `info` object carried by notifications (spec §6): one of
// ok/degraded/flapping/missing shapes. Fields not relevant to the current
// Status are left zero and omitted from JSON.
type Info struct {
	Status   Status `json:"status"`
	State    string `json:"state,omitempty"`
	Severity string `json:"severity,omitempty"`
	Window   int    `json:"window,omitempty"`
	Changes  int    `json:"changes,omitempty"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// Notification is one emitted output line (spec §6).
type Notification struct {
	Time     int64             `json:"time"`
	Aspect   string            `json:"aspect"`
	Location map[string]string `json:"location"`
	Info     Info              `json:"info"`
	Previous *Info             `json:"previous"`
}
