package hailerter

import (
	"encoding/json"
	"time"

	"github.com/seismometer/toolbox/internal/wire"
)

// controlRequest is the wire shape of every hailerter control-socket
// command (spec §4.7): `{command, aspect?, location?, duration?}`.
type controlRequest struct {
	Command  string            `json:"command"`
	Aspect   string            `json:"aspect,omitempty"`
	Location map[string]string `json:"location,omitempty"`
	Duration int               `json:"duration,omitempty"`
}

// handleRequest decodes one control-socket line and replies on req.Reply.
// Replies are `{result: ...}` on success or `{error: "bad request"}` on
// any validation failure (spec §4.7) — unlike daemonshepherd's richer
// status/reason shape, hailerter's protocol collapses every failure to
// one fixed string, so the dispatch only needs to decide ok-vs-not.
func (m *MainLoop) handleRequest(req wire.Request) {
	var cr controlRequest
	if err := json.Unmarshal(req.Line, &cr); err != nil {
		req.Reply <- badRequest()
		return
	}

	switch cr.Command {
	case "list":
		req.Reply <- resultReply(m.tracker.List())

	case "list_muted":
		req.Reply <- resultReply(m.tracker.ListMuted())

	case "forget":
		id, ok := flowIDFrom(cr)
		if !ok {
			req.Reply <- badRequest()
			return
		}
		req.Reply <- resultReply(m.tracker.Forget(id))

	case "mute":
		id, ok := flowIDFrom(cr)
		if !ok || cr.Duration <= 0 {
			req.Reply <- badRequest()
			return
		}
		m.tracker.Mute(id, time.Duration(cr.Duration)*time.Second, time.Now())
		req.Reply <- resultReply(true)

	case "unmute":
		id, ok := flowIDFrom(cr)
		if !ok {
			req.Reply <- badRequest()
			return
		}
		req.Reply <- resultReply(m.tracker.Unmute(id))

	case "reset_flapping":
		id, ok := flowIDFrom(cr)
		if !ok {
			req.Reply <- badRequest()
			return
		}
		req.Reply <- resultReply(m.tracker.ResetFlapping(id))

	case "reset_reminder":
		id, ok := flowIDFrom(cr)
		if !ok {
			req.Reply <- badRequest()
			return
		}
		req.Reply <- resultReply(m.tracker.ResetReminder(id))

	default:
		req.Reply <- badRequest()
	}
}

func flowIDFrom(cr controlRequest) (FlowID, bool) {
	if cr.Aspect == "" || cr.Location == nil {
		return FlowID{}, false
	}
	id, err := NewFlowID(cr.Aspect, cr.Location)
	if err != nil {
		return FlowID{}, false
	}
	return id, true
}

func resultReply(result any) []byte {
	b, _ := json.Marshal(map[string]any{"result": result})
	return b
}

func badRequest() []byte {
	b, _ := json.Marshal(map[string]string{"error": "bad request"})
	return b
}
