package hailerter

import (
	"encoding/json"
	"fmt"

	"github.com/seismometer/toolbox/internal/wire"
)

// Client is the thin control-socket client used by the hailerter CLI
// subcommands (spec §4.7, §6).
type Client struct {
	socketPath string
}

// NewClient builds a Client targeting the control socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

type clientReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *Client) roundTrip(req controlRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out, err := wire.DialAndRoundTrip(c.socketPath, body)
	if err != nil {
		return nil, err
	}
	var reply clientReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return nil, fmt.Errorf("malformed reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s", reply.Error)
	}
	return reply.Result, nil
}

// List returns every tracked flow's summary.
func (c *Client) List() ([]FlowSummary, error) {
	result, err := c.roundTrip(controlRequest{Command: "list"})
	if err != nil {
		return nil, err
	}
	var out []FlowSummary
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed list result: %w", err)
	}
	return out, nil
}

// ListMuted returns every active mute.
func (c *Client) ListMuted() ([]MutedEntry, error) {
	result, err := c.roundTrip(controlRequest{Command: "list_muted"})
	if err != nil {
		return nil, err
	}
	var out []MutedEntry
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed list_muted result: %w", err)
	}
	return out, nil
}

// Forget removes the flow record for (aspect, location).
func (c *Client) Forget(aspect string, location map[string]string) error {
	_, err := c.roundTrip(controlRequest{Command: "forget", Aspect: aspect, Location: location})
	return err
}

// Mute suppresses notifications for (aspect, location) for durationSeconds.
func (c *Client) Mute(aspect string, location map[string]string, durationSeconds int) error {
	_, err := c.roundTrip(controlRequest{Command: "mute", Aspect: aspect, Location: location, Duration: durationSeconds})
	return err
}

// Unmute clears an active mute early.
func (c *Client) Unmute(aspect string, location map[string]string) error {
	_, err := c.roundTrip(controlRequest{Command: "unmute", Aspect: aspect, Location: location})
	return err
}

// ResetFlapping zeroes a flow's flap detector.
func (c *Client) ResetFlapping(aspect string, location map[string]string) error {
	_, err := c.roundTrip(controlRequest{Command: "reset_flapping", Aspect: aspect, Location: location})
	return err
}

// ResetReminder zeroes a flow's last-notified timestamp.
func (c *Client) ResetReminder(aspect string, location map[string]string) error {
	_, err := c.roundTrip(controlRequest{Command: "reset_reminder", Aspect: aspect, Location: location})
	return err
}
