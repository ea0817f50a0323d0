package daemonshepherd

import (
	"encoding/json"
	"fmt"

	"github.com/seismometer/toolbox/internal/wire"
)

// Client is the thin control-socket client used by the daemonshepherd CLI
// subcommands. Every call is a single request/reply round trip, mirroring
// the control socket's one-shot protocol (spec §4.4, §6).
type Client struct {
	socketPath string
}

// NewClient builds a Client targeting the control socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

type clientReply struct {
	Status string          `json:"status"`
	Reason string          `json:"reason"`
	Result json.RawMessage `json:"result"`
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
	if reply.Status == "error" {
		return nil, fmt.Errorf("%s", reply.Reason)
	}
	return reply.Result, nil
}

// Reload asks the supervisor to re-read its specfile and converge.
func (c *Client) Reload() error {
	_, err := c.roundTrip(controlRequest{Command: "reload"})
	return err
}

// List returns the supervisor's current daemon summaries.
func (c *Client) List() ([]DaemonSummary, error) {
	result, err := c.roundTrip(controlRequest{Command: "list"})
	if err != nil {
		return nil, err
	}
	var out []DaemonSummary
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed list result: %w", err)
	}
	return out, nil
}

// Start requests an immediate start of the named daemon.
func (c *Client) Start(name string) error {
	_, err := c.roundTrip(controlRequest{Command: "start", Name: name})
	return err
}

// Stop requests the named daemon be stopped.
func (c *Client) Stop(name string) error {
	_, err := c.roundTrip(controlRequest{Command: "stop", Name: name})
	return err
}

// Restart requests the named daemon be stopped and immediately restarted.
func (c *Client) Restart(name string) error {
	_, err := c.roundTrip(controlRequest{Command: "restart", Name: name})
	return err
}

// CancelRestart cancels a pending scheduled (re)start for name.
func (c *Client) CancelRestart(name string) error {
	_, err := c.roundTrip(controlRequest{Command: "cancel_restart", Name: name})
	return err
}

// ListCommands lists the admin command names declared for name.
func (c *Client) ListCommands(name string) ([]string, error) {
	result, err := c.roundTrip(controlRequest{Command: "list-commands", Name: name})
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed list-commands result: %w", err)
	}
	return out, nil
}

// RunCommand runs one of name's declared admin commands and returns its
// combined output.
func (c *Client) RunCommand(name, command string) (string, error) {
	result, err := c.roundTrip(controlRequest{Command: "admin_command", Name: name, AdminCommand: command})
	if err != nil {
		return "", err
	}
	var out struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("malformed admin_command result: %w", err)
	}
	return out.Output, nil
}
