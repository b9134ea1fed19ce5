package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/ftxcat/pkg/protocol"
)

// SocketClient represents a client connection to the core engine
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// CommandError is a failure reported by the daemon
type CommandError struct {
	Command string
	Message string
	Kind    string // error kind from the radio layer, may be empty
}

func (e *CommandError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Command, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Command, e.Message)
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout changes the per-command timeout
func (c *SocketClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call sends cmd and turns an unsuccessful response into a CommandError
func (c *SocketClient) call(name, cmd string) (*protocol.Response, error) {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &CommandError{Command: name, Message: resp.Error, Kind: resp.Kind}
	}
	return resp, nil
}

// decode converts a response data entry into v
func decode(resp *protocol.Response, key string, v interface{}) error {
	data, ok := resp.Data[key]
	if !ok {
		return fmt.Errorf("%s not found in response", key)
	}

	// Convert to JSON and back to parse properly
	raw, _ := json.Marshal(data)
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	resp, err := c.call("status", protocol.CmdStatus)
	if err != nil {
		return nil, err
	}

	var status protocol.Status
	if err := decode(resp, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetState reads the full radio state
func (c *SocketClient) GetState() (*protocol.Snapshot, error) {
	resp, err := c.call("info", protocol.CmdInfo)
	if err != nil {
		return nil, err
	}

	var snap protocol.Snapshot
	if err := decode(resp, "state", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetHistory gets recent state snapshots
func (c *SocketClient) GetHistory(limit int) ([]protocol.Snapshot, error) {
	cmd := protocol.CmdHistory
	if limit > 0 {
		cmd = fmt.Sprintf("%s:%d", protocol.CmdHistory, limit)
	}

	resp, err := c.call("history", cmd)
	if err != nil {
		return nil, err
	}

	var snapshots []protocol.Snapshot
	if err := decode(resp, "snapshots", &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GetFrequency reads the frequency of side ("MAIN" or "SUB")
func (c *SocketClient) GetFrequency(side string) (int, error) {
	resp, err := c.call("frequency", fmt.Sprintf("%s:%s", protocol.CmdFreq, side))
	if err != nil {
		return 0, err
	}
	var hz int
	return hz, decode(resp, "frequency", &hz)
}

// SetFrequency tunes side and returns the frequency the radio reports
func (c *SocketClient) SetFrequency(side string, hz int) (int, error) {
	resp, err := c.call("frequency", fmt.Sprintf("%s:%s:%d", protocol.CmdFreq, side, hz))
	if err != nil {
		return 0, err
	}
	var got int
	return got, decode(resp, "frequency", &got)
}

// GetPower reads the power unit and wattage
func (c *SocketClient) GetPower() (string, int, error) {
	return c.power(protocol.CmdPower)
}

// SetPower sets the wattage of unit ("FIELD" or "AMP")
func (c *SocketClient) SetPower(watts int, unit string) (string, int, error) {
	return c.power(fmt.Sprintf("%s:%d:%s", protocol.CmdPower, watts, unit))
}

func (c *SocketClient) power(cmd string) (string, int, error) {
	resp, err := c.call("power", cmd)
	if err != nil {
		return "", 0, err
	}
	var unit string
	var watts int
	if err := decode(resp, "unit", &unit); err != nil {
		return "", 0, err
	}
	return unit, watts, decode(resp, "watts", &watts)
}

// GetMode reads the mode of side
func (c *SocketClient) GetMode(side string) (string, error) {
	return c.mode(fmt.Sprintf("%s:%s", protocol.CmdMode, side))
}

// SetMode sets the mode of side
func (c *SocketClient) SetMode(side, mode string) (string, error) {
	return c.mode(fmt.Sprintf("%s:%s:%s", protocol.CmdMode, side, mode))
}

func (c *SocketClient) mode(cmd string) (string, error) {
	resp, err := c.call("mode", cmd)
	if err != nil {
		return "", err
	}
	var mode string
	return mode, decode(resp, "mode", &mode)
}

// GetPTT reports whether the radio is transmitting
func (c *SocketClient) GetPTT() (bool, error) {
	return c.ptt(protocol.CmdPTT)
}

// SetPTT keys or unkeys the transmitter
func (c *SocketClient) SetPTT(on bool) (bool, error) {
	state := "OFF"
	if on {
		state = "ON"
	}
	return c.ptt(fmt.Sprintf("%s:%s", protocol.CmdPTT, state))
}

func (c *SocketClient) ptt(cmd string) (bool, error) {
	resp, err := c.call("ptt", cmd)
	if err != nil {
		return false, err
	}
	var transmit bool
	return transmit, decode(resp, "transmit", &transmit)
}

// GetID reads the radio identifier
func (c *SocketClient) GetID() (string, error) {
	resp, err := c.call("id", protocol.CmdID)
	if err != nil {
		return "", err
	}
	var id string
	return id, decode(resp, "id", &id)
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	_, err := c.call("ping", protocol.CmdPing)
	return err
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
