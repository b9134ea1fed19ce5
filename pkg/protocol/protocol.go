package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/ftxcat/pkg/controller"
)

// Command represents a command sent to the engine
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Kind    string                 `json:"kind,omitempty"`
}

// Snapshot is a RadioState read at a point in time
type Snapshot struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	controller.RadioState
}

// Operation is one audited controller call
type Operation struct {
	ID         int       `json:"id"`
	OpID       string    `json:"op_id"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Params     string    `json:"params"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Status represents the current daemon status
type Status struct {
	Radio     string    `json:"radio"`
	Device    string    `json:"device"`
	Connected bool      `json:"connected"`
	Confirm   string    `json:"confirm"`
	Polling   bool      `json:"polling"`
	Uptime    string    `json:"uptime"`
	StartTime time.Time `json:"start_time"`
	Version   string    `json:"version"`
}

// ParseCommand parses a text command into a Command struct.
//
//	FREQ, FREQ:SUB, FREQ:14074000, FREQ:SUB:7074000
//	POWER, POWER:10, POWER:50:AMP
//	MODE, MODE:SUB, MODE:USB, MODE:SUB:CW-U
//	PTT, PTT:ON, PTT:OFF
//	HISTORY, HISTORY:20
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}
	parts := strings.Split(text, ":")

	cmd := &Command{
		Type: strings.ToUpper(parts[0]),
		Args: make(map[string]interface{}),
	}
	args := parts[1:]

	switch cmd.Type {
	case CmdFreq:
		args = takeSide(cmd, args)
		if len(args) > 0 {
			hz, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid frequency %q", args[0])
			}
			cmd.Args["frequency"] = hz
		}

	case CmdPower:
		if len(args) > 0 {
			watts, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid power %q", args[0])
			}
			cmd.Args["watts"] = watts
			cmd.Args["unit"] = "FIELD"
		}
		if len(args) > 1 {
			switch strings.ToUpper(args[1]) {
			case "AMP", "SPA-1":
				cmd.Args["unit"] = "SPA-1"
			case "FIELD":
			default:
				return nil, fmt.Errorf("invalid power unit %q", args[1])
			}
		}

	case CmdMode:
		args = takeSide(cmd, args)
		if len(args) > 0 {
			cmd.Args["mode"] = strings.ToUpper(args[0])
		}

	case CmdPTT:
		if len(args) > 0 {
			switch strings.ToUpper(args[0]) {
			case "ON", "1", "TX":
				cmd.Args["on"] = true
			case "OFF", "0", "RX":
				cmd.Args["on"] = false
			default:
				return nil, fmt.Errorf("invalid PTT state %q", args[0])
			}
		}

	case CmdHistory:
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid history limit %q", args[0])
			}
			cmd.Args["limit"] = n
		}
	}

	return cmd, nil
}

// takeSide consumes a leading MAIN/SUB argument.
func takeSide(cmd *Command, args []string) []string {
	cmd.Args["side"] = "MAIN"
	if len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "MAIN", "A":
			return args[1:]
		case "SUB", "B":
			cmd.Args["side"] = "SUB"
			return args[1:]
		}
	}
	return args
}

// IsSet reports whether the command changes radio state.
func (c *Command) IsSet() bool {
	switch c.Type {
	case CmdFreq:
		_, ok := c.Args["frequency"]
		return ok
	case CmdPower:
		_, ok := c.Args["watts"]
		return ok
	case CmdMode:
		_, ok := c.Args["mode"]
		return ok
	case CmdPTT:
		_, ok := c.Args["on"]
		return ok
	}
	return false
}

// String converts a Response to a JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// Protocol commands
const (
	CmdStatus  = "STATUS"
	CmdPing    = "PING"
	CmdInfo    = "INFO"
	CmdFreq    = "FREQ"
	CmdPower   = "POWER"
	CmdMode    = "MODE"
	CmdPTT     = "PTT"
	CmdID      = "ID"
	CmdHistory = "HISTORY"
	CmdQuit    = "QUIT"
)
