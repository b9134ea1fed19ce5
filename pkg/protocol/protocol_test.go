package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/controller"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		input    string
		wantType string
		wantArgs map[string]interface{}
		isSet    bool
	}{
		{"STATUS", CmdStatus, map[string]interface{}{}, false},
		{"  ping \n", CmdPing, map[string]interface{}{}, false},
		{"freq", CmdFreq, map[string]interface{}{"side": "MAIN"}, false},
		{"FREQ:SUB", CmdFreq, map[string]interface{}{"side": "SUB"}, false},
		{"FREQ:14074000", CmdFreq, map[string]interface{}{"side": "MAIN", "frequency": 14074000}, true},
		{"FREQ:B:7074000", CmdFreq, map[string]interface{}{"side": "SUB", "frequency": 7074000}, true},
		{"POWER", CmdPower, map[string]interface{}{}, false},
		{"POWER:10", CmdPower, map[string]interface{}{"watts": 10, "unit": "FIELD"}, true},
		{"POWER:50:amp", CmdPower, map[string]interface{}{"watts": 50, "unit": "SPA-1"}, true},
		{"MODE:SUB", CmdMode, map[string]interface{}{"side": "SUB"}, false},
		{"MODE:cw-u", CmdMode, map[string]interface{}{"side": "MAIN", "mode": "CW-U"}, true},
		{"PTT:on", CmdPTT, map[string]interface{}{"on": true}, true},
		{"PTT:OFF", CmdPTT, map[string]interface{}{"on": false}, true},
		{"HISTORY:20", CmdHistory, map[string]interface{}{"limit": 20}, false},
		{"QUIT", CmdQuit, map[string]interface{}{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			cmd, err := ParseCommand(tc.input)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if cmd.Type != tc.wantType {
				t.Errorf("Expected type %s, got %s", tc.wantType, cmd.Type)
			}
			if len(cmd.Args) != len(tc.wantArgs) {
				t.Errorf("Expected args %v, got %v", tc.wantArgs, cmd.Args)
			}
			for k, v := range tc.wantArgs {
				if cmd.Args[k] != v {
					t.Errorf("Expected %s=%v, got %v", k, v, cmd.Args[k])
				}
			}
			if cmd.IsSet() != tc.isSet {
				t.Errorf("Expected IsSet %v", tc.isSet)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, input := range []string{"", "FREQ:fourteen", "POWER:x", "POWER:10:HEAD", "PTT:maybe", "HISTORY:-3"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseCommand(input); err == nil {
				t.Errorf("Expected error for %q", input)
			}
		})
	}
}

func TestResponseString(t *testing.T) {
	resp := NewSuccessResponse(map[string]interface{}{"frequency": 14074000})
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("Expected success true, got %v", decoded["success"])
	}

	errResp := NewErrorResponse("FA: timeout")
	errResp.Kind = "timeout"
	if !strings.Contains(errResp.String(), `"kind":"timeout"`) {
		t.Errorf("Expected kind in %s", errResp.String())
	}
	if strings.Contains(errResp.String(), `"data"`) {
		t.Errorf("Expected data to be omitted in %s", errResp.String())
	}
}

func TestSnapshotJSONIsFlat(t *testing.T) {
	snap := Snapshot{
		ID:        7,
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		RadioState: controller.RadioState{
			Frequency: 14074000,
			Mode:      cat.ModeUSB,
			PowerUnit: cat.PowerPrimary,
			Watts:     10,
		},
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["frequency"] != float64(14074000) {
		t.Errorf("Expected flat frequency field, got %v", decoded["frequency"])
	}
	if decoded["mode"] != "USB" {
		t.Errorf("Expected mode USB, got %v", decoded["mode"])
	}
}
