package engine

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/config"
	"github.com/dougsko/ftxcat/pkg/protocol"
	"github.com/dougsko/ftxcat/pkg/storage"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Radio.Device = "sim://"
	cfg.Radio.TimeoutMs = 100
	retries := 0
	cfg.Radio.MaxRetries = &retries
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, socket bool) (*CoreEngine, *storage.StateStore) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewStateStore(filepath.Join(dir, "state.db"), 100)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	socketPath := ""
	if socket {
		socketPath = filepath.Join(dir, "ftxd.sock")
	}

	e := NewCoreEngine(cfg, socketPath, store)
	require.NoError(t, e.Start())
	t.Cleanup(func() { e.Stop() })
	return e, store
}

func TestEngineLifecycle(t *testing.T) {
	e := NewCoreEngine(testConfig(), "", nil)

	_, err := e.GetFrequency(cat.SideMain)
	assert.True(t, errors.Is(err, cat.ErrClosed), "operations fail before Start")

	require.NoError(t, e.Start())
	assert.Error(t, e.Start(), "second Start")
	assert.NotNil(t, e.Simulator())

	status := e.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "sim://", status.Device)
	assert.Equal(t, "readback", status.Confirm)
	assert.Equal(t, Version, status.Version)
	assert.False(t, status.Polling)

	require.NoError(t, e.Stop())
	assert.NoError(t, e.Stop(), "Stop is idempotent")

	_, err = e.GetID()
	assert.True(t, errors.Is(err, cat.ErrClosed), "operations fail after Stop")
}

func TestEngineStartBadDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Radio.Device = ""
	e := NewCoreEngine(cfg, "", nil)
	assert.Error(t, e.Start())
}

func TestEngineOperationsAreAudited(t *testing.T) {
	e, store := newTestEngine(t, testConfig(), false)

	require.NoError(t, e.SetFrequency(cat.SideMain, 7074000))
	hz, err := e.GetFrequency(cat.SideMain)
	require.NoError(t, err)
	assert.Equal(t, 7074000, hz)

	require.NoError(t, e.SetMode(cat.SideSub, cat.ModeCWU))
	mode, err := e.GetMode(cat.SideSub)
	require.NoError(t, err)
	assert.Equal(t, cat.ModeCWU, mode)

	require.NoError(t, e.SetPower(5, cat.PowerPrimary))
	unit, watts, err := e.GetPower()
	require.NoError(t, err)
	assert.Equal(t, cat.PowerPrimary, unit)
	assert.Equal(t, 5, watts)

	id, err := e.GetID()
	require.NoError(t, err)
	assert.Equal(t, "0840", id)

	err = e.SetPower(11, cat.PowerPrimary)
	assert.True(t, errors.Is(err, cat.ErrValueOutOfRange))

	ops, err := e.Operations(storage.OperationQuery{})
	require.NoError(t, err)
	require.Len(t, ops, 8)
	// newest first
	assert.Equal(t, "set_power", ops[0].Name)
	assert.False(t, ops[0].Success)
	assert.Equal(t, cat.ErrValueOutOfRange.Error(), ops[0].ErrorKind)
	assert.JSONEq(t, `{"watts":11,"unit":"FIELD"}`, ops[0].Params)
	assert.NotEmpty(t, ops[0].OpID)

	failed, err := store.GetOperations(storage.OperationQuery{FailedOnly: true})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestEnginePTT(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), false)

	require.NoError(t, e.SetPTT(true))
	state, err := e.GetPTT()
	require.NoError(t, err)
	assert.Equal(t, cat.TXCAT, state)

	require.NoError(t, e.SetPTT(false))
	state, err = e.GetPTT()
	require.NoError(t, err)
	assert.Equal(t, cat.TXOff, state)
}

func TestEngineReadStateRecordsSnapshot(t *testing.T) {
	e, store := newTestEngine(t, testConfig(), false)
	assert.Nil(t, e.LastState())

	id, states := e.Subscribe()
	defer e.Unsubscribe(id)

	snap, err := e.ReadState()
	require.NoError(t, err)
	assert.Equal(t, 14074000, snap.Frequency)
	assert.Equal(t, cat.ModeUSB, snap.Mode)
	assert.Equal(t, "001", snap.Channel)
	assert.Equal(t, 10, snap.Watts)
	assert.NotZero(t, snap.ID)

	select {
	case got := <-states:
		assert.Equal(t, snap.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive snapshot")
	}

	last := e.LastState()
	require.NotNil(t, last)
	assert.Equal(t, snap.ID, last.ID)

	history, err := e.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 14074000, history[0].Frequency)

	count, err := store.GetSnapshotCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngineHistoryWithoutStore(t *testing.T) {
	e := NewCoreEngine(testConfig(), "", nil)
	require.NoError(t, e.Start())
	defer e.Stop()

	history, err := e.History(5)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = e.ReadState()
	require.NoError(t, err)
	history, err = e.History(5)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	ops, err := e.Operations(storage.OperationQuery{})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestEnginePoller(t *testing.T) {
	cfg := testConfig()
	cfg.Radio.PollInterval = 20
	e, store := newTestEngine(t, cfg, false)
	assert.True(t, e.Status().Polling)

	id, states := e.Subscribe()
	e.Simulator().SetFrequency(cat.SideMain, 21074000)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-states:
			if snap.Frequency != 21074000 {
				continue
			}
			e.Unsubscribe(id)
			count, err := store.GetSnapshotCount()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, 1)

			// polls are not written to the operation log
			ops, err := store.GetOperations(storage.OperationQuery{Name: "get_radio_info"})
			require.NoError(t, err)
			assert.Empty(t, ops)
			return
		case <-deadline:
			t.Fatal("poller did not publish the new frequency")
		}
	}
}

func TestEngineStopClosesSubscribers(t *testing.T) {
	e := NewCoreEngine(testConfig(), "", nil)
	require.NoError(t, e.Start())

	_, states := e.Subscribe()
	require.NoError(t, e.Stop())

	_, ok := <-states
	assert.False(t, ok)
}

func TestEngineErrorKinds(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), false)

	e.Simulator().Reject(cat.VerbFrequencyMain)
	resp := e.handleCommand(&protocol.Command{Type: protocol.CmdFreq, Args: map[string]interface{}{"side": "MAIN"}})
	assert.False(t, resp.Success)
	assert.Equal(t, cat.ErrRejected.Error(), resp.Kind)

	e.Simulator().Mute(true)
	resp = e.handleCommand(&protocol.Command{Type: protocol.CmdID})
	assert.False(t, resp.Success)
	assert.Equal(t, cat.ErrTimeout.Error(), resp.Kind)
}

func TestSocketServer(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(), true)

	conn, err := net.Dial("unix", e.socketPath)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	send := func(line string) protocol.Response {
		t.Helper()
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		reply, err := reader.ReadString('\n')
		require.NoError(t, err)
		var resp protocol.Response
		require.NoError(t, json.Unmarshal([]byte(reply), &resp))
		return resp
	}

	resp := send("PING")
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Data, "pong")

	resp = send("FREQ:14250000")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, float64(14250000), resp.Data["frequency"])
	assert.Equal(t, "MAIN", resp.Data["side"])

	resp = send("FREQ:SUB")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, float64(7074000), resp.Data["frequency"])

	resp = send("MODE:DATA-U")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "DATA-U", resp.Data["mode"])

	resp = send("MODE:BOGUS")
	assert.False(t, resp.Success)
	assert.Equal(t, cat.ErrUnsupportedValue.Error(), resp.Kind)

	resp = send("POWER:50:AMP")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "SPA-1", resp.Data["unit"])
	assert.Equal(t, float64(50), resp.Data["watts"])

	resp = send("PTT")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, false, resp.Data["transmit"])

	resp = send("ID")
	assert.Equal(t, "0840", resp.Data["id"])

	resp = send("INFO")
	require.True(t, resp.Success, resp.Error)
	state := resp.Data["state"].(map[string]interface{})
	assert.Equal(t, float64(14250000), state["frequency"])
	assert.Equal(t, "DATA-U", state["mode"])

	resp = send("HISTORY:5")
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, float64(1), resp.Data["count"])

	resp = send("STATUS")
	assert.True(t, resp.Success)

	resp = send("FREQ:abc")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "parse error")

	resp = send("NOPE")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown command")

	resp = send("QUIT")
	assert.True(t, resp.Success)
	_, err = reader.ReadString('\n')
	assert.Error(t, err, "connection closed after QUIT")
}
