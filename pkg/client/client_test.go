package client

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/config"
	"github.com/dougsko/ftxcat/pkg/engine"
)

func startDaemon(t *testing.T) (*SocketClient, *engine.CoreEngine) {
	t.Helper()

	cfg := config.Default()
	cfg.Radio.Device = "sim://"
	cfg.Radio.TimeoutMs = 100

	socketPath := filepath.Join(t.TempDir(), "ftxd.sock")
	e := engine.NewCoreEngine(cfg, socketPath, nil)
	require.NoError(t, e.Start())
	t.Cleanup(func() { e.Stop() })

	return NewSocketClient(socketPath), e
}

func TestClientAgainstEngine(t *testing.T) {
	c, _ := startDaemon(t)

	assert.True(t, c.IsConnected())

	status, err := c.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "sim://", status.Device)

	hz, err := c.SetFrequency("MAIN", 3573000)
	require.NoError(t, err)
	assert.Equal(t, 3573000, hz)

	hz, err = c.GetFrequency("SUB")
	require.NoError(t, err)
	assert.Equal(t, 7074000, hz)

	unit, watts, err := c.SetPower(8, "FIELD")
	require.NoError(t, err)
	assert.Equal(t, "FIELD", unit)
	assert.Equal(t, 8, watts)

	mode, err := c.SetMode("SUB", "AM")
	require.NoError(t, err)
	assert.Equal(t, "AM", mode)

	transmit, err := c.SetPTT(true)
	require.NoError(t, err)
	assert.True(t, transmit)
	transmit, err = c.SetPTT(false)
	require.NoError(t, err)
	assert.False(t, transmit)

	id, err := c.GetID()
	require.NoError(t, err)
	assert.Equal(t, "0840", id)

	snap, err := c.GetState()
	require.NoError(t, err)
	assert.Equal(t, 3573000, snap.Frequency)
	assert.Equal(t, cat.PowerPrimary, snap.PowerUnit)
	assert.Equal(t, 8, snap.Watts)

	history, err := c.GetHistory(5)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestClientCommandError(t *testing.T) {
	c, e := startDaemon(t)

	_, _, err := c.SetPower(200, "AMP")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "power", cmdErr.Command)
	assert.Equal(t, cat.ErrValueOutOfRange.Error(), cmdErr.Kind)

	e.Simulator().Reject(cat.VerbIdentify)
	_, err = c.GetID()
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, cat.ErrRejected.Error(), cmdErr.Kind)
}

func TestClientNoDaemon(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
	assert.False(t, c.IsConnected())
	_, err := c.GetStatus()
	assert.Error(t, err)
}
