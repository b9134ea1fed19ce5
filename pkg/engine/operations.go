package engine

import (
	"encoding/json"
	"time"

	"github.com/twinj/uuid"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/controller"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/protocol"
	"github.com/dougsko/ftxcat/pkg/storage"
)

// controller returns the radio, or a closed error before Start and after Stop.
func (e *CoreEngine) controller() (*controller.Controller, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	if !e.running || e.radio == nil {
		return nil, &cat.Error{Kind: cat.ErrClosed, Detail: "engine not running"}
	}
	return e.radio, nil
}

// audit runs fn against the radio and records the call in the operation log.
func (e *CoreEngine) audit(name string, params map[string]interface{}, fn func(*controller.Controller) error) error {
	op := protocol.Operation{
		OpID:      uuid.NewV4().String(),
		Timestamp: time.Now(),
		Name:      name,
	}
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			op.Params = string(data)
		}
	}

	log := logging.WithFields(map[string]interface{}{"op": name, "op_id": op.OpID})

	radio, err := e.controller()
	if err == nil {
		err = fn(radio)
	}

	op.DurationMs = time.Since(op.Timestamp).Milliseconds()
	op.Success = err == nil
	if err != nil {
		op.Error = err.Error()
		if kind := cat.KindOf(err); kind != nil {
			op.ErrorKind = kind.Error()
		}
		log.Warnf("engine", "operation failed: %v", err)
	} else {
		log.Debugf("engine", "operation done in %dms", op.DurationMs)
	}

	if e.store != nil {
		if serr := e.store.StoreOperation(op); serr != nil {
			log.Errorf("engine", "failed to store operation: %v", serr)
		}
	}
	return err
}

// GetFrequency reads the VFO frequency of side in Hz
func (e *CoreEngine) GetFrequency(side cat.Side) (hz int, err error) {
	err = e.audit("get_frequency", map[string]interface{}{"side": side}, func(c *controller.Controller) error {
		hz, err = c.GetFrequency(side)
		return err
	})
	return hz, err
}

// SetFrequency tunes the VFO of side
func (e *CoreEngine) SetFrequency(side cat.Side, hz int) error {
	return e.audit("set_frequency", map[string]interface{}{"side": side, "frequency": hz}, func(c *controller.Controller) error {
		return c.SetFrequency(side, hz)
	})
}

// GetPower reads the output power setting
func (e *CoreEngine) GetPower() (unit cat.PowerUnit, watts int, err error) {
	err = e.audit("get_power", nil, func(c *controller.Controller) error {
		unit, watts, err = c.GetPower()
		return err
	})
	return unit, watts, err
}

// SetPower sets the output power of unit
func (e *CoreEngine) SetPower(watts int, unit cat.PowerUnit) error {
	return e.audit("set_power", map[string]interface{}{"watts": watts, "unit": unit}, func(c *controller.Controller) error {
		return c.SetPower(watts, unit)
	})
}

// GetMode reads the operating mode of side
func (e *CoreEngine) GetMode(side cat.Side) (mode cat.Mode, err error) {
	err = e.audit("get_mode", map[string]interface{}{"side": side}, func(c *controller.Controller) error {
		mode, err = c.GetMode(side)
		return err
	})
	return mode, err
}

// SetMode sets the operating mode of side
func (e *CoreEngine) SetMode(side cat.Side, mode cat.Mode) error {
	return e.audit("set_mode", map[string]interface{}{"side": side, "mode": mode}, func(c *controller.Controller) error {
		return c.SetMode(side, mode)
	})
}

// GetPTT reads the transmit state
func (e *CoreEngine) GetPTT() (state cat.TXState, err error) {
	err = e.audit("get_ptt", nil, func(c *controller.Controller) error {
		state, err = c.GetPTT()
		return err
	})
	return state, err
}

// SetPTT keys or unkeys the transmitter
func (e *CoreEngine) SetPTT(on bool) error {
	return e.audit("set_ptt", map[string]interface{}{"on": on}, func(c *controller.Controller) error {
		return c.SetPTT(on)
	})
}

// GetID reads the radio identifier
func (e *CoreEngine) GetID() (id string, err error) {
	err = e.audit("get_id", nil, func(c *controller.Controller) error {
		id, err = c.GetID()
		return err
	})
	return id, err
}

// GetClarifier reads the main side clarifier
func (e *CoreEngine) GetClarifier() (clar *controller.Clarifier, err error) {
	err = e.audit("get_clarifier", nil, func(c *controller.Controller) error {
		clar, err = c.GetClarifier()
		return err
	})
	return clar, err
}

// SetClarifier switches the clarifier of side and sets its offset in Hz
func (e *CoreEngine) SetClarifier(side cat.Side, rx, tx bool, offset int) error {
	params := map[string]interface{}{"side": side, "rx": rx, "tx": tx, "offset": offset}
	return e.audit("set_clarifier", params, func(c *controller.Controller) error {
		return c.SetClarifier(side, rx, tx, offset)
	})
}

// GetMeter reads both values of a meter
func (e *CoreEngine) GetMeter(meter cat.Meter) (primary, secondary int, err error) {
	err = e.audit("get_meter", map[string]interface{}{"meter": meter}, func(c *controller.Controller) error {
		primary, secondary, err = c.GetMeter(meter)
		return err
	})
	return primary, secondary, err
}

// GetFirmwareVersion reads the firmware version of a CPU
func (e *CoreEngine) GetFirmwareVersion(cpu cat.CPU) (version string, err error) {
	err = e.audit("get_firmware_version", map[string]interface{}{"cpu": cpu}, func(c *controller.Controller) error {
		version, err = c.GetFirmwareVersion(cpu)
		return err
	})
	return version, err
}

// SelectBand recalls a band memory on side
func (e *CoreEngine) SelectBand(side cat.Side, band cat.Band) error {
	return e.audit("select_band", map[string]interface{}{"side": side, "band": band}, func(c *controller.Controller) error {
		return c.SelectBand(side, band)
	})
}

// StepBand moves side one band up, or down when up is false
func (e *CoreEngine) StepBand(side cat.Side, up bool) error {
	name := "band_down"
	if up {
		name = "band_up"
	}
	return e.audit(name, map[string]interface{}{"side": side}, func(c *controller.Controller) error {
		if up {
			return c.BandUp(side)
		}
		return c.BandDown(side)
	})
}

// ReadState reads the full radio state now, records it and publishes it
// to subscribers.
func (e *CoreEngine) ReadState() (*protocol.Snapshot, error) {
	var state *controller.RadioState
	err := e.audit("get_radio_info", nil, func(c *controller.Controller) (err error) {
		state, err = c.GetRadioInfo()
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.record(*state), nil
}

// LastState returns the most recent state read, nil if none yet
func (e *CoreEngine) LastState() *protocol.Snapshot {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	if e.lastState == nil {
		return nil
	}
	snap := *e.lastState
	return &snap
}

// History returns the newest stored snapshots. Without a store only the
// last state read is available.
func (e *CoreEngine) History(limit int) ([]protocol.Snapshot, error) {
	if e.store == nil {
		if last := e.LastState(); last != nil {
			return []protocol.Snapshot{*last}, nil
		}
		return []protocol.Snapshot{}, nil
	}
	return e.store.GetRecentSnapshots(limit)
}

// Operations returns entries from the operation log
func (e *CoreEngine) Operations(query storage.OperationQuery) ([]protocol.Operation, error) {
	if e.store == nil {
		return []protocol.Operation{}, nil
	}
	return e.store.GetOperations(query)
}

// record stores state as a snapshot and publishes it
func (e *CoreEngine) record(state controller.RadioState) *protocol.Snapshot {
	snap := protocol.Snapshot{Timestamp: time.Now(), RadioState: state}

	if e.store != nil {
		id, err := e.store.StoreSnapshot(state, snap.Timestamp)
		if err != nil {
			logging.Warnf("engine", "failed to store snapshot: %v", err)
		} else {
			snap.ID = int(id)
		}
	}

	e.mutex.Lock()
	e.lastState = &snap
	e.mutex.Unlock()

	e.publish(snap)
	return &snap
}
