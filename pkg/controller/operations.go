package controller

import (
	"fmt"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/logging"
)

func frequencyVerb(side cat.Side) (string, error) {
	switch side {
	case cat.SideMain:
		return cat.VerbFrequencyMain, nil
	case cat.SideSub:
		return cat.VerbFrequencySub, nil
	}
	return "", &cat.Error{Kind: cat.ErrUnsupportedValue, Field: cat.FieldSide, Detail: fmt.Sprintf("unknown side %q", side)}
}

func checkSide(side cat.Side) error {
	if !cat.SideTable.Has(string(side)) {
		return &cat.Error{Kind: cat.ErrUnsupportedValue, Field: cat.FieldSide, Detail: fmt.Sprintf("unknown side %q", side)}
	}
	return nil
}

func outOfRange(verb, field string, value, min, max int) error {
	return &cat.Error{
		Kind:   cat.ErrValueOutOfRange,
		Verb:   verb,
		Field:  field,
		Detail: fmt.Sprintf("%d not in %d..%d", value, min, max),
	}
}

// GetFrequency returns the frequency of side in Hz.
func (c *Controller) GetFrequency(side cat.Side) (int, error) {
	verb, err := frequencyVerb(side)
	if err != nil {
		return 0, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(verb)
	if err != nil {
		return 0, err
	}
	return resp.Int(cat.FieldFrequency)
}

// SetFrequency tunes side to hz. hz outside the FTX-1 range fails before
// anything is sent.
func (c *Controller) SetFrequency(side cat.Side, hz int) error {
	verb, err := frequencyVerb(side)
	if err != nil {
		return err
	}
	if hz < cat.MinFrequency || hz > cat.MaxFrequency {
		return outOfRange(verb, cat.FieldFrequency, hz, cat.MinFrequency, cat.MaxFrequency)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(verb, []cat.Value{cat.Int(hz)}, readback(verb))
}

// GetPower returns the selected power unit and its setting in watts.
func (c *Controller) GetPower() (cat.PowerUnit, int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.getPower()
}

func (c *Controller) getPower() (cat.PowerUnit, int, error) {
	resp, err := c.query(cat.VerbPower)
	if err != nil {
		return "", 0, err
	}
	unit, err := resp.Tag(cat.FieldUnit)
	if err != nil {
		return "", 0, err
	}
	watts, err := resp.Int(cat.FieldWatts)
	if err != nil {
		return "", 0, err
	}
	return cat.PowerUnit(unit), watts, nil
}

// SetPower sets the output of unit to watts. The unit decides the valid
// range.
func (c *Controller) SetPower(watts int, unit cat.PowerUnit) error {
	if _, _, err := cat.EncodePower(watts, unit); err != nil {
		if ce, ok := err.(*cat.Error); ok {
			ce.Verb = cat.VerbPower
		}
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(cat.VerbPower, []cat.Value{cat.Tag(string(unit)), cat.Int(watts)}, readback(cat.VerbPower))
}

// GetMode returns the operating mode of side.
func (c *Controller) GetMode(side cat.Side) (cat.Mode, error) {
	if err := checkSide(side); err != nil {
		return "", err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.getMode(side)
}

func (c *Controller) getMode(side cat.Side) (cat.Mode, error) {
	resp, err := c.query(cat.VerbMode, cat.Tag(string(side)))
	if err != nil {
		return "", err
	}
	mode, err := resp.Tag(cat.FieldMode)
	return cat.Mode(mode), err
}

// SetMode sets the operating mode of side.
func (c *Controller) SetMode(side cat.Side, mode cat.Mode) error {
	if err := checkSide(side); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := cat.Tag(string(side))
	return c.set(cat.VerbMode, []cat.Value{s, cat.Tag(string(mode))}, readback(cat.VerbMode, s))
}

// GetMemoryChannel returns the memory channel selected on side.
func (c *Controller) GetMemoryChannel(side cat.Side) (int, error) {
	if err := checkSide(side); err != nil {
		return 0, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbMemoryChannel, cat.Tag(string(side)))
	if err != nil {
		return 0, err
	}
	return resp.Int(cat.FieldChannel)
}

// SetMemoryChannel recalls memory channel ch on side.
func (c *Controller) SetMemoryChannel(side cat.Side, ch int) error {
	if err := checkSide(side); err != nil {
		return err
	}
	if ch < cat.MinMemoryChannel || ch > cat.MaxMemoryChannel {
		return outOfRange(cat.VerbMemoryChannel, cat.FieldChannel, ch, cat.MinMemoryChannel, cat.MaxMemoryChannel)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := cat.Tag(string(side))
	return c.set(cat.VerbMemoryChannel, []cat.Value{s, cat.Int(ch)}, readback(cat.VerbMemoryChannel, s))
}

// GetPTT reports whether the radio is transmitting.
func (c *Controller) GetPTT() (cat.TXState, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbTransmit)
	if err != nil {
		return "", err
	}
	state, err := resp.Tag(cat.FieldTXState)
	return cat.TXState(state), err
}

// SetPTT keys or unkeys the transmitter. The TX state read back reflects
// the radio rather than the request, so it is only checked for a refusal.
func (c *Controller) SetPTT(on bool) error {
	state := cat.TXOff
	if on {
		state = cat.TXCAT
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(cat.VerbTransmit, []cat.Value{cat.Tag(string(state))}, settle(cat.VerbTransmit))
}

// GetID returns the radio's four-character identifier.
func (c *Controller) GetID() (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbIdentify)
	if err != nil {
		return "", err
	}
	return resp.Tag(cat.FieldID)
}

func (c *Controller) getLevel(verb string, side cat.Side) (int, error) {
	if err := checkSide(side); err != nil {
		return 0, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(verb, cat.Tag(string(side)))
	if err != nil {
		return 0, err
	}
	return resp.Int(cat.FieldLevel)
}

func (c *Controller) setLevel(verb string, side cat.Side, level int) error {
	if err := checkSide(side); err != nil {
		return err
	}
	if level < 0 || level > cat.MaxLevel {
		return outOfRange(verb, cat.FieldLevel, level, 0, cat.MaxLevel)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := cat.Tag(string(side))
	return c.set(verb, []cat.Value{s, cat.Int(level)}, readback(verb, s))
}

// GetAFGain returns the AF gain of side, 0-255.
func (c *Controller) GetAFGain(side cat.Side) (int, error) {
	return c.getLevel(cat.VerbAFGain, side)
}

// SetAFGain sets the AF gain of side.
func (c *Controller) SetAFGain(side cat.Side, level int) error {
	return c.setLevel(cat.VerbAFGain, side, level)
}

// GetSquelch returns the squelch level of side, 0-255.
func (c *Controller) GetSquelch(side cat.Side) (int, error) {
	return c.getLevel(cat.VerbSquelch, side)
}

// SetSquelch sets the squelch level of side.
func (c *Controller) SetSquelch(side cat.Side, level int) error {
	return c.setLevel(cat.VerbSquelch, side, level)
}

// GetSMeter returns the raw S-meter reading of side.
func (c *Controller) GetSMeter(side cat.Side) (int, error) {
	return c.getLevel(cat.VerbSMeter, side)
}

// GetSplit reports whether split operation is on.
func (c *Controller) GetSplit() (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbSplit)
	if err != nil {
		return false, err
	}
	split, err := resp.Tag(cat.FieldSplit)
	return split == "ON", err
}

// SetSplit turns split operation on or off.
func (c *Controller) SetSplit(on bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(cat.VerbSplit, []cat.Value{onOff(on)}, readback(cat.VerbSplit))
}

// GetAGC returns the AGC setting of side.
func (c *Controller) GetAGC(side cat.Side) (cat.AGC, error) {
	if err := checkSide(side); err != nil {
		return "", err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbAGC, cat.Tag(string(side)))
	if err != nil {
		return "", err
	}
	agc, err := resp.Tag(cat.FieldAGC)
	return cat.AGC(agc), err
}

// SetAGC sets the AGC of side.
func (c *Controller) SetAGC(side cat.Side, agc cat.AGC) error {
	if err := checkSide(side); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := cat.Tag(string(side))
	return c.set(cat.VerbAGC, []cat.Value{s, cat.Tag(string(agc))}, readback(cat.VerbAGC, s))
}

// SwapVFO exchanges the main and sub VFOs.
func (c *Controller) SwapVFO() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(cat.VerbSwapVFO, nil, settle(cat.VerbFrequencyMain))
}

func onOff(on bool) cat.Value {
	if on {
		return cat.Tag("ON")
	}
	return cat.Tag("OFF")
}

// SetClarifier switches the RX and TX clarifier of side and sets its
// offset in Hz. The offset must be within ±cat.MaxClarifierOffset. The IF
// frame only reports the main side, so a sub side change is checked for
// refusal but not read back.
func (c *Controller) SetClarifier(side cat.Side, rx, tx bool, offset int) error {
	if err := checkSide(side); err != nil {
		return err
	}
	if offset < -cat.MaxClarifierOffset || offset > cat.MaxClarifierOffset {
		return outOfRange(cat.VerbClarifier, cat.FieldClarOffset, offset, -cat.MaxClarifierOffset, cat.MaxClarifierOffset)
	}
	want := Clarifier{Direction: cat.ClarifierPlus, Offset: offset, RX: rx, TX: tx}
	if offset < 0 {
		want.Direction, want.Offset = cat.ClarifierMinus, -offset
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := cat.Tag(string(side))
	settings := []cat.Value{s, cat.Tag(cat.ClarSelectSettings), onOff(rx), onOff(tx), cat.Tag("000")}
	if err := c.set(cat.VerbClarifier, settings, settle(cat.VerbInformation)); err != nil {
		return err
	}
	value := []cat.Value{s, cat.Tag(cat.ClarSelectOffset), cat.Tag(string(want.Direction)), cat.Int(want.Offset)}
	if err := c.set(cat.VerbClarifier, value, settle(cat.VerbInformation)); err != nil {
		return err
	}

	if side != cat.SideMain || c.opts.Confirm != ConfirmReadback {
		return nil
	}
	got, err := c.getClarifier()
	if err != nil {
		return err
	}
	// the sign of a zero offset is not significant
	if got.Offset == 0 {
		got.Direction = want.Direction
	}
	if *got != want {
		logging.Warn("controller", "set not confirmed", map[string]interface{}{
			"verb": cat.VerbClarifier, "want": fmt.Sprintf("%+v", want), "got": fmt.Sprintf("%+v", *got),
		})
		return &cat.Error{
			Kind:   cat.ErrSetNotConfirmed,
			Verb:   cat.VerbClarifier,
			Detail: fmt.Sprintf("requested %+v, radio reports %+v", want, *got),
		}
	}
	return nil
}

// GetMeter returns the two readings of meter.
func (c *Controller) GetMeter(meter cat.Meter) (primary, secondary int, err error) {
	if !cat.MeterTable.Has(string(meter)) {
		return 0, 0, &cat.Error{Kind: cat.ErrUnsupportedValue, Verb: cat.VerbMeter, Field: cat.FieldMeter, Detail: fmt.Sprintf("unknown meter %q", meter)}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbMeter, cat.Tag(string(meter)))
	if err != nil {
		return 0, 0, err
	}
	if primary, err = resp.Int(cat.FieldPrimary); err != nil {
		return 0, 0, err
	}
	secondary, err = resp.Int(cat.FieldSecondary)
	return primary, secondary, err
}

// GetFirmwareVersion returns the firmware version of cpu.
func (c *Controller) GetFirmwareVersion(cpu cat.CPU) (string, error) {
	if !cat.CPUTable.Has(string(cpu)) {
		return "", &cat.Error{Kind: cat.ErrUnsupportedValue, Verb: cat.VerbVersion, Field: cat.FieldCPU, Detail: fmt.Sprintf("unknown cpu %q", cpu)}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.query(cat.VerbVersion, cat.Tag(string(cpu)))
	if err != nil {
		return "", err
	}
	return resp.Tag(cat.FieldVersion)
}

// SelectBand recalls the band memory of band on side.
func (c *Controller) SelectBand(side cat.Side, band cat.Band) error {
	verb, err := frequencyVerb(side)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(cat.VerbBandSelect, []cat.Value{cat.Tag(string(side)), cat.Tag(string(band))}, settle(verb))
}

// BandUp steps side to the next band.
func (c *Controller) BandUp(side cat.Side) error {
	return c.stepBand(cat.VerbBandUp, side)
}

// BandDown steps side to the previous band.
func (c *Controller) BandDown(side cat.Side) error {
	return c.stepBand(cat.VerbBandDown, side)
}

func (c *Controller) stepBand(step string, side cat.Side) error {
	verb, err := frequencyVerb(side)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.set(step, []cat.Value{cat.Tag(string(side))}, settle(verb))
}
