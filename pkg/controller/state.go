package controller

import (
	"fmt"

	"github.com/dougsko/ftxcat/pkg/cat"
)

// RadioState is a composite read of the main side. It is built from several
// queries and may mix instants if the radio changes meanwhile.
type RadioState struct {
	Frequency          int                    `json:"frequency"`
	Mode               cat.Mode               `json:"mode"`
	Channel            string                 `json:"channel"`
	ChannelMode        cat.ChannelMode        `json:"channel_mode"`
	ClarifierDirection cat.ClarifierDirection `json:"clarifier_direction"`
	ClarifierOffset    int                    `json:"clarifier_offset"`
	RxClarifier        bool                   `json:"rx_clarifier"`
	TxClarifier        bool                   `json:"tx_clarifier"`
	PowerUnit          cat.PowerUnit          `json:"power_unit"`
	Watts              int                    `json:"watts"`
}

// Clarifier is the clarifier section of the IF frame.
type Clarifier struct {
	Direction cat.ClarifierDirection `json:"direction"`
	Offset    int                    `json:"offset"`
	RX        bool                   `json:"rx"`
	TX        bool                   `json:"tx"`
}

// infoSequence is the query order of GetRadioInfo.
var infoSequence = []struct {
	verb   string
	params []cat.Value
	merge  func(*RadioState, *cat.ParsedResponse) error
}{
	{cat.VerbFrequencyMain, nil, mergeFrequency},
	{cat.VerbMode, []cat.Value{cat.Tag(string(cat.SideMain))}, mergeMode},
	{cat.VerbMemoryChannel, []cat.Value{cat.Tag(string(cat.SideMain))}, mergeChannel},
	{cat.VerbInformation, nil, mergeInformation},
	{cat.VerbPower, nil, mergePower},
}

// GetRadioInfo reads frequency, mode, memory channel, clarifier and power,
// in that order. The first failing query aborts the read and its error is
// returned; no partial state is returned.
func (c *Controller) GetRadioInfo() (*RadioState, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var state RadioState
	for _, step := range infoSequence {
		resp, err := c.query(step.verb, step.params...)
		if err != nil {
			return nil, err
		}
		if err := step.merge(&state, resp); err != nil {
			return nil, err
		}
	}
	return &state, nil
}

// GetClarifier reads the clarifier from the IF frame.
func (c *Controller) GetClarifier() (*Clarifier, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.getClarifier()
}

func (c *Controller) getClarifier() (*Clarifier, error) {
	resp, err := c.query(cat.VerbInformation)
	if err != nil {
		return nil, err
	}
	var state RadioState
	if err := mergeInformation(&state, resp); err != nil {
		return nil, err
	}
	return &Clarifier{
		Direction: state.ClarifierDirection,
		Offset:    state.ClarifierOffset,
		RX:        state.RxClarifier,
		TX:        state.TxClarifier,
	}, nil
}

func mergeFrequency(s *RadioState, r *cat.ParsedResponse) (err error) {
	s.Frequency, err = r.Int(cat.FieldFrequency)
	return err
}

func mergeMode(s *RadioState, r *cat.ParsedResponse) error {
	mode, err := r.Tag(cat.FieldMode)
	s.Mode = cat.Mode(mode)
	return err
}

func mergeChannel(s *RadioState, r *cat.ParsedResponse) error {
	ch, err := r.Int(cat.FieldChannel)
	s.Channel = fmt.Sprintf("%03d", ch)
	return err
}

func mergeInformation(s *RadioState, r *cat.ParsedResponse) error {
	var tags [4]string
	for i, name := range []string{cat.FieldChannelMode, cat.FieldClarDir, cat.FieldRxClar, cat.FieldTxClar} {
		tag, err := r.Tag(name)
		if err != nil {
			return err
		}
		tags[i] = tag
	}
	offset, err := r.Int(cat.FieldClarOffset)
	if err != nil {
		return err
	}

	s.ChannelMode = cat.ChannelMode(tags[0])
	s.ClarifierDirection = cat.ClarifierDirection(tags[1])
	s.RxClarifier = tags[2] == "ON"
	s.TxClarifier = tags[3] == "ON"
	s.ClarifierOffset = offset
	return nil
}

func mergePower(s *RadioState, r *cat.ParsedResponse) error {
	unit, err := r.Tag(cat.FieldUnit)
	if err != nil {
		return err
	}
	s.PowerUnit = cat.PowerUnit(unit)
	s.Watts, err = r.Int(cat.FieldWatts)
	return err
}
