package hardware

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/acomagu/bufpipe"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/logging"
)

// SimOptions shapes how the simulated radio behaves on the wire.
type SimOptions struct {
	// LocalEcho writes every received frame straight back before any reply,
	// as single-wire CAT interfaces do.
	LocalEcho bool
	// EchoSets answers set commands with the applied setting in set shape.
	EchoSets bool
	// ChunkSize splits replies into writes of at most this many bytes.
	ChunkSize int
	// ReplyDelay is waited before each reply.
	ReplyDelay time.Duration
}

// SimulatedRadio emulates an FTX-1 CAT port in memory. It is an
// io.ReadWriteCloser; wrap it with NewStreamPort to get a Port.
type SimulatedRadio struct {
	opts  SimOptions
	codec *cat.Codec
	mutex sync.Mutex

	// Radio state
	frequency   map[cat.Side]int
	mode        map[cat.Side]cat.Mode
	agc         map[cat.Side]cat.AGC
	afGain      map[cat.Side]int
	squelch     map[cat.Side]int
	sMeter      map[cat.Side]int
	memory      map[cat.Side]int
	channelMode cat.ChannelMode
	powerUnit   cat.PowerUnit
	powerWatts  int
	clarDir     cat.ClarifierDirection
	clarOffset  int
	rxClar      bool
	txClar      bool
	tx          cat.TXState
	split       bool
	id          string
	meters      map[cat.Meter][2]int
	firmware    map[cat.CPU]string

	// Fault injection
	muted     bool
	drop      int
	rejected  map[string]bool
	garbled   map[string]string
	received  []string
	unsolicit []byte

	toRadioR   *bufpipe.PipeReader
	toRadioW   *bufpipe.PipeWriter
	fromRadioR *bufpipe.PipeReader
	fromRadioW *bufpipe.PipeWriter
	closeOnce  sync.Once
}

// NewSimulatedRadio creates a simulated FTX-1 on 20m USB, 10 W.
func NewSimulatedRadio(opts SimOptions) *SimulatedRadio {
	r := &SimulatedRadio{
		opts:        opts,
		codec:       cat.DefaultCodec,
		frequency:   map[cat.Side]int{cat.SideMain: 14074000, cat.SideSub: 7074000},
		mode:        map[cat.Side]cat.Mode{cat.SideMain: cat.ModeUSB, cat.SideSub: cat.ModeLSB},
		agc:         map[cat.Side]cat.AGC{cat.SideMain: cat.AGCAuto, cat.SideSub: cat.AGCAuto},
		afGain:      map[cat.Side]int{cat.SideMain: 128, cat.SideSub: 128},
		squelch:     map[cat.Side]int{cat.SideMain: 0, cat.SideSub: 0},
		sMeter:      map[cat.Side]int{cat.SideMain: 42, cat.SideSub: 17},
		memory:      map[cat.Side]int{cat.SideMain: 1, cat.SideSub: 1},
		channelMode: cat.ChannelVFO,
		powerUnit:   cat.PowerPrimary,
		powerWatts:  10,
		clarDir:     cat.ClarifierPlus,
		tx:          cat.TXOff,
		id:          "0840",
		meters: map[cat.Meter][2]int{
			cat.MeterSMain: {42, 0}, cat.MeterSSub: {17, 0}, cat.MeterComp: {0, 0},
			cat.MeterALC: {0, 0}, cat.MeterPower: {0, 0}, cat.MeterSWR: {0, 0},
			cat.MeterIDD: {31, 0}, cat.MeterVDD: {192, 0},
		},
		firmware: map[cat.CPU]string{
			cat.CPUMain: "0108", cat.CPUDisplay: "0105", cat.CPUSDR: "0102",
			cat.CPUDSP: "0104", cat.CPUAmplifier: "0100", cat.CPUTuner: "0100",
		},
		rejected:    map[string]bool{},
		garbled:     map[string]string{},
	}

	r.toRadioR, r.toRadioW = bufpipe.New(nil)
	r.fromRadioR, r.fromRadioW = bufpipe.New(nil)

	go r.emulate()

	return r
}

// Read returns bytes the radio has sent.
func (r *SimulatedRadio) Read(p []byte) (int, error) {
	return r.fromRadioR.Read(p)
}

// Write delivers bytes to the radio.
func (r *SimulatedRadio) Write(p []byte) (int, error) {
	return r.toRadioW.Write(p)
}

// Close shuts the radio down; readers see EOF.
func (r *SimulatedRadio) Close() error {
	r.closeOnce.Do(func() {
		r.toRadioW.Close()
		r.toRadioR.Close()
		r.fromRadioW.Close()
	})
	return nil
}

// Mute stops or resumes all replies.
func (r *SimulatedRadio) Mute(muted bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.muted = muted
}

// DropReplies swallows the next n replies.
func (r *SimulatedRadio) DropReplies(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.drop = n
}

// Reject makes the radio answer "?;" to every frame of verb.
func (r *SimulatedRadio) Reject(verb string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rejected[verb] = true
}

// Garble replaces the reply to verb with raw, which need not be valid.
func (r *SimulatedRadio) Garble(verb, raw string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.garbled[verb] = raw
}

// Inject queues bytes that are sent ahead of the next reply, as a stray
// frame from an earlier command would be.
func (r *SimulatedRadio) Inject(raw string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.unsolicit = append(r.unsolicit, raw...)
}

// Received lists the frames the radio has seen, oldest first.
func (r *SimulatedRadio) Received() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.received...)
}

// SetFrequency changes the radio's frequency as if the dial moved.
func (r *SimulatedRadio) SetFrequency(side cat.Side, hz int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.frequency[side] = hz
}

// SetMeter sets the two readings RM reports for meter.
func (r *SimulatedRadio) SetMeter(meter cat.Meter, primary, secondary int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.meters[meter] = [2]int{primary, secondary}
}

// SetClarifier changes the clarifier as if set from the front panel.
func (r *SimulatedRadio) SetClarifier(dir cat.ClarifierDirection, offset int, rx, tx bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.clarDir, r.clarOffset, r.rxClar, r.txClar = dir, offset, rx, tx
}

func (r *SimulatedRadio) emulate() {
	reader := bufio.NewReader(r.toRadioR)

	for {
		frame, err := reader.ReadBytes(cat.Terminator)
		if err != nil {
			if err != io.EOF {
				logging.Debugf("sim", "emulator stopped: %v", err)
			}
			return
		}

		reply := r.handle(frame)
		if len(reply) == 0 {
			continue
		}

		if r.opts.ReplyDelay > 0 {
			time.Sleep(r.opts.ReplyDelay)
		}
		if err := r.send(reply); err != nil {
			return
		}
	}
}

func (r *SimulatedRadio) send(reply []byte) error {
	size := r.opts.ChunkSize
	if size <= 0 {
		size = len(reply)
	}
	for len(reply) > 0 {
		n := size
		if n > len(reply) {
			n = len(reply)
		}
		if _, err := r.fromRadioW.Write(reply[:n]); err != nil {
			return err
		}
		reply = reply[n:]
	}
	return nil
}

// handle applies one frame and returns the bytes to send back.
func (r *SimulatedRadio) handle(frame []byte) []byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.received = append(r.received, string(frame))

	var out []byte
	if r.opts.LocalEcho {
		out = append(out, frame...)
	}
	if len(r.unsolicit) > 0 {
		out = append(out, r.unsolicit...)
		r.unsolicit = nil
	}

	reply := r.respond(frame)
	if r.muted {
		return nil
	}
	if len(reply) > 0 && r.drop > 0 {
		r.drop--
		return out
	}
	return append(out, reply...)
}

func (r *SimulatedRadio) respond(frame []byte) []byte {
	if len(frame) < 3 {
		return []byte("?;")
	}
	verb := string(frame[:2])

	if r.rejected[verb] {
		return []byte("?;")
	}

	if q, err := r.codec.Decode(verb, cat.VariantQuery, frame); err == nil {
		if raw, ok := r.garbled[verb]; ok {
			return []byte(raw)
		}
		return r.query(verb, q)
	}

	s, err := r.codec.Decode(verb, cat.VariantSet, frame)
	if err != nil {
		return []byte("?;")
	}
	if !r.apply(verb, s) {
		return []byte("?;")
	}
	if r.opts.EchoSets && len(s.Fields) > 0 {
		if raw, ok := r.garbled[verb]; ok {
			return []byte(raw)
		}
		return frame
	}
	return nil
}

func (r *SimulatedRadio) query(verb string, q *cat.ParsedResponse) []byte {
	side := cat.SideMain
	if q.Has(cat.FieldSide) {
		tag, _ := q.Tag(cat.FieldSide)
		side = cat.Side(tag)
	}
	sideVal := cat.Tag(string(side))

	var params []cat.Value
	switch verb {
	case cat.VerbFrequencyMain:
		params = []cat.Value{cat.Int(r.frequency[cat.SideMain])}
	case cat.VerbFrequencySub:
		params = []cat.Value{cat.Int(r.frequency[cat.SideSub])}
	case cat.VerbMode:
		params = []cat.Value{sideVal, cat.Tag(string(r.mode[side]))}
	case cat.VerbPower:
		params = []cat.Value{cat.Tag(string(r.powerUnit)), cat.Int(r.powerWatts)}
	case cat.VerbMemoryChannel:
		params = []cat.Value{sideVal, cat.Int(r.memory[side])}
	case cat.VerbTransmit:
		params = []cat.Value{cat.Tag(string(r.tx))}
	case cat.VerbIdentify:
		params = []cat.Value{cat.Tag(r.id)}
	case cat.VerbAFGain:
		params = []cat.Value{sideVal, cat.Int(r.afGain[side])}
	case cat.VerbSquelch:
		params = []cat.Value{sideVal, cat.Int(r.squelch[side])}
	case cat.VerbSMeter:
		params = []cat.Value{sideVal, cat.Int(r.sMeter[side])}
	case cat.VerbSplit:
		params = []cat.Value{onOff(r.split)}
	case cat.VerbAGC:
		params = []cat.Value{sideVal, cat.Tag(string(r.agc[side]))}
	case cat.VerbMeter:
		tag, _ := q.Tag(cat.FieldMeter)
		m := r.meters[cat.Meter(tag)]
		params = []cat.Value{cat.Tag(tag), cat.Int(m[0]), cat.Int(m[1])}
	case cat.VerbVersion:
		tag, _ := q.Tag(cat.FieldCPU)
		params = []cat.Value{cat.Tag(tag), cat.Tag(r.firmware[cat.CPU(tag)])}
	case cat.VerbInformation:
		params = []cat.Value{
			cat.Tag(fmt.Sprintf("%05d", r.memory[cat.SideMain])),
			cat.Int(r.frequency[cat.SideMain]),
			cat.Tag(string(r.clarDir)),
			cat.Int(r.clarOffset),
			onOff(r.rxClar),
			onOff(r.txClar),
			cat.Tag(string(r.mode[cat.SideMain])),
			cat.Tag(string(r.channelMode)),
			cat.Tag("OFF"),
			cat.Tag("00"),
			cat.Tag("SIMPLEX"),
		}
	default:
		return []byte("?;")
	}

	reply, err := r.codec.EncodeVariant(verb, cat.VariantReply, params...)
	if err != nil {
		logging.Warnf("sim", "cannot encode %s reply: %v", verb, err)
		return []byte("?;")
	}
	return reply
}

// apply performs a set command, reporting false when the radio would
// refuse it.
func (r *SimulatedRadio) apply(verb string, s *cat.ParsedResponse) bool {
	side := cat.SideMain
	if s.Has(cat.FieldSide) {
		tag, _ := s.Tag(cat.FieldSide)
		side = cat.Side(tag)
	}

	switch verb {
	case cat.VerbFrequencyMain, cat.VerbFrequencySub:
		hz, _ := s.Int(cat.FieldFrequency)
		if hz < cat.MinFrequency || hz > cat.MaxFrequency {
			return false
		}
		if verb == cat.VerbFrequencyMain {
			r.frequency[cat.SideMain] = hz
		} else {
			r.frequency[cat.SideSub] = hz
		}
	case cat.VerbMode:
		mode, _ := s.Tag(cat.FieldMode)
		r.mode[side] = cat.Mode(mode)
	case cat.VerbPower:
		unit, _ := s.Tag(cat.FieldUnit)
		watts, _ := s.Int(cat.FieldWatts)
		rng, ok := cat.RangeFor(cat.PowerUnit(unit))
		if !ok || watts < rng.Min || watts > rng.Max {
			return false
		}
		r.powerUnit, r.powerWatts = cat.PowerUnit(unit), watts
	case cat.VerbMemoryChannel:
		ch, _ := s.Int(cat.FieldChannel)
		if ch < cat.MinMemoryChannel || ch > cat.MaxMemoryChannel {
			return false
		}
		r.memory[side] = ch
		r.channelMode = cat.ChannelMemory
	case cat.VerbTransmit:
		state, _ := s.Tag(cat.FieldTXState)
		r.tx = cat.TXState(state)
	case cat.VerbAFGain, cat.VerbSquelch:
		level, _ := s.Int(cat.FieldLevel)
		if level > cat.MaxLevel {
			return false
		}
		if verb == cat.VerbAFGain {
			r.afGain[side] = level
		} else {
			r.squelch[side] = level
		}
	case cat.VerbSplit:
		split, _ := s.Tag(cat.FieldSplit)
		r.split = split == "ON"
	case cat.VerbAGC:
		agc, _ := s.Tag(cat.FieldAGC)
		r.agc[side] = cat.AGC(agc)
	case cat.VerbSwapVFO:
		r.frequency[cat.SideMain], r.frequency[cat.SideSub] = r.frequency[cat.SideSub], r.frequency[cat.SideMain]
		r.mode[cat.SideMain], r.mode[cat.SideSub] = r.mode[cat.SideSub], r.mode[cat.SideMain]
	case cat.VerbClarifier:
		// IF only reports the main side
		if side != cat.SideMain {
			return true
		}
		sel, _ := s.Tag(cat.FieldClarSelect)
		if sel == cat.ClarSelectSettings {
			rx, _ := s.Tag(cat.FieldRxClar)
			tx, _ := s.Tag(cat.FieldTxClar)
			r.rxClar, r.txClar = rx == "ON", tx == "ON"
			return true
		}
		dir, _ := s.Tag(cat.FieldClarDir)
		offset, _ := s.Int(cat.FieldClarOffset)
		if offset > cat.MaxClarifierOffset {
			return false
		}
		r.clarDir, r.clarOffset = cat.ClarifierDirection(dir), offset
	case cat.VerbBandSelect:
		tag, _ := s.Tag(cat.FieldBand)
		r.frequency[side] = bandFrequency[cat.Band(tag)]
	case cat.VerbBandUp, cat.VerbBandDown:
		i := bandIndex(r.frequency[side])
		if verb == cat.VerbBandUp {
			i = (i + 1) % len(cat.Bands)
		} else {
			i = (i + len(cat.Bands) - 1) % len(cat.Bands)
		}
		r.frequency[side] = bandFrequency[cat.Bands[i]]
	default:
		return false
	}
	return true
}

func onOff(b bool) cat.Value {
	if b {
		return cat.Tag("ON")
	}
	return cat.Tag("OFF")
}

// bandFrequency is where the emulator tunes on a band change.
var bandFrequency = map[cat.Band]int{
	cat.Band160m:    1840000,
	cat.Band80m:     3573000,
	cat.Band60m:     5357000,
	cat.Band40m:     7074000,
	cat.Band30m:     10136000,
	cat.Band20m:     14074000,
	cat.Band17m:     18100000,
	cat.Band15m:     21074000,
	cat.Band12m:     24915000,
	cat.Band10m:     28074000,
	cat.Band6m:      50313000,
	cat.BandGeneral: 70154000,
	cat.BandAir:     118000000,
	cat.Band2m:      144174000,
	cat.Band70cm:    432065000,
}

// bandIndex finds the band of hz: the highest band starting at or below it.
func bandIndex(hz int) int {
	index := 0
	for i, b := range cat.Bands {
		if bandFrequency[b] <= hz {
			index = i
		}
	}
	return index
}
