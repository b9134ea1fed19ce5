package cat

// Verbs of the FTX-1 CAT vocabulary implemented here.
const (
	VerbFrequencyMain = "FA"
	VerbFrequencySub  = "FB"
	VerbMode          = "MD"
	VerbPower         = "PC"
	VerbInformation   = "IF"
	VerbMemoryChannel = "MC"
	VerbTransmit      = "TX"
	VerbIdentify      = "ID"
	VerbAFGain        = "AG"
	VerbSquelch       = "SQ"
	VerbSMeter        = "SM"
	VerbSplit         = "ST"
	VerbAGC           = "GT"
	VerbSwapVFO       = "SV"
	VerbClarifier     = "CF"
	VerbMeter         = "RM"
	VerbVersion       = "VE"
	VerbBandSelect    = "BS"
	VerbBandUp        = "BU"
	VerbBandDown      = "BD"
)

// Field names shared between layouts and callers.
const (
	FieldFrequency   = "frequency"
	FieldSide        = "side"
	FieldMode        = "mode"
	FieldUnit        = "unit"
	FieldWatts       = "watts"
	FieldChannel     = "channel"
	FieldClarDir     = "clar_direction"
	FieldClarOffset  = "clar_offset"
	FieldRxClar      = "rx_clar"
	FieldTxClar      = "tx_clar"
	FieldChannelMode = "vfo_memory"
	FieldToneMode    = "tone_mode"
	FieldReserved    = "reserved"
	FieldShift       = "repeater_shift"
	FieldTXState     = "state"
	FieldID          = "id"
	FieldLevel       = "level"
	FieldSplit       = "split"
	FieldAGC         = "agc"
	FieldClarSelect  = "clar_select"
	FieldMeter       = "meter"
	FieldPrimary     = "primary"
	FieldSecondary   = "secondary"
	FieldCPU         = "cpu"
	FieldVersion     = "version"
	FieldBand        = "band"
)

// VersionWidth is the width of the VE version field.
const VersionWidth = 4

// FrequencyWidth is the digit count of FA/FB frequency fields.
const FrequencyWidth = 9

var sideField = EnumField(FieldSide, SideTable)

// sidedLevel is the shape shared by AG, SQ and SM: side + 3-digit level.
func sidedLevel(verb string, settable bool) Layout {
	shape := []Field{sideField, DigitsField(FieldLevel, 3)}
	l := Layout{
		Verb:     verb,
		CanQuery: true,
		Query:    []Field{sideField},
		Reply:    shape,
	}
	if settable {
		l.CanSet = true
		l.Set = shape
	}
	return l
}

func frequencyLayout(verb string) Layout {
	shape := []Field{DigitsField(FieldFrequency, FrequencyWidth)}
	return Layout{
		Verb:     verb,
		CanQuery: true,
		CanSet:   true,
		Reply:    shape,
		Set:      shape,
	}
}

// FTX1Layouts is the static verb table of the Yaesu FTX-1.
var FTX1Layouts = []Layout{
	frequencyLayout(VerbFrequencyMain),
	frequencyLayout(VerbFrequencySub),
	{
		Verb:     VerbMode,
		CanQuery: true,
		CanSet:   true,
		Query:    []Field{sideField},
		Reply:    []Field{sideField, EnumField(FieldMode, ModeTable)},
		Set:      []Field{sideField, EnumField(FieldMode, ModeTable)},
	},
	{
		Verb:     VerbPower,
		CanQuery: true,
		CanSet:   true,
		Reply:    []Field{EnumField(FieldUnit, PowerUnitTable), DigitsField(FieldWatts, PowerWidth)},
		Set:      []Field{EnumField(FieldUnit, PowerUnitTable), DigitsField(FieldWatts, PowerWidth)},
	},
	{
		// IF reply body, 27 characters:
		// channel(5) freq(9) dir(1) offset(4) rx(1) tx(1) mode(1)
		// vfo/mem(1) tone(1) reserved(2) shift(1)
		Verb:     VerbInformation,
		CanQuery: true,
		Reply: []Field{
			TextField(FieldChannel, 5),
			DigitsField(FieldFrequency, FrequencyWidth),
			EnumField(FieldClarDir, ClarifierTable),
			DigitsField(FieldClarOffset, 4),
			EnumField(FieldRxClar, OnOffTable),
			EnumField(FieldTxClar, OnOffTable),
			EnumField(FieldMode, ModeTable),
			EnumField(FieldChannelMode, ChannelModeTable),
			EnumField(FieldToneMode, ToneModeTable),
			TextField(FieldReserved, 2),
			EnumField(FieldShift, ShiftTable),
		},
	},
	{
		Verb:     VerbMemoryChannel,
		CanQuery: true,
		CanSet:   true,
		Query:    []Field{sideField},
		Reply:    []Field{sideField, DigitsField(FieldChannel, 5)},
		Set:      []Field{sideField, DigitsField(FieldChannel, 5)},
	},
	{
		Verb:     VerbTransmit,
		CanQuery: true,
		CanSet:   true,
		Reply:    []Field{EnumField(FieldTXState, TXTable)},
		Set:      []Field{EnumField(FieldTXState, TXTable)},
	},
	{
		Verb:     VerbIdentify,
		CanQuery: true,
		Reply:    []Field{TextField(FieldID, 4)},
	},
	sidedLevel(VerbAFGain, true),
	sidedLevel(VerbSquelch, true),
	sidedLevel(VerbSMeter, false),
	{
		Verb:     VerbSplit,
		CanQuery: true,
		CanSet:   true,
		Reply:    []Field{EnumField(FieldSplit, OnOffTable)},
		Set:      []Field{EnumField(FieldSplit, OnOffTable)},
	},
	{
		Verb:     VerbAGC,
		CanQuery: true,
		CanSet:   true,
		Query:    []Field{sideField},
		Reply:    []Field{sideField, EnumField(FieldAGC, AGCTable)},
		Set:      []Field{sideField, EnumField(FieldAGC, AGCTable)},
	},
	{
		Verb:   VerbSwapVFO,
		CanSet: true,
	},
	{
		// CF has no query; the IF frame reports the main clarifier.
		Verb:   VerbClarifier,
		CanSet: true,
		Set: []Field{
			sideField,
			EnumField(FieldClarSelect, ClarSettingsSelectTable),
			EnumField(FieldRxClar, OnOffTable),
			EnumField(FieldTxClar, OnOffTable),
			TextField(FieldReserved, 3),
		},
		AltSets: [][]Field{{
			sideField,
			EnumField(FieldClarSelect, ClarOffsetSelectTable),
			EnumField(FieldClarDir, ClarifierTable),
			DigitsField(FieldClarOffset, 4),
		}},
	},
	{
		Verb:     VerbMeter,
		CanQuery: true,
		Query:    []Field{EnumField(FieldMeter, MeterTable)},
		Reply: []Field{
			EnumField(FieldMeter, MeterTable),
			DigitsField(FieldPrimary, 3),
			DigitsField(FieldSecondary, 3),
		},
	},
	{
		Verb:     VerbVersion,
		CanQuery: true,
		Query:    []Field{EnumField(FieldCPU, CPUTable)},
		Reply:    []Field{EnumField(FieldCPU, CPUTable), TextField(FieldVersion, VersionWidth)},
	},
	{
		Verb:   VerbBandSelect,
		CanSet: true,
		Set:    []Field{sideField, EnumField(FieldBand, BandTable)},
	},
	{
		Verb:   VerbBandUp,
		CanSet: true,
		Set:    []Field{sideField},
	},
	{
		Verb:   VerbBandDown,
		CanSet: true,
		Set:    []Field{sideField},
	},
}

// DefaultCodec is the codec for the FTX-1 vocabulary.
var DefaultCodec = NewCodec(FTX1Layouts...)
