package cat

import "fmt"

// Side selects the MAIN or SUB receiver of the FTX-1.
type Side string

const (
	SideMain Side = "MAIN"
	SideSub  Side = "SUB"
)

// Mode is an operating mode tag.
type Mode string

// FTX-1 operating modes
const (
	ModeLSB     Mode = "LSB"
	ModeUSB     Mode = "USB"
	ModeCWU     Mode = "CW-U"
	ModeFM      Mode = "FM"
	ModeAM      Mode = "AM"
	ModeRTTYL   Mode = "RTTY-L"
	ModeCWL     Mode = "CW-L"
	ModeDataL   Mode = "DATA-L"
	ModeRTTYU   Mode = "RTTY-U"
	ModeDataFM  Mode = "DATA-FM"
	ModeFMN     Mode = "FM-N"
	ModeDataU   Mode = "DATA-U"
	ModeAMN     Mode = "AM-N"
	ModePSK     Mode = "PSK"
	ModeDataFMN Mode = "DATA-FM-N"
	ModeC4FMDN  Mode = "C4FM-DN"
	ModeC4FMVW  Mode = "C4FM-VW"
)

// PowerUnit selects which power domain a PC command addresses.
type PowerUnit string

const (
	// PowerPrimary is the FTX-1 Field head on its own.
	PowerPrimary PowerUnit = "FIELD"
	// PowerAmplifier is the SPA-1 external amplifier.
	PowerAmplifier PowerUnit = "SPA-1"
)

// ClarifierDirection is the sign of the clarifier offset.
type ClarifierDirection string

const (
	ClarifierPlus  ClarifierDirection = "+"
	ClarifierMinus ClarifierDirection = "-"
)

// ChannelMode is the VFO/memory state reported in the IF frame.
type ChannelMode string

const (
	ChannelVFO        ChannelMode = "VFO"
	ChannelMemory     ChannelMode = "MEMORY"
	ChannelMemoryTune ChannelMode = "MEMORY-TUNE"
	ChannelQMB        ChannelMode = "QMB"
	ChannelPMS        ChannelMode = "PMS"
)

// AGC is an AGC time constant.
type AGC string

const (
	AGCOff  AGC = "OFF"
	AGCFast AGC = "FAST"
	AGCMid  AGC = "MID"
	AGCSlow AGC = "SLOW"
	AGCAuto AGC = "AUTO"
)

// TXState is the transmit state reported by TX.
type TXState string

const (
	TXOff   TXState = "RX"
	TXCAT   TXState = "CAT-TX"
	TXOther TXState = "TX"
)

// Static enum tables, one per field kind.
var (
	SideTable = NewEnumTable("side", 1,
		string(SideMain), "0",
		string(SideSub), "1",
	)

	ModeTable = NewEnumTable("mode", 1,
		string(ModeLSB), "1",
		string(ModeUSB), "2",
		string(ModeCWU), "3",
		string(ModeFM), "4",
		string(ModeAM), "5",
		string(ModeRTTYL), "6",
		string(ModeCWL), "7",
		string(ModeDataL), "8",
		string(ModeRTTYU), "9",
		string(ModeDataFM), "A",
		string(ModeFMN), "B",
		string(ModeDataU), "C",
		string(ModeAMN), "D",
		string(ModePSK), "E",
		string(ModeDataFMN), "F",
		string(ModeC4FMDN), "H",
		string(ModeC4FMVW), "I",
	)

	PowerUnitTable = NewEnumTable("power unit", 1,
		string(PowerPrimary), "1",
		string(PowerAmplifier), "2",
	)

	ClarifierTable = NewEnumTable("clarifier direction", 1,
		string(ClarifierPlus), "+",
		string(ClarifierMinus), "-",
	)

	OnOffTable = NewEnumTable("on/off", 1,
		"OFF", "0",
		"ON", "1",
	)

	ChannelModeTable = NewEnumTable("vfo/memory", 1,
		string(ChannelVFO), "0",
		string(ChannelMemory), "1",
		string(ChannelMemoryTune), "2",
		string(ChannelQMB), "3",
		string(ChannelPMS), "4",
	)

	ToneModeTable = NewEnumTable("tone mode", 1,
		"OFF", "0",
		"CTCSS-ENC-DEC", "1",
		"CTCSS-ENC", "2",
		"DCS-ENC-DEC", "3",
		"DCS-ENC", "4",
	)

	ShiftTable = NewEnumTable("repeater shift", 1,
		"SIMPLEX", "0",
		"PLUS", "1",
		"MINUS", "2",
	)

	AGCTable = NewEnumTable("agc", 1,
		string(AGCOff), "0",
		string(AGCFast), "1",
		string(AGCMid), "2",
		string(AGCSlow), "3",
		string(AGCAuto), "4",
	)

	TXTable = NewEnumTable("tx state", 1,
		string(TXOff), "0",
		string(TXCAT), "1",
		string(TXOther), "2",
	)
)

// PowerRange is the valid wattage domain of a power unit.
type PowerRange struct {
	Min, Max int
}

var powerRanges = map[PowerUnit]PowerRange{
	PowerPrimary:   {Min: 5, Max: 10},
	PowerAmplifier: {Min: 5, Max: 100},
}

// RangeFor returns the valid wattage range of unit.
func RangeFor(unit PowerUnit) (PowerRange, bool) {
	r, ok := powerRanges[unit]
	return r, ok
}

// Tunable range of the FTX-1 in Hz.
const (
	MinFrequency = 30000
	MaxFrequency = 470000000
)

// Memory channel bounds accepted by MC.
const (
	MinMemoryChannel = 1
	MaxMemoryChannel = 99
)

// MaxLevel bounds AF gain and squelch levels.
const MaxLevel = 255

// MaxClarifierOffset bounds the clarifier offset in Hz either way.
const MaxClarifierOffset = 9995

// Selectors of the two CF set frames, its fixed P2 digit and the P3
// digit together.
const (
	ClarSelectSettings = "SETTINGS"
	ClarSelectOffset   = "OFFSET"
)

// Meter is a meter read by RM.
type Meter string

const (
	MeterSMain Meter = "S-MAIN"
	MeterSSub  Meter = "S-SUB"
	MeterComp  Meter = "COMP"
	MeterALC   Meter = "ALC"
	MeterPower Meter = "PO"
	MeterSWR   Meter = "SWR"
	MeterIDD   Meter = "IDD"
	MeterVDD   Meter = "VDD"
)

// CPU is a processor whose firmware version VE reports.
type CPU string

const (
	CPUMain      CPU = "MAIN"
	CPUDisplay   CPU = "DISPLAY"
	CPUSDR       CPU = "SDR"
	CPUDSP       CPU = "DSP"
	CPUAmplifier CPU = "SPA-1"
	CPUTuner     CPU = "FC-80"
)

// Band is a band memory selected by BS.
type Band string

const (
	Band160m    Band = "160M"
	Band80m     Band = "80M"
	Band60m     Band = "60M"
	Band40m     Band = "40M"
	Band30m     Band = "30M"
	Band20m     Band = "20M"
	Band17m     Band = "17M"
	Band15m     Band = "15M"
	Band12m     Band = "12M"
	Band10m     Band = "10M"
	Band6m      Band = "6M"
	BandGeneral Band = "GEN"
	BandAir     Band = "AIR"
	Band2m      Band = "2M"
	Band70cm    Band = "70CM"
)

// Bands lists the band memories in BS order.
var Bands = []Band{
	Band160m, Band80m, Band60m, Band40m, Band30m, Band20m, Band17m, Band15m,
	Band12m, Band10m, Band6m, BandGeneral, BandAir, Band2m, Band70cm,
}

var (
	ClarSettingsSelectTable = NewEnumTable("clarifier settings selector", 2,
		ClarSelectSettings, "00",
	)

	ClarOffsetSelectTable = NewEnumTable("clarifier offset selector", 2,
		ClarSelectOffset, "01",
	)

	MeterTable = NewEnumTable("meter", 1,
		string(MeterSMain), "1",
		string(MeterSSub), "2",
		string(MeterComp), "3",
		string(MeterALC), "4",
		string(MeterPower), "5",
		string(MeterSWR), "6",
		string(MeterIDD), "7",
		string(MeterVDD), "8",
	)

	CPUTable = NewEnumTable("cpu", 1,
		string(CPUMain), "0",
		string(CPUDisplay), "1",
		string(CPUSDR), "2",
		string(CPUDSP), "3",
		string(CPUAmplifier), "4",
		string(CPUTuner), "5",
	)

	BandTable = newBandTable()
)

func newBandTable() *EnumTable {
	pairs := make([]string, 0, 2*len(Bands))
	for i, b := range Bands {
		pairs = append(pairs, string(b), fmt.Sprintf("%02d", i))
	}
	return NewEnumTable("band", 2, pairs...)
}
