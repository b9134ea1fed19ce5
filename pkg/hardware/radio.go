package hardware

import (
	"fmt"
	"strings"
	"time"

	"github.com/dougsko/ftxcat/pkg/logging"
)

// Device prefixes understood by Open
const (
	TCPPrefix = "tcp://"
	SimPrefix = "sim://"
)

// RadioConfig represents the transport side of the radio configuration
type RadioConfig struct {
	Device      string        // Serial device path, tcp://host:port or sim://
	BaudRate    int           // Serial baud rate
	DialTimeout time.Duration // TCP connect timeout
	Sim         SimOptions    // Emulator behaviour for sim://
}

// FTX-1 serial defaults
const (
	DefaultBaudRate    = 38400
	DefaultDialTimeout = 5 * time.Second
)

// Open returns the Port described by cfg. For sim:// the emulator is
// returned as well so callers can drive it; it is nil otherwise.
func Open(cfg RadioConfig) (Port, *SimulatedRadio, error) {
	device := strings.TrimSpace(cfg.Device)
	if device == "" {
		return nil, nil, fmt.Errorf("radio device is required")
	}

	switch {
	case strings.HasPrefix(device, SimPrefix):
		logging.Info("hardware", "Using simulated FTX-1")
		sim := NewSimulatedRadio(cfg.Sim)
		return NewStreamPort(sim), sim, nil

	case strings.HasPrefix(device, TCPPrefix):
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = DefaultDialTimeout
		}
		addr := strings.TrimPrefix(device, TCPPrefix)
		port, err := DialTCP(addr, timeout)
		if err != nil {
			return nil, nil, err
		}
		logging.Info("hardware", "Connected to network serial server", map[string]interface{}{"addr": addr})
		return port, nil, nil

	default:
		baud := cfg.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		port, err := OpenSerialPort(device, baud)
		if err != nil {
			return nil, nil, err
		}
		logging.Info("hardware", "Opened serial port", map[string]interface{}{"device": device, "baud": baud})
		return port, nil, nil
	}
}
