package hardware

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/dougsko/ftxcat/pkg/verbose"
)

// SerialPort is a Port on a local serial device, framed 8N1.
type SerialPort struct {
	name   string
	port   serial.Port
	closed atomic.Bool
}

// OpenSerialPort opens device at baud with 8 data bits, no parity and one
// stop bit.
func OpenSerialPort(device string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	verbose.Printf("Serial: opening %s @ %d baud (8N1)", device, baud)

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	return &SerialPort{name: device, port: p}, nil
}

// Name returns the device path.
func (s *SerialPort) Name() string {
	return s.name
}

// Write sends p to the device.
func (s *SerialPort) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrPortClosed
	}
	n, err := s.port.Write(p)
	if err != nil {
		return n, s.mapError(err)
	}
	return n, nil
}

// Read waits up to timeout for at most max bytes.
func (s *SerialPort) Read(max int, timeout time.Duration) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrPortClosed
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return nil, s.mapError(err)
	}

	buf := make([]byte, max)
	n, err := s.port.Read(buf)
	if err != nil {
		return nil, s.mapError(err)
	}
	return buf[:n], nil
}

// ResetInputBuffer drops bytes received but not yet read.
func (s *SerialPort) ResetInputBuffer() error {
	if s.closed.Load() {
		return ErrPortClosed
	}
	return s.mapError(s.port.ResetInputBuffer())
}

// Close releases the device. A Read blocked in another goroutine returns.
func (s *SerialPort) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	verbose.Printf("Serial: closing %s", s.name)
	return s.port.Close()
}

func (s *SerialPort) mapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *serial.PortError
	if s.closed.Load() || (errors.As(err, &pe) && pe.Code() == serial.PortClosed) {
		return ErrPortClosed
	}
	return err
}

// ListSerialPorts returns the serial devices present on this host.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
