package ymodem

import (
	"time"

	"go.bug.st/serial"
)

// SerialPort adapts a serial port to ReaderWithTimeout.
type SerialPort struct {
	port serial.Port
	name string
}

// OpenSerial opens a serial port in 8N1 mode at the given baud rate. Input already
// queued in the driver is discarded.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, err
	}
	return newSerialPort(port, name), nil
}

func newSerialPort(port serial.Port, name string) *SerialPort {
	return &SerialPort{port: port, name: name}
}

// Name returns the device name the port was opened with.
func (p *SerialPort) Name() string {
	return p.name
}

// Read reads from the port. A read that times out returns 0 bytes and no error.
func (p *SerialPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *SerialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// SetReadDeadline maps an absolute deadline to the driver's relative read timeout.
// A zero deadline blocks indefinitely.
func (p *SerialPort) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return p.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return p.port.SetReadTimeout(d)
}

// Close closes the port.
func (p *SerialPort) Close() error {
	return p.port.Close()
}
