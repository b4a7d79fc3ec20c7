// Package sensor provides the byte transports the acquisition loop talks to:
// a go.bug.st/serial port for the real device, a simulated device for demo
// mode, and a scripted fake for tests.
package sensor

import (
	"fmt"
	"time"
)

// Transport is a duplex byte channel with timed reads.
type Transport interface {
	// Name returns a human-readable description of the transport.
	Name() string
	// Write sends p in full.
	Write(p []byte) error
	// Read returns up to n bytes, waiting at most timeout. A timeout is not
	// an error: fewer than n bytes are returned and the caller decides.
	Read(n int, timeout time.Duration) ([]byte, error)
	// Close releases the transport. Further I/O fails.
	Close() error
}

// OpenError is returned when a transport cannot be opened. It is fatal:
// the acquisition loop never starts.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("sensor: failed to open %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// IOError is a transport fault during operation. It is fatal to the loop.
type IOError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sensor: %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Config selects and configures a transport.
type Config struct {
	Type        string        // "serial" or "demo"
	PortPath    string        // serial device, e.g. /dev/ttyUSB0
	Options     PortOptions   // serial line settings
	ReadTimeout time.Duration // initial port read timeout; Read re-arms per call

	// DemoShortFrameRate is the probability that the demo device answers
	// with a truncated frame.
	DemoShortFrameRate float64
}

// Open creates the transport described by cfg.
func Open(cfg Config) (Transport, error) {
	switch cfg.Type {
	case "serial":
		return OpenSerial(cfg.PortPath, cfg.Options, cfg.ReadTimeout)
	case "demo", "":
		return NewDemo(DemoConfig{ShortFrameRate: cfg.DemoShortFrameRate}), nil
	default:
		return nil, &OpenError{Port: cfg.PortPath, Err: fmt.Errorf("unknown transport type %q", cfg.Type)}
	}
}
