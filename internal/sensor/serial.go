package sensor

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialTransport talks to the sensor over a go.bug.st/serial port.
type SerialTransport struct {
	mu       sync.Mutex
	portPath string
	opts     PortOptions
	port     serial.Port
	timeout  time.Duration // last timeout applied to the port
}

var errClosed = errors.New("port closed")

// OpenSerial opens portPath with the given line settings and arms the port
// with readTimeout. Failures are reported as *OpenError.
func OpenSerial(portPath string, opts PortOptions, readTimeout time.Duration) (*SerialTransport, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, &OpenError{Port: portPath, Err: err}
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, &OpenError{Port: portPath, Err: err}
	}
	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, &OpenError{Port: portPath, Err: err}
	}
	s, err := newSerialTransport(portPath, norm, port, readTimeout)
	if err != nil {
		port.Close()
		return nil, &OpenError{Port: portPath, Err: err}
	}

	log.Printf("[serial] opened %s at %s", portPath, norm)
	return s, nil
}

func newSerialTransport(portPath string, opts PortOptions, port serial.Port, readTimeout time.Duration) (*SerialTransport, error) {
	s := &SerialTransport{portPath: portPath, opts: opts, port: port}
	if readTimeout > 0 {
		if err := s.setTimeout(readTimeout); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SerialTransport) Name() string { return fmt.Sprintf("serial %s", s.portPath) }

// Write discards any pending input and sends p. Dropping stale input keeps a
// late tail from a timed-out response from shifting the next frame.
func (s *SerialTransport) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return &IOError{Op: "write", Err: errClosed}
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return &IOError{Op: "write", Err: fmt.Errorf("reset input: %w", err)}
	}
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return &IOError{Op: "write", Err: err}
		}
		p = p[n:]
	}
	return nil
}

// Read reads until n bytes arrived or timeout elapsed.
func (s *SerialTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, &IOError{Op: "read", Err: errClosed}
	}

	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)
	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.setTimeout(remaining); err != nil {
			return buf[:got], &IOError{Op: "read", Err: err}
		}
		m, err := s.port.Read(buf[got:])
		if err != nil {
			return buf[:got], &IOError{Op: "read", Err: err}
		}
		if m == 0 {
			break // timed out
		}
		got += m
	}
	return buf[:got], nil
}

func (s *SerialTransport) setTimeout(d time.Duration) error {
	// Round up to whole milliseconds so repeated reads do not re-arm the
	// port for every nanosecond of drift.
	d = ((d + time.Millisecond - 1) / time.Millisecond) * time.Millisecond
	if d == s.timeout {
		return nil
	}
	if err := s.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	s.timeout = d
	return nil
}

func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	log.Printf("[serial] closed %s", s.portPath)
	return err
}
