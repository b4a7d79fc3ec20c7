package sensor

import (
	"errors"
	"sync"
	"time"
)

// FakeTransport is a scripted Transport for tests. Each Read pops the next
// queued response; with the queue empty it returns no bytes, as a timed-out
// serial read would.
type FakeTransport struct {
	mu sync.Mutex

	responses [][]byte
	writes    [][]byte

	// WriteErr and ReadErr, when set, are returned by every call.
	WriteErr error
	ReadErr  error
	// ReadErrAfter makes ReadErr apply only once this many reads succeeded.
	ReadErrAfter int

	reads  int
	closed bool
}

func NewFakeTransport(responses ...[]byte) *FakeTransport {
	return &FakeTransport{responses: responses}
}

func (f *FakeTransport) Name() string { return "fake" }

// Queue appends responses to be returned by later reads.
func (f *FakeTransport) Queue(responses ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *FakeTransport) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &IOError{Op: "write", Err: errors.New("fake closed")}
	}
	if f.WriteErr != nil {
		return &IOError{Op: "write", Err: f.WriteErr}
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return nil
}

func (f *FakeTransport) Read(n int, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, &IOError{Op: "read", Err: errors.New("fake closed")}
	}
	if f.ReadErr != nil && f.reads >= f.ReadErrAfter {
		return nil, &IOError{Op: "read", Err: f.ReadErr}
	}
	f.reads++
	if len(f.responses) == 0 {
		return nil, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	if len(resp) > n {
		resp = resp[:n]
	}
	return append([]byte(nil), resp...), nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Writes returns a copy of every frame written so far.
func (f *FakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
