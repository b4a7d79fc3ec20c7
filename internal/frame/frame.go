// Package frame encodes the telemetry request and decodes the fixed-size
// sensor response.
//
// Wire format (no checksum, no length prefix, no version byte):
//
//	request:  52 01 00 53
//	response: <hdr0> <hdr1> <dist> <yaw> <pitch> <s0..s7> <trailer>   (14 bytes)
package frame

import (
	"errors"
	"fmt"
)

const (
	// RequestSize is the length of the telemetry request frame.
	RequestSize = 4
	// ResponseSize is the only valid response length.
	ResponseSize = 14
	// BankSize is the number of raw sensor channels in a response.
	BankSize = 8

	offDistance = 2
	offYaw      = 3
	offPitch    = 4
	offBank     = 5
	offTrailer  = 13
)

var request = [RequestSize]byte{0x52, 0x01, 0x00, 0x53}

// ErrShortFrame is matched by every *ShortFrameError.
var ErrShortFrame = errors.New("frame: short response")

// ShortFrameError reports a response whose length was not ResponseSize.
type ShortFrameError struct {
	Got int
}

func (e *ShortFrameError) Error() string {
	return fmt.Sprintf("frame: short response: got %d bytes, want %d", e.Got, ResponseSize)
}

func (e *ShortFrameError) Is(target error) bool { return target == ErrShortFrame }

// Response holds the fields of a decoded response frame.
type Response struct {
	Header   [2]byte // opaque
	Distance uint8
	Yaw      uint8
	Pitch    uint8
	Bank     [BankSize]uint8
	Trailer  byte // opaque
}

// BuildRequest returns a fresh copy of the telemetry request frame.
func BuildRequest() []byte {
	b := make([]byte, RequestSize)
	copy(b, request[:])
	return b
}

// IsRequest reports whether b is exactly the telemetry request frame.
func IsRequest(b []byte) bool {
	return len(b) == RequestSize && [RequestSize]byte(b) == request
}

// ParseResponse decodes a response frame. Any length other than
// ResponseSize yields a *ShortFrameError and b is never indexed.
func ParseResponse(b []byte) (Response, error) {
	if len(b) != ResponseSize {
		return Response{}, &ShortFrameError{Got: len(b)}
	}
	var r Response
	r.Header = [2]byte{b[0], b[1]}
	r.Distance = b[offDistance]
	r.Yaw = b[offYaw]
	r.Pitch = b[offPitch]
	copy(r.Bank[:], b[offBank:offBank+BankSize])
	r.Trailer = b[offTrailer]
	return r, nil
}

// Encode writes r back into wire form. The demo device uses it to answer
// requests.
func (r Response) Encode() []byte {
	b := make([]byte, ResponseSize)
	b[0], b[1] = r.Header[0], r.Header[1]
	b[offDistance] = r.Distance
	b[offYaw] = r.Yaw
	b[offPitch] = r.Pitch
	copy(b[offBank:], r.Bank[:])
	b[offTrailer] = r.Trailer
	return b
}
