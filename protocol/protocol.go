// Package protocol implements the frame layer of the Form 2 status protocol.
//
// TCP is a byte stream: a single read may return part of a frame or parts of
// two frames. Every frame therefore carries its own payload length, and the
// receiver reads exactly that many bytes no matter how the kernel chunks them
// (an MTU-sized 1448 bytes per read is typical for the printer).
//
// Frame format:
//
//	0         4                 4+N              4+N+8
//	┌─────────┬─────────────────┬────────────────┐
//	│   len   │   payload ...   │   terminator   │
//	│ u32 LE  │ N bytes of JSON │  8 x 0x00      │
//	└─────────┴─────────────────┴────────────────┘
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Version        = 1 // Static version carried in every message, never negotiated
	LengthSize     = 4
	TerminatorSize = 8
)

var terminator [TerminatorSize]byte

// Limits constrains decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// Encode writes one complete frame (length + payload + terminator) to w.
// The frame is assembled first so it leaves in a single Write; separate small
// writes would otherwise go out as separate TCP segments.
// Callers sharing w between goroutines must serialize calls themselves.
func Encode(w io.Writer, payload []byte) error {
	buf := make([]byte, LengthSize+len(payload)+TerminatorSize)

	// Length: 4 bytes, little-endian
	binary.LittleEndian.PutUint32(buf[0:LengthSize], uint32(len(payload)))
	// Payload
	copy(buf[LengthSize:], payload)
	// Terminator is already zero

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %w", ErrConnection, err)
	}
	return nil
}

// Decode reads one complete frame from r with DefaultLimits and returns its payload.
func Decode(r io.Reader) ([]byte, error) {
	return DecodeWithLimits(r, DefaultLimits())
}

// DecodeWithLimits reads one complete frame from r.
//
// Frame boundaries are never assumed to line up with individual reads:
// io.ReadFull keeps reading against the remaining deficit until the prefix,
// the payload and the terminator are each complete.
func DecodeWithLimits(r io.Reader, limits Limits) ([]byte, error) {
	// Step 1: Read the 4-byte length prefix
	var lenBuf [LengthSize]byte
	if err := readFull(r, lenBuf[:], "length"); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])

	// Step 2: Refuse lengths we would never accept before allocating for them
	if size > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: payload length %d exceeds limit %d", ErrProtocolViolation, size, limits.MaxPayloadBytes)
	}

	// Step 3: Accumulate exactly size bytes, however many reads that takes
	payload := make([]byte, size)
	if err := readFull(r, payload, "payload"); err != nil {
		return nil, err
	}

	// Step 4: Terminator must be all zero, otherwise we are out of sync
	var term [TerminatorSize]byte
	if err := readFull(r, term[:], "terminator"); err != nil {
		return nil, err
	}
	if !bytes.Equal(term[:], terminator[:]) {
		return nil, fmt.Errorf("%w: bad terminator %x", ErrProtocolViolation, term)
	}

	return payload, nil
}

func readFull(r io.Reader, buf []byte, part string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: stream ended while reading %s", ErrConnectionClosed, part)
		}
		return fmt.Errorf("%w: read %s: %w", ErrConnection, part, err)
	}
	return nil
}
