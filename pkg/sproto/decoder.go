// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import (
	"fmt"
	"time"
)

// CRCError is returned when a DATA frame's CRC does not match its payload
type CRCError struct {
	Expected uint16 // computed over the received payload
	Actual   uint16 // carried in the frame
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch: expected 0x%04X, got 0x%04X", e.Expected, e.Actual)
}

// Decoder implements the receiving side of the framing as a byte-at-a-time
// state machine. Frame boundaries come from the opcode alone.
type Decoder struct {
	state     int
	frame     *Frame
	rawBuffer []byte // Accumulate raw bytes of the frame in progress
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		rawBuffer: make([]byte, 0, DataFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.frame = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the raw bytes of the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// Pending reports whether the decoder is in the middle of a frame
func (d *Decoder) Pending() bool {
	return d.state != stateIdle
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns a *CRCError if a DATA frame fails its integrity check.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		d.rawBuffer = append(d.rawBuffer[:0], b)
		op := DecodeOpcode(b)
		d.frame = &Frame{code: b, opcode: op}

		switch op {
		case OpBegin:
			d.state = stateFlag
			return nil, nil
		case OpData:
			d.frame.payload = make([]byte, 0, BlockSize)
			d.state = statePayload
			return nil, nil
		default:
			// Opcode-only frame (or garbage byte)
			return d.complete(), nil
		}

	case stateFlag:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.verify = b != verifyOff
		return d.complete(), nil

	case statePayload:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.payload = append(d.frame.payload, b)
		if len(d.frame.payload) >= BlockSize {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.crc |= uint16(b)

		calculatedCRC := CalculateCRC(d.frame.payload)
		if d.frame.crc != calculatedCRC {
			err := &CRCError{Expected: calculatedCRC, Actual: d.frame.crc}
			d.Reset()
			return nil, err
		}
		return d.complete(), nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// Decode feeds data through the decoder and returns every frame completed
// along the way. Decoding stops at the first error.
func (d *Decoder) Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			return frames, err
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func (d *Decoder) complete() *Frame {
	frame := d.frame
	frame.timestamp = time.Now()
	d.state = stateIdle
	d.frame = nil
	return frame
}
