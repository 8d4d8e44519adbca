// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import "time"

// Frame represents a decoded protocol frame
type Frame struct {
	code      byte
	opcode    Opcode
	verify    bool
	payload   []byte
	crc       uint16
	timestamp time.Time
}

// Opcode returns the frame's opcode
func (f *Frame) Opcode() Opcode {
	return f.opcode
}

// Code returns the raw opcode byte as received
func (f *Frame) Code() byte {
	return f.code
}

// Verify returns the BEGIN verify flag (false for other frames)
func (f *Frame) Verify() bool {
	return f.verify
}

// Payload returns the DATA payload (nil for other frames)
func (f *Frame) Payload() []byte {
	return f.payload
}

// CRC returns the CRC carried by a DATA frame
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns the time the frame finished decoding
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
