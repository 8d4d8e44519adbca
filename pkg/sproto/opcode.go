// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import "fmt"

// Opcode is the one-byte tag that starts every frame
type Opcode uint8

// Opcode values
const (
	OpBegin      Opcode = 0x01 // host → programmer
	OpData       Opcode = 0x02 // host → programmer
	OpResponseOK Opcode = 0x03 // programmer → host
	OpEnd        Opcode = 0x04 // host → programmer
	OpError      Opcode = 0x05 // programmer → host
	OpUnknown    Opcode = 0xFF // decode only, never transmitted
)

// DecodeOpcode maps a wire byte to an Opcode.
// Bytes outside the defined set decode to OpUnknown.
func DecodeOpcode(b byte) Opcode {
	switch Opcode(b) {
	case OpBegin, OpData, OpResponseOK, OpEnd, OpError:
		return Opcode(b)
	default:
		return OpUnknown
	}
}

// String returns the protocol name of the opcode
func (o Opcode) String() string {
	switch o {
	case OpBegin:
		return "BEGIN"
	case OpData:
		return "DATA"
	case OpResponseOK:
		return "RESPONSE_OK"
	case OpEnd:
		return "END"
	case OpError:
		return "ERROR"
	case OpUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(o))
	}
}

// IsResponse reports whether the opcode is sent by the programmer
func (o Opcode) IsResponse() bool {
	return o == OpResponseOK || o == OpError
}

// FrameSize returns the total wire size of a frame starting with op.
// Unknown opcodes are treated as single-byte frames so a receiver can skip
// garbage one byte at a time.
func FrameSize(op Opcode) int {
	switch op {
	case OpBegin:
		return BeginFrameSize
	case OpData:
		return DataFrameSize
	case OpEnd:
		return EndFrameSize
	default:
		return ResponseFrameSize
	}
}
