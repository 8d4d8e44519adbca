// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidPayloadSize is returned when a DATA payload is not exactly one block
var ErrInvalidPayloadSize = errors.New("invalid payload size")

// EncodeBegin builds a BEGIN frame. The flag byte asks the programmer to
// verify every block it writes.
func EncodeBegin(verify bool) []byte {
	frame := make([]byte, BeginFrameSize)
	frame[0] = byte(OpBegin)
	if verify {
		frame[1] = verifyOn
	} else {
		frame[1] = verifyOff
	}
	return frame
}

// EncodeData builds a DATA frame: opcode, the 512-byte payload, then the
// big-endian CRC-16/XMODEM of the payload.
func EncodeData(payload []byte) ([]byte, error) {
	if len(payload) != BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrInvalidPayloadSize, len(payload), BlockSize)
	}

	frame := make([]byte, DataFrameSize)
	frame[0] = byte(OpData)
	copy(frame[1:1+BlockSize], payload)
	binary.BigEndian.PutUint16(frame[1+BlockSize:], CalculateCRC(payload))

	return frame, nil
}

// EncodeEnd builds an END frame
func EncodeEnd() []byte {
	return []byte{byte(OpEnd)}
}

// EncodeResponse builds a single-byte programmer response frame.
// Only RESPONSE_OK and ERROR are responses; other opcodes are rejected.
func EncodeResponse(op Opcode) ([]byte, error) {
	if !op.IsResponse() {
		return nil, fmt.Errorf("%s is not a response opcode", op)
	}
	return []byte{byte(op)}, nil
}
