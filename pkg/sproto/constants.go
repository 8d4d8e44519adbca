// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sproto implements the framing of the sprog serial programmer
// protocol.
//
// The protocol is a synchronous request/response exchange over a serial
// link. The host opens a transfer with BEGIN, streams the firmware image as
// fixed 512-byte DATA frames (each protected by a CRC-16/XMODEM) and closes
// it with END. The programmer answers BEGIN and every DATA frame with a
// single RESPONSE_OK or ERROR byte.
//
// Frames carry no length field. The receiver knows the size of each frame
// from its opcode:
//
//	BEGIN        0x01 flag                   2 bytes
//	DATA         0x02 payload[512] crc16     515 bytes
//	RESPONSE_OK  0x03                        1 byte
//	END          0x04                        1 byte
//	ERROR        0x05                        1 byte
package sproto

// Block and frame sizes
const (
	BlockSize = 512

	BeginFrameSize    = 2
	DataFrameSize     = 1 + BlockSize + CRCSize
	ResponseFrameSize = 1
	EndFrameSize      = 1

	CRCSize = 2
)

// BEGIN flag values
const (
	verifyOff = 0x00
	verifyOn  = 0x01
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateFlag
	statePayload
	stateCRC1
	stateCRC2
)
