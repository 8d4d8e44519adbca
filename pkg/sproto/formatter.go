// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded frame into a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	switch f.opcode {
	case OpBegin:
		return fmt.Sprintf("[%s] %s (0x%02X) verify=%t\n", timestamp, f.opcode, f.code, f.verify)
	case OpData:
		return fmt.Sprintf("[%s] %s (0x%02X) len=%d crc=0x%04X\n", timestamp, f.opcode, f.code, len(f.payload), f.crc)
	default:
		return fmt.Sprintf("[%s] %s (0x%02X)\n", timestamp, f.opcode, f.code)
	}
}

// FormatBytes summarizes raw link traffic for tracing. dir is a short
// direction marker such as ">>" or "<<". DATA frames are summarized rather
// than dumped in full.
func FormatBytes(dir string, raw []byte) string {
	if len(raw) == 0 {
		return fmt.Sprintf("%s (empty)", dir)
	}

	op := DecodeOpcode(raw[0])
	if op == OpData && len(raw) == DataFrameSize {
		crc := uint16(raw[DataFrameSize-2])<<8 | uint16(raw[DataFrameSize-1])
		return fmt.Sprintf("%s %s len=%d crc=0x%04X", dir, op, BlockSize, crc)
	}

	var hex strings.Builder
	for i, b := range raw {
		if i >= 16 {
			hex.WriteString(" ...")
			break
		}
		if i > 0 {
			hex.WriteString(" ")
		}
		fmt.Fprintf(&hex, "%02X", b)
	}
	return fmt.Sprintf("%s %s [%s]", dir, op, hex.String())
}
