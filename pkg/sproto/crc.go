// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CalculateCRC computes the CRC-16/XMODEM checksum of data
// (poly 0x1021, init 0x0000, no reflection, no final xor)
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
