// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestCalculateCRC_CheckValue(t *testing.T) {
	// Standard CRC-16/XMODEM check value
	if got := CalculateCRC([]byte("123456789")); got != 0x31C3 {
		t.Errorf("CalculateCRC(\"123456789\") = 0x%04X, want 0x31C3", got)
	}
	if got := CalculateCRC(nil); got != 0x0000 {
		t.Errorf("CalculateCRC(nil) = 0x%04X, want 0x0000", got)
	}
}

func TestEncodeBegin(t *testing.T) {
	tests := []struct {
		name   string
		verify bool
		want   []byte
	}{
		{name: "with verify", verify: true, want: []byte{0x01, 0x01}},
		{name: "no verify", verify: false, want: []byte{0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeBegin(tt.verify)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeBegin(%t) = % X, want % X", tt.verify, got, tt.want)
			}
		})
	}
}

func TestEncodeEnd(t *testing.T) {
	if got := EncodeEnd(); !bytes.Equal(got, []byte{0x04}) {
		t.Errorf("EncodeEnd() = % X, want 04", got)
	}
}

func TestEncodeData(t *testing.T) {
	payload := make([]byte, BlockSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	frame, err := EncodeData(payload)
	if err != nil {
		t.Fatalf("EncodeData failed: %v", err)
	}

	if len(frame) != DataFrameSize {
		t.Fatalf("frame length = %d, want %d", len(frame), DataFrameSize)
	}
	if DecodeOpcode(frame[0]) != OpData {
		t.Errorf("frame[0] decodes to %s, want DATA", DecodeOpcode(frame[0]))
	}
	if !bytes.Equal(frame[1:1+BlockSize], payload) {
		t.Error("payload not copied into frame")
	}

	want := CalculateCRC(frame[1 : 1+BlockSize])
	got := binary.BigEndian.Uint16(frame[1+BlockSize:])
	if got != want {
		t.Errorf("trailing CRC = 0x%04X, want 0x%04X", got, want)
	}
}

func TestEncodeData_DoesNotAliasPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, BlockSize)
	frame, err := EncodeData(payload)
	if err != nil {
		t.Fatalf("EncodeData failed: %v", err)
	}

	payload[0] = 0x55
	if frame[1] != 0xAA {
		t.Error("frame shares memory with the caller's payload")
	}
}

func TestEncodeData_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 1, 300, BlockSize - 1, BlockSize + 1, 1024} {
		_, err := EncodeData(make([]byte, size))
		if !errors.Is(err, ErrInvalidPayloadSize) {
			t.Errorf("EncodeData(%d bytes) error = %v, want ErrInvalidPayloadSize", size, err)
		}
	}
}

func TestEncodeResponse(t *testing.T) {
	for _, op := range []Opcode{OpResponseOK, OpError} {
		got, err := EncodeResponse(op)
		if err != nil {
			t.Fatalf("EncodeResponse(%s) failed: %v", op, err)
		}
		if !bytes.Equal(got, []byte{byte(op)}) {
			t.Errorf("EncodeResponse(%s) = % X", op, got)
		}
	}

	for _, op := range []Opcode{OpBegin, OpData, OpEnd, OpUnknown} {
		if _, err := EncodeResponse(op); err == nil {
			t.Errorf("EncodeResponse(%s) should fail", op)
		}
	}
}
