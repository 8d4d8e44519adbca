// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sproto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecodeOpcode_Total(t *testing.T) {
	named := map[byte]Opcode{
		0x01: OpBegin,
		0x02: OpData,
		0x03: OpResponseOK,
		0x04: OpEnd,
		0x05: OpError,
	}

	for i := 0; i <= 0xFF; i++ {
		b := byte(i)
		got := DecodeOpcode(b)
		if want, ok := named[b]; ok {
			if got != want {
				t.Errorf("DecodeOpcode(0x%02X) = %s, want %s", b, got, want)
			}
		} else if got != OpUnknown {
			t.Errorf("DecodeOpcode(0x%02X) = %s, want UNKNOWN", b, got)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := map[Opcode]string{
		OpBegin:      "BEGIN",
		OpData:       "DATA",
		OpResponseOK: "RESPONSE_OK",
		OpEnd:        "END",
		OpError:      "ERROR",
		OpUnknown:    "UNKNOWN",
		Opcode(0x42): "UNKNOWN(0x42)",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", uint8(op), got, want)
		}
	}
}

func TestFrameSize(t *testing.T) {
	tests := map[Opcode]int{
		OpBegin:      2,
		OpData:       515,
		OpResponseOK: 1,
		OpEnd:        1,
		OpError:      1,
		OpUnknown:    1,
	}
	for op, want := range tests {
		if got := FrameSize(op); got != want {
			t.Errorf("FrameSize(%s) = %d, want %d", op, got, want)
		}
	}
}

func TestDecoder_BeginFrame(t *testing.T) {
	for _, verify := range []bool{true, false} {
		d := NewDecoder()
		frames, err := d.Decode(EncodeBegin(verify))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(frames) != 1 {
			t.Fatalf("decoded %d frames, want 1", len(frames))
		}
		if frames[0].Opcode() != OpBegin {
			t.Errorf("opcode = %s, want BEGIN", frames[0].Opcode())
		}
		if frames[0].Verify() != verify {
			t.Errorf("verify = %t, want %t", frames[0].Verify(), verify)
		}
	}
}

func TestDecoder_DataFrame(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A, 0xA5}, BlockSize/2)
	wire, err := EncodeData(payload)
	if err != nil {
		t.Fatalf("EncodeData failed: %v", err)
	}

	d := NewDecoder()
	for i, b := range wire[:len(wire)-1] {
		frame, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("DecodeByte(%d) failed: %v", i, err)
		}
		if frame != nil {
			t.Fatalf("frame completed early at byte %d", i)
		}
	}
	if !d.Pending() {
		t.Error("decoder should be mid-frame")
	}
	if len(d.GetRawBytes()) != DataFrameSize-1 {
		t.Errorf("raw bytes = %d, want %d", len(d.GetRawBytes()), DataFrameSize-1)
	}

	frame, err := d.DecodeByte(wire[len(wire)-1])
	if err != nil {
		t.Fatalf("final DecodeByte failed: %v", err)
	}
	if frame == nil {
		t.Fatal("expected completed frame")
	}
	if !bytes.Equal(frame.Payload(), payload) {
		t.Error("payload mismatch")
	}
	if frame.CRC() != CalculateCRC(payload) {
		t.Errorf("CRC = 0x%04X, want 0x%04X", frame.CRC(), CalculateCRC(payload))
	}
	if frame.Timestamp().IsZero() {
		t.Error("timestamp not set")
	}
	if d.Pending() {
		t.Error("decoder should be idle after a complete frame")
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	wire, _ := EncodeData(make([]byte, BlockSize))
	wire[100] ^= 0xFF

	d := NewDecoder()
	_, err := d.Decode(wire)

	var crcErr *CRCError
	if !errors.As(err, &crcErr) {
		t.Fatalf("error = %v, want *CRCError", err)
	}
	if crcErr.Actual != 0x0000 {
		t.Errorf("carried CRC = 0x%04X, want 0x0000", crcErr.Actual)
	}
	if !strings.Contains(err.Error(), "CRC mismatch") {
		t.Errorf("error message = %q", err.Error())
	}
	if d.Pending() {
		t.Error("decoder should reset after a CRC error")
	}

	// Decoder recovers on the next frame
	frames, err := d.Decode(EncodeEnd())
	if err != nil || len(frames) != 1 || frames[0].Opcode() != OpEnd {
		t.Errorf("decoder did not recover: frames=%v err=%v", frames, err)
	}
}

func TestDecoder_Sequence(t *testing.T) {
	block, _ := EncodeData(make([]byte, BlockSize))

	var stream []byte
	stream = append(stream, EncodeBegin(false)...)
	stream = append(stream, block...)
	stream = append(stream, block...)
	stream = append(stream, EncodeEnd()...)
	stream = append(stream, 0x03, 0x05, 0x42)

	frames, err := NewDecoder().Decode(stream)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []Opcode{OpBegin, OpData, OpData, OpEnd, OpResponseOK, OpError, OpUnknown}
	if len(frames) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Opcode() != want[i] {
			t.Errorf("frame %d = %s, want %s", i, f.Opcode(), want[i])
		}
	}
	if frames[6].Code() != 0x42 {
		t.Errorf("unknown frame code = 0x%02X, want 0x42", frames[6].Code())
	}
}

func TestFormatFrame(t *testing.T) {
	frames, _ := NewDecoder().Decode(EncodeBegin(true))
	if s := FormatFrame(frames[0]); !strings.Contains(s, "BEGIN (0x01) verify=true") {
		t.Errorf("FormatFrame(BEGIN) = %q", s)
	}

	wire, _ := EncodeData(make([]byte, BlockSize))
	frames, _ = NewDecoder().Decode(wire)
	if s := FormatFrame(frames[0]); !strings.Contains(s, "DATA (0x02) len=512 crc=0x0000") {
		t.Errorf("FormatFrame(DATA) = %q", s)
	}
}

func TestFormatBytes(t *testing.T) {
	if s := FormatBytes(">>", EncodeBegin(false)); s != ">> BEGIN [01 00]" {
		t.Errorf("FormatBytes(BEGIN) = %q", s)
	}
	if s := FormatBytes("<<", []byte{0x03}); s != "<< RESPONSE_OK [03]" {
		t.Errorf("FormatBytes(RESPONSE_OK) = %q", s)
	}
	wire, _ := EncodeData(make([]byte, BlockSize))
	if s := FormatBytes(">>", wire); s != ">> DATA len=512 crc=0x0000" {
		t.Errorf("FormatBytes(DATA) = %q", s)
	}
	if s := FormatBytes("<<", nil); s != "<< (empty)" {
		t.Errorf("FormatBytes(nil) = %q", s)
	}
}
