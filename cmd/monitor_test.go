// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Thermoquad/kiln/pkg/sproto"
)

func TestMonitor(t *testing.T) {
	block := make([]byte, sproto.BlockSize)
	good, err := sproto.EncodeData(block)
	if err != nil {
		t.Fatalf("EncodeData failed: %v", err)
	}
	bad := append([]byte(nil), good...)
	bad[10] ^= 0xFF

	var stream bytes.Buffer
	stream.Write(sproto.EncodeBegin(true))
	stream.Write(bad)
	stream.Write(good)
	stream.Write(sproto.EncodeEnd())

	var out bytes.Buffer
	if err := monitor(context.Background(), &stream, &out); err != nil {
		t.Fatalf("monitor returned %v", err)
	}

	got := out.String()
	for _, want := range []string{"BEGIN (0x01) verify=true", "[ERROR] CRC mismatch", "DATA (0x02) len=512", "END (0x04)", "Connection closed"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
