// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Thermoquad/kiln/pkg/sproto"
	"github.com/Thermoquad/kiln/pkg/upload"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"usage", usageError{errors.New("bad flag")}, 1},
		{"plain error", errors.New("unknown command"), 1},
		{"invalid input", &upload.Error{Kind: upload.KindInvalidInput}, 1},
		{"link unavailable", linkUnavailable(errors.New("no such device")), 2},
		{"io", &upload.Error{Kind: upload.KindIo}, 3},
		{"short write", &upload.Error{Kind: upload.KindShortWrite}, 4},
		{"short read", &upload.Error{Kind: upload.KindShortRead}, 5},
		{"rejected", &upload.Error{Kind: upload.KindProtocolRejected}, 6},
		{"timeout", &upload.Error{Kind: upload.KindTimeout}, 7},
		{"crc", &upload.Error{Kind: upload.KindCrcMismatch}, 8},
		{"bare crc", &sproto.CRCError{Expected: 1, Actual: 2}, 8},
		{"wrapped", fmt.Errorf("uploading app.bin: %w", &upload.Error{Kind: upload.KindTimeout}), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
