// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Kiln - Firmware uploader for sprog programmers
//
// Sends a firmware image to a programmer over a serial link, one
// CRC-protected 512-byte block at a time.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/kiln/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
