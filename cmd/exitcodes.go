// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"

	"github.com/Thermoquad/kiln/pkg/sproto"
	"github.com/Thermoquad/kiln/pkg/upload"
)

// Process exit codes
const (
	ExitOK               = 0
	ExitUsage            = 1
	ExitLinkUnavailable  = 2
	ExitIo               = 3
	ExitShortWrite       = 4
	ExitShortRead        = 5
	ExitProtocolRejected = 6
	ExitTimeout          = 7
	ExitCrcMismatch      = 8
)

// usageError marks bad flags, arguments or configuration
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var uerr *upload.Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case upload.KindLinkUnavailable:
			return ExitLinkUnavailable
		case upload.KindIo:
			return ExitIo
		case upload.KindShortWrite:
			return ExitShortWrite
		case upload.KindShortRead:
			return ExitShortRead
		case upload.KindProtocolRejected:
			return ExitProtocolRejected
		case upload.KindTimeout:
			return ExitTimeout
		case upload.KindCrcMismatch:
			return ExitCrcMismatch
		default:
			return ExitUsage
		}
	}

	var crcErr *sproto.CRCError
	if errors.As(err, &crcErr) {
		return ExitCrcMismatch
	}

	// Cobra flag errors, usageError and anything else
	return ExitUsage
}

// linkUnavailable wraps a failure to open or configure the link
func linkUnavailable(err error) error {
	return &upload.Error{Kind: upload.KindLinkUnavailable, Phase: upload.PhaseIdle, Opcode: sproto.OpUnknown, Err: err}
}
