// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/kiln/pkg/sproto"
)

// ErrorKind categorizes upload failures
type ErrorKind int

const (
	// KindLinkUnavailable means the link could not be opened or configured
	KindLinkUnavailable ErrorKind = iota + 1

	// KindIo means a read or write on the link or the firmware source failed
	KindIo

	// KindShortWrite means the link accepted fewer bytes than the frame holds
	KindShortWrite

	// KindShortRead means a block could not be read as a full 512-byte payload
	KindShortRead

	// KindProtocolRejected means the programmer answered ERROR or an unexpected opcode
	KindProtocolRejected

	// KindTimeout means no response arrived within the policy bounds
	KindTimeout

	// KindCrcMismatch means a received DATA frame failed its CRC check
	KindCrcMismatch

	// KindInvalidInput means the session was misused
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindLinkUnavailable:
		return "link unavailable"
	case KindIo:
		return "I/O error"
	case KindShortWrite:
		return "short write"
	case KindShortRead:
		return "short read"
	case KindProtocolRejected:
		return "protocol rejected"
	case KindTimeout:
		return "timeout"
	case KindCrcMismatch:
		return "CRC mismatch"
	case KindInvalidInput:
		return "invalid input"
	default:
		return "unknown error"
	}
}

// Error is the terminal error of a failed upload session
type Error struct {
	// Kind is the error category
	Kind ErrorKind

	// Phase is the session phase the failure occurred in
	Phase Phase

	// Block is the 1-based block number being transferred (0 outside the data phase)
	Block int

	// Opcode is the programmer response that caused a rejection
	// (sproto.OpUnknown when not applicable)
	Opcode sproto.Opcode

	// Err is the underlying cause
	Err error
}

func (e *Error) Error() string {
	where := e.Phase.String()
	if e.Block > 0 {
		where = fmt.Sprintf("%s, block %d", where, e.Block)
	}
	if e.Err == nil {
		return fmt.Sprintf("upload %s (%s)", e.Kind, where)
	}
	return fmt.Sprintf("upload %s (%s): %v", e.Kind, where, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an upload error. Decoder CRC errors map to
// KindCrcMismatch; anything else that is not an *Error maps to KindIo.
// Returns 0 for a nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	var crcErr *sproto.CRCError
	if errors.As(err, &crcErr) {
		return KindCrcMismatch
	}
	return KindIo
}

// IsKind reports whether err is an upload error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
