// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import "time"

// Phase is a state of the upload state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingBeginAck
	PhaseTransferring
	PhaseFinalizing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingBeginAck:
		return "awaiting begin ack"
	case PhaseTransferring:
		return "transferring"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Progress describes where an upload is. It is passed to ProgressCallback
// on every phase change and after every acknowledged block.
type Progress struct {
	Phase Phase

	// Block is the number of blocks acknowledged so far
	Block int

	// TotalBlocks is the number of blocks in the image
	TotalBlocks int

	// BytesSent is the number of payload bytes acknowledged so far
	BytesSent int64

	// Percentage is the share of blocks acknowledged (0.0 to 100.0)
	Percentage float64

	// Elapsed is the time since the upload started
	Elapsed time.Duration
}

// ProgressCallback is called synchronously on the session goroutine.
// Implementations should return quickly; the programmer is waiting.
type ProgressCallback func(Progress)

// TraceFunc receives every frame written to the link (dir ">>") and every
// response read from it (dir "<<")
type TraceFunc func(dir string, data []byte)
