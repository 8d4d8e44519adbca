// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"fmt"
	"time"
)

// Statistics tracks link traffic for one upload session
type Statistics struct {
	StartTime time.Time
	EndTime   time.Time

	// Counters
	FramesSent        uint64
	BytesWritten      uint64
	Responses         uint64
	BlocksAcked       uint64
	PayloadBytes      uint64
	Rejections        uint64
	Timeouts          uint64
	HandshakeAttempts uint64
	Retransmissions   uint64

	// Rates (calculated)
	BlockRate  float64 // blocks/sec
	Throughput float64 // payload bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Elapsed returns the session duration so far, or its total once finished
func (s *Statistics) Elapsed() time.Duration {
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// CalculateRates calculates block rate and throughput
func (s *Statistics) CalculateRates() {
	elapsed := s.Elapsed().Seconds()
	if elapsed > 0 {
		s.BlockRate = float64(s.BlocksAcked) / elapsed
		s.Throughput = float64(s.PayloadBytes) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	result := fmt.Sprintf("=== Upload Statistics (%.1f seconds) ===\n", s.Elapsed().Seconds())
	result += fmt.Sprintf("Blocks Acked:    %8d\n", s.BlocksAcked)
	result += fmt.Sprintf("Payload Bytes:   %8d\n", s.PayloadBytes)
	result += fmt.Sprintf("Frames Sent:     %8d (%d bytes)\n", s.FramesSent, s.BytesWritten)
	result += fmt.Sprintf("Responses:       %8d\n", s.Responses)

	if s.HandshakeAttempts > 1 {
		result += fmt.Sprintf("Handshake Waits: %8d\n", s.HandshakeAttempts)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.Retransmissions > 0 {
		result += fmt.Sprintf("Retransmissions: %8d\n", s.Retransmissions)
	}
	if s.Rejections > 0 {
		result += fmt.Sprintf("Rejections:      %8d\n", s.Rejections)
	}

	result += fmt.Sprintf("Block Rate:      %8.1f blocks/sec\n", s.BlockRate)
	result += fmt.Sprintf("Throughput:      %8.1f bytes/sec\n", s.Throughput)
	result += "========================================\n"

	return result
}
