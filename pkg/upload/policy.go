// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"fmt"
	"time"
)

// Policy bounds how long a session waits for programmer responses.
// Retries use a fixed interval; the link is a local, low-jitter serial line.
type Policy struct {
	// HandshakeTimeout is the read timeout while waiting for the BEGIN response
	HandshakeTimeout time.Duration

	// HandshakeAttempts is the number of response waits before giving up on BEGIN
	HandshakeAttempts int

	// HandshakeBackoff is the fixed delay between handshake waits
	HandshakeBackoff time.Duration

	// BlockTimeout is the read timeout for DATA responses. The programmer
	// writes flash before answering, so this is longer than HandshakeTimeout.
	BlockTimeout time.Duration

	// BlockRetries is the number of times a DATA frame is retransmitted after
	// its response timed out. Zero makes a block timeout fatal.
	BlockRetries int
}

// DefaultPolicy returns the default retry and timeout policy
func DefaultPolicy() Policy {
	return Policy{
		HandshakeTimeout:  500 * time.Millisecond,
		HandshakeAttempts: 5,
		HandshakeBackoff:  250 * time.Millisecond,
		BlockTimeout:      2 * time.Second,
		BlockRetries:      0,
	}
}

// Validate checks that the policy values are usable
func (p Policy) Validate() error {
	if p.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive, got %s", p.HandshakeTimeout)
	}
	if p.HandshakeAttempts < 1 {
		return fmt.Errorf("handshake attempts must be at least 1, got %d", p.HandshakeAttempts)
	}
	if p.HandshakeBackoff < 0 {
		return fmt.Errorf("handshake backoff must not be negative, got %s", p.HandshakeBackoff)
	}
	if p.BlockTimeout <= 0 {
		return fmt.Errorf("block timeout must be positive, got %s", p.BlockTimeout)
	}
	if p.BlockRetries < 0 {
		return fmt.Errorf("block retries must not be negative, got %d", p.BlockRetries)
	}
	return nil
}
