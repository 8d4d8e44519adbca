// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the session configuration
type Config struct {
	// Policy bounds response waits and retries
	Policy Policy

	// Verify asks the programmer to verify every block it writes
	Verify bool

	// ProgressCallback is called to report progress (optional)
	ProgressCallback ProgressCallback

	// Trace receives raw frames in both directions (optional)
	Trace TraceFunc

	// Logger receives structured diagnostics
	Logger *zap.Logger

	// SessionID labels log lines; a random UUID is used when empty
	SessionID string
}

func defaultConfig() Config {
	return Config{
		Policy: DefaultPolicy(),
		Logger: zap.NewNop(),
	}
}

// Option is a functional option for configuring a Session
type Option func(*Config)

// WithPolicy replaces the whole retry and timeout policy
func WithPolicy(p Policy) Option {
	return func(c *Config) {
		c.Policy = p
	}
}

// WithVerify sets the BEGIN verify flag
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithHandshakeTimeout sets the read timeout for the BEGIN response
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Policy.HandshakeTimeout = d
	}
}

// WithHandshakeAttempts sets how many times the session waits for the BEGIN response
func WithHandshakeAttempts(n int) Option {
	return func(c *Config) {
		c.Policy.HandshakeAttempts = n
	}
}

// WithHandshakeBackoff sets the fixed delay between handshake waits
func WithHandshakeBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.Policy.HandshakeBackoff = d
	}
}

// WithBlockTimeout sets the read timeout for DATA responses
func WithBlockTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Policy.BlockTimeout = d
	}
}

// WithBlockRetries sets how many times a timed-out DATA frame is retransmitted
func WithBlockRetries(n int) Option {
	return func(c *Config) {
		c.Policy.BlockRetries = n
	}
}

// WithProgressCallback sets a callback to track upload progress.
//
// Example:
//
//	s := upload.New(link,
//	    upload.WithProgressCallback(func(p upload.Progress) {
//	        fmt.Printf("Block %d of %d uploaded\r", p.Block, p.TotalBlocks)
//	    }),
//	)
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = cb
	}
}

// WithTrace sets a function that sees every frame on the link
func WithTrace(fn TraceFunc) Option {
	return func(c *Config) {
		c.Trace = fn
	}
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithSessionID overrides the generated session id used in log lines
func WithSessionID(id string) Option {
	return func(c *Config) {
		c.SessionID = id
	}
}
