// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package emulator implements the programmer side of the sprog protocol.
//
// A Device can be used directly as an upload.Link in tests, or served over a
// real serial port with Serve for bench testing without hardware.
package emulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/kiln/pkg/sproto"
	"go.uber.org/zap"
)

// Behavior injects faults into the emulated programmer. Block numbers are
// 1-based; zero disables a fault.
type Behavior struct {
	// RejectBegin answers BEGIN with ERROR
	RejectBegin bool

	// SilentBegin never answers BEGIN
	SilentBegin bool

	// FailBlock answers this block with ERROR
	FailBlock int

	// CorruptBlock treats this block as if it failed its CRC check
	CorruptBlock int

	// DropBlock swallows the first transmission of this block without answering
	DropBlock int
}

// Stats counts what the emulated programmer saw
type Stats struct {
	Frames        int
	Blocks        int
	CRCErrors     int
	Rejected      int
	Dropped       int
	UnknownFrames int
}

// Device is an in-memory sprog programmer
type Device struct {
	mu       sync.Mutex
	behavior Behavior
	logger   *zap.Logger
	decoder  *sproto.Decoder

	pending bytes.Buffer // queued responses for the host
	image   bytes.Buffer // payloads of accepted blocks
	frames  []sproto.Opcode
	stats   Stats

	begun   bool
	ended   bool
	verify  bool
	dropped bool
	timeout time.Duration
}

// New creates an emulated programmer. A nil logger disables logging.
func New(behavior Behavior, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		behavior: behavior,
		logger:   logger,
		decoder:  sproto.NewDecoder(),
	}
}

// Write receives host bytes. Responses are queued for Read.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending.Write(d.feed(p))
	return len(p), nil
}

// Read returns queued responses. With nothing queued it returns (0, nil)
// at once, which a session treats as an expired read timeout.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending.Len() == 0 {
		return 0, nil
	}
	return d.pending.Read(p)
}

// SetReadTimeout records the timeout the host asked for
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

// Feed processes host bytes and returns the response bytes to send back
func (d *Device) Feed(p []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feed(p)
}

// Serve runs the programmer over port until END is received or ctx ends.
// port reads should time out periodically so ctx is observed.
func (d *Device) Serve(ctx context.Context, port io.ReadWriter) error {
	buf := make([]byte, sproto.DataFrameSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("link closed before END")
			}
			return fmt.Errorf("read from host: %w", err)
		}
		if n == 0 {
			continue
		}

		if resp := d.Feed(buf[:n]); len(resp) > 0 {
			if _, err := port.Write(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}

		if d.Ended() {
			return nil
		}
	}
}

// feed runs the decoder over p. Must be called with d.mu held.
func (d *Device) feed(p []byte) []byte {
	var out []byte
	for _, b := range p {
		frame, err := d.decoder.DecodeByte(b)
		if err != nil {
			var crcErr *sproto.CRCError
			if errors.As(err, &crcErr) {
				d.stats.CRCErrors++
				d.logger.Warn("block failed CRC check", zap.Error(err), zap.Int("block", d.stats.Blocks+1))
			}
			out = append(out, byte(sproto.OpError))
			continue
		}
		if frame != nil {
			out = append(out, d.handle(frame)...)
		}
	}
	return out
}

func (d *Device) handle(f *sproto.Frame) []byte {
	d.stats.Frames++
	d.frames = append(d.frames, f.Opcode())
	d.logger.Debug("frame received", zap.Stringer("opcode", f.Opcode()))

	switch f.Opcode() {
	case sproto.OpBegin:
		d.image.Reset()
		d.stats.Blocks = 0
		d.ended = false
		d.dropped = false
		d.verify = f.Verify()

		if d.behavior.SilentBegin {
			return nil
		}
		if d.behavior.RejectBegin {
			d.stats.Rejected++
			return []byte{byte(sproto.OpError)}
		}
		d.begun = true
		return []byte{byte(sproto.OpResponseOK)}

	case sproto.OpData:
		if !d.begun {
			d.stats.Rejected++
			return []byte{byte(sproto.OpError)}
		}

		block := d.stats.Blocks + 1
		if block == d.behavior.DropBlock && !d.dropped {
			d.dropped = true
			d.stats.Dropped++
			return nil
		}
		if block == d.behavior.CorruptBlock {
			d.stats.CRCErrors++
			d.stats.Rejected++
			return []byte{byte(sproto.OpError)}
		}
		if block == d.behavior.FailBlock {
			d.stats.Rejected++
			return []byte{byte(sproto.OpError)}
		}

		d.image.Write(f.Payload())
		d.stats.Blocks = block
		return []byte{byte(sproto.OpResponseOK)}

	case sproto.OpEnd:
		d.ended = true
		d.begun = false
		return nil

	default:
		d.stats.UnknownFrames++
		return nil
	}
}

// Image returns a copy of the payload bytes accepted so far
func (d *Device) Image() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.image.Bytes())
}

// Frames returns the opcodes of every frame received, in order
func (d *Device) Frames() []sproto.Opcode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sproto.Opcode(nil), d.frames...)
}

// Stats returns a snapshot of the device counters
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Ended reports whether END has been received
func (d *Device) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}

// VerifyRequested reports the verify flag of the last BEGIN
func (d *Device) VerifyRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.verify
}

// ReadTimeout returns the last timeout set by the host
func (d *Device) ReadTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout
}
