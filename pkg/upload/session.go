// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package upload drives a firmware transfer to a sprog programmer.
//
// A Session owns the link and the firmware source for its whole lifetime
// and runs the protocol synchronously: one frame out, one response in.
// Any failure ends the session immediately; there is no partial success.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/kiln/pkg/sproto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errNoResponse marks a read that timed out without data. It never
// escapes the session; callers turn it into a retry or a KindTimeout error.
var errNoResponse = errors.New("no response")

// Session runs one firmware upload
type Session struct {
	link   Link
	config Config
	logger *zap.Logger

	phase       Phase
	block       int
	totalBlocks int
	timeout     time.Duration
	started     bool
	err         error
	stats       *Statistics
}

// New creates a Session over link.
//
// Example:
//
//	port, _ := serial.Open("/dev/ttyACM0", &serial.Mode{BaudRate: 115200})
//	s := upload.New(port, upload.WithVerify(true))
//	err := s.Upload(ctx, upload.NewBlockReader(f, size, upload.RejectShortFinal))
func New(link Link, opts ...Option) *Session {
	if link == nil {
		panic("link cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	return &Session{
		link:   link,
		config: cfg,
		logger: cfg.Logger.With(zap.String("session", cfg.SessionID)),
		phase:  PhaseIdle,
		stats:  NewStatistics(),
	}
}

// ID returns the session id used in log lines
func (s *Session) ID() string {
	return s.config.SessionID
}

// Phase returns the current state machine phase
func (s *Session) Phase() Phase {
	return s.phase
}

// Block returns the number of blocks acknowledged so far
func (s *Session) Block() int {
	return s.block
}

// TotalBlocks returns the block count of the image being uploaded
func (s *Session) TotalBlocks() int {
	return s.totalBlocks
}

// Err returns the terminal error, or nil while running or after success
func (s *Session) Err() error {
	return s.err
}

// Statistics returns the session's traffic counters
func (s *Session) Statistics() *Statistics {
	return s.stats
}

// Upload runs the complete transfer:
//  1. Send BEGIN and wait for RESPONSE_OK (bounded fixed-interval retry)
//  2. Send every block as a DATA frame, waiting for RESPONSE_OK after each
//  3. Send END without waiting for a response
//
// ctx is checked between protocol steps; a read or write already in
// progress is not interrupted. A Session can only be used once.
func (s *Session) Upload(ctx context.Context, src BlockSource) error {
	if s.started {
		return &Error{Kind: KindInvalidInput, Phase: s.phase, Err: errors.New("session already used")}
	}
	s.started = true
	s.stats = NewStatistics()

	err := s.run(ctx, src)
	s.stats.EndTime = time.Now()
	s.phase = PhaseDone
	s.err = err

	if err != nil {
		s.logger.Error("upload failed", zap.Error(err), zap.Int("blocks_acked", s.block))
		return err
	}

	s.report()
	s.logger.Info("upload complete",
		zap.Int("blocks", s.block),
		zap.Uint64("bytes", s.stats.PayloadBytes),
		zap.Duration("elapsed", s.stats.Elapsed()),
	)
	return nil
}

func (s *Session) run(ctx context.Context, src BlockSource) error {
	if src == nil {
		return s.fail(KindInvalidInput, errors.New("block source cannot be nil"))
	}
	if err := s.config.Policy.Validate(); err != nil {
		return s.fail(KindInvalidInput, err)
	}
	if err := src.Validate(); err != nil {
		return s.fail(classifySourceError(err), err)
	}
	s.totalBlocks = src.TotalBlocks()
	s.report()

	s.logger.Debug("starting upload",
		zap.Int("total_blocks", s.totalBlocks),
		zap.Bool("verify", s.config.Verify),
	)

	if err := s.handshake(ctx); err != nil {
		return err
	}
	if err := s.transfer(ctx, src); err != nil {
		return err
	}
	return s.finalize()
}

// handshake sends BEGIN once, then waits for its response up to
// HandshakeAttempts times. Resending BEGIN could pair a late answer with
// the wrong request, so only the wait is retried.
func (s *Session) handshake(ctx context.Context) error {
	policy := s.config.Policy

	if err := s.setTimeout(policy.HandshakeTimeout); err != nil {
		return err
	}
	if err := s.writeFrame(sproto.EncodeBegin(s.config.Verify)); err != nil {
		return err
	}
	s.setPhase(PhaseAwaitingBeginAck)

	for attempt := 1; attempt <= policy.HandshakeAttempts; attempt++ {
		s.stats.HandshakeAttempts++

		op, err := s.readResponse()
		if errors.Is(err, errNoResponse) {
			s.stats.Timeouts++
			s.logger.Debug("no response to BEGIN",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.HandshakeAttempts),
			)
			if attempt < policy.HandshakeAttempts {
				if err := s.sleep(ctx, policy.HandshakeBackoff); err != nil {
					return err
				}
			}
			continue
		}
		if err != nil {
			return err
		}

		if op != sproto.OpResponseOK {
			s.stats.Rejections++
			return s.reject(op, fmt.Errorf("programmer answered BEGIN with %s", op))
		}

		s.logger.Debug("handshake complete", zap.Int("attempt", attempt))
		return nil
	}

	return s.fail(KindTimeout, fmt.Errorf("no response to BEGIN after %d attempts of %s",
		policy.HandshakeAttempts, policy.HandshakeTimeout))
}

// transfer sends every block, one DATA round-trip at a time
func (s *Session) transfer(ctx context.Context, src BlockSource) error {
	s.setPhase(PhaseTransferring)

	// The programmer writes flash before it answers
	if err := s.setTimeout(s.config.Policy.BlockTimeout); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.failBlock(s.block+1, KindIo, fmt.Errorf("cancelled: %w", err))
		}

		payload, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return s.failBlock(s.block+1, classifySourceError(err), err)
		}

		frame, err := sproto.EncodeData(payload)
		if err != nil {
			return s.failBlock(s.block+1, KindShortRead, fmt.Errorf("%w: %v", ErrShortRead, err))
		}

		if err := s.sendBlock(s.block+1, frame); err != nil {
			return err
		}

		s.block++
		s.stats.BlocksAcked++
		s.stats.PayloadBytes += sproto.BlockSize
		s.report()
	}
}

// sendBlock writes one DATA frame and waits for its response. With
// BlockRetries > 0 the frame is retransmitted after a silent timeout;
// an ERROR response is never retried.
func (s *Session) sendBlock(block int, frame []byte) error {
	retries := s.config.Policy.BlockRetries

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			s.stats.Retransmissions++
			s.logger.Warn("retransmitting block",
				zap.Int("block", block),
				zap.Int("attempt", attempt+1),
			)
		}

		if err := s.writeFrame(frame); err != nil {
			return s.atBlock(err, block)
		}

		op, err := s.readResponse()
		if errors.Is(err, errNoResponse) {
			s.stats.Timeouts++
			continue
		}
		if err != nil {
			return s.atBlock(err, block)
		}

		if op != sproto.OpResponseOK {
			s.stats.Rejections++
			cause := fmt.Errorf("programmer answered DATA with %s", op)
			if s.config.Verify && op == sproto.OpError {
				cause = fmt.Errorf("programmer answered DATA with %s; device-side verification rejected the block", op)
			}
			return s.atBlock(s.reject(op, cause), block)
		}
		return nil
	}

	return s.failBlock(block, KindTimeout, fmt.Errorf("no response within %s after %d transmissions",
		s.config.Policy.BlockTimeout, retries+1))
}

// finalize sends END. The programmer does not answer it.
func (s *Session) finalize() error {
	s.setPhase(PhaseFinalizing)
	return s.writeFrame(sproto.EncodeEnd())
}

// writeFrame writes a complete frame in one call
func (s *Session) writeFrame(frame []byte) error {
	n, err := s.link.Write(frame)
	if n > 0 {
		s.stats.BytesWritten += uint64(n)
	}
	if err != nil {
		return s.fail(KindIo, fmt.Errorf("write %s frame: %w", sproto.DecodeOpcode(frame[0]), err))
	}
	if n != len(frame) {
		return s.fail(KindShortWrite, fmt.Errorf("incomplete write of %s frame: wrote %d, expected %d",
			sproto.DecodeOpcode(frame[0]), n, len(frame)))
	}

	s.stats.FramesSent++
	s.trace(">>", frame)
	return nil
}

// readResponse reads exactly one response frame
func (s *Session) readResponse() (sproto.Opcode, error) {
	buf := make([]byte, sproto.ResponseFrameSize)

	n, err := s.link.Read(buf)

	// A byte delivered alongside an error is still the response; the error
	// surfaces on the next read
	if n > 0 {
		s.stats.Responses++
		s.trace("<<", buf[:n])
		return sproto.DecodeOpcode(buf[0]), nil
	}

	switch {
	case err == nil:
		return sproto.OpUnknown, errNoResponse
	case isTimeout(err):
		return sproto.OpUnknown, errNoResponse
	case errors.Is(err, io.EOF):
		return sproto.OpUnknown, s.fail(KindIo, errors.New("link closed"))
	default:
		return sproto.OpUnknown, s.fail(KindIo, fmt.Errorf("read response: %w", err))
	}
}

func (s *Session) setTimeout(d time.Duration) error {
	if d == s.timeout {
		return nil
	}
	if err := s.link.SetReadTimeout(d); err != nil {
		return s.fail(KindLinkUnavailable, fmt.Errorf("set read timeout %s: %w", d, err))
	}
	s.timeout = d
	return nil
}

// sleep waits out a handshake backoff unless ctx ends first
func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return s.fail(KindIo, fmt.Errorf("cancelled: %w", ctx.Err()))
	case <-timer.C:
		return nil
	}
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Debug("phase change", zap.Stringer("from", s.phase), zap.Stringer("to", p))
	s.phase = p
	s.report()
}

func (s *Session) report() {
	if s.config.ProgressCallback == nil {
		return
	}

	var pct float64
	if s.totalBlocks > 0 {
		pct = float64(s.block) * 100.0 / float64(s.totalBlocks)
	} else if s.phase == PhaseFinalizing || s.phase == PhaseDone {
		pct = 100
	}

	s.config.ProgressCallback(Progress{
		Phase:       s.phase,
		Block:       s.block,
		TotalBlocks: s.totalBlocks,
		BytesSent:   int64(s.stats.PayloadBytes),
		Percentage:  pct,
		Elapsed:     s.stats.Elapsed(),
	})
}

func (s *Session) trace(dir string, data []byte) {
	if s.config.Trace != nil {
		s.config.Trace(dir, data)
	}
}

func (s *Session) fail(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Phase: s.phase, Opcode: sproto.OpUnknown, Err: err}
}

func (s *Session) failBlock(block int, kind ErrorKind, err error) error {
	return &Error{Kind: kind, Phase: s.phase, Block: block, Opcode: sproto.OpUnknown, Err: err}
}

func (s *Session) reject(op sproto.Opcode, err error) error {
	return &Error{Kind: KindProtocolRejected, Phase: s.phase, Opcode: op, Err: err}
}

// atBlock stamps the block number on an error built by fail or reject
func (s *Session) atBlock(err error, block int) error {
	var uerr *Error
	if errors.As(err, &uerr) && uerr.Block == 0 {
		uerr.Block = block
	}
	return err
}

func classifySourceError(err error) ErrorKind {
	if errors.Is(err, ErrShortRead) {
		return KindShortRead
	}
	return KindIo
}
