// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Link is the byte stream a session talks to the programmer over.
//
// Read blocks until at least one byte is available or the read timeout set
// by SetReadTimeout expires. An expired timeout is reported as (0, nil),
// which is how go.bug.st/serial ports behave; a serial.Port satisfies Link
// without an adapter.
type Link interface {
	io.Reader
	io.Writer
	SetReadTimeout(t time.Duration) error
}

// isTimeout reports whether a read error means "no data before the deadline"
// rather than a broken link. Links built on net.Conn-style deadlines report
// timeouts as errors instead of (0, nil).
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
