// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/kiln/pkg/sproto"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display host frames in human-readable format",
	Long: `Continuously decode and display upload frames as they arrive.

Attach to the host side of a tapped serial line (or to the far end of a
virtual pair) to watch another uploader talk to a programmer. DATA frames
that fail their CRC check are reported and decoding resumes with the next
frame.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	link, connInfo, err := OpenLink(settings.Link)
	if err != nil {
		return err
	}
	defer link.Close()

	if err := link.SetReadTimeout(100 * time.Millisecond); err != nil {
		return linkUnavailable(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Kiln - Frame Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	return monitor(ctx, link, out)
}

// monitor decodes frames from r until ctx ends or r is closed
func monitor(ctx context.Context, r io.Reader, out io.Writer) error {
	decoder := sproto.NewDecoder()
	buf := make([]byte, sproto.DataFrameSize)

	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				fmt.Fprintln(out, "Connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Fprint(out, sproto.FormatFrame(frame))
			}
		}
	}
	return nil
}
