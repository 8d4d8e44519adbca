// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/kiln/internal/emulator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	emulateOutput   string
	emulateBehavior emulator.Behavior
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Act as a programmer on a serial port",
	Long: `Serve the programmer side of the upload protocol on a serial port and
save the received image.

Connect two serial ports with a null-modem cable (or a virtual pair such as
socat pty,raw,echo=0 pty,raw,echo=0), run emulate on one end and upload on
the other. Fault flags make the emulated programmer misbehave so error
handling can be checked without hardware.

Examples:
  kiln emulate --port /dev/pts/3 --output received.bin
  kiln emulate --port /dev/pts/3 --drop-block 5`,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)

	flags := emulateCmd.Flags()
	flags.StringVarP(&emulateOutput, "output", "o", "", "Write the received image to this file")
	flags.BoolVar(&emulateBehavior.RejectBegin, "reject-begin", false, "Answer BEGIN with ERROR")
	flags.BoolVar(&emulateBehavior.SilentBegin, "silent-begin", false, "Never answer BEGIN")
	flags.IntVar(&emulateBehavior.FailBlock, "fail-block", 0, "Answer this block with ERROR")
	flags.IntVar(&emulateBehavior.CorruptBlock, "corrupt-block", 0, "Treat this block as failing its CRC check")
	flags.IntVar(&emulateBehavior.DropBlock, "drop-block", 0, "Ignore the first transmission of this block")
}

func runEmulate(cmd *cobra.Command, args []string) error {
	if settings.Link.Port == "" {
		return usageError{errors.New("--port must be specified")}
	}

	link, err := OpenSerialLink(settings.Link.Port, settings.Link.Baud)
	if err != nil {
		return linkUnavailable(err)
	}
	defer link.Close()

	// Serve polls so that Ctrl+C is noticed between frames
	if err := link.SetReadTimeout(100 * time.Millisecond); err != nil {
		return linkUnavailable(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Kiln - Programmer Emulator\n")
	fmt.Fprintf(out, "Connection: Serial: %s @ %d baud\n", settings.Link.Port, settings.Link.Baud)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	dev := emulator.New(emulateBehavior, logger)
	serveErr := dev.Serve(ctx, link)

	stats := dev.Stats()
	fmt.Fprintf(out, "Frames: %d  Blocks: %d  CRC errors: %d  Rejected: %d  Dropped: %d\n",
		stats.Frames, stats.Blocks, stats.CRCErrors, stats.Rejected, stats.Dropped)

	if emulateOutput != "" && (stats.Blocks > 0 || dev.Ended()) {
		image := dev.Image()
		if err := os.WriteFile(emulateOutput, image, 0o644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Fprintf(out, "Image: %s (%d bytes)\n", emulateOutput, len(image))
	}

	if serveErr != nil && !errors.Is(serveErr, ctx.Err()) {
		logger.Error("emulator stopped", zap.Error(serveErr))
		return serveErr
	}
	return nil
}
