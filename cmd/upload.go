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
	"path/filepath"

	"github.com/Thermoquad/kiln/internal/config"
	"github.com/Thermoquad/kiln/pkg/sproto"
	"github.com/Thermoquad/kiln/pkg/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	firmwarePath string
	uploadTrace  bool
	uploadStats  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a firmware image to the programmer",
	Long: `Upload a firmware image over the sprog block protocol.

The programmer is asked to start a session (BEGIN), every 512-byte block is
sent and acknowledged in turn (DATA), and the session is closed (END).
Images whose size is not a multiple of 512 bytes are rejected unless
--pad-final-block is given.

Examples:
  kiln upload --port /dev/ttyACM0 --firmware app.bin
  kiln upload --port /dev/ttyACM0 -f app.bin --verify --block-retries 2
  kiln upload --url ws://bridge.local/serial -f app.bin --progress bar

Exit codes:
  0 - Upload complete
  1 - Usage or configuration error
  2 - Link unavailable
  3 - I/O error
  4 - Short write
  5 - Short read (firmware image)
  6 - Rejected by the programmer
  7 - Timeout
  8 - CRC mismatch`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	policy := upload.DefaultPolicy()
	flags := uploadCmd.Flags()

	flags.StringVarP(&firmwarePath, "firmware", "f", "", "Firmware image to upload")
	flags.Bool("verify", false, "Ask the programmer to verify each block after writing it")
	flags.Duration("handshake-timeout", policy.HandshakeTimeout, "Wait for the BEGIN response")
	flags.Int("handshake-attempts", policy.HandshakeAttempts, "Times to wait for the BEGIN response")
	flags.Duration("handshake-backoff", policy.HandshakeBackoff, "Pause between BEGIN response waits")
	flags.Duration("block-timeout", policy.BlockTimeout, "Wait for each DATA response")
	flags.Int("block-retries", policy.BlockRetries, "Retransmissions of a DATA frame whose response timed out")
	flags.Bool("pad-final-block", false, "Zero-pad a short final block instead of rejecting the image")
	flags.String("progress", "auto", "Progress display (auto, plain, bar, tui)")
	flags.BoolVar(&uploadTrace, "trace", false, "Print every frame sent and received to stderr")
	flags.BoolVar(&uploadStats, "stats", false, "Print link statistics after the upload")

	_ = uploadCmd.MarkFlagRequired("firmware")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return uploadFirmware(ctx, settings, firmwarePath, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// uploadFirmware runs one upload session with the given settings
func uploadFirmware(ctx context.Context, cfg *config.Config, path string, out, errOut io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return &upload.Error{Kind: upload.KindIo, Opcode: sproto.OpUnknown, Err: fmt.Errorf("open firmware: %w", err)}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return &upload.Error{Kind: upload.KindIo, Opcode: sproto.OpUnknown, Err: fmt.Errorf("stat firmware: %w", err)}
	}
	if !stat.Mode().IsRegular() {
		return usageError{fmt.Errorf("%s is not a regular file", path)}
	}

	src := upload.NewBlockReader(f, stat.Size(), cfg.Upload.FinalBlockPolicy())

	// Reject the image before touching the link
	if err := src.Validate(); err != nil {
		kind := upload.KindIo
		if errors.Is(err, upload.ErrShortRead) {
			kind = upload.KindShortRead
		}
		return &upload.Error{Kind: kind, Opcode: sproto.OpUnknown, Err: err}
	}

	link, connInfo, err := OpenLink(cfg.Link)
	if err != nil {
		return err
	}
	defer link.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	info := uploadInfo{connection: connInfo, firmware: filepath.Base(path), size: stat.Size()}
	r := newRenderer(cfg.Upload.Progress, out, info, cancel)

	opts := []upload.Option{
		upload.WithPolicy(cfg.Upload.Policy()),
		upload.WithVerify(cfg.Upload.Verify),
		upload.WithLogger(logger),
		upload.WithProgressCallback(r.Update),
	}
	if uploadTrace {
		opts = append(opts, upload.WithTrace(func(dir string, data []byte) {
			fmt.Fprintln(errOut, sproto.FormatBytes(dir, data))
		}))
	}

	session := upload.New(link, opts...)
	logger.Info("starting upload",
		zap.String("session", session.ID()),
		zap.String("connection", connInfo),
		zap.String("firmware", path),
		zap.Int64("size", stat.Size()),
		zap.Int("blocks", src.TotalBlocks()),
	)

	if _, plain := r.(*plainRenderer); plain {
		fmt.Fprintf(out, "Kiln - Firmware Upload\n")
		fmt.Fprintf(out, "Connection: %s\n", connInfo)
		fmt.Fprintf(out, "Firmware: %s (%d bytes, %d blocks)\n\n", path, stat.Size(), src.TotalBlocks())
	}

	err = r.Run(func() error {
		return session.Upload(ctx, src)
	})

	if uploadStats {
		fmt.Fprint(errOut, session.Statistics().String())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Upload complete: %d blocks in %.1f seconds\n",
		session.Block(), session.Statistics().Elapsed().Seconds())
	return nil
}
