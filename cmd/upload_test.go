// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/kiln/internal/config"
	"github.com/Thermoquad/kiln/internal/emulator"
)

// settingsFor loads default settings without reading a real kiln.yaml
func settingsFor(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KILN_CONFIG", "")

	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	cfg.Upload.Progress = "plain"
	return cfg
}

func writeFirmware(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "app.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write firmware: %v", err)
	}
	return path
}

func waitEnded(t *testing.T, dev *emulator.Device) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !dev.Ended() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !dev.Ended() {
		t.Fatal("programmer never saw END")
	}
}

func TestUploadFirmware_OverWebSocket(t *testing.T) {
	dev := emulator.New(emulator.Behavior{}, nil)
	srv := bridge(t, dev)

	cfg := settingsFor(t)
	cfg.Link.URL = wsAddr(srv)
	t.Setenv("KILN_PASSWORD", "secret")

	path := writeFirmware(t, 1024)
	var out, errOut bytes.Buffer
	if err := uploadFirmware(context.Background(), cfg, path, &out, &errOut); err != nil {
		t.Fatalf("uploadFirmware failed: %v", err)
	}

	for _, want := range []string{"Block 1 of 2 uploaded\r", "Block 2 of 2 uploaded\r", "Upload complete: 2 blocks"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	waitEnded(t, dev)
	want, _ := os.ReadFile(path)
	if !bytes.Equal(dev.Image(), want) {
		t.Error("programmer image differs from firmware")
	}
}

func TestUploadFirmware_Rejected(t *testing.T) {
	dev := emulator.New(emulator.Behavior{FailBlock: 2}, nil)
	srv := bridge(t, dev)

	cfg := settingsFor(t)
	cfg.Link.URL = wsAddr(srv)
	t.Setenv("KILN_PASSWORD", "secret")

	var out, errOut bytes.Buffer
	err := uploadFirmware(context.Background(), cfg, writeFirmware(t, 2048), &out, &errOut)
	if code := ExitCode(err); code != ExitProtocolRejected {
		t.Fatalf("ExitCode = %d, want %d (%v)", code, ExitProtocolRejected, err)
	}
	if !strings.Contains(err.Error(), "block 2") {
		t.Errorf("error does not name the block: %v", err)
	}
}

func TestUploadFirmware_ShortImage(t *testing.T) {
	cfg := settingsFor(t)
	// Never dialed: the image is rejected first
	cfg.Link.URL = "ws://127.0.0.1:1/unused"

	var out, errOut bytes.Buffer
	err := uploadFirmware(context.Background(), cfg, writeFirmware(t, 300), &out, &errOut)
	if code := ExitCode(err); code != ExitShortRead {
		t.Fatalf("ExitCode = %d, want %d (%v)", code, ExitShortRead, err)
	}
}

func TestUploadFirmware_PaddedImage(t *testing.T) {
	dev := emulator.New(emulator.Behavior{}, nil)
	srv := bridge(t, dev)

	cfg := settingsFor(t)
	cfg.Link.URL = wsAddr(srv)
	cfg.Upload.PadFinalBlock = true
	t.Setenv("KILN_PASSWORD", "secret")

	path := writeFirmware(t, 300)
	var out, errOut bytes.Buffer
	if err := uploadFirmware(context.Background(), cfg, path, &out, &errOut); err != nil {
		t.Fatalf("uploadFirmware failed: %v", err)
	}

	waitEnded(t, dev)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read firmware: %v", err)
	}
	image := dev.Image()
	if len(image) != 512 {
		t.Fatalf("padded image is %d bytes, want 512", len(image))
	}
	if !bytes.Equal(image[:300], data) {
		t.Error("padded image does not start with the firmware")
	}
	if !bytes.Equal(image[300:], make([]byte, 212)) {
		t.Error("padding is not zero")
	}
}

func TestUploadFirmware_MissingFile(t *testing.T) {
	cfg := settingsFor(t)
	var out, errOut bytes.Buffer

	err := uploadFirmware(context.Background(), cfg, filepath.Join(t.TempDir(), "missing.bin"), &out, &errOut)
	if code := ExitCode(err); code != ExitIo {
		t.Errorf("ExitCode = %d, want %d (%v)", code, ExitIo, err)
	}
}
