// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/kiln/pkg/upload"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// renderer shows upload progress while run executes the session
type renderer interface {
	Update(p upload.Progress)
	Run(run func() error) error
}

// newRenderer picks a renderer by mode. "auto" uses the TUI when stdout is
// a terminal and plain output otherwise.
func newRenderer(mode string, out io.Writer, info uploadInfo, cancel context.CancelFunc) renderer {
	if mode == "auto" {
		mode = "plain"
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			mode = "tui"
		}
	}

	switch mode {
	case "bar":
		return &barRenderer{out: out}
	case "tui":
		return newTUIRenderer(out, info, cancel)
	default:
		return &plainRenderer{out: out}
	}
}

// uploadInfo is shown in the TUI header
type uploadInfo struct {
	connection string
	firmware   string
	size       int64
}

// plainRenderer prints one carriage-return terminated line per block
type plainRenderer struct {
	out  io.Writer
	last int
}

func (r *plainRenderer) Update(p upload.Progress) {
	if p.Phase != upload.PhaseTransferring || p.Block == 0 || p.Block == r.last {
		return
	}
	r.last = p.Block
	fmt.Fprintf(r.out, "Block %d of %d uploaded\r", p.Block, p.TotalBlocks)
}

func (r *plainRenderer) Run(run func() error) error {
	err := run()
	if r.last > 0 {
		fmt.Fprintln(r.out)
	}
	return err
}

// barRenderer draws a progress bar counted in blocks
type barRenderer struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (r *barRenderer) Update(p upload.Progress) {
	if r.bar == nil {
		if p.TotalBlocks == 0 {
			return
		}
		r.bar = progressbar.NewOptions(p.TotalBlocks,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Uploading"),
			progressbar.OptionSetItsString("blocks"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}
	_ = r.bar.Set(p.Block)
}

func (r *barRenderer) Run(run func() error) error {
	err := run()
	if r.bar != nil {
		if err == nil {
			_ = r.bar.Finish()
		} else {
			_ = r.bar.Exit()
		}
		fmt.Fprintln(r.out)
	}
	return err
}

// tuiRenderer runs a bubbletea program alongside the session
type tuiRenderer struct {
	program *tea.Program
}

type progressMsg upload.Progress
type doneMsg struct{ err error }

func newTUIRenderer(out io.Writer, info uploadInfo, cancel context.CancelFunc) *tuiRenderer {
	m := newUploadModel(info, cancel)
	return &tuiRenderer{program: tea.NewProgram(m, tea.WithOutput(out))}
}

// Update is called on the session goroutine and hands the progress to the UI
func (r *tuiRenderer) Update(p upload.Progress) {
	r.program.Send(progressMsg(p))
}

func (r *tuiRenderer) Run(run func() error) error {
	result := make(chan error, 1)
	go func() {
		err := run()
		result <- err
		r.program.Send(doneMsg{err: err})
	}()

	if _, err := r.program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "progress display failed: %v\n", err)
	}
	return <-result
}

// uploadModel is the TUI model
type uploadModel struct {
	info     uploadInfo
	cancel   context.CancelFunc
	bar      progress.Model
	state    upload.Progress
	done     bool
	err      error
	stopping bool
}

func newUploadModel(info uploadInfo, cancel context.CancelFunc) uploadModel {
	return uploadModel{
		info:   info,
		cancel: cancel,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
	}
}

func (m uploadModel) Init() tea.Cmd {
	return nil
}

func (m uploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// The session stops at the next block boundary and reports back
			if !m.stopping && m.cancel != nil {
				m.stopping = true
				m.cancel()
			}
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, 80))

	case progressMsg:
		m.state = upload.Progress(msg)

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m uploadModel) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	var s strings.Builder
	s.WriteString(titleStyle.Render("KILN - FIRMWARE UPLOAD"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Firmware: %s (%d bytes) | Press 'q' to abort",
		m.info.connection, m.info.firmware, m.info.size)))
	s.WriteString("\n\n")

	s.WriteString(m.bar.ViewAs(m.state.Percentage / 100))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Phase:"), valueStyle.Render(m.state.Phase.String()),
		labelStyle.Render("Block:"), valueStyle.Render(fmt.Sprintf("%d of %d", m.state.Block, m.state.TotalBlocks)),
		labelStyle.Render("Elapsed:"), valueStyle.Render(m.state.Elapsed.Round(100*time.Millisecond).String()),
	))

	switch {
	case m.done && m.err != nil:
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		s.WriteString("\n")
	case m.done:
		s.WriteString("\n")
		s.WriteString(valueStyle.Render(fmt.Sprintf("✓ Uploaded %d blocks", m.state.Block)))
		s.WriteString("\n")
	case m.stopping:
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Stopping after the current block..."))
		s.WriteString("\n")
	}

	return s.String()
}
