// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/gogpu/neb"
)

// progressInterval is the minimum time between two progress lines.
const progressInterval = 200 * time.Millisecond

// progressListener prints render progress. On a terminal the progress line is
// rewritten in place; otherwise each line is printed, rate limited.
type progressListener struct {
	neb.NopListener

	w       io.Writer
	printer *message.Printer
	log     *slog.Logger
	tty     bool
	limit   *rate.Limiter

	mu      sync.Mutex
	pending bool // a progress line without a trailing newline was printed
}

func newProgressListener(w io.Writer, p *message.Printer, log *slog.Logger) *progressListener {
	return &progressListener{
		w:       w,
		printer: p,
		log:     log,
		tty:     isTerminal(w),
		limit:   rate.NewLimiter(rate.Every(progressInterval), 1),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *progressListener) RenderStarted(info neb.RenderInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.printer.Fprintf(l.w, "Rendering %s at %dx%d on %d workers (%d negatives, %d increments each)\n",
		info.Algorithm, info.Width, info.Height, info.Workers, info.Negatives, info.IterationGoal)
}

func (l *progressListener) Progress(p neb.Progress) {
	if !l.limit.Allow() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tty {
		l.printer.Fprintf(l.w, "\r%d/%d negatives developed", p.Developed, p.Total)
		l.pending = true
		return
	}
	l.printer.Fprintf(l.w, "%d/%d negatives developed\n", p.Developed, p.Total)
}

func (l *progressListener) RenderEnded(info neb.RenderInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endLine()
	l.printer.Fprintf(l.w, "Render %s finished in %v\n", info.ID, info.Elapsed.Round(time.Millisecond))
}

func (l *progressListener) ErrorOccurred(info neb.RenderInfo, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endLine()
	l.printer.Fprintf(l.w, "Render %s aborted: %v\n", info.ID, err)
}

// Log forwards engine messages to the logger, one record per line.
func (l *progressListener) Log(msg string) {
	for _, line := range strings.Split(msg, "\n") {
		l.log.Info(line)
	}
}

// endLine terminates an in-place progress line.
func (l *progressListener) endLine() {
	if l.pending {
		io.WriteString(l.w, "\n")
		l.pending = false
	}
}
