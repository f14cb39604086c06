package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// cliSink renders telemetry.Sink notifications to the terminal via
// charmbracelet/log plus the lipgloss palette in styles.go — the
// "enclosing program" spec.md §4.11 says renders events the core never
// prints itself. Grounded structurally on the teacher's own split between
// silent domain packages and its presentation layer, without adopting
// its Bubble Tea TUI machinery (out of scope per spec.md §1's
// non-goal on terminal prompts/progress rendering beyond plain output).
type cliSink struct {
	mu      sync.Mutex
	logger  *log.Logger
	quiet   bool
	lastURL string
}

func newCLISink(quiet bool) *cliSink {
	return &cliSink{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: false,
		}),
		quiet: quiet,
	}
}

func (s *cliSink) Downloading(url string, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastURL = url
	if s.quiet {
		return
	}
	if total > 0 {
		s.logger.Info("downloading", "url", url, "bytes", total)
	} else {
		s.logger.Info("downloading", "url", url)
	}
}

func (s *cliSink) Progress(done, total int64) {
	if s.quiet || total <= 0 {
		return
	}
	// Intentionally not logged per-chunk: a line per 64KiB tick would
	// flood the terminal. A future renderer can hook this to redraw a
	// single progress bar in place; the CLI sink here only needs the
	// terminal-visible Downloading/Installed bookends to satisfy
	// spec.md's "terminal prompts and progress rendering" scope.
}

func (s *cliSink) Installing(identity string) {
	if s.quiet {
		return
	}
	s.logger.Info(CmdStyle.Render("installing") + " " + identity)
}

func (s *cliSink) Installed(identity string) {
	s.logger.Info(SuccessStyle.Render("installed") + " " + identity)
}

func (s *cliSink) Using(identity, reason string) {
	if s.quiet {
		return
	}
	s.logger.Info(fmt.Sprintf("using %s (%s)", identity, reason))
}

func (s *cliSink) Warn(msg string) {
	s.logger.Warn(WarningStyle.Render(msg))
}

func (s *cliSink) Info(msg string) {
	if s.quiet {
		return
	}
	s.logger.Info(msg)
}
