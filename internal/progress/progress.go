package progress

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
)

// ErrCancelled is returned by operations that stopped because the reporter's
// cancellation probe fired. Callers must not commit partial results.
var ErrCancelled = errors.New("cancelled by user")

// Reporter is the progress surface long-running operations draw on. Loops are
// expected to poll IsCancelled at least once per processed item so a cancel
// request takes effect promptly.
type Reporter interface {
	Start(total int, msg string)
	Update(done int, msg string)
	IsCancelled() bool
	End()
}

// Nop discards all progress and never cancels.
type Nop struct{}

func (Nop) Start(int, string)  {}
func (Nop) Update(int, string) {}
func (Nop) IsCancelled() bool  { return false }
func (Nop) End()               {}

// Live renders a single in-place terminal line with uilive and turns the
// first Ctrl-C into a cooperative cancel. A second Ctrl-C terminates the
// process the usual way.
type Live struct {
	writer    *uilive.Writer
	total     int
	label     string
	cancelled atomic.Bool
	sigChan   chan os.Signal
}

// NewLive creates a Live reporter and installs its interrupt handler.
func NewLive() *Live {
	l := &Live{sigChan: make(chan os.Signal, 1)}
	signal.Notify(l.sigChan, os.Interrupt)
	go func() {
		if _, ok := <-l.sigChan; ok {
			l.cancelled.Store(true)
			log.Warn("Cancellation requested, finishing the current item...")
			signal.Stop(l.sigChan)
		}
	}()
	return l
}

func (l *Live) Start(total int, msg string) {
	l.writer = uilive.New()
	l.writer.Start()
	l.total = total
	l.label = msg
	if total > 0 {
		fmt.Fprintf(l.writer, "%s (0/%d)\n", msg, total)
	} else {
		fmt.Fprintf(l.writer, "%s\n", msg)
	}
}

func (l *Live) Update(done int, msg string) {
	if l.writer == nil {
		return
	}
	if msg == "" {
		msg = l.label
	}
	if l.total > 0 {
		fmt.Fprintf(l.writer, "%s (%d/%d)\n", msg, done, l.total)
	} else {
		fmt.Fprintf(l.writer, "%s (%d)\n", msg, done)
	}
}

func (l *Live) IsCancelled() bool {
	return l.cancelled.Load()
}

func (l *Live) End() {
	if l.writer != nil {
		l.writer.Stop()
		l.writer = nil
	}
}

// Shutdown releases the interrupt handler. Call once when the command is
// done with the reporter.
func (l *Live) Shutdown() {
	signal.Stop(l.sigChan)
	close(l.sigChan)
}
