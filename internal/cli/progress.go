package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/morozRed/codescape/internal/ingest"
)

type progressReporter struct {
	enabled bool
	start   time.Time
	spinner int
	lastLen int
}

func newProgressReporter(asJSON bool) *progressReporter {
	fd := os.Stderr.Fd()
	enabled := (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) && !asJSON
	return &progressReporter{
		enabled: enabled,
		start:   time.Now(),
	}
}

// Follow prints every state received on updates until the channel closes.
// The returned channel is closed once the last state has been printed.
func (r *progressReporter) Follow(updates <-chan ingest.State) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range updates {
			r.Update(s)
		}
		r.Done()
	}()
	return done
}

func (r *progressReporter) Update(s ingest.State) {
	if !r.enabled {
		return
	}
	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	r.printStatus(fmt.Sprintf("%s %s", frame, describeState(s)))
}

func (r *progressReporter) Done() {
	if !r.enabled || r.lastLen == 0 {
		return
	}
	elapsed := time.Since(r.start).Round(time.Millisecond)
	r.printStatus(fmt.Sprintf("ingest finished in %s", elapsed))
	fmt.Fprintln(os.Stderr)
}

func (r *progressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(os.Stderr, "\r%s", status)
}

func describeState(s ingest.State) string {
	switch s.Phase {
	case ingest.PhaseLocated:
		return "located " + s.Location.Root()
	case ingest.PhaseRetrieving:
		return s.Progress
	case ingest.PhaseRetrieved:
		return fmt.Sprintf("retrieved %d files", s.Folder.FileCount())
	case ingest.PhaseProcessingCodebase:
		return fmt.Sprintf("building file entities %d/%d", s.Completed, s.Total)
	case ingest.PhaseProcessingArchitecture:
		return fmt.Sprintf("building folder entities %d/%d", s.Completed, s.Total)
	case ingest.PhaseFailed, ingest.PhaseCanceled:
		return fmt.Sprintf("%s: %s", s.Phase, s.Message)
	default:
		return s.String()
	}
}
