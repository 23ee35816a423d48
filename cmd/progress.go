package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/report"
)

// progress prints one line per finished check. Calls may arrive from
// several goroutines when checks run in parallel.
type progress struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w}
}

func (p *progress) CheckStarted(int, int, string) {}

func (p *progress) CheckFinished(index, total int, res audit.Result, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] RUN %s -> %s (%.2fs)\n", index+1, total, res.Name, res.Status, elapsed.Seconds())
}

func writeSummary(w io.Writer, run report.Run) {
	counts := audit.Counts(run.Results)
	fmt.Fprintf(w, "Summary: PASS=%d WARN=%d FAIL=%d ERROR=%d SKIP=%d -> overall %s (exit %d)\n",
		counts[audit.StatusPass],
		counts[audit.StatusWarn],
		counts[audit.StatusFail],
		counts[audit.StatusError],
		counts[audit.StatusSkip],
		run.Overall,
		run.ExitCode,
	)
	for _, loc := range run.Locations {
		fmt.Fprintf(w, "Report saved: %s\n", loc)
	}
}
