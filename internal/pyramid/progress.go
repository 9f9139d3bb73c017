package pyramid

import (
	"fmt"
	"os"
	"sync/atomic"
)

// progress reports "Progress: i/n" per slice and "Done." at completion,
// the line-based protocol spec.md §7 requires external status wrappers to
// be able to parse, grounded on the shape of the teacher's progressBar
// (internal/tile/progress.go) but stripped down to the plain-text contract
// instead of a terminal bar (spec.md §9 calls the bar itself "global mutable
// state in the status wrapper", excluded from the core).
type progress struct {
	total     int
	processed atomic.Int64
	quiet     bool
}

func newProgress(total int, quiet bool) *progress {
	return &progress{total: total, quiet: quiet}
}

// Increment reports one more slice done. Safe for concurrent use.
func (p *progress) Increment() {
	n := p.processed.Add(1)
	if p.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, "\rProgress: %d/%d", n, p.total)
}

// Done prints the final newline and "Done." marker.
func (p *progress) Done() {
	if p.quiet {
		return
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Done.")
}
