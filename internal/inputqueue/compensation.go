package inputqueue

import (
	"context"
	"time"
)

// CompensationInterval is the poll period for the compensation loop
// (spec §5: "compensation sleep (≈100 ms poll for pending-input
// compensation)").
const CompensationInterval = 100 * time.Millisecond

// IsFinished reports whether the owning Agent Runner thread is
// currently in the Finished state. The compensation loop only drains
// the queue while this holds, since a busy runner will consume the
// queue itself at its next Reason entry.
type IsFinished func() bool

// Drain is invoked with the items popped from the queue; it is
// expected to start a new run that materializes them as User messages.
type Drain func(items []string)

// RunCompensationLoop polls the queue at CompensationInterval and calls
// drain with any pending items whenever isFinished reports true,
// preventing dead letters when input arrives between runs (spec §4.2).
// It blocks until ctx is canceled.
func RunCompensationLoop(ctx context.Context, q *Queue, isFinished IsFinished, drain Drain) {
	ticker := time.NewTicker(CompensationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !isFinished() {
				continue
			}
			if items := q.PopAll(); len(items) > 0 {
				drain(items)
			}
		}
	}
}
