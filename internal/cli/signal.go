package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// withInterruptContext derives a context that cancels on SIGINT/SIGTERM, the
// same way the teacher's runBuild/runVerify/runPlan each wrap cmd.Context()
// before doing any network or solver work.
func withInterruptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
