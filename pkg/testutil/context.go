package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// PVHARNESS_TEST_TIMEOUT overrides the per-test context timeout with a Go
// duration string (e.g. "90s"), for slow machines and debugging sessions.
const testTimeoutEnv = "PVHARNESS_TEST_TIMEOUT"

// GetTestContext returns a context for one test, bounded by the tighter of
// the given timeout and the test binary's own deadline. A zero timeout means
// no bound beyond the test deadline.
func GetTestContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	if override, found := os.LookupEnv(testTimeoutEnv); found && override != "" {
		parsed, parseErr := time.ParseDuration(override)
		if parseErr != nil {
			panic(fmt.Sprintf("invalid %s value %q: %v", testTimeoutEnv, override, parseErr))
		}
		timeout = parsed
	}

	deadline, haveDeadline := t.Deadline()
	if timeout > 0 {
		limit := time.Now().Add(timeout)
		if !haveDeadline || limit.Before(deadline) {
			deadline = limit
			haveDeadline = true
		}
	}

	if !haveDeadline {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), deadline)
}
