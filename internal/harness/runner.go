package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// ErrAborted is returned when the fail-fast threshold of consecutive
// failures is reached and the remaining tests are skipped.
var ErrAborted = errors.New("run aborted by fail-fast")

// ErrTestsFailed is returned when at least one test failed.
var ErrTestsFailed = errors.New("one or more tests failed")

// EnvFactory builds a fresh Env for one suite. The returned cleanup is
// always invoked, also on factory-built envs of aborted suites.
type EnvFactory func(ctx context.Context) (*Env, func(), error)

// RunnerOptions configures one run.
type RunnerOptions struct {
	// SuiteFilter, when non-empty, restricts the run to the named suite.
	SuiteFilter string

	// FailFast aborts the run after this many consecutive failures.
	// Zero disables the abort.
	FailFast int

	// Sequential runs all suites one after another sharing a single Env.
	// When false, suites run concurrently, each with its own Env.
	Sequential bool
}

// TestResult records the outcome of one test.
type TestResult struct {
	Suite    string
	Name     string
	Err      error
	Duration time.Duration
	Skipped  bool
}

// Summary aggregates the results of a run.
type Summary struct {
	mu      sync.Mutex
	Results []TestResult
}

func (s *Summary) record(r TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
}

func (s *Summary) counts() (passed, failed, skipped int) {
	for _, r := range s.Results {
		switch {
		case r.Skipped:
			skipped++
		case r.Err != nil:
			failed++
		default:
			passed++
		}
	}
	return passed, failed, skipped
}

// Failed reports whether any test failed.
func (s *Summary) Failed() bool {
	_, failed, _ := s.counts()
	return failed > 0
}

// Format renders a human-readable result table.
func (s *Summary) Format() string {
	var sb strings.Builder
	for _, r := range s.Results {
		status := "PASS"
		switch {
		case r.Skipped:
			status = "SKIP"
		case r.Err != nil:
			status = "FAIL"
		}
		fmt.Fprintf(&sb, "%-4s %s/%s (%s)\n", status, r.Suite, r.Name, r.Duration.Round(time.Millisecond))
		if r.Err != nil {
			fmt.Fprintf(&sb, "     %v\n", r.Err)
		}
	}
	passed, failed, skipped := s.counts()
	fmt.Fprintf(&sb, "%d passed, %d failed, %d skipped\n", passed, failed, skipped)
	return sb.String()
}

// Runner executes suites and records results.
type Runner struct {
	log     logr.Logger
	factory EnvFactory
	opts    RunnerOptions

	mu          sync.Mutex
	consecutive int
	aborted     bool
}

func NewRunner(log logr.Logger, factory EnvFactory, opts RunnerOptions) *Runner {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Runner{log: log, factory: factory, opts: opts}
}

// Run executes the given suites. It returns ErrTestsFailed when any test
// failed, wrapped with ErrAborted when fail-fast tripped.
func (r *Runner) Run(ctx context.Context, suites []Suite) (*Summary, error) {
	selected := make([]Suite, 0, len(suites))
	for _, s := range suites {
		if r.opts.SuiteFilter != "" && s.Name != r.opts.SuiteFilter {
			continue
		}
		selected = append(selected, s)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no suite matches %q", r.opts.SuiteFilter)
	}

	summary := &Summary{}

	if r.opts.Sequential {
		env, cleanup, envErr := r.factory(ctx)
		if envErr != nil {
			return nil, fmt.Errorf("failed to build test environment: %w", envErr)
		}
		defer cleanup()

		for _, suite := range selected {
			r.runSuite(ctx, suite, env, summary)
		}
	} else {
		var wg sync.WaitGroup
		for _, suite := range selected {
			wg.Add(1)
			go func(suite Suite) {
				defer wg.Done()

				env, cleanup, envErr := r.factory(ctx)
				if envErr != nil {
					for _, test := range suite.Tests {
						summary.record(TestResult{
							Suite: suite.Name,
							Name:  test.Name,
							Err:   fmt.Errorf("failed to build test environment: %w", envErr),
						})
					}
					return
				}
				defer cleanup()

				r.runSuite(ctx, suite, env, summary)
			}(suite)
		}
		wg.Wait()
	}

	r.mu.Lock()
	aborted := r.aborted
	r.mu.Unlock()

	switch {
	case aborted:
		return summary, fmt.Errorf("%w: %w", ErrTestsFailed, ErrAborted)
	case summary.Failed():
		return summary, ErrTestsFailed
	default:
		return summary, nil
	}
}

func (r *Runner) runSuite(ctx context.Context, suite Suite, env *Env, summary *Summary) {
	log := r.log.WithValues("suite", suite.Name)
	log.Info("Running suite", "tests", len(suite.Tests))

	for _, test := range suite.Tests {
		if r.shouldSkip() || ctx.Err() != nil {
			summary.record(TestResult{Suite: suite.Name, Name: test.Name, Skipped: true})
			continue
		}

		start := time.Now()
		runErr := r.runTest(ctx, test, env)
		duration := time.Since(start)

		summary.record(TestResult{Suite: suite.Name, Name: test.Name, Err: runErr, Duration: duration})

		if runErr != nil {
			log.Error(runErr, "Test failed", "test", test.Name, "duration", duration.String())
			r.recordFailure()
		} else {
			log.Info("Test passed", "test", test.Name, "duration", duration.String())
			r.recordSuccess()
		}
	}
}

// runTest invokes one test, converting a panic into a failure so a broken
// test cannot take down the whole run.
func (r *Runner) runTest(ctx context.Context, test Test, env *Env) (runErr error) {
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("test panicked: %v", p)
		}
	}()
	return test.Run(ctx, env)
}

func (r *Runner) shouldSkip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func (r *Runner) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive++
	if r.opts.FailFast > 0 && r.consecutive >= r.opts.FailFast && !r.aborted {
		r.aborted = true
		r.log.Info("Fail-fast threshold reached, skipping remaining tests", "consecutiveFailures", r.consecutive)
	}
}

func (r *Runner) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive = 0
}
