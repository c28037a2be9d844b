package grading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-exec/internal/execution"
)

// Runner executes one submission run. The engine's provider implements it;
// tests substitute stubs.
type Runner interface {
	Execute(ctx context.Context, req execution.Request) execution.Outcome
}

// defaultConcurrency bounds simultaneous executions per submission so one
// learner cannot saturate the executor with a large test set.
const defaultConcurrency = 3

// Harness grades a submission against a test-case set.
type Harness struct {
	runner      Runner
	concurrency int
	logger      zerolog.Logger
}

// NewHarness constructs a grading harness. Concurrency outside 1..8 falls back
// to the default.
func NewHarness(runner Runner, concurrency int, logger zerolog.Logger) *Harness {
	if concurrency < 1 || concurrency > 8 {
		concurrency = defaultConcurrency
	}
	return &Harness{
		runner:      runner,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "grading_harness").Logger(),
	}
}

// Run executes every test case with bounded concurrency and aggregates the
// results. It either grades the whole set or fails: an internal_error on any
// case aborts the batch so a partially graded submission is never reported.
func (h *Harness) Run(ctx context.Context, req execution.Request, tests []TestCase) (BatchResult, error) {
	if len(tests) == 0 {
		return BatchResult{}, fmt.Errorf("no test cases")
	}

	results := make([]TestResult, len(tests))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, tc := range tests {
		g.Go(func() error {
			runReq := req
			runReq.Stdin = tc.Input
			if tc.CPULimit > 0 {
				runReq.CPULimit = tc.CPULimit
			}
			if tc.MemoryMB > 0 {
				runReq.MemoryMB = tc.MemoryMB
			}

			out := h.runner.Execute(ctx, runReq)
			if out.Status == execution.StatusInternalError {
				return fmt.Errorf("test case %s: %s", tc.ID, out.Message)
			}

			results[i] = gradeCase(tc, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	batch := aggregate(tests, results)
	h.logger.Debug().
		Int("tests", len(tests)).
		Int("passed", batch.TestsPassed).
		Int("earned", batch.EarnedPoints).
		Msg("graded submission")
	return batch, nil
}

// gradeCase decides pass/fail for one case. A run that timed out or crashed
// cannot pass on an empty-output coincidence: passing requires the accepted
// status as well as matching output.
func gradeCase(tc TestCase, out execution.Outcome) TestResult {
	passed := out.Status == execution.StatusAccepted &&
		strings.TrimSpace(out.Stdout) == strings.TrimSpace(tc.Expected)

	earned := 0
	if passed {
		earned = tc.PointValue()
	}

	return TestResult{
		TestID:   tc.ID,
		Name:     tc.Name,
		Hidden:   tc.Hidden,
		Passed:   passed,
		Points:   earned,
		Input:    tc.Input,
		Expected: tc.Expected,
		Outcome:  out,
	}
}

func aggregate(tests []TestCase, results []TestResult) BatchResult {
	batch := BatchResult{Results: results}

	var totalWall time.Duration
	for _, r := range results {
		if r.Passed {
			batch.TestsPassed++
		}
		batch.EarnedPoints += r.Points
		totalWall += r.Outcome.WallTime
		if r.Outcome.MemoryBytes > batch.MaxMemoryBytes {
			batch.MaxMemoryBytes = r.Outcome.MemoryBytes
		}
	}
	for _, tc := range tests {
		batch.PossiblePoints += tc.PointValue()
	}
	batch.AvgWallTime = totalWall / time.Duration(len(results))
	return batch
}
