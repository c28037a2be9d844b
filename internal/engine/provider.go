// Package engine exposes the execution provider contract and its local,
// sandbox-backed implementation.
package engine

import (
	"context"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/ratelimit"
	"github.com/noah-isme/gema-exec/internal/tier"
)

// Ticket acknowledges an asynchronous execution request.
type Ticket struct {
	ID     string           `json:"id"`
	Status execution.Status `json:"status"`
}

// QueueStatus is an informational snapshot of backend load. It is not an
// ordering promise: grading is request-driven, not queue-scheduled.
type QueueStatus struct {
	InFlight    int64 `json:"in_flight"`
	Concurrency int   `json:"concurrency"`
}

// Provider abstracts "run this snippet" over execution backends. The local
// sandbox implementation lives in this package; a remote judge client is a
// valid alternative behind the same contract.
type Provider interface {
	SupportedLanguages() []string
	IsLanguageSupported(id string) bool

	// Execute runs a single request synchronously.
	Execute(ctx context.Context, req execution.Request) execution.Outcome

	// ExecuteAsync starts a run and returns immediately. Usage is recorded
	// against userID once the outcome is known, so rejected runs never
	// consume quota. Result returns nil when the outcome is not
	// retrievable, which callers must not read as "the execution never
	// existed".
	ExecuteAsync(ctx context.Context, userID string, req execution.Request) Ticket
	Result(id string) *execution.Outcome

	// ExecuteWithTests grades a submission against a test-case set.
	ExecuteWithTests(ctx context.Context, req execution.Request, tests []grading.TestCase) (grading.BatchResult, error)

	QueueStatus() QueueStatus
	LimitsForTier(t tier.Tier) tier.Profile
	CheckRateLimit(ctx context.Context, userID string, t tier.Tier) (ratelimit.Decision, error)
	TrackExecution(ctx context.Context, userID string) error
	HealthCheck(ctx context.Context) error
}
