package grading

import "github.com/noah-isme/gema-exec/internal/execution"

// Classify reduces a batch to the submission's terminal status. Failure
// statuses are ranked by how actionable the diagnosis is for the learner: a
// submission that both times out and prints wrong output is reported as
// time_limit_exceeded, not wrong_answer.
func Classify(batch BatchResult) execution.Status {
	if batch.TestsPassed == len(batch.Results) && len(batch.Results) > 0 {
		return execution.StatusAccepted
	}

	priority := []execution.Status{
		execution.StatusCompilationError,
		execution.StatusRuntimeError,
		execution.StatusTimeLimitExceeded,
		execution.StatusMemoryLimitExceeded,
	}
	for _, status := range priority {
		for _, r := range batch.Results {
			if r.Outcome.Status == status {
				return status
			}
		}
	}
	return execution.StatusWrongAnswer
}
