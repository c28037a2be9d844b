package execution

// Status enumerates the lifecycle states of an execution or submission.
type Status string

const (
	StatusQueued              Status = "queued"
	StatusProcessing          Status = "processing"
	StatusAccepted            Status = "accepted"
	StatusWrongAnswer         Status = "wrong_answer"
	StatusTimeLimitExceeded   Status = "time_limit_exceeded"
	StatusMemoryLimitExceeded Status = "memory_limit_exceeded"
	StatusCompilationError    Status = "compilation_error"
	StatusRuntimeError        Status = "runtime_error"
	StatusInternalError       Status = "internal_error"
)

// Terminal reports whether the status is final. Terminal statuses never change.
func (s Status) Terminal() bool {
	switch s {
	case StatusQueued, StatusProcessing:
		return false
	default:
		return true
	}
}
