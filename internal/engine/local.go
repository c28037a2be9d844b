package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/languages"
	"github.com/noah-isme/gema-exec/internal/observability"
	"github.com/noah-isme/gema-exec/internal/ratelimit"
	"github.com/noah-isme/gema-exec/internal/tier"
	"github.com/noah-isme/gema-exec/pkg/sandbox"
)

// asyncResultTTL is how long an async outcome stays retrievable by default.
const asyncResultTTL = 10 * time.Minute

// LocalConfig groups local provider knobs.
type LocalConfig struct {
	WorkspaceRoot   string
	TestConcurrency int
	AsyncResultTTL  time.Duration
	Logger          zerolog.Logger
}

// Local is the sandbox-backed execution provider.
type Local struct {
	executor *sandbox.Executor
	harness  *grading.Harness
	limiter  *ratelimit.Limiter
	validate *validator.Validate
	logger   zerolog.Logger
	cfg      LocalConfig
	async    *xsync.MapOf[string, execution.Outcome]
	inFlight atomic.Int64
}

// NewLocal constructs the local provider.
func NewLocal(executor *sandbox.Executor, limiter *ratelimit.Limiter, validate *validator.Validate, cfg LocalConfig) *Local {
	if cfg.AsyncResultTTL <= 0 {
		cfg.AsyncResultTTL = asyncResultTTL
	}
	p := &Local{
		executor: executor,
		limiter:  limiter,
		validate: validate,
		logger:   cfg.Logger.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		async:    xsync.NewMapOf[string, execution.Outcome](),
	}
	p.harness = grading.NewHarness(p, cfg.TestConcurrency, cfg.Logger)
	return p
}

// SupportedLanguages lists the identifiers the engine can run.
func (p *Local) SupportedLanguages() []string {
	return languages.IDs()
}

// IsLanguageSupported reports whether the identifier is runnable.
func (p *Local) IsLanguageSupported(id string) bool {
	return languages.Supported(id)
}

// Execute runs one request synchronously. All failure modes resolve to an
// outcome; the returned value is never mutated afterwards.
func (p *Local) Execute(ctx context.Context, req execution.Request) execution.Outcome {
	createdAt := time.Now().UTC()

	lang, profile, reject := p.admit(req)
	if reject != nil {
		observability.Executions().WithLabelValues(req.Language, string(reject.Status)).Inc()
		return *reject
	}

	p.inFlight.Add(1)
	observability.ExecutionsInFlight().Inc()
	defer func() {
		p.inFlight.Add(-1)
		observability.ExecutionsInFlight().Dec()
	}()

	res := p.executor.Run(ctx, sandbox.Request{
		Spec:      specFor(lang),
		Source:    req.Source,
		Stdin:     req.Stdin,
		Args:      req.Args,
		CPULimit:  boundedCPU(req, profile),
		WallLimit: req.WallLimit,
		MemoryMB:  boundedMemory(req, profile),
	})

	out := execution.NewOutcome(res, createdAt)
	observability.Executions().WithLabelValues(lang.ID, string(out.Status)).Inc()
	return out
}

// ExecuteAsync starts the run in the background. The outcome is retrievable
// through Result for a bounded time under the returned ticket id. The run
// counts against userID's quota only once it resolves to something other
// than an internal error.
func (p *Local) ExecuteAsync(ctx context.Context, userID string, req execution.Request) Ticket {
	id := uuid.NewString()

	go func() {
		// The caller's context ends with its request; the run continues.
		bg := context.WithoutCancel(ctx)
		out := p.Execute(bg, req)
		p.async.Store(id, out)
		time.AfterFunc(p.cfg.AsyncResultTTL, func() { p.async.Delete(id) })

		if userID != "" && out.Status != execution.StatusInternalError {
			if err := p.TrackExecution(bg, userID); err != nil {
				p.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record async usage")
			}
		}
	}()

	return Ticket{ID: id, Status: execution.StatusQueued}
}

// Result returns the stored outcome for a ticket, or nil when it is not
// retrievable (unknown id, still running, or expired).
func (p *Local) Result(id string) *execution.Outcome {
	out, ok := p.async.Load(id)
	if !ok {
		return nil
	}
	return &out
}

// ExecuteWithTests grades a submission against its test cases.
func (p *Local) ExecuteWithTests(ctx context.Context, req execution.Request, tests []grading.TestCase) (grading.BatchResult, error) {
	start := time.Now()
	batch, err := p.harness.Run(ctx, req, tests)
	if err != nil {
		return grading.BatchResult{}, err
	}
	observability.GradingDuration().WithLabelValues(strings.ToLower(req.Language)).Observe(time.Since(start).Seconds())
	return batch, nil
}

// QueueStatus reports current backend load.
func (p *Local) QueueStatus() QueueStatus {
	return QueueStatus{
		InFlight:    p.inFlight.Load(),
		Concurrency: p.cfg.TestConcurrency,
	}
}

// LimitsForTier returns the resource envelope for a tier.
func (p *Local) LimitsForTier(t tier.Tier) tier.Profile {
	return tier.Lookup(t)
}

// CheckRateLimit applies sliding-window admission control.
func (p *Local) CheckRateLimit(ctx context.Context, userID string, t tier.Tier) (ratelimit.Decision, error) {
	decision, err := p.limiter.Check(ctx, userID, tier.Lookup(t))
	if err != nil {
		return ratelimit.Decision{}, err
	}
	if !decision.Allowed {
		window := "hourly"
		if strings.Contains(decision.Reason, "Daily") {
			window = "daily"
		}
		observability.RateLimitDenials().WithLabelValues(window).Inc()
	}
	return decision, nil
}

// TrackExecution records one usage event against the user's windows.
func (p *Local) TrackExecution(ctx context.Context, userID string) error {
	return p.limiter.Track(ctx, userID)
}

// HealthCheck verifies the engine can stage workspaces.
func (p *Local) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(p.cfg.WorkspaceRoot, ".healthcheck-"+uuid.NewString())
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("workspace root not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		p.logger.Warn().Err(err).Msg("failed to remove health probe")
	}
	return nil
}

// admit validates the request against the caller's tier before any process is
// spawned. A non-nil outcome is the rejection.
func (p *Local) admit(req execution.Request) (languages.Language, tier.Profile, *execution.Outcome) {
	profile := tier.Lookup(req.Tier)

	if err := p.validate.Struct(req); err != nil {
		out := execution.InternalOutcome(fmt.Sprintf("invalid request: %v", err))
		return languages.Language{}, profile, &out
	}

	lang, ok := languages.Lookup(req.Language)
	if !ok {
		out := execution.InternalOutcome(fmt.Sprintf("unsupported language %q", req.Language))
		return languages.Language{}, profile, &out
	}

	if len(req.Source) > profile.MaxSourceKB<<10 {
		out := execution.InternalOutcome(fmt.Sprintf(
			"source size %d bytes exceeds the %s tier limit of %d KB",
			len(req.Source), profile.Tier, profile.MaxSourceKB))
		return languages.Language{}, profile, &out
	}

	if len(req.Stdin) > profile.MaxStdinKB<<10 {
		out := execution.InternalOutcome(fmt.Sprintf(
			"stdin size %d bytes exceeds the %s tier limit of %d KB",
			len(req.Stdin), profile.Tier, profile.MaxStdinKB))
		return languages.Language{}, profile, &out
	}

	return lang, profile, nil
}

// boundedCPU resolves the CPU budget: the tier limit by default, overrides
// clamped to it.
func boundedCPU(req execution.Request, profile tier.Profile) time.Duration {
	limit := time.Duration(profile.MaxCPUSeconds) * time.Second
	if req.CPULimit <= 0 || req.CPULimit > limit {
		return limit
	}
	return req.CPULimit
}

func boundedMemory(req execution.Request, profile tier.Profile) int64 {
	limit := int64(profile.MaxMemoryMB)
	if req.MemoryMB <= 0 || req.MemoryMB > limit {
		return limit
	}
	return req.MemoryMB
}

func specFor(lang languages.Language) sandbox.Spec {
	return sandbox.Spec{
		LanguageID:   lang.ID,
		FileName:     lang.FileName,
		Image:        lang.Image,
		Compiled:     lang.Compiled,
		CompileArgv:  lang.CompileArgv,
		CompiledFile: lang.CompiledFile,
		RunArgv:      lang.RunArgv,
	}
}
