// Package sandbox runs untrusted source code as bounded child processes.
//
// Every execution gets a private workspace directory, a stripped environment,
// a wall-clock budget enforced by forcible kill, and read-time caps on the
// captured output streams. The actual launch primitive is pluggable: a bare
// host process or a Docker container, both behind the Runner contract.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Verdict classifies how a sandboxed run ended. The mapping from process
// outcome to verdict is a pure function of exit code, timeout and OOM state.
type Verdict string

const (
	VerdictOK           Verdict = "ok"
	VerdictCompileError Verdict = "compile_error"
	VerdictTimeLimit    Verdict = "time_limit"
	VerdictMemoryLimit  Verdict = "memory_limit"
	VerdictRuntimeError Verdict = "runtime_error"
	VerdictInternal     Verdict = "internal"
)

// wallClockFactor converts a CPU budget into a wall-clock budget. Two
// CPU-times of wall clock absorbs interpreter startup and scheduler delay
// without letting a sleeping process hold an execution slot for long.
const wallClockFactor = 2

// defaultCompileTimeout bounds the compiler independently of the run budget.
const defaultCompileTimeout = 10 * time.Second

const (
	defaultStdoutLimit  = 100 << 10
	defaultStderrLimit  = 10 << 10
	defaultCompileLimit = 10 << 10
)

// Spec carries the resolved per-language commands for one execution.
type Spec struct {
	LanguageID   string
	FileName     string
	Image        string
	Compiled     bool
	CompileArgv  []string
	CompiledFile string
	RunArgv      []string
}

// Request describes one sandboxed execution.
type Request struct {
	Spec     Spec
	Source   string
	Stdin    string
	Args     []string
	CPULimit time.Duration
	// WallLimit, when set, overrides the derived wall budget if larger.
	WallLimit time.Duration
	MemoryMB  int64
}

// Result is the outcome of one sandboxed execution. Run never fails past its
// boundary; every failure mode resolves to a Result with a verdict.
type Result struct {
	Verdict         Verdict
	Stdout          string
	Stderr          string
	CompileOutput   string
	StdoutTruncated bool
	StderrTruncated bool
	ExitCode        int
	Duration        time.Duration
	MaxMemoryBytes  int64
	Message         string
}

// Config groups executor tunables.
type Config struct {
	WorkspaceRoot  string
	CompileTimeout time.Duration
	StdoutLimit    int
	StderrLimit    int
	Logger         zerolog.Logger
}

// Executor is the sandboxed execution primitive.
type Executor struct {
	runner Runner
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// New constructs an executor on top of a runner.
func New(runner Runner, cfg Config) *Executor {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = defaultCompileTimeout
	}
	if cfg.StdoutLimit <= 0 {
		cfg.StdoutLimit = defaultStdoutLimit
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = defaultStderrLimit
	}

	return &Executor{
		runner: runner,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-exec/pkg/sandbox"),
		logger: cfg.Logger.With().Str("component", "sandbox").Logger(),
	}
}

// Run executes the request and classifies the outcome. It never returns an
// error: infrastructure failures surface as VerdictInternal with a message.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	ctx, span := e.tracer.Start(ctx, "sandbox.run", trace.WithAttributes(
		attribute.String("sandbox.language", req.Spec.LanguageID),
	))
	defer span.End()

	if len(req.Spec.RunArgv) == 0 {
		return Result{
			Verdict: VerdictInternal,
			Message: fmt.Sprintf("unsupported language %q", req.Spec.LanguageID),
		}
	}

	workspace, err := e.acquireWorkspace()
	if err != nil {
		runFailures.WithLabelValues(req.Spec.LanguageID).Inc()
		return Result{Verdict: VerdictInternal, Message: fmt.Sprintf("create workspace: %v", err)}
	}
	defer e.releaseWorkspace(workspace)

	srcPath := filepath.Join(workspace, req.Spec.FileName)
	if err := os.WriteFile(srcPath, []byte(req.Source), 0o600); err != nil {
		runFailures.WithLabelValues(req.Spec.LanguageID).Inc()
		return Result{Verdict: VerdictInternal, Message: fmt.Sprintf("write source: %v", err)}
	}

	if req.Spec.Compiled {
		if res, failed := e.compile(ctx, workspace, req); failed {
			return res
		}
	}

	return e.execute(ctx, workspace, req)
}

// compile runs the compiler under its own fixed timeout. The second return
// value is true when the pipeline must stop here.
func (e *Executor) compile(ctx context.Context, workspace string, req Request) (Result, bool) {
	out := newCappedWriter(defaultCompileLimit)

	proc, err := e.runner.Run(ctx, Command{
		Argv:       req.Spec.CompileArgv,
		Dir:        workspace,
		Stdout:     out,
		Stderr:     out,
		WallBudget: e.cfg.CompileTimeout,
		MemoryMB:   req.MemoryMB,
		Image:      req.Spec.Image,
	})
	if err != nil {
		runFailures.WithLabelValues(req.Spec.LanguageID).Inc()
		return Result{Verdict: VerdictInternal, Message: fmt.Sprintf("run compiler: %v", err)}, true
	}

	if proc.TimedOut || proc.ExitCode != 0 {
		compileFailures.WithLabelValues(req.Spec.LanguageID).Inc()
		msg := out.String()
		if proc.TimedOut {
			msg = strings.TrimSpace(msg + "\ncompiler killed after " + e.cfg.CompileTimeout.String())
		}
		return Result{
			Verdict:       VerdictCompileError,
			CompileOutput: msg,
			ExitCode:      proc.ExitCode,
			Duration:      proc.Duration,
		}, true
	}

	return Result{}, false
}

func (e *Executor) execute(ctx context.Context, workspace string, req Request) Result {
	stdout := newCappedWriter(e.cfg.StdoutLimit)
	stderr := newCappedWriter(e.cfg.StderrLimit)

	// An absent stdin stays nil so the child sees EOF immediately instead of
	// blocking on a read.
	var stdin *strings.Reader
	cmd := Command{
		Argv:       append(append([]string{}, req.Spec.RunArgv...), req.Args...),
		Dir:        workspace,
		Stdout:     stdout,
		Stderr:     stderr,
		WallBudget: wallBudget(req),
		MemoryMB:   req.MemoryMB,
		Image:      req.Spec.Image,
	}
	if req.Stdin != "" {
		stdin = strings.NewReader(req.Stdin)
		cmd.Stdin = stdin
	}

	proc, err := e.runner.Run(ctx, cmd)
	if err != nil {
		runFailures.WithLabelValues(req.Spec.LanguageID).Inc()
		return Result{Verdict: VerdictInternal, Message: fmt.Sprintf("run process: %v", err)}
	}

	runDuration.WithLabelValues(req.Spec.LanguageID).Observe(proc.Duration.Seconds())
	if proc.TimedOut {
		runTimeouts.WithLabelValues(req.Spec.LanguageID).Inc()
	}

	return Result{
		Verdict:         classify(proc),
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		ExitCode:        proc.ExitCode,
		Duration:        proc.Duration,
		MaxMemoryBytes:  proc.MaxMemoryBytes,
	}
}

// classify maps a raw process outcome to a verdict. Output correctness is the
// grading harness's concern, not the executor's.
func classify(proc ProcessResult) Verdict {
	switch {
	case proc.TimedOut:
		return VerdictTimeLimit
	case proc.OOMKilled:
		return VerdictMemoryLimit
	case proc.ExitCode != 0:
		return VerdictRuntimeError
	default:
		return VerdictOK
	}
}

// wallBudget derives the wall-clock budget from the requested limits.
func wallBudget(req Request) time.Duration {
	budget := req.CPULimit * wallClockFactor
	if req.WallLimit > budget {
		budget = req.WallLimit
	}
	if budget <= 0 {
		budget = 5 * time.Second
	}
	return budget
}

// acquireWorkspace creates a private, collision-free directory for one run.
func (e *Executor) acquireWorkspace() (string, error) {
	token := make([]byte, 8)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("generate workspace token: %w", err)
	}

	dir := filepath.Join(e.cfg.WorkspaceRoot, "exec-"+hex.EncodeToString(token))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// releaseWorkspace removes the run directory. Failures are logged and ignored:
// cleanup must never mask the execution result.
func (e *Executor) releaseWorkspace(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Error().Err(err).Str("workspace", dir).Msg("failed to remove workspace")
	}
}
