package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubRunner records commands and plays back canned process results.
type stubRunner struct {
	results  []ProcessResult
	errs     []error
	commands []Command
	stdout   string
	stderr   string
}

func (s *stubRunner) Run(ctx context.Context, c Command) (ProcessResult, error) {
	idx := len(s.commands)
	s.commands = append(s.commands, c)
	if s.stdout != "" && c.Stdout != nil {
		_, _ = c.Stdout.Write([]byte(s.stdout))
	}
	if s.stderr != "" && c.Stderr != nil {
		_, _ = c.Stderr.Write([]byte(s.stderr))
	}
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	var res ProcessResult
	if idx < len(s.results) {
		res = s.results[idx]
	}
	return res, err
}

func pythonSpec() Spec {
	return Spec{
		LanguageID: "python",
		FileName:   "main.py",
		RunArgv:    []string{"python3", "main.py"},
	}
}

func cppSpec() Spec {
	return Spec{
		LanguageID:   "cpp",
		FileName:     "main.cpp",
		Compiled:     true,
		CompileArgv:  []string{"g++", "-o", "main", "main.cpp"},
		CompiledFile: "main",
		RunArgv:      []string{"./main"},
	}
}

func newTestExecutor(t *testing.T, runner Runner) *Executor {
	t.Helper()
	return New(runner, Config{
		WorkspaceRoot: t.TempDir(),
		Logger:        zerolog.Nop(),
	})
}

func TestClassifyIsPure(t *testing.T) {
	cases := []struct {
		name string
		proc ProcessResult
		want Verdict
	}{
		{"clean exit", ProcessResult{ExitCode: 0}, VerdictOK},
		{"nonzero exit", ProcessResult{ExitCode: 3}, VerdictRuntimeError},
		{"timeout wins over exit code", ProcessResult{ExitCode: -1, TimedOut: true}, VerdictTimeLimit},
		{"oom", ProcessResult{ExitCode: 137, OOMKilled: true}, VerdictMemoryLimit},
		{"timeout wins over oom", ProcessResult{TimedOut: true, OOMKilled: true}, VerdictTimeLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classify(tc.proc))
			// Same inputs, same verdict.
			require.Equal(t, classify(tc.proc), classify(tc.proc))
		})
	}
}

func TestRunUnsupportedLanguageSpawnsNothing(t *testing.T) {
	runner := &stubRunner{}
	root := t.TempDir()
	exec := New(runner, Config{WorkspaceRoot: root, Logger: zerolog.Nop()})

	res := exec.Run(context.Background(), Request{
		Spec:   Spec{LanguageID: "cobol"},
		Source: "DISPLAY 'HI'.",
	})

	require.Equal(t, VerdictInternal, res.Verdict)
	require.Contains(t, res.Message, "unsupported language")
	require.Empty(t, runner.commands)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "no workspace may be created for a rejected request")
}

func TestRunRemovesWorkspaceOnEveryPath(t *testing.T) {
	cases := []struct {
		name   string
		runner *stubRunner
	}{
		{"success", &stubRunner{results: []ProcessResult{{ExitCode: 0}}}},
		{"runtime error", &stubRunner{results: []ProcessResult{{ExitCode: 1}}}},
		{"timeout", &stubRunner{results: []ProcessResult{{TimedOut: true}}}},
		{"runner failure", &stubRunner{errs: []error{os.ErrPermission}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			exec := New(tc.runner, Config{WorkspaceRoot: root, Logger: zerolog.Nop()})

			exec.Run(context.Background(), Request{
				Spec:     pythonSpec(),
				Source:   "print(1)",
				CPULimit: time.Second,
			})

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			require.Empty(t, entries, "workspace must be released")
		})
	}
}

func TestRunWritesSourceIntoWorkspace(t *testing.T) {
	runner := &stubRunner{results: []ProcessResult{{ExitCode: 0}}}
	exec := newTestExecutor(t, runner)

	exec.Run(context.Background(), Request{
		Spec:     pythonSpec(),
		Source:   "print('hi')",
		CPULimit: time.Second,
	})

	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	require.Equal(t, []string{"python3", "main.py"}, cmd.Argv)
	require.Equal(t, "main.py", filepath.Base(filepath.Join(cmd.Dir, "main.py")))
}

func TestRunCompileErrorStopsPipeline(t *testing.T) {
	runner := &stubRunner{
		results: []ProcessResult{{ExitCode: 1}},
		stderr:  "main.cpp:1: error: expected ';'",
	}
	exec := newTestExecutor(t, runner)

	res := exec.Run(context.Background(), Request{
		Spec:     cppSpec(),
		Source:   "int main() { return 0 }",
		CPULimit: time.Second,
	})

	require.Equal(t, VerdictCompileError, res.Verdict)
	require.Contains(t, res.CompileOutput, "expected ';'")
	require.Len(t, runner.commands, 1, "run step must not execute after a compile failure")
}

func TestRunCompiledLanguageRunsTwice(t *testing.T) {
	runner := &stubRunner{results: []ProcessResult{{ExitCode: 0}, {ExitCode: 0}}}
	exec := newTestExecutor(t, runner)

	res := exec.Run(context.Background(), Request{
		Spec:     cppSpec(),
		Source:   "int main() { return 0; }",
		CPULimit: time.Second,
	})

	require.Equal(t, VerdictOK, res.Verdict)
	require.Len(t, runner.commands, 2)
	require.Equal(t, []string{"g++", "-o", "main", "main.cpp"}, runner.commands[0].Argv)
	require.Equal(t, []string{"./main"}, runner.commands[1].Argv)
}

func TestRunStdinWiredThrough(t *testing.T) {
	runner := &stubRunner{results: []ProcessResult{{ExitCode: 0}}}
	exec := newTestExecutor(t, runner)

	exec.Run(context.Background(), Request{
		Spec:     pythonSpec(),
		Source:   "print(input())",
		Stdin:    "2 3",
		CPULimit: time.Second,
	})

	require.NotNil(t, runner.commands[0].Stdin)
}

func TestRunEmptyStdinStaysNil(t *testing.T) {
	runner := &stubRunner{results: []ProcessResult{{ExitCode: 0}}}
	exec := newTestExecutor(t, runner)

	exec.Run(context.Background(), Request{
		Spec:     pythonSpec(),
		Source:   "print(1)",
		CPULimit: time.Second,
	})

	require.Nil(t, runner.commands[0].Stdin, "absent stdin must read as immediate EOF, not block")
}

func TestWallBudget(t *testing.T) {
	require.Equal(t, 4*time.Second, wallBudget(Request{CPULimit: 2 * time.Second}))
	require.Equal(t, 10*time.Second, wallBudget(Request{CPULimit: 2 * time.Second, WallLimit: 10 * time.Second}))
	require.Equal(t, 6*time.Second, wallBudget(Request{CPULimit: 3 * time.Second, WallLimit: time.Second}))
	require.Equal(t, 5*time.Second, wallBudget(Request{}))
}

func TestRunnerFailureIsInternal(t *testing.T) {
	runner := &stubRunner{errs: []error{os.ErrPermission}}
	exec := newTestExecutor(t, runner)

	res := exec.Run(context.Background(), Request{
		Spec:     pythonSpec(),
		Source:   "print(1)",
		CPULimit: time.Second,
	})

	require.Equal(t, VerdictInternal, res.Verdict)
	require.Contains(t, res.Message, "run process")
}
