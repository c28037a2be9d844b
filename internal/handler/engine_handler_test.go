package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exec/internal/config"
	"github.com/noah-isme/gema-exec/internal/dto"
	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/handler"
	"github.com/noah-isme/gema-exec/internal/ratelimit"
	"github.com/noah-isme/gema-exec/internal/submission"
	"github.com/noah-isme/gema-exec/internal/tier"
)

type mockProvider struct {
	decision  ratelimit.Decision
	outcome   execution.Outcome
	stored    *execution.Outcome
	batch     grading.BatchResult
	healthErr error
	tracked   int
	asyncUser string
}

func (m *mockProvider) SupportedLanguages() []string       { return []string{"go", "python"} }
func (m *mockProvider) IsLanguageSupported(id string) bool { return id == "go" || id == "python" }

func (m *mockProvider) Execute(_ context.Context, _ execution.Request) execution.Outcome {
	return m.outcome
}

func (m *mockProvider) ExecuteAsync(_ context.Context, userID string, _ execution.Request) engine.Ticket {
	m.asyncUser = userID
	return engine.Ticket{ID: "ticket-1", Status: execution.StatusQueued}
}

func (m *mockProvider) Result(string) *execution.Outcome { return m.stored }

func (m *mockProvider) ExecuteWithTests(_ context.Context, _ execution.Request, _ []grading.TestCase) (grading.BatchResult, error) {
	return m.batch, nil
}

func (m *mockProvider) QueueStatus() engine.QueueStatus {
	return engine.QueueStatus{InFlight: 1, Concurrency: 3}
}

func (m *mockProvider) LimitsForTier(t tier.Tier) tier.Profile { return tier.Lookup(t) }

func (m *mockProvider) CheckRateLimit(_ context.Context, _ string, _ tier.Tier) (ratelimit.Decision, error) {
	return m.decision, nil
}

func (m *mockProvider) TrackExecution(_ context.Context, _ string) error {
	m.tracked++
	return nil
}

func (m *mockProvider) HealthCheck(_ context.Context) error { return m.healthErr }

func newEngineApp(provider engine.Provider) *fiber.App {
	app := fiber.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	group := app.Group("/api/v1")
	handler.NewEngineHandler(provider, validate, zerolog.New(io.Discard)).Register(group)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestEngineHandlerExecuteSuccess(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: true, Remaining: 9},
		outcome:  execution.Outcome{ID: "out-1", Status: execution.StatusAccepted, Stdout: "3\n"},
	}
	app := newEngineApp(provider)

	payload := dto.ExecuteRequest{UserID: "user-1", Source: "print(3)", Language: "python", Tier: "free"}
	resp := postJSON(t, app, "/api/v1/execute", payload, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                `json:"success"`
		Data    dto.ExecuteResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, "accepted", response.Data.Status)
	require.Equal(t, "3\n", response.Data.Stdout)
	require.Equal(t, 1, provider.tracked)
}

func TestEngineHandlerExecuteDenied(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: false, Reason: "Hourly limit of 10 executions reached"},
	}
	app := newEngineApp(provider)

	payload := dto.ExecuteRequest{UserID: "user-1", Source: "x", Language: "python", Tier: "free"}
	resp := postJSON(t, app, "/api/v1/execute", payload, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, 0, provider.tracked)
}

func TestEngineHandlerExecuteInternalErrorKeepsQuota(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: true},
		outcome:  execution.Outcome{Status: execution.StatusInternalError, Message: "runner unavailable"},
	}
	app := newEngineApp(provider)

	payload := dto.ExecuteRequest{UserID: "user-1", Source: "x", Language: "python", Tier: "free"}
	resp := postJSON(t, app, "/api/v1/execute", payload, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 0, provider.tracked)
}

func TestEngineHandlerExecuteValidation(t *testing.T) {
	app := newEngineApp(&mockProvider{})

	resp := postJSON(t, app, "/api/v1/execute", dto.ExecuteRequest{Source: "x"}, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEngineHandlerAsyncDefersQuotaToProvider(t *testing.T) {
	provider := &mockProvider{decision: ratelimit.Decision{Allowed: true}}
	app := newEngineApp(provider)

	payload := dto.ExecuteRequest{UserID: "user-1", Source: "x", Language: "python", Tier: "free"}
	resp := postJSON(t, app, "/api/v1/execute/async", payload, nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// The handler hands the user to the provider and records nothing itself:
	// usage for async runs is counted once the outcome exists.
	require.Equal(t, "user-1", provider.asyncUser)
	require.Equal(t, 0, provider.tracked)
}

func TestEngineHandlerAsyncAndResult(t *testing.T) {
	provider := &mockProvider{decision: ratelimit.Decision{Allowed: true}}
	app := newEngineApp(provider)

	payload := dto.ExecuteRequest{UserID: "user-1", Source: "x", Language: "go", Tier: "pro"}
	resp := postJSON(t, app, "/api/v1/execute/async", payload, nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var response struct {
		Data dto.TicketResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "ticket-1", response.Data.ID)
	require.Equal(t, "queued", response.Data.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/ticket-1", nil)
	missing, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, missing.StatusCode)

	provider.stored = &execution.Outcome{ID: "ticket-1", Status: execution.StatusAccepted}
	found, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/executions/ticket-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, found.StatusCode)
}

func TestEngineHandlerLanguagesAndQueue(t *testing.T) {
	app := newEngineApp(&mockProvider{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var langs struct {
		Data dto.LanguagesResponse `json:"data"`
	}
	decodeResponse(t, resp, &langs)
	require.Contains(t, langs.Data.Languages, "python")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	require.NoError(t, err)

	var queue struct {
		Data dto.QueueResponse `json:"data"`
	}
	decodeResponse(t, resp, &queue)
	require.Equal(t, int64(1), queue.Data.InFlight)
	require.Equal(t, 3, queue.Data.Concurrency)
}

func TestEngineHandlerUsage(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: false, Remaining: 0, Reason: "Hourly limit of 10 executions reached"},
	}
	app := newEngineApp(provider)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/usage/user-1?tier=free", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data dto.RateLimitResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.False(t, response.Data.Allowed)
	require.Zero(t, response.Data.Remaining)
	require.Contains(t, response.Data.Reason, "Hourly limit")

	// Checking usage is free of charge.
	require.Equal(t, 0, provider.tracked)
}

func TestHealthCheckDegraded(t *testing.T) {
	cfg := config.Config{AppName: "engine", AppEnv: "test", RunnerBackend: config.RunnerHost}
	provider := &mockProvider{healthErr: errors.New("workspace root not writable")}

	app := fiber.New()
	app.Get("/healthz", handler.HealthCheck(cfg, provider))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	provider.healthErr = nil
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func newSubmissionApp(provider engine.Provider, store submission.Store) *fiber.App {
	app := fiber.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	svc := submission.NewService(provider, store, logger)
	group := app.Group("/api/v1/submissions")
	handler.NewSubmissionHandler(svc, store, validate, logger).Register(group)
	return app
}

func TestSubmissionHandlerCreateHidesSecretData(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: true},
		batch: grading.BatchResult{
			Results: []grading.TestResult{
				{
					TestID:   "t1",
					Hidden:   true,
					Passed:   true,
					Points:   5,
					Input:    "secret input",
					Expected: "secret output",
					Outcome:  execution.Outcome{Status: execution.StatusAccepted, Stdout: "secret output"},
				},
			},
			TestsPassed:    1,
			EarnedPoints:   5,
			PossiblePoints: 5,
		},
	}
	store := submission.NewMemoryStore()
	app := newSubmissionApp(provider, store)

	payload := dto.SubmissionRequest{
		UserID:     "user-1",
		ExerciseID: "ex-1",
		Language:   "python",
		Source:     "print(1)",
		Tier:       "free",
		Tests:      []dto.TestCaseRequest{{ID: "t1", Hidden: true, Input: "secret input", Expected: "secret output"}},
	}

	resp := postJSON(t, app, "/api/v1/submissions", payload, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")

	var response struct {
		Data dto.SubmissionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	require.Equal(t, "accepted", response.Data.Status)
	require.Equal(t, 1, response.Data.TestsPassed)
	require.Equal(t, 1, provider.tracked)
}

func TestSubmissionHandlerEvaluatorSeesHiddenData(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: true},
		batch: grading.BatchResult{
			Results: []grading.TestResult{
				{TestID: "t1", Hidden: true, Passed: true, Input: "secret input", Outcome: execution.Outcome{Status: execution.StatusAccepted}},
			},
			TestsPassed: 1,
		},
	}
	store := submission.NewMemoryStore()
	app := newSubmissionApp(provider, store)

	payload := dto.SubmissionRequest{
		UserID:     "user-1",
		ExerciseID: "ex-1",
		Language:   "python",
		Source:     "print(1)",
		Tier:       "free",
		Tests:      []dto.TestCaseRequest{{ID: "t1", Hidden: true, Input: "secret input"}},
	}

	resp := postJSON(t, app, "/api/v1/submissions", payload, map[string]string{"X-User-Role": "teacher"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "secret input")
}

func TestSubmissionHandlerRateLimited(t *testing.T) {
	provider := &mockProvider{
		decision: ratelimit.Decision{Allowed: false, Reason: "Daily limit of 50 executions reached"},
	}
	store := submission.NewMemoryStore()
	app := newSubmissionApp(provider, store)

	payload := dto.SubmissionRequest{
		UserID:     "user-1",
		ExerciseID: "ex-1",
		Language:   "python",
		Source:     "print(1)",
		Tier:       "free",
		Tests:      []dto.TestCaseRequest{{ID: "t1"}},
	}

	resp := postJSON(t, app, "/api/v1/submissions", payload, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestSubmissionHandlerGetNotFound(t *testing.T) {
	app := newSubmissionApp(&mockProvider{}, submission.NewMemoryStore())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/unknown", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
