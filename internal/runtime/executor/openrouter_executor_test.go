package executor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testPrompt = Prompt{System: "You are a product designer.", User: "Design a tote bag."}

func newTestExecutor(t *testing.T, cfg *config.Config, seq *testutil.Sequence, sleeper *testutil.TimerRecorder) *OpenRouterExecutor {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	exec, err := NewOpenRouterExecutor(cfg, WithHTTPClient(seq.Client()), WithTimer(sleeper.NewTimer))
	require.NoError(t, err)
	return exec
}

func TestInvokeRetriesTransientThenSucceeds(t *testing.T) {
	seq := testutil.NewSequence(
		testutil.Status(http.StatusInternalServerError, `{"error":{"message":"upstream down"}}`),
		testutil.Status(http.StatusBadGateway, `bad gateway`),
		testutil.Status(http.StatusOK, testutil.CompletionBody(`{"metadata":{}}`)),
	)
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	text, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "anthropic/claude-3-haiku"})
	require.NoError(t, err)
	assert.Equal(t, `{"metadata":{}}`, text)
	assert.Equal(t, 3, seq.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Waits())
}

func TestInvokeClientErrorIsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests} {
		seq := testutil.NewSequence(testutil.Status(status, `{"error":{"message":"nope"}}`))
		sleeper := &testutil.TimerRecorder{}
		exec := newTestExecutor(t, nil, seq, sleeper)

		_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-bad", Model: "m"})
		require.Error(t, err)
		f, ok := failure.As(err)
		require.True(t, ok)
		assert.Equal(t, failure.ClientError, f.Kind)
		assert.Equal(t, status, f.Status)
		assert.Equal(t, 1, seq.Calls())
		assert.Empty(t, sleeper.Waits())
	}
}

func TestInvokeExhaustsBudget(t *testing.T) {
	seq := testutil.NewSequence(testutil.Status(http.StatusServiceUnavailable, `{}`))
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
	require.Error(t, err)
	f, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.TransientError, f.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, f.Status)
	assert.Equal(t, 3, seq.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Waits())
}

func TestInvokeTreatsMissingTextAsTransient(t *testing.T) {
	bodies := []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":""}}]}`,
		`{"choices":[{"message":{"content":null}}]}`,
		`{"error":{"message":"provider overloaded","code":502}}`,
		`not json`,
	}
	for _, body := range bodies {
		seq := testutil.NewSequence(
			testutil.Status(http.StatusOK, body),
			testutil.Status(http.StatusOK, testutil.CompletionBody("ok")),
		)
		sleeper := &testutil.TimerRecorder{}
		exec := newTestExecutor(t, nil, seq, sleeper)

		text, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
		require.NoError(t, err, "body %s", body)
		assert.Equal(t, "ok", text)
		assert.Equal(t, 2, seq.Calls())
		assert.Equal(t, []time.Duration{time.Second}, sleeper.Waits())
	}
}

func TestInvokeRetriesTransportErrors(t *testing.T) {
	seq := testutil.NewSequence(
		testutil.Fail(errors.New("connection reset by peer")),
		testutil.Status(http.StatusOK, testutil.CompletionBody("done")),
	)
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	text, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, 2, seq.Calls())
}

func TestInvokeStopsOnCancellation(t *testing.T) {
	seq := testutil.NewSequence(testutil.Status(http.StatusInternalServerError, `{}`))
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Invoke(ctx, GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotEqual(t, failure.TransientError, failure.KindOf(err))
	assert.LessOrEqual(t, seq.Calls(), 1)
}

func TestInvokeHonoursConfiguredBudget(t *testing.T) {
	cfg := config.Default()
	cfg.RequestRetry = 4
	cfg.RetryBackoff = 100 * time.Millisecond
	seq := testutil.NewSequence(testutil.Status(http.StatusInternalServerError, `{}`))
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, cfg, seq, sleeper)

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 4, seq.Calls())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeper.Waits())
}

func TestInvokeBuildsRequest(t *testing.T) {
	cfg := config.Default()
	cfg.BaseURL = "https://router.example/api/v1"
	cfg.AppReferer = "https://signifo.example"
	seq := testutil.NewSequence(testutil.Status(http.StatusOK, testutil.CompletionBody("hi")))
	exec := newTestExecutor(t, cfg, seq, &testutil.TimerRecorder{})

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: " sk-secret ", Model: "openai/gpt-4o"})
	require.NoError(t, err)

	req, body := seq.Request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://router.example/api/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-secret", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "https://signifo.example", req.Header.Get("HTTP-Referer"))
	assert.Equal(t, config.DefaultAppTitle, req.Header.Get("X-Title"))

	assert.Equal(t, "openai/gpt-4o", gjson.Get(body, "model").String())
	assert.Equal(t, "system", gjson.Get(body, "messages.0.role").String())
	assert.Equal(t, testPrompt.System, gjson.Get(body, "messages.0.content").String())
	assert.Equal(t, "user", gjson.Get(body, "messages.1.role").String())
	assert.Equal(t, testPrompt.User, gjson.Get(body, "messages.1.content").String())
}

func TestInvokeRejectsMissingInputsWithoutCalling(t *testing.T) {
	seq := testutil.NewSequence()
	exec := newTestExecutor(t, nil, seq, &testutil.TimerRecorder{})

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Model: "m"})
	f, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.ClientError, f.Kind)
	assert.Equal(t, http.StatusUnauthorized, f.Status)

	_, err = exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk"})
	assert.Equal(t, failure.ClientError, failure.KindOf(err))
	assert.Equal(t, 0, seq.Calls())
}

func TestInvokeUsesDefaultModel(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultModel = "mistralai/mistral-7b-instruct"
	seq := testutil.NewSequence(testutil.Status(http.StatusOK, testutil.CompletionBody("x")))
	exec := newTestExecutor(t, cfg, seq, &testutil.TimerRecorder{})

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk"})
	require.NoError(t, err)
	_, body := seq.Request(0)
	assert.Equal(t, "mistralai/mistral-7b-instruct", gjson.Get(body, "model").String())
}

func TestAttemptBudgetBackOffSchedule(t *testing.T) {
	budget := &AttemptBudget{Max: 3, BackoffBase: time.Second}
	schedule := budget.BackOff(context.Background())
	schedule.Reset()
	assert.Equal(t, time.Second, schedule.NextBackOff())
	assert.Equal(t, 2*time.Second, schedule.NextBackOff())
	assert.Equal(t, backoff.Stop, schedule.NextBackOff())

	budget.Made = 3
	assert.True(t, budget.Exhausted())
}

func TestAttemptBudgetBackOffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	schedule := (&AttemptBudget{Max: 3, BackoffBase: time.Second}).BackOff(ctx)
	assert.Equal(t, backoff.Stop, schedule.NextBackOff())
}

func TestInvokeReturnsLastTransientFailure(t *testing.T) {
	seq := testutil.NewSequence(
		testutil.Status(http.StatusInternalServerError, `{}`),
		testutil.Status(http.StatusBadGateway, `{}`),
		testutil.Status(http.StatusOK, `{"choices":[]}`),
	)
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	_, err := exec.Invoke(context.Background(), GenerationRequest{Prompt: testPrompt, Credential: "sk-test", Model: "m"})
	f, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.TransientError, f.Kind)
	assert.Equal(t, "Model returned no text content", f.Message)
	assert.Equal(t, 3, seq.Calls())
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens("m", ""))
	assert.Positive(t, EstimateTokens("openai/gpt-4o", "Design a tote bag inspired by tidal pools."))
	assert.Positive(t, EstimatePromptTokens("anthropic/claude-3-haiku", testPrompt))
}
