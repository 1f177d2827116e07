package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/metrics"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Prompt is the system/user instruction pair sent to the model.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// GenerationRequest carries everything one Invoke call needs. Nothing is
// retained between calls.
type GenerationRequest struct {
	Prompt     Prompt
	Credential string
	Model      string
}

// AttemptBudget tracks the attempts of a single Invoke call.
type AttemptBudget struct {
	Made        int
	Max         int
	BackoffBase time.Duration
}

// Exhausted reports whether no attempts remain.
func (b *AttemptBudget) Exhausted() bool {
	return b.Made >= b.Max
}

// BackOff returns the retry schedule for the budget: BackoffBase doubled after
// every failed attempt, stopping after Max attempts or when ctx is done.
func (b *AttemptBudget) BackOff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = b.BackoffBase
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = b.BackoffBase << uint(max(b.Max-1, 0))
	expo.MaxElapsedTime = 0
	expo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(max(b.Max-1, 0))), ctx)
}

// OpenRouterExecutor calls the chat-completions API. It holds no per-call
// state and is safe for concurrent use.
type OpenRouterExecutor struct {
	cfg      *config.Config
	client   *openRouterClient
	newTimer func() backoff.Timer
}

// Option customizes an OpenRouterExecutor.
type Option func(*OpenRouterExecutor)

// WithHTTPClient replaces the proxy-aware upstream client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *OpenRouterExecutor) {
		if client != nil {
			e.client.httpClient = client
		}
	}
}

// WithTimer replaces the timer used for backoff waits. newTimer is called
// once per Invoke.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(e *OpenRouterExecutor) {
		if newTimer != nil {
			e.newTimer = newTimer
		}
	}
}

// NewOpenRouterExecutor creates an executor for cfg. A nil cfg uses defaults.
func NewOpenRouterExecutor(cfg *config.Config, opts ...Option) (*OpenRouterExecutor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	httpClient, err := newProxyAwareHTTPClient(cfg, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("openrouter executor: %w", err)
	}
	e := &OpenRouterExecutor{
		cfg:    cfg,
		client: newOpenRouterClient(cfg, httpClient),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Identifier returns the executor identifier.
func (e *OpenRouterExecutor) Identifier() string { return "openrouter" }

func (e *OpenRouterExecutor) newBudget() *AttemptBudget {
	budget := &AttemptBudget{Max: config.DefaultRequestRetry, BackoffBase: config.DefaultRetryBackoff}
	if e.cfg.RequestRetry > 0 {
		budget.Max = e.cfg.RequestRetry
	}
	if e.cfg.RetryBackoff > 0 {
		budget.BackoffBase = e.cfg.RetryBackoff
	}
	return budget
}

// Invoke sends the prompt and returns the model's text. ClientError failures
// and cancellation stop immediately. TransientError failures are retried with
// exponential backoff until the budget is spent, and the last one is returned.
func (e *OpenRouterExecutor) Invoke(ctx context.Context, req GenerationRequest) (string, error) {
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return "", failure.NewClientError(http.StatusUnauthorized, "no API key configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = e.cfg.DefaultModel
	}
	if model == "" {
		return "", failure.NewClientError(http.StatusBadRequest, "no model selected")
	}
	body, err := BuildChatCompletionBody(model, req.Prompt)
	if err != nil {
		return "", fmt.Errorf("openrouter executor: build request: %w", err)
	}

	budget := e.newBudget()
	var text string
	operation := func() error {
		budget.Made++
		out, status, errSend := e.send(ctx, credential, body)

		switch failure.Classify(status, errSend, out) {
		case 0:
			if errSend != nil {
				metrics.RecordAttempt(metrics.OutcomeCanceled)
				return backoff.Permanent(errSend)
			}
			metrics.RecordAttempt(metrics.OutcomeSuccess)
			text = out
			return nil
		case failure.ClientError:
			metrics.RecordAttempt(metrics.OutcomeClient)
			clientErr := failure.NewClientError(status, fmt.Sprintf("API call failed with status: %d", status))
			clientErr.Err = errSend
			return backoff.Permanent(clientErr)
		default:
			metrics.RecordAttempt(metrics.OutcomeTransient)
			errTransient := transientFailure(status, errSend)
			log.WithFields(log.Fields{
				"attempt": budget.Made,
				"max":     budget.Max,
				"status":  status,
				"model":   model,
			}).Warnf("openrouter executor: attempt failed: %v", errTransient)
			return errTransient
		}
	}
	notify := func(_ error, wait time.Duration) {
		log.Debugf("openrouter executor: retrying in %s", wait)
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}
	if err = backoff.RetryNotifyWithTimer(operation, budget.BackOff(ctx), notify, timer); err != nil {
		return "", err
	}
	return text, nil
}

// send performs one attempt and extracts the first choice's text.
func (e *OpenRouterExecutor) send(ctx context.Context, credential string, body []byte) (string, int, error) {
	data, status, _, err := e.client.doRequest(ctx, http.MethodPost, chatCompletionsPath, credential, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", status, err
	}
	return extractCompletionText(data), status, nil
}

func transientFailure(status int, err error) *failure.Failure {
	var se statusError
	if errors.As(err, &se) {
		return failure.NewTransientError(status, fmt.Sprintf("API call failed with status: %d", status), err)
	}
	if err != nil {
		return failure.NewTransientError(status, "API call failed", err)
	}
	return failure.NewTransientError(status, "Model returned no text content", nil)
}

// BuildChatCompletionBody renders the chat-completions request for prompt.
func BuildChatCompletionBody(model string, prompt Prompt) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "model", model)
	if err != nil {
		return nil, err
	}
	messages := []map[string]string{
		{"role": "system", "content": prompt.System},
		{"role": "user", "content": prompt.User},
	}
	return sjson.SetBytes(body, "messages", messages)
}

// extractCompletionText returns choices[0].message.content, or "" when the
// payload carries no usable text.
func extractCompletionText(data []byte) string {
	if !gjson.ValidBytes(data) {
		return ""
	}
	root := gjson.ParseBytes(data)
	if errMsg := root.Get("error.message"); errMsg.Exists() {
		log.Warnf("openrouter executor: upstream reported error in 2xx body: %s", errMsg.String())
	}
	content := root.Get("choices.0.message.content")
	if content.Type != gjson.String {
		return ""
	}
	return content.String()
}

type statusError struct {
	code int
	msg  string
}

func (e statusError) Error() string {
	if strings.TrimSpace(e.msg) != "" {
		return fmt.Sprintf("status %d: %s", e.code, e.msg)
	}
	return fmt.Sprintf("status %d", e.code)
}

func (e statusError) StatusCode() int { return e.code }
