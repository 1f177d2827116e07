// Package generation composes the upstream call and JSON recovery into a
// single generate operation.
package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/signifo/designgen/internal/document"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/metrics"
	"github.com/signifo/designgen/internal/recovery"
	"github.com/signifo/designgen/internal/runtime/executor"
	log "github.com/sirupsen/logrus"
)

// Prompt is the system/user instruction pair.
type Prompt = executor.Prompt

// Invoker sends a prompt upstream and returns the raw model text.
type Invoker interface {
	Invoke(ctx context.Context, req executor.GenerationRequest) (string, error)
}

// Parser recovers a document from raw model text.
type Parser interface {
	ParseWithReport(raw string) (*recovery.Report, error)
}

// Result is a successful generation. Value holds the recovered root; Document
// is set when that root is an object.
type Result struct {
	Value     any
	Document  document.Document
	RequestID string
	Strategy  recovery.Strategy
	Truncated bool
	Duration  time.Duration
}

// Filename returns the file-safe theme slug of the document.
func (r *Result) Filename() string {
	if r == nil {
		return ""
	}
	return r.Document.Filename()
}

// Orchestrator runs one generate call end to end. It keeps no per-call state.
type Orchestrator struct {
	invoker  Invoker
	parser   Parser
	now      func() time.Time
	estimate func(model, text string) int64
}

// NewOrchestrator wires an invoker and a parser.
func NewOrchestrator(invoker Invoker, parser Parser) *Orchestrator {
	return &Orchestrator{invoker: invoker, parser: parser, now: time.Now, estimate: executor.EstimateTokens}
}

// Generate invokes the model once (with the invoker's own retries) and parses
// its text. Failures pass through unchanged, except UnparsableResponse whose
// message is replaced by an actionable sentence.
func (o *Orchestrator) Generate(ctx context.Context, prompt Prompt, credential, model string) (*Result, error) {
	requestID := uuid.NewString()
	start := o.now()
	entry := log.WithFields(log.Fields{
		"request_id": requestID,
		"model":      model,
	})
	debug := log.IsLevelEnabled(log.DebugLevel)
	if debug {
		promptTokens := o.estimate(model, prompt.System) + o.estimate(model, prompt.User)
		entry.WithField("prompt_tokens", promptTokens).Debug("generation started")
	}

	raw, err := o.invoker.Invoke(ctx, executor.GenerationRequest{Prompt: prompt, Credential: credential, Model: model})
	if err != nil {
		o.observe(start, err)
		entry.Warnf("generation failed: %v", err)
		return nil, err
	}
	if debug {
		entry.WithField("completion_tokens", o.estimate(model, raw)).Debug("model response received")
	}

	report, err := o.parser.ParseWithReport(raw)
	if err != nil {
		if f, ok := failure.As(err); ok && f.Kind == failure.UnparsableResponse {
			err = &failure.Failure{Kind: failure.UnparsableResponse, Message: failure.UnparsableUserMessage(), Err: f.Err}
		}
		o.observe(start, err)
		entry.Warnf("generation failed: %v", err)
		return nil, err
	}

	metrics.RecordRecovery(string(report.Strategy))
	duration := o.observe(start, nil)
	entry.WithFields(log.Fields{
		"strategy":  report.Strategy,
		"truncated": report.Truncated,
		"duration":  duration,
	}).Info("generation completed")

	return &Result{
		Value:     report.Value,
		Document:  report.Document,
		RequestID: requestID,
		Strategy:  report.Strategy,
		Truncated: report.Truncated,
		Duration:  duration,
	}, nil
}

func (o *Orchestrator) observe(start time.Time, err error) time.Duration {
	duration := o.now().Sub(start)
	result := "ok"
	if err != nil {
		if kind := failure.KindOf(err); kind != 0 {
			result = kind.String()
		} else {
			result = "error"
		}
	}
	metrics.ObserveGeneration(result, duration.Seconds())
	return duration
}
