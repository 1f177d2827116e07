// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RT is a function type that implements http.RoundTripper
type RT func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper interface
func (f RT) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Client creates an http.Client with a custom RoundTripper
func Client(rt RT) *http.Client {
	return &http.Client{Transport: rt}
}

// JSONResponse builds a response with a JSON body for req.
func JSONResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// CompletionBody renders a minimal chat-completions payload carrying content.
func CompletionBody(content string) string {
	var b strings.Builder
	b.WriteString(`{"id":"gen-test","choices":[{"index":0,"message":{"role":"assistant","content":`)
	b.WriteString(quote(content))
	b.WriteString(`}}]}`)
	return b.String()
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

// Sequence replays scripted responses in order, repeating the last one once
// the script runs out, and records every request it receives.
type Sequence struct {
	mu       sync.Mutex
	steps    []func(*http.Request) (*http.Response, error)
	requests []*http.Request
	bodies   []string
}

// NewSequence creates a scripted round tripper.
func NewSequence(steps ...func(*http.Request) (*http.Response, error)) *Sequence {
	return &Sequence{steps: steps}
}

// Status scripts a response with the given status and body.
func Status(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return JSONResponse(req, status, body), nil
	}
}

// Fail scripts a transport error.
func Fail(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

// RoundTrip implements http.RoundTripper.
func (s *Sequence) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)
	var step func(*http.Request) (*http.Response, error)
	switch {
	case len(s.steps) == 0:
		step = Status(http.StatusInternalServerError, `{}`)
	case idx < len(s.steps):
		step = s.steps[idx]
	default:
		step = s.steps[len(s.steps)-1]
	}
	s.mu.Unlock()
	return step(req)
}

// Client wraps the sequence in an http.Client.
func (s *Sequence) Client() *http.Client {
	return &http.Client{Transport: s}
}

// Calls returns the number of requests received.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Request returns the i-th recorded request and its body.
func (s *Sequence) Request(i int) (*http.Request, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i], s.bodies[i]
}

// TimerRecorder stands in for the backoff timer. Every wait is recorded
// and fires immediately.
type TimerRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

// NewTimer returns a timer that reports its waits to r.
func (r *TimerRecorder) NewTimer() backoff.Timer {
	return &recordingTimer{recorder: r}
}

// Waits returns a copy of the recorded waits.
func (r *TimerRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

type recordingTimer struct {
	recorder *TimerRecorder
	c        chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.recorder.mu.Lock()
	t.recorder.waits = append(t.recorder.waits, d)
	t.recorder.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.c }
