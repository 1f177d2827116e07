// Package failure defines the classified failures surfaced by the generation
// pipeline. Every error that reaches a caller boundary is either a *Failure or
// a context error; callers dispatch on Kind instead of inspecting error text.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags a failure with the recovery policy that applies to it.
type Kind int

const (
	// ClientError is a caller or credential fault. It is never retried.
	ClientError Kind = iota + 1
	// TransientError is an environment fault (5xx, network, empty body). It is retried.
	TransientError
	// UnparsableResponse means the model output could not be recovered into a document.
	UnparsableResponse
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case ClientError:
		return "client_error"
	case TransientError:
		return "transient_error"
	case UnparsableResponse:
		return "unparsable_response"
	default:
		return "unknown"
	}
}

// Failure is a classified pipeline failure.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	msg := strings.TrimSpace(f.Message)
	if msg == "" {
		msg = f.Kind.String()
	}
	if f.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.Status)
	}
	if f.Err != nil {
		return msg + ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// StatusCode exposes the upstream HTTP status, 0 when none was observed.
func (f *Failure) StatusCode() int {
	if f == nil {
		return 0
	}
	return f.Status
}

// NewClientError builds a non-retryable failure for a 4xx upstream status.
func NewClientError(status int, message string) *Failure {
	return &Failure{Kind: ClientError, Status: status, Message: message}
}

// NewTransientError builds a retryable failure.
func NewTransientError(status int, message string, err error) *Failure {
	return &Failure{Kind: TransientError, Status: status, Message: message, Err: err}
}

// NewUnparsable builds the terminal failure raised when recovery is exhausted.
func NewUnparsable(message string, err error) *Failure {
	return &Failure{Kind: UnparsableResponse, Message: message, Err: err}
}

// As extracts a *Failure from err.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f, true
	}
	return nil, false
}

// KindOf returns the kind of err, or 0 when err is not a classified failure.
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return 0
}

// IsRetryable reports whether err may succeed when the same request is sent again.
func IsRetryable(err error) bool {
	return KindOf(err) == TransientError
}

// Classify maps the outcome of one upstream attempt onto a failure kind. It
// returns 0 when the attempt succeeded with usable text. Context errors are not
// classified so cancellation is never mistaken for a transient fault.
func Classify(status int, err error, text string) Kind {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0
		}
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			return ClientError
		}
		return TransientError
	}
	switch {
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return ClientError
	case status >= http.StatusInternalServerError:
		return TransientError
	case strings.TrimSpace(text) == "":
		return TransientError
	}
	return 0
}

const (
	unparsableUserMessage = "The model response appears truncated or malformed and could not be parsed. Please try again or select a different model."
	transientUserMessage  = "The model service is temporarily unavailable or returned no content. Please try again in a moment."
	unknownUserMessage    = "An unknown error occurred."
)

// UnparsableUserMessage is the actionable sentence shown for UnparsableResponse.
func UnparsableUserMessage() string { return unparsableUserMessage }

// UserMessage renders err as a single human-readable sentence. Raw transport
// and parser text never leaks through.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "The generation was cancelled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The model did not respond in time. Please try again."
	}
	f, ok := As(err)
	if !ok {
		return unknownUserMessage
	}
	switch f.Kind {
	case ClientError:
		switch f.Status {
		case http.StatusUnauthorized:
			return "Authentication failed. The API key you provided is likely invalid or incorrect."
		case http.StatusForbidden:
			return "Permission Denied. Your API key may not have the necessary permissions."
		case http.StatusPaymentRequired:
			return "The API key has insufficient credits for this model."
		case http.StatusTooManyRequests:
			return "The model provider is rate limiting requests. Please wait before trying again."
		}
		return fmt.Sprintf("The request was rejected by the model provider (status %d).", f.Status)
	case TransientError:
		return transientUserMessage
	case UnparsableResponse:
		return unparsableUserMessage
	}
	return unknownUserMessage
}
