package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// ErrorCategory groups failures the way they are reported to the user
type ErrorCategory string

const (
	CategoryNetwork       ErrorCategory = "network"
	CategoryUpload        ErrorCategory = "upload"
	CategoryTranscription ErrorCategory = "transcription"
	CategoryAI            ErrorCategory = "ai"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryUnknown       ErrorCategory = "unknown"
)

var (
	ErrNetwork       = errors.New("network error")
	ErrUpload        = errors.New("upload error")
	ErrTranscription = errors.New("transcription error")
	ErrAI            = errors.New("ai generation error")
	ErrRateLimit     = errors.New("rate limited")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")

	ErrTranscriptionMissing = fmt.Errorf("%w: video has no transcription yet", ErrValidation)
	ErrCycle                = fmt.Errorf("%w: connection would create a cycle", ErrValidation)
)

// Wrap tags err with a category marker and an operation description so it can
// be classified later. A nil err yields an error carrying only the marker.
func Wrap(marker error, op string, err error) error {
	if marker == nil {
		marker = errors.New("unknown error")
	}
	op = strings.TrimSpace(op)
	switch {
	case err == nil && op == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, op)
	case op == "":
		return fmt.Errorf("%w: %w", marker, err)
	default:
		return fmt.Errorf("%w: %s: %w", marker, op, err)
	}
}

// Classify determines the category of an error. Tagged errors win; untagged
// errors fall back to message heuristics.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, ErrRateLimit):
		return CategoryRateLimit
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrUpload):
		return CategoryUpload
	case errors.Is(err, ErrTranscription):
		return CategoryTranscription
	case errors.Is(err, ErrAI):
		return CategoryAI
	case errors.Is(err, ErrNetwork):
		return CategoryNetwork
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests", "quota"):
		return CategoryRateLimit
	case containsAny(msg, "network", "timeout", "connection refused", "connection reset", "no such host", "fetch failed", "eof"):
		return CategoryNetwork
	case containsAny(msg, "upload", "file too large", "unsupported file"):
		return CategoryUpload
	case containsAny(msg, "transcri", "whisper", "ffmpeg", "audio"):
		return CategoryTranscription
	case containsAny(msg, "openai", "completion", "model", "generat"):
		return CategoryAI
	}

	return CategoryUnknown
}

// Retryable reports whether an operation failing with this category is worth retrying
func Retryable(category ErrorCategory) bool {
	switch category {
	case CategoryNetwork, CategoryRateLimit, CategoryAI:
		return true
	default:
		return false
	}
}

// UserMessage turns an error into the short message shown in notifications
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case CategoryNetwork:
		return "Network error. Check your connection and try again."
	case CategoryUpload:
		return "Upload failed. Check the file and try again."
	case CategoryTranscription:
		return "Transcription failed. Try again or upload a captions file."
	case CategoryAI:
		return "Content generation failed. Try again."
	case CategoryRateLimit:
		return "Too many requests. Wait a moment and try again."
	case CategoryValidation:
		return err.Error()
	case CategoryNotFound:
		return "Not found."
	default:
		return "Something went wrong."
	}
}

// HTTPStatus maps an error category to a response status code
func HTTPStatus(err error) int {
	switch Classify(err) {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryValidation, CategoryUpload:
		return http.StatusBadRequest
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryNetwork, CategoryAI, CategoryTranscription:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryPolicy controls Retry backoff
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is used for calls to external services
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

// Retry runs fn until it succeeds, returns a non-retryable error, or attempts
// run out. Backoff doubles from BaseDelay up to MaxDelay. The last error from
// fn is returned, or ctx.Err() once ctx is done.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Millisecond
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return fn(ctx)
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !Retryable(Classify(err))
		},
		NotifyFunc: func(err error, attempt int) {
			LogInfo("attempt %d failed: %v", attempt, err)
		},
		Attempts:    policy.Attempts,
		Delay:       policy.BaseDelay,
		MaxDelay:    policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return retry.LastError(err)
	case retry.IsRetryStopped(err) || ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
