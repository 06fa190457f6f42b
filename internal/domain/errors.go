package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FailureReason classifies why a fetch did not produce a video
type FailureReason string

const (
	ReasonUnsupportedPlatform FailureReason = "unsupported_platform"
	ReasonExtractorError      FailureReason = "extractor_error"
	ReasonTooLarge            FailureReason = "too_large"
	ReasonAllMethodsExhausted FailureReason = "all_methods_exhausted"
	ReasonCancelled           FailureReason = "cancelled"
)

// AttemptFailure records one strategy that did not succeed
type AttemptFailure struct {
	Strategy string `json:"strategy"`
	Detail   string `json:"detail"`
}

// FetchError is the typed failure returned by strategies and the orchestrator
type FetchError struct {
	Reason   FailureReason    `json:"reason"`
	Strategy string           `json:"strategy,omitempty"`
	Detail   string           `json:"detail,omitempty"`
	Attempts []AttemptFailure `json:"attempts,omitempty"`
	Err      error            `json:"-"`
}

// Error implements the error interface
func (e *FetchError) Error() string {
	var parts []string
	parts = append(parts, string(e.Reason))
	if e.Strategy != "" {
		parts = append(parts, e.Strategy)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	msg := strings.Join(parts, ": ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// UserMessage returns a human-readable text suitable for a chat reply
func (e *FetchError) UserMessage() string {
	switch e.Reason {
	case ReasonUnsupportedPlatform:
		return "Please send a valid Instagram or TikTok URL."
	case ReasonTooLarge:
		return "Video is too large to send through chat."
	case ReasonAllMethodsExhausted, ReasonExtractorError:
		return "Could not download this video. The post might be private, deleted, or not accessible. Please try again later."
	case ReasonCancelled:
		return "The download was cancelled."
	default:
		return "Something went wrong while downloading. Please try again."
	}
}

// NewExtractorError wraps a strategy failure
func NewExtractorError(strategy string, err error) *FetchError {
	return &FetchError{Reason: ReasonExtractorError, Strategy: strategy, Err: err}
}

// ExtractorErrorf builds an extractor error from a formatted detail
func ExtractorErrorf(strategy, format string, args ...interface{}) *FetchError {
	return &FetchError{Reason: ReasonExtractorError, Strategy: strategy, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the failure reason carried by err, or "" when err is not a FetchError
func ReasonOf(err error) FailureReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// IsReason reports whether err carries the given failure reason
func IsReason(err error, reason FailureReason) bool {
	return err != nil && ReasonOf(err) == reason
}
