package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is an HTTP or transport failure of one upstream call.
type Error struct {
	Upstream   string
	Endpoint   string
	StatusCode int // 0 for network errors
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error on %s (status %d): %s: %v",
			e.Upstream, e.Class, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error on %s (status %d): %s",
		e.Upstream, e.Class, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of an upstream error, or "" for any other error.
func ClassOf(err error) ErrorClass {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Class
	}
	return ""
}

// StatusCode returns the HTTP status of an upstream error, or 0.
func StatusCode(err error) int {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

// classifyError categorizes a response or transport error.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx are permanent for the same request
		return false
	}
}
