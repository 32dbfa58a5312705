package generate

import (
	"fmt"
	"net/http"
	"time"
)

// Kind classifies why a completion fetch produced no text.
type Kind int

const (
	// KindConfigMissing means the endpoint or model is not configured.
	KindConfigMissing Kind = iota + 1
	// KindInvalidEndpoint means the endpoint is a placeholder or not an absolute URL.
	KindInvalidEndpoint
	// KindTimeout means no response arrived within the configured timeout.
	KindTimeout
	// KindHTTP means the endpoint answered with a non-success status.
	KindHTTP
	// KindParse means the response body was not the expected JSON.
	KindParse
	// KindEmptyResult means the first choice carried no content.
	KindEmptyResult
	// KindNetwork covers every other transport failure.
	KindNetwork
	// KindCanceled means the caller gave up (daemon shutdown, client gone).
	KindCanceled
)

var kindNames = map[Kind]string{
	KindConfigMissing:   "config_missing",
	KindInvalidEndpoint: "invalid_endpoint",
	KindTimeout:         "timeout",
	KindHTTP:            "http_error",
	KindParse:           "parse_error",
	KindEmptyResult:     "empty_result",
	KindNetwork:         "network_error",
	KindCanceled:        "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by Fetch for every failure.
type Error struct {
	Kind Kind
	// StatusCode is set for KindHTTP.
	StatusCode int
	// Timeout is the limit that was exceeded, set for KindTimeout.
	Timeout time.Duration
	// Detail is extra context for logs (e.g. a response body excerpt).
	Detail string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindHTTP {
		msg = fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine-readable code sent to the editor. HTTP failures
// are split by status so the editor can word its notification.
func (e *Error) Code() string {
	if e.Kind != KindHTTP {
		return e.Kind.String()
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return "auth_failed"
	case e.StatusCode == http.StatusTooManyRequests:
		return "rate_limited_by_api"
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return "server_error"
	default:
		return "api_error"
	}
}

// Message returns the text shown to the user.
func (e *Error) Message() string {
	switch e.Kind {
	case KindConfigMissing:
		return "Endpoint or model not configured. Set generation.endpoint and generation.model in config.toml."
	case KindInvalidEndpoint:
		return "Invalid endpoint URL. Please configure a valid API endpoint."
	case KindTimeout:
		return fmt.Sprintf("Request timed out. Try increasing generation.timeout_ms (current: %dms).", e.Timeout.Milliseconds())
	case KindHTTP:
		switch e.Code() {
		case "auth_failed":
			return "Authentication failed. Check your API key."
		case "rate_limited_by_api":
			return "Rate limit exceeded. Please wait and try again."
		case "server_error":
			return "API server error. Please try again later."
		default:
			return fmt.Sprintf("API error (%d). Check logs for details.", e.StatusCode)
		}
	case KindParse:
		return "Invalid response format from API."
	case KindEmptyResult:
		return "Received empty response from API."
	case KindNetwork:
		return "Network error. Check your connection and endpoint URL."
	case KindCanceled:
		return "Request canceled."
	}
	return "Unknown error occurred."
}

// Notify reports whether the user should be told about this failure.
func (e *Error) Notify() bool {
	return e.Kind != KindCanceled
}
