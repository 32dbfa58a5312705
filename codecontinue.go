// Package codecontinue defines the request/response types for codecontinue IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
// Every message carries a "type" field that selects the handler.
package codecontinue

// Message types understood by the daemon.
const (
	TypeComplete = "complete"
	TypeEdit     = "edit"
	TypeClose    = "close"
	TypeAccept   = "accept"
	TypeClear    = "clear"
	TypeConfig   = "config"
	TypeStats    = "stats"
	TypeReset    = "reset"
)

// Trigger kinds reported by the editor.
const (
	TriggerAutomatic = "automatic"
	TriggerManual    = "manual"
)

// Outcome describes how a completion attempt ended.
type Outcome string

const (
	// OutcomeDelivered means a suggestion is attached to the response.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeStale means a newer request for the same document superseded this one.
	OutcomeStale Outcome = "stale"
	// OutcomeEmpty means the model answered but nothing was left after cleaning.
	OutcomeEmpty Outcome = "empty"
	// OutcomeRateLimited means the request arrived inside the rate-limit interval.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeIgnored means the trigger kind is not handled (manual invocations).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFailed means the fetch failed; Error describes why.
	OutcomeFailed Outcome = "failed"
)

// Request is sent from the editor to the daemon to ask for a completion.
type Request struct {
	// Type is always "complete".
	Type string `json:"type"`
	// RequestID is a per-connection identifier assigned by the editor.
	// The daemon echoes it back in the response.
	RequestID int `json:"request_id"`
	// Doc is the stable document identity (usually its URI).
	Doc string `json:"doc"`
	// Language is the editor's language identifier for the document.
	Language string `json:"language,omitempty"`
	// Text is the full document content.
	Text string `json:"text"`
	// Line is the zero-based cursor line.
	Line int `json:"line"`
	// Character is the zero-based cursor column, counted in runes.
	Character int `json:"character"`
	// Trigger is "automatic" or "manual".
	Trigger string `json:"trigger"`
}

// Suggestion is a zero-width insertion anchored at the request's cursor.
type Suggestion struct {
	// Text is the cleaned completion to insert.
	Text string `json:"text"`
	// Line and Character repeat the cursor position the suggestion belongs to.
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Response is sent from the daemon back to the editor.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Outcome reports how the attempt ended.
	Outcome Outcome `json:"outcome"`
	// Suggestion is set only when Outcome is "delivered".
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	// Error is set when the attempt failed and the user should be told.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "config_missing", "timeout").
	Code string `json:"code"`
	// Message is a human-readable description suitable for a notification.
	Message string `json:"message"`
}

// EditRequest reports a single content change so the daemon can decide
// whether the editor should request an automatic completion.
type EditRequest struct {
	// Type is always "edit".
	Type     string `json:"type"`
	Doc      string `json:"doc"`
	Language string `json:"language"`
	// Change is the inserted text of the edit.
	Change string `json:"change"`
}

// EditResponse answers an EditRequest.
type EditResponse struct {
	// Trigger is true when the editor should request a completion now.
	Trigger bool   `json:"trigger"`
	Error   *Error `json:"error,omitempty"`
}

// DocumentRequest carries a document lifecycle event: "close", "accept" or "clear".
type DocumentRequest struct {
	Type string `json:"type"`
	Doc  string `json:"doc"`
}

// DocumentResponse answers a DocumentRequest.
type DocumentResponse struct {
	OK bool `json:"ok"`
	// Clear is set for "clear" requests: false while the post-accept grace
	// period is running and the suggestion must stay on screen.
	Clear *bool  `json:"clear,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ConfigRequest is sent from the editor for configuration operations.
type ConfigRequest struct {
	// Type is always "config".
	Type string `json:"type"`
	// Action is the config operation: "get", "reload", "defaults" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload" and "defaults").
	// The API key is masked.
	Config *Config `json:"config,omitempty"`
	// Warnings contains configuration warnings (for "validate").
	Warnings []string `json:"warnings,omitempty"`
	Error    *Error   `json:"error,omitempty"`
}

// StatsResponse reports tracker statistics for debugging.
type StatsResponse struct {
	Documents      int `json:"documents"`
	ActiveRequests int `json:"active_requests"`
}
