// Package generate turns editor requests into inline code completions.
//
// The Engine runs the per-request state machine: rate limiting, window
// extraction, the model call, staleness checks and output cleaning. The
// Fetcher performs the model call itself.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	"github.com/Paranoid-AF/codecontinue/clean"
	"github.com/Paranoid-AF/codecontinue/redact"
	"github.com/Paranoid-AF/codecontinue/track"
)

// CompletionFetcher performs one model call. *Fetcher is the production
// implementation.
type CompletionFetcher interface {
	Fetch(ctx context.Context, prompt string, s Settings) (string, error)
}

// Engine orchestrates completions for all open documents.
type Engine struct {
	tracker *track.Tracker
	fetcher CompletionFetcher
	config  atomic.Pointer[codecontinue.Config]
}

// NewEngine creates an engine from the config file, falling back to
// defaults if it cannot be loaded.
func NewEngine() *Engine {
	cfg, err := codecontinue.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = codecontinue.DefaultConfig()
	}
	return NewEngineWithConfig(cfg)
}

// NewEngineWithConfig creates an engine using cfg.
func NewEngineWithConfig(cfg *codecontinue.Config) *Engine {
	return newEngine(cfg, NewFetcher())
}

func newEngine(cfg *codecontinue.Config, f CompletionFetcher) *Engine {
	e := &Engine{
		tracker: track.New(track.DefaultIdleTTL),
		fetcher: f,
	}
	e.SetConfig(cfg)
	for _, w := range codecontinue.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	return e
}

// Config returns the active configuration. Callers must not modify it.
func (e *Engine) Config() *codecontinue.Config {
	return e.config.Load()
}

// SetConfig replaces the active configuration. Requests already in flight
// keep the settings they started with.
func (e *Engine) SetConfig(cfg *codecontinue.Config) {
	e.config.Store(cfg)
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	e.tracker.Close()
}

// CompleteResult is a completion response plus the data that produced it.
type CompleteResult struct {
	Response *codecontinue.Response
	Window   Window
	// Prompt is the user message sent to the model, redacted when
	// context.redact_secrets is set. Empty if no request was made.
	Prompt string
	// Raw is the uncleaned model output.
	Raw string
}

// Complete handles one completion request.
func (e *Engine) Complete(ctx context.Context, req *codecontinue.Request) *codecontinue.Response {
	return e.CompleteVerbose(ctx, req).Response
}

// CompleteVerbose is Complete with the intermediate results exposed.
func (e *Engine) CompleteVerbose(ctx context.Context, req *codecontinue.Request) *CompleteResult {
	res := &CompleteResult{
		Response: &codecontinue.Response{RequestID: req.RequestID},
	}
	resp := res.Response

	if req.Trigger != codecontinue.TriggerAutomatic {
		resp.Outcome = codecontinue.OutcomeIgnored
		return res
	}

	cfg := e.Config()
	token := e.tracker.NewToken(req.Line, req.Character)
	if !e.tracker.TryRecord(req.Doc, token, cfg.Context.RateLimit()) {
		slog.Debug("rate limited, skipping request", "doc", req.Doc)
		resp.Outcome = codecontinue.OutcomeRateLimited
		return res
	}

	res.Window = BuildWindow(req.Text, req.Line, req.Character, cfg.Context.MaxContextLines)
	res.Prompt = BuildPrompt(res.Window)
	if cfg.Context.RedactSecrets {
		res.Prompt = redact.Prompt(res.Prompt, req.Language)
	}

	slog.Debug("starting completion request",
		"token", token,
		"doc", req.Doc,
		"line", req.Line,
		"character", req.Character,
	)
	slog.Debug("context window",
		"start_line", res.Window.StartLine,
		"end_line", res.Window.EndLine,
		"chars", len(res.Window.Text()),
		"cursor_offset", len(res.Window.Before),
	)
	slog.Debug("prompt", "user", res.Prompt)

	raw, err := e.fetcher.Fetch(ctx, res.Prompt, SettingsFromConfig(cfg))

	if e.tracker.IsStale(req.Doc, token) {
		slog.Debug("request is stale, discarding result", "token", token, "doc", req.Doc)
		resp.Outcome = codecontinue.OutcomeStale
		return res
	}
	e.tracker.ClearIfCurrent(req.Doc, token)

	if err != nil {
		resp.Outcome = codecontinue.OutcomeFailed
		resp.Error = toResponseError(err)
		return res
	}

	res.Raw = raw
	text := clean.StripCommonIndent(clean.CleanMarkdownFences(raw))
	if text == "" {
		slog.Debug("completion empty after cleaning", "token", token)
		resp.Outcome = codecontinue.OutcomeEmpty
		return res
	}

	slog.Debug("delivering completion", "token", token, "chars", len(text))
	resp.Outcome = codecontinue.OutcomeDelivered
	resp.Suggestion = &codecontinue.Suggestion{
		Text:      text,
		Line:      req.Line,
		Character: req.Character,
	}
	return res
}

// toResponseError converts a fetch failure into the IPC error, or nil when
// the user should not be told.
func toResponseError(err error) *codecontinue.Error {
	var fe *Error
	if !errors.As(err, &fe) {
		return &codecontinue.Error{Code: "api_error", Message: err.Error()}
	}
	if !fe.Notify() {
		return nil
	}
	return &codecontinue.Error{Code: fe.Code(), Message: fe.Message()}
}

// ShouldTrigger reports whether an edit should start an automatic
// completion: the change inserts a line break (plus any auto-indent), the
// language is enabled and the document is outside its rate-limit interval.
func (e *Engine) ShouldTrigger(req *codecontinue.EditRequest) bool {
	if !isNewline(req.Change) {
		return false
	}
	cfg := e.Config()
	if !languageEnabled(cfg.Context.TriggerLanguages, req.Language) {
		slog.Debug("language not enabled for completion", "language", req.Language)
		return false
	}
	return e.tracker.CanMakeRequest(req.Doc, cfg.Context.RateLimit())
}

func isNewline(change string) bool {
	rest, ok := strings.CutPrefix(change, "\r\n")
	if !ok {
		rest, ok = strings.CutPrefix(change, "\n")
	}
	return ok && strings.Trim(rest, " \t") == ""
}

func languageEnabled(languages []string, language string) bool {
	for _, l := range languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// CloseDocument drops all state of doc. Requests still in flight for it
// will be reported stale.
func (e *Engine) CloseDocument(doc string) {
	slog.Debug("document closed", "doc", doc)
	e.tracker.Remove(doc)
}

// Accept starts the post-accept grace period for doc.
func (e *Engine) Accept(doc string) {
	e.tracker.SuppressClearFor(doc, track.DefaultSuppressGrace)
}

// ShouldClear reports whether the editor may clear the suggestion of doc.
func (e *Engine) ShouldClear(doc string) bool {
	return !e.tracker.IsClearingSuppressed(doc)
}

// Reset drops the state of every document. Requests still in flight will
// be reported stale.
func (e *Engine) Reset() {
	slog.Debug("resetting all document state")
	e.tracker.Reset()
}

// Stats reports tracker statistics.
func (e *Engine) Stats() track.Stats {
	return e.tracker.Stats()
}
