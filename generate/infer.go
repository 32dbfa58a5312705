package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	defaults "github.com/Paranoid-AF/codecontinue/default"
)

// DefaultTimeout applies when Settings.Timeout is not positive.
const DefaultTimeout = 10 * time.Second

// bodyExcerpt bounds how much of an error response body is logged.
const bodyExcerpt = 200

// endpointPlaceholders mark endpoints copied from documentation unchanged.
var endpointPlaceholders = []string{"your-api", "example.com", "localhost:0000"}

// Settings is the per-call snapshot of the generation config.
type Settings struct {
	Endpoint    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// SettingsFromConfig resolves generation settings, applying environment
// overrides.
func SettingsFromConfig(cfg *codecontinue.Config) Settings {
	return Settings{
		Endpoint:    codecontinue.ResolveEndpoint(cfg),
		Model:       codecontinue.ResolveModel(cfg),
		APIKey:      codecontinue.ResolveAPIKey(cfg),
		Timeout:     cfg.Generation.Timeout(),
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Stop:        cfg.Generation.Stop,
	}
}

// Fetcher performs one chat-completions call per completion request
// against an OpenAI-compatible endpoint.
type Fetcher struct {
	client       *http.Client
	systemPrompt string
}

// NewFetcher creates a fetcher using the built-in system prompt.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:       &http.Client{},
		systemPrompt: strings.TrimSpace(defaults.SystemPrompt),
	}
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidateEndpoint rejects empty endpoints, documentation placeholders and
// anything that is not an absolute URL with a host.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return &Error{Kind: KindInvalidEndpoint, Detail: "endpoint is empty"}
	}
	lower := strings.ToLower(endpoint)
	for _, p := range endpointPlaceholders {
		if strings.Contains(lower, p) {
			return &Error{Kind: KindInvalidEndpoint, Detail: "endpoint contains placeholder " + p}
		}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return &Error{Kind: KindInvalidEndpoint, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return &Error{Kind: KindInvalidEndpoint, Detail: "endpoint is not an absolute URL"}
	}
	return nil
}

// Fetch sends prompt to the endpoint and returns the raw content of the
// first choice. Every failure is logged and returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, prompt string, s Settings) (string, error) {
	text, err := f.fetch(ctx, prompt, s)
	if err != nil {
		logFailure(err)
		return "", err
	}
	return text, nil
}

func (f *Fetcher) fetch(ctx context.Context, prompt string, s Settings) (string, error) {
	if strings.TrimSpace(s.Endpoint) == "" || strings.TrimSpace(s.Model) == "" {
		return "", &Error{Kind: KindConfigMissing}
	}
	if err := ValidateEndpoint(s.Endpoint); err != nil {
		return "", err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody := chatCompletionsRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: f.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Stop:        s.Stop,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", &Error{Kind: KindParse, Detail: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(data))
	if err != nil {
		return "", &Error{Kind: KindInvalidEndpoint, Err: err}
	}
	setHeaders(httpReq, s.APIKey)

	slog.Debug("sending completion request", "endpoint", s.Endpoint, "model", s.Model, "prompt_chars", len(prompt))
	start := time.Now()

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(err, timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err, timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Detail: excerpt(body)}
	}

	var result chatCompletionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &Error{Kind: KindParse, Detail: excerpt(body), Err: err}
	}
	if result.Error != nil {
		return "", &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Detail: result.Error.Message}
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindEmptyResult}
	}

	content := result.Choices[0].Message.Content
	slog.Debug("received completion",
		"elapsed", time.Since(start),
		"chars", len(content),
		"lines", strings.Count(content, "\n")+1,
	)
	return content, nil
}

// setHeaders sets common headers for API requests.
func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// classifyTransport maps a failed round trip onto a failure kind.
func classifyTransport(err error, timeout time.Duration) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Timeout: timeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Timeout: timeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerpt {
		s = s[:bodyExcerpt] + "..."
	}
	return s
}

func logFailure(err error) {
	var fe *Error
	if !errors.As(err, &fe) {
		slog.Error("completion request failed", "error", err)
		return
	}
	switch fe.Kind {
	case KindCanceled:
		slog.Debug("completion request canceled")
	case KindHTTP:
		slog.Error("completion request failed", "code", fe.Code(), "status", fe.StatusCode, "body", fe.Detail)
	default:
		slog.Error("completion request failed", "code", fe.Code(), "error", fe.Error())
	}
}
