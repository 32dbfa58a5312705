package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	"github.com/Paranoid-AF/codecontinue/track"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive connections of the completion client.
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

// stubEngine returns fixed answers and records document events.
type stubEngine struct {
	resp     *codecontinue.Response
	trigger  bool
	suppress atomic.Bool
	stats    track.Stats
	resets   atomic.Int32

	mu      sync.Mutex
	cfg     *codecontinue.Config
	closed  []string
	ctxs    []context.Context
	edits   []codecontinue.EditRequest
	accepts []string
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		resp: &codecontinue.Response{Outcome: codecontinue.OutcomeEmpty},
		cfg:  codecontinue.DefaultConfig(),
	}
}

func (s *stubEngine) Complete(ctx context.Context, _ *codecontinue.Request) *codecontinue.Response {
	s.mu.Lock()
	s.ctxs = append(s.ctxs, ctx)
	s.mu.Unlock()
	// Return a copy to avoid races when the server sets RequestID
	return &codecontinue.Response{
		Outcome:    s.resp.Outcome,
		Suggestion: s.resp.Suggestion,
		Error:      s.resp.Error,
	}
}

func (s *stubEngine) ShouldTrigger(req *codecontinue.EditRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, *req)
	return s.trigger
}

func (s *stubEngine) CloseDocument(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, doc)
}

func (s *stubEngine) Accept(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepts = append(s.accepts, doc)
}

func (s *stubEngine) ShouldClear(string) bool { return !s.suppress.Load() }

func (s *stubEngine) Stats() track.Stats { return s.stats }

func (s *stubEngine) Reset() { s.resets.Add(1) }

func (s *stubEngine) Config() *codecontinue.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *stubEngine) SetConfig(cfg *codecontinue.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *stubEngine) Close() {}

// recorded returns copies of the recorded calls.
func (s *stubEngine) recorded() (ctxs []context.Context, edits []codecontinue.EditRequest, closed, accepts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(ctxs, s.ctxs...), append(edits, s.edits...), append(closed, s.closed...), append(accepts, s.accepts...)
}

var testSocketCounter atomic.Int64

func newTestServer(t *testing.T, engine Engine) *Server {
	t.Helper()
	// Use /tmp directly to avoid macOS 104-char Unix socket path limit
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/codecontinue-t%d-%d.sock", os.Getpid(), n)
	srv, err := NewServerWithEngine(sockPath, engine)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	go srv.Serve()
	return srv
}

// roundTrip sends one request line and decodes the one response line into out.
func roundTrip(t *testing.T, sockPath string, req any, out any) {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write(append(data, '\n'))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}
	if err := json.Unmarshal(scanner.Bytes(), out); err != nil {
		t.Fatal(err)
	}
}

func sendComplete(t *testing.T, sockPath string, req *codecontinue.Request) *codecontinue.Response {
	t.Helper()
	req.Type = codecontinue.TypeComplete
	var resp codecontinue.Response
	roundTrip(t, sockPath, req, &resp)
	return &resp
}

func sendConfig(t *testing.T, sockPath, action string) *codecontinue.ConfigResponse {
	t.Helper()
	var resp codecontinue.ConfigResponse
	roundTrip(t, sockPath, &codecontinue.ConfigRequest{Type: codecontinue.TypeConfig, Action: action}, &resp)
	return &resp
}

func sendDocument(t *testing.T, sockPath, typ, doc string) *codecontinue.DocumentResponse {
	t.Helper()
	var resp codecontinue.DocumentResponse
	roundTrip(t, sockPath, &codecontinue.DocumentRequest{Type: typ, Doc: doc}, &resp)
	return &resp
}

func TestCompleteEchoesRequestID(t *testing.T) {
	srv := newTestServer(t, newStubEngine())

	resp := sendComplete(t, srv.sockPath, &codecontinue.Request{
		RequestID: 42,
		Doc:       "file:///a.go",
		Trigger:   codecontinue.TriggerAutomatic,
	})
	if resp.RequestID != 42 {
		t.Errorf("expected request_id 42, got %d", resp.RequestID)
	}
	if resp.Outcome != codecontinue.OutcomeEmpty {
		t.Errorf("expected outcome empty, got %q", resp.Outcome)
	}
}

func TestCompleteDeliversSuggestion(t *testing.T) {
	stub := newStubEngine()
	stub.resp = &codecontinue.Response{
		Outcome:    codecontinue.OutcomeDelivered,
		Suggestion: &codecontinue.Suggestion{Text: "return nil", Line: 3, Character: 1},
	}
	srv := newTestServer(t, stub)

	resp := sendComplete(t, srv.sockPath, &codecontinue.Request{RequestID: 1, Doc: "d"})
	if resp.Suggestion == nil || resp.Suggestion.Text != "return nil" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Suggestion.Line != 3 || resp.Suggestion.Character != 1 {
		t.Errorf("unexpected anchor: %+v", resp.Suggestion)
	}
}

func TestCompleteRequiresDoc(t *testing.T) {
	stub := newStubEngine()
	srv := newTestServer(t, stub)

	resp := sendComplete(t, srv.sockPath, &codecontinue.Request{RequestID: 5})
	if resp.RequestID != 5 || resp.Outcome != codecontinue.OutcomeFailed {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Error == nil || resp.Error.Code != "invalid_request" {
		t.Errorf("expected invalid_request, got %+v", resp.Error)
	}
	if ctxs, _, _, _ := stub.recorded(); len(ctxs) != 0 {
		t.Error("engine must not be called without a document")
	}
}

func TestCompleteContextCanceledOnClose(t *testing.T) {
	stub := newStubEngine()
	srv := newTestServer(t, stub)

	sendComplete(t, srv.sockPath, &codecontinue.Request{RequestID: 1, Doc: "d"})
	srv.Close()

	ctxs, _, _, _ := stub.recorded()
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(ctxs))
	}
	if ctxs[0].Err() == nil {
		t.Error("expected request context to be canceled by Close")
	}
}

func TestEditRequest(t *testing.T) {
	stub := newStubEngine()
	stub.trigger = true
	srv := newTestServer(t, stub)

	var resp codecontinue.EditResponse
	roundTrip(t, srv.sockPath, &codecontinue.EditRequest{
		Type:     codecontinue.TypeEdit,
		Doc:      "file:///a.go",
		Language: "go",
		Change:   "\n",
	}, &resp)

	if !resp.Trigger {
		t.Error("expected trigger=true")
	}
	_, edits, _, _ := stub.recorded()
	if len(edits) != 1 || edits[0].Change != "\n" || edits[0].Language != "go" {
		t.Errorf("edit not forwarded: %+v", edits)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	stub := newStubEngine()
	srv := newTestServer(t, stub)

	if resp := sendDocument(t, srv.sockPath, codecontinue.TypeClose, "file:///a.go"); !resp.OK {
		t.Errorf("close: %+v", resp)
	}
	if _, _, closed, _ := stub.recorded(); len(closed) != 1 || closed[0] != "file:///a.go" {
		t.Errorf("close not forwarded: %v", closed)
	}

	if resp := sendDocument(t, srv.sockPath, codecontinue.TypeAccept, "file:///a.go"); !resp.OK {
		t.Errorf("accept: %+v", resp)
	}
	if _, _, _, accepts := stub.recorded(); len(accepts) != 1 {
		t.Errorf("accept not forwarded: %v", accepts)
	}

	resp := sendDocument(t, srv.sockPath, codecontinue.TypeClear, "file:///a.go")
	if resp.Clear == nil || !*resp.Clear {
		t.Errorf("expected clear=true, got %+v", resp)
	}

	stub.suppress.Store(true)
	resp = sendDocument(t, srv.sockPath, codecontinue.TypeClear, "file:///a.go")
	if resp.Clear == nil || *resp.Clear {
		t.Errorf("expected clear=false during grace period, got %+v", resp)
	}
}

func TestDocumentRequiresDoc(t *testing.T) {
	srv := newTestServer(t, newStubEngine())

	resp := sendDocument(t, srv.sockPath, codecontinue.TypeClose, "")
	if resp.OK || resp.Error == nil || resp.Error.Code != "invalid_request" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestStatsRequest(t *testing.T) {
	stub := newStubEngine()
	stub.stats = track.Stats{Documents: 3, ActiveRequests: 1}
	srv := newTestServer(t, stub)

	var resp codecontinue.StatsResponse
	roundTrip(t, srv.sockPath, map[string]string{"type": codecontinue.TypeStats}, &resp)
	if resp.Documents != 3 || resp.ActiveRequests != 1 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}

func TestResetRequest(t *testing.T) {
	stub := newStubEngine()
	srv := newTestServer(t, stub)

	var resp codecontinue.DocumentResponse
	roundTrip(t, srv.sockPath, map[string]string{"type": codecontinue.TypeReset}, &resp)
	if !resp.OK {
		t.Errorf("expected ok, got %+v", resp)
	}
	if n := stub.resets.Load(); n != 1 {
		t.Errorf("expected 1 reset, got %d", n)
	}
}

func TestUnknownType(t *testing.T) {
	srv := newTestServer(t, newStubEngine())

	var resp errorResponse
	roundTrip(t, srv.sockPath, map[string]string{"type": "bogus"}, &resp)
	if resp.Error == nil || resp.Error.Code != "unknown_type" {
		t.Errorf("expected unknown_type, got %+v", resp.Error)
	}
}

func TestConfigDefaultsAction(t *testing.T) {
	srv := newTestServer(t, newStubEngine())

	resp := sendConfig(t, srv.sockPath, "defaults")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Config == nil {
		t.Fatal("expected config")
	}
	if resp.Config.Context.MaxContextLines != 40 || resp.Config.Context.RateLimitMs != 1000 {
		t.Errorf("unexpected defaults: %+v", resp.Config.Context)
	}
}

func TestConfigGetMasksAPIKey(t *testing.T) {
	stub := newStubEngine()
	stub.cfg.Generation.APIKey = "sk-secret"
	stub.cfg.Generation.Model = "m"
	srv := newTestServer(t, stub)

	resp := sendConfig(t, srv.sockPath, "get")
	if resp.Config == nil {
		t.Fatal("expected config")
	}
	if resp.Config.Generation.APIKey != "********" {
		t.Errorf("expected masked key, got %q", resp.Config.Generation.APIKey)
	}
	if resp.Config.Generation.Model != "m" {
		t.Errorf("expected model m, got %q", resp.Config.Generation.Model)
	}
	if stub.Config().Generation.APIKey != "sk-secret" {
		t.Error("masking must not modify the engine config")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CODECONTINUE_CONFIG_DIR", dir)
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigReloadAction(t *testing.T) {
	writeConfig(t, "[generation]\nmodel = \"reloaded\"\n\n[logging]\nenable_logging = true\n")
	stub := newStubEngine()
	srv := newTestServer(t, stub)

	var hooked atomic.Pointer[codecontinue.Config]
	srv.OnReload(func(cfg *codecontinue.Config) { hooked.Store(cfg) })

	resp := sendConfig(t, srv.sockPath, "reload")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Config == nil || resp.Config.Generation.Model != "reloaded" {
		t.Errorf("unexpected config: %+v", resp.Config)
	}
	if stub.Config().Generation.Model != "reloaded" {
		t.Error("expected engine config to be swapped")
	}
	if cfg := hooked.Load(); cfg == nil || !cfg.Logging.EnableLogging {
		t.Error("expected reload hook to see the new config")
	}
}

func TestConfigReloadKeepsConfigOnError(t *testing.T) {
	writeConfig(t, "[generation\nbroken")
	stub := newStubEngine()
	before := stub.Config()
	srv := newTestServer(t, stub)

	resp := sendConfig(t, srv.sockPath, "reload")
	if resp.Error == nil || resp.Error.Code != "config_error" {
		t.Errorf("expected config_error, got %+v", resp.Error)
	}
	if stub.Config() != before {
		t.Error("engine config must not change on a failed reload")
	}
}

func TestConfigValidateAction(t *testing.T) {
	t.Setenv("CODECONTINUE_ENDPOINT", "")
	t.Setenv("CODECONTINUE_MODEL", "")
	writeConfig(t, "[generation]\nendpoint = \"https://your-api.example.com/v1\"\nmodel = \"m\"\n\n[context]\ntrigger_languages = [\"go\"]\n")
	srv := newTestServer(t, newStubEngine())

	resp := sendConfig(t, srv.sockPath, "validate")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "endpoint is invalid") {
		t.Errorf("expected one endpoint warning, got %v", resp.Warnings)
	}
}

func TestConfigUnknownAction(t *testing.T) {
	srv := newTestServer(t, newStubEngine())

	resp := sendConfig(t, srv.sockPath, "explode")
	if resp.Error == nil || resp.Error.Code != "unknown_action" {
		t.Errorf("expected unknown_action, got %+v", resp.Error)
	}
}

func TestServerCloseIdempotent(t *testing.T) {
	srv := newTestServer(t, newStubEngine())
	srv.Close()
	srv.Close()

	if _, err := os.Stat(srv.sockPath); !os.IsNotExist(err) {
		t.Errorf("expected socket file to be removed, got %v", err)
	}
}
